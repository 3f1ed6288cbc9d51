package domain

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IdentityError reports a malformed record identity.
type IdentityError struct {
	ID string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("invalid id %q: must be 24 hexadecimal characters", e.ID)
}

// Is reports IdentityError as ErrInvalidIdentity.
func (e *IdentityError) Is(target error) bool {
	return target == ErrInvalidIdentity
}

// ValidateID checks that id is a 24-character hexadecimal identity. Letter
// case is not significant.
func ValidateID(id string) error {
	_, err := ParseID(id)
	return err
}

// ParseID validates id and returns its canonical lowercase form.
func ParseID(id string) (string, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return "", &IdentityError{ID: id}
	}
	return oid.Hex(), nil
}

// NewID returns a fresh identity. Identities produced by one process sort in
// creation order.
func NewID() string {
	return primitive.NewObjectID().Hex()
}
