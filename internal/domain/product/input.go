package product

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-shop/internal/domain"
)

// CreateInput holds the fields of a new product. Status and Thumbnails are
// optional on the wire; decoders default Status to true.
type CreateInput struct {
	Title       string          `validate:"required"`
	Description string          `validate:"required"`
	Code        string          `validate:"required"`
	Price       decimal.Decimal `validate:"dmin=0,dmax=1000000000000"`
	Status      bool
	Stock       int    `validate:"gte=0,lte=2147483647"`
	Category    string `validate:"required"`
	Thumbnails  []string
}

// Normalize trims surrounding whitespace from text fields.
func (in *CreateInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Code = strings.TrimSpace(in.Code)
	in.Category = strings.TrimSpace(in.Category)
	if in.Thumbnails == nil {
		in.Thumbnails = []string{}
	}
}

// Validate checks required fields and numeric bounds.
func (in *CreateInput) Validate() error {
	return validationError(validate.Struct(in))
}

// Product builds an unsaved product from the input.
func (in *CreateInput) Product() *Product {
	return &Product{
		Title:       in.Title,
		Description: in.Description,
		Code:        in.Code,
		Price:       in.Price,
		Status:      in.Status,
		Stock:       in.Stock,
		Category:    in.Category,
		Thumbnails:  in.Thumbnails,
	}
}

// Patch is a partial product update. Only non-nil fields are applied; the
// identity is never patchable.
type Patch struct {
	Title       *string          `validate:"omitnil,min=1"`
	Description *string          `validate:"omitnil,min=1"`
	Code        *string          `validate:"omitnil,min=1"`
	Price       *decimal.Decimal `validate:"omitnil,dmin=0,dmax=1000000000000"`
	Status      *bool
	Stock       *int    `validate:"omitnil,gte=0,lte=2147483647"`
	Category    *string `validate:"omitnil,min=1"`
	Thumbnails  *[]string
}

// Empty reports whether the patch changes nothing.
func (p *Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Code == nil &&
		p.Price == nil && p.Status == nil && p.Stock == nil &&
		p.Category == nil && p.Thumbnails == nil
}

// Normalize trims surrounding whitespace from text fields.
func (p *Patch) Normalize() {
	for _, s := range []*string{p.Title, p.Description, p.Code, p.Category} {
		if s != nil {
			*s = strings.TrimSpace(*s)
		}
	}
}

// Validate applies the create-time bounds to the fields present.
func (p *Patch) Validate() error {
	return validationError(validate.Struct(p))
}

// Apply writes the patch onto prod.
func (p *Patch) Apply(prod *Product) {
	if p.Title != nil {
		prod.Title = *p.Title
	}
	if p.Description != nil {
		prod.Description = *p.Description
	}
	if p.Code != nil {
		prod.Code = *p.Code
	}
	if p.Price != nil {
		prod.Price = *p.Price
	}
	if p.Status != nil {
		prod.Status = *p.Status
	}
	if p.Stock != nil {
		prod.Stock = *p.Stock
	}
	if p.Category != nil {
		prod.Category = *p.Category
	}
	if p.Thumbnails != nil {
		prod.Thumbnails = append([]string{}, *p.Thumbnails...)
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	must(v.RegisterValidation("dmin", decimalBound(func(d, limit decimal.Decimal) bool {
		return d.GreaterThanOrEqual(limit)
	})))
	must(v.RegisterValidation("dmax", decimalBound(func(d, limit decimal.Decimal) bool {
		return d.LessThanOrEqual(limit)
	})))
	return v
}

// decimalBound compares a decimal.Decimal field against the tag parameter.
func decimalBound(ok func(d, limit decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		d, isDecimal := fl.Field().Interface().(decimal.Decimal)
		if !isDecimal {
			return false
		}
		limit, err := decimal.NewFromString(fl.Param())
		if err != nil {
			return false
		}
		return ok(d, limit)
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// validationError converts the first validator failure to a domain.InputError.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return domain.Invalid("", err.Error())
	}
	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required", "min":
		return domain.Invalid(field, "is required")
	case "gte", "dmin":
		return domain.Invalid(field, "must be at least "+fe.Param())
	case "lte", "dmax":
		return domain.Invalid(field, "must be at most "+fe.Param())
	default:
		return domain.Invalid(field, "is invalid")
	}
}
