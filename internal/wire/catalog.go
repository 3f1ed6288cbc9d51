package wire

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-shop/internal/domain/product"
)

// DecodeCatalog reads a JSON array of product creation bodies, such as the
// embedded seed catalog.
func DecodeCatalog(data []byte) ([]product.CreateInput, error) {
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Array {
		return nil, errors.New("catalog must be a JSON array")
	}
	var out []product.CreateInput
	if err := d.Arr(func(d *jx.Decoder) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		in, err := DecodeCreateInput(raw)
		if err != nil {
			return errors.Wrapf(err, "product %d", len(out))
		}
		out = append(out, in)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return out, nil
}
