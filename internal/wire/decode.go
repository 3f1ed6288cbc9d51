package wire

import (
	"math"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-shop/internal/domain"
	"github.com/xenking/kart-shop/internal/domain/cart"
	"github.com/xenking/kart-shop/internal/domain/product"
)

// DecodeCreateInput reads a product creation body. Price and stock are
// required and accept numbers or numeric strings; status defaults to true.
func DecodeCreateInput(data []byte) (product.CreateInput, error) {
	in := product.CreateInput{Status: true}
	var hasPrice, hasStock bool
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "title":
			in.Title, err = readString(d, key)
		case "description":
			in.Description, err = readString(d, key)
		case "code":
			in.Code, err = readString(d, key)
		case "category":
			in.Category, err = readString(d, key)
		case "price":
			hasPrice = true
			in.Price, err = readDecimal(d, key)
		case "stock":
			hasStock = true
			in.Stock, err = readInt(d, key)
		case "status":
			in.Status, err = readBool(d, key)
		case "thumbnails":
			in.Thumbnails, err = readStrings(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return product.CreateInput{}, err
	}
	switch {
	case !hasPrice:
		return product.CreateInput{}, domain.Invalid("price", "is required")
	case !hasStock:
		return product.CreateInput{}, domain.Invalid("stock", "is required")
	}
	return in, nil
}

// DecodePatch reads a partial product update. Fields that are absent or null
// are left unchanged, and identity fields are ignored.
func DecodePatch(data []byte) (product.Patch, error) {
	var p product.Patch
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		switch key {
		case "title":
			return readStringPtr(d, key, &p.Title)
		case "description":
			return readStringPtr(d, key, &p.Description)
		case "code":
			return readStringPtr(d, key, &p.Code)
		case "category":
			return readStringPtr(d, key, &p.Category)
		case "price":
			v, err := readDecimal(d, key)
			if err != nil {
				return err
			}
			p.Price = &v
		case "stock":
			v, err := readInt(d, key)
			if err != nil {
				return err
			}
			p.Stock = &v
		case "status":
			v, err := readBool(d, key)
			if err != nil {
				return err
			}
			p.Status = &v
		case "thumbnails":
			v, err := readStrings(d, key)
			if err != nil {
				return err
			}
			p.Thumbnails = &v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return product.Patch{}, err
	}
	return p, nil
}

// DecodeLineItems reads {"products": [{"product": id, "quantity": n}, ...]}.
// A missing quantity defaults to 1.
func DecodeLineItems(data []byte) ([]cart.LineItem, error) {
	var items []cart.LineItem
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		if key != "products" {
			return d.Skip()
		}
		if d.Next() != jx.Array {
			return domain.Invalid("products", "must be an array")
		}
		items = []cart.LineItem{}
		return d.Arr(func(d *jx.Decoder) error {
			item, err := readLineItem(d, "products["+strconv.Itoa(len(items))+"]")
			if err != nil {
				return err
			}
			items = append(items, item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		return nil, domain.Invalid("products", "must be an array")
	}
	return items, nil
}

// DecodeQuantity reads {"quantity": n}.
func DecodeQuantity(data []byte) (int, error) {
	var (
		qty int
		has bool
	)
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		has = true
		var err error
		qty, err = readInt(d, key)
		return err
	})
	if err != nil {
		return 0, err
	}
	if !has {
		return 0, domain.Invalid("quantity", "is required")
	}
	return qty, nil
}

func readLineItem(d *jx.Decoder, field string) (cart.LineItem, error) {
	if d.Next() != jx.Object {
		return cart.LineItem{}, domain.Invalid(field, "must be an object")
	}
	item := cart.LineItem{Quantity: 1}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product":
			item.ProductID, err = readString(d, field+".product")
		case "quantity":
			item.Quantity, err = readInt(d, field+".quantity")
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return cart.LineItem{}, err
	}
	if item.ProductID == "" {
		return cart.LineItem{}, domain.Invalid(field+".product", "is required")
	}
	return item, nil
}

// decodeObject calls field for every non-null member of the JSON object in
// data.
func decodeObject(data []byte, field func(d *jx.Decoder, key string) error) error {
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return domain.Invalid("", "request body must be a JSON object")
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		return field(d, key)
	})
	return bodyError(err)
}

// bodyError unwraps field errors from decoder callbacks and reports syntax
// errors as invalid input.
func bodyError(err error) error {
	if err == nil {
		return nil
	}
	var inputErr *domain.InputError
	if errors.As(err, &inputErr) {
		return inputErr
	}
	return domain.Invalid("", "malformed JSON body")
}

func readString(d *jx.Decoder, field string) (string, error) {
	if d.Next() != jx.String {
		return "", domain.Invalid(field, "must be a string")
	}
	return d.Str()
}

func readStringPtr(d *jx.Decoder, field string, dst **string) error {
	s, err := readString(d, field)
	if err != nil {
		return err
	}
	*dst = &s
	return nil
}

func readStrings(d *jx.Decoder, field string) ([]string, error) {
	if d.Next() != jx.Array {
		return nil, domain.Invalid(field, "must be an array of strings")
	}
	out := []string{}
	err := d.Arr(func(d *jx.Decoder) error {
		if d.Next() != jx.String {
			return domain.Invalid(field, "must be an array of strings")
		}
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// Numbers outside these bounds are rejected before any arithmetic, since
// decimal operations scale with the exponent.
const (
	maxNumberLen = 64
	maxExponent  = 18
	maxDigits    = 30
)

// readDecimal accepts a JSON number or a string holding one.
func readDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	raw, err := readNumeric(d, field)
	if err != nil {
		return decimal.Decimal{}, err
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, domain.Invalid(field, "must be a number")
	}
	if err := checkMagnitude(v, field); err != nil {
		return decimal.Decimal{}, err
	}
	return v, nil
}

// readNumeric returns the text of a JSON number or string.
func readNumeric(d *jx.Decoder, field string) (string, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		raw = string(n)
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return "", err
		}
		raw = strings.TrimSpace(s)
	default:
		return "", domain.Invalid(field, "must be a number")
	}
	if len(raw) > maxNumberLen {
		return "", domain.Invalid(field, "is out of range")
	}
	return raw, nil
}

func checkMagnitude(v decimal.Decimal, field string) error {
	if exp := v.Exponent(); exp < -maxExponent || exp > maxExponent || v.NumDigits() > maxDigits {
		return domain.Invalid(field, "is out of range")
	}
	return nil
}

func readInt(d *jx.Decoder, field string) (int, error) {
	v, err := readDecimal(d, field)
	if err != nil {
		return 0, err
	}
	return toInt(v, field)
}

// toInt converts v to an int in the int32 range.
func toInt(v decimal.Decimal, field string) (int, error) {
	if !v.IsInteger() {
		return 0, domain.Invalid(field, "must be an integer")
	}
	if v.LessThan(decimal.NewFromInt(math.MinInt32)) || v.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return 0, domain.Invalid(field, "is out of range")
	}
	return int(v.IntPart()), nil
}

// readBool accepts a JSON boolean or the strings "true" and "false".
func readBool(d *jx.Decoder, field string) (bool, error) {
	switch d.Next() {
	case jx.Bool:
		return d.Bool()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return false, err
		}
		switch s {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, domain.Invalid(field, "must be a boolean")
}
