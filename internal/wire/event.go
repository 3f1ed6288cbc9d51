package wire

import (
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-shop/internal/domain"
	"github.com/xenking/kart-shop/internal/domain/product"
)

// Message is an inbound realtime message.
type Message struct {
	Event   string
	Payload []byte
}

// DecodeMessage reads {"event": name, "payload": any}. Payload keeps the raw
// JSON of the payload member, or is nil when absent.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return Message{}, domain.Invalid("", "message must be a JSON object")
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "event":
			s, err := readString(d, key)
			if err != nil {
				return err
			}
			m.Event = s
		case "payload":
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			m.Payload = append([]byte(nil), raw...)
		default:
			return d.Skip()
		}
		return nil
	})
	if err := bodyError(err); err != nil {
		return Message{}, err
	}
	if m.Event == "" {
		return Message{}, domain.Invalid("event", "is required")
	}
	return m, nil
}

// DecodeSocketProduct reads the payload of an addProduct message. It is
// lenient like the browser form that sends it: unparsable price and stock
// become 0, status defaults to true, category defaults to "General". Numbers
// that parse but are out of range are rejected as on the HTTP API.
func DecodeSocketProduct(data []byte) (product.CreateInput, error) {
	in := product.CreateInput{Status: true}
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
			in.Price, err = readLenientDecimal(d, key)
		case "stock":
			var v decimal.Decimal
			if v, err = readLenientDecimal(d, key); err == nil {
				in.Stock, err = toInt(v, key)
			}
		case "status":
			in.Status, err = readTruthy(d)
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
	if in.Category == "" {
		in.Category = "General"
	}
	return in, nil
}

// DecodeSocketID reads the payload of a deleteProduct message: a bare id
// string.
func DecodeSocketID(data []byte) (string, error) {
	d := jx.DecodeBytes(data)
	if d.Next() != jx.String {
		return "", domain.Invalid("id", "must be a string")
	}
	s, err := d.Str()
	if err != nil {
		return "", domain.Invalid("id", "must be a string")
	}
	return s, nil
}

// readLenientDecimal reads a number, numeric string or boolean. Text that does
// not parse becomes 0.
func readLenientDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number, jx.String:
		raw, err := readNumeric(d, field)
		if err != nil {
			return decimal.Zero, err
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, nil
		}
		if err := checkMagnitude(v, field); err != nil {
			return decimal.Zero, err
		}
		return v, nil
	case jx.Bool:
		b, err := d.Bool()
		if err != nil || !b {
			return decimal.Zero, err
		}
		return decimal.NewFromInt(1), nil
	default:
		return decimal.Zero, d.Skip()
	}
}

// readTruthy reports whether the value would be truthy in a browser script.
func readTruthy(d *jx.Decoder) (bool, error) {
	switch d.Next() {
	case jx.Bool:
		return d.Bool()
	case jx.String:
		s, err := d.Str()
		return s != "", err
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return false, err
		}
		v, err := decimal.NewFromString(string(n))
		return err == nil && !v.IsZero(), nil
	default:
		return true, d.Skip()
	}
}
