package postgres

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/order"
)

// Money is stored as JSON strings inside JSONB documents so no precision is
// lost to float conversion. Decoders accept numbers too.

func encodeLines(lines []order.Line) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(l.ProductID)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("unit_price")
		e.Str(l.UnitPrice.String())
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

func decodeLines(data []byte) ([]order.Line, error) {
	var lines []order.Line
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var l order.Line
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "product_id":
				l.ProductID, err = d.Str()
			case "quantity":
				l.Quantity, err = d.Int()
			case "unit_price":
				l.UnitPrice, err = decodeDecimal(d)
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		lines = append(lines, l)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode order lines")
	}
	return lines, nil
}

func encodeTiers(tiers []discount.Tier) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, t := range tiers {
		e.ObjStart()
		e.FieldStart("min_quantity")
		e.Int(t.MinQuantity)
		e.FieldStart("discount_percentage")
		e.Str(t.Percentage.String())
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

func decodeTiers(data []byte) ([]discount.Tier, error) {
	var tiers []discount.Tier
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var t discount.Tier
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "min_quantity":
				t.MinQuantity, err = d.Int()
			case "discount_percentage":
				t.Percentage, err = decodeDecimal(d)
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		tiers = append(tiers, t)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode discount tiers")
	}
	return tiers, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	default:
		return decimal.Zero, errors.Errorf("unexpected %s for decimal", d.Next())
	}
	return decimal.NewFromString(raw)
}
