package cache

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/product"
)

func encodeProduct(p *product.Product) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("image")
	e.Str(p.Image)
	e.FieldStart("price")
	e.Str(p.Price.String())
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("discount_tiers")
	e.ArrStart()
	for _, t := range p.DiscountTiers {
		e.ObjStart()
		e.FieldStart("min_quantity")
		e.Int(t.MinQuantity)
		e.FieldStart("discount_percentage")
		e.Str(t.Percentage.String())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("created_at")
	e.Str(p.CreatedAt.Format(time.RFC3339Nano))
	e.FieldStart("updated_at")
	e.Str(p.UpdatedAt.Format(time.RFC3339Nano))
	e.FieldStart("version")
	e.Int64(p.Version)
	e.ObjEnd()
	return e.Bytes()
}

func decodeProduct(data []byte) (product.Product, error) {
	var p product.Product
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "category":
			p.Category, err = d.Str()
		case "image":
			p.Image, err = d.Str()
		case "price":
			p.Price, err = decodeDecimal(d)
		case "stock":
			p.Stock, err = d.Int()
		case "discount_tiers":
			err = d.Arr(func(d *jx.Decoder) error {
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
				p.DiscountTiers = append(p.DiscountTiers, t)
				return nil
			})
		case "created_at":
			p.CreatedAt, err = decodeTime(d)
		case "updated_at":
			p.UpdatedAt, err = decodeTime(d)
		case "version":
			p.Version, err = d.Int64()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return product.Product{}, err
	}
	if p.ID == "" {
		return product.Product{}, errors.New("cached product has no id")
	}
	return p, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(s)
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}
