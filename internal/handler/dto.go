package handler

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

// Money is written as a JSON number with exactly two fraction digits.
func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeTier(e *jx.Encoder, t discount.Tier) {
	e.ObjStart()
	e.FieldStart("minQuantity")
	e.Int(t.MinQuantity)
	e.FieldStart("discountPercentage")
	e.Num(jx.Num(t.Percentage.String()))
	e.ObjEnd()
}

func (h *Handler) imageURL(image string) string {
	if h.imageBaseURL == "" || image == "" || strings.Contains(image, "://") {
		return image
	}
	return strings.TrimSuffix(h.imageBaseURL, "/") + "/" + strings.TrimPrefix(image, "/")
}

func (h *Handler) encodeProduct(e *jx.Encoder, p *product.Product) {
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
	e.Str(h.imageURL(p.Image))
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("discountTiers")
	e.ArrStart()
	for _, t := range p.DiscountTiers {
		encodeTier(e, t)
	}
	e.ArrEnd()
	e.FieldStart("createdAt")
	encodeTime(e, p.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, p.UpdatedAt)
	e.ObjEnd()
}

func encodeQuote(e *jx.Encoder, q *product.Quote) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(q.ProductID)
	e.FieldStart("quantity")
	e.Int(q.Quantity)
	e.FieldStart("basePrice")
	encodeMoney(e, q.BasePrice)
	e.FieldStart("unitPrice")
	encodeMoney(e, q.UnitPrice)
	e.FieldStart("subtotal")
	encodeMoney(e, q.Subtotal)
	e.FieldStart("tier")
	if q.Tier != nil {
		encodeTier(e, *q.Tier)
	} else {
		e.Null()
	}
	e.ObjEnd()
}

func encodeOrderFields(e *jx.Encoder, o *order.Order) {
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("userId")
	e.Str(o.UserID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range o.Lines {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(l.ProductID)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("unitPrice")
		encodeMoney(e, l.UnitPrice)
		e.FieldStart("subtotal")
		encodeMoney(e, l.Subtotal())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("total")
	encodeMoney(e, o.Total)
	e.FieldStart("expectedDeliveryTime")
	if o.ExpectedDeliveryTime != nil {
		encodeTime(e, *o.ExpectedDeliveryTime)
	} else {
		e.Null()
	}
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
	e.FieldStart("version")
	e.Int64(o.Version)
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	encodeOrderFields(e, o)
	e.ObjEnd()
}

func (h *Handler) encodePlacedOrder(e *jx.Encoder, res *order.PlaceOrderResult) {
	e.ObjStart()
	encodeOrderFields(e, res.Order)
	e.FieldStart("products")
	e.ArrStart()
	for i := range res.Products {
		h.encodeProduct(e, &res.Products[i])
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeUser(e *jx.Encoder, u *user.User) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(u.ID)
	e.FieldStart("name")
	e.Str(u.Name)
	e.FieldStart("email")
	e.Str(u.Email)
	e.FieldStart("phone")
	e.Str(u.Phone)
	e.FieldStart("role")
	e.Str(string(u.Role))
	e.FieldStart("telegramLinked")
	e.Bool(u.TelegramChatID != "")
	e.FieldStart("createdAt")
	encodeTime(e, u.CreatedAt)
	e.ObjEnd()
}

// Request bodies.

type credentials struct {
	Name     string
	Email    string
	Password string
	Phone    string
}

func (c *credentials) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "name":
			c.Name, err = d.Str()
		case "email":
			c.Email, err = d.Str()
		case "password":
			c.Password, err = d.Str()
		case "phone":
			c.Phone, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

type telegramLink struct {
	ChatID string
}

// Decode accepts the chat id as a string or as the integer Telegram reports.
func (t *telegramLink) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "chatId" {
			return d.Skip()
		}
		switch d.Next() {
		case jx.Number:
			n, err := d.Num()
			if err != nil {
				return err
			}
			t.ChatID = n.String()
			return nil
		case jx.Null:
			t.ChatID = ""
			return d.Null()
		default:
			s, err := d.Str()
			t.ChatID = s
			return err
		}
	})
}

type placeOrder struct {
	Items []order.CartLine
}

func (p *placeOrder) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "items" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			var line order.CartLine
			if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				var err error
				switch string(key) {
				case "productId":
					line.ProductID, err = d.Str()
				case "quantity":
					line.Quantity, err = d.Int()
				default:
					err = d.Skip()
				}
				return err
			}); err != nil {
				return err
			}
			p.Items = append(p.Items, line)
			return nil
		})
	})
}

func decodeTier(d *jx.Decoder) (discount.Tier, error) {
	var t discount.Tier
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "minQuantity":
			t.MinQuantity, err = d.Int()
		case "discountPercentage":
			t.Percentage, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return t, err
}

type tierInput struct {
	Tier discount.Tier
}

func (t *tierInput) Decode(d *jx.Decoder) (err error) {
	t.Tier, err = decodeTier(d)
	return err
}

type productInput struct {
	product.CreateRequest
}

func (p *productInput) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
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
		case "discountTiers":
			err = d.Arr(func(d *jx.Decoder) error {
				t, err := decodeTier(d)
				if err != nil {
					return err
				}
				p.DiscountTiers = append(p.DiscountTiers, t)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
}

type productPatch struct {
	product.UpdateRequest
}

func (p *productPatch) Decode(d *jx.Decoder) error {
	str := func(d *jx.Decoder) (*string, error) {
		s, err := d.Str()
		return &s, err
	}
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "name":
			p.Name, err = str(d)
		case "description":
			p.Description, err = str(d)
		case "category":
			p.Category, err = str(d)
		case "image":
			p.Image, err = str(d)
		case "price":
			var v decimal.Decimal
			v, err = decodeDecimal(d)
			p.Price = &v
		case "stock":
			var v int
			v, err = d.Int()
			p.Stock = &v
		default:
			err = d.Skip()
		}
		return err
	})
}

type statusChange struct {
	Status               string
	ExpectedDeliveryTime *time.Time
}

func (s *statusChange) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "status":
			v, err := d.Str()
			s.Status = v
			return err
		case "expectedDeliveryTime":
			if d.Next() == jx.Null {
				return d.Null()
			}
			raw, err := d.Str()
			if err != nil {
				return err
			}
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return errors.Wrap(err, "expectedDeliveryTime")
			}
			s.ExpectedDeliveryTime = &t
			return nil
		default:
			return d.Skip()
		}
	})
}

type notification struct {
	UserID  string
	Message string
}

func (n *notification) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "userId":
			n.UserID, err = d.Str()
		case "message":
			n.Message, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
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
