package backend

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/techshop/internal/domain/order"
	"github.com/xenking/techshop/internal/domain/product"
	"github.com/xenking/techshop/internal/domain/session"
)

// timeLayouts are the datetime formats the backend is known to emit. Naive
// timestamps (no zone) are interpreted as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// DecodeProducts decodes a JSON array of products.
func DecodeProducts(d *jx.Decoder) ([]product.Product, error) {
	out := []product.Product{}
	if err := d.Arr(func(d *jx.Decoder) error {
		var p product.Product
		if err := DecodeProduct(d, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode products")
	}
	return out, nil
}

// DecodeProduct decodes a single product object into p.
func DecodeProduct(d *jx.Decoder, p *product.Product) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Int64()
		case "name":
			p.Name, err = decodeOptStr(d)
		case "price":
			p.Price, err = decodeDecimal(d)
		case "image":
			p.Image, err = decodeOptStr(d)
		case "description":
			p.Description, err = decodeOptStr(d)
		case "category":
			p.Category, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
}

// EncodeProduct writes p as a JSON object.
func EncodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	e.RawStr(p.Price.String())
	e.FieldStart("image")
	e.Str(p.Image)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("category")
	e.Str(p.Category)
	e.ObjEnd()
}

func decodeToken(d *jx.Decoder) (string, error) {
	var token string
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "access_token" {
			return d.Skip()
		}
		v, err := decodeOptStr(d)
		token = v
		return err
	}); err != nil {
		return "", errors.Wrap(err, "decode token")
	}
	if token == "" {
		return "", errors.New("decode token: empty access_token")
	}
	return token, nil
}

func decodeStatus(d *jx.Decoder) (string, error) {
	var status string
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		v, err := decodeOptStr(d)
		status = v
		return err
	}); err != nil {
		return "", errors.Wrap(err, "decode status")
	}
	return status, nil
}

func decodeUser(d *jx.Decoder) (session.User, error) {
	var u session.User
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			u.Email, err = decodeOptStr(d)
		case "name":
			u.Name, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return session.User{}, errors.Wrap(err, "decode user")
	}
	return u, nil
}

func decodeOrders(d *jx.Decoder) ([]order.Order, error) {
	out := []order.Order{}
	if err := d.Arr(func(d *jx.Decoder) error {
		o, err := decodeOrder(d)
		if err != nil {
			return err
		}
		out = append(out, o)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode orders")
	}
	return out, nil
}

func decodeOrder(d *jx.Decoder) (order.Order, error) {
	var o order.Order
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = d.Int64()
		case "user_id":
			o.UserID, err = d.Int64()
		case "total_price":
			o.TotalPrice, err = decodeDecimal(d)
		case "status":
			o.Status, err = decodeOptStr(d)
		case "created_at":
			var t *time.Time
			if t, err = decodeOptTime(d); t != nil {
				o.CreatedAt = *t
			}
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				item, err := decodeOrderItem(d)
				if err != nil {
					return err
				}
				o.Items = append(o.Items, item)
				return nil
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	return o, err
}

func decodeOrderItem(d *jx.Decoder) (order.Item, error) {
	var it order.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			it.ID, err = d.Int64()
		case "product_id":
			it.ProductID, err = d.Int64()
		case "quantity":
			it.Quantity, err = d.Int()
		case "price":
			it.Price, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return it, err
}

func decodeActivity(d *jx.Decoder) (*order.Activity, error) {
	var a order.Activity
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "total_orders":
			a.TotalOrders, err = d.Int()
		case "last_order_date":
			a.LastOrderDate, err = decodeOptTime(d)
		case "account_created":
			var t *time.Time
			if t, err = decodeOptTime(d); t != nil {
				a.AccountCreated = *t
			}
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode activity")
	}
	return &a, nil
}

// decodeDetail extracts the "detail" message of an error response. Bodies
// that are not JSON, or whose detail is not a string, yield "".
func decodeDetail(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var detail string
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key == "detail" && d.Next() == jx.String {
			v, err := d.Str()
			detail = v
			return err
		}
		return d.Skip()
	}); err != nil {
		return ""
	}
	return detail
}

func encodeRegister(name, email, password string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("name")
	e.Str(name)
	e.FieldStart("email")
	e.Str(email)
	e.FieldStart("password")
	e.Str(password)
	e.ObjEnd()
	return e.Bytes()
}

// encodeProfileUpdate writes only the fields that are set.
func encodeProfileUpdate(u session.ProfileUpdate) []byte {
	var e jx.Encoder
	e.ObjStart()
	if u.Name != "" {
		e.FieldStart("name")
		e.Str(u.Name)
	}
	if u.Email != "" {
		e.FieldStart("email")
		e.Str(u.Email)
	}
	if u.Password != "" {
		e.FieldStart("password")
		e.Str(u.Password)
	}
	e.ObjEnd()
	return e.Bytes()
}

func encodePlaceOrder(items []order.PlaceItem) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func decodeOptStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	num, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	v, err := decimal.NewFromString(strings.Trim(string(num), `"`))
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse decimal")
	}
	return v, nil
}

func decodeOptTime(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, errors.Errorf("parse time %q", s)
}
