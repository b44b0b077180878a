// Package cart implements the shopping cart as a plain value type.
//
// Every mutation returns a new Cart and leaves the receiver untouched, so a
// Cart handed out as part of a snapshot can be read without synchronization.
// Invariants: at most one line per product id, lines keep insertion order, and
// every quantity is at least 1.
package cart

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/techshop/internal/domain/product"
)

// Line is a product queued for purchase together with its quantity. The
// product, and therefore its price, is captured when the line is created.
type Line struct {
	Product  product.Product
	Quantity int
}

// Subtotal returns price × quantity for the line.
func (l Line) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an insertion-ordered sequence of lines. The zero value is an empty
// cart.
type Cart struct {
	lines []Line
}

// New returns a cart holding a copy of lines. Lines with a non-positive
// quantity are dropped and repeated product ids are merged into the first
// occurrence.
func New(lines ...Line) Cart {
	var c Cart
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if i := c.index(l.Product.ID); i >= 0 {
			c.lines[i].Quantity += l.Quantity
			continue
		}
		c.lines = append(c.lines, l)
	}
	return c
}

// Lines returns a copy of the cart lines in insertion order.
func (c Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Len returns the number of distinct lines.
func (c Cart) Len() int { return len(c.lines) }

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool { return len(c.lines) == 0 }

// Line returns the line for productID.
func (c Cart) Line(productID int64) (Line, bool) {
	if i := c.index(productID); i >= 0 {
		return c.lines[i], true
	}
	return Line{}, false
}

// Add increments the quantity of the line for p by one, appending a new line
// with quantity 1 when none exists. An existing line keeps the product it was
// created with.
func (c Cart) Add(p product.Product) Cart {
	out := c.clone()
	if i := out.index(p.ID); i >= 0 {
		out.lines[i].Quantity++
		return out
	}
	out.lines = append(out.lines, Line{Product: p, Quantity: 1})
	return out
}

// Remove deletes the line for productID. Removing an absent id is a no-op.
func (c Cart) Remove(productID int64) Cart {
	i := c.index(productID)
	if i < 0 {
		return c
	}
	out := Cart{lines: make([]Line, 0, len(c.lines)-1)}
	out.lines = append(out.lines, c.lines[:i]...)
	out.lines = append(out.lines, c.lines[i+1:]...)
	return out
}

// SetQuantity sets the quantity of the line for productID. A quantity of zero
// or less removes the line. Absent ids are left alone.
func (c Cart) SetQuantity(productID int64, quantity int) Cart {
	if quantity <= 0 {
		return c.Remove(productID)
	}
	i := c.index(productID)
	if i < 0 {
		return c
	}
	out := c.clone()
	out.lines[i].Quantity = quantity
	return out
}

// Subtract takes the quantities of paid out of c, line by line. Lines that
// reach zero are removed; lines and units absent from paid are kept.
func (c Cart) Subtract(paid Cart) Cart {
	out := Cart{lines: make([]Line, 0, len(c.lines))}
	for _, l := range c.lines {
		if p, ok := paid.Line(l.Product.ID); ok {
			l.Quantity -= p.Quantity
		}
		if l.Quantity > 0 {
			out.lines = append(out.lines, l)
		}
	}
	return out
}

// TotalItems returns the sum of all line quantities.
func (c Cart) TotalItems() int {
	total := 0
	for _, l := range c.lines {
		total += l.Quantity
	}
	return total
}

// TotalPrice returns the sum of price × quantity over all lines.
func (c Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (c Cart) index(productID int64) int {
	for i, l := range c.lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}

func (c Cart) clone() Cart {
	return Cart{lines: c.Lines()}
}
