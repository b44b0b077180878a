package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/techshop/internal/domain/cart"
)

// Order is a past order as reported by the backend order history.
type Order struct {
	ID         int64
	UserID     int64
	TotalPrice decimal.Decimal
	Status     string
	CreatedAt  time.Time
	Items      []Item
}

// Item is a single line of a past order. Price is the unit price charged.
type Item struct {
	ID        int64
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

// Activity is the aggregate account activity shown on the dashboard.
type Activity struct {
	TotalOrders    int
	LastOrderDate  *time.Time
	AccountCreated time.Time
}

// PlaceItem is a line of an order submitted to the backend.
type PlaceItem struct {
	ProductID int64
	Quantity  int
}

// PlaceItemsFromCart converts cart lines to order submission items.
func PlaceItemsFromCart(c cart.Cart) []PlaceItem {
	lines := c.Lines()
	items := make([]PlaceItem, len(lines))
	for i, l := range lines {
		items[i] = PlaceItem{ProductID: l.Product.ID, Quantity: l.Quantity}
	}
	return items
}

// Receipt is the result of a completed checkout.
type Receipt struct {
	ID         string
	Lines      []cart.Line
	TotalItems int
	Total      decimal.Decimal
	PlacedAt   time.Time
	// Order is the backend order record, set only when the order was
	// submitted to the backend.
	Order *Order
}
