package shop

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/techshop/internal/domain/cart"
	"github.com/xenking/techshop/internal/domain/product"
	"github.com/xenking/techshop/internal/domain/session"
)

// Snapshot is an immutable copy of the Store state.
type Snapshot struct {
	Catalog []product.Product
	Cart    cart.Cart
	// User is nil for anonymous clients. It is also nil when a restored token
	// could not be resolved to an account.
	User *session.User
	// Authenticated reports whether a session token is held.
	Authenticated bool
}

// TotalItems returns the number of items in the cart.
func (s Snapshot) TotalItems() int { return s.Cart.TotalItems() }

// TotalPrice returns the cart total.
func (s Snapshot) TotalPrice() decimal.Decimal { return s.Cart.TotalPrice() }

// Subscriber receives a snapshot after every state change.
type Subscriber func(Snapshot)
