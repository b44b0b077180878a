package shop

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/techshop/internal/domain/order"
)

// DefaultCheckoutDelay is the simulated payment processing time.
const DefaultCheckoutDelay = 2500 * time.Millisecond

// ErrEmptyCart is returned by Checkout when there is nothing to buy.
var ErrEmptyCart = errors.New("cart is empty")

// Checkout simulates paying for the cart. After the processing delay it
// optionally submits the order to the backend and returns a receipt for the
// cart as it was when checkout started. Only the paid units leave the cart;
// anything added while payment was processing stays. If ctx is cancelled or
// the order is rejected the cart is left intact.
func (s *Store) Checkout(ctx context.Context) (*order.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "shop.Checkout")
	defer span.End()

	s.mu.Lock()
	c := s.cart
	token := s.token
	s.mu.Unlock()

	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	if d := s.opts.CheckoutDelay; d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Wrap(ctx.Err(), "checkout")
		case <-timer.C:
		}
	}

	receipt := &order.Receipt{
		ID:         uuid.New().String(),
		Lines:      c.Lines(),
		TotalItems: c.TotalItems(),
		Total:      c.TotalPrice().Round(2),
		PlacedAt:   s.opts.Now(),
	}

	if s.opts.SubmitOrders && token != "" {
		o, err := s.backend.PlaceOrder(ctx, token, order.PlaceItemsFromCart(c))
		if err != nil {
			s.fail(ctx, span, "place_order", err)
			return nil, errors.Wrap(err, "submit order")
		}
		receipt.Order = o
	}

	s.update(func() bool {
		s.cart = s.cart.Subtract(c)
		return true
	})
	s.lg.Info("Checkout completed",
		zap.String("receipt", receipt.ID),
		zap.Int("items", receipt.TotalItems),
		zap.String("total", receipt.Total.StringFixed(2)),
	)
	return receipt, nil
}
