package shop

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/techshop/internal/domain/order"
)

// Dashboard is the account overview.
type Dashboard struct {
	Orders   []order.Order
	Activity *order.Activity
}

// FetchOrders returns the order history of the signed-in account. Any
// failure yields an empty slice.
func (s *Store) FetchOrders(ctx context.Context) []order.Order {
	ctx, span := s.tracer.Start(ctx, "shop.FetchOrders")
	defer span.End()

	orders, err := s.backend.Orders(ctx, s.currentToken())
	if err != nil {
		s.fail(ctx, span, "fetch_orders", err)
		s.lg.Warn("Fetch orders failed", zap.Error(err))
		return []order.Order{}
	}
	return orders
}

// FetchActivity returns the account activity summary, or nil on any failure.
func (s *Store) FetchActivity(ctx context.Context) *order.Activity {
	ctx, span := s.tracer.Start(ctx, "shop.FetchActivity")
	defer span.End()

	activity, err := s.backend.Activity(ctx, s.currentToken())
	if err != nil {
		s.fail(ctx, span, "fetch_activity", err)
		s.lg.Warn("Fetch activity failed", zap.Error(err))
		return nil
	}
	return activity
}

// Dashboard fetches orders and activity concurrently. Each part fails
// independently with the semantics of FetchOrders and FetchActivity.
func (s *Store) Dashboard(ctx context.Context) Dashboard {
	var (
		d Dashboard
		g errgroup.Group
	)
	g.Go(func() error {
		d.Orders = s.FetchOrders(ctx)
		return nil
	})
	g.Go(func() error {
		d.Activity = s.FetchActivity(ctx)
		return nil
	})
	_ = g.Wait()
	return d
}
