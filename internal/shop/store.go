// Package shop implements the storefront state container.
//
// A Store owns the product catalog, the cart and the session, and is the only
// component that talks to the backend. Views read snapshots and call Store
// operations; they never see backend errors. Network-backed operations report
// success as a bool or return an empty result, logging the cause.
//
// Concurrency model: every in-memory mutation runs entirely under s.mu, so
// mutations never interleave partially. Network calls are made without
// holding s.mu and their result is applied in one step once known, so readers
// observe the previous state while a call is pending. Two calls in flight
// resolve in completion order; the last to resolve wins.
package shop

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/techshop/internal/backend"
	"github.com/xenking/techshop/internal/domain/cart"
	"github.com/xenking/techshop/internal/domain/order"
	"github.com/xenking/techshop/internal/domain/product"
	"github.com/xenking/techshop/internal/domain/session"
)

const instrumentationName = "github.com/xenking/techshop/internal/shop"

// Backend is the subset of the storefront API the Store depends on.
type Backend interface {
	product.Source
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, name, email, password string) (string, error)
	Me(ctx context.Context, token string) (session.User, error)
	UpdateMe(ctx context.Context, token string, upd session.ProfileUpdate) (session.User, error)
	Orders(ctx context.Context, token string) ([]order.Order, error)
	Activity(ctx context.Context, token string) (*order.Activity, error)
	PlaceOrder(ctx context.Context, token string, items []order.PlaceItem) (*order.Order, error)
}

var _ Backend = (*backend.Client)(nil)

// Options holds non-dependency configuration for the Store.
type Options struct {
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	// CheckoutDelay simulates payment processing during Checkout.
	CheckoutDelay time.Duration
	// SubmitOrders makes Checkout send the order to the backend when the
	// client is authenticated.
	SubmitOrders bool
	// ResolveProfileOnLogin fetches the account name after login instead of
	// deriving it from the email address. The derived name is still used when
	// the lookup fails.
	ResolveProfileOnLogin bool

	// Now defaults to time.Now.
	Now func() time.Time
}

// Store is the single source of truth for catalog, cart and session.
type Store struct {
	backend Backend
	tokens  session.TokenStore
	opts    Options

	lg       *zap.Logger
	tracer   trace.Tracer
	failures metric.Int64Counter

	mu      sync.Mutex
	catalog []product.Product
	cart    cart.Cart
	user    *session.User
	token   string
	subs    map[int]Subscriber
	nextSub int

	// pub serializes mutations together with subscriber delivery so
	// snapshots arrive in mutation order. Lock order is pub, then mu.
	pub sync.Mutex
}

// New creates a Store with an empty catalog, an empty cart and no session.
func New(b Backend, tokens session.TokenStore, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = metricnoop.NewMeterProvider()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	failures, err := opts.MeterProvider.Meter(instrumentationName).Int64Counter(
		"techshop.store.failures",
		metric.WithDescription("Backend-backed store operations that failed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create failures counter")
	}

	return &Store{
		backend:  b,
		tokens:   tokens,
		opts:     opts,
		lg:       opts.Logger,
		tracer:   opts.TracerProvider.Tracer(instrumentationName),
		failures: failures,
		subs:     make(map[int]Subscriber),
	}, nil
}

// Subscribe registers fn to receive a snapshot after every state change and
// returns a function that removes it. fn runs synchronously on the goroutine
// that made the change and must not mutate the Store.
func (s *Store) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Catalog returns the current catalog.
func (s *Store) Catalog() []product.Product {
	return s.Snapshot().Catalog
}

// Cart returns the current cart.
func (s *Store) Cart() cart.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart
}

// User returns the signed-in user, or nil.
func (s *Store) User() *session.User {
	return s.Snapshot().User
}

// Authenticated reports whether the Store holds a session token.
func (s *Store) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// Categories returns the storefront category labels.
func (s *Store) Categories() []string {
	return product.Categories()
}

// ProductsIn returns the catalog products of category; "" returns all.
func (s *Store) ProductsIn(category string) []product.Product {
	return product.InCategory(s.Catalog(), category)
}

// Search returns the catalog products whose name or description contains term,
// ignoring case; "" returns all.
func (s *Store) Search(term string) []product.Product {
	return product.Search(s.Catalog(), term)
}

// ReplaceCatalog installs products as the catalog without contacting the
// backend, e.g. from a previously exported file. The cart is left alone.
func (s *Store) ReplaceCatalog(products []product.Product) {
	catalog := make([]product.Product, len(products))
	copy(catalog, products)
	s.update(func() bool {
		s.catalog = catalog
		return true
	})
}

// LoadCatalog replaces the catalog with the backend's. On failure the previous
// catalog is kept and the failure is only logged.
func (s *Store) LoadCatalog(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "shop.LoadCatalog")
	defer span.End()

	products, err := s.backend.ListProducts(ctx)
	if err != nil {
		s.fail(ctx, span, "load_catalog", err)
		s.lg.Warn("Catalog load failed, keeping previous catalog", zap.Error(err))
		return
	}

	s.lg.Debug("Catalog loaded", zap.Int("products", len(products)))
	s.update(func() bool {
		s.catalog = products
		return true
	})
}

// AddToCart adds one unit of p to the cart.
func (s *Store) AddToCart(p product.Product) {
	s.update(func() bool {
		s.cart = s.cart.Add(p)
		return true
	})
}

// RemoveFromCart deletes the line for productID, if any.
func (s *Store) RemoveFromCart(productID int64) {
	s.update(func() bool {
		if _, ok := s.cart.Line(productID); !ok {
			return false
		}
		s.cart = s.cart.Remove(productID)
		return true
	})
}

// UpdateQuantity sets the quantity of the line for productID. A quantity of
// zero or less removes the line.
func (s *Store) UpdateQuantity(productID int64, quantity int) {
	s.update(func() bool {
		if _, ok := s.cart.Line(productID); !ok {
			return false
		}
		s.cart = s.cart.SetQuantity(productID, quantity)
		return true
	})
}

// ClearCart empties the cart.
func (s *Store) ClearCart() {
	s.update(func() bool {
		s.cart = cart.Cart{}
		return true
	})
}

// TotalItems returns the number of items in the cart.
func (s *Store) TotalItems() int {
	return s.Cart().TotalItems()
}

// TotalPrice returns the cart total using add-time prices.
func (s *Store) TotalPrice() decimal.Decimal {
	return s.Cart().TotalPrice()
}

// update runs fn under s.mu and, when it reports a change, publishes the new
// snapshot to subscribers.
func (s *Store) update(fn func() bool) {
	s.pub.Lock()
	defer s.pub.Unlock()

	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	subs := make([]Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Catalog:       make([]product.Product, len(s.catalog)),
		Cart:          s.cart,
		Authenticated: s.token != "",
	}
	copy(snap.Catalog, s.catalog)
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// currentToken returns the session token, or "" when anonymous.
func (s *Store) currentToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// fail records a failed backend-backed operation on the span and counter.
func (s *Store) fail(ctx context.Context, span trace.Span, op string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
