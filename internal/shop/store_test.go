package shop

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/techshop/internal/backend"
	"github.com/xenking/techshop/internal/backend/backendtest"
	"github.com/xenking/techshop/internal/domain/cart"
	"github.com/xenking/techshop/internal/domain/product"
	"github.com/xenking/techshop/internal/domain/session"
	"github.com/xenking/techshop/internal/tokenstore"
)

// --- Mock implementations ---

type failingTokenStore struct {
	session.TokenStore
}

func (failingTokenStore) Save(context.Context, string) error {
	return errors.New("disk full")
}

// --- Helpers ---

func newTestProduct(id int64, price string) product.Product {
	return product.Product{
		ID:       id,
		Name:     "Product",
		Price:    decimal.RequireFromString(price),
		Category: product.CategoryGaming,
	}
}

type testEnv struct {
	srv    *backendtest.Server
	tokens *tokenstore.Memory
	store  *Store
}

func newTestEnv(t *testing.T, opts Options, products ...product.Product) *testEnv {
	t.Helper()

	srv := backendtest.New(products...)
	t.Cleanup(srv.Close)

	client, err := backend.New(backend.Options{BaseURL: srv.URL})
	require.NoError(t, err)

	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	tokens := tokenstore.NewMemory()
	store, err := New(client, tokens, opts)
	require.NoError(t, err)

	return &testEnv{srv: srv, tokens: tokens, store: store}
}

func storedToken(t *testing.T, tokens session.TokenStore) string {
	t.Helper()
	token, err := tokens.Load(context.Background())
	if errors.Is(err, session.ErrNoToken) {
		return ""
	}
	require.NoError(t, err)
	return token
}

// --- Cart ---

func TestStore_AddSameProductTwice(t *testing.T) {
	env := newTestEnv(t, Options{})
	p := newTestProduct(1, "10.00")

	env.store.AddToCart(p)
	env.store.AddToCart(p)

	lines := env.store.Cart().Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, int64(1), lines[0].Product.ID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.True(t, decimal.RequireFromString("20.00").Equal(env.store.TotalPrice()))
}

func TestStore_UpdateQuantityZeroRemovesLine(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.store.AddToCart(newTestProduct(1, "10.00"))
	env.store.AddToCart(newTestProduct(2, "5.00"))

	env.store.UpdateQuantity(1, 0)

	assert.Equal(t, 1, env.store.TotalItems())
	_, ok := env.store.Cart().Line(1)
	assert.False(t, ok)
}

func TestStore_UpdateQuantityAbsentIsNoop(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.store.AddToCart(newTestProduct(1, "10.00"))

	var published int
	env.store.Subscribe(func(Snapshot) { published++ })

	env.store.UpdateQuantity(2, -1)
	env.store.UpdateQuantity(2, 3)
	env.store.RemoveFromCart(2)

	assert.Equal(t, 1, env.store.TotalItems())
	assert.Zero(t, published)
}

func TestStore_TotalPriceTracksOperations(t *testing.T) {
	env := newTestEnv(t, Options{})
	a := newTestProduct(1, "19.99")
	b := newTestProduct(2, "0.01")
	c := newTestProduct(3, "100")

	env.store.AddToCart(a)
	env.store.AddToCart(b)
	env.store.AddToCart(c)
	env.store.UpdateQuantity(1, 3)
	env.store.AddToCart(b)
	env.store.RemoveFromCart(3)

	var want decimal.Decimal
	for _, l := range env.store.Cart().Lines() {
		want = want.Add(l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	assert.True(t, want.Equal(env.store.TotalPrice()))
	assert.True(t, decimal.RequireFromString("59.99").Equal(env.store.TotalPrice()))
	assert.Equal(t, 5, env.store.TotalItems())
}

func TestStore_ClearCart(t *testing.T) {
	env := newTestEnv(t, Options{})
	for i := int64(1); i <= 5; i++ {
		env.store.AddToCart(newTestProduct(i, "1"))
	}

	env.store.ClearCart()

	assert.Zero(t, env.store.TotalItems())
	assert.True(t, env.store.TotalPrice().IsZero())
}

func TestStore_CartKeepsAddTimePrice(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestProduct(1, "10.00"))
	env.store.LoadCatalog(context.Background())
	env.store.AddToCart(env.store.Catalog()[0])

	env.srv.SetProducts(newTestProduct(1, "99.00"))
	env.store.LoadCatalog(context.Background())

	assert.True(t, decimal.RequireFromString("99.00").Equal(env.store.Catalog()[0].Price))
	assert.True(t, decimal.RequireFromString("10.00").Equal(env.store.TotalPrice()))
}

// --- Catalog ---

func TestStore_LoadCatalog(t *testing.T) {
	env := newTestEnv(t, Options{},
		newTestProduct(1, "10"),
		product.Product{ID: 2, Name: "Headphones", Price: decimal.NewFromInt(5), Category: product.CategoryAudio},
	)

	env.store.LoadCatalog(context.Background())

	require.Len(t, env.store.Catalog(), 2)
	audio := env.store.ProductsIn(product.CategoryAudio)
	require.Len(t, audio, 1)
	assert.Equal(t, "Headphones", audio[0].Name)
	assert.Len(t, env.store.ProductsIn(""), 2)
	assert.Equal(t, product.Categories(), env.store.Categories())
}

func TestStore_Search(t *testing.T) {
	env := newTestEnv(t, Options{},
		product.Product{ID: 1, Name: "Studio Headphones", Price: decimal.NewFromInt(5), Category: product.CategoryAudio},
		product.Product{ID: 2, Name: "Gamepad", Description: "Wireless, with HEADPHONE jack", Price: decimal.NewFromInt(5), Category: product.CategoryGaming},
		product.Product{ID: 3, Name: "Dock", Price: decimal.NewFromInt(5), Category: product.CategoryLaptops},
	)
	env.store.LoadCatalog(context.Background())

	got := env.store.Search("headphone")
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)
	assert.Len(t, env.store.Search(""), 3)
	assert.Empty(t, env.store.Search("tablet"))
}

func TestStore_ReplaceCatalog(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestProduct(1, "10.00"))
	env.store.LoadCatalog(context.Background())
	env.store.AddToCart(env.store.Catalog()[0])

	var notified int
	env.store.Subscribe(func(Snapshot) { notified++ })

	imported := []product.Product{newTestProduct(7, "3.00"), newTestProduct(8, "4.00")}
	env.store.ReplaceCatalog(imported)
	imported[0].Name = "changed"

	catalog := env.store.Catalog()
	require.Len(t, catalog, 2)
	assert.Equal(t, "Product", catalog[0].Name)
	assert.Equal(t, 1, env.store.TotalItems())
	assert.Equal(t, 1, notified)
}

func TestStore_LoadCatalogFailureKeepsPrevious(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	env := newTestEnv(t, Options{
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}, newTestProduct(1, "10"))

	env.store.LoadCatalog(context.Background())
	require.Len(t, env.store.Catalog(), 1)

	env.srv.SetProducts()
	env.srv.Fail(http.MethodGet, "/products", http.StatusInternalServerError)
	env.store.LoadCatalog(context.Background())

	require.Len(t, env.store.Catalog(), 1)
	assert.Equal(t, int64(1), env.store.Catalog()[0].ID)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
	op, _ := sum.DataPoints[0].Attributes.Value("op")
	assert.Equal(t, "load_catalog", op.AsString())
}

func TestStore_PendingLoadKeepsPreviousState(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestProduct(1, "10"))
	env.store.LoadCatalog(context.Background())

	env.srv.SetProducts(newTestProduct(1, "10"), newTestProduct(2, "20"))
	release := env.srv.Block(http.MethodGet, "/products")

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.store.LoadCatalog(context.Background())
	}()

	require.Eventually(t, func() bool {
		return len(env.srv.RequestsTo(http.MethodGet, "/products")) == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, env.store.Catalog(), 1)

	release()
	<-done
	assert.Len(t, env.store.Catalog(), 2)
}

// --- Session ---

func TestStore_LoginLogout(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.srv.AddAccount("Jane Doe", "jane.doe@example.com", "secret")
	p := newTestProduct(1, "10.00")
	env.store.AddToCart(p)

	require.True(t, env.store.Login(context.Background(), "jane.doe@example.com", "secret"))

	user := env.store.User()
	require.NotNil(t, user)
	assert.Equal(t, "jane.doe@example.com", user.Email)
	assert.Equal(t, "jane.doe", user.Name)
	assert.True(t, env.store.Authenticated())
	assert.NotEmpty(t, storedToken(t, env.tokens))

	env.store.Logout(context.Background())

	assert.Nil(t, env.store.User())
	assert.False(t, env.store.Authenticated())
	assert.Empty(t, storedToken(t, env.tokens))
	assert.Equal(t, 1, env.store.TotalItems())
}

func TestStore_LoginResolvesProfileName(t *testing.T) {
	env := newTestEnv(t, Options{ResolveProfileOnLogin: true})
	env.srv.AddAccount("Jane Doe", "jane@example.com", "secret")

	require.True(t, env.store.Login(context.Background(), "jane@example.com", "secret"))
	assert.Equal(t, "Jane Doe", env.store.User().Name)
}

func TestStore_LoginResolveFailureFallsBack(t *testing.T) {
	env := newTestEnv(t, Options{ResolveProfileOnLogin: true})
	env.srv.AddAccount("Jane Doe", "jane@example.com", "secret")
	env.srv.Fail(http.MethodGet, "/auth/me", http.StatusBadGateway)

	require.True(t, env.store.Login(context.Background(), "jane@example.com", "secret"))
	assert.Equal(t, "jane", env.store.User().Name)
}

func TestStore_LoginWrongPassword(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.srv.AddAccount("Jane", "jane@example.com", "secret")

	assert.False(t, env.store.Login(context.Background(), "jane@example.com", "nope"))
	assert.Nil(t, env.store.User())
	assert.False(t, env.store.Authenticated())
	assert.Empty(t, storedToken(t, env.tokens))
}

func TestStore_LoginTransportFailure(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.srv.Close()

	assert.False(t, env.store.Login(context.Background(), "jane@example.com", "secret"))
	assert.Nil(t, env.store.User())
}

func TestStore_LoginTokenSaveFailureKeepsSession(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	srv.AddAccount("Jane", "jane@example.com", "secret")
	client, err := backend.New(backend.Options{BaseURL: srv.URL})
	require.NoError(t, err)
	store, err := New(client, failingTokenStore{tokenstore.NewMemory()}, Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	require.True(t, store.Login(context.Background(), "jane@example.com", "secret"))
	assert.True(t, store.Authenticated())
}

func TestStore_Register(t *testing.T) {
	env := newTestEnv(t, Options{})

	require.True(t, env.store.Register(context.Background(), "Jane Doe", "jane@example.com", "secret"))
	assert.Equal(t, &session.User{Email: "jane@example.com", Name: "Jane Doe"}, env.store.User())
	assert.NotEmpty(t, storedToken(t, env.tokens))

	assert.False(t, env.store.Register(context.Background(), "Other", "jane@example.com", "x"))
	assert.Equal(t, "Jane Doe", env.store.User().Name)
}

func TestStore_Restore(t *testing.T) {
	env := newTestEnv(t, Options{})
	token := env.srv.AddAccount("Jane Doe", "jane@example.com", "secret")
	require.NoError(t, env.tokens.Save(context.Background(), token))

	require.True(t, env.store.Restore(context.Background()))
	assert.True(t, env.store.Authenticated())
	assert.Equal(t, &session.User{Email: "jane@example.com", Name: "Jane Doe"}, env.store.User())
}

func TestStore_RestoreWithoutToken(t *testing.T) {
	env := newTestEnv(t, Options{})

	assert.False(t, env.store.Restore(context.Background()))
	assert.False(t, env.store.Authenticated())
	assert.Empty(t, env.srv.Requests())
}

func TestStore_RestoreUnresolvedKeepsToken(t *testing.T) {
	env := newTestEnv(t, Options{})
	require.NoError(t, env.tokens.Save(context.Background(), "stale"))

	require.True(t, env.store.Restore(context.Background()))
	assert.True(t, env.store.Authenticated())
	assert.Nil(t, env.store.User())
}

func TestStore_UpdateProfile(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.srv.AddAccount("Jane", "jane@example.com", "secret")
	require.True(t, env.store.Login(context.Background(), "jane@example.com", "secret"))

	ok := env.store.UpdateProfile(context.Background(), session.ProfileUpdate{Name: "Jane Roe", Email: "roe@example.com"})

	require.True(t, ok)
	assert.Equal(t, &session.User{Email: "roe@example.com", Name: "Jane Roe"}, env.store.User())
}

func TestStore_UpdateProfileWithoutToken(t *testing.T) {
	env := newTestEnv(t, Options{})

	assert.False(t, env.store.UpdateProfile(context.Background(), session.ProfileUpdate{Name: "X"}))
	assert.Nil(t, env.store.User())
	assert.Empty(t, env.srv.RequestsTo(http.MethodPut, "/auth/me"))
}

func TestStore_UpdateProfileFailureKeepsSession(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.srv.AddAccount("Jane", "jane@example.com", "secret")
	require.True(t, env.store.Login(context.Background(), "jane@example.com", "secret"))
	env.srv.Fail(http.MethodPut, "/auth/me", http.StatusInternalServerError)

	assert.False(t, env.store.UpdateProfile(context.Background(), session.ProfileUpdate{Name: "X"}))
	assert.Equal(t, "jane", env.store.User().Name)
}

func TestStore_UpdateProfileAfterLogoutIsDropped(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.srv.AddAccount("Jane", "jane@example.com", "secret")
	require.True(t, env.store.Login(context.Background(), "jane@example.com", "secret"))
	release := env.srv.Block(http.MethodPut, "/auth/me")

	result := make(chan bool, 1)
	go func() {
		result <- env.store.UpdateProfile(context.Background(), session.ProfileUpdate{Name: "X"})
	}()
	require.Eventually(t, func() bool {
		return len(env.srv.RequestsTo(http.MethodPut, "/auth/me")) == 1
	}, 5*time.Second, 10*time.Millisecond)

	env.store.Logout(context.Background())
	release()

	assert.False(t, <-result)
	assert.Nil(t, env.store.User())
}

// --- Account ---

func TestStore_FetchOrdersAndActivity(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestProduct(1, "10.00"), newTestProduct(2, "2.50"))
	env.srv.AddAccount("Jane", "jane@example.com", "secret")
	env.srv.AddOrder("jane@example.com", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), map[int64]int{1: 2, 2: 1})
	require.True(t, env.store.Login(context.Background(), "jane@example.com", "secret"))

	orders := env.store.FetchOrders(context.Background())
	require.Len(t, orders, 1)
	assert.True(t, decimal.RequireFromString("22.50").Equal(orders[0].TotalPrice))

	activity := env.store.FetchActivity(context.Background())
	require.NotNil(t, activity)
	assert.Equal(t, 1, activity.TotalOrders)
	require.NotNil(t, activity.LastOrderDate)
}

func TestStore_FetchWithoutSession(t *testing.T) {
	env := newTestEnv(t, Options{})

	orders := env.store.FetchOrders(context.Background())
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
	assert.Nil(t, env.store.FetchActivity(context.Background()))
	assert.Empty(t, env.srv.Requests())
}

func TestStore_Dashboard(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestProduct(1, "10.00"))
	env.srv.AddAccount("Jane", "jane@example.com", "secret")
	env.srv.AddOrder("jane@example.com", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), map[int64]int{1: 1})
	require.True(t, env.store.Login(context.Background(), "jane@example.com", "secret"))
	env.srv.Fail(http.MethodGet, "/auth/me/activity", http.StatusInternalServerError)

	d := env.store.Dashboard(context.Background())

	assert.Len(t, d.Orders, 1)
	assert.Nil(t, d.Activity)
}

// --- Checkout ---

func TestStore_CheckoutEmptyCart(t *testing.T) {
	env := newTestEnv(t, Options{})

	_, err := env.store.Checkout(context.Background())
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestStore_CheckoutClearsCart(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	env := newTestEnv(t, Options{Now: func() time.Time { return now }})
	env.store.AddToCart(newTestProduct(1, "10.00"))
	env.store.AddToCart(newTestProduct(1, "10.00"))

	receipt, err := env.store.Checkout(context.Background())
	require.NoError(t, err)

	assert.Len(t, receipt.ID, 36)
	assert.Equal(t, 2, receipt.TotalItems)
	assert.True(t, decimal.RequireFromString("20.00").Equal(receipt.Total))
	assert.Equal(t, now, receipt.PlacedAt)
	assert.Nil(t, receipt.Order)
	assert.Zero(t, env.store.TotalItems())
}

func TestStore_CheckoutKeepsItemsAddedDuringPayment(t *testing.T) {
	var env *testEnv
	late := newTestProduct(2, "5.00")
	env = newTestEnv(t, Options{Now: func() time.Time {
		// Runs after the payment delay, before the paid lines are removed.
		env.store.AddToCart(late)
		env.store.AddToCart(newTestProduct(1, "10.00"))
		return time.Time{}
	}})
	env.store.AddToCart(newTestProduct(1, "10.00"))

	receipt, err := env.store.Checkout(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, receipt.TotalItems)
	lines := env.store.Cart().Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, cart.Line{Product: newTestProduct(1, "10.00"), Quantity: 1}, lines[0])
	assert.Equal(t, cart.Line{Product: late, Quantity: 1}, lines[1])
}

func TestStore_CheckoutCancelledKeepsCart(t *testing.T) {
	env := newTestEnv(t, Options{CheckoutDelay: time.Hour})
	env.store.AddToCart(newTestProduct(1, "10.00"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.store.Checkout(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, env.store.TotalItems())
}

func TestStore_CheckoutSubmitsOrder(t *testing.T) {
	env := newTestEnv(t, Options{SubmitOrders: true}, newTestProduct(1, "10.00"))
	env.srv.AddAccount("Jane", "jane@example.com", "secret")
	require.True(t, env.store.Login(context.Background(), "jane@example.com", "secret"))
	env.store.LoadCatalog(context.Background())
	env.store.AddToCart(env.store.Catalog()[0])

	receipt, err := env.store.Checkout(context.Background())
	require.NoError(t, err)

	require.NotNil(t, receipt.Order)
	assert.Equal(t, 1, env.srv.OrderCount("jane@example.com"))
	assert.Zero(t, env.store.TotalItems())
}

func TestStore_CheckoutSubmitFailureKeepsCart(t *testing.T) {
	env := newTestEnv(t, Options{SubmitOrders: true}, newTestProduct(1, "10.00"))
	env.srv.AddAccount("Jane", "jane@example.com", "secret")
	require.True(t, env.store.Login(context.Background(), "jane@example.com", "secret"))
	env.srv.Fail(http.MethodPost, "/orders", http.StatusBadRequest)
	env.store.AddToCart(newTestProduct(1, "10.00"))

	_, err := env.store.Checkout(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, env.store.TotalItems())
}

func TestStore_CheckoutAsGuestSkipsSubmit(t *testing.T) {
	env := newTestEnv(t, Options{SubmitOrders: true})
	env.store.AddToCart(newTestProduct(1, "10.00"))

	_, err := env.store.Checkout(context.Background())
	require.NoError(t, err)
	assert.Empty(t, env.srv.RequestsTo(http.MethodPost, "/orders"))
}

// --- Subscribers ---

func TestStore_SubscribeReceivesSnapshots(t *testing.T) {
	env := newTestEnv(t, Options{})

	var got []int
	unsubscribe := env.store.Subscribe(func(s Snapshot) {
		got = append(got, s.TotalItems())
	})

	env.store.AddToCart(newTestProduct(1, "1"))
	env.store.AddToCart(newTestProduct(1, "1"))
	env.store.ClearCart()
	unsubscribe()
	env.store.AddToCart(newTestProduct(1, "1"))

	assert.Equal(t, []int{1, 2, 0}, got)
}

func TestStore_SubscriberMayReadStore(t *testing.T) {
	env := newTestEnv(t, Options{})

	var total int
	env.store.Subscribe(func(Snapshot) {
		total = env.store.TotalItems()
	})
	env.store.AddToCart(newTestProduct(1, "1"))

	assert.Equal(t, 1, total)
}

func TestStore_ConcurrentMutations(t *testing.T) {
	env := newTestEnv(t, Options{})
	p := newTestProduct(1, "1.00")

	var (
		mu   sync.Mutex
		seen []int
	)
	env.store.Subscribe(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s.TotalItems())
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.store.AddToCart(p)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, env.store.TotalItems())
	require.Len(t, seen, 50)
	for i, n := range seen {
		assert.Equal(t, i+1, n)
	}
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	env := newTestEnv(t, Options{}, newTestProduct(1, "10"))
	env.store.LoadCatalog(context.Background())
	require.True(t, env.store.Register(context.Background(), "Jane", "jane@example.com", "x"))

	snap := env.store.Snapshot()
	snap.Catalog[0].Name = "changed"
	snap.User.Name = "changed"

	assert.Equal(t, "Product", env.store.Catalog()[0].Name)
	assert.Equal(t, "Jane", env.store.User().Name)
}
