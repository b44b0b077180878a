package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/techshop/internal/domain/order"
	"github.com/xenking/techshop/internal/domain/product"
	"github.com/xenking/techshop/internal/domain/session"
)

// CatalogLimit is the page size requested when loading the catalog.
const CatalogLimit = 100

const contentTypeJSON = "application/json"

var _ product.Source = (*Client)(nil)

// ListProducts fetches the product catalog. A timestamp query parameter
// defeats intermediate caches.
func (c *Client) ListProducts(ctx context.Context) ([]product.Product, error) {
	data, err := c.do(ctx, request{
		op:     "list products",
		method: http.MethodGet,
		path:   "/products",
		query: url.Values{
			"t":     {strconv.FormatInt(c.now().UnixMilli(), 10)},
			"limit": {strconv.Itoa(CatalogLimit)},
		},
	})
	if err != nil {
		return nil, err
	}
	return DecodeProducts(jx.DecodeBytes(data))
}

// Ping checks that the backend answers its root status endpoint with
// status "ok".
func (c *Client) Ping(ctx context.Context) error {
	data, err := c.do(ctx, request{
		op:     "ping",
		method: http.MethodGet,
		path:   "/",
	})
	if err != nil {
		return err
	}
	status, err := decodeStatus(jx.DecodeBytes(data))
	if err != nil {
		return err
	}
	if status != "ok" {
		return errors.Errorf("ping: backend status %q", status)
	}
	return nil
}

// Login exchanges credentials for an access token. Credentials are sent as
// form fields username and password.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	form := url.Values{
		"username": {email},
		"password": {password},
	}
	data, err := c.do(ctx, request{
		op:          "login",
		method:      http.MethodPost,
		path:        "/auth/login",
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		return "", err
	}
	return decodeToken(jx.DecodeBytes(data))
}

// Register creates an account and returns its access token.
func (c *Client) Register(ctx context.Context, name, email, password string) (string, error) {
	data, err := c.do(ctx, request{
		op:          "register",
		method:      http.MethodPost,
		path:        "/auth/register",
		body:        encodeRegister(name, email, password),
		contentType: contentTypeJSON,
	})
	if err != nil {
		return "", err
	}
	return decodeToken(jx.DecodeBytes(data))
}

// Me returns the account owning token.
func (c *Client) Me(ctx context.Context, token string) (session.User, error) {
	data, err := c.do(ctx, request{
		op:     "get profile",
		method: http.MethodGet,
		path:   "/auth/me",
		token:  token,
		auth:   true,
	})
	if err != nil {
		return session.User{}, err
	}
	return decodeUser(jx.DecodeBytes(data))
}

// UpdateMe applies a partial profile update and returns the updated account.
func (c *Client) UpdateMe(ctx context.Context, token string, upd session.ProfileUpdate) (session.User, error) {
	data, err := c.do(ctx, request{
		op:          "update profile",
		method:      http.MethodPut,
		path:        "/auth/me",
		token:       token,
		auth:        true,
		body:        encodeProfileUpdate(upd),
		contentType: contentTypeJSON,
	})
	if err != nil {
		return session.User{}, err
	}
	return decodeUser(jx.DecodeBytes(data))
}

// Orders returns the order history of the account owning token.
func (c *Client) Orders(ctx context.Context, token string) ([]order.Order, error) {
	data, err := c.do(ctx, request{
		op:     "list orders",
		method: http.MethodGet,
		path:   "/orders/me",
		token:  token,
		auth:   true,
	})
	if err != nil {
		return nil, err
	}
	return decodeOrders(jx.DecodeBytes(data))
}

// Activity returns the account activity summary.
func (c *Client) Activity(ctx context.Context, token string) (*order.Activity, error) {
	data, err := c.do(ctx, request{
		op:     "get activity",
		method: http.MethodGet,
		path:   "/auth/me/activity",
		token:  token,
		auth:   true,
	})
	if err != nil {
		return nil, err
	}
	return decodeActivity(jx.DecodeBytes(data))
}

// PlaceOrder submits an order for items and returns the created record.
func (c *Client) PlaceOrder(ctx context.Context, token string, items []order.PlaceItem) (*order.Order, error) {
	if len(items) == 0 {
		return nil, errors.New("place order: no items")
	}
	data, err := c.do(ctx, request{
		op:          "place order",
		method:      http.MethodPost,
		path:        "/orders",
		token:       token,
		auth:        true,
		body:        encodePlaceOrder(items),
		contentType: contentTypeJSON,
	})
	if err != nil {
		return nil, err
	}
	o, err := decodeOrder(jx.DecodeBytes(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	return &o, nil
}
