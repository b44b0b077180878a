// Package backend is the HTTP client for the storefront API.
//
// Every method maps to one backend endpoint. Failures come back as ordinary
// errors: transport errors are wrapped, non-2xx responses become
// *StatusError, and authenticated calls made without a token fail with
// ErrNoToken before any request is sent.
package backend

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/techshop/pkg/roundtrip"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:8000"

// maxBodySize caps how much of a response body is read.
const maxBodySize = 8 << 20

// Options configures a Client.
type Options struct {
	// BaseURL is the backend root, e.g. http://localhost:8000.
	BaseURL string
	// Transport is the underlying transport. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
	// Timeout bounds every request. Zero means no timeout.
	Timeout        time.Duration
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// Now is used for the catalog cache-busting parameter.
	Now func() time.Time
}

// Client calls the storefront backend.
type Client struct {
	base *url.URL
	http *http.Client
	now  func() time.Time
}

// New creates a Client. The transport is instrumented with OpenTelemetry and
// wrapped with request ID and request logging middleware.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("invalid base url %q", opts.BaseURL)
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
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		base: base,
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: roundtrip.Wrap(
				otelhttp.NewTransport(transport,
					otelhttp.WithTracerProvider(opts.TracerProvider),
					otelhttp.WithMeterProvider(opts.MeterProvider),
				),
				roundtrip.RequestID(),
				roundtrip.Logging(),
			),
		},
		now: opts.Now,
	}, nil
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// request describes a single backend call.
type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	token       string
	auth        bool
	body        []byte
	contentType string
}

// do executes req and returns the response body of a 2xx response.
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	if req.auth && req.token == "" {
		return nil, ErrNoToken
	}

	u := *c.base
	u.Path = c.base.Path + req.path
	if req.query != nil {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: create request", req.op)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if req.auth {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", req.op)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrapf(err, "%s: read body", req.op)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Op:     req.op,
			Code:   resp.StatusCode,
			Detail: decodeDetail(data),
		}
	}
	return data, nil
}
