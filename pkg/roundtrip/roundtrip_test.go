package roundtrip

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureTransport records the last request and replies with 204.
type captureTransport struct {
	last *http.Request
	err  error
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.last = req
	if c.err != nil {
		return nil, c.err
	}
	return &http.Response{
		StatusCode: http.StatusNoContent,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func newRequest(t *testing.T, ctx context.Context) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://backend.test/products", nil)
	require.NoError(t, err)
	return req
}

func TestRequestID_GeneratesID(t *testing.T) {
	base := &captureTransport{}
	rt := Wrap(base, RequestID())

	req := newRequest(t, context.Background())
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	id := base.last.Header.Get(HeaderRequestID)
	assert.Len(t, id, 36)
	assert.Empty(t, req.Header.Get(HeaderRequestID), "caller request must not be modified")
}

func TestRequestID_FromContext(t *testing.T) {
	base := &captureTransport{}
	rt := Wrap(base, RequestID())

	resp, err := rt.RoundTrip(newRequest(t, WithRequestID(context.Background(), "trace-42")))
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "trace-42", base.last.Header.Get(HeaderRequestID))
}

func TestRequestID_HeaderWins(t *testing.T) {
	base := &captureTransport{}
	rt := Wrap(base, RequestID())

	req := newRequest(t, WithRequestID(context.Background(), "from-ctx"))
	req.Header.Set(HeaderRequestID, "from-header")
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "from-header", base.last.Header.Get(HeaderRequestID))
}

func TestRequestID_InvalidReplaced(t *testing.T) {
	base := &captureTransport{}
	rt := Wrap(base, RequestID())

	req := newRequest(t, context.Background())
	req.Header.Set(HeaderRequestID, "bad\x01id")
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.NotEqual(t, "bad\x01id", base.last.Header.Get(HeaderRequestID))
	assert.Len(t, base.last.Header.Get(HeaderRequestID), 36)
}

func TestIsValidRequestID(t *testing.T) {
	assert.False(t, isValidRequestID(""))
	assert.False(t, isValidRequestID(strings.Repeat("a", 129)))
	assert.True(t, isValidRequestID(strings.Repeat("a", 128)))
	assert.False(t, isValidRequestID("tab\tid"))
	assert.True(t, isValidRequestID("req 1~"))
}

func TestWrap_Order(t *testing.T) {
	var calls []string
	mark := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return Func(func(req *http.Request) (*http.Response, error) {
				calls = append(calls, name)
				return next.RoundTrip(req)
			})
		}
	}

	rt := Wrap(&captureTransport{}, mark("outer"), mark("inner"))
	resp, err := rt.RoundTrip(newRequest(t, context.Background()))
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, []string{"outer", "inner"}, calls)
}

func TestLogging_PassesThroughError(t *testing.T) {
	base := &captureTransport{err: errors.New("connection refused")}
	rt := Wrap(base, Logging())

	_, err := rt.RoundTrip(newRequest(t, context.Background()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
