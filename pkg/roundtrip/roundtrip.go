// Package roundtrip provides composable middleware for outbound HTTP
// transports.
package roundtrip

import "net/http"

// Middleware decorates an http.RoundTripper.
type Middleware func(next http.RoundTripper) http.RoundTripper

// Func adapts a function to the http.RoundTripper interface.
type Func func(req *http.Request) (*http.Response, error)

// RoundTrip calls f(req).
func (f Func) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Wrap applies middlewares to base. The first middleware is the outermost,
// so it sees the request first and the response last.
func Wrap(base http.RoundTripper, middlewares ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(middlewares) - 1; i >= 0; i-- {
		base = middlewares[i](base)
	}
	return base
}
