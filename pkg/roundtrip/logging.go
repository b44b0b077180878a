package roundtrip

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Logging returns a middleware that logs every outbound request at debug
// level using the logger carried by the request context (see zctx).
func Logging() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return Func(func(req *http.Request) (*http.Response, error) {
			lg := zctx.From(req.Context())
			if lg == nil {
				lg = zap.NewNop()
			}
			start := time.Now()

			resp, err := next.RoundTrip(req)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("request_id", req.Header.Get(HeaderRequestID)),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				lg.Debug("Backend request failed", append(fields, zap.Error(err))...)
				return nil, err
			}
			lg.Debug("Backend request", append(fields, zap.Int("status", resp.StatusCode))...)
			return resp, nil
		})
	}
}
