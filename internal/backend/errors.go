package backend

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
)

// ErrNoToken is returned when an authenticated call is made without a
// session token.
var ErrNoToken = errors.New("missing session token")

// StatusError reports a non-success HTTP status from the backend.
type StatusError struct {
	Op   string
	Code int
	// Detail is the backend's error message, when it sent one.
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Code)
}

// IsUnauthorized reports whether err is a 401 response or a missing token.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrNoToken) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusUnauthorized
}
