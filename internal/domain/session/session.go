package session

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// ErrNoToken is returned by a TokenStore when no token has been saved.
var ErrNoToken = errors.New("no session token")

// User is the display record of an authenticated customer.
type User struct {
	Email string
	Name  string
}

// ProfileUpdate is a partial change to the account. Empty fields are left
// unchanged.
type ProfileUpdate struct {
	Name     string
	Email    string
	Password string
}

// IsEmpty reports whether the update changes nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u.Name == "" && u.Email == "" && u.Password == ""
}

// TokenStore persists the bearer token. It is the only durable piece of
// session state.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Remove(ctx context.Context) error
}

// NameFromEmail derives a display name from the local part of an email
// address. Addresses without an '@' are returned unchanged.
func NameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
