// Package identity yields the stable user identifier the budget controller
// acts for. Sign-in itself happens elsewhere.
package identity

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
)

// ErrUnauthenticated is returned while no user identifier is available.
var ErrUnauthenticated = errors.New("unauthenticated")

// Provider returns the current user identifier.
type Provider interface {
	UserID(ctx context.Context) (string, error)
}

var validID = regexp.MustCompile(`^[A-Za-z0-9_.@-]{1,128}$`)

// Valid reports whether id can be used as a document path segment.
func Valid(id string) bool {
	return validID.MatchString(id)
}

// Static always returns the same identifier.
type Static string

func (s Static) UserID(context.Context) (string, error) {
	id := strings.TrimSpace(string(s))
	if !Valid(id) {
		return "", ErrUnauthenticated
	}
	return id, nil
}

type ctxKey struct{}

// WithUserID stores id in ctx.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Context reads the identifier placed by WithUserID or the header middleware.
type Context struct{}

func (Context) UserID(ctx context.Context) (string, error) {
	id, _ := ctx.Value(ctxKey{}).(string)
	if !Valid(id) {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// FromHeader extracts the user identifier set by the upstream auth proxy and
// stores it in the request context.
func FromHeader(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(header))
			if Valid(id) {
				r = r.WithContext(WithUserID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
