// Package auth resolves API credentials to user identities.
//
// The model is deliberately small: a static bearer-token table maps each
// token to a user id, and handlers read the resolved id from the request
// context. Every storage query downstream is scoped by that id.
package auth

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
)

// ErrUnauthorized is returned when a request carries no credential or an
// unknown one.
var ErrUnauthorized = errors.New("unauthorized")

type contextKey struct{}

// WithUser returns a context carrying the authenticated user id.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserFromContext returns the authenticated user id, or "" if none is set.
func UserFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(contextKey{}).(string)
	return userID
}

// Authenticator maps bearer tokens to user ids
type Authenticator struct {
	tokens map[string]string
}

// New creates an authenticator from a token -> user id table
func New(tokens map[string]string) *Authenticator {
	if tokens == nil {
		tokens = map[string]string{}
	}
	return &Authenticator{tokens: tokens}
}

// FromEnv builds a single-user authenticator from SENSEI_API_TOKEN and
// SENSEI_USER_ID. Returns nil when SENSEI_API_TOKEN is unset; callers treat
// that as auth disabled (local single-user mode).
func FromEnv() *Authenticator {
	token := os.Getenv("SENSEI_API_TOKEN")
	if token == "" {
		return nil
	}
	userID := os.Getenv("SENSEI_USER_ID")
	if userID == "" {
		userID = "local"
	}
	return New(map[string]string{token: userID})
}

// Resolve maps a bearer token to a user id
func (a *Authenticator) Resolve(token string) (string, error) {
	userID, ok := a.tokens[token]
	if !ok {
		return "", ErrUnauthorized
	}
	return userID, nil
}

// UserFromRequest extracts the bearer token from the Authorization header
// and resolves it to a user id.
func (a *Authenticator) UserFromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrUnauthorized
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", ErrUnauthorized
	}
	return a.Resolve(token)
}

// Middleware authenticates each request and stores the user id in the
// request context. A nil *Authenticator disables auth and runs every
// request as the fallback user id.
func (a *Authenticator) Middleware(fallbackUser string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil {
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), fallbackUser)))
			return
		}
		userID, err := a.UserFromRequest(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"success":false,"error":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}
