// Package identity provides anonymous per-device identity primitives.
//
// Players are identified by an opaque external ID supplied in the
// X-External-Id header. Browsers that cannot set headers fall back to a
// long-lived cookie; a missing identity gets one minted on first contact.
// Users are created lazily on first sight of an external ID.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/haigui-labs/soupserver/internal/domain"
)

const (
	ExternalIDHeader = "X-External-Id"
	AnonCookieName   = "soup_anon_id"
	anonCookieMaxAge = 30 * 24 * time.Hour
)

type contextKey int

const (
	userKey contextKey = iota
)

var externalIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// UserFromContext extracts the resolved user from the request context. It
// returns nil outside the identity middleware.
func UserFromContext(ctx context.Context) *domain.User {
	if u, ok := ctx.Value(userKey).(*domain.User); ok {
		return u
	}
	return nil
}

// WithUser returns a context carrying the resolved user. Exposed for tests
// and non-HTTP callers.
func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func generateExternalID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate external id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidExternalID(id string) bool {
	return externalIDPattern.MatchString(id)
}

// UserRepository is the slice of the store a Resolver needs.
type UserRepository interface {
	GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	CreateUser(ctx context.Context, externalID string) (*domain.User, error)
}

// Resolver turns external IDs into users, creating them on first sight.
type Resolver struct {
	repo UserRepository
}

// NewResolver creates a resolver backed by repo.
func NewResolver(repo UserRepository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the user for externalID, creating it if unseen.
func (r *Resolver) Resolve(ctx context.Context, externalID string) (*domain.User, error) {
	user, err := r.repo.GetUserByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user != nil {
		return user, nil
	}
	user, err = r.repo.CreateUser(ctx, externalID)
	if err != nil {
		// Lost a create race with a concurrent first request; re-read.
		if existing, lookupErr := r.repo.GetUserByExternalID(ctx, externalID); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func externalIDFromRequest(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if id := r.Header.Get(ExternalIDHeader); isValidExternalID(id) {
		return id, nil
	}
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidExternalID(c.Value) {
		return c.Value, nil
	}

	id, err := generateExternalID()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
	return id, nil
}

// Middleware resolves the caller's identity and stores the user in the
// request context. Every route behind it can assume a non-nil user.
func Middleware(resolver *Resolver, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			externalID, err := externalIDFromRequest(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":{"code":"UNAUTHORIZED","message":"failed to establish identity"}}`, http.StatusInternalServerError)
				return
			}

			user, err := resolver.Resolve(r.Context(), externalID)
			if err != nil {
				http.Error(w, `{"error":{"code":"INTERNAL","message":"failed to initialize user"}}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
