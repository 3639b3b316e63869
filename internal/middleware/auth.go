package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/tiretrack/server/internal/auth"
	"github.com/tiretrack/server/internal/model"
)

type contextKey string

const principalKey contextKey = "principal"

// SessionResolver resolves opaque session tokens and bearer tokens.
// *auth.Gateway implements it.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*auth.Principal, error)
	ResolveBearer(ctx context.Context, token string) (*auth.Principal, error)
}

// BearerToken returns the token of a Bearer Authorization header, or "".
// Other schemes are ignored.
func BearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// CookieToken returns the session cookie value, or "".
func CookieToken(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// SessionToken extracts the caller's token, preferring a Bearer header over
// the session cookie. bearer reports where it came from.
func SessionToken(r *http.Request, cookieName string) (token string, bearer bool) {
	if token := BearerToken(r); token != "" {
		return token, true
	}
	return CookieToken(r, cookieName), false
}

// RequireSession resolves the session cookie or bearer token and attaches the
// caller to the context. Unauthenticated requests get 401.
func RequireSession(resolver SessionResolver, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, bearer := SessionToken(r, cookieName)
			if token == "" {
				respondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			var p *auth.Principal
			var err error
			if bearer {
				p, err = resolver.ResolveBearer(r.Context(), token)
			} else {
				p, err = resolver.ResolveSession(r.Context(), token)
			}
			if errors.Is(err, auth.ErrSessionInvalid) {
				respondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if err != nil {
				log.Printf("Failed to resolve session: %v", err)
				respondWithError(w, http.StatusInternalServerError, "internal error")
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal returns the caller attached by RequireSession
func GetPrincipal(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*auth.Principal)
	return p, ok && p != nil
}

// GetUser returns the user attached to the request context (set by RequireSession)
func GetUser(ctx context.Context) (*model.User, bool) {
	p, ok := GetPrincipal(ctx)
	if !ok {
		return nil, false
	}
	return &p.User, true
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]any{"success": false, "error": message}
	_ = json.NewEncoder(w).Encode(response)
}
