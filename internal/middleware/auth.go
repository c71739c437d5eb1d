package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"clinic-crm/internal/access"
	"clinic-crm/internal/auth"
	"clinic-crm/internal/transport"
)

const AccessCookie = "crm_access"

// IdentityResolver maps a token subject to the current user record.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID string) (access.Identity, error)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(AccessCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// Authenticate resolves the caller from a bearer token or the access cookie
// and stores the identity in the request context. The role always comes from
// the stored user, never from the token.
func Authenticate(manager *auth.Manager, resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if manager == nil {
				transport.WriteError(w, http.StatusServiceUnavailable, "auth not configured", nil)
				return
			}

			token := bearerToken(r)
			if token == "" {
				transport.WriteError(w, http.StatusUnauthorized, access.ErrUnauthenticated.Error(), nil)
				return
			}
			claims, err := manager.Parse(token, auth.KindAccess)
			if err != nil {
				transport.WriteError(w, http.StatusUnauthorized, "invalid token", nil)
				return
			}

			identity, err := resolver.Resolve(r.Context(), claims.UserID())
			if err != nil {
				if transport.WriteAccessError(w, err) {
					return
				}
				transport.WriteError(w, http.StatusInternalServerError, "identity lookup failed", nil)
				return
			}
			if err := access.Authorize(&identity); err != nil {
				transport.WriteAccessError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(access.WithIdentity(r.Context(), identity)))
		})
	}
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := access.FromContext(r.Context())
		if err == nil {
			err = access.RequireAdmin(identity)
		}
		if err != nil {
			transport.WriteAccessError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireKey guards machine-to-machine endpoints with a shared secret header.
func RequireKey(header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				transport.WriteError(w, http.StatusServiceUnavailable, "endpoint not configured", nil)
				return
			}
			if subtle.ConstantTimeCompare([]byte(r.Header.Get(header)), []byte(key)) != 1 {
				transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
