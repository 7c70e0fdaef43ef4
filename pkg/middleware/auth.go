package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mabgcm/turkiyedental2-sub001/pkg/httputil"
)

type contextKeyType string

const identityKey contextKeyType = "identity"

// Identity is the signed-in caller as reported by the authentication
// collaborator.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// TokenValidator verifies a bearer token and returns the identity it carries.
type TokenValidator func(token string) (*Identity, error)

// Authenticate rejects requests without a valid bearer token and stores the
// caller's Identity in the request context.
func Authenticate(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, msg := bearerToken(r)
			if msg != "" {
				writeAuthError(w, msg)
				return
			}

			id, err := validate(token)
			if err != nil || id == nil || id.UserID == "" {
				writeAuthError(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), *id)))
		})
	}
}

func bearerToken(r *http.Request) (token, problem string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing authorization header"
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", "invalid authorization header format"
	}
	return strings.TrimSpace(parts[1]), ""
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the authenticated caller, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// UserIDFromContext returns the authenticated user id or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.UserID
}

func writeAuthError(w http.ResponseWriter, message string) {
	httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: message},
	})
}
