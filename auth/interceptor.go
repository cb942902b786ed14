package auth

import (
	"context"
	"net/http"
	"reading-room/contract"
	"reading-room/domain"
	"strings"
)

type contextKey string

const identityKey contextKey = "identity"

// TokenFromRequest reads the handshake token from the Authorization header,
// falling back to the "token" query parameter browsers use for websockets.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		// Expecting the standard "Bearer <token>" format
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// Middleware answers 401 before anything downstream runs.
// The validated identity is injected into the request context.
func Middleware(validator contract.ITokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := validator.Validate(TokenFromRequest(r))
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func WithIdentity(ctx context.Context, identity domain.PublicParticipant) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFrom(ctx context.Context) (domain.PublicParticipant, bool) {
	identity, ok := ctx.Value(identityKey).(domain.PublicParticipant)
	return identity, ok
}
