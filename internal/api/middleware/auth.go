package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"voicebroker/internal/api/respond"
	"voicebroker/internal/services/identity"
	"voicebroker/pkg/auth"
	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

type contextKey string

const identityContextKey contextKey = "caller_identity"

const (
	// AdminKeyHeader carries the operator key on admin routes
	AdminKeyHeader = "X-Admin-Key"
	// WebhookSecretHeader carries the shared secret on provider callbacks
	WebhookSecretHeader = "X-Webhook-Secret"
)

// Authenticator resolves a caller token into an identity
type Authenticator interface {
	Resolve(ctx context.Context, token string) (*identity.Identity, error)
}

// Ensure identity.Resolver implements Authenticator
var _ Authenticator = (*identity.Resolver)(nil)

// AuthMiddleware requires a valid caller bearer token
type AuthMiddleware struct {
	authenticator Authenticator
	log           *logger.Logger
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authenticator Authenticator, log *logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
		log:           log.With("middleware", "auth"),
	}
}

// Handler rejects requests without a resolvable "Authorization: Bearer" token
// and stores the caller identity in the request context
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			respond.Error(w, r, m.log, errors.Wrap(errors.ErrUnauthenticated, "missing bearer token"))
			return
		}

		id, err := m.authenticator.Resolve(r.Context(), token)
		if err != nil {
			m.log.Warnw("Caller authentication failed", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			respond.Error(w, r, m.log, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext returns the authenticated caller, or nil
func IdentityFromContext(ctx context.Context) *identity.Identity {
	id, ok := ctx.Value(identityContextKey).(*identity.Identity)
	if !ok {
		return nil
	}
	return id
}

// WithIdentity stores id in ctx. Used by tests of handlers behind the auth middleware.
func WithIdentity(ctx context.Context, id *identity.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// RequireSecret rejects requests whose header does not match secret.
// An empty secret rejects every request.
func RequireSecret(header, secret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				respond.Error(w, r, log, errors.Wrapf(errors.ErrUnauthenticated, "bad %s", header))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
