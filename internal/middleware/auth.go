package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/auth"
	"github.com/gamefolio/backend/internal/gate"
	"github.com/gamefolio/backend/internal/logging"
	"github.com/gamefolio/backend/internal/models"
)

// TokenVerifier validates bearer access tokens.
type TokenVerifier interface {
	Authenticate(accessToken string) (auth.Claims, error)
}

// GateLookup loads the profile a route gate is derived from.
type GateLookup interface {
	Gate(ctx context.Context, userID string) (models.Profile, error)
}

// RoleLookup returns the role of a user.
type RoleLookup interface {
	Role(ctx context.Context, userID string) (string, error)
}

type claimsKey struct{}

// UserID returns the authenticated user, or "" on anonymous requests.
func UserID(ctx context.Context) string {
	return logging.UserIDFromContext(ctx)
}

// ClaimsFromContext returns the verified token claims.
func ClaimsFromContext(ctx context.Context) (auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(auth.Claims)
	return c, ok
}

// Authenticate rejects requests without a valid bearer token.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				WriteError(r.Context(), w, apperr.Unauthorized("Missing bearer token"))
				return
			}
			claims, err := verifier.Authenticate(token)
			if err != nil {
				WriteError(r.Context(), w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuthenticate identifies the caller when a valid token is present
// and otherwise serves the request anonymously.
func OptionalAuthenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := bearerToken(r); token != "" {
				if claims, err := verifier.Authenticate(token); err == nil {
					r = r.WithContext(withClaims(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOnboarded lets a request through only once the caller chose a
// username and completed onboarding. Banned users are always refused.
func RequireOnboarded(lookup GateLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			profile, err := lookup.Gate(ctx, UserID(ctx))
			if err != nil {
				WriteError(ctx, w, err)
				return
			}
			if profile.Banned {
				WriteError(ctx, w, apperr.Forbidden("BANNED", "This account has been suspended"))
				return
			}
			switch gate.Derive(profile).Next() {
			case gate.StepUsername:
				WriteError(ctx, w, apperr.Forbidden("USERNAME_REQUIRED", "Choose a username to continue"))
				return
			case gate.StepOnboarding:
				WriteError(ctx, w, apperr.Forbidden("ONBOARDING_REQUIRED", "Pick your favorite games to continue"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole refuses callers that do not hold role.
func RequireRole(role string, lookup RoleLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			got, err := lookup.Role(ctx, UserID(ctx))
			if err != nil {
				WriteError(ctx, w, apperr.Internal(err))
				return
			}
			if got != role {
				WriteError(ctx, w, apperr.Unauthorized("Insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withClaims(ctx context.Context, claims auth.Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey{}, claims)
	return logging.WithUserID(ctx, claims.UserID())
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	// EventSource cannot set headers.
	if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/events") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
