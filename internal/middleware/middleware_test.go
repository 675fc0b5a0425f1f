package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/auth"
	"github.com/gamefolio/backend/internal/models"
)

type verifierStub struct{}

func (verifierStub) Authenticate(token string) (auth.Claims, error) {
	if token != "good" {
		return auth.Claims{}, apperr.Unauthorized("Invalid or expired session")
	}
	return auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}, Email: "a@b.c"}, nil
}

type gateStub struct {
	profile models.Profile
	err     error
}

func (g gateStub) Gate(context.Context, string) (models.Profile, error) {
	return g.profile, g.err
}

type roleStub map[string]string

func (r roleStub) Role(_ context.Context, userID string) (string, error) {
	if role, ok := r[userID]; ok {
		return role, nil
	}
	return models.RoleUser, nil
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, UserID(r.Context()))
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestAuthenticate(t *testing.T) {
	handler := Authenticate(verifierStub{})(echoUser())

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusOK},
		{"case insensitive scheme", "bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "user-1", rec.Body.String())
			}
		})
	}
}

func TestAuthenticateAcceptsQueryTokenForEvents(t *testing.T) {
	handler := Authenticate(verifierStub{})(echoUser())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/events?access_token=good", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/me?access_token=good", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalAuthenticateServesAnonymous(t *testing.T) {
	handler := OptionalAuthenticate(verifierStub{})(echoUser())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/explore", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRequireOnboarded(t *testing.T) {
	handle := "player_one"
	games := []string{"a", "b", "c", "d", "e"}

	cases := []struct {
		name    string
		profile models.Profile
		status  int
		code    string
	}{
		{"placeholder handle", models.Profile{Username: ptr("user_abc12345")}, http.StatusForbidden, "USERNAME_REQUIRED"},
		{"no games", models.Profile{Username: &handle}, http.StatusForbidden, "ONBOARDING_REQUIRED"},
		{"banned", models.Profile{Username: &handle, FavoriteGames: games, OnboardingCompleted: true, Banned: true}, http.StatusForbidden, "BANNED"},
		{"complete", models.Profile{Username: &handle, FavoriteGames: games, OnboardingCompleted: true}, http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := RequireOnboarded(gateStub{profile: tc.profile})(echoUser())
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tc.status, rec.Code)
			if tc.code != "" {
				assert.Equal(t, tc.code, decodeError(t, rec).Code)
			}
		})
	}
}

func TestRequireOnboardedPropagatesLookupErrors(t *testing.T) {
	handler := RequireOnboarded(gateStub{err: errors.New("db down")})(echoUser())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
}

func TestRequireRole(t *testing.T) {
	roles := roleStub{"admin-1": models.RoleAdmin}
	handler := Authenticate(verifierStub{})(RequireRole(models.RoleAdmin, roles)(echoUser()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	roles["user-1"] = models.RoleAdmin
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIPRateLimiterRefillsOverTime(t *testing.T) {
	limiter := NewIPRateLimiter(1, time.Second, 2, time.Minute).(*keyedRateLimiter)
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }

	ok, _ := limiter.Allow("ip")
	assert.True(t, ok)
	ok, _ = limiter.Allow("ip")
	assert.True(t, ok)
	ok, wait := limiter.Allow("ip")
	assert.False(t, ok)
	assert.InDelta(t, time.Second, wait, float64(10*time.Millisecond))

	ok, _ = limiter.Allow("other-ip")
	assert.True(t, ok)

	now = now.Add(time.Second)
	ok, _ = limiter.Allow("ip")
	assert.True(t, ok)
}

func TestIPRateLimiterExpiresIdleVisitors(t *testing.T) {
	limiter := NewIPRateLimiter(1, time.Second, 1, time.Minute).(*keyedRateLimiter)
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }

	limiter.Allow("a")
	now = now.Add(2 * time.Minute)
	limiter.Allow("b")
	assert.NotContains(t, limiter.visitors, "a")
}

func TestRateLimitMiddlewareSetsRetryAfter(t *testing.T) {
	limiter := NewIPRateLimiter(1, time.Minute, 1, time.Minute)
	handler := RateLimit(limiter, "login")(echoUser())

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send().Code)
	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	body := decodeError(t, rec)
	assert.Equal(t, "RATE_LIMITED", body.Code)
	assert.Positive(t, body.RetryAfter)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	assert.Equal(t, "198.51.100.4", ClientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.1 ,10.0.0.1")
	assert.Equal(t, "203.0.113.1", ClientIP(req))
}

func TestRequestLoggerRecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/explode", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
}

func TestWriteErrorHidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), rec, errors.New("password=hunter2"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func ptr(s string) *string { return &s }
