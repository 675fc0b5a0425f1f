package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamefolio/backend/internal/apperr"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("sign in: %w", apperr.InvalidCredentials())

	assert.True(t, errors.Is(err, apperr.ErrInvalidCredentials))
	assert.False(t, errors.Is(err, apperr.ErrEmailUnconfirmed))
	assert.Equal(t, apperr.KindInvalidCredentials, apperr.KindOf(err))
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(errors.New("boom")))
}

func TestWithCauseKeepsMessage(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := apperr.UpstreamUnavailable("Game catalog").WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Game catalog is currently unavailable", err.Message)
	assert.Equal(t, http.StatusBadGateway, err.Status)
}

func TestFromCode(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   apperr.Kind
	}{
		{"known_code", http.StatusConflict, "DUPLICATE_ACCOUNT", apperr.KindDuplicateAccount},
		{"gate_code", http.StatusForbidden, "ONBOARDING_REQUIRED", apperr.KindForbidden},
		{"unknown_code_by_status", http.StatusTooManyRequests, "SLOW_DOWN", apperr.KindRateLimited},
		{"unknown_5xx", http.StatusInternalServerError, "", apperr.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := apperr.FromCode(tt.status, tt.code, "")
			require.NotNil(t, err)
			assert.Equal(t, tt.want, err.Kind)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestRateLimitedMessage(t *testing.T) {
	err := apperr.RateLimited(42)
	assert.Equal(t, 42, err.RetryAfter)
	assert.Contains(t, err.Message, "42s")
}
