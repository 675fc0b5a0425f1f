package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/logging"
)

// ErrorBody is the JSON shape of every failed response.
type ErrorBody struct {
	Error      string              `json:"error"`
	Code       string              `json:"code"`
	RetryAfter int                 `json:"retryAfter,omitempty"`
	Details    []apperr.FieldError `json:"details,omitempty"`
}

// WriteJSON encodes payload with status.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
	}
}

// WriteError renders err as an ErrorBody. Foreign errors become a generic
// internal error; their cause is logged, never returned.
func WriteError(ctx context.Context, w http.ResponseWriter, err error) {
	appErr := apperr.As(err)
	if appErr == nil {
		appErr = apperr.Internal(err)
	}
	status := appErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "code", appErr.Code, "error", err)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "code", appErr.Code, "message", appErr.Message)
	}

	if appErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfter))
	}
	WriteJSON(ctx, w, status, ErrorBody{
		Error:      appErr.Message,
		Code:       appErr.Code,
		RetryAfter: appErr.RetryAfter,
		Details:    appErr.Details,
	})
}
