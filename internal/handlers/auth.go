package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/logging"
	"github.com/gamefolio/backend/internal/middleware"
)

const defaultKeepAlive = 25 * time.Second

// AuthHandler implements the credential and session endpoints.
type AuthHandler struct {
	Auth      AuthService
	KeepAlive time.Duration
}

type signUpRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required_without=Email,max=254"`
	Email      string `json:"email" validate:"max=254"`
	Password   string `json:"password" validate:"required,max=72"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,max=72"`
}

// SignUp handles POST /auth/signup.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	result, err := h.Auth.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, result)
}

// Login handles POST /auth/login. The identifier is an email or a username.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}

	result, err := h.Auth.SignIn(ctx, identifier, req.Password)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, result)
}

// Refresh handles POST /auth/refresh.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	result, err := h.Auth.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, result)
}

// Logout handles POST /auth/logout. Without a refresh token every session of
// the caller is revoked.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req logoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(ctx, w, err)
			return
		}
	}

	if err := h.Auth.SignOut(ctx, middleware.UserID(ctx), strings.TrimSpace(req.RefreshToken)); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResendConfirmation handles POST /auth/resend-confirmation.
func (h AuthHandler) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.Auth.ResendConfirmation(ctx, req.Email); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusAccepted, statusResponse{
		Status: "If that account still needs confirming, a new email is on its way.",
	})
}

// ConfirmEmail handles POST /auth/confirm.
func (h AuthHandler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.Auth.ConfirmEmail(ctx, req.Token); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, statusResponse{Status: "Email confirmed. You can sign in now."})
}

// RequestPasswordReset handles POST /auth/password-reset.
func (h AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.Auth.RequestPasswordReset(ctx, req.Email); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusAccepted, statusResponse{
		Status: "If an account exists for that email, password reset instructions have been sent.",
	})
}

// ResetPassword handles POST /auth/password-reset/confirm.
func (h AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.Auth.ResetPassword(ctx, req.Token, req.Password); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, statusResponse{Status: "Password updated. Please sign in again."})
}

// Events handles GET /auth/events as a server-sent event stream of the
// caller's session changes.
func (h AuthHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	events, cancel, err := h.Auth.Subscribe(ctx, middleware.UserID(ctx))
	if err != nil {
		respondError(ctx, w, apperr.UpstreamUnavailable("Session events").WithCause(err))
		return
	}
	defer cancel()

	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		logger.Error("event stream cannot flush", "error", err)
		return
	}

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error("encode session event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
