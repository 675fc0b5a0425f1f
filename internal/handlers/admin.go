package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gamefolio/backend/internal/middleware"
	"github.com/gamefolio/backend/internal/models"
)

// AdminHandler serves the moderation endpoints.
type AdminHandler struct {
	Admin AdminService
}

type userListResponse struct {
	Users []models.UserWithRole `json:"users"`
}

type roleResponse struct {
	Role string `json:"role"`
}

type banResponse struct {
	Banned bool `json:"banned"`
}

type activityResponse struct {
	Activity []models.ActivityLog `json:"activity"`
}

// Users handles GET /admin/users.
func (h AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	users, err := h.Admin.Users(ctx, limit, offset)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, userListResponse{Users: users})
}

// ToggleRole handles POST /admin/users/{id}/role.
func (h AdminHandler) ToggleRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, err := h.Admin.ToggleRole(ctx, middleware.UserID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, roleResponse{Role: role})
}

// ToggleBan handles POST /admin/users/{id}/ban.
func (h AdminHandler) ToggleBan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	banned, err := h.Admin.ToggleBan(ctx, middleware.UserID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, banResponse{Banned: banned})
}

// ResetOnboarding handles POST /admin/users/{id}/reset-onboarding.
func (h AdminHandler) ResetOnboarding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Admin.ResetOnboarding(ctx, middleware.UserID(ctx), chi.URLParam(r, "id")); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendPasswordReset handles POST /admin/users/{id}/password-reset.
func (h AdminHandler) SendPasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Admin.SendPasswordReset(ctx, middleware.UserID(ctx), chi.URLParam(r, "id")); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusAccepted, statusResponse{Status: "Password reset email sent."})
}

// DeleteUser handles DELETE /admin/users/{id}.
func (h AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Admin.DeleteUser(ctx, middleware.UserID(ctx), chi.URLParam(r, "id")); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteClip handles DELETE /admin/clips/{id}.
func (h AdminHandler) DeleteClip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Admin.DeleteClip(ctx, middleware.UserID(ctx), chi.URLParam(r, "id")); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Activity handles GET /admin/activity.
func (h AdminHandler) Activity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logs, err := h.Admin.RecentActivity(ctx)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, activityResponse{Activity: logs})
}
