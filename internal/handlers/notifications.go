package handlers

import (
	"net/http"

	"github.com/gamefolio/backend/internal/middleware"
	"github.com/gamefolio/backend/internal/models"
)

// NotificationHandler serves the caller's notifications.
type NotificationHandler struct {
	Notifications NotificationService
}

type notificationListResponse struct {
	Notifications []models.Notification `json:"notifications"`
}

type unreadResponse struct {
	Unread int64 `json:"unread"`
}

// List handles GET /notifications. Listed notifications are marked read.
func (h NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Notifications.List(ctx, middleware.UserID(ctx))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, notificationListResponse{Notifications: list})
}

// Unread handles GET /notifications/unread.
func (h NotificationHandler) Unread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := h.Notifications.Unread(ctx, middleware.UserID(ctx))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, unreadResponse{Unread: count})
}
