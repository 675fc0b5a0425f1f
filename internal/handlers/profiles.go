package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/gate"
	"github.com/gamefolio/backend/internal/middleware"
	"github.com/gamefolio/backend/internal/models"
)

const maxAvatarBytes = 5 << 20

// ProfileHandler serves the caller's gamefolio and public profiles.
type ProfileHandler struct {
	Profiles ProfileService
	Clips    ClipService
}

type meUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type meResponse struct {
	User    meUser         `json:"user"`
	Profile models.Profile `json:"profile"`
	Gate    gate.State     `json:"gate"`
}

type usernameRequest struct {
	Username string `json:"username" validate:"required,max=30"`
}

type onboardingRequest struct {
	FavoriteGames []string `json:"favoriteGames" validate:"required"`
}

type settingsRequest struct {
	Bio         *string           `json:"bio" validate:"omitempty,max=500"`
	SocialLinks map[string]string `json:"socialLinks"`
}

// Me handles GET /me.
func (h ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, _ := middleware.ClaimsFromContext(ctx)

	me, err := h.Profiles.Me(ctx, claims.UserID())
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, meResponse{
		User:    meUser{ID: claims.UserID(), Email: claims.Email},
		Profile: me.Profile,
		Gate:    me.Gate,
	})
}

// Availability handles GET /usernames/{name}/availability.
func (h ProfileHandler) Availability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.Profiles.Availability(ctx, chi.URLParam(r, "name"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, result)
}

// SetUsername handles PUT /me/username.
func (h ProfileHandler) SetUsername(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req usernameRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	profile, err := h.Profiles.SetUsername(ctx, middleware.UserID(ctx), req.Username)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, profile)
}

// CompleteOnboarding handles PUT /me/onboarding.
func (h ProfileHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req onboardingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	profile, err := h.Profiles.CompleteOnboarding(ctx, middleware.UserID(ctx), req.FavoriteGames)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, profile)
}

// UpdateSettings handles PATCH /me/profile. Omitted fields keep their value.
func (h ProfileHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	userID := middleware.UserID(ctx)

	current, err := h.Profiles.Me(ctx, userID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	bio := current.Profile.Bio
	if req.Bio != nil {
		bio = *req.Bio
	}
	links := current.Profile.SocialLinks
	if req.SocialLinks != nil {
		links = req.SocialLinks
	}

	profile, err := h.Profiles.UpdateSettings(ctx, userID, bio, links)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, profile)
}

// UploadAvatar handles PUT /me/avatar with a multipart "avatar" file.
func (h ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	file, header, err := r.FormFile("avatar")
	if err != nil {
		respondError(ctx, w, apperr.Validation("An avatar image is required",
			apperr.FieldError{Field: "avatar", Message: "Upload an image up to 5MB"}).WithCause(err))
		return
	}
	defer file.Close()

	profile, err := h.Profiles.UploadAvatar(ctx, middleware.UserID(ctx), file, header.Header.Get("Content-Type"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, profile)
}

// Public handles GET /users/{username}.
func (h ProfileHandler) Public(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile, err := h.Profiles.Public(ctx, chi.URLParam(r, "username"), middleware.UserID(ctx))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, profile)
}

// UserClips handles GET /users/{username}/clips. Owners also see their
// private clips.
func (h ProfileHandler) UserClips(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, err := h.Profiles.Resolve(ctx, chi.URLParam(r, "username"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	list, err := h.Clips.ByUser(ctx, ownerID, middleware.UserID(ctx), pageFromQuery(r))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, clipListResponse{Clips: list})
}

// Follow handles POST /users/{username}/follow.
func (h ProfileHandler) Follow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Profiles.Follow(ctx, middleware.UserID(ctx), strings.TrimSpace(chi.URLParam(r, "username"))); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unfollow handles DELETE /users/{username}/follow.
func (h ProfileHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Profiles.Unfollow(ctx, middleware.UserID(ctx), strings.TrimSpace(chi.URLParam(r, "username"))); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
