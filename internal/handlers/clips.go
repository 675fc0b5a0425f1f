package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/clips"
	"github.com/gamefolio/backend/internal/middleware"
	"github.com/gamefolio/backend/internal/models"
)

const (
	defaultMaxUpload = 200 << 20
	multipartMemory  = 8 << 20
)

// ClipHandler serves clip uploads, listings and interactions.
type ClipHandler struct {
	Clips          ClipService
	MaxUploadBytes int64
}

type clipListResponse struct {
	Clips []models.Clip `json:"clips"`
}

type renameRequest struct {
	Title string `json:"title" validate:"required,max=100"`
}

type commentRequest struct {
	Content string `json:"content" validate:"required,max=500"`
}

type commentListResponse struct {
	Comments []models.Comment `json:"comments"`
}

type shareResponse struct {
	Shares int64 `json:"shares"`
}

// Upload handles POST /clips as multipart form data with a "video" file, an
// optional "thumbnail" file and title, game and visibility fields.
func (h ClipHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(ctx, w, apperr.Validation("Upload is too large"))
			return
		}
		respondError(ctx, w, apperr.Validation("Invalid upload form").WithCause(err))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	video, videoHeader, err := r.FormFile("video")
	if err != nil {
		respondError(ctx, w, apperr.Validation("A video file is required",
			apperr.FieldError{Field: "video", Message: "This field is required"}))
		return
	}
	defer video.Close()

	in := clips.Upload{
		Title:       r.FormValue("title"),
		Game:        r.FormValue("game"),
		Visibility:  r.FormValue("visibility"),
		Filename:    videoHeader.Filename,
		ContentType: videoHeader.Header.Get("Content-Type"),
		Video:       video,
	}

	var thumb multipart.File
	if f, header, err := r.FormFile("thumbnail"); err == nil {
		thumb = f
		defer thumb.Close()
		in.Thumbnail = f
		in.ThumbnailContentType = header.Header.Get("Content-Type")
	}

	clip, err := h.Clips.Create(ctx, middleware.UserID(ctx), in)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, clip)
}

// Feed handles GET /clips/feed.
func (h ClipHandler) Feed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Clips.Feed(ctx, middleware.UserID(ctx), pageFromQuery(r))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, clipListResponse{Clips: list})
}

// Liked handles GET /clips/liked.
func (h ClipHandler) Liked(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Clips.Liked(ctx, middleware.UserID(ctx), pageFromQuery(r))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, clipListResponse{Clips: list})
}

// Explore handles GET /explore?game=&q=.
func (h ClipHandler) Explore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	list, err := h.Clips.Explore(ctx, strings.TrimSpace(q.Get("game")), strings.TrimSpace(q.Get("q")), pageFromQuery(r))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, clipListResponse{Clips: list})
}

// Get handles GET /clips/{id}.
func (h ClipHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clip, err := h.Clips.Get(ctx, chi.URLParam(r, "id"), middleware.UserID(ctx))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, clip)
}

// Rename handles PATCH /clips/{id}.
func (h ClipHandler) Rename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	clip, err := h.Clips.Rename(ctx, chi.URLParam(r, "id"), middleware.UserID(ctx), req.Title)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, clip)
}

// Delete handles DELETE /clips/{id}.
func (h ClipHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Clips.Delete(ctx, chi.URLParam(r, "id"), middleware.UserID(ctx), false); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Like handles POST /clips/{id}/like.
func (h ClipHandler) Like(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.Clips.Like(ctx, middleware.UserID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, result)
}

// Share handles POST /clips/{id}/share.
func (h ClipHandler) Share(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shares, err := h.Clips.Share(ctx, chi.URLParam(r, "id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, shareResponse{Shares: shares})
}

// Comments handles GET /clips/{id}/comments.
func (h ClipHandler) Comments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Clips.Comments(ctx, chi.URLParam(r, "id"), middleware.UserID(ctx))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, commentListResponse{Comments: list})
}

// Comment handles POST /clips/{id}/comments.
func (h ClipHandler) Comment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	comment, err := h.Clips.Comment(ctx, middleware.UserID(ctx), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, comment)
}
