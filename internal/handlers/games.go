package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gamefolio/backend/internal/games"
	"github.com/gamefolio/backend/internal/models"
)

// GameHandler serves the game catalog and game pages.
type GameHandler struct {
	Games GameService
}

type gameListResponse struct {
	Games []games.Game `json:"games"`
}

type trendingResponse struct {
	Games []models.GameCount `json:"games"`
}

// Search handles GET /games/search?q=.
func (h GameHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Games.Search(ctx, strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, gameListResponse{Games: list})
}

// Popular handles GET /games/popular.
func (h GameHandler) Popular(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Games.Popular(ctx)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, gameListResponse{Games: list})
}

// Trending handles GET /games/trending.
func (h GameHandler) Trending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Games.Trending(ctx)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, trendingResponse{Games: list})
}

// Clips handles GET /games/{name}/clips.
func (h GameHandler) Clips(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Games.ClipsFor(ctx, chi.URLParam(r, "name"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, clipListResponse{Clips: list})
}

// Stats handles GET /games/{name}/stats.
func (h GameHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.Games.Stats(ctx, chi.URLParam(r, "name"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, stats)
}
