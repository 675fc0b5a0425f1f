package games

import (
	"context"
	"fmt"
	"strings"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/logging"
	"github.com/gamefolio/backend/internal/models"
)

const (
	trendingLimit  = 10
	gameClipsLimit = 50
)

// ClipStats aggregates clips per game.
type ClipStats interface {
	TrendingGames(ctx context.Context, limit int) ([]models.GameCount, error)
	GameClips(ctx context.Context, game string, limit int) ([]models.Clip, error)
	GameStats(ctx context.Context, game string) (models.GameStats, error)
}

// Service answers game catalog and game page queries. A nil Catalog serves
// the fallback list only.
type Service struct {
	Catalog Catalog
	Clips   ClipStats
}

// Search looks games up remotely and falls back to the built-in list when
// the catalog fails or finds nothing.
func (s *Service) Search(ctx context.Context, query string) ([]Game, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return FallbackPopular(), nil
	}
	if s.Catalog != nil {
		games, err := s.Catalog.Search(ctx, query)
		if err == nil && len(games) > 0 {
			return games, nil
		}
		if err != nil {
			logging.FromContext(ctx).Warn("game search failed, using fallback list", "query", query, "error", err)
		}
	}
	return FallbackSearch(query), nil
}

// Popular returns the top games, falling back to the built-in list.
func (s *Service) Popular(ctx context.Context) ([]Game, error) {
	if s.Catalog != nil {
		games, err := s.Catalog.Popular(ctx)
		if err == nil && len(games) > 0 {
			return games, nil
		}
		if err != nil {
			logging.FromContext(ctx).Warn("popular games failed, using fallback list", "error", err)
		}
	}
	return FallbackPopular(), nil
}

// Trending ranks games by public clip count.
func (s *Service) Trending(ctx context.Context) ([]models.GameCount, error) {
	games, err := s.Clips.TrendingGames(ctx, trendingLimit)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("trending games: %w", err))
	}
	return games, nil
}

// ClipsFor lists the latest public clips of a game.
func (s *Service) ClipsFor(ctx context.Context, game string) ([]models.Clip, error) {
	game = strings.TrimSpace(game)
	if game == "" {
		return nil, apperr.NotFound("Game")
	}
	clips, err := s.Clips.GameClips(ctx, game, gameClipsLimit)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("game clips: %w", err))
	}
	return clips, nil
}

// Stats aggregates counters for a game page.
func (s *Service) Stats(ctx context.Context, game string) (models.GameStats, error) {
	game = strings.TrimSpace(game)
	if game == "" {
		return models.GameStats{}, apperr.NotFound("Game")
	}
	stats, err := s.Clips.GameStats(ctx, game)
	if err != nil {
		return models.GameStats{}, apperr.Internal(fmt.Errorf("game stats: %w", err))
	}
	return stats, nil
}
