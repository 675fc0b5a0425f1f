// Package notifications lists a user's notifications.
package notifications

import (
	"context"
	"fmt"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/models"
)

// PageSize is the number of notifications returned per listing.
const PageSize = 20

// Store reads and updates notifications.
type Store interface {
	ListAndMarkRead(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	CreateSystem(ctx context.Context, userID, message string) error
}

// Service exposes notification reads.
type Service struct {
	Store Store
}

// List returns the latest notifications of a user and marks them read.
func (s *Service) List(ctx context.Context, userID string) ([]models.Notification, error) {
	list, err := s.Store.ListAndMarkRead(ctx, userID, PageSize)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list notifications: %w", err))
	}
	return list, nil
}

// Unread returns the number of unread notifications.
func (s *Service) Unread(ctx context.Context, userID string) (int64, error) {
	n, err := s.Store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, apperr.Internal(fmt.Errorf("count notifications: %w", err))
	}
	return n, nil
}

// System sends a moderation message to a user.
func (s *Service) System(ctx context.Context, userID, message string) error {
	if err := s.Store.CreateSystem(ctx, userID, message); err != nil {
		return apperr.Internal(fmt.Errorf("create system notification: %w", err))
	}
	return nil
}
