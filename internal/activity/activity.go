// Package activity records user and moderator actions for the admin panel.
// Writes never fail the action that triggered them.
package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gamefolio/backend/internal/logging"
	"github.com/gamefolio/backend/internal/models"
)

const writeTimeout = 5 * time.Second

// Store persists activity entries.
type Store interface {
	Insert(ctx context.Context, entry models.ActivityLog) error
	List(ctx context.Context, limit int) ([]models.ActivityLog, error)
}

// Recorder writes activity entries in the background.
type Recorder struct {
	store Store
	now   func() time.Time
	wg    sync.WaitGroup
}

// NewRecorder constructs a recorder on store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record appends an entry without blocking the caller. Failures are logged.
func (r *Recorder) Record(ctx context.Context, userID, actionType, resourceType, resourceID string, details map[string]any) {
	if r == nil || r.store == nil {
		return
	}
	entry := models.ActivityLog{
		ID:           uuid.NewString(),
		UserID:       userID,
		ActionType:   actionType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		CreatedAt:    r.now().UTC(),
	}
	logger := logging.FromContext(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		if err := r.store.Insert(writeCtx, entry); err != nil {
			logger.Warn("record activity failed",
				slog.String("action_type", actionType),
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
		}
	}()
}

// List returns the latest entries.
func (r *Recorder) List(ctx context.Context, limit int) ([]models.ActivityLog, error) {
	return r.store.List(ctx, limit)
}

// Wait blocks until pending writes finish or ctx ends.
func (r *Recorder) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
