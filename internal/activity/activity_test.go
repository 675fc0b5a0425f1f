package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamefolio/backend/internal/models"
)

type stubStore struct {
	mu      sync.Mutex
	entries []models.ActivityLog
	err     error
}

func (s *stubStore) Insert(_ context.Context, entry models.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubStore) List(_ context.Context, limit int) ([]models.ActivityLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.entries) {
		limit = len(s.entries)
	}
	return s.entries[:limit], nil
}

func TestRecorderWritesInBackground(t *testing.T) {
	store := &stubStore{}
	recorder := NewRecorder(store)

	ctx, cancel := context.WithCancel(context.Background())
	recorder.Record(ctx, "user-1", "complete_onboarding", "profile", "user-1", map[string]any{"favorite_games": []string{"Valorant"}})
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, recorder.Wait(waitCtx))

	entries, err := recorder.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "complete_onboarding", entries[0].ActionType)
	assert.NotEmpty(t, entries[0].ID)
}

func TestRecorderSwallowsFailures(t *testing.T) {
	store := &stubStore{err: errors.New("database down")}
	recorder := NewRecorder(store)

	recorder.Record(context.Background(), "user-1", "set_username", "profile", "user-1", nil)

	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, recorder.Wait(waitCtx))
	assert.Empty(t, store.entries)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var recorder *Recorder
	recorder.Record(context.Background(), "user-1", "noop", "profile", "", nil)
}
