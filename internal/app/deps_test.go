package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamefolio/backend/internal/config"
)

type fakePool struct {
	pingErr error
}

func (fakePool) Acquire(context.Context) (*pgxpool.Conn, error) {
	return nil, errors.New("not implemented")
}

func (p fakePool) Ping(context.Context) error { return p.pingErr }

func (fakePool) Close() {}

func testConfig() config.Config {
	return config.Config{
		PublicURL:   "http://localhost:5173",
		CORSOrigins: []string{"http://localhost:5173"},
		Auth: config.AuthConfig{
			JWTSecret:         "0123456789abcdef0123",
			AccessTTL:         time.Minute,
			RefreshTTL:        time.Hour,
			RateLimitRequests: 10,
			RateLimitWindow:   time.Minute,
			RateLimitBurst:    5,
			RateLimitTTL:      time.Minute,
		},
		Storage: config.StorageConfig{Driver: "memory", PublicBaseURL: "http://localhost:9000"},
		Clips:   config.ClipsConfig{Workers: 1, QueueSize: 4, MaxUploadBytes: 1 << 20},
	}
}

func TestBuildDependenciesWithLocalFallbacks(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps, cleanup, err := buildDependencies(context.Background(), fakePool{}, testConfig(), logger)
	require.NoError(t, err)
	require.NotNil(t, cleanup)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, cleanup(ctx))
	}()

	assert.NotNil(t, deps.Auth)
	assert.NotNil(t, deps.Profiles)
	assert.NotNil(t, deps.Clips)
	assert.NotNil(t, deps.Games)
	assert.NotNil(t, deps.Notifications)
	assert.NotNil(t, deps.Admin)
	assert.NotNil(t, deps.Roles)
	assert.NotNil(t, deps.LoginLimiter)
	assert.Equal(t, int64(1<<20), deps.MaxUploadBytes)

	require.Contains(t, deps.Readiness, "database")
	assert.NotContains(t, deps.Readiness, "redis")
	assert.NoError(t, deps.Readiness["database"](context.Background()))

	popular, err := deps.Games.Popular(context.Background())
	require.NoError(t, err)
	assert.Len(t, popular, 25)
}

func TestReadinessReflectsDatabasePing(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps, cleanup, err := buildDependencies(context.Background(), fakePool{pingErr: errors.New("refused")}, testConfig(), logger)
	require.NoError(t, err)
	defer func() { _ = cleanup(context.Background()) }()

	assert.Error(t, deps.Readiness["database"](context.Background()))
}

func TestShouldRetrySeed(t *testing.T) {
	assert.True(t, shouldRetrySeed(&pgconn.PgError{Code: "40001"}))
	assert.True(t, shouldRetrySeed(pgx.ErrTxClosed))
	assert.True(t, shouldRetrySeed(context.DeadlineExceeded))
	assert.False(t, shouldRetrySeed(&pgconn.PgError{Code: "42601"}))
	assert.False(t, shouldRetrySeed(errors.New("boom")))
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	require.Error(t, Run(context.Background(), nil))
	require.ErrorContains(t, Run(context.Background(), []string{"dance"}), `unknown command "dance"`)
}
