package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/gamefolio/backend/internal/admin"
	"github.com/gamefolio/backend/internal/config"
	"github.com/gamefolio/backend/internal/db"
	"github.com/gamefolio/backend/internal/handlers"
	"github.com/gamefolio/backend/internal/httpserver"
	"github.com/gamefolio/backend/internal/logging"
	"github.com/gamefolio/backend/internal/repositories"
)

// Run bootstraps the Gamefolio backend application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, seed, or make-admin")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	switch args[0] {
	case "serve":
		return serve(ctx, cfg, logger)
	case "migrate":
		return runMigrations(cfg, logger, args[1:])
	case "seed":
		return runSeed(ctx, cfg, logger, args[1:])
	case "make-admin":
		return makeAdmin(ctx, cfg, logger, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	deps, cleanup, err := buildDependencies(ctx, pool, cfg, logger)
	if err != nil {
		return err
	}

	srv := httpserver.New(httpserver.Options{Port: cfg.AppPort, WriteTimeout: cfg.WriteTimeout}, handlers.NewRouter(deps))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", "addr", srv.Addr())
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), httpserver.ShutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), cleanup(shutdownCtx))
	})
	return g.Wait()
}

func runMigrations(cfg config.Config, logger *slog.Logger, args []string) error {
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	migrator, err := db.NewMigrator(cfg.DatabaseURL, cfg.MigrationDir, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("close migrator", "error", err)
		}
	}()

	switch command {
	case "up", "":
		return migrator.Up()
	case "down":
		return migrator.Down()
	case "status":
		status, err := migrator.Status()
		if err != nil {
			return err
		}
		if !status.Applied {
			fmt.Println("no migrations applied")
			return nil
		}
		fmt.Printf("version %d (dirty: %t)\n", status.Version, status.Dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}

const (
	seedMaxRetries  = 3
	seedBaseBackoff = 100 * time.Millisecond
	seedMaxBackoff  = 3 * time.Second
)

var retryablePgErrorCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

func runSeed(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		return errors.New("expected seed name (e.g. dev)")
	}

	seedName := args[0]
	if !strings.HasSuffix(seedName, ".sql") {
		seedName = fmt.Sprintf("%s_seed.sql", seedName)
	}
	contents, err := os.ReadFile(filepath.Join(cfg.SeedDir, seedName))
	if err != nil {
		return fmt.Errorf("read seed %s: %w", seedName, err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := applySeedWithRetry(ctx, pool, seedName, string(contents), logger); err != nil {
		return err
	}
	logger.Info("applied seed", "seed", seedName)
	return nil
}

func applySeedWithRetry(ctx context.Context, pool *pgxpool.Pool, name, contents string, logger *slog.Logger) error {
	backoff := retry.WithMaxRetries(seedMaxRetries-1, retry.WithCappedDuration(seedMaxBackoff, retry.NewExponential(seedBaseBackoff)))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, contents)
			return err
		})
		if err == nil {
			return nil
		}
		if shouldRetrySeed(err) {
			logger.Warn("transient error applying seed", "seed", name, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return fmt.Errorf("apply seed %s: %w", name, err)
	})
}

func shouldRetrySeed(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, pgx.ErrTxClosed) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := retryablePgErrorCodes[pgErr.Code]
		return ok
	}
	return false
}

func makeAdmin(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		return errors.New("expected the email of the account to promote")
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := &admin.Service{Accounts: repositories.NewPostgresAccountRepository(pool)}
	account, err := svc.MakeAdmin(ctx, args[0])
	if err != nil {
		return err
	}
	logger.Info("granted admin role", "user_id", account.ID)
	return nil
}
