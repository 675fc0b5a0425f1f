package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/gamefolio/backend/internal/activity"
	"github.com/gamefolio/backend/internal/admin"
	"github.com/gamefolio/backend/internal/auth"
	"github.com/gamefolio/backend/internal/clips"
	"github.com/gamefolio/backend/internal/config"
	"github.com/gamefolio/backend/internal/db"
	"github.com/gamefolio/backend/internal/games"
	"github.com/gamefolio/backend/internal/handlers"
	"github.com/gamefolio/backend/internal/mail"
	"github.com/gamefolio/backend/internal/middleware"
	"github.com/gamefolio/backend/internal/notifications"
	"github.com/gamefolio/backend/internal/profiles"
	"github.com/gamefolio/backend/internal/redisstore"
	"github.com/gamefolio/backend/internal/repositories"
	"github.com/gamefolio/backend/internal/storage"
)

// objectStore is the storage surface shared by clips, avatars and admin
// cleanup.
type objectStore interface {
	clips.ObjectStore
	PublicURL(bucket storage.Bucket, key string) string
}

// ephemeral groups the stores that live in Redis when it is configured.
type ephemeral struct {
	tokens    auth.OneTimeTokens
	cooldowns auth.Cooldowns
	events    auth.EventBus
	client    *redis.Client
}

// services exposes the wired application services to the commands.
type services struct {
	auth     *auth.Service
	profiles *profiles.Service
	clips    *clips.Service
	admin    *admin.Service
}

func buildEphemeral(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (ephemeral, error) {
	if cfg.Addr == "" {
		logger.Warn("redis not configured, keeping tokens and session events in process")
		return ephemeral{
			tokens:    auth.NewMemoryTokens(),
			cooldowns: auth.NewMemoryCooldowns(),
			events:    auth.NewMemoryBus(),
		}, nil
	}

	client, err := redisstore.New(ctx, cfg, logger)
	if err != nil {
		return ephemeral{}, err
	}
	return ephemeral{
		tokens:    redisstore.NewTokens(client),
		cooldowns: redisstore.NewCooldowns(client),
		events:    redisstore.NewBus(client),
		client:    client,
	}, nil
}

func buildObjectStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (objectStore, error) {
	if cfg.InMemory() {
		logger.Warn("object storage kept in memory, uploads are lost on restart")
		return storage.NewMemory(cfg.PublicBaseURL), nil
	}
	s3, err := storage.NewS3Storage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s3, nil
}

func buildCatalog(cfg config.IGDBConfig, logger *slog.Logger) (games.Catalog, error) {
	if !cfg.Enabled() {
		logger.Info("igdb credentials missing, serving the built-in game list")
		return nil, nil
	}
	client, err := games.NewIGDBClient(cfg)
	if err != nil {
		return nil, err
	}
	return games.NewCachingCatalog(client, cfg.CacheTTL), nil
}

func buildMailer(cfg config.MailConfig, logger *slog.Logger) *mail.Mailer {
	var senders mail.Fallback
	if cfg.ResendAPIKey != "" {
		senders = append(senders, mail.NewResendSender(cfg.ResendAPIKey, cfg.From))
	} else {
		logger.Warn("resend api key missing, account emails are logged only")
	}
	senders = append(senders, mail.LogSender{Logger: logger})
	return &mail.Mailer{Sender: senders, Brand: mail.DefaultBrand(cfg)}
}

func buildServices(pool db.Pool, cfg config.Config, eph ephemeral, objects objectStore, thumbnails clips.ThumbnailQueue, recorder *activity.Recorder, mailer auth.Notifier) services {
	accounts := repositories.NewPostgresAccountRepository(pool)
	profileRepo := repositories.NewPostgresProfileRepository(pool)
	clipRepo := repositories.NewPostgresClipRepository(pool)
	notices := &notifications.Service{Store: repositories.NewPostgresNotificationRepository(pool)}

	sessions := auth.NewManager(
		auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL),
		cfg.Auth.RefreshTTL,
		repositories.NewPostgresSessionStore(pool),
	)
	authService := &auth.Service{
		Accounts:  accounts,
		Profiles:  profiles.Bootstrapper{Store: profileRepo},
		Sessions:  sessions,
		Tokens:    eph.tokens,
		Cooldowns: eph.cooldowns,
		Notifier:  mailer,
		Events:    eph.events,
		Options: auth.Options{
			PublicURL:        cfg.PublicURL,
			ConfirmationTTL:  cfg.Auth.ConfirmationTTL,
			ResetTTL:         cfg.Auth.ResetTTL,
			EmailCooldown:    cfg.Auth.EmailCooldown,
			RequireConfirmed: cfg.Auth.RequireConfirmed,
		},
	}
	profileService := &profiles.Service{
		Store:    profileRepo,
		Objects:  objects,
		Activity: recorder,
		Events:   authService,
	}
	clipService := &clips.Service{
		Store:      clipRepo,
		Objects:    objects,
		Thumbnails: thumbnails,
		Activity:   recorder,
	}
	adminService := &admin.Service{
		Accounts: accounts,
		Profiles: profileRepo,
		Clips:    clipRepo,
		Deleter:  clipService,
		Objects:  objects,
		Sessions: sessions,
		Resetter: authService,
		Events:   authService,
		Notices:  notices,
		Activity: recorder,
	}
	return services{
		auth:     authService,
		profiles: profileService,
		clips:    clipService,
		admin:    adminService,
	}
}

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. The returned cleanup drains background workers and closes
// connections opened here.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	eph, err := buildEphemeral(ctx, cfg.Redis, logger)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}
	objects, err := buildObjectStore(ctx, cfg.Storage, logger)
	if err != nil {
		closeRedis(eph)
		return handlers.Dependencies{}, nil, err
	}
	catalog, err := buildCatalog(cfg.IGDB, logger)
	if err != nil {
		closeRedis(eph)
		return handlers.Dependencies{}, nil, err
	}

	clipRepo := repositories.NewPostgresClipRepository(pool)
	recorder := activity.NewRecorder(repositories.NewPostgresActivityRepository(pool))
	thumbnailer := clips.NewThumbnailer(objects, clipRepo, clips.ThumbnailerConfig{
		FFmpegPath: cfg.Clips.FFmpegPath,
		Timeout:    cfg.Clips.ThumbnailTimeout,
		QueueSize:  cfg.Clips.QueueSize,
		Workers:    cfg.Clips.Workers,
	}, logger)

	svc := buildServices(pool, cfg, eph, objects, thumbnailer, recorder, buildMailer(cfg.Mail, logger))

	readiness := map[string]handlers.ReadinessCheck{
		"database": func(ctx context.Context) error { return db.Ping(ctx, pool) },
	}
	if eph.client != nil {
		readiness["redis"] = func(ctx context.Context) error { return redisstore.Ping(ctx, eph.client) }
	}

	limiter := func() middleware.RateLimiter {
		return middleware.NewIPRateLimiter(cfg.Auth.RateLimitRequests, cfg.Auth.RateLimitWindow, cfg.Auth.RateLimitBurst, cfg.Auth.RateLimitTTL)
	}

	deps := handlers.Dependencies{
		Logger:         logger,
		Auth:           svc.auth,
		Profiles:       svc.profiles,
		Clips:          svc.clips,
		Games:          &games.Service{Catalog: catalog, Clips: clipRepo},
		Notifications:  &notifications.Service{Store: repositories.NewPostgresNotificationRepository(pool)},
		Admin:          svc.admin,
		Roles:          repositories.NewPostgresAccountRepository(pool),
		Readiness:      readiness,
		SignUpLimiter:  limiter(),
		LoginLimiter:   limiter(),
		EmailLimiter:   limiter(),
		CORSOrigins:    cfg.CORSOrigins,
		MaxUploadBytes: cfg.Clips.MaxUploadBytes,
	}

	cleanup := func(ctx context.Context) error {
		var errs []error
		if err := thumbnailer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain thumbnailer: %w", err))
		}
		if err := recorder.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain activity log: %w", err))
		}
		if eph.client != nil {
			if err := eph.client.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close redis: %w", err))
			}
		}
		return errors.Join(errs...)
	}
	return deps, cleanup, nil
}

func closeRedis(eph ephemeral) {
	if eph.client != nil {
		_ = eph.client.Close()
	}
}
