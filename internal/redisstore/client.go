// Package redisstore keeps ephemeral auth state in Redis: one-time email
// tokens, resend cooldowns and the session event fan-out shared by every
// server instance.
package redisstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gamefolio/backend/internal/config"
)

const (
	dialTimeout  = 3 * time.Second
	readTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
	pingTimeout  = 2 * time.Second

	keyPrefix = "gamefolio:"
)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	if err := Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis client connected", "addr", cfg.Addr, "db", cfg.DB)
	return client, nil
}

// Ping verifies that Redis answers within a short deadline.
func Ping(ctx context.Context, client redis.UniversalClient) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func tokenKey(purpose, token string) string {
	return keyPrefix + "token:" + purpose + ":" + token
}

func cooldownKey(key string) string {
	return keyPrefix + "cooldown:" + key
}

func eventsChannel(userID string) string {
	return keyPrefix + "events:" + userID
}
