package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gamefolio/backend/internal/auth"
)

// Tokens implements auth.OneTimeTokens with expiring Redis keys.
type Tokens struct {
	client redis.UniversalClient
}

// NewTokens constructs a token store on client.
func NewTokens(client redis.UniversalClient) *Tokens {
	return &Tokens{client: client}
}

// Issue stores a fresh token for userID that expires after ttl.
func (t *Tokens) Issue(ctx context.Context, purpose, userID string, ttl time.Duration) (string, error) {
	token, err := auth.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	if err := t.client.Set(ctx, tokenKey(purpose, token), userID, ttl).Err(); err != nil {
		return "", fmt.Errorf("store %s token: %w", purpose, err)
	}
	return token, nil
}

// Consume atomically reads and deletes a token.
func (t *Tokens) Consume(ctx context.Context, purpose, token string) (string, error) {
	userID, err := t.client.GetDel(ctx, tokenKey(purpose, token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", auth.ErrTokenNotFound
		}
		return "", fmt.Errorf("consume %s token: %w", purpose, err)
	}
	return userID, nil
}

// Cooldowns implements auth.Cooldowns with SET NX and key TTLs.
type Cooldowns struct {
	client redis.UniversalClient
}

// NewCooldowns constructs a cooldown tracker on client.
func NewCooldowns(client redis.UniversalClient) *Cooldowns {
	return &Cooldowns{client: client}
}

// Start begins a cooldown for key unless one is running, in which case the
// remaining time is returned.
func (c *Cooldowns) Start(ctx context.Context, key string, d time.Duration) (time.Duration, error) {
	k := cooldownKey(key)
	for attempt := 0; attempt < 2; attempt++ {
		started, err := c.client.SetNX(ctx, k, 1, d).Result()
		if err != nil {
			return 0, fmt.Errorf("start cooldown: %w", err)
		}
		if started {
			return 0, nil
		}

		remaining, err := c.client.PTTL(ctx, k).Result()
		if err != nil {
			return 0, fmt.Errorf("read cooldown: %w", err)
		}
		if remaining > 0 {
			return remaining, nil
		}
		// The key expired between SETNX and PTTL.
	}
	return d, nil
}
