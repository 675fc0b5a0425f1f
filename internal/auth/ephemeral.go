package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTokenNotFound indicates a one-time token that is unknown, used or expired.
var ErrTokenNotFound = errors.New("one-time token not found")

// Token purposes.
const (
	PurposeConfirmEmail  = "confirm"
	PurposePasswordReset = "reset"
)

// OneTimeTokens stores single-use tokens for email confirmation and password
// reset links.
type OneTimeTokens interface {
	Issue(ctx context.Context, purpose, userID string, ttl time.Duration) (string, error)
	Consume(ctx context.Context, purpose, token string) (string, error)
}

// Cooldowns enforces a minimum interval between actions sharing a key.
// Start returns zero when the cooldown was started, otherwise the time left.
type Cooldowns interface {
	Start(ctx context.Context, key string, d time.Duration) (time.Duration, error)
}

type memoryToken struct {
	userID    string
	expiresAt time.Time
}

// MemoryTokens implements OneTimeTokens in process memory.
type MemoryTokens struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
	now    func() time.Time
}

// NewMemoryTokens constructs an empty token store.
func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{tokens: make(map[string]memoryToken), now: time.Now}
}

// Issue creates a token for userID valid for ttl.
func (m *MemoryTokens) Issue(_ context.Context, purpose, userID string, ttl time.Duration) (string, error) {
	token, err := NewOpaqueToken()
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.tokens[purpose+":"+token] = memoryToken{userID: userID, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return token, nil
}

// Consume returns the user a token was issued for and deletes it.
func (m *MemoryTokens) Consume(_ context.Context, purpose, token string) (string, error) {
	key := purpose + ":" + token
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.tokens[key]
	if !ok {
		return "", ErrTokenNotFound
	}
	delete(m.tokens, key)
	if m.now().After(entry.expiresAt) {
		return "", ErrTokenNotFound
	}
	return entry.userID, nil
}

// MemoryCooldowns implements Cooldowns in process memory.
type MemoryCooldowns struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryCooldowns constructs an empty cooldown tracker.
func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{expires: make(map[string]time.Time), now: time.Now}
}

// Start begins a cooldown for key unless one is already running.
func (m *MemoryCooldowns) Start(_ context.Context, key string, d time.Duration) (time.Duration, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if until, ok := m.expires[key]; ok && now.Before(until) {
		return until.Sub(now), nil
	}
	m.expires[key] = now.Add(d)
	return 0, nil
}
