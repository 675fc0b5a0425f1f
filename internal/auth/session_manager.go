package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/gamefolio/backend/internal/models"
	"github.com/gamefolio/backend/internal/repositories"
)

var (
	// ErrSessionNotFound indicates the provided refresh token does not map to an active session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshTokenExpired indicates the refresh token has expired and cannot be used.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

// SessionStore persists issued refresh tokens so they can survive process restarts.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Find(ctx context.Context, refreshToken string) (Session, error)
	Delete(ctx context.Context, refreshToken string) error
	DeleteForUser(ctx context.Context, userID string) error
}

// Session represents a refresh token issued to a user.
type Session = models.RefreshSession

// Manager issues JWT access tokens paired with rotating opaque refresh tokens.
type Manager struct {
	refreshTTL time.Duration

	tokens *TokenIssuer
	store  SessionStore
	now    func() time.Time
}

// NewManager constructs a Manager issuing refresh tokens valid for refreshTTL.
func NewManager(tokens *TokenIssuer, refreshTTL time.Duration, store SessionStore) *Manager {
	if store == nil || tokens == nil {
		panic("auth: token issuer and session store must not be nil")
	}
	return &Manager{
		refreshTTL: refreshTTL,
		tokens:     tokens,
		store:      store,
		now:        time.Now,
	}
}

// Issue creates a new pair of access and refresh tokens for the provided account.
func (m *Manager) Issue(ctx context.Context, userID, email string) (models.SessionTokens, error) {
	if userID == "" {
		return models.SessionTokens{}, errors.New("user id must be provided")
	}

	accessToken, accessExpiresAt, err := m.tokens.Issue(userID, email)
	if err != nil {
		return models.SessionTokens{}, err
	}

	refreshToken, err := NewOpaqueToken()
	if err != nil {
		return models.SessionTokens{}, err
	}

	tokens := models.SessionTokens{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: m.now().UTC().Add(m.refreshTTL),
	}

	if err := m.store.Save(ctx, Session{
		RefreshToken: refreshToken,
		UserID:       userID,
		Email:        email,
		ExpiresAt:    tokens.RefreshExpiresAt,
	}); err != nil {
		return models.SessionTokens{}, fmt.Errorf("save session: %w", err)
	}

	return tokens, nil
}

// Refresh exchanges a refresh token for a new session token pair. The old
// refresh token is invalidated before the new pair is issued.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (Session, models.SessionTokens, error) {
	if refreshToken == "" {
		return Session{}, models.SessionTokens{}, ErrSessionNotFound
	}

	session, err := m.store.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return Session{}, models.SessionTokens{}, ErrSessionNotFound
		}
		return Session{}, models.SessionTokens{}, err
	}

	if m.now().UTC().After(session.ExpiresAt) {
		_ = m.store.Delete(ctx, refreshToken)
		return Session{}, models.SessionTokens{}, ErrRefreshTokenExpired
	}

	// A concurrent refresh of the same token loses here.
	if err := m.store.Delete(ctx, refreshToken); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return Session{}, models.SessionTokens{}, ErrSessionNotFound
		}
		return Session{}, models.SessionTokens{}, err
	}

	tokens, err := m.Issue(ctx, session.UserID, session.Email)
	if err != nil {
		return Session{}, models.SessionTokens{}, err
	}
	return session, tokens, nil
}

// Verify validates an access token.
func (m *Manager) Verify(accessToken string) (Claims, error) {
	return m.tokens.Verify(accessToken)
}

// Revoke removes the provided refresh token from the active session store.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	err := m.store.Delete(ctx, refreshToken)
	if err != nil && !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, repositories.ErrNotFound) {
		return err
	}
	return nil
}

// ErrSessionNotOwned reports a refresh token issued to another user.
var ErrSessionNotOwned = errors.New("session belongs to another user")

// RevokeOwned removes a refresh token only when it was issued to userID.
// Unknown tokens are not an error.
func (m *Manager) RevokeOwned(ctx context.Context, userID, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	session, err := m.store.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return err
	}
	if session.UserID != userID {
		return ErrSessionNotOwned
	}
	return m.Revoke(ctx, refreshToken)
}

// RevokeAll removes every refresh token of a user.
func (m *Manager) RevokeAll(ctx context.Context, userID string) error {
	return m.store.DeleteForUser(ctx, userID)
}

// NewOpaqueToken returns a random URL-safe token.
func NewOpaqueToken() (string, error) {
	const size = 32
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
