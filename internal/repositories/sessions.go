package repositories

import (
	"context"
	"fmt"

	"github.com/gamefolio/backend/internal/db"
	"github.com/gamefolio/backend/internal/models"
)

// PostgresSessionStore persists refresh tokens to PostgreSQL.
type PostgresSessionStore struct {
	pool db.Pool
}

// NewPostgresSessionStore constructs a session store backed by PostgreSQL.
func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

// Save stores or updates a session record.
func (s *PostgresSessionStore) Save(ctx context.Context, session models.RefreshSession) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO sessions (refresh_token, user_id, expires_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (refresh_token)
        DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at
    `, session.RefreshToken, session.UserID, session.ExpiresAt.UTC())
	return translate(err, "upsert session")
}

// Find loads a session and the owner's current email by refresh token.
func (s *PostgresSessionStore) Find(ctx context.Context, refreshToken string) (models.RefreshSession, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.RefreshSession{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var session models.RefreshSession
	err = conn.QueryRow(ctx, `
        SELECT s.refresh_token, s.user_id, a.email, s.expires_at
        FROM sessions s
        JOIN accounts a ON a.id = s.user_id
        WHERE s.refresh_token = $1
    `, refreshToken).Scan(&session.RefreshToken, &session.UserID, &session.Email, &session.ExpiresAt)
	if err != nil {
		return models.RefreshSession{}, translate(err, "select session")
	}

	session.ExpiresAt = session.ExpiresAt.UTC()
	return session, nil
}

// Delete removes a session by its refresh token.
func (s *PostgresSessionStore) Delete(ctx context.Context, refreshToken string) error {
	return execOne(ctx, s.pool, "delete session", `DELETE FROM sessions WHERE refresh_token = $1`, refreshToken)
}

// DeleteForUser removes every session of a user.
func (s *PostgresSessionStore) DeleteForUser(ctx context.Context, userID string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return translate(err, "delete user sessions")
}
