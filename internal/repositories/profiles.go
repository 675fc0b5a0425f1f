package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gamefolio/backend/internal/db"
	"github.com/gamefolio/backend/internal/models"
)

// PostgresProfileRepository provides PostgreSQL-backed persistence for profiles and follows.
type PostgresProfileRepository struct {
	pool db.Pool
}

// NewPostgresProfileRepository constructs a profile repository backed by PostgreSQL.
func NewPostgresProfileRepository(pool db.Pool) *PostgresProfileRepository {
	return &PostgresProfileRepository{pool: pool}
}

const profileColumns = `user_id, username, bio, avatar_url, favorite_games, onboarding_completed, social_links,
        followers_count, following_count, views_count, banned, created_at, updated_at`

func scanProfile(row pgx.Row) (models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.UserID, &p.Username, &p.Bio, &p.AvatarURL, &p.FavoriteGames, &p.OnboardingCompleted, &p.SocialLinks,
		&p.Followers, &p.Following, &p.Views, &p.Banned, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// Insert creates a profile unless one already exists for the user. It reports
// whether a row was created.
func (r *PostgresProfileRepository) Insert(ctx context.Context, userID, username string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        INSERT INTO user_profiles (user_id, username, onboarding_completed)
        VALUES ($1, $2, false)
        ON CONFLICT (user_id) DO NOTHING
    `, userID, username)
	if err != nil {
		return false, translate(err, "insert profile")
	}
	return tag.RowsAffected() == 1, nil
}

// FindByUserID loads the profile of a user.
func (r *PostgresProfileRepository) FindByUserID(ctx context.Context, userID string) (models.Profile, error) {
	return r.findOne(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE user_id = $1`, userID)
}

// FindByUsername loads a profile by handle, case-insensitively.
func (r *PostgresProfileRepository) FindByUsername(ctx context.Context, username string) (models.Profile, error) {
	return r.findOne(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE lower(username) = lower($1)`, username)
}

func (r *PostgresProfileRepository) findOne(ctx context.Context, query string, args ...any) (models.Profile, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Profile{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	p, err := scanProfile(conn.QueryRow(ctx, query, args...))
	if err != nil {
		return models.Profile{}, translate(err, "select profile")
	}
	return p, nil
}

// UsernameExists reports whether any profile holds username, ignoring case.
func (r *PostgresProfileRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM user_profiles WHERE lower(username) = lower($1))
    `, username).Scan(&exists)
	if err != nil {
		return false, translate(err, "check username")
	}
	return exists, nil
}

// SetUsername claims a handle. A concurrent claim of the same handle fails
// with ErrConflict through the lower(username) unique index.
func (r *PostgresProfileRepository) SetUsername(ctx context.Context, userID, username string, at time.Time) (models.Profile, error) {
	return r.findOne(ctx, `
        UPDATE user_profiles
        SET username = $2, updated_at = $3
        WHERE user_id = $1
        RETURNING `+profileColumns, userID, username, at)
}

// CompleteOnboarding stores the favorite games and marks onboarding done.
func (r *PostgresProfileRepository) CompleteOnboarding(ctx context.Context, userID string, games []string, at time.Time) (models.Profile, error) {
	return r.findOne(ctx, `
        UPDATE user_profiles
        SET favorite_games = $2, onboarding_completed = true, updated_at = $3
        WHERE user_id = $1
        RETURNING `+profileColumns, userID, games, at)
}

// ResetOnboarding clears the onboarding state so the user is prompted again.
func (r *PostgresProfileRepository) ResetOnboarding(ctx context.Context, userID string, at time.Time) error {
	return execOne(ctx, r.pool, "reset onboarding", `
        UPDATE user_profiles
        SET onboarding_completed = false, favorite_games = NULL, updated_at = $2
        WHERE user_id = $1
    `, userID, at)
}

// UpdateSettings replaces the editable profile fields.
func (r *PostgresProfileRepository) UpdateSettings(ctx context.Context, userID, bio string, links map[string]string, at time.Time) (models.Profile, error) {
	if links == nil {
		links = map[string]string{}
	}
	return r.findOne(ctx, `
        UPDATE user_profiles
        SET bio = $2, social_links = $3, updated_at = $4
        WHERE user_id = $1
        RETURNING `+profileColumns, userID, bio, links, at)
}

// SetAvatar stores the public avatar URL.
func (r *PostgresProfileRepository) SetAvatar(ctx context.Context, userID, avatarURL string, at time.Time) (models.Profile, error) {
	return r.findOne(ctx, `
        UPDATE user_profiles
        SET avatar_url = $2, updated_at = $3
        WHERE user_id = $1
        RETURNING `+profileColumns, userID, avatarURL, at)
}

// SetBanned toggles the moderation ban flag.
func (r *PostgresProfileRepository) SetBanned(ctx context.Context, userID string, banned bool, at time.Time) error {
	return execOne(ctx, r.pool, "set banned", `
        UPDATE user_profiles SET banned = $2, updated_at = $3 WHERE user_id = $1
    `, userID, banned, at)
}

// IncrementViews atomically bumps the view counter of a profile.
func (r *PostgresProfileRepository) IncrementViews(ctx context.Context, userID string) error {
	return execOne(ctx, r.pool, "increment views", `
        UPDATE user_profiles SET views_count = views_count + 1 WHERE user_id = $1
    `, userID)
}

// Follow records followerID following followeeID, adjusts both counters and
// notifies the followee. Following twice is a no-op reported as false.
func (r *PostgresProfileRepository) Follow(ctx context.Context, followerID, followeeID string) (bool, error) {
	var created bool
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            INSERT INTO follows (follower_id, followee_id)
            VALUES ($1, $2)
            ON CONFLICT (follower_id, followee_id) DO NOTHING
        `, followerID, followeeID)
		if err != nil {
			return translate(err, "insert follow")
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		created = true

		if err := adjustFollowCounters(ctx, tx, followerID, followeeID, 1); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
            INSERT INTO notifications (user_id, actor_id, type, message)
            SELECT $1::UUID, $2::UUID, 'follow', COALESCE(p.username, 'Someone') || ' started following you'
            FROM user_profiles p WHERE p.user_id = $2
        `, followeeID, followerID)
		return translate(err, "insert follow notification")
	})
	return created, err
}

// Unfollow removes a follow edge. Removing a missing edge is a no-op.
func (r *PostgresProfileRepository) Unfollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	var removed bool
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`, followerID, followeeID)
		if err != nil {
			return translate(err, "delete follow")
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		removed = true
		return adjustFollowCounters(ctx, tx, followerID, followeeID, -1)
	})
	return removed, err
}

// IsFollowing reports whether followerID follows followeeID.
func (r *PostgresProfileRepository) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = $1 AND followee_id = $2)
    `, followerID, followeeID).Scan(&exists)
	if err != nil {
		return false, translate(err, "check follow")
	}
	return exists, nil
}

func adjustFollowCounters(ctx context.Context, tx pgx.Tx, followerID, followeeID string, delta int) error {
	if _, err := tx.Exec(ctx, `
        UPDATE user_profiles SET following_count = GREATEST(following_count + $2, 0) WHERE user_id = $1
    `, followerID, delta); err != nil {
		return translate(err, "update following count")
	}
	if _, err := tx.Exec(ctx, `
        UPDATE user_profiles SET followers_count = GREATEST(followers_count + $2, 0) WHERE user_id = $1
    `, followeeID, delta); err != nil {
		return translate(err, "update followers count")
	}
	return nil
}
