package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/gamefolio/backend/internal/db"
	"github.com/gamefolio/backend/internal/models"
)

// PostgresClipRepository provides PostgreSQL-backed persistence for clips,
// likes and comments.
type PostgresClipRepository struct {
	pool db.Pool
}

// NewPostgresClipRepository constructs a clip repository backed by PostgreSQL.
func NewPostgresClipRepository(pool db.Pool) *PostgresClipRepository {
	return &PostgresClipRepository{pool: pool}
}

// ExploreFilter narrows the public clip listing.
type ExploreFilter struct {
	Game   string
	Query  string
	Limit  int
	Offset int
}

const clipViewColumns = `v.id, v.user_id, v.username, v.avatar_url, v.title, v.game, v.video_url, v.thumbnail_url,
        v.visibility, v.likes_count, v.comments_count, v.shares_count, v.created_at`

func scanClip(row pgx.Row) (models.Clip, error) {
	var c models.Clip
	err := row.Scan(&c.ID, &c.UserID, &c.Username, &c.UserAvatar, &c.Title, &c.Game, &c.VideoURL, &c.ThumbnailURL,
		&c.Visibility, &c.Likes, &c.Comments, &c.Shares, &c.CreatedAt)
	return c, err
}

// Create stores a new clip record.
func (r *PostgresClipRepository) Create(ctx context.Context, clip models.Clip) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO clips (id, user_id, title, game, video_url, video_key, thumbnail_url, thumbnail_key, visibility, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, clip.ID, clip.UserID, clip.Title, clip.Game, clip.VideoURL, clip.VideoKey, clip.ThumbnailURL, clip.ThumbnailKey, clip.Visibility, clip.CreatedAt)
	return translate(err, "insert clip")
}

// FindByID loads a clip with its owner's handle and avatar.
func (r *PostgresClipRepository) FindByID(ctx context.Context, id string) (models.Clip, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Clip{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	clip, err := scanClip(conn.QueryRow(ctx, `SELECT `+clipViewColumns+` FROM clips_with_profiles v WHERE v.id = $1`, id))
	if err != nil {
		return models.Clip{}, translate(err, "select clip")
	}
	return clip, nil
}

// ListByUser returns a user's clips, newest first. Private clips are included
// only when includePrivate is set.
func (r *PostgresClipRepository) ListByUser(ctx context.Context, userID string, includePrivate bool, limit, offset int) ([]models.Clip, error) {
	return r.list(ctx, "query user clips", `
        SELECT `+clipViewColumns+`
        FROM clips_with_profiles v
        WHERE v.user_id = $1 AND ($2 OR v.visibility = 'public')
        ORDER BY v.created_at DESC
        LIMIT $3 OFFSET $4
    `, userID, includePrivate, limit, offset)
}

// Feed returns the caller's own clips and the public clips of accounts they follow.
func (r *PostgresClipRepository) Feed(ctx context.Context, userID string, limit, offset int) ([]models.Clip, error) {
	return r.list(ctx, "query feed", `
        SELECT `+clipViewColumns+`
        FROM clips_with_profiles v
        WHERE v.user_id = $1
           OR (v.visibility = 'public' AND v.user_id IN (SELECT followee_id FROM follows WHERE follower_id = $1))
        ORDER BY v.created_at DESC
        LIMIT $2 OFFSET $3
    `, userID, limit, offset)
}

// Liked returns the clips the user has liked that are visible to them.
func (r *PostgresClipRepository) Liked(ctx context.Context, userID string, limit, offset int) ([]models.Clip, error) {
	return r.list(ctx, "query liked clips", `
        SELECT `+clipViewColumns+`
        FROM clips_with_profiles v
        WHERE EXISTS (SELECT 1 FROM likes l WHERE l.clip_id = v.id AND l.user_id = $1)
          AND (v.visibility = 'public' OR v.user_id = $1)
        ORDER BY v.created_at DESC
        LIMIT $2 OFFSET $3
    `, userID, limit, offset)
}

// Explore lists public clips, optionally filtered by game and a free-text
// match on title, game or owner handle.
func (r *PostgresClipRepository) Explore(ctx context.Context, filter ExploreFilter) ([]models.Clip, error) {
	query := "%" + escapeLike(strings.ToLower(strings.TrimSpace(filter.Query))) + "%"
	return r.list(ctx, "query explore", `
        SELECT `+clipViewColumns+`
        FROM clips_with_profiles v
        WHERE v.visibility = 'public'
          AND ($1 = '' OR lower(v.game) = lower($1))
          AND (lower(v.title) LIKE $2 OR lower(v.game) LIKE $2 OR lower(v.username) LIKE $2)
        ORDER BY v.created_at DESC
        LIMIT $3 OFFSET $4
    `, filter.Game, query, filter.Limit, filter.Offset)
}

// GameClips lists public clips of a game, most liked first.
func (r *PostgresClipRepository) GameClips(ctx context.Context, game string, limit int) ([]models.Clip, error) {
	return r.list(ctx, "query game clips", `
        SELECT `+clipViewColumns+`
        FROM clips_with_profiles v
        WHERE v.visibility = 'public' AND lower(v.game) = lower($1)
        ORDER BY v.likes_count DESC, v.created_at DESC
        LIMIT $2
    `, game, limit)
}

func (r *PostgresClipRepository) list(ctx context.Context, action, query string, args ...any) ([]models.Clip, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	defer rows.Close()

	clips := []models.Clip{}
	for rows.Next() {
		clip, err := scanClip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clip: %w", err)
		}
		clips = append(clips, clip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clips: %w", err)
	}
	return clips, nil
}

// UpdateTitle renames a clip owned by ownerID.
func (r *PostgresClipRepository) UpdateTitle(ctx context.Context, id, ownerID, title string) error {
	return execOne(ctx, r.pool, "update clip title", `
        UPDATE clips SET title = $3 WHERE id = $1 AND user_id = $2
    `, id, ownerID, title)
}

// SetThumbnail records a generated thumbnail.
func (r *PostgresClipRepository) SetThumbnail(ctx context.Context, id, url, key string) error {
	return execOne(ctx, r.pool, "update clip thumbnail", `
        UPDATE clips SET thumbnail_url = $2, thumbnail_key = $3 WHERE id = $1
    `, id, url, key)
}

// Delete removes a clip and returns the removed row so its objects can be
// deleted from storage.
func (r *PostgresClipRepository) Delete(ctx context.Context, id string) (models.Clip, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Clip{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var c models.Clip
	err = conn.QueryRow(ctx, `
        DELETE FROM clips WHERE id = $1
        RETURNING id, user_id, video_key, thumbnail_key
    `, id).Scan(&c.ID, &c.UserID, &c.VideoKey, &c.ThumbnailKey)
	if err != nil {
		return models.Clip{}, translate(err, "delete clip")
	}
	return c, nil
}

// ObjectKeysForUser returns the storage keys of every clip of a user.
func (r *PostgresClipRepository) ObjectKeysForUser(ctx context.Context, userID string) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT video_key, thumbnail_key FROM clips WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("query clip keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var video, thumb string
		if err := rows.Scan(&video, &thumb); err != nil {
			return nil, fmt.Errorf("scan clip keys: %w", err)
		}
		for _, k := range []string{video, thumb} {
			if k != "" {
				keys = append(keys, k)
			}
		}
	}
	return keys, rows.Err()
}

// Like records a like and increments the counter in one transaction. A
// repeated like changes nothing. It returns whether a like was added and the
// resulting counter.
func (r *PostgresClipRepository) Like(ctx context.Context, userID, clipID string) (bool, int64, error) {
	var (
		added bool
		count int64
	)
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            INSERT INTO likes (user_id, clip_id) VALUES ($1, $2)
            ON CONFLICT (user_id, clip_id) DO NOTHING
        `, userID, clipID)
		if err != nil {
			return translate(err, "insert like")
		}
		added = tag.RowsAffected() == 1

		if !added {
			return translate(tx.QueryRow(ctx, `SELECT likes_count FROM clips WHERE id = $1`, clipID).Scan(&count), "select like count")
		}

		var ownerID, title string
		if err := tx.QueryRow(ctx, `
            UPDATE clips SET likes_count = likes_count + 1 WHERE id = $1
            RETURNING likes_count, user_id, title
        `, clipID).Scan(&count, &ownerID, &title); err != nil {
			return translate(err, "increment likes")
		}
		if ownerID == userID {
			return nil
		}
		return insertActorNotification(ctx, tx, ownerID, userID, models.NotificationLike, clipID, "liked your clip "+quote(title))
	})
	return added, count, err
}

// Share atomically increments the share counter.
func (r *PostgresClipRepository) Share(ctx context.Context, clipID string) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var count int64
	err = conn.QueryRow(ctx, `
        UPDATE clips SET shares_count = shares_count + 1 WHERE id = $1 RETURNING shares_count
    `, clipID).Scan(&count)
	if err != nil {
		return 0, translate(err, "increment shares")
	}
	return count, nil
}

// AddComment appends a comment, increments the counter, notifies the clip
// owner and every mentioned handle, all in one transaction.
func (r *PostgresClipRepository) AddComment(ctx context.Context, comment models.Comment, mentions []string) (models.Comment, error) {
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            INSERT INTO comments (id, clip_id, user_id, content, created_at)
            VALUES ($1, $2, $3, $4, $5)
        `, comment.ID, comment.ClipID, comment.UserID, comment.Content, comment.CreatedAt); err != nil {
			return translate(err, "insert comment")
		}
		if err := tx.QueryRow(ctx, `
            SELECT COALESCE((SELECT username FROM user_profiles WHERE user_id = $1), '')
        `, comment.UserID).Scan(&comment.Username); err != nil {
			return translate(err, "select comment author")
		}

		var ownerID, title string
		if err := tx.QueryRow(ctx, `
            UPDATE clips SET comments_count = comments_count + 1 WHERE id = $1
            RETURNING user_id, title
        `, comment.ClipID).Scan(&ownerID, &title); err != nil {
			return translate(err, "increment comments")
		}

		if ownerID != comment.UserID {
			if err := insertActorNotification(ctx, tx, ownerID, comment.UserID, models.NotificationComment, comment.ClipID, "commented on "+quote(title)); err != nil {
				return err
			}
		}

		if len(mentions) == 0 {
			return nil
		}
		lowered := make([]string, len(mentions))
		for i, m := range mentions {
			lowered[i] = strings.ToLower(m)
		}
		_, err := tx.Exec(ctx, `
            INSERT INTO notifications (user_id, actor_id, type, clip_id, message)
            SELECT p.user_id, $1::UUID, 'mention', $2::UUID, 'mentioned you in a comment'
            FROM user_profiles p
            WHERE lower(p.username) = ANY($3::TEXT[]) AND p.user_id <> $1::UUID
        `, comment.UserID, comment.ClipID, lowered)
		return translate(err, "insert mention notifications")
	})
	if err != nil {
		return models.Comment{}, err
	}
	return comment, nil
}

// ListComments returns a clip's comments, oldest first.
func (r *PostgresClipRepository) ListComments(ctx context.Context, clipID string) ([]models.Comment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT c.id, c.clip_id, c.user_id, COALESCE(p.username, ''), c.content, c.created_at
        FROM comments c
        LEFT JOIN user_profiles p ON p.user_id = c.user_id
        WHERE c.clip_id = $1
        ORDER BY c.created_at ASC
    `, clipID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.ClipID, &c.UserID, &c.Username, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// TrendingGames returns games ordered by their number of public clips.
func (r *PostgresClipRepository) TrendingGames(ctx context.Context, limit int) ([]models.GameCount, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT game, count(*) AS clip_count
        FROM clips
        WHERE visibility = 'public'
        GROUP BY game
        ORDER BY clip_count DESC, game ASC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query trending games: %w", err)
	}
	defer rows.Close()

	games := []models.GameCount{}
	for rows.Next() {
		var g models.GameCount
		if err := rows.Scan(&g.Game, &g.ClipCount); err != nil {
			return nil, fmt.Errorf("scan trending game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// GameStats aggregates the public clips of a game.
func (r *PostgresClipRepository) GameStats(ctx context.Context, game string) (models.GameStats, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.GameStats{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	stats := models.GameStats{Game: game}
	err = conn.QueryRow(ctx, `
        SELECT count(*), count(DISTINCT user_id), COALESCE(sum(likes_count), 0)::BIGINT
        FROM clips
        WHERE visibility = 'public' AND lower(game) = lower($1)
    `, game).Scan(&stats.ClipCount, &stats.Creators, &stats.TotalLikes)
	if err != nil {
		return models.GameStats{}, translate(err, "select game stats")
	}
	return stats, nil
}

func insertActorNotification(ctx context.Context, tx pgx.Tx, recipientID, actorID, kind, clipID, action string) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO notifications (user_id, actor_id, type, clip_id, message)
        SELECT $1::UUID, $2::UUID, $3, $4::UUID, COALESCE(p.username, 'Someone') || ' ' || $5
        FROM user_profiles p WHERE p.user_id = $2::UUID
    `, recipientID, actorID, kind, clipID, action)
	return translate(err, "insert notification")
}

func quote(s string) string {
	return `"` + s + `"`
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
