package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gamefolio/backend/internal/db"
	"github.com/gamefolio/backend/internal/models"
)

// PostgresNotificationRepository provides PostgreSQL-backed persistence for notifications.
type PostgresNotificationRepository struct {
	pool db.Pool
}

// NewPostgresNotificationRepository constructs a notification repository backed by PostgreSQL.
func NewPostgresNotificationRepository(pool db.Pool) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{pool: pool}
}

// ListAndMarkRead returns the latest notifications of a user, as they were
// before this call, and marks them read.
func (r *PostgresNotificationRepository) ListAndMarkRead(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	notifications := []models.Notification{}
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
            SELECT n.id, n.user_id, n.actor_id, COALESCE(p.username, ''), COALESCE(p.avatar_url, ''),
                   n.type, n.clip_id, n.message, n.read, n.created_at
            FROM notifications n
            LEFT JOIN user_profiles p ON p.user_id = n.actor_id
            WHERE n.user_id = $1
            ORDER BY n.created_at DESC
            LIMIT $2
        `, userID, limit)
		if err != nil {
			return fmt.Errorf("query notifications: %w", err)
		}

		var unread []string
		for rows.Next() {
			var (
				n       models.Notification
				actorID *string
				clipID  *string
			)
			if err := rows.Scan(&n.ID, &n.UserID, &actorID, &n.ActorUsername, &n.ActorAvatar, &n.Type, &clipID, &n.Message, &n.Read, &n.CreatedAt); err != nil {
				rows.Close()
				return fmt.Errorf("scan notification: %w", err)
			}
			if actorID != nil {
				n.ActorID = *actorID
			}
			if clipID != nil {
				n.ClipID = *clipID
			}
			if !n.Read {
				unread = append(unread, n.ID)
			}
			notifications = append(notifications, n)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate notifications: %w", err)
		}

		if len(unread) == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE notifications SET read = true WHERE id = ANY($1::UUID[])`, unread)
		return translate(err, "mark notifications read")
	})
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

// UnreadCount returns the number of unread notifications of a user.
func (r *PostgresNotificationRepository) UnreadCount(ctx context.Context, userID string) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var count int64
	if err := conn.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE user_id = $1 AND NOT read`, userID).Scan(&count); err != nil {
		return 0, translate(err, "count unread notifications")
	}
	return count, nil
}

// CreateSystem stores a system notification for a user.
func (r *PostgresNotificationRepository) CreateSystem(ctx context.Context, userID, message string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO notifications (user_id, type, message) VALUES ($1, 'system', $2)
    `, userID, message)
	return translate(err, "insert system notification")
}
