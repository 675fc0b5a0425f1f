package repositories

import (
	"context"
	"fmt"

	"github.com/gamefolio/backend/internal/db"
	"github.com/gamefolio/backend/internal/models"
)

// PostgresActivityRepository provides PostgreSQL-backed persistence for activity logs.
type PostgresActivityRepository struct {
	pool db.Pool
}

// NewPostgresActivityRepository constructs an activity repository backed by PostgreSQL.
func NewPostgresActivityRepository(pool db.Pool) *PostgresActivityRepository {
	return &PostgresActivityRepository{pool: pool}
}

// Insert appends an activity entry.
func (r *PostgresActivityRepository) Insert(ctx context.Context, entry models.ActivityLog) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	_, err = conn.Exec(ctx, `
        INSERT INTO activity_logs (id, user_id, action_type, resource_type, resource_id, details, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, entry.ID, entry.UserID, entry.ActionType, entry.ResourceType, entry.ResourceID, details, entry.CreatedAt)
	return translate(err, "insert activity log")
}

// List returns the most recent activity entries.
func (r *PostgresActivityRepository) List(ctx context.Context, limit int) ([]models.ActivityLog, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, user_id, action_type, resource_type, resource_id, details, created_at
        FROM activity_logs
        ORDER BY created_at DESC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query activity logs: %w", err)
	}
	defer rows.Close()

	entries := []models.ActivityLog{}
	for rows.Next() {
		var e models.ActivityLog
		if err := rows.Scan(&e.ID, &e.UserID, &e.ActionType, &e.ResourceType, &e.ResourceID, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity logs: %w", err)
	}
	return entries, nil
}
