package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gamefolio/backend/internal/db"
	"github.com/gamefolio/backend/internal/models"
)

// PostgresAccountRepository provides PostgreSQL-backed persistence for accounts and roles.
type PostgresAccountRepository struct {
	pool db.Pool
}

// NewPostgresAccountRepository constructs an account repository backed by PostgreSQL.
func NewPostgresAccountRepository(pool db.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

const accountColumns = `a.id, a.email, a.password_hash, a.email_confirmed_at, a.created_at, a.updated_at`

// Create persists a new account record.
func (r *PostgresAccountRepository) Create(ctx context.Context, account models.Account) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO accounts (id, email, password_hash, email_confirmed_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, account.ID, account.Email, account.PasswordHash, account.EmailConfirmedAt, account.CreatedAt, account.UpdatedAt)
	return translate(err, "insert account")
}

// FindByEmail fetches an account by its email address.
func (r *PostgresAccountRepository) FindByEmail(ctx context.Context, email string) (models.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts a WHERE a.email = $1`, email)
}

// FindByID fetches an account by id.
func (r *PostgresAccountRepository) FindByID(ctx context.Context, id string) (models.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts a WHERE a.id = $1`, id)
}

// FindByUsername resolves a handle, case-insensitively, to its account.
func (r *PostgresAccountRepository) FindByUsername(ctx context.Context, username string) (models.Account, error) {
	return r.findOne(ctx, `
        SELECT `+accountColumns+`
        FROM accounts a
        JOIN user_profiles p ON p.user_id = a.id
        WHERE lower(p.username) = lower($1)
    `, username)
}

func (r *PostgresAccountRepository) findOne(ctx context.Context, query string, arg any) (models.Account, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Account{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var account models.Account
	err = conn.QueryRow(ctx, query, arg).Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.EmailConfirmedAt, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return models.Account{}, translate(err, "select account")
	}
	return account, nil
}

// MarkConfirmed stamps the email confirmation time.
func (r *PostgresAccountRepository) MarkConfirmed(ctx context.Context, id string, at time.Time) error {
	return execOne(ctx, r.pool, "confirm account", `
        UPDATE accounts
        SET email_confirmed_at = COALESCE(email_confirmed_at, $2), updated_at = $2
        WHERE id = $1
    `, id, at)
}

// UpdatePassword replaces the stored password hash.
func (r *PostgresAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	return execOne(ctx, r.pool, "update password", `
        UPDATE accounts
        SET password_hash = $2, updated_at = $3
        WHERE id = $1
    `, id, passwordHash, at)
}

// Delete removes an account and, by cascade, everything it owns.
func (r *PostgresAccountRepository) Delete(ctx context.Context, id string) error {
	return execOne(ctx, r.pool, "delete account", `DELETE FROM accounts WHERE id = $1`, id)
}

// Role returns the role of a user, defaulting to user.
func (r *PostgresAccountRepository) Role(ctx context.Context, userID string) (string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var role string
	err = conn.QueryRow(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, userID).Scan(&role)
	switch err = translate(err, "select role"); {
	case err == nil:
		return role, nil
	case errors.Is(err, ErrNotFound):
		return models.RoleUser, nil
	default:
		return "", err
	}
}

// SetRole upserts the role of a user.
func (r *PostgresAccountRepository) SetRole(ctx context.Context, userID, role string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO user_roles (user_id, role)
        VALUES ($1, $2)
        ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role
    `, userID, role)
	return translate(err, "upsert role")
}

// ListWithRoles returns accounts joined with their handle and role, newest first.
func (r *PostgresAccountRepository) ListWithRoles(ctx context.Context, limit, offset int) ([]models.UserWithRole, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, email, email_confirmed_at, created_at, updated_at, username, role, banned
        FROM users_with_roles
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2
    `, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query users with roles: %w", err)
	}
	defer rows.Close()

	var users []models.UserWithRole
	for rows.Next() {
		var u models.UserWithRole
		if err := rows.Scan(&u.ID, &u.Email, &u.EmailConfirmedAt, &u.CreatedAt, &u.UpdatedAt, &u.Username, &u.Role, &u.Banned); err != nil {
			return nil, fmt.Errorf("scan user with role: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users with roles: %w", err)
	}
	return users, nil
}
