package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcuspat/devxplatform/internal/platform/httpx"
)

// Repository defines persistence operations for user accounts.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, req ListUsersRequest) ([]User, int, error)
	Create(ctx context.Context, user User) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = "id, email, username, full_name, password_hash, is_active, is_superuser, created_at, updated_at"

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.PasswordHash,
		&u.IsActive, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Get fetches a user by ID.
func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanUser(row)
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
	return scanUser(row)
}

// List returns users ordered by creation time plus the unfiltered-by-page total.
func (r *PGRepository) List(ctx context.Context, req ListUsersRequest) ([]User, int, error) {
	where := ""
	args := []any{}
	if req.Search != nil && *req.Search != "" {
		where = "WHERE email ILIKE $1 OR username ILIKE $1"
		args = append(args, "%"+*req.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf("SELECT "+userColumns+" FROM users %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, len(args)+1, len(args)+2)
	args = append(args, limit, req.Skip)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.PasswordHash,
			&u.IsActive, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// Create inserts a new user row.
func (r *PGRepository) Create(ctx context.Context, user User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, username, full_name, password_hash, is_active, is_superuser, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Email, user.Username, user.FullName, user.PasswordHash,
		user.IsActive, user.IsSuperuser, user.CreatedAt, user.UpdatedAt)
	return mapPGError(err)
}

// Update applies a partial column update.
func (r *PGRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	sets := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+2)
	for _, col := range []string{"email", "username", "full_name", "password_hash", "is_active"} {
		val, ok := updates[col]
		if !ok {
			continue
		}
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// Delete removes a user row.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// mapPGError converts unique constraint violations to the duplicate sentinel.
func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", httpx.ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
