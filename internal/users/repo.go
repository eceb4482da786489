package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence for accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `id, username, password_hash, role_name,
COALESCE(organization, ''), COALESCE(department, ''), active, created_at, updated_at`

// Create inserts a new account. A duplicate username maps to
// ErrInvalidArgument so the handler can surface it without leaking SQL state.
func (r *Repository) Create(ctx context.Context, a Account) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO users
	(id, username, password_hash, role_name, organization, department, active, created_at, updated_at)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)`,
		a.ID, a.Username, a.PasswordHash, a.RoleName, a.Organization, a.Department,
		a.Active, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("users: username %q taken: %w", a.Username, shared.ErrInvalidArgument)
		}
		return fmt.Errorf("users: insert: %w", err)
	}
	return nil
}

// Get fetches an account by id.
func (r *Repository) Get(ctx context.Context, id string) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1`, id)
	return scanAccount(row, id)
}

// GetByUsername fetches an account by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE username = $1`, username)
	return scanAccount(row, username)
}

// List returns all accounts ordered by username.
func (r *Repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows, "")
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// SetActive flips the account's active flag.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("users: set active %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("users: %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

func scanAccount(row pgx.Row, ref string) (*Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.RoleName,
		&a.Organization, &a.Department, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("users: %s: %w", ref, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("users: scan: %w", err)
	}
	return &a, nil
}
