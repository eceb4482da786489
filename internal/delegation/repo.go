package delegation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyagedesk/voyagedesk/internal/authz"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// Repository persists delegations in PostgreSQL. Revocation is a one-way
// status transition; rows are never deleted.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const delegationColumns = `id, delegator_id, delegate_id, permissions, type,
COALESCE(context, ''), reason, created_at, expires_at, status,
COALESCE(revoked_by, ''), revoked_at, COALESCE(revocation_reason, '')`

// Create inserts a new delegation.
func (r *Repository) Create(ctx context.Context, d authz.Delegation) error {
	perms := make([]string, len(d.Permissions))
	for i, p := range d.Permissions {
		perms[i] = string(p)
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO permission_delegations
	(id, delegator_id, delegate_id, permissions, type, context, reason, created_at, expires_at, status)
	VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10)`,
		d.ID, d.DelegatorID, d.DelegateID, perms, string(d.Type), d.Context,
		d.Reason, d.CreatedAt, d.ExpiresAt, string(d.Status))
	if err != nil {
		return fmt.Errorf("delegation: insert: %w", err)
	}
	return nil
}

// Get fetches a single delegation by ID.
func (r *Repository) Get(ctx context.Context, id string) (*authz.Delegation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+delegationColumns+` FROM permission_delegations WHERE id = $1`, id)
	d, err := scanDelegation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("delegation: %s: %w", id, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("delegation: get %s: %w", id, err)
	}
	return d, nil
}

// Revoke marks a delegation revoked. The WHERE clause guards against racing
// revocations; losing the race surfaces as an inconsistency for the caller.
func (r *Repository) Revoke(ctx context.Context, id, revokedBy, reason string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE permission_delegations
	SET status = 'revoked', revoked_by = $2, revoked_at = $3, revocation_reason = $4
	WHERE id = $1 AND status = 'active'`, id, revokedBy, at, reason)
	if err != nil {
		return fmt.Errorf("delegation: revoke %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delegation: %s not active: %w", id, shared.ErrInconsistent)
	}
	return nil
}

// ListByDelegator returns every delegation issued by the delegator.
func (r *Repository) ListByDelegator(ctx context.Context, delegatorID string) ([]authz.Delegation, error) {
	return r.list(ctx, "delegator_id", delegatorID)
}

// ListByDelegate returns every delegation received by the delegate.
func (r *Repository) ListByDelegate(ctx context.Context, delegateID string) ([]authz.Delegation, error) {
	return r.list(ctx, "delegate_id", delegateID)
}

func (r *Repository) list(ctx context.Context, column, userID string) ([]authz.Delegation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+delegationColumns+
		` FROM permission_delegations WHERE `+column+` = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("delegation: list by %s: %w", column, err)
	}
	defer rows.Close()

	var out []authz.Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, fmt.Errorf("delegation: scan: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanDelegation(row pgx.Row) (*authz.Delegation, error) {
	var d authz.Delegation
	var perms []string
	var typ, status string
	if err := row.Scan(&d.ID, &d.DelegatorID, &d.DelegateID, &perms, &typ,
		&d.Context, &d.Reason, &d.CreatedAt, &d.ExpiresAt, &status,
		&d.RevokedBy, &d.RevokedAt, &d.RevocationReason); err != nil {
		return nil, err
	}
	d.Permissions = make([]shared.Permission, len(perms))
	for i, p := range perms {
		d.Permissions[i] = shared.Permission(p)
	}
	d.Type = authz.DelegationType(typ)
	d.Status = authz.DelegationStatus(status)
	return &d, nil
}

// ActiveDelegationsFor implements the resolver's delegation source: every
// active-status delegation received by the user. Expiry stays lazy; the
// resolver evaluates it against its own clock.
func (r *Repository) ActiveDelegationsFor(ctx context.Context, delegateID string) ([]authz.Delegation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+delegationColumns+
		` FROM permission_delegations WHERE delegate_id = $1 AND status = 'active'`, delegateID)
	if err != nil {
		return nil, fmt.Errorf("delegation: active for %s: %w", delegateID, err)
	}
	defer rows.Close()

	var out []authz.Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, fmt.Errorf("delegation: scan: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
