package override

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyagedesk/voyagedesk/internal/authz"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// Repository persists overrides in PostgreSQL. Rows are never updated after
// creation; expiry is evaluated by readers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new override. elevationID groups the overrides of one
// emergency elevation and is empty for ordinary overrides.
func (r *Repository) Create(ctx context.Context, o authz.Override, elevationID string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO permission_overrides
	(id, user_id, type, permission, context, reason, granted_by, created_at, expires_at, severity, elevation_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))`,
		o.ID, o.UserID, string(o.Type), string(o.Permission), o.Context, o.Reason,
		o.GrantedBy, o.CreatedAt, o.ExpiresAt, string(o.Severity), elevationID)
	if err != nil {
		return fmt.Errorf("override: insert: %w", err)
	}
	return nil
}

// OverridesFor returns every override recorded for the user. The resolver
// filters expiry at check time; this projection stays lazy on purpose.
func (r *Repository) OverridesFor(ctx context.Context, userID string) ([]authz.Override, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, type, permission, COALESCE(context, ''), reason,
	granted_by, created_at, expires_at, severity
	FROM permission_overrides WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("override: list for %s: %w", userID, err)
	}
	defer rows.Close()

	var overrides []authz.Override
	for rows.Next() {
		var o authz.Override
		var typ, perm, severity string
		if err := rows.Scan(&o.ID, &o.UserID, &typ, &perm, &o.Context, &o.Reason,
			&o.GrantedBy, &o.CreatedAt, &o.ExpiresAt, &severity); err != nil {
			return nil, fmt.Errorf("override: scan: %w", err)
		}
		o.Type = authz.OverrideType(typ)
		o.Permission = shared.Permission(perm)
		o.Severity = authz.Severity(severity)
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}
