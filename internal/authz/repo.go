package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// Repository loads the role catalog and permission contexts from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadRoles returns every role row for catalog construction.
func (r *Repository) LoadRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, level, scope, organization, base_permissions, COALESCE(inherits_from, ''),
	delegatable, max_delegation_level, conditions, is_system_role, active FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("authz: load roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		var scope string
		var perms []string
		if err := rows.Scan(&role.Name, &role.Level, &scope, &role.Organization, &perms,
			&role.InheritsFrom, &role.Delegatable, &role.MaxDelegationLevel,
			&role.Conditions, &role.SystemRole, &role.Active); err != nil {
			return nil, fmt.Errorf("authz: scan role: %w", err)
		}
		role.Scope = RoleScope(scope)
		role.BasePermissions = toPermissions(perms)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("authz: load roles: %w", err)
	}
	return roles, nil
}

// LoadContexts returns every permission context.
func (r *Repository) LoadContexts(ctx context.Context) ([]PermissionContext, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, kind, name, allowed_roles, allowed_user_ids, metadata
	FROM permission_contexts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("authz: load contexts: %w", err)
	}
	defer rows.Close()

	var contexts []PermissionContext
	for rows.Next() {
		pc, err := scanContext(rows)
		if err != nil {
			return nil, err
		}
		contexts = append(contexts, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("authz: load contexts: %w", err)
	}
	return contexts, nil
}

// GetContext fetches a single permission context by id.
func (r *Repository) GetContext(ctx context.Context, id string) (*PermissionContext, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, kind, name, allowed_roles, allowed_user_ids, metadata
	FROM permission_contexts WHERE id = $1`, id)
	pc, err := scanContext(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("authz: context %s: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return &pc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContext(row rowScanner) (PermissionContext, error) {
	var pc PermissionContext
	var kind string
	if err := row.Scan(&pc.ID, &kind, &pc.Name, &pc.AllowedRoles, &pc.AllowedUserIDs, &pc.Metadata); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PermissionContext{}, err
		}
		return PermissionContext{}, fmt.Errorf("authz: scan context: %w", err)
	}
	pc.Kind = ContextKind(kind)
	return pc, nil
}

func toPermissions(raw []string) []shared.Permission {
	perms := make([]shared.Permission, len(raw))
	for i, p := range raw {
		perms[i] = shared.Permission(p)
	}
	return perms
}
