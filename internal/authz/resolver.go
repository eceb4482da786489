package authz

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// UserSource resolves user accounts for permission checks.
type UserSource interface {
	GetUser(ctx context.Context, id string) (*User, error)
}

// DelegationSource returns delegations whose stored status is active. Expiry
// filtering is the resolver's job, so two checks straddling an expiry boundary
// may legitimately disagree without any status write in between.
type DelegationSource interface {
	ActiveDelegationsFor(ctx context.Context, delegateID string) ([]Delegation, error)
}

// OverrideSource returns all overrides recorded for a user.
type OverrideSource interface {
	OverridesFor(ctx context.Context, userID string) ([]Override, error)
}

// ResolverConfig collects resolver dependencies.
type ResolverConfig struct {
	Catalog     *Catalog
	Users       UserSource
	Delegations DelegationSource
	Overrides   OverrideSource
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Resolver computes effective permissions for a (user, context) pair.
//
// Resolution order is a hard contract, highest precedence first:
//
//  1. active deny override          -> deny, short-circuits everything
//  2. active critical elevation     -> grant (context not considered)
//  3. active grant override         -> grant
//  4. active delegation             -> grant
//  5. role chain base permissions   -> grant ("*" means all)
//  6. otherwise                     -> deny
type Resolver struct {
	catalog     *Catalog
	users       UserSource
	delegations DelegationSource
	overrides   OverrideSource
	logger      *slog.Logger
	now         func() time.Time
}

// NewResolver constructs a Resolver. Clock defaults to time.Now.
func NewResolver(cfg ResolverConfig) *Resolver {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		catalog:     cfg.Catalog,
		users:       cfg.Users,
		delegations: cfg.Delegations,
		overrides:   cfg.Overrides,
		logger:      logger,
		now:         now,
	}
}

// HasPermission reports whether the user holds the permission in the given
// context. Unknown users deny with shared.ErrNotFound; a role inheritance
// cycle denies with shared.ErrInconsistent and is logged as an integrity
// error, never a silent grant.
func (r *Resolver) HasPermission(ctx context.Context, userID string, perm shared.Permission, contextID string) (bool, error) {
	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("authz: user %s: %w", userID, err)
	}
	if !user.Active {
		return false, nil
	}
	now := r.now()

	overrides, err := r.overrides.OverridesFor(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("authz: overrides for %s: %w", userID, err)
	}
	for _, o := range overrides {
		if o.Type == OverrideDeny && o.Permission == perm && o.ActiveAt(now) && matchesContext(o.Context, contextID) {
			return false, nil
		}
	}
	for _, o := range overrides {
		if o.Type == OverrideGrant && o.Severity == SeverityCritical && o.Permission == perm && o.ActiveAt(now) {
			return true, nil
		}
	}
	for _, o := range overrides {
		if o.Type == OverrideGrant && o.Permission == perm && o.ActiveAt(now) && matchesContext(o.Context, contextID) {
			return true, nil
		}
	}

	delegations, err := r.delegations.ActiveDelegationsFor(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("authz: delegations for %s: %w", userID, err)
	}
	for _, d := range delegations {
		if d.ActiveAt(now) && matchesContext(d.Context, contextID) && d.Grants(perm) {
			return true, nil
		}
	}

	base, err := r.catalog.EffectiveBase(user.RoleName)
	if err != nil {
		r.logger.Error("role chain resolution failed",
			slog.String("user_id", userID),
			slog.String("role", user.RoleName),
			slog.Any("error", err))
		return false, err
	}
	if _, ok := base[shared.PermissionWildcard]; ok {
		return true, nil
	}
	_, ok := base[perm]
	return ok, nil
}

// EffectivePermissions returns the final resolved permission set for the user
// in the given context, sorted. The wildcard expands to every registered
// permission before deny overrides are subtracted.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID, contextID string) ([]shared.Permission, error) {
	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("authz: user %s: %w", userID, err)
	}
	if !user.Active {
		return nil, nil
	}
	now := r.now()

	effective := make(map[shared.Permission]struct{})

	base, err := r.catalog.EffectiveBase(user.RoleName)
	if err != nil {
		r.logger.Error("role chain resolution failed",
			slog.String("user_id", userID),
			slog.String("role", user.RoleName),
			slog.Any("error", err))
		return nil, err
	}
	if _, wildcard := base[shared.PermissionWildcard]; wildcard {
		for _, p := range shared.AllPermissions() {
			effective[p] = struct{}{}
		}
	} else {
		for p := range base {
			effective[p] = struct{}{}
		}
	}

	delegations, err := r.delegations.ActiveDelegationsFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("authz: delegations for %s: %w", userID, err)
	}
	for _, d := range delegations {
		if !d.ActiveAt(now) || !matchesContext(d.Context, contextID) {
			continue
		}
		for _, p := range d.Permissions {
			if p == shared.PermissionWildcard {
				for _, all := range shared.AllPermissions() {
					effective[all] = struct{}{}
				}
				continue
			}
			effective[p] = struct{}{}
		}
	}

	overrides, err := r.overrides.OverridesFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("authz: overrides for %s: %w", userID, err)
	}
	for _, o := range overrides {
		if o.Type != OverrideGrant || !o.ActiveAt(now) {
			continue
		}
		if o.Severity == SeverityCritical || matchesContext(o.Context, contextID) {
			effective[o.Permission] = struct{}{}
		}
	}
	// Deny overrides win over every other source.
	for _, o := range overrides {
		if o.Type == OverrideDeny && o.ActiveAt(now) && matchesContext(o.Context, contextID) {
			delete(effective, o.Permission)
		}
	}

	out := make([]shared.Permission, 0, len(effective))
	for p := range effective {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// HoldsAll reports whether every requested permission is present in the
// effective set. Used by the delegation subset guard.
func HoldsAll(effective []shared.Permission, requested []shared.Permission) bool {
	set := make(map[shared.Permission]struct{}, len(effective))
	for _, p := range effective {
		set[p] = struct{}{}
	}
	for _, p := range requested {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}
