package authz

import (
	"fmt"
	"sort"

	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// Catalog is the role hierarchy, built once at startup from configuration.
// Lookups are read-only after construction.
type Catalog struct {
	roles map[string]Role
}

// NewCatalog builds a catalog and rejects duplicate names and unregistered
// permissions. Inheritance cycles are not rejected here: a corrupted catalog
// must still construct so the rest of the system can surface the integrity
// error per check, via EffectiveBase.
func NewCatalog(roles []Role) (*Catalog, error) {
	byName := make(map[string]Role, len(roles))
	for _, role := range roles {
		if role.Name == "" {
			return nil, fmt.Errorf("authz: role name required: %w", shared.ErrInvalidArgument)
		}
		if _, exists := byName[role.Name]; exists {
			return nil, fmt.Errorf("authz: duplicate role %q: %w", role.Name, shared.ErrInvalidArgument)
		}
		if err := shared.ValidatePermissions(role.BasePermissions); err != nil {
			return nil, fmt.Errorf("authz: role %q: %w", role.Name, err)
		}
		byName[role.Name] = role
	}
	for _, role := range byName {
		if role.InheritsFrom != "" {
			if _, ok := byName[role.InheritsFrom]; !ok {
				return nil, fmt.Errorf("authz: role %q inherits unknown role %q: %w", role.Name, role.InheritsFrom, shared.ErrInvalidArgument)
			}
		}
	}
	return &Catalog{roles: byName}, nil
}

// Role returns the role by name.
func (c *Catalog) Role(name string) (Role, bool) {
	role, ok := c.roles[name]
	return role, ok
}

// Roles returns all roles sorted by name.
func (c *Catalog) Roles() []Role {
	out := make([]Role, 0, len(c.roles))
	for _, role := range c.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EffectiveBase walks the inheritance chain from the named role, unioning
// BasePermissions. A revisited role aborts with ErrInconsistent: a cycle must
// deny, never loop and never silently grant.
func (c *Catalog) EffectiveBase(name string) (map[shared.Permission]struct{}, error) {
	perms := make(map[shared.Permission]struct{})
	visited := make(map[string]struct{})
	current := name
	for current != "" {
		if _, seen := visited[current]; seen {
			return nil, fmt.Errorf("authz: role inheritance cycle at %q: %w", current, shared.ErrInconsistent)
		}
		visited[current] = struct{}{}
		role, ok := c.roles[current]
		if !ok {
			return nil, fmt.Errorf("authz: role %q: %w", current, shared.ErrNotFound)
		}
		if role.Active {
			for _, p := range role.BasePermissions {
				perms[p] = struct{}{}
			}
		}
		current = role.InheritsFrom
	}
	return perms, nil
}

// Validate walks every role chain once. Intended for startup, where a cycle
// should be reported immediately rather than discovered one check at a time.
func (c *Catalog) Validate() error {
	for name := range c.roles {
		if _, err := c.EffectiveBase(name); err != nil {
			return err
		}
	}
	return nil
}
