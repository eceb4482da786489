package authz

import (
	"time"

	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// RoleScope bounds where a role's permissions apply.
type RoleScope string

const (
	ScopeSystem       RoleScope = "system"
	ScopeOrganization RoleScope = "organization"
	ScopeDepartment   RoleScope = "department"
	ScopeOperations   RoleScope = "operations"
	ScopePublic       RoleScope = "public"
)

// Role is a named permission grouping with optional single inheritance.
type Role struct {
	Name               string
	Level              int
	Scope              RoleScope
	Organization       string
	BasePermissions    []shared.Permission
	InheritsFrom       string
	Delegatable        bool
	MaxDelegationLevel int
	Conditions         map[string]string
	SystemRole         bool
	Active             bool
}

// DelegationType classifies how a delegation is bounded.
type DelegationType string

const (
	DelegationTemporary   DelegationType = "temporary"
	DelegationStanding    DelegationType = "standing"
	DelegationConditional DelegationType = "conditional"
)

// DelegationStatus tracks the delegation lifecycle. Revocation is terminal;
// expiry is evaluated lazily at check time, never by a background sweep.
type DelegationStatus string

const (
	DelegationActive  DelegationStatus = "active"
	DelegationRevoked DelegationStatus = "revoked"
	DelegationExpired DelegationStatus = "expired"
)

// Delegation is a time-bounded grant of permissions from one actor to another.
type Delegation struct {
	ID               string
	DelegatorID      string
	DelegateID       string
	Permissions      []shared.Permission
	Type             DelegationType
	Context          string
	Reason           string
	CreatedAt        time.Time
	ExpiresAt        *time.Time
	Status           DelegationStatus
	RevokedBy        string
	RevokedAt        *time.Time
	RevocationReason string
}

// ActiveAt reports whether the delegation grants at the given instant. A
// delegation with ExpiresAt == t grants strictly before t and denies at and
// after t.
func (d Delegation) ActiveAt(now time.Time) bool {
	if d.Status != DelegationActive {
		return false
	}
	return d.ExpiresAt == nil || now.Before(*d.ExpiresAt)
}

// Grants reports whether the delegation covers the permission.
func (d Delegation) Grants(perm shared.Permission) bool {
	for _, p := range d.Permissions {
		if p == perm || p == shared.PermissionWildcard {
			return true
		}
	}
	return false
}

// OverrideType distinguishes grants from denies.
type OverrideType string

const (
	OverrideGrant OverrideType = "grant"
	OverrideDeny  OverrideType = "deny"
)

// Severity marks ordinary overrides apart from emergency elevations.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityCritical Severity = "critical"
)

// Override is an administrator-created grant or deny for a single
// (user, permission) pair. Never mutated after creation; expiry is implicit.
type Override struct {
	ID         string
	UserID     string
	Type       OverrideType
	Permission shared.Permission
	Context    string
	Reason     string
	GrantedBy  string
	CreatedAt  time.Time
	ExpiresAt  *time.Time
	Severity   Severity
}

// ActiveAt reports whether the override applies at the given instant.
func (o Override) ActiveAt(now time.Time) bool {
	return o.ExpiresAt == nil || now.Before(*o.ExpiresAt)
}

// ContextKind classifies permission contexts.
type ContextKind string

const (
	ContextDepartment      ContextKind = "department"
	ContextCorporateTenant ContextKind = "corporate-tenant"
	ContextEmergency       ContextKind = "emergency"
	ContextDefault         ContextKind = "default"
)

// EmergencyContextID is the context recorded on emergency elevations.
const EmergencyContextID = "emergency"

// PermissionContext is a named scope a user can be inside. A session has at
// most one active context.
type PermissionContext struct {
	ID             string
	Kind           ContextKind
	Name           string
	AllowedRoles   []string
	AllowedUserIDs []string
	Metadata       map[string]string
}

// User is the resolver's view of an account.
type User struct {
	ID           string
	Username     string
	RoleName     string
	Organization string
	Department   string
	Active       bool
}

// matchesContext applies exact-match-or-unset semantics: a grant with no
// context applies in every context, otherwise only when the active context id
// is equal. Hierarchical matching is deliberately not implemented.
func matchesContext(grantContext, activeContext string) bool {
	return grantContext == "" || grantContext == activeContext
}
