package delegation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voyagedesk/voyagedesk/internal/audit"
	"github.com/voyagedesk/voyagedesk/internal/authz"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// RepositoryPort defines data access for delegations.
type RepositoryPort interface {
	Create(ctx context.Context, d authz.Delegation) error
	Get(ctx context.Context, id string) (*authz.Delegation, error)
	Revoke(ctx context.Context, id, revokedBy, reason string, at time.Time) error
	ListByDelegator(ctx context.Context, delegatorID string) ([]authz.Delegation, error)
	ListByDelegate(ctx context.Context, delegateID string) ([]authz.Delegation, error)
}

// PermissionChecker is the slice of the resolver the service needs.
type PermissionChecker interface {
	EffectivePermissions(ctx context.Context, userID, contextID string) ([]shared.Permission, error)
	HasPermission(ctx context.Context, userID string, perm shared.Permission, contextID string) (bool, error)
}

// Auditor records delegation lifecycle events.
type Auditor interface {
	Record(ctx context.Context, event audit.Event)
}

// CreateRequest carries the fields of a delegation request.
type CreateRequest struct {
	DelegatorID string
	DelegateID  string
	Permissions []shared.Permission
	Type        authz.DelegationType
	Reason      string
	Duration    *time.Duration
	Context     string
}

// Service owns the delegation lifecycle: creation with the privilege
// escalation guard, terminal revocation, and active projections.
type Service struct {
	repo     RepositoryPort
	catalog  *authz.Catalog
	users    authz.UserSource
	checker  PermissionChecker
	auditor  Auditor
	logger   *slog.Logger
	now      func() time.Time
}

// ServiceConfig collects service dependencies.
type ServiceConfig struct {
	Repo    RepositoryPort
	Catalog *authz.Catalog
	Users   authz.UserSource
	Checker PermissionChecker
	Auditor Auditor
	Logger  *slog.Logger
	Clock   func() time.Time
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    cfg.Repo,
		catalog: cfg.Catalog,
		users:   cfg.Users,
		checker: cfg.Checker,
		auditor: cfg.Auditor,
		logger:  logger,
		now:     now,
	}
}

// Create validates and persists a new delegation. The delegator's role must be
// delegatable and every requested permission must already be in the
// delegator's effective set: delegation can never exceed the delegator's own
// grant.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*authz.Delegation, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("delegation: reason is required: %w", shared.ErrInvalidArgument)
	}
	if len(req.Permissions) == 0 {
		return nil, fmt.Errorf("delegation: empty permission set: %w", shared.ErrInvalidArgument)
	}
	if err := shared.ValidatePermissions(req.Permissions); err != nil {
		return nil, fmt.Errorf("delegation: %w", err)
	}
	switch req.Type {
	case authz.DelegationTemporary, authz.DelegationStanding, authz.DelegationConditional:
	default:
		return nil, fmt.Errorf("delegation: unknown type %q: %w", req.Type, shared.ErrInvalidArgument)
	}
	if req.Duration != nil && *req.Duration <= 0 {
		return nil, fmt.Errorf("delegation: duration must be positive: %w", shared.ErrInvalidArgument)
	}

	delegator, err := s.users.GetUser(ctx, req.DelegatorID)
	if err != nil {
		return nil, fmt.Errorf("delegation: delegator %s: %w", req.DelegatorID, err)
	}
	if _, err := s.users.GetUser(ctx, req.DelegateID); err != nil {
		return nil, fmt.Errorf("delegation: delegate %s: %w", req.DelegateID, err)
	}
	role, ok := s.catalog.Role(delegator.RoleName)
	if !ok {
		return nil, fmt.Errorf("delegation: role %q: %w", delegator.RoleName, shared.ErrNotFound)
	}
	if !role.Delegatable {
		return nil, fmt.Errorf("delegation: role %q is not delegatable: %w", role.Name, shared.ErrForbidden)
	}

	effective, err := s.checker.EffectivePermissions(ctx, req.DelegatorID, req.Context)
	if err != nil {
		return nil, fmt.Errorf("delegation: resolve delegator permissions: %w", err)
	}
	if !authz.HoldsAll(effective, req.Permissions) {
		return nil, fmt.Errorf("delegation: delegator does not hold every requested permission: %w", shared.ErrForbidden)
	}

	now := s.now().UTC()
	d := authz.Delegation{
		ID:          uuid.NewString(),
		DelegatorID: req.DelegatorID,
		DelegateID:  req.DelegateID,
		Permissions: req.Permissions,
		Type:        req.Type,
		Context:     req.Context,
		Reason:      strings.TrimSpace(req.Reason),
		CreatedAt:   now,
		Status:      authz.DelegationActive,
	}
	if req.Duration != nil {
		expires := now.Add(*req.Duration)
		d.ExpiresAt = &expires
	}

	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("delegation: create: %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionPermissionDelegated,
		EntityType: "PermissionDelegation",
		EntityID:   d.ID,
		EntityName: fmt.Sprintf("%s -> %s", d.DelegatorID, d.DelegateID),
		Changes: map[string]any{
			"delegateId":  d.DelegateID,
			"permissions": d.Permissions,
			"type":        d.Type,
			"context":     d.Context,
			"reason":      d.Reason,
			"expiresAt":   d.ExpiresAt,
		},
	})
	return &d, nil
}

// Revoke terminates a delegation. Only the original delegator or an actor
// with administrative override authority may revoke; a revoked delegation can
// never be reactivated.
func (s *Service) Revoke(ctx context.Context, delegationID, revokedBy, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("delegation: revocation reason is required: %w", shared.ErrInvalidArgument)
	}
	d, err := s.repo.Get(ctx, delegationID)
	if err != nil {
		return fmt.Errorf("delegation: %w", err)
	}
	if d.Status != authz.DelegationActive {
		return fmt.Errorf("delegation: %s already %s: %w", delegationID, d.Status, shared.ErrInvalidArgument)
	}
	if revokedBy != d.DelegatorID {
		admin, err := s.checker.HasPermission(ctx, revokedBy, shared.PermOverridesManage, "")
		if err != nil {
			return fmt.Errorf("delegation: check revoker authority: %w", err)
		}
		if !admin {
			return fmt.Errorf("delegation: %s may not revoke %s: %w", revokedBy, delegationID, shared.ErrForbidden)
		}
	}

	now := s.now().UTC()
	if err := s.repo.Revoke(ctx, delegationID, revokedBy, strings.TrimSpace(reason), now); err != nil {
		return fmt.Errorf("delegation: revoke: %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionDelegationRevoked,
		EntityType: "PermissionDelegation",
		EntityID:   delegationID,
		EntityName: fmt.Sprintf("%s -> %s", d.DelegatorID, d.DelegateID),
		Changes: map[string]any{
			"revokedBy": revokedBy,
			"reason":    strings.TrimSpace(reason),
		},
	})
	return nil
}

// ListActive returns the delegator's delegations that are active and not
// expired at call time.
func (s *Service) ListActive(ctx context.Context, delegatorID string) ([]authz.Delegation, error) {
	rows, err := s.repo.ListByDelegator(ctx, delegatorID)
	if err != nil {
		return nil, fmt.Errorf("delegation: list by delegator: %w", err)
	}
	return filterActive(rows, s.now()), nil
}

// ListDelegated returns active, unexpired delegations received by the
// delegate.
func (s *Service) ListDelegated(ctx context.Context, delegateID string) ([]authz.Delegation, error) {
	rows, err := s.repo.ListByDelegate(ctx, delegateID)
	if err != nil {
		return nil, fmt.Errorf("delegation: list by delegate: %w", err)
	}
	return filterActive(rows, s.now()), nil
}

func filterActive(rows []authz.Delegation, now time.Time) []authz.Delegation {
	active := make([]authz.Delegation, 0, len(rows))
	for _, d := range rows {
		if d.ActiveAt(now) {
			active = append(active, d)
		}
	}
	return active
}
