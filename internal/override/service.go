package override

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

// DefaultElevationDuration bounds an emergency elevation when the caller does
// not specify one.
const DefaultElevationDuration = 4 * time.Hour

// RepositoryPort defines data access for overrides.
type RepositoryPort interface {
	Create(ctx context.Context, o authz.Override, elevationID string) error
	OverridesFor(ctx context.Context, userID string) ([]authz.Override, error)
}

// PermissionChecker gates override creation on administrative authority.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID string, perm shared.Permission, contextID string) (bool, error)
}

// Auditor records override events. Emergency elevations use the critical
// path, which is confirmed before the elevation call returns.
type Auditor interface {
	Record(ctx context.Context, event audit.Event)
	RecordCritical(ctx context.Context, event audit.Event) error
}

// ElevationCounter tracks emergency elevations for dashboards.
type ElevationCounter interface {
	EmergencyElevation()
}

// CreateRequest carries the fields of an override request.
type CreateRequest struct {
	UserID     string
	Type       authz.OverrideType
	Permission shared.Permission
	Reason     string
	GrantedBy  string
	Context    string
	ExpiresAt  *time.Time
}

// ElevationRequest carries the fields of an emergency elevation.
type ElevationRequest struct {
	UserID      string
	Permissions []shared.Permission
	Reason      string
	Duration    *time.Duration
	ElevatedBy  string
	Context     string
}

// Elevation is the result of a granted emergency elevation.
type Elevation struct {
	ID        string
	ExpiresAt time.Time
}

// Service creates grant/deny overrides and emergency elevations. Overrides
// are the escape hatch: a grant does not require the granter to hold the
// permission themselves, which is exactly why every creation is audited.
type Service struct {
	repo    RepositoryPort
	users   authz.UserSource
	checker PermissionChecker
	auditor Auditor
	metrics ElevationCounter
	logger  *slog.Logger
	now     func() time.Time
}

// ServiceConfig collects service dependencies.
type ServiceConfig struct {
	Repo    RepositoryPort
	Users   authz.UserSource
	Checker PermissionChecker
	Auditor Auditor
	Metrics ElevationCounter
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
		users:   cfg.Users,
		checker: cfg.Checker,
		auditor: cfg.Auditor,
		metrics: cfg.Metrics,
		logger:  logger,
		now:     now,
	}
}

// Create persists a single grant or deny override. Only actors with
// administrative override authority may call it; a deny needs no further
// check since administrators may always restrict.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*authz.Override, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("override: reason is required: %w", shared.ErrInvalidArgument)
	}
	if !shared.ValidPermission(req.Permission) {
		return nil, fmt.Errorf("override: unknown permission %q: %w", req.Permission, shared.ErrInvalidArgument)
	}
	if req.Type != authz.OverrideGrant && req.Type != authz.OverrideDeny {
		return nil, fmt.Errorf("override: unknown type %q: %w", req.Type, shared.ErrInvalidArgument)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return nil, fmt.Errorf("override: expiry must be in the future: %w", shared.ErrInvalidArgument)
	}
	if err := s.requireAdmin(ctx, req.GrantedBy); err != nil {
		return nil, err
	}
	if _, err := s.users.GetUser(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("override: target user %s: %w", req.UserID, err)
	}

	o := authz.Override{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		Type:       req.Type,
		Permission: req.Permission,
		Context:    req.Context,
		Reason:     strings.TrimSpace(req.Reason),
		GrantedBy:  req.GrantedBy,
		CreatedAt:  s.now().UTC(),
		ExpiresAt:  req.ExpiresAt,
		Severity:   authz.SeverityNormal,
	}
	if err := s.repo.Create(ctx, o, ""); err != nil {
		return nil, fmt.Errorf("override: create: %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionOverrideCreated,
		EntityType: "PermissionOverride",
		EntityID:   o.ID,
		Changes: map[string]any{
			"userId":     o.UserID,
			"type":       o.Type,
			"permission": o.Permission,
			"context":    o.Context,
			"reason":     o.Reason,
			"expiresAt":  o.ExpiresAt,
		},
	})
	return &o, nil
}

// CreateEmergencyElevation grants critical-severity overrides for each
// requested permission, bounded by the default duration when unspecified.
// The audit write is confirmed before the call returns successfully; a
// failed write fails the elevation and is escalated, since a granted but
// unaudited elevation is a compliance gap.
func (s *Service) CreateEmergencyElevation(ctx context.Context, req ElevationRequest) (*Elevation, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("override: reason is required: %w", shared.ErrInvalidArgument)
	}
	if len(req.Permissions) == 0 {
		return nil, fmt.Errorf("override: empty permission set: %w", shared.ErrInvalidArgument)
	}
	if err := shared.ValidatePermissions(req.Permissions); err != nil {
		return nil, fmt.Errorf("override: %w", err)
	}
	if req.Duration != nil && *req.Duration <= 0 {
		return nil, fmt.Errorf("override: duration must be positive: %w", shared.ErrInvalidArgument)
	}
	if err := s.requireAdmin(ctx, req.ElevatedBy); err != nil {
		return nil, err
	}
	if _, err := s.users.GetUser(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("override: target user %s: %w", req.UserID, err)
	}

	duration := DefaultElevationDuration
	if req.Duration != nil {
		duration = *req.Duration
	}
	contextID := req.Context
	if contextID == "" {
		contextID = authz.EmergencyContextID
	}

	now := s.now().UTC()
	expires := now.Add(duration)
	elevationID := uuid.NewString()

	for _, perm := range req.Permissions {
		o := authz.Override{
			ID:         uuid.NewString(),
			UserID:     req.UserID,
			Type:       authz.OverrideGrant,
			Permission: perm,
			Context:    contextID,
			Reason:     strings.TrimSpace(req.Reason),
			GrantedBy:  req.ElevatedBy,
			CreatedAt:  now,
			ExpiresAt:  &expires,
			Severity:   authz.SeverityCritical,
		}
		if err := s.repo.Create(ctx, o, elevationID); err != nil {
			return nil, fmt.Errorf("override: create elevation: %w", err)
		}
	}

	err := s.auditor.RecordCritical(ctx, audit.Event{
		Action:     audit.ActionEmergencyPermission,
		EntityType: "EmergencyElevation",
		EntityID:   elevationID,
		Changes: map[string]any{
			"userId":      req.UserID,
			"permissions": req.Permissions,
			"reason":      strings.TrimSpace(req.Reason),
			"elevatedBy":  req.ElevatedBy,
			"context":     contextID,
			"expiresAt":   expires,
		},
	})
	if err != nil {
		s.logger.Error("emergency elevation granted but not audited",
			slog.String("elevation_id", elevationID),
			slog.String("user_id", req.UserID),
			slog.Any("error", err))
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.EmergencyElevation()
	}
	return &Elevation{ID: elevationID, ExpiresAt: expires}, nil
}

func (s *Service) requireAdmin(ctx context.Context, actorID string) error {
	admin, err := s.checker.HasPermission(ctx, actorID, shared.PermOverridesManage, "")
	if err != nil {
		return fmt.Errorf("override: check granter authority: %w", err)
	}
	if !admin {
		return fmt.Errorf("override: %s lacks administrative authority: %w", actorID, shared.ErrForbidden)
	}
	return nil
}
