// Package sessctx owns the active-context lifecycle of a session: listing
// the contexts a user may enter and switching between them.
package sessctx

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/voyagedesk/voyagedesk/internal/audit"
	"github.com/voyagedesk/voyagedesk/internal/authz"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// ContextSource provides the registered permission contexts.
type ContextSource interface {
	LoadContexts(ctx context.Context) ([]authz.PermissionContext, error)
	GetContext(ctx context.Context, id string) (*authz.PermissionContext, error)
}

// SessionUpdater is the slice of the session store the service needs.
type SessionUpdater interface {
	Get(ctx context.Context, id string) (*shared.Session, error)
	SetActiveContext(ctx context.Context, sessionID, contextID string) (string, error)
}

// PermissionResolver projects the permission set applied after a switch.
type PermissionResolver interface {
	EffectivePermissions(ctx context.Context, userID, contextID string) ([]shared.Permission, error)
}

// Auditor records context switches.
type Auditor interface {
	Record(ctx context.Context, event audit.Event)
}

// SwitchResult reports a completed context switch.
type SwitchResult struct {
	PreviousContext    string
	ActiveContext      string
	AppliedPermissions []shared.Permission
}

// Service lists available contexts and performs switches. A switch takes
// effect on the very next permission check: nothing is cached per context.
type Service struct {
	contexts ContextSource
	sessions SessionUpdater
	users    authz.UserSource
	resolver PermissionResolver
	auditor  Auditor
	logger   *slog.Logger
}

// ServiceConfig collects service dependencies.
type ServiceConfig struct {
	Contexts ContextSource
	Sessions SessionUpdater
	Users    authz.UserSource
	Resolver PermissionResolver
	Auditor  Auditor
	Logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		contexts: cfg.Contexts,
		sessions: cfg.Sessions,
		users:    cfg.Users,
		resolver: cfg.Resolver,
		auditor:  cfg.Auditor,
		logger:   logger,
	}
}

// AvailableContexts returns the contexts the user may switch into.
func (s *Service) AvailableContexts(ctx context.Context, userID string) ([]authz.PermissionContext, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sessctx: user %s: %w", userID, err)
	}
	all, err := s.contexts.LoadContexts(ctx)
	if err != nil {
		return nil, fmt.Errorf("sessctx: load contexts: %w", err)
	}
	available := make([]authz.PermissionContext, 0, len(all))
	for _, pc := range all {
		if eligible(pc, user) {
			available = append(available, pc)
		}
	}
	return available, nil
}

// SwitchContext moves the session into the target context. The previous
// context is returned alongside the permission set that now applies, and the
// switch itself is audited with both sides of the transition.
func (s *Service) SwitchContext(ctx context.Context, sessionID, userID, targetContext string) (*SwitchResult, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sessctx: user %s: %w", userID, err)
	}
	target, err := s.contexts.GetContext(ctx, targetContext)
	if err != nil {
		return nil, fmt.Errorf("sessctx: %w", err)
	}
	if !eligible(*target, user) {
		return nil, fmt.Errorf("sessctx: context %s not available to %s: %w",
			targetContext, userID, shared.ErrForbidden)
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sessctx: %w", err)
	}
	if sess.UserID != userID {
		return nil, fmt.Errorf("sessctx: session does not belong to %s: %w", userID, shared.ErrForbidden)
	}

	previous, err := s.sessions.SetActiveContext(ctx, sessionID, targetContext)
	if err != nil {
		return nil, fmt.Errorf("sessctx: switch: %w", err)
	}

	applied, err := s.resolver.EffectivePermissions(ctx, userID, targetContext)
	if err != nil {
		// The switch already happened; the projection is advisory.
		s.logger.Warn("project permissions after switch",
			slog.String("user_id", userID),
			slog.String("context", targetContext),
			slog.Any("error", err))
		applied = nil
	}

	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionContextSwitched,
		EntityType: "Session",
		EntityID:   sessionID,
		EntityName: user.Username,
		Changes: map[string]any{
			"previousContext": previous,
			"newContext":      targetContext,
		},
	})

	return &SwitchResult{
		PreviousContext:    previous,
		ActiveContext:      targetContext,
		AppliedPermissions: applied,
	}, nil
}

// eligible reports whether the user may enter the context. An empty allowlist
// pair means the context is open to everyone; otherwise the user's role or id
// must be listed.
func eligible(pc authz.PermissionContext, user *authz.User) bool {
	if len(pc.AllowedRoles) == 0 && len(pc.AllowedUserIDs) == 0 {
		return true
	}
	if slices.Contains(pc.AllowedRoles, user.RoleName) {
		return true
	}
	return slices.Contains(pc.AllowedUserIDs, user.ID)
}
