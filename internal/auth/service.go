// Package auth owns login and logout: credential verification, session
// issuance with the default permission context, and the LOGIN audit trail.
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voyagedesk/voyagedesk/internal/audit"
	"github.com/voyagedesk/voyagedesk/internal/shared"
	"github.com/voyagedesk/voyagedesk/internal/users"
)

// CredentialVerifier verifies a username/password pair.
type CredentialVerifier interface {
	Authenticate(ctx context.Context, username, password string) (*users.Account, error)
}

// SessionOpener issues and destroys sessions.
type SessionOpener interface {
	Create(ctx context.Context, userID, username, defaultContext string) (*shared.Session, error)
	Destroy(ctx context.Context, id string) error
}

// Auditor records login events.
type Auditor interface {
	Record(ctx context.Context, event audit.Event)
}

// Service implements the authentication flow.
type Service struct {
	verifier       CredentialVerifier
	sessions       SessionOpener
	auditor        Auditor
	defaultContext string
	logger         *slog.Logger
}

// ServiceConfig collects service dependencies.
type ServiceConfig struct {
	Verifier       CredentialVerifier
	Sessions       SessionOpener
	Auditor        Auditor
	DefaultContext string
	Logger         *slog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		verifier:       cfg.Verifier,
		sessions:       cfg.Sessions,
		auditor:        cfg.Auditor,
		defaultContext: cfg.DefaultContext,
		logger:         logger,
	}
}

// Login verifies credentials and opens a session in the default context.
func (s *Service) Login(ctx context.Context, username, password string) (*shared.Session, error) {
	account, err := s.verifier.Authenticate(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", shared.ErrInvalidCredentials)
	}
	sess, err := s.sessions.Create(ctx, account.ID, account.Username, s.defaultContext)
	if err != nil {
		return nil, fmt.Errorf("auth: open session: %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionLogin,
		EntityType: "User",
		EntityID:   account.ID,
		EntityName: account.Username,
		Changes:    map[string]any{"context": s.defaultContext},
	})
	return sess, nil
}

// Logout destroys the session. Destroying an already-gone session is fine.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Destroy(ctx, sessionID); err != nil {
		return fmt.Errorf("auth: close session: %w", err)
	}
	return nil
}
