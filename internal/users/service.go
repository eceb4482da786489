package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/voyagedesk/voyagedesk/internal/audit"
	"github.com/voyagedesk/voyagedesk/internal/authz"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// RepositoryPort defines data access for accounts.
type RepositoryPort interface {
	Create(ctx context.Context, a Account) error
	Get(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	List(ctx context.Context) ([]Account, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// Auditor records account lifecycle events.
type Auditor interface {
	Record(ctx context.Context, event audit.Event)
}

// CreateRequest carries the fields of a new account.
type CreateRequest struct {
	Username     string
	Password     string
	RoleName     string
	Organization string
	Department   string
}

// Service manages accounts and doubles as the resolver's user source.
type Service struct {
	repo    RepositoryPort
	catalog *authz.Catalog
	auditor Auditor
	logger  *slog.Logger
	now     func() time.Time
}

// ServiceConfig collects service dependencies.
type ServiceConfig struct {
	Repo    RepositoryPort
	Catalog *authz.Catalog
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
	return &Service{repo: cfg.Repo, catalog: cfg.Catalog, auditor: cfg.Auditor, logger: logger, now: now}
}

// GetUser implements authz.UserSource.
func (s *Service) GetUser(ctx context.Context, id string) (*authz.User, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &authz.User{
		ID:           a.ID,
		Username:     a.Username,
		RoleName:     a.RoleName,
		Organization: a.Organization,
		Department:   a.Department,
		Active:       a.Active,
	}, nil
}

// Authenticate verifies credentials and returns the account. Inactive
// accounts and bad passwords both map to ErrUnauthenticated so the caller
// cannot distinguish them.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Account, error) {
	a, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		// Burn a comparison anyway to keep timing uniform for unknown names.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$000000000000000000000uGZLKQuKmM1xMOSpLJAXBAjcv3JGCaW"), []byte(password))
		return nil, fmt.Errorf("users: %w", shared.ErrUnauthenticated)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("users: %w", shared.ErrUnauthenticated)
	}
	if !a.Active {
		return nil, fmt.Errorf("users: %w", shared.ErrUnauthenticated)
	}
	return a, nil
}

// Create registers a new account with a bcrypt password hash. The role must
// exist in the catalog before anyone can hold it.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Account, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, fmt.Errorf("users: username is required: %w", shared.ErrInvalidArgument)
	}
	if len(req.Password) < 12 {
		return nil, fmt.Errorf("users: password too short: %w", shared.ErrInvalidArgument)
	}
	if _, ok := s.catalog.Role(req.RoleName); !ok {
		return nil, fmt.Errorf("users: unknown role %q: %w", req.RoleName, shared.ErrInvalidArgument)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("users: hash password: %w", err)
	}
	now := s.now().UTC()
	a := Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		RoleName:     req.RoleName,
		Organization: strings.TrimSpace(req.Organization),
		Department:   strings.TrimSpace(req.Department),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionCreate,
		EntityType: "User",
		EntityID:   a.ID,
		EntityName: a.Username,
		Changes: map[string]any{
			"username":     a.Username,
			"roleName":     a.RoleName,
			"organization": a.Organization,
			"department":   a.Department,
		},
	})
	return &a, nil
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// Get returns a single account.
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	return s.repo.Get(ctx, id)
}

// SetActive enables or disables an account. Deactivation cuts off every
// permission at the next check since the resolver refuses inactive users.
func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	prior, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if prior.Active == active {
		return nil
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionUpdate,
		EntityType: "User",
		EntityID:   id,
		EntityName: prior.Username,
		Changes: map[string]any{
			"active": audit.FieldChange{From: prior.Active, To: active},
		},
	})
	return nil
}
