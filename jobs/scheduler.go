package jobs

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hibiken/asynq"
)

// Registrar is the slice of asynq.Scheduler the registry needs.
type Registrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
	Unregister(entryID string) error
}

// Scheduler keeps one periodic registration per tenant. Start and Stop are
// idempotent so callers can re-assert desired state on every config reload
// without tracking what is already running. Lifecycle belongs to the worker
// process: StopAll runs on shutdown.
type Scheduler struct {
	mu        sync.Mutex
	registrar Registrar
	entries   map[string]string
	logger    *slog.Logger
}

// NewScheduler constructs a Scheduler backed by the given registrar.
func NewScheduler(registrar Registrar, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		registrar: registrar,
		entries:   make(map[string]string),
		logger:    logger,
	}
}

// Start registers the tenant's periodic task. Starting an already-started
// tenant is a no-op; the original registration stays in place.
func (s *Scheduler) Start(tenantID, cronspec string, task *asynq.Task, opts ...asynq.Option) error {
	if tenantID == "" {
		return fmt.Errorf("scheduler: empty tenant id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[tenantID]; ok {
		return nil
	}
	entryID, err := s.registrar.Register(cronspec, task, opts...)
	if err != nil {
		return fmt.Errorf("scheduler: register tenant %s: %w", tenantID, err)
	}
	s.entries[tenantID] = entryID
	s.logger.Info("scheduled tenant warmup",
		slog.String("tenant_id", tenantID),
		slog.String("cronspec", cronspec))
	return nil
}

// Stop removes the tenant's registration. Stopping an unknown tenant is a
// no-op.
func (s *Scheduler) Stop(tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entryID, ok := s.entries[tenantID]
	if !ok {
		return nil
	}
	if err := s.registrar.Unregister(entryID); err != nil {
		return fmt.Errorf("scheduler: unregister tenant %s: %w", tenantID, err)
	}
	delete(s.entries, tenantID)
	return nil
}

// StopAll removes every registration. Called on worker shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tenantID, entryID := range s.entries {
		if err := s.registrar.Unregister(entryID); err != nil {
			s.logger.Warn("unregister tenant warmup",
				slog.String("tenant_id", tenantID),
				slog.Any("error", err))
		}
		delete(s.entries, tenantID)
	}
}

// Active returns the tenants with a live registration, sorted.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenants := make([]string, 0, len(s.entries))
	for tenantID := range s.entries {
		tenants = append(tenants, tenantID)
	}
	sort.Strings(tenants)
	return tenants
}
