// Package store implements the generic keyed-record store the back office
// keeps its documents in, together with the audit trigger points wrapped
// around every mutation and every single-record read of a sensitive class.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/voyagedesk/voyagedesk/internal/audit"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// Record is one document in the store, keyed by class and id.
type Record struct {
	Class  string
	ID     string
	Fields map[string]any
}

// Persistence is the raw backend. Save is atomic at the single-record level;
// there are no cross-record transactions.
type Persistence interface {
	Get(ctx context.Context, class, id string) (*Record, error)
	FindByField(ctx context.Context, class, field, value string) ([]Record, error)
	Save(ctx context.Context, rec Record) error
	Delete(ctx context.Context, class, id string) error
	Count(ctx context.Context, class, field, value string) (int64, error)
}

// Auditor receives trigger events. Ordinary writes are fire-and-forget.
type Auditor interface {
	Record(ctx context.Context, event audit.Event)
}

// Config declares which classes get read auditing and which are exempt from
// auditing entirely.
type Config struct {
	// SensitiveClasses get a READ entry for every read returning exactly one
	// record. Bulk reads are deliberately exempt to bound log volume.
	SensitiveClasses []string
	// ExcludedClasses are never audited: the audit log itself, sessions, and
	// other system-internal classes. Auditing them would recurse.
	ExcludedClasses []string
}

// DefaultConfig covers the booking back office's classes.
func DefaultConfig() Config {
	return Config{
		SensitiveClasses: []string{"Client", "PaymentProfile", "Booking"},
		ExcludedClasses:  []string{"AuditLogEntry", "Session"},
	}
}

// Store wraps a Persistence backend with audit interception.
type Store struct {
	backend   Persistence
	auditor   Auditor
	sensitive map[string]struct{}
	excluded  map[string]struct{}
}

// New constructs a Store.
func New(backend Persistence, auditor Auditor, cfg Config) *Store {
	sensitive := make(map[string]struct{}, len(cfg.SensitiveClasses))
	for _, class := range cfg.SensitiveClasses {
		sensitive[class] = struct{}{}
	}
	excluded := make(map[string]struct{}, len(cfg.ExcludedClasses))
	for _, class := range cfg.ExcludedClasses {
		excluded[class] = struct{}{}
	}
	return &Store{backend: backend, auditor: auditor, sensitive: sensitive, excluded: excluded}
}

// Get fetches a single record by id. A successful fetch of a sensitive class
// emits exactly one READ entry.
func (s *Store) Get(ctx context.Context, class, id string) (*Record, error) {
	rec, err := s.backend.Get(ctx, class, id)
	if err != nil {
		return nil, err
	}
	s.auditRead(ctx, *rec)
	return rec, nil
}

// FindByField queries by a single field. Only a result of exactly one
// sensitive record is audited; zero or many never are.
func (s *Store) FindByField(ctx context.Context, class, field, value string) ([]Record, error) {
	records, err := s.backend.FindByField(ctx, class, field, value)
	if err != nil {
		return nil, err
	}
	if len(records) == 1 {
		s.auditRead(ctx, records[0])
	}
	return records, nil
}

// Save upserts a record. Changed fields are computed against the last
// persisted value before the write; after a successful write exactly one
// CREATE or UPDATE entry is emitted.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if rec.Class == "" || rec.ID == "" {
		return fmt.Errorf("store: record class and id required: %w", shared.ErrInvalidArgument)
	}
	prior, err := s.backend.Get(ctx, rec.Class, rec.ID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	var diff map[string]audit.FieldChange
	if prior != nil {
		diff = audit.DiffFields(prior.Fields, rec.Fields)
	}

	if err := s.backend.Save(ctx, rec); err != nil {
		return err
	}
	if s.isExcluded(rec.Class) {
		return nil
	}

	if prior == nil {
		s.auditor.Record(ctx, audit.Event{
			Action:     audit.ActionCreate,
			EntityType: rec.Class,
			EntityID:   rec.ID,
			EntityName: recordName(rec),
			Changes:    audit.ScrubRecord(rec.Fields),
		})
		return nil
	}

	changes := audit.ChangesPayload(diff)
	if len(changes) == 0 {
		// Per-field diffing found nothing the trigger point can express;
		// record a generic marker rather than dropping the entry.
		changes = map[string]any{"updated": true}
	}
	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionUpdate,
		EntityType: rec.Class,
		EntityID:   rec.ID,
		EntityName: recordName(rec),
		Changes:    changes,
	})
	return nil
}

// Delete removes a record. The DELETE entry carries the full pre-deletion
// record and is emitted before the row is removed, so a failed delete has
// still recorded the attempt against a record that existed. The entry is not
// rolled back if the delete subsequently fails.
func (s *Store) Delete(ctx context.Context, class, id string) error {
	prior, err := s.backend.Get(ctx, class, id)
	if err != nil {
		return err
	}
	if !s.isExcluded(class) {
		s.auditor.Record(ctx, audit.Event{
			Action:     audit.ActionDelete,
			EntityType: class,
			EntityID:   id,
			EntityName: recordName(*prior),
			Changes:    audit.ScrubRecord(prior.Fields),
		})
	}
	return s.backend.Delete(ctx, class, id)
}

// Count returns the number of matching records. Counts are never audited.
func (s *Store) Count(ctx context.Context, class, field, value string) (int64, error) {
	return s.backend.Count(ctx, class, field, value)
}

func (s *Store) auditRead(ctx context.Context, rec Record) {
	if s.isExcluded(rec.Class) {
		return
	}
	if _, ok := s.sensitive[rec.Class]; !ok {
		return
	}
	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionRead,
		EntityType: rec.Class,
		EntityID:   rec.ID,
		EntityName: recordName(rec),
		Changes:    map[string]any{"accessed": true},
	})
}

func (s *Store) isExcluded(class string) bool {
	_, ok := s.excluded[class]
	return ok
}

func recordName(rec Record) string {
	if name, ok := rec.Fields["name"].(string); ok && name != "" {
		return name
	}
	return ""
}
