package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyagedesk/voyagedesk/internal/authz"
)

// Repository persists audit entries in PostgreSQL. Writes run on the service
// pool with system privileges regardless of the acting user's own access.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes a single immutable entry.
func (r *Repository) Insert(ctx context.Context, entry Entry) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("audit: marshal changes: %w", err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO audit_log
	(id, user_id, username, action, entity_type, entity_id, entity_name, changes, ip, method, occurred_at, severity, active, exists_flag)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		entry.ID, entry.UserID, entry.Username, string(entry.Action), entry.EntityType,
		entry.EntityID, entry.EntityName, changes, entry.Metadata.IP, entry.Metadata.Method,
		entry.Metadata.At, string(entry.Severity), entry.Active, entry.Exists)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// CountByAction aggregates entries per action inside the window, optionally
// filtered by user.
func (r *Repository) CountByAction(ctx context.Context, start, end time.Time, userID string) (map[Action]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT action, COUNT(*) FROM audit_log
	WHERE occurred_at >= $1 AND occurred_at < $2 AND ($3 = '' OR user_id = $3)
	GROUP BY action`, start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("audit: count by action: %w", err)
	}
	defer rows.Close()

	counts := make(map[Action]int64)
	for rows.Next() {
		var action string
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("audit: scan action count: %w", err)
		}
		counts[Action(action)] = count
	}
	return counts, rows.Err()
}

// CountByEntityType aggregates entries per entity type inside the window,
// optionally filtered by user.
func (r *Repository) CountByEntityType(ctx context.Context, start, end time.Time, userID string) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT entity_type, COUNT(*) FROM audit_log
	WHERE occurred_at >= $1 AND occurred_at < $2 AND ($3 = '' OR user_id = $3)
	GROUP BY entity_type`, start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("audit: count by entity type: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var entityType string
		var count int64
		if err := rows.Scan(&entityType, &count); err != nil {
			return nil, fmt.Errorf("audit: scan entity count: %w", err)
		}
		counts[entityType] = count
	}
	return counts, rows.Err()
}

// ListByEntity returns one page of an entity's trail, newest first, together
// with the total number of entries for that entity.
func (r *Repository) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]Entry, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log
	WHERE entity_type = $1 AND entity_id = $2`, entityType, entityID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("audit: count by entity: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT id, user_id, username, action, entity_type, entity_id, entity_name,
	changes, ip, method, occurred_at, severity, active, exists_flag
	FROM audit_log WHERE entity_type = $1 AND entity_id = $2
	ORDER BY occurred_at DESC LIMIT $3 OFFSET $4`, entityType, entityID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("audit: list by entity: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListWindow returns entries inside the window ordered by time, optionally
// filtered by user.
func (r *Repository) ListWindow(ctx context.Context, start, end time.Time, userID string) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, username, action, entity_type, entity_id, entity_name,
	changes, ip, method, occurred_at, severity, active, exists_flag
	FROM audit_log WHERE occurred_at >= $1 AND occurred_at < $2 AND ($3 = '' OR user_id = $3)
	ORDER BY occurred_at ASC`, start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("audit: list window: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var entry Entry
		var action, severity string
		var changes []byte
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Username, &action, &entry.EntityType,
			&entry.EntityID, &entry.EntityName, &changes, &entry.Metadata.IP, &entry.Metadata.Method,
			&entry.Metadata.At, &severity, &entry.Active, &entry.Exists); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		entry.Action = Action(action)
		entry.Severity = authz.Severity(severity)
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &entry.Changes); err != nil {
				return nil, fmt.Errorf("audit: unmarshal changes: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
