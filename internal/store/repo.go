package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// Repository is the PostgreSQL backend: one JSONB document per (class, id).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get fetches a single record.
func (r *Repository) Get(ctx context.Context, class, id string) (*Record, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM records WHERE class = $1 AND id = $2`, class, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("store: %s/%s: %w", class, id, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("store: get %s/%s: %w", class, id, err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("store: decode %s/%s: %w", class, id, err)
	}
	return &Record{Class: class, ID: id, Fields: fields}, nil
}

// FindByField queries records whose document field equals the given value.
func (r *Repository) FindByField(ctx context.Context, class, field, value string) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, data FROM records WHERE class = $1 AND data->>$2 = $3 ORDER BY id`, class, field, value)
	if err != nil {
		return nil, fmt.Errorf("store: find %s by %s: %w", class, field, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", class, err)
		}
		fields := make(map[string]any)
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("store: decode %s/%s: %w", class, id, err)
		}
		records = append(records, Record{Class: class, ID: id, Fields: fields})
	}
	return records, rows.Err()
}

// Save upserts the record atomically.
func (r *Repository) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("store: encode %s/%s: %w", rec.Class, rec.ID, err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO records (class, id, data, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (class, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		rec.Class, rec.ID, data)
	if err != nil {
		return fmt.Errorf("store: save %s/%s: %w", rec.Class, rec.ID, err)
	}
	return nil
}

// Delete removes a record.
func (r *Repository) Delete(ctx context.Context, class, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM records WHERE class = $1 AND id = $2`, class, id)
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", class, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: %s/%s: %w", class, id, shared.ErrNotFound)
	}
	return nil
}

// Count returns the number of records matching the field filter; an empty
// field counts the whole class.
func (r *Repository) Count(ctx context.Context, class, field, value string) (int64, error) {
	var count int64
	var err error
	if field == "" {
		err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM records WHERE class = $1`, class).Scan(&count)
	} else {
		err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM records WHERE class = $1 AND data->>$2 = $3`, class, field, value).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("store: count %s: %w", class, err)
	}
	return count, nil
}
