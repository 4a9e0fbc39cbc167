package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genway/genway/model"
)

// PgStore is a PostgreSQL-backed provider Store using pgx/v5. The full
// descriptor is stored as a jsonb document keyed by (kind, name); the
// registry snapshot absorbs all read traffic, so no secondary indexes are
// needed beyond the primary key.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL provider store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// List returns all stored descriptors ordered by kind then name.
func (s *PgStore) List(ctx context.Context) ([]model.ProviderDescriptor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT descriptor, created_at, updated_at
		FROM providers
		ORDER BY kind ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query providers: %w", err)
	}
	defer rows.Close()

	var descs []model.ProviderDescriptor
	for rows.Next() {
		var raw []byte
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&raw, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		var d model.ProviderDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("unmarshal provider descriptor: %w", err)
		}
		d.CreatedAt = createdAt
		d.UpdatedAt = updatedAt
		descs = append(descs, d)
	}
	return descs, rows.Err()
}

// Upsert inserts or replaces the descriptor keyed by (name, kind).
func (s *PgStore) Upsert(ctx context.Context, desc model.ProviderDescriptor) error {
	raw, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("marshal provider descriptor: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO providers (name, kind, descriptor, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (name, kind) DO UPDATE SET
			descriptor = EXCLUDED.descriptor,
			updated_at = EXCLUDED.updated_at`,
		desc.Name, string(desc.Kind), raw, now,
	)
	if err != nil {
		return fmt.Errorf("upsert provider %s/%s: %w", desc.Kind, desc.Name, err)
	}
	return nil
}

// Delete removes the descriptor keyed by (name, kind).
func (s *PgStore) Delete(ctx context.Context, name string, kind model.GenerationKind) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM providers WHERE name = $1 AND kind = $2`,
		name, string(kind),
	)
	if err != nil {
		return fmt.Errorf("delete provider %s/%s: %w", kind, name, err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("provider %s/%s not found", kind, name))
	}
	return nil
}
