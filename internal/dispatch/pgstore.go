package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genway/genway/model"
)

// PgResultStore is a PostgreSQL-backed ResultStore using pgx/v5.
type PgResultStore struct {
	pool *pgxpool.Pool
}

// NewPgResultStore creates a new PostgreSQL result store.
func NewPgResultStore(pool *pgxpool.Pool) *PgResultStore {
	return &PgResultStore{pool: pool}
}

// HealthCheck verifies database connectivity.
func (s *PgResultStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Create inserts a new result.
func (s *PgResultStore) Create(ctx context.Context, result model.GenerationResult) error {
	paramsJSON, err := json.Marshal(result.InputParams)
	if err != nil {
		return fmt.Errorf("marshal input params: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO generation_results (
			id, user_id, provider, model, kind,
			input_params, content, content_type,
			status, error_code, error_detail, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12
		)`,
		result.ID, result.UserID, result.Provider, result.Model, string(result.Kind),
		paramsJSON, result.Content, string(result.ContentType),
		result.Status, result.ErrorCode, result.ErrorDetail, result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert generation result: %w", err)
	}
	return nil
}

// Get retrieves a result by ID, scoped to its owner.
func (s *PgResultStore) Get(ctx context.Context, userID, resultID string) (model.GenerationResult, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, provider, model, kind,
		       input_params, content, content_type,
		       status, error_code, error_detail, created_at
		FROM generation_results
		WHERE id = $1 AND user_id = $2`,
		resultID, userID,
	)

	result, err := scanResult(row)
	if err == pgx.ErrNoRows {
		return model.GenerationResult{}, model.NewNotFoundError(
			fmt.Sprintf("generation result %q not found", resultID))
	}
	if err != nil {
		return model.GenerationResult{}, fmt.Errorf("query generation result: %w", err)
	}
	return result, nil
}

// List returns the caller's results, newest first.
func (s *PgResultStore) List(ctx context.Context, userID string, filters ResultFilters) ([]model.GenerationResult, error) {
	query := `SELECT id, user_id, provider, model, kind,
	                 input_params, content, content_type,
	                 status, error_code, error_detail, created_at
	          FROM generation_results
	          WHERE user_id = $1`
	args := []any{userID}
	argIdx := 2

	if filters.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, string(filters.Kind))
		argIdx++
	}
	if filters.Provider != "" {
		query += fmt.Sprintf(" AND provider = $%d", argIdx)
		args = append(args, filters.Provider)
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query generation results: %w", err)
	}
	defer rows.Close()

	var results []model.GenerationResult
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generation result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (model.GenerationResult, error) {
	var r model.GenerationResult
	var kind, contentType string
	var paramsJSON []byte

	err := row.Scan(
		&r.ID, &r.UserID, &r.Provider, &r.Model, &kind,
		&paramsJSON, &r.Content, &contentType,
		&r.Status, &r.ErrorCode, &r.ErrorDetail, &r.CreatedAt,
	)
	if err != nil {
		return model.GenerationResult{}, err
	}

	r.Kind = model.GenerationKind(kind)
	r.ContentType = model.ContentType(contentType)
	if paramsJSON != nil {
		if err := json.Unmarshal(paramsJSON, &r.InputParams); err != nil {
			return model.GenerationResult{}, fmt.Errorf("unmarshal input params: %w", err)
		}
	}
	return r, nil
}
