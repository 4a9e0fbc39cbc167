package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genway/genway/model"
)

// PgRunStore is a PostgreSQL-backed RunStore using pgx/v5.
type PgRunStore struct {
	pool *pgxpool.Pool
}

// NewPgRunStore creates a new PostgreSQL run store.
func NewPgRunStore(pool *pgxpool.Pool) *PgRunStore {
	return &PgRunStore{pool: pool}
}

// HealthCheck verifies database connectivity.
func (s *PgRunStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Create inserts a new run.
func (s *PgRunStore) Create(ctx context.Context, run model.WorkflowRun) error {
	defJSON, err := json.Marshal(run.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_runs (
			id, definition_id, user_id, definition, status,
			steps, error_detail, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		)`,
		run.ID, run.DefinitionID, run.UserID, defJSON, run.Status,
		stepsJSON, run.ErrorDetail, run.Version, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID, scoped to its owner.
func (s *PgRunStore) Get(ctx context.Context, userID, runID string) (model.WorkflowRun, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, definition_id, user_id, definition, status,
		       steps, error_detail, version, created_at, updated_at
		FROM workflow_runs
		WHERE id = $1 AND user_id = $2`,
		runID, userID,
	)

	run, err := scanRun(row)
	if err == pgx.ErrNoRows {
		return model.WorkflowRun{}, model.NewNotFoundError(
			fmt.Sprintf("workflow run %q not found", runID))
	}
	if err != nil {
		return model.WorkflowRun{}, fmt.Errorf("query workflow run: %w", err)
	}
	return run, nil
}

// Update persists an updated run with optimistic locking.
func (s *PgRunStore) Update(ctx context.Context, run model.WorkflowRun) error {
	defJSON, err := json.Marshal(run.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_runs SET
			definition = $1,
			status = $2,
			steps = $3,
			error_detail = $4,
			version = $5,
			updated_at = $6
		WHERE id = $7 AND version = $8`,
		defJSON, run.Status, stepsJSON, run.ErrorDetail, run.Version+1,
		time.Now().UTC(),
		run.ID, run.Version,
	)
	if err != nil {
		return fmt.Errorf("update workflow run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(fmt.Sprintf(
			"workflow run %q version conflict (expected %d)", run.ID, run.Version))
	}
	return nil
}

// List returns the caller's runs, newest first.
func (s *PgRunStore) List(ctx context.Context, userID string, filters RunFilters) ([]model.WorkflowRun, error) {
	query := `SELECT id, definition_id, user_id, definition, status,
	                 steps, error_detail, version, created_at, updated_at
	          FROM workflow_runs
	          WHERE user_id = $1`
	args := []any{userID}
	argIdx := 2

	if filters.DefinitionID != "" {
		query += fmt.Sprintf(" AND definition_id = $%d", argIdx)
		args = append(args, filters.DefinitionID)
		argIdx++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filters.Status)
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
		return nil, fmt.Errorf("query workflow runs: %w", err)
	}
	defer rows.Close()

	var runs []model.WorkflowRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (model.WorkflowRun, error) {
	var run model.WorkflowRun
	var defJSON, stepsJSON []byte

	err := row.Scan(
		&run.ID, &run.DefinitionID, &run.UserID, &defJSON, &run.Status,
		&stepsJSON, &run.ErrorDetail, &run.Version, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return model.WorkflowRun{}, err
	}

	if defJSON != nil {
		if err := json.Unmarshal(defJSON, &run.Definition); err != nil {
			return model.WorkflowRun{}, fmt.Errorf("unmarshal definition: %w", err)
		}
	}
	if stepsJSON != nil {
		if err := json.Unmarshal(stepsJSON, &run.Steps); err != nil {
			return model.WorkflowRun{}, fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	return run, nil
}
