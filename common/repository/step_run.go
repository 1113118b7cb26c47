package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/VenkataVardineni/flowforge-automations/common/db"
	"github.com/VenkataVardineni/flowforge-automations/common/models"
)

// StepRunRepository handles database operations for step runs
type StepRunRepository struct {
	db *db.DB
}

// NewStepRunRepository creates a new step run repository
func NewStepRunRepository(database *db.DB) *StepRunRepository {
	return &StepRunRepository{db: database}
}

// Upsert inserts a queued step row for (run_id, node_id), or returns the
// existing row untouched. The unique constraint on (run_id, node_id) is what
// keeps resumed runs from creating duplicate steps.
func (r *StepRunRepository) Upsert(ctx context.Context, runID uuid.UUID, orgID *uuid.UUID, nodeID string) (*models.StepRun, error) {
	query := `
		INSERT INTO step_runs (id, run_id, org_id, node_id, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, node_id) DO UPDATE SET node_id = EXCLUDED.node_id
		RETURNING id, run_id, org_id, node_id, status, started_at, finished_at, input_json, output_json, error
	`

	step := &models.StepRun{}
	err := r.db.QueryRow(ctx, query, uuid.New(), runID, orgID, nodeID, models.StepStatusQueued).Scan(
		&step.ID,
		&step.RunID,
		&step.OrgID,
		&step.NodeID,
		&step.Status,
		&step.StartedAt,
		&step.FinishedAt,
		&step.InputJSON,
		&step.OutputJSON,
		&step.Error,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to upsert step run: %w", err)
	}

	return step, nil
}

// Update writes the provided step fields. Nil fields keep their current value.
func (r *StepRunRepository) Update(ctx context.Context, stepID uuid.UUID, update models.StepRunUpdate) error {
	query := `
		UPDATE step_runs
		SET status = COALESCE($2, status),
		    started_at = COALESCE($3, started_at),
		    finished_at = COALESCE($4, finished_at),
		    input_json = COALESCE($5, input_json),
		    output_json = COALESCE($6, output_json),
		    error = COALESCE($7, error)
		WHERE id = $1
	`

	_, err := r.db.Exec(
		ctx,
		query,
		stepID,
		update.Status,
		update.StartedAt,
		update.FinishedAt,
		update.Input,
		update.Output,
		update.Error,
	)

	if err != nil {
		return fmt.Errorf("failed to update step run: %w", err)
	}

	return nil
}

// GetByID retrieves a step run scoped to its run
func (r *StepRunRepository) GetByID(ctx context.Context, runID, stepID uuid.UUID) (*models.StepRun, error) {
	query := `
		SELECT id, run_id, org_id, node_id, status, started_at, finished_at, input_json, output_json, error
		FROM step_runs
		WHERE run_id = $1 AND id = $2
	`

	step := &models.StepRun{}
	err := r.db.QueryRow(ctx, query, runID, stepID).Scan(
		&step.ID,
		&step.RunID,
		&step.OrgID,
		&step.NodeID,
		&step.Status,
		&step.StartedAt,
		&step.FinishedAt,
		&step.InputJSON,
		&step.OutputJSON,
		&step.Error,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get step run: %w", err)
	}

	return step, nil
}

// ListByRun retrieves all step runs for a run in execution order.
// Queued steps (no started_at yet) sort after started ones.
func (r *StepRunRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]*models.StepRun, error) {
	query := `
		SELECT id, run_id, org_id, node_id, status, started_at, finished_at, input_json, output_json, error
		FROM step_runs
		WHERE run_id = $1
		ORDER BY started_at ASC NULLS LAST, node_id ASC
	`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list step runs: %w", err)
	}
	defer rows.Close()

	var steps []*models.StepRun
	for rows.Next() {
		step := &models.StepRun{}
		err := rows.Scan(
			&step.ID,
			&step.RunID,
			&step.OrgID,
			&step.NodeID,
			&step.Status,
			&step.StartedAt,
			&step.FinishedAt,
			&step.InputJSON,
			&step.OutputJSON,
			&step.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step run: %w", err)
		}
		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step runs: %w", err)
	}

	return steps, nil
}
