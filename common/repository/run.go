package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/VenkataVardineni/flowforge-automations/common/db"
	"github.com/VenkataVardineni/flowforge-automations/common/models"
)

const defaultListLimit = 100
const maxListLimit = 500

// RunRepository handles database operations for workflow runs
type RunRepository struct {
	db *db.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(database *db.DB) *RunRepository {
	return &RunRepository{db: database}
}

// Create inserts a new pending run
func (r *RunRepository) Create(ctx context.Context, workflowID uuid.UUID, orgID, triggeredBy *uuid.UUID) (*models.Run, error) {
	run := &models.Run{
		ID:          uuid.New(),
		WorkflowID:  workflowID,
		OrgID:       orgID,
		Status:      models.RunStatusPending,
		CreatedAt:   time.Now().UTC(),
		TriggeredBy: triggeredBy,
	}

	query := `
		INSERT INTO runs (id, workflow_id, org_id, status, created_at, triggered_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(
		ctx,
		query,
		run.ID,
		run.WorkflowID,
		run.OrgID,
		run.Status,
		run.CreatedAt,
		run.TriggeredBy,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

// GetByID retrieves a run by its ID
func (r *RunRepository) GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	query := `
		SELECT id, workflow_id, org_id, status, created_at, started_at, finished_at, error, triggered_by
		FROM runs
		WHERE id = $1
	`

	run := &models.Run{}
	err := r.db.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.WorkflowID,
		&run.OrgID,
		&run.Status,
		&run.CreatedAt,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Error,
		&run.TriggeredBy,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// List retrieves recent runs, optionally filtered by workflow.
// Ordered by created_at DESC. Limit defaults to 100 and is capped at 500.
func (r *RunRepository) List(ctx context.Context, workflowID *uuid.UUID, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `
		SELECT id, workflow_id, org_id, status, created_at, started_at, finished_at, error, triggered_by
		FROM runs
		WHERE ($1::uuid IS NULL OR workflow_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run := &models.Run{}
		err := rows.Scan(
			&run.ID,
			&run.WorkflowID,
			&run.OrgID,
			&run.Status,
			&run.CreatedAt,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Error,
			&run.TriggeredBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// UpdateStatus transitions a run and stamps the provided timestamp/error
// fields. Nil fields keep their current value.
func (r *RunRepository) UpdateStatus(ctx context.Context, runID uuid.UUID, status models.RunStatus, update models.RunStatusUpdate) error {
	query := `
		UPDATE runs
		SET status = $2,
		    started_at = COALESCE($3, started_at),
		    finished_at = COALESCE($4, finished_at),
		    error = COALESCE($5, error)
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, runID, status, update.StartedAt, update.FinishedAt, update.Error)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	return nil
}
