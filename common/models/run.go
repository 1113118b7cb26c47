package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of a run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// StepStatus represents the lifecycle state of a step run
type StepStatus string

const (
	StepStatusQueued    StepStatus = "queued"
	StepStatusRunning   StepStatus = "running"
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Run represents one execution attempt of a workflow
// Maps to: runs table
type Run struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	WorkflowID  uuid.UUID  `db:"workflow_id" json:"workflow_id"`
	OrgID       *uuid.UUID `db:"org_id" json:"org_id,omitempty"`
	Status      RunStatus  `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	StartedAt   *time.Time `db:"started_at" json:"started_at"`
	FinishedAt  *time.Time `db:"finished_at" json:"finished_at"`
	Error       *string    `db:"error" json:"error"`
	TriggeredBy *uuid.UUID `db:"triggered_by" json:"triggered_by,omitempty"`
}

// StepRun represents one attempt at one node within a run.
// Uniqueness of (run_id, node_id) is the idempotency key: resubmitting a run
// never creates a second row for the same node.
// Maps to: step_runs table
type StepRun struct {
	ID         uuid.UUID   `db:"id" json:"id"`
	RunID      uuid.UUID   `db:"run_id" json:"run_id"`
	OrgID      *uuid.UUID  `db:"org_id" json:"org_id,omitempty"`
	NodeID     string      `db:"node_id" json:"node_id"`
	Status     StepStatus  `db:"status" json:"status"`
	StartedAt  *time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time  `db:"finished_at" json:"finished_at"`
	InputJSON  interface{} `db:"input_json" json:"input_json"`
	OutputJSON interface{} `db:"output_json" json:"output_json"`
	Error      *string     `db:"error" json:"error"`
}

// RunStatusUpdate carries the optional fields of a run status transition.
// Nil fields are left untouched by the repository.
type RunStatusUpdate struct {
	StartedAt  *time.Time
	FinishedAt *time.Time
	Error      *string
}

// StepRunUpdate carries the mutable fields of a step run.
// Nil fields are left untouched by the repository.
type StepRunUpdate struct {
	Status     *StepStatus
	StartedAt  *time.Time
	FinishedAt *time.Time
	Input      interface{}
	Output     interface{}
	Error      *string
}
