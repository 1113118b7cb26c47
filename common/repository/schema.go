package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/VenkataVardineni/flowforge-automations/common/db"
)

// Every statement tolerates re-runs. The UNIQUE (run_id, node_id)
// constraint backs the step upsert.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
	id UUID PRIMARY KEY,
	workflow_id UUID NOT NULL,
	org_id UUID,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	error TEXT,
	triggered_by UUID
);

CREATE INDEX IF NOT EXISTS idx_runs_workflow_id ON runs (workflow_id);
CREATE INDEX IF NOT EXISTS idx_runs_org_id ON runs (org_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs (status);

CREATE TABLE IF NOT EXISTS step_runs (
	id UUID PRIMARY KEY,
	run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	org_id UUID,
	node_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'queued',
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	input_json JSONB,
	output_json JSONB,
	error TEXT,
	UNIQUE (run_id, node_id)
);

CREATE INDEX IF NOT EXISTS idx_step_runs_run_id ON step_runs (run_id);
CREATE INDEX IF NOT EXISTS idx_step_runs_org_id ON step_runs (org_id);
CREATE INDEX IF NOT EXISTS idx_step_runs_status ON step_runs (status);
`

// EnsureSchema creates the runner tables when they do not exist yet.
// Wired as a bootstrap DB init hook.
func EnsureSchema(database *db.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := database.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
