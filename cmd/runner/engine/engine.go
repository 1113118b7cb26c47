package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/events"
	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/executor"
	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/metrics"
	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/planner"
	"github.com/VenkataVardineni/flowforge-automations/common/clients"
	"github.com/VenkataVardineni/flowforge-automations/common/logger"
	"github.com/VenkataVardineni/flowforge-automations/common/models"
)

// RunStore is the subset of the run repository the engine writes through
type RunStore interface {
	GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error)
	UpdateStatus(ctx context.Context, runID uuid.UUID, status models.RunStatus, update models.RunStatusUpdate) error
}

// StepStore is the subset of the step run repository the engine writes through
type StepStore interface {
	Upsert(ctx context.Context, runID uuid.UUID, orgID *uuid.UUID, nodeID string) (*models.StepRun, error)
	Update(ctx context.Context, stepID uuid.UUID, update models.StepRunUpdate) error
}

// WorkflowFetcher loads workflow graphs from the definition service
type WorkflowFetcher interface {
	FetchWorkflow(ctx context.Context, workflowID uuid.UUID) (*models.WorkflowGraph, error)
}

// Engine drives a single run from pending to a terminal state. One worker
// owns one run at a time; within a run, nodes execute sequentially in
// dependency order.
type Engine struct {
	runs     RunStore
	steps    StepStore
	fetcher  WorkflowFetcher
	registry *executor.Registry
	bus      *events.Bus
	cancels  *CancelRegistry
	log      *logger.Logger
}

// Opts carries the engine's collaborators
type Opts struct {
	Runs     RunStore
	Steps    StepStore
	Fetcher  WorkflowFetcher
	Registry *executor.Registry
	Bus      *events.Bus
	Cancels  *CancelRegistry
	Logger   *logger.Logger
}

// New creates a new execution engine
func New(opts Opts) *Engine {
	return &Engine{
		runs:     opts.Runs,
		steps:    opts.Steps,
		fetcher:  opts.Fetcher,
		registry: opts.Registry,
		bus:      opts.Bus,
		cancels:  opts.Cancels,
		log:      opts.Logger.WithComponent("engine"),
	}
}

// ExecuteRun drives one run to a terminal state. It is safe to invoke more
// than once for the same run id: terminal runs return immediately, and a
// redelivered run resumes from its persisted step rows without re-executing
// nodes that already succeeded.
func (e *Engine) ExecuteRun(ctx context.Context, runID uuid.UUID) error {
	log := e.log.WithRunID(runID.String())

	run, err := e.runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	if run.Status.Terminal() {
		log.Info("run already terminal, skipping", "status", string(run.Status))
		return nil
	}

	defer e.cancels.Clear(runID)

	rm := metrics.CaptureStart()

	// A run cancelled before this point never starts: it goes straight to
	// cancelled and started_at stays empty.
	if e.cancels.IsCancelled(runID) {
		return e.cancelRun(ctx, log, runID, rm)
	}

	if run.Status == models.RunStatusPending {
		startedAt := time.Now().UTC()
		err := e.runs.UpdateStatus(ctx, runID, models.RunStatusRunning, models.RunStatusUpdate{
			StartedAt: &startedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to mark run running: %w", err)
		}
		run.Status = models.RunStatusRunning
		run.StartedAt = &startedAt

		e.bus.Publish(runID, events.TypeRunStarted, map[string]interface{}{
			"run_id":     runID.String(),
			"started_at": startedAt,
		})
		log.Info("run started", "workflow_id", run.WorkflowID.String())
	} else {
		log.Info("resuming run", "status", string(run.Status))
	}

	// The definition service authorizes reads by the identity of whoever
	// triggered the run.
	fetchCtx := ctx
	if run.TriggeredBy != nil {
		fetchCtx = clients.WithUserID(ctx, run.TriggeredBy.String())
	}

	graph, err := e.fetcher.FetchWorkflow(fetchCtx, run.WorkflowID)
	if err != nil {
		return e.failRun(ctx, log, runID, rm, err.Error())
	}
	if len(graph.Nodes) == 0 {
		return e.failRun(ctx, log, runID, rm, "workflow has no nodes")
	}

	plan, err := planner.Compile(graph)
	if err != nil {
		return e.failRun(ctx, log, runID, rm, err.Error())
	}

	executed := make(map[string]bool, plan.Len())
	outputs := make(map[string]interface{}, plan.Len())

	queue := append([]string{}, plan.Triggers()...)
	noProgress := 0

	for len(queue) > 0 {
		if e.cancels.IsCancelled(runID) {
			return e.cancelRun(ctx, log, runID, rm)
		}

		// Compile rejects cycles, so a full pass over the queue with no
		// node becoming ready can only mean corrupted state.
		if noProgress > len(queue) {
			return e.failRun(ctx, log, runID, rm, "workflow execution stalled: no ready nodes")
		}

		nodeID := queue[0]
		queue = queue[1:]

		if executed[nodeID] {
			continue
		}

		if !depsMet(plan.Deps(nodeID), executed) {
			queue = append(queue, nodeID)
			noProgress++
			continue
		}
		noProgress = 0

		node, ok := plan.Node(nodeID)
		if !ok {
			return e.failRun(ctx, log, runID, rm, fmt.Sprintf("plan references unknown node %s", nodeID))
		}

		step, err := e.steps.Upsert(ctx, runID, run.OrgID, nodeID)
		if err != nil {
			return e.failRun(ctx, log, runID, rm, fmt.Sprintf("failed to upsert step %s: %v", nodeID, err))
		}

		// A resumed run finds its earlier work here. Succeeded steps are
		// never re-executed; their persisted output feeds the successors.
		if step.Status == models.StepStatusSucceeded {
			outputs[nodeID] = step.OutputJSON
			executed[nodeID] = true
			rm.StepRecovered()
			queue = append(queue, plan.Successors(nodeID)...)
			log.Info("step already succeeded, recovered output", "node_id", nodeID)
			continue
		}

		input := buildInput(plan.Deps(nodeID), outputs)

		startedAt := time.Now().UTC()
		running := models.StepStatusRunning
		err = e.steps.Update(ctx, step.ID, models.StepRunUpdate{
			Status:    &running,
			StartedAt: &startedAt,
			Input:     input,
		})
		if err != nil {
			return e.failRun(ctx, log, runID, rm, fmt.Sprintf("failed to mark step %s running: %v", nodeID, err))
		}

		e.bus.Publish(runID, events.TypeStepStarted, map[string]interface{}{
			"step_id":   step.ID.String(),
			"node_id":   nodeID,
			"node_type": node.Data.Type,
		})

		exec, ok := e.registry.Get(node.Data.Type)
		if !ok {
			errMsg := fmt.Sprintf("no executor registered for node type %q", node.Data.Type)
			e.failStep(ctx, log, runID, step.ID, nodeID, errMsg)
			rm.StepFailed()
			return e.failRun(ctx, log, runID, rm, errMsg)
		}

		output, execErr := exec.Execute(ctx, node.Data.Properties, input)
		if execErr != nil {
			e.failStep(ctx, log, runID, step.ID, nodeID, execErr.Error())
			rm.StepFailed()
			return e.failRun(ctx, log, runID, rm, fmt.Sprintf("step %s failed: %v", nodeID, execErr))
		}

		finishedAt := time.Now().UTC()
		succeeded := models.StepStatusSucceeded
		err = e.steps.Update(ctx, step.ID, models.StepRunUpdate{
			Status:     &succeeded,
			FinishedAt: &finishedAt,
			Output:     output,
		})
		if err != nil {
			return e.failRun(ctx, log, runID, rm, fmt.Sprintf("failed to persist step %s output: %v", nodeID, err))
		}

		e.bus.Publish(runID, events.TypeStepSucceeded, map[string]interface{}{
			"step_id": step.ID.String(),
			"node_id": nodeID,
			"output":  output,
		})
		log.Info("step succeeded", "node_id", nodeID, "node_type", node.Data.Type)

		outputs[nodeID] = output
		executed[nodeID] = true
		rm.StepSucceeded()
		queue = append(queue, plan.Successors(nodeID)...)
	}

	if len(executed) != plan.Len() {
		return e.failRun(ctx, log, runID, rm,
			fmt.Sprintf("workflow incomplete: executed %d of %d nodes", len(executed), plan.Len()))
	}

	finishedAt := time.Now().UTC()
	err = e.runs.UpdateStatus(ctx, runID, models.RunStatusCompleted, models.RunStatusUpdate{
		FinishedAt: &finishedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to mark run completed: %w", err)
	}

	e.bus.Publish(runID, events.TypeRunFinished, map[string]interface{}{
		"run_id":      runID.String(),
		"status":      string(models.RunStatusCompleted),
		"finished_at": finishedAt,
	})

	rm.Finalize()
	log.WithFields(rm.ToMap()).Info("run completed")
	return nil
}

// failRun moves the run to failed, records the error, and emits the
// terminal event. The returned nil tells the dispatcher the message is
// handled; the failure lives in the run row.
func (e *Engine) failRun(ctx context.Context, log *logger.Logger, runID uuid.UUID, rm *metrics.RunMetrics, errMsg string) error {
	finishedAt := time.Now().UTC()
	err := e.runs.UpdateStatus(ctx, runID, models.RunStatusFailed, models.RunStatusUpdate{
		FinishedAt: &finishedAt,
		Error:      &errMsg,
	})
	if err != nil {
		log.Error("failed to mark run failed", "error", err)
	}

	e.bus.Publish(runID, events.TypeRunFinished, map[string]interface{}{
		"run_id":      runID.String(),
		"status":      string(models.RunStatusFailed),
		"error":       errMsg,
		"finished_at": finishedAt,
	})

	rm.Finalize()
	log.WithFields(rm.ToMap()).Warn("run failed", "error", errMsg)
	return nil
}

// cancelRun moves the run to cancelled after a node boundary saw the flag
func (e *Engine) cancelRun(ctx context.Context, log *logger.Logger, runID uuid.UUID, rm *metrics.RunMetrics) error {
	finishedAt := time.Now().UTC()
	err := e.runs.UpdateStatus(ctx, runID, models.RunStatusCancelled, models.RunStatusUpdate{
		FinishedAt: &finishedAt,
	})
	if err != nil {
		log.Error("failed to mark run cancelled", "error", err)
	}

	e.bus.Publish(runID, events.TypeRunFinished, map[string]interface{}{
		"run_id":      runID.String(),
		"status":      string(models.RunStatusCancelled),
		"finished_at": finishedAt,
	})

	rm.Finalize()
	log.WithFields(rm.ToMap()).Info("run cancelled")
	return nil
}

// failStep persists the failure on the step row and emits step_failed
func (e *Engine) failStep(ctx context.Context, log *logger.Logger, runID, stepID uuid.UUID, nodeID, errMsg string) {
	finishedAt := time.Now().UTC()
	failed := models.StepStatusFailed
	err := e.steps.Update(ctx, stepID, models.StepRunUpdate{
		Status:     &failed,
		FinishedAt: &finishedAt,
		Error:      &errMsg,
	})
	if err != nil {
		log.Error("failed to mark step failed", "node_id", nodeID, "error", err)
	}

	e.bus.Publish(runID, events.TypeStepFailed, map[string]interface{}{
		"step_id": stepID.String(),
		"node_id": nodeID,
		"error":   errMsg,
	})
	log.Warn("step failed", "node_id", nodeID, "error", errMsg)
}

func depsMet(deps []string, executed map[string]bool) bool {
	for _, dep := range deps {
		if !executed[dep] {
			return false
		}
	}
	return true
}

// buildInput assembles a node's input from its dependencies' outputs. No
// deps yields nil, one dep passes its output through verbatim, and multiple
// deps shallow-merge their map outputs in dependency order so later deps
// overwrite earlier ones. Outputs that are not maps cannot be merged and
// are skipped.
func buildInput(deps []string, outputs map[string]interface{}) interface{} {
	switch len(deps) {
	case 0:
		return nil
	case 1:
		return outputs[deps[0]]
	}

	merged := make(map[string]interface{})
	for _, dep := range deps {
		m, ok := outputs[dep].(map[string]interface{})
		if !ok {
			continue
		}
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}
