package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/events"
	"github.com/VenkataVardineni/flowforge-automations/common/logger"
	"github.com/VenkataVardineni/flowforge-automations/common/repository"
)

const streamKeepalive = 30 * time.Second

// StreamHandler serves the live run event stream
type StreamHandler struct {
	runs  RunStore
	steps StepStore
	bus   *events.Bus
	log   *logger.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(runs RunStore, steps StepStore, bus *events.Bus, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		runs:  runs,
		steps: steps,
		bus:   bus,
		log:   log.WithComponent("handlers"),
	}
}

// StreamEvents streams run lifecycle events as server-sent events. Late
// subscribers first get a snapshot (run_state plus one synthetic event per
// persisted step), then tail the bus until run_finished, a heartbeat
// keeping the connection alive through quiet stretches.
// GET /runs/:id/events
func (h *StreamHandler) StreamEvents(c echo.Context) error {
	ctx := c.Request().Context()

	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "run id must be a valid uuid",
		})
	}

	if _, err := h.runs.GetByID(ctx, runID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "Run not found",
			})
		}
		h.log.Error("failed to fetch run", "run_id", runID.String(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to fetch run",
		})
	}

	// Subscribe before reading the snapshot: anything published after
	// this point is buffered, so nothing can fall between snapshot and
	// tail.
	sub := h.bus.Subscribe(runID)
	defer h.bus.Unsubscribe(sub)

	run, err := h.runs.GetByID(ctx, runID)
	if err != nil {
		h.log.Error("failed to fetch run", "run_id", runID.String(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to fetch run",
		})
	}

	steps, err := h.steps.ListByRun(ctx, runID)
	if err != nil {
		h.log.Error("failed to list steps", "run_id", runID.String(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to list steps",
		})
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeFrame(w, events.Event{
		Type: events.TypeRunState,
		Data: map[string]interface{}{
			"run_id":      run.ID.String(),
			"status":      string(run.Status),
			"created_at":  run.CreatedAt,
			"started_at":  run.StartedAt,
			"finished_at": run.FinishedAt,
		},
		Timestamp: run.CreatedAt,
	}); err != nil {
		return nil
	}

	// Replay persisted steps so late subscribers see complete history.
	// Replay frames carry row state, not outputs.
	for _, step := range steps {
		if err := writeFrame(w, events.Event{
			Type: "step_" + string(step.Status),
			Data: map[string]interface{}{
				"step_id":     step.ID.String(),
				"node_id":     step.NodeID,
				"status":      string(step.Status),
				"started_at":  step.StartedAt,
				"finished_at": step.FinishedAt,
			},
			Timestamp: tsOrNow(step.StartedAt),
		}); err != nil {
			return nil
		}
	}

	// A terminal run publishes nothing further; synthesize the closing
	// event so the client does not hang waiting for one.
	if run.Status.Terminal() {
		data := map[string]interface{}{
			"run_id":      run.ID.String(),
			"status":      string(run.Status),
			"finished_at": run.FinishedAt,
		}
		if run.Error != nil {
			data["error"] = *run.Error
		}
		writeFrame(w, events.Event{
			Type:      events.TypeRunFinished,
			Data:      data,
			Timestamp: tsOrNow(run.FinishedAt),
		})
		return nil
	}

	keepalive := time.NewTimer(streamKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := writeFrame(w, ev); err != nil {
				return nil
			}
			if ev.Type == events.TypeRunFinished {
				return nil
			}
			keepalive.Reset(streamKeepalive)

		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return nil
			}
			w.Flush()
			keepalive.Reset(streamKeepalive)

		case <-ctx.Done():
			return nil
		}
	}
}

// writeFrame emits one SSE frame carrying the whole event envelope
func writeFrame(w *echo.Response, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func tsOrNow(t *time.Time) time.Time {
	if t != nil {
		return *t
	}
	return time.Now().UTC()
}
