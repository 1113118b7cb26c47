package handlers

import (
	"bufio"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/events"
	"github.com/VenkataVardineni/flowforge-automations/common/models"
)

type sseFrame struct {
	event string
	data  string
}

// parseFrames splits a fully buffered SSE body into frames, dropping
// keepalive comments.
func parseFrames(t *testing.T, body string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" || strings.HasPrefix(block, ":") {
			continue
		}
		var f sseFrame
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				f.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				f.data = strings.TrimPrefix(line, "data: ")
			}
		}
		require.NotEmpty(t, f.event, "frame missing event line: %q", block)
		frames = append(frames, f)
	}
	return frames
}

// readFrame consumes one frame from a live stream, skipping keepalives
func readFrame(t *testing.T, r *bufio.Reader) sseFrame {
	t.Helper()
	var f sseFrame
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err, "stream ended before a full frame")
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			f.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			f.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if f.event != "" {
				return f
			}
		}
	}
}

func TestStreamEventsReplaysTerminalRun(t *testing.T) {
	h := newHandlerHarness(t)

	started := time.Now().UTC().Add(-2 * time.Second)
	finished := time.Now().UTC().Add(-time.Second)
	errMsg := "step boom failed: exploded"
	run := &models.Run{
		ID:         uuid.New(),
		WorkflowID: uuid.New(),
		Status:     models.RunStatusFailed,
		CreatedAt:  started.Add(-time.Second),
		StartedAt:  &started,
		FinishedAt: &finished,
		Error:      &errMsg,
	}
	h.runs.seed(run)
	h.steps.steps = []*models.StepRun{
		{ID: uuid.New(), RunID: run.ID, NodeID: "start", Status: models.StepStatusSucceeded, StartedAt: &started, FinishedAt: &finished},
		{ID: uuid.New(), RunID: run.ID, NodeID: "boom", Status: models.StepStatusFailed, StartedAt: &started, FinishedAt: &finished},
	}

	rec := invoke(t, h.stream.StreamEvents,
		httptest.NewRequest(http.MethodGet, "/runs/"+run.ID.String()+"/events", nil),
		map[string]string{"id": run.ID.String()}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	frames := parseFrames(t, rec.Body.String())
	require.Len(t, frames, 4)
	assert.Equal(t, "run_state", frames[0].event)
	assert.Equal(t, "step_succeeded", frames[1].event)
	assert.Equal(t, "step_failed", frames[2].event)
	assert.Equal(t, "run_finished", frames[3].event)

	assert.Equal(t, "failed", gjson.Get(frames[0].data, "data.status").String())
	assert.Equal(t, run.ID.String(), gjson.Get(frames[0].data, "data.run_id").String())

	// Replay frames carry row state but never node outputs.
	assert.Equal(t, "start", gjson.Get(frames[1].data, "data.node_id").String())
	assert.False(t, gjson.Get(frames[1].data, "data.output").Exists())

	assert.Equal(t, "failed", gjson.Get(frames[3].data, "data.status").String())
	assert.Equal(t, errMsg, gjson.Get(frames[3].data, "data.error").String())
}

func TestStreamEventsOmitsErrorWhenCompleted(t *testing.T) {
	h := newHandlerHarness(t)

	finished := time.Now().UTC()
	run := &models.Run{
		ID:         uuid.New(),
		WorkflowID: uuid.New(),
		Status:     models.RunStatusCompleted,
		CreatedAt:  finished.Add(-time.Second),
		FinishedAt: &finished,
	}
	h.runs.seed(run)

	rec := invoke(t, h.stream.StreamEvents,
		httptest.NewRequest(http.MethodGet, "/runs/"+run.ID.String()+"/events", nil),
		map[string]string{"id": run.ID.String()}, nil)

	frames := parseFrames(t, rec.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, "run_state", frames[0].event)
	assert.Equal(t, "run_finished", frames[1].event)
	assert.Equal(t, "completed", gjson.Get(frames[1].data, "data.status").String())
	assert.False(t, gjson.Get(frames[1].data, "data.error").Exists())
}

func TestStreamEventsUnknownRun(t *testing.T) {
	h := newHandlerHarness(t)

	rec := invoke(t, h.stream.StreamEvents,
		httptest.NewRequest(http.MethodGet, "/runs/x/events", nil),
		map[string]string{"id": uuid.New().String()}, nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Run not found"}`, rec.Body.String())
}

func TestStreamEventsRejectsBadID(t *testing.T) {
	h := newHandlerHarness(t)

	rec := invoke(t, h.stream.StreamEvents,
		httptest.NewRequest(http.MethodGet, "/runs/nope/events", nil),
		map[string]string{"id": "nope"}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"run id must be a valid uuid"}`, rec.Body.String())
}

func TestStreamEventsTailsLiveBus(t *testing.T) {
	h := newHandlerHarness(t)
	run := &models.Run{ID: uuid.New(), WorkflowID: uuid.New(), Status: models.RunStatusRunning, CreatedAt: time.Now().UTC()}
	h.runs.seed(run)

	e := echo.New()
	e.GET("/runs/:id/events", h.stream.StreamEvents)
	ts := httptest.NewServer(e)
	defer ts.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(ts.URL + "/runs/" + run.ID.String() + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)

	first := readFrame(t, reader)
	assert.Equal(t, "run_state", first.event)
	assert.Equal(t, "running", gjson.Get(first.data, "data.status").String())

	// The subscription is registered before the snapshot is written, so
	// once run_state has arrived these publishes cannot be missed.
	h.bus.Publish(run.ID, events.TypeStepStarted, map[string]interface{}{
		"step_id": uuid.New().String(), "node_id": "start", "node_type": "transform",
	})
	h.bus.Publish(run.ID, events.TypeRunFinished, map[string]interface{}{
		"run_id": run.ID.String(), "status": "completed", "finished_at": time.Now().UTC(),
	})

	frame := readFrame(t, reader)
	assert.Equal(t, "step_started", frame.event)
	assert.Equal(t, "start", gjson.Get(frame.data, "data.node_id").String())

	frame = readFrame(t, reader)
	assert.Equal(t, "run_finished", frame.event)
	assert.Equal(t, "completed", gjson.Get(frame.data, "data.status").String())

	// run_finished closes the stream.
	_, err = reader.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}
