package metrics

import (
	"runtime"
	"time"
)

// RunMetrics captures resource usage and step outcomes for a single run.
// The engine creates one at run start, increments the step counters as
// nodes execute, and finalizes it when the run reaches a terminal state.
type RunMetrics struct {
	StartedAt      time.Time
	DurationMS     int64
	MemoryStartMB  float64
	MemoryPeakMB   float64
	MemoryEndMB    float64
	GoroutineStart int
	GoroutineEnd   int
	StepsExecuted  int
	StepsSucceeded int
	StepsFailed    int
	StepsRecovered int
}

// CaptureStart snapshots memory and goroutine counts at the beginning of a run.
func CaptureStart() *RunMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &RunMetrics{
		StartedAt:      time.Now().UTC(),
		MemoryStartMB:  float64(m.Alloc) / 1024 / 1024,
		GoroutineStart: runtime.NumGoroutine(),
	}
}

// StepSucceeded records a node that executed and produced output.
func (rm *RunMetrics) StepSucceeded() {
	rm.StepsExecuted++
	rm.StepsSucceeded++
}

// StepFailed records a node whose executor returned an error.
func (rm *RunMetrics) StepFailed() {
	rm.StepsExecuted++
	rm.StepsFailed++
}

// StepRecovered records a node skipped because a previous attempt
// already persisted a successful result for it.
func (rm *RunMetrics) StepRecovered() {
	rm.StepsRecovered++
}

// Finalize completes the capture once the run is terminal.
func (rm *RunMetrics) Finalize() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	rm.DurationMS = time.Since(rm.StartedAt).Milliseconds()
	rm.MemoryEndMB = float64(m.Alloc) / 1024 / 1024
	rm.GoroutineEnd = runtime.NumGoroutine()

	// Peak is approximated as the higher of the two snapshots.
	if rm.MemoryEndMB > rm.MemoryStartMB {
		rm.MemoryPeakMB = rm.MemoryEndMB
	} else {
		rm.MemoryPeakMB = rm.MemoryStartMB
	}
}

// ToMap converts RunMetrics to structured logging fields.
func (rm *RunMetrics) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"duration_ms":     rm.DurationMS,
		"memory_start_mb": rm.MemoryStartMB,
		"memory_peak_mb":  rm.MemoryPeakMB,
		"memory_end_mb":   rm.MemoryEndMB,
		"goroutine_start": rm.GoroutineStart,
		"goroutine_end":   rm.GoroutineEnd,
		"steps_executed":  rm.StepsExecuted,
		"steps_succeeded": rm.StepsSucceeded,
		"steps_failed":    rm.StepsFailed,
		"steps_recovered": rm.StepsRecovered,
	}
}
