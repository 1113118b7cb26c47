package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/VenkataVardineni/flowforge-automations/common/logger"
)

// Telemetry serves the pprof endpoints on a loopback-only listener
type Telemetry struct {
	log    *logger.Logger
	server *http.Server
}

// New creates the profiling server. The listener binds to localhost only.
func New(pprofPort int, log *logger.Logger) *Telemetry {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return &Telemetry{
		log: log,
		server: &http.Server{
			Addr:    fmt.Sprintf("localhost:%d", pprofPort),
			Handler: mux,
		},
	}
}

// Start serves pprof in the background. Listen errors are logged, never
// returned; profiling is best-effort.
func (t *Telemetry) Start(ctx context.Context) error {
	go func() {
		t.log.Info("pprof server starting", "addr", t.server.Addr)
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("pprof server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the profiling server down
func (t *Telemetry) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return t.server.Shutdown(shutdownCtx)
}
