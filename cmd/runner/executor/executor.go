package executor

import (
	"context"
	"sync"

	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/security"
	"github.com/VenkataVardineni/flowforge-automations/common/logger"
)

// Executor runs a single workflow node. Config comes from the node's graph
// properties; input is the piped output of upstream nodes (nil for triggers).
type Executor interface {
	Execute(ctx context.Context, config map[string]interface{}, input interface{}) (interface{}, error)
}

// Registry maps node-type strings to executors. It is populated at startup
// and treated as read-only while runs execute.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates a registry with all built-in executors registered.
// guard may be nil, which disables SSRF checks on httpRequest nodes.
func NewRegistry(log *logger.Logger, guard *security.URLValidator) *Registry {
	r := &Registry{
		executors: make(map[string]Executor),
	}

	r.Register("httpRequest", NewHTTPRequestExecutor(log, guard))
	r.Register("transform", NewTransformExecutor(log))
	r.Register("ifCondition", NewConditionExecutor())

	// Stubbed node types: trivial success shapes so graphs containing them
	// do not fail on dispatch
	r.Register("webhookTrigger", NewStubExecutor("triggered", true))
	r.Register("postgresWrite", NewStubExecutor("rows_affected", 0))
	r.Register("notification", NewStubExecutor("sent", true))

	return r
}

// Register adds or replaces the executor for a node type
func (r *Registry) Register(nodeType string, ex Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[nodeType] = ex
}

// Get returns the executor for a node type
func (r *Registry) Get(nodeType string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.executors[nodeType]
	return ex, ok
}

// Types returns the registered node types
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	return types
}
