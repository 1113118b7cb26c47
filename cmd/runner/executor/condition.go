package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// ConditionExecutor evaluates ifCondition nodes. Without a configured
// expression the node is a pass-through stub returning {result: true}.
type ConditionExecutor struct {
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewConditionExecutor creates the executor with an empty program cache
func NewConditionExecutor() *ConditionExecutor {
	return &ConditionExecutor{
		cache: make(map[string]cel.Program),
	}
}

// Execute evaluates the configured CEL expression against the node input.
// The input is bound to the variable `input`; a $. prefix is rewritten to
// input. for JSONPath-style expressions.
func (e *ConditionExecutor) Execute(ctx context.Context, config map[string]interface{}, input interface{}) (interface{}, error) {
	data := input
	if data == nil {
		data = map[string]interface{}{}
	}

	expr, _ := config["expression"].(string)
	if expr == "" {
		return map[string]interface{}{"result": true, "data": data}, nil
	}

	result, err := e.evaluate(expr, data)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{"result": result, "data": data}, nil
}

func (e *ConditionExecutor) evaluate(expr string, input interface{}) (bool, error) {
	normalized := strings.ReplaceAll(expr, "$.", "input.")

	e.mu.RLock()
	prg, exists := e.cache[normalized]
	e.mu.RUnlock()

	if !exists {
		var err error
		prg, err = compileCondition(normalized)
		if err != nil {
			return false, err
		}

		e.mu.Lock()
		e.cache[normalized] = prg
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"input": input,
	})
	if err != nil {
		return false, fmt.Errorf("condition evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition expression did not return boolean, got %T", out.Value())
	}

	return result, nil
}

func compileCondition(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("condition compilation error: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return prg, nil
}

// CacheSize returns the number of compiled expressions held
func (e *ConditionExecutor) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
