package executor

import "context"

// StubExecutor returns a fixed success shape carrying the node input
// through. It stands in for node types whose real integration is not
// implemented yet.
type StubExecutor struct {
	key   string
	value interface{}
}

// NewStubExecutor creates a stub whose output is {key: value, data: input}
func NewStubExecutor(key string, value interface{}) *StubExecutor {
	return &StubExecutor{key: key, value: value}
}

// Execute ignores config and echoes the input
func (e *StubExecutor) Execute(ctx context.Context, config map[string]interface{}, input interface{}) (interface{}, error) {
	data := input
	if data == nil {
		data = map[string]interface{}{}
	}

	return map[string]interface{}{
		e.key:  e.value,
		"data": data,
	}, nil
}
