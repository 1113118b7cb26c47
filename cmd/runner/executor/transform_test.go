package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VenkataVardineni/flowforge-automations/common/logger"
)

func newTransformExecutor() *TransformExecutor {
	return NewTransformExecutor(logger.New("error", "json"))
}

func TestTransformRequiresExpression(t *testing.T) {
	e := newTransformExecutor()

	_, err := e.Execute(context.Background(), map[string]interface{}{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expression or script is required")

	// Blank values count as absent
	_, err = e.Execute(context.Background(), map[string]interface{}{
		"expression": "",
		"script":     map[string]interface{}{},
	}, nil)
	require.Error(t, err)
}

func TestTransformMappingExpression(t *testing.T) {
	e := newTransformExecutor()
	input := map[string]interface{}{
		"user": map[string]interface{}{
			"name":    "ada",
			"address": map[string]interface{}{"city": "paris"},
		},
	}

	out, err := e.Execute(context.Background(), map[string]interface{}{
		"expression": map[string]interface{}{
			"name":    "user.name",
			"city":    "user.address.city",
			"missing": "user.ghost",
		},
	}, input)
	require.NoError(t, err)

	result, ok := out.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ada", result["name"])
	assert.Equal(t, "paris", result["city"])
	assert.Nil(t, result["missing"], "unresolvable paths become null")
}

func TestTransformStringExpressions(t *testing.T) {
	e := newTransformExecutor()

	input := map[string]interface{}{
		"user": map[string]interface{}{"name": "ada"},
		"items": []interface{}{
			map[string]interface{}{"id": float64(1)},
			map[string]interface{}{"id": float64(2)},
		},
	}

	cases := []struct {
		name  string
		expr  string
		input interface{}
		want  interface{}
	}{
		{name: "data prefix", expr: "data.user.name", input: input, want: "ada"},
		{name: "input prefix", expr: "input.user.name", input: input, want: "ada"},
		{name: "jsonpath prefix", expr: "$.user.name", input: input, want: "ada"},
		{name: "bare path", expr: "user.name", input: input, want: "ada"},
		{name: "numeric list index", expr: "data.items.1.id", input: input, want: float64(2)},
		{name: "missing path", expr: "data.user.ghost", input: input, want: nil},
		{name: "whole subtree", expr: "$.user", input: input, want: map[string]interface{}{"name": "ada"}},
		{name: "nil input", expr: "data.user.name", input: nil, want: nil},
		{
			// The prefix rule applies before projection parsing, so the
			// remainder is treated as a (nonexistent) dotted path
			name:  "prefix strip wins over map",
			expr:  "data.map(x => x.value)",
			input: []interface{}{map[string]interface{}{"value": float64(1)}},
			want:  nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := e.Execute(context.Background(), map[string]interface{}{
				"expression": tc.expr,
			}, tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out)
		})
	}
}

func TestTransformScriptWinsOverExpression(t *testing.T) {
	e := newTransformExecutor()
	input := map[string]interface{}{"a": float64(1), "b": float64(2)}

	out, err := e.Execute(context.Background(), map[string]interface{}{
		"script":     "data.a",
		"expression": "data.b",
	}, input)
	require.NoError(t, err)
	assert.Equal(t, float64(1), out)

	// An empty script falls back to the expression
	out, err = e.Execute(context.Background(), map[string]interface{}{
		"script":     "",
		"expression": "data.b",
	}, input)
	require.NoError(t, err)
	assert.Equal(t, float64(2), out)
}

func TestTransformMapProjection(t *testing.T) {
	e := newTransformExecutor()
	input := []interface{}{
		map[string]interface{}{"value": float64(1)},
		map[string]interface{}{"value": float64(2), "other": "x"},
		"scalar",
	}

	out, err := e.Execute(context.Background(), map[string]interface{}{
		"expression": "items.map(x => x.value)",
	}, input)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{float64(1), float64(2), "scalar"}, out,
		"map extracts the field from objects and passes scalars through")
}

func TestTransformFilterProjection(t *testing.T) {
	e := newTransformExecutor()
	input := []interface{}{
		map[string]interface{}{"a": float64(1)},
		nil,
		false,
		"",
		map[string]interface{}{},
		[]interface{}{},
		"keep",
		float64(0),
		true,
	}

	out, err := e.Execute(context.Background(), map[string]interface{}{
		"expression": "items.filter(x => x.active)",
	}, input)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{
		map[string]interface{}{"a": float64(1)},
		"keep",
		true,
	}, out, "filter keeps truthy elements only")
}

func TestTransformReducePassesThrough(t *testing.T) {
	e := newTransformExecutor()
	input := []interface{}{float64(1), float64(2), float64(3)}

	out, err := e.Execute(context.Background(), map[string]interface{}{
		"expression": "items.reduce((acc, x) => acc + x, 0)",
	}, input)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestTransformProjectionOnNonList(t *testing.T) {
	e := newTransformExecutor()
	input := map[string]interface{}{"items": []interface{}{float64(1)}}

	out, err := e.Execute(context.Background(), map[string]interface{}{
		"expression": "x.map(x => x.id)",
	}, input)
	require.NoError(t, err)
	assert.Equal(t, input, out, "projections on non-list input pass it through")
}
