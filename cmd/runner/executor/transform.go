package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/VenkataVardineni/flowforge-automations/common/logger"
)

var (
	mapExprPattern    = regexp.MustCompile(`\.map\([^=]+=>\s*([^)]+)\)`)
	filterExprPattern = regexp.MustCompile(`\.filter\([^=]+=>\s*([^)]+)\)`)
)

// TransformExecutor reshapes node input with bounded, declarative rules.
// It interprets dotted paths and a small list-projection subset; it never
// executes user code.
type TransformExecutor struct {
	log *logger.Logger
}

// NewTransformExecutor creates the executor
func NewTransformExecutor(log *logger.Logger) *TransformExecutor {
	return &TransformExecutor{log: log}
}

// Execute applies the configured expression to the input.
// Config: `expression` or `script`; a non-empty `script` wins.
func (e *TransformExecutor) Execute(ctx context.Context, config map[string]interface{}, input interface{}) (interface{}, error) {
	expr := config["script"]
	if emptyExpression(expr) {
		expr = config["expression"]
	}
	if emptyExpression(expr) {
		return nil, fmt.Errorf("expression or script is required for transform node")
	}

	switch v := expr.(type) {
	case map[string]interface{}:
		return e.applyMapping(v, input), nil
	case string:
		return e.applyString(v, input), nil
	}

	// Unusable expression type: pass the input through
	if input == nil {
		return map[string]interface{}{}, nil
	}
	return input, nil
}

// applyMapping resolves {output_key: dotted_input_path}; unresolvable paths
// become null
func (e *TransformExecutor) applyMapping(mapping map[string]interface{}, input interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(mapping))
	for outputKey, rawPath := range mapping {
		path, ok := rawPath.(string)
		if !ok {
			e.log.Warn("transform mapping path is not a string", "output_key", outputKey)
			result[outputKey] = nil
			continue
		}
		result[outputKey] = resolvePath(input, path)
	}
	return result
}

// applyString resolves a string expression. Rules, in order: a data./input.
// prefix is stripped and the rest is a dotted path; a $. prefix is stripped
// and the rest is a dotted path; .map(/.filter(/.reduce( trigger a
// simplified list projection; otherwise the whole string is a dotted path.
func (e *TransformExecutor) applyString(expr string, input interface{}) interface{} {
	if strings.HasPrefix(expr, "data.") || strings.HasPrefix(expr, "input.") {
		path := strings.TrimPrefix(expr, "data.")
		path = strings.TrimPrefix(path, "input.")
		return resolvePath(input, path)
	}

	if strings.HasPrefix(expr, "$.") {
		return resolvePath(input, expr[2:])
	}

	if strings.Contains(expr, ".map(") || strings.Contains(expr, ".filter(") || strings.Contains(expr, ".reduce(") {
		return applyListExpression(expr, input)
	}

	return resolvePath(input, expr)
}

// applyListExpression handles the simplified map/filter/reduce subset.
// map extracts one field per element; filter keeps truthy elements; reduce
// and anything unrecognized pass the input through unchanged.
func applyListExpression(expr string, input interface{}) interface{} {
	list, isList := input.([]interface{})

	if strings.Contains(expr, ".map(") {
		if match := mapExprPattern.FindStringSubmatch(expr); match != nil && isList {
			field := strings.TrimSpace(match[1])
			field = strings.TrimPrefix(field, "x.")
			field = strings.TrimPrefix(field, "item.")

			projected := make([]interface{}, 0, len(list))
			for _, item := range list {
				if m, ok := item.(map[string]interface{}); ok {
					projected = append(projected, m[field])
				} else {
					projected = append(projected, item)
				}
			}
			return projected
		}
	}

	if strings.Contains(expr, ".filter(") {
		if match := filterExprPattern.FindStringSubmatch(expr); match != nil && isList {
			kept := make([]interface{}, 0, len(list))
			for _, item := range list {
				if truthy(item) {
					kept = append(kept, item)
				}
			}
			return kept
		}
	}

	return input
}

// resolvePath evaluates a dotted path against the JSON form of the input:
// object key lookup, numeric list index, anything else resolves to nil
func resolvePath(input interface{}, path string) interface{} {
	if input == nil || path == "" {
		return nil
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return nil
	}

	result := gjson.GetBytes(raw, path)
	if !result.Exists() {
		return nil
	}
	return result.Value()
}

// truthy mirrors JSON truthiness: null, false, 0, "", empty list and empty
// object are false
func truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case int:
		return val != 0
	case map[string]interface{}:
		return len(val) > 0
	case []interface{}:
		return len(val) > 0
	}
	return true
}

// emptyExpression reports whether an expression value is absent or blank
func emptyExpression(expr interface{}) bool {
	switch v := expr.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case map[string]interface{}:
		return len(v) == 0
	}
	return false
}
