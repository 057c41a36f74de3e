// Package expr provides Evaluator implementations for the small
// parameter-reference expression language step valueFrom/when fields
// use: `$(path.into.context)` references are looked up against a JSON
// tree assembled from inputs and self; anything else is returned
// as a literal string. Evaluating a full embedded JS/CWL expression
// sub-language is out of scope (§6 non-goal); this is a minimal,
// dependency-grounded stand-in.
package expr

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/cwlgo/wfcore/workflow"
)

// JSONPathEval implements workflow.Evaluator by building a JSON context
// document (via tidwall/sjson) and resolving `$(...)` references against
// it with tidwall/gjson path syntax.
type JSONPathEval struct{}

// NewJSONPathEval builds a JSONPathEval.
func NewJSONPathEval() *JSONPathEval { return &JSONPathEval{} }

func (JSONPathEval) Eval(_ context.Context, expression string, inputs map[string]any, requirements workflow.Requirements, evalContext any, _ workflow.EvalOptions) (any, error) {
	expression = strings.TrimSpace(expression)
	if !strings.HasPrefix(expression, "$(") || !strings.HasSuffix(expression, ")") {
		return expression, nil
	}
	path := strings.TrimSuffix(strings.TrimPrefix(expression, "$("), ")")

	doc, err := buildContext(inputs, evalContext)
	if err != nil {
		return nil, fmt.Errorf("expr: building context: %w", err)
	}

	result := gjson.GetBytes(doc, path)
	if !result.Exists() {
		return nil, nil
	}
	return jsonValue(result), nil
}

// buildContext assembles {"inputs": ..., "self": ...} as a JSON
// document, one field set at a time via sjson, so a malformed inputs
// value can't corrupt the whole document.
func buildContext(inputs map[string]any, self any) ([]byte, error) {
	doc := []byte("{}")
	var err error

	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, err
	}
	doc, err = sjson.SetRawBytes(doc, "inputs", inputsJSON)
	if err != nil {
		return nil, err
	}

	selfJSON, err := json.Marshal(self)
	if err != nil {
		return nil, err
	}
	doc, err = sjson.SetRawBytes(doc, "self", selfJSON)
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// jsonValue converts a gjson.Result into a plain Go value (map[string]any,
// []any, string, float64, bool, or nil), matching the shapes the rest of
// the core works with.
func jsonValue(r gjson.Result) any {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num
	case gjson.String:
		return r.Str
	default:
		if r.IsArray() {
			var out []any
			for _, v := range r.Array() {
				out = append(out, jsonValue(v))
			}
			return out
		}
		if r.IsObject() {
			out := make(map[string]any)
			r.ForEach(func(key, value gjson.Result) bool {
				out[key.String()] = jsonValue(value)
				return true
			})
			return out
		}
		return r.Value()
	}
}
