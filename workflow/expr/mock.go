package expr

import (
	"context"
	"sync"

	"github.com/cwlgo/wfcore/workflow"
)

// MockEvaluator is a test Evaluator with a fixed table of
// expression->result mappings, plus call history for assertions.
type MockEvaluator struct {
	Results map[string]any
	Err     error

	mu    sync.Mutex
	Calls []MockEvalCall
}

// MockEvalCall records a single Eval invocation.
type MockEvalCall struct {
	Expression string
	Inputs     map[string]any
	Context    any
}

func (m *MockEvaluator) Eval(_ context.Context, expression string, inputs map[string]any, _ workflow.Requirements, evalContext any, _ workflow.EvalOptions) (any, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockEvalCall{Expression: expression, Inputs: inputs, Context: evalContext})
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	return m.Results[expression], nil
}
