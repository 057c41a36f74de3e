// Package process provides Process implementations: a test double for
// exercising the core without real work, and adapters wrapping an
// llm.ChatModel or expression Evaluator as WDL process classes.
// Grounded in the teacher's graph/tool.MockTool and graph/model.MockChatModel.
package process

import (
	"context"
	"sync"

	"github.com/cwlgo/wfcore/workflow"
)

// MockProcess is a test workflow.Process: it replays a configured
// sequence of outputs/statuses (repeating the last once exhausted) and
// records every Job call for assertions.
type MockProcess struct {
	Outputs []map[string]any
	Status  []workflow.Status

	mu        sync.Mutex
	Calls     []MockProcessCall
	callIndex int
}

// MockProcessCall records one Job invocation.
type MockProcessCall struct {
	Input map[string]any
}

func (m *MockProcess) Job(_ context.Context, input map[string]any, out workflow.OutputCallback, _ *workflow.RuntimeContext) workflow.JobSequence {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockProcessCall{Input: input})
	idx := m.callIndex
	if idx >= len(m.Outputs) && len(m.Outputs) > 0 {
		idx = len(m.Outputs) - 1
	} else {
		m.callIndex++
	}
	m.mu.Unlock()

	var output map[string]any
	status := workflow.StatusSuccess
	if idx >= 0 && idx < len(m.Outputs) {
		output = m.Outputs[idx]
	}
	if idx >= 0 && idx < len(m.Status) {
		status = m.Status[idx]
	}
	out(output, status)
	return doneSequence{}
}

type doneSequence struct{}

func (doneSequence) Pull(context.Context) (workflow.Job, workflow.PullStatus) {
	return workflow.Job{}, workflow.PullDone
}
