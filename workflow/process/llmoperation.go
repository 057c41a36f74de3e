package process

import (
	"context"
	"fmt"

	"github.com/cwlgo/wfcore/workflow"
	"github.com/cwlgo/wfcore/workflow/llm"
)

// LLMOperationProcess implements workflow.Process for a WDL-style
// Operation: it renders a prompt from the resolved input object, sends
// it to a backing llm.ChatModel, and writes the response text into a
// single declared output parameter.
//
// The call is made synchronously inside Job, so this process never
// returns a pending JobSequence: callers that need non-blocking
// dispatch should run Job itself inside a goroutine pool of their own.
type LLMOperationProcess struct {
	Model        llm.ChatModel
	ModelName    string
	SystemPrompt string
	// Render builds the user-turn prompt from the step's resolved input
	// object. A nil Render falls back to formatting the input map.
	Render func(input map[string]any) string
	// OutputID is the full parameter id the model's response text is
	// written to.
	OutputID string
}

func (p *LLMOperationProcess) Job(ctx context.Context, input map[string]any, out workflow.OutputCallback, rc *workflow.RuntimeContext) workflow.JobSequence {
	prompt := p.renderPrompt(input)

	messages := make([]llm.Message, 0, 2)
	if p.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: p.SystemPrompt})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	result, err := p.Model.Chat(ctx, messages, nil)
	if err != nil {
		out(map[string]any{p.OutputID: nil}, workflow.StatusPermanentFail)
		return doneSequence{}
	}
	if rc != nil && rc.CostTracker != nil {
		rc.CostTracker.Record(p.ModelName, rc.Name, result.Usage.InputTokens, result.Usage.OutputTokens)
	}
	out(map[string]any{p.OutputID: result.Text}, workflow.StatusSuccess)
	return doneSequence{}
}

func (p *LLMOperationProcess) renderPrompt(input map[string]any) string {
	if p.Render != nil {
		return p.Render(input)
	}
	return fmt.Sprintf("%v", input)
}
