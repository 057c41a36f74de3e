package process

import (
	"context"

	"github.com/cwlgo/wfcore/workflow"
)

// ExpressionToolProcess implements workflow.Process for an
// ExpressionTool: it evaluates a single expression against the
// resolved input object and scatters the result's fields across the
// declared output parameters by id.
type ExpressionToolProcess struct {
	Evaluator  workflow.Evaluator
	Expression string
}

func (p *ExpressionToolProcess) Job(ctx context.Context, input map[string]any, out workflow.OutputCallback, rc *workflow.RuntimeContext) workflow.JobSequence {
	result, err := p.Evaluator.Eval(ctx, p.Expression, input, nil, input, workflow.EvalOptions{
		Debug: rc.Debug, JSConsole: rc.JSConsole, Timeout: rc.EvalTimeout,
	})
	if err != nil {
		out(nil, workflow.StatusPermanentFail)
		return doneSequence{}
	}
	output, ok := result.(map[string]any)
	if !ok {
		out(nil, workflow.StatusPermanentFail)
		return doneSequence{}
	}
	out(output, workflow.StatusSuccess)
	return doneSequence{}
}
