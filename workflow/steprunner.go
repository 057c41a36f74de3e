package workflow

import (
	"context"
	"fmt"
)

// maxLoadContentBytes bounds how much of a File's contents loadContents
// pre-reads, mirroring cwltool's 64KiB content_limit.
const maxLoadContentBytes = 64 * 1024

// TryMakeJob is the StepRunner's readiness-and-dispatch operation
// (§4.2): it resolves the step's inputs against state, and if ready,
// applies PostScatterEval and dispatches either directly to the step's
// Process or through the ScatterEngine. It returns (nil, nil) when the
// step is not yet ready (state permitting a later retry), grounded in
// cwltool's WorkflowJob.try_make_job.
//
// receive is invoked exactly once per produced job's completion (or
// once overall for a scattered step, after every shard completes); it
// is the caller's responsibility to fold the result back into state.
func TryMakeJob(ctx context.Context, state StateMap, rt *StepRuntime, rc *RuntimeContext, receive OutputCallback) (JobSequence, error) {
	if rt.Submitted {
		return nil, nil
	}
	step := rt.Step

	if step.Process == nil {
		if step.ProcessRef == "" {
			return nil, newErr(CodeMissingValue, step.ID, nil, "step has neither a Process nor a ProcessRef to resolve")
		}
		if rc.ToolLoader == nil {
			return nil, newErr(CodeFeatureNotDeclared, step.ID, nil,
				"step references run %q but no ToolLoader collaborator is configured", step.ProcessRef)
		}
		resolved, err := rc.ToolLoader.LoadTool(ctx, step.ProcessRef)
		if err != nil {
			return nil, newErr(CodeMissingValue, step.ID, err, "loading run %q", step.ProcessRef)
		}
		step.Process = resolved
	}

	inputObj, ready, err := Resolve(state, step.Inputs, false, step.Requirements.Has(ReqMultipleInput), false)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, nil
	}

	valueFromMap := step.valueFromMap()
	if len(valueFromMap) > 0 && !step.Requirements.Has(ReqStepInputExpression) {
		return nil, newErr(CodeFeatureNotDeclared, step.ID, nil,
			"step declares valueFrom but StepInputExpressionRequirement is not in effect")
	}
	loadSet := step.loadContentsSet()

	eval := func(evalCtx context.Context, io map[string]any) (map[string]any, error) {
		return runPostScatterEval(evalCtx, step, io, valueFromMap, loadSet, rc)
	}

	wrappedReceive := func(output map[string]any, status Status) {
		filled, missing := stepOutputOrNil(step, output)
		if missing && status == StatusSuccess {
			// §4.2.4: a declared output id absent from a job reporting
			// success escalates the step to permanentFail, distinct from
			// an output the job legitimately bound to null. A job that
			// already failed or was skipped is expected to omit outputs.
			status = StatusPermanentFail
		}
		receive(filled, status)
	}

	if len(step.Scatter) > 0 {
		rt.Submitted = true
		rc2 := rc.Copy()
		rc2.postScatterEval = eval
		seq, err := newScatterSequence(ctx, step, inputObj, rc2, wrappedReceive)
		if err != nil {
			return nil, err
		}
		if !rt.Submitted {
			// An empty scatter axis fires the assembled result
			// synchronously; if that result was a retryable
			// temporaryFail, receive already reset rt.jobs/rt.Submitted
			// for resubmission. Don't hand back the now-exhausted seq.
			return nil, nil
		}
		rt.jobs = seq
		return seq, nil
	}

	evaluated, err := eval(ctx, inputObj)
	if err != nil {
		return nil, err
	}
	rt.Submitted = true

	if evaluated == nil {
		skipped := make(map[string]any, len(step.Outputs))
		for _, p := range step.Outputs {
			skipped[p.ID] = nil
		}
		wrappedReceive(skipped, StatusSkipped)
		rt.jobs = emptySequence{}
		return rt.jobs, nil
	}

	jobCtx, cancel := withStepTimeout(ctx, step)
	defer cancel()
	seq := step.Process.Job(jobCtx, evaluated, wrappedReceive, rc)
	if !rt.Submitted {
		// A synchronous Process (one that invokes its output callback
		// before Job returns) may have completed with a retryable
		// temporaryFail; receive already reset rt.jobs/rt.Submitted for
		// resubmission. Returning seq here would clobber that reset with
		// an already-exhausted sequence.
		return nil, nil
	}
	rt.jobs = seq
	return seq, nil
}

// withStepTimeout bounds a single job dispatch to step.Timeout, mirroring
// the teacher's per-node timeout precedence (a step-local override over
// an otherwise unbounded context). A zero Timeout returns ctx unchanged.
func withStepTimeout(ctx context.Context, step *Step) (context.Context, context.CancelFunc) {
	if step.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, step.Timeout)
}

// stepOutputOrNil fills in an explicit nil for every declared output id
// the job didn't produce, so downstream receive-output logic can tell
// "missing" apart from "not yet looked at" (§4.2.4). The returned bool
// reports whether any declared output id was actually absent from the
// job's output mapping (as opposed to present and bound to nil).
func stepOutputOrNil(step *Step, output map[string]any) (map[string]any, bool) {
	if output == nil {
		output = map[string]any{}
	}
	missing := false
	for _, p := range step.Outputs {
		if _, ok := output[p.ID]; !ok {
			output[p.ID] = nil
			missing = true
		}
	}
	return output, missing
}

// runPostScatterEval implements PostScatterEval (§4.2.2): it loads
// requested file contents, evaluates each valueFrom expression in
// declaration order, and finally evaluates the step's when condition.
// It returns (nil, nil) when when evaluates false (the step/shard is
// skipped, not an error).
func runPostScatterEval(ctx context.Context, step *Step, io map[string]any, valueFromMap map[string]string, loadSet map[string]bool, rc *RuntimeContext) (map[string]any, error) {
	psio := make(map[string]any, len(io))
	for k, v := range io {
		psio[k] = v
	}

	if rc.FSAccess != nil {
		for k := range loadSet {
			f, ok := psio[k].(*FileRef)
			if !ok || f.HasContent {
				continue
			}
			rd, err := rc.FSAccess.Open(ctx, f.Location)
			if err != nil {
				return nil, newErr(CodeMissingValue, step.ID, err, "loadContents: opening %s", f.Location)
			}
			buf := make([]byte, maxLoadContentBytes)
			n, _ := rd.Read(buf)
			_ = rd.Close()
			clone := *f
			clone.Contents = string(buf[:n])
			clone.HasContent = true
			psio[k] = &clone
		}
	}

	if len(valueFromMap) > 0 {
		shortio := make(map[string]any, len(psio))
		for k, v := range psio {
			shortio[ShortName(k)] = v
		}
		for _, p := range step.Inputs {
			expr, has := valueFromMap[p.ID]
			if !has {
				continue
			}
			original := psio[p.ID]
			if rc.FSAccess != nil {
				expandDirListings(ctx, original, rc.FSAccess)
			}
			if rc.Evaluator == nil {
				return nil, fmt.Errorf("step %s: valueFrom %q requires an Evaluator collaborator", step.ID, expr)
			}
			result, err := rc.Evaluator.Eval(ctx, expr, shortio, step.Requirements, original, EvalOptions{
				Debug: rc.Debug, JSConsole: rc.JSConsole, Timeout: rc.EvalTimeout,
			})
			if err != nil {
				return nil, newErr(CodeMissingValue, step.ID, err, "valueFrom %q failed", expr)
			}
			psio[p.ID] = result
			shortio[ShortName(p.ID)] = result
		}
	}

	if step.When != "" {
		if rc.Evaluator == nil {
			return nil, fmt.Errorf("step %s: when %q requires an Evaluator collaborator", step.ID, step.When)
		}
		shortio := make(map[string]any, len(psio))
		for k, v := range psio {
			shortio[ShortName(k)] = v
		}
		result, err := rc.Evaluator.Eval(ctx, step.When, shortio, step.Requirements, psio, EvalOptions{
			Debug: rc.Debug, JSConsole: rc.JSConsole, Timeout: rc.EvalTimeout,
		})
		if err != nil {
			return nil, newErr(CodeConditionalTypeError, step.ID, err, "when %q failed", step.When)
		}
		proceed, ok := result.(bool)
		if !ok {
			return nil, newErr(CodeConditionalTypeError, step.ID, nil,
				"when %q evaluated to a non-boolean %T", step.When, result)
		}
		if !proceed {
			return nil, nil
		}
	}

	return psio, nil
}

// expandDirListings resolves directory listings in place before an
// expression that may reference them evaluates, mirroring cwltool's
// recursive dir listing fill-in ahead of valueFrom/when.
func expandDirListings(ctx context.Context, v any, fs FSAccess) {
	switch t := v.(type) {
	case *DirRef:
		if len(t.Listing) == 0 {
			if entries, err := fs.Listing(ctx, t.Location); err == nil {
				t.Listing = entries
			}
		}
	case map[string]any:
		for _, vv := range t {
			expandDirListings(ctx, vv, fs)
		}
	case []any:
		for _, vv := range t {
			expandDirListings(ctx, vv, fs)
		}
	}
}

// emptySequence is an already-exhausted JobSequence, used when a step
// (or shard) is skipped without ever producing a job.
type emptySequence struct{}

func (emptySequence) Pull(ctx context.Context) (Job, PullStatus) { return Job{}, PullDone }
