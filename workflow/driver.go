package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// NewRunID generates a fresh, unique run identifier for callers that
// don't already have one of their own (e.g. a caller-supplied
// request/trace id). Run's seeded shuffle and Store keying both accept
// any string, so a caller with an existing scheme can ignore this.
func NewRunID() string {
	return uuid.New().String()
}

// Workflow is the static, immutable description of a workflow graph
// (§3): its declared inputs/outputs and the steps connecting them. It
// is built once via NewWorkflow and then driven any number of times via
// Run, each call producing an independent run.
type Workflow struct {
	ID           string
	Inputs       []*Parameter
	Outputs      []*Parameter
	Steps        []*Step
	Requirements Requirements

	opts  Options
	names *nameCounters
}

// NewWorkflow validates and constructs a Workflow, applying each step's
// scatter type rewrite (§3) and, if supplied, running the static
// checker over every step's link wiring before any run starts.
func NewWorkflow(id string, inputs, outputs []*Parameter, steps []*Step, requirements Requirements, opts ...Option) (*Workflow, error) {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}

	if requirements == nil {
		requirements = Requirements{}
	}
	names := newNameCounters()
	for _, s := range steps {
		s.setName(names.UniqueName(fmt.Sprintf("step %s", ShortName(s.ID))))
		if s.Requirements == nil {
			s.Requirements = requirements
		}
		if err := s.applyScatterTypeRewrite(); err != nil {
			return nil, err
		}
		if s.Retry != nil {
			if err := s.Retry.Validate(); err != nil {
				return nil, err
			}
		}
		for _, p := range s.Inputs {
			if !p.NotConnected && len(p.Sources) == 0 && !p.HasDefault && p.ValueFrom == "" {
				return nil, newErr(CodeMissingValue, s.ID, nil,
					"step input %q has no source, default, or valueFrom", ShortName(p.ID))
			}
		}
	}

	if o.StaticCheck != nil {
		paramToStep := make(map[string]string)
		var stepInputs, stepOutputs []*Parameter
		for _, s := range steps {
			for _, p := range s.Inputs {
				stepInputs = append(stepInputs, p)
				paramToStep[p.ID] = s.ID
			}
			for _, p := range s.Outputs {
				stepOutputs = append(stepOutputs, p)
				paramToStep[p.ID] = s.ID
			}
		}
		if err := o.StaticCheck(inputs, outputs, stepInputs, stepOutputs, paramToStep); err != nil {
			return nil, err
		}
	}

	return &Workflow{
		ID:           id,
		Inputs:       inputs,
		Outputs:      outputs,
		Steps:        steps,
		Requirements: requirements,
		opts:         o,
		names:        names,
	}, nil
}

// seedFromRunID derives a deterministic RNG seed from a run id, the Go
// analogue of cwltool's approach of hashing a run id into a reproducible
// shuffle seed for test determinism.
func seedFromRunID(runID string) int64 {
	sum := sha256.Sum256([]byte(runID))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// Run drives the workflow to completion (§3 Lifecycle, §4.4 final
// output collection): it seeds state from jobInputs and each workflow
// input's declared default, then repeatedly submits ready steps and drains
// their JobSequences until every step is completed or no further
// progress is possible, grounded in cwltool's WorkflowJob.job main
// loop.
func (wf *Workflow) Run(ctx context.Context, runID string, jobInputs map[string]any, rc *RuntimeContext) (output map[string]any, status Status, err error) {
	wf.opts.Emitter.Emit(Event{RunID: runID, Kind: "workflow.start", Time: time.Now()})
	defer func() {
		wf.opts.Emitter.Emit(Event{RunID: runID, Kind: "workflow.finish", Status: status, Time: time.Now()})
	}()

	rc = rc.Copy()
	rc.RunID = runID
	rc.Emitter = wf.opts.Emitter

	state := make(StateMap)

	for _, p := range wf.Inputs {
		v, present := jobInputs[ShortName(p.ID)]
		switch {
		case present:
			// ok
		case p.HasDefault:
			v = p.Default
		default:
			return nil, StatusPermanentFail, newErr(CodeMissingWorkflowInput, p.ID, nil,
				"no value provided for required workflow input %q", ShortName(p.ID))
		}
		state[p.ID] = &WorkflowStateItem{Parameter: p, Value: deepCopyValue(v), Status: StatusSuccess}
	}

	for _, s := range wf.Steps {
		for _, p := range s.Outputs {
			state[p.ID] = nil
		}
	}

	if wf.opts.Store != nil {
		if saved, ok, err := wf.opts.Store.LoadState(runID); err == nil && ok {
			paramByID := make(map[string]*Parameter, len(wf.Inputs)+len(state))
			for _, p := range wf.Inputs {
				paramByID[p.ID] = p
			}
			for _, s := range wf.Steps {
				for _, p := range s.Outputs {
					paramByID[p.ID] = p
				}
			}
			for k, v := range saved {
				if v != nil && v.Parameter == nil {
					v.Parameter = paramByID[k]
				}
				state[k] = v
			}
		}
	}

	seed := seedFromRunID(runID)
	if wf.opts.Seed != nil {
		seed = *wf.opts.Seed
	}
	rng := rand.New(rand.NewSource(seed))

	order := make([]int, len(wf.Steps))
	for i := range order {
		order[i] = i
	}
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	runtimes := make([]*StepRuntime, len(wf.Steps))
	for i, s := range wf.Steps {
		runtimes[i] = &StepRuntime{Step: s}
	}

	processStatus := StatusSuccess
	rounds := 0

	for {
		rounds++
		if wf.opts.MaxRounds > 0 && rounds > wf.opts.MaxRounds {
			processStatus = WorseStatus(processStatus, StatusPermanentFail)
			break
		}

		madeProgress := false
		completed := 0
		var nextRetryAt time.Time

		for _, idx := range order {
			rt := runtimes[idx]
			if rt.Completed {
				completed++
				continue
			}

			if wf.opts.OnError == OnErrorStop && processStatus != StatusSuccess {
				break
			}

			if rt.jobs == nil && !rt.retryAfter.IsZero() && time.Now().Before(rt.retryAfter) {
				if nextRetryAt.IsZero() || rt.retryAfter.Before(nextRetryAt) {
					nextRetryAt = rt.retryAfter
				}
				continue
			}

			if rt.jobs == nil {
				started := time.Now()
				seq, err := TryMakeJob(ctx, state, rt, rc, wf.receiveOutput(runID, state, rt, &processStatus, wf.opts.Metrics, started, rng))
				if err != nil {
					processStatus = WorseStatus(processStatus, StatusPermanentFail)
					wf.opts.Emitter.Emit(Event{RunID: runID, Kind: "step.error", StepID: rt.Step.ID, Status: StatusPermanentFail, Time: time.Now(), Meta: map[string]any{"error": err.Error()}})
					continue
				}
				if seq == nil {
					// A synchronous Process that reported temporaryFail has
					// already had its retry scheduled by receiveOutput.
					if !rt.Submitted && !rt.retryAfter.IsZero() && (nextRetryAt.IsZero() || rt.retryAfter.Before(nextRetryAt)) {
						nextRetryAt = rt.retryAfter
					}
					continue
				}
				rt.jobs = seq
				madeProgress = true
				wf.opts.Metrics.StepStarted(rt.Step.ID)
				if wf.opts.Provenance != nil {
					wf.opts.Provenance.RecordStepStart(rt.Step.ID, wf.ID)
				}
				wf.opts.Emitter.Emit(Event{RunID: runID, Kind: "step.start", StepID: rt.Step.ID, Time: time.Now()})
			}

			for {
				job, status := rt.jobs.Pull(ctx)
				switch status {
				case PullJob:
					madeProgress = true
					wf.opts.Metrics.ShardDispatched(rt.Step.ID)
					if rc.JobExecutor != nil {
						rc.JobExecutor.Execute(ctx, job)
					}
				case PullStalled:
					goto nextStep
				case PullDone:
					goto nextStep
				}
			}
		nextStep:
		}

		if wf.opts.Store != nil {
			_ = wf.opts.Store.SaveState(runID, state)
		}

		if completed >= len(wf.Steps) {
			break
		}
		if !madeProgress {
			if wf.opts.OnError == OnErrorStop && processStatus != StatusSuccess {
				break
			}
			if !nextRetryAt.IsZero() {
				select {
				case <-time.After(time.Until(nextRetryAt)):
				case <-ctx.Done():
					return nil, StatusPermanentFail, ctx.Err()
				}
				continue
			}
			if processStatus != StatusSuccess {
				break
			}
			// Nothing is ready and nothing has failed: a genuine
			// deadlock, not expressible in a well-formed workflow.
			return nil, StatusPermanentFail, fmt.Errorf("workflow %s: no progress possible, %d/%d steps completed", wf.ID, completed, len(wf.Steps))
		}
	}

	output, _, err = Resolve(state, wf.Outputs, true, wf.Requirements.Has(ReqMultipleInput), true)
	if err != nil {
		return nil, WorseStatus(processStatus, StatusPermanentFail), err
	}
	return output, processStatus, nil
}

// receiveOutput builds the per-step OutputCallback the driver installs
// into TryMakeJob: it folds a completed step's output back into state,
// marks the step's runtime completed, and records the worst status
// seen so far (§4.2.4, §7). A temporaryFail status is retried in place
// (resubmitted after an exponential backoff) when the step declares a
// RetryPolicy with attempts remaining, instead of completing the step.
func (wf *Workflow) receiveOutput(runID string, state StateMap, rt *StepRuntime, processStatus *Status, metrics MetricsSink, started time.Time, rng *rand.Rand) OutputCallback {
	return func(output map[string]any, status Status) {
		if status == StatusTemporaryFail && rt.Step.Retry != nil && rt.attempt+1 < rt.Step.Retry.MaxAttempts {
			metrics.RetryRecorded(rt.Step.ID)
			rt.jobs = nil
			rt.Submitted = false
			rt.retryAfter = time.Now().Add(computeBackoff(rt.attempt, *rt.Step.Retry, rng))
			rt.attempt++
			return
		}

		for _, p := range rt.Step.Outputs {
			v, ok := output[p.ID]
			if !ok || v == nil {
				state[p.ID] = &WorkflowStateItem{Parameter: p, Value: nil, Status: status}
				continue
			}
			state[p.ID] = &WorkflowStateItem{Parameter: p, Value: v, Status: status}
		}
		rt.Completed = true
		*processStatus = WorseStatus(*processStatus, status)
		metrics.StepCompleted(rt.Step.ID, status, time.Since(started))

		if wf.opts.Provenance != nil {
			wf.opts.Provenance.RecordStepEnd(rt.Step.ID, status)
		}
		kind := "step.complete"
		if status == StatusSkipped {
			kind = "step.skip"
		}
		wf.opts.Emitter.Emit(Event{RunID: runID, Kind: kind, StepID: rt.Step.ID, Status: status, Time: time.Now()})
	}
}
