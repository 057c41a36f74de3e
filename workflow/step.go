package workflow

import (
	"fmt"
	"time"
)

// ScatterMethod selects the combinator the ScatterEngine uses to expand
// a step's scatter axes (§4.3).
type ScatterMethod string

const (
	ScatterDotProduct         ScatterMethod = "dotproduct"
	ScatterNestedCrossProduct ScatterMethod = "nested_crossproduct"
	ScatterFlatCrossProduct   ScatterMethod = "flat_crossproduct"
)

// Step is the immutable descriptor of one workflow graph node (§3).
type Step struct {
	ID      string
	Process Process
	Inputs  []*Parameter
	Outputs []*Parameter

	// ProcessRef is a `run` reference (a tool/workflow id or path) to
	// resolve into Process via the RuntimeContext's ToolLoader on first
	// dispatch, for a step whose embedded process is a reference rather
	// than an inline document (§6 load_tool). Leave unset (and set
	// Process directly) when the step already wraps a concrete Process.
	ProcessRef string

	// Scatter lists the input parameter ids (by short name) to fan out
	// over. Empty means no scatter.
	Scatter       []string
	ScatterMethod ScatterMethod
	// When is an optional boolean-valued conditional expression gating
	// execution; empty means unconditional.
	When string

	// Requirements is this step's effective requirement set (workflow
	// requirements plus any step-local overrides).
	Requirements Requirements

	// Retry configures automatic resubmission when a completed job's
	// status is StatusTemporaryFail. Nil means no retries.
	Retry *RetryPolicy

	// Timeout bounds the wall-clock time a single job dispatch (one
	// non-scattered Job call, or one shard) is allowed to run. Zero
	// means unbounded.
	Timeout time.Duration

	name string
}

// valueFromMap returns the valueFrom expression keyed by each input's
// full id, for the inputs that declare one.
func (s *Step) valueFromMap() map[string]string {
	out := make(map[string]string)
	for _, p := range s.Inputs {
		if p.ValueFrom != "" {
			out[p.ID] = p.ValueFrom
		}
	}
	return out
}

// loadContentsSet returns the set of full input ids that request
// loadContents.
func (s *Step) loadContentsSet() map[string]bool {
	out := make(map[string]bool)
	for _, p := range s.Inputs {
		if p.LoadContents {
			out[p.ID] = true
		}
	}
	return out
}

// Name returns a human-readable step name for log/trace correlation,
// grounded in cwltool's uniquename(shortname(id)). De-duplication
// across sibling steps sharing a base name happens once, at
// NewWorkflow construction time, via setName; a Step that was never
// registered with a Workflow falls back to its bare (non-deduplicated)
// name.
func (s *Step) Name() string {
	if s.name == "" {
		s.name = fmt.Sprintf("step %s", ShortName(s.ID))
	}
	return s.name
}

// setName installs the de-duplicated name NewWorkflow computed via its
// nameCounters.
func (s *Step) setName(name string) { s.name = name }

// applyScatterTypeRewrite wraps each scattered input's declared type in
// an array, and wraps each output's type in an array nested once per
// cross-product level (or once for flat/dot-product), per §3's "Step
// scatter rewrites the step's declared input/output types" and
// cwltool's WorkflowStep.__init__ scatter handling. Call this once at
// construction time, before the step is ever resolved against state.
func (s *Step) applyScatterTypeRewrite() error {
	if len(s.Scatter) == 0 {
		return nil
	}
	if !s.Requirements.Has(ReqScatter) {
		return newErr(CodeFeatureNotDeclared, s.ID, nil,
			"step declares scatter but ScatterFeatureRequirement is not in effect")
	}
	if s.ScatterMethod == "" && len(s.Scatter) != 1 {
		return newErr(CodeScatterMethodRequired, s.ID, nil,
			"must specify scatterMethod when scattering over multiple inputs")
	}

	byShort := make(map[string]*Parameter, len(s.Inputs))
	for _, p := range s.Inputs {
		byShort[ShortName(p.ID)] = p
	}
	for _, key := range s.Scatter {
		p, ok := byShort[key]
		if !ok {
			return newErr(CodeScatterKeyUnknown, s.ID, nil,
				"scatter parameter %q does not correspond to an input parameter of this step", key)
		}
		p.Type = ArrayOf(p.Type)
	}

	nesting := 1
	if s.ScatterMethod == ScatterNestedCrossProduct {
		nesting = len(s.Scatter)
	}
	for i := 0; i < nesting; i++ {
		for _, out := range s.Outputs {
			out.Type = ArrayOf(out.Type)
		}
	}
	return nil
}

// StepRuntime is the mutable per-run state of a Step, owned exclusively
// by the WorkflowDriver (§3 Lifecycle).
type StepRuntime struct {
	Step      *Step
	Submitted bool
	Completed bool

	jobs       JobSequence
	attempt    int
	retryAfter time.Time
}
