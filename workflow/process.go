package workflow

import (
	"context"
	"time"

	"github.com/cwlgo/wfcore/workflow/cost"
)

// RequirementKind names a WDL feature requirement the core consults
// before allowing the corresponding feature to be used (§6).
type RequirementKind string

const (
	ReqMultipleInput       RequirementKind = "MultipleInputFeatureRequirement"
	ReqStepInputExpression RequirementKind = "StepInputExpressionRequirement"
	ReqSubworkflow         RequirementKind = "SubworkflowFeatureRequirement"
	ReqScatter             RequirementKind = "ScatterFeatureRequirement"
)

// Requirements is the set of declared-and-enabled feature requirements
// for a workflow (or a step's effective requirement set, inherited from
// its parent).
type Requirements map[RequirementKind]bool

// Has reports whether a requirement is declared.
func (r Requirements) Has(k RequirementKind) bool { return r[k] }

// Evaluator is the expression-evaluator external collaborator (§6):
// evaluating the embedded expression sub-language itself is a
// non-goal, so the core only depends on this interface.
type Evaluator interface {
	Eval(ctx context.Context, expr string, inputs map[string]any, requirements Requirements, evalContext any, opts EvalOptions) (any, error)
}

// EvalOptions carries the evaluator knobs the core plumbs through from
// RuntimeContext (§6: "Opts include debug, console flag, timeout").
type EvalOptions struct {
	Debug     bool
	JSConsole bool
	Timeout   time.Duration
}

// FSAccess is the file-system external collaborator (§6), used only to
// pre-load loadContents and expand directory listings prior to
// expression evaluation; the core never dereferences a File/Directory
// value itself.
type FSAccess interface {
	Open(ctx context.Context, location string) (ReadCloser, error)
	Listing(ctx context.Context, dir string) ([]any, error)
}

// ReadCloser avoids importing io for a one-method dependency surface;
// any io.ReadCloser satisfies it.
type ReadCloser interface {
	Read(p []byte) (n int, err error)
	Close() error
}

// RuntimeContext carries per-run configuration passed down to Process.Job
// and the expression/file-system collaborators, mirroring cwltool's
// RuntimeContext.
type RuntimeContext struct {
	OnError     OnErrorPolicy
	FSAccess    FSAccess
	Evaluator   Evaluator
	JobExecutor JobExecutor
	ToolLoader  ToolLoader
	EvalTimeout time.Duration
	Debug       bool
	JSConsole   bool

	// Name and PartOf are human-readable identifiers for log/trace
	// correlation, set by the driver/StepRunner as it descends into
	// nested steps.
	Name   string
	PartOf string

	// RunID and Emitter are installed by Workflow.Run before dispatch so
	// collaborators below the driver (the ScatterEngine in particular)
	// can emit shard-level events without threading a separate
	// parameter through every call.
	RunID   string
	Emitter Emitter

	// CostTracker, if set, receives token usage/cost records from any
	// Operation step backed by an llm.ChatModel. Nil disables tracking.
	CostTracker *cost.Tracker

	// postScatterEval is installed internally by the StepRunner before
	// delegating to the ScatterEngine; it is not part of the public
	// collaborator contract.
	postScatterEval func(ctx context.Context, io map[string]any) (map[string]any, error)
}

// Copy returns a shallow copy of rc, mirroring cwltool's
// RuntimeContext.copy() used before mutating part_of/name per step.
func (rc *RuntimeContext) Copy() *RuntimeContext {
	cp := *rc
	return &cp
}

// OnErrorPolicy selects cancellation behavior on first failure (§5).
type OnErrorPolicy string

const (
	// OnErrorStop halts dispatch of further work at the next boundary
	// once processStatus becomes non-success. Default.
	OnErrorStop OnErrorPolicy = "stop"
	// OnErrorContinue runs every step/shard to completion regardless of
	// earlier failures; final status is the worst observed.
	OnErrorContinue OnErrorPolicy = "continue"
)

// PullStatus is the three-way result of pulling the next job from a lazy
// JobSequence: a fresh Job, a stall (try again next round), or Done
// (sequence exhausted, Python's generator StopIteration).
type PullStatus int

const (
	PullJob PullStatus = iota
	PullStalled
	PullDone
)

// Job is an opaque schedulable unit of work produced by a Process. The
// core never inspects its contents; it only forwards Jobs to the outer
// caller (§5).
type Job struct {
	ID    string
	Input map[string]any
}

// JobSequence is a lazy, possibly-exhausted producer of pending jobs —
// the Go analogue of cwltool's generator-based job iterator (§9 design
// note).
type JobSequence interface {
	// Pull advances the sequence by one step. Implementations must not
	// block past a single suspension point (§5): if no job can be
	// produced yet, return PullStalled rather than waiting.
	Pull(ctx context.Context) (job Job, status PullStatus)
}

// OutputCallback is invoked by a Process (or the core's own scatter/step
// machinery) exactly once per completed job shard, carrying the produced
// output mapping and the completion status.
type OutputCallback func(output map[string]any, status Status)

// JobExecutor runs a Job pulled from a JobSequence. The core never
// interprets a Job's contents (§9 design note); it only pulls jobs out
// of a step's sequence and hands them to this collaborator. A Process
// implementation is responsible for invoking its OutputCallback itself,
// typically from within the code the JobExecutor runs.
type JobExecutor interface {
	Execute(ctx context.Context, job Job)
}

// Process is the external collaborator every Step wraps: a
// CommandLineTool, ExpressionTool, sub-workflow, or Operation (§6).
type Process interface {
	Job(ctx context.Context, input map[string]any, out OutputCallback, rc *RuntimeContext) JobSequence
}

// ToolLoader resolves the `run` field of a step when it is a reference
// rather than an inline document (§6).
type ToolLoader interface {
	LoadTool(ctx context.Context, reference string) (Process, error)
}

// Provenance is an optional collaborator; every step records start/end
// and parent linkage when supplied. All calls are nil-checked by the
// driver — this core ships no implementation, as recording provenance
// metadata is an explicit non-goal.
type Provenance interface {
	RecordStepStart(stepID string, parent string)
	RecordStepEnd(stepID string, status Status)
}

// StaticChecker performs compile-time verification of link compatibility
// between workflow/step inputs and outputs (§6), invoked once at
// NewWorkflow construction.
type StaticChecker func(wfInputs, wfOutputs, stepInputs, stepOutputs []*Parameter, paramToStep map[string]string) error
