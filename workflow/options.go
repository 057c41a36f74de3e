package workflow

import (
	"context"
	"time"
)

// Event is a single observability record emitted over the course of a
// run: the workflow starting or finishing, a step starting, completing,
// being skipped or failing to dispatch, or a scatter shard starting or
// finishing, grounded in the teacher's graph/emit.Event shape.
type Event struct {
	RunID  string
	StepID string
	Kind   string
	Status Status
	Time   time.Time
	Meta   map[string]any
}

// Emitter is the observability external collaborator. Implementations
// (text/JSON logging, OpenTelemetry spans, buffering, or a no-op) live
// in workflow/emit; the core only depends on this interface, grounded
// in the teacher's graph/emit.Emitter.
type Emitter interface {
	Emit(e Event)
	EmitBatch(ctx context.Context, events []Event) error
	Flush(ctx context.Context) error
}

// MetricsSink is the metrics external collaborator, grounded in the
// teacher's graph/metrics.go promauto collectors. Implementations live
// in workflow/metrics.
type MetricsSink interface {
	StepStarted(stepID string)
	StepCompleted(stepID string, status Status, elapsed time.Duration)
	ShardDispatched(stepID string)
	RetryRecorded(stepID string)
}

// Store is the checkpoint/snapshot external collaborator: persisting
// and restoring a run's StateMap between process restarts. Grounded in
// the teacher's graph/store.Store, adapted from per-node-type
// checkpoints to whole-StateMap snapshots since this core has a single
// dynamic state shape rather than one static state type per workflow.
type Store interface {
	SaveState(runID string, state StateMap) error
	LoadState(runID string) (StateMap, bool, error)
}

// Options configures a Workflow, following the teacher's functional
// options idiom (graph/options.go).
type Options struct {
	OnError     OnErrorPolicy
	Seed        *int64
	Emitter     Emitter
	Metrics     MetricsSink
	Store       Store
	StaticCheck StaticChecker
	Provenance  Provenance
	MaxRounds   int
}

func defaultOptions() Options {
	return Options{
		OnError:   OnErrorStop,
		Emitter:   noopEmitter{},
		Metrics:   noopMetrics{},
		MaxRounds: 0,
	}
}

// Option mutates an Options during NewWorkflow construction.
type Option func(*Options)

// WithOnError selects the failure-propagation policy (§5). Default
// OnErrorStop.
func WithOnError(p OnErrorPolicy) Option {
	return func(o *Options) { o.OnError = p }
}

// WithSeed fixes the step-iteration-order RNG seed directly, overriding
// the default of deriving it from the run id.
func WithSeed(seed int64) Option {
	return func(o *Options) { o.Seed = &seed }
}

// WithEmitter installs the observability collaborator. Default is a
// no-op.
func WithEmitter(e Emitter) Option {
	return func(o *Options) {
		if e != nil {
			o.Emitter = e
		}
	}
}

// WithMetrics installs the metrics collaborator. Default is a no-op.
func WithMetrics(m MetricsSink) Option {
	return func(o *Options) {
		if m != nil {
			o.Metrics = m
		}
	}
}

// WithStore installs the checkpoint/snapshot collaborator. Unset means
// no persistence: a crashed run cannot be resumed.
func WithStore(s Store) Option {
	return func(o *Options) { o.Store = s }
}

// WithStaticCheck installs the construction-time link-compatibility
// checker (§6 StaticChecker).
func WithStaticCheck(f StaticChecker) Option {
	return func(o *Options) { o.StaticCheck = f }
}

// WithProvenance installs the optional provenance collaborator (§6):
// the driver calls it, nil-checked, around step dispatch and
// receive-output. Unset means no provenance recording, since recording
// provenance metadata itself is an explicit non-goal of this core.
func WithProvenance(p Provenance) Option {
	return func(o *Options) { o.Provenance = p }
}

// WithMaxRounds bounds the main loop's round count as a safety valve
// against a misbehaving Process that never reports stall or done. Zero
// (the default) means unlimited.
func WithMaxRounds(n int) Option {
	return func(o *Options) { o.MaxRounds = n }
}

type noopEmitter struct{}

func (noopEmitter) Emit(Event)                                    {}
func (noopEmitter) EmitBatch(context.Context, []Event) error       { return nil }
func (noopEmitter) Flush(context.Context) error                    { return nil }

type noopMetrics struct{}

func (noopMetrics) StepStarted(string)                        {}
func (noopMetrics) StepCompleted(string, Status, time.Duration) {}
func (noopMetrics) ShardDispatched(string)                    {}
func (noopMetrics) RetryRecorded(string)                      {}
