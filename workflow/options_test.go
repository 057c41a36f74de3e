package workflow_test

import (
	"context"
	"testing"

	"github.com/cwlgo/wfcore/workflow"
	"github.com/cwlgo/wfcore/workflow/emit"
	"github.com/cwlgo/wfcore/workflow/store"
)

func TestWithEmitterReceivesStepLifecycleEvents(t *testing.T) {
	buf := emit.NewBufferedEmitter()
	step := &workflow.Step{
		ID:      "#main/s1",
		Process: passthroughProcess{outID: "#main/s1/y"},
		Inputs:  []*workflow.Parameter{{ID: "#main/s1/x", Type: workflow.Prim("int"), Sources: []string{"#main/x"}}},
		Outputs: []*workflow.Parameter{{ID: "#main/s1/y", Type: workflow.Prim("int")}},
	}
	wf, err := workflow.NewWorkflow("#main",
		[]*workflow.Parameter{{ID: "#main/x", Type: workflow.Prim("int")}},
		[]*workflow.Parameter{{ID: "#main/y", Type: workflow.Prim("int"), Sources: []string{"#main/s1/y"}}},
		[]*workflow.Step{step}, nil, workflow.WithEmitter(buf))
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}

	_, status, err := wf.Run(context.Background(), "run-emit", map[string]any{"x": 1.0}, &workflow.RuntimeContext{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if status != workflow.StatusSuccess {
		t.Fatalf("expected success, got %v", status)
	}

	hist := buf.History("run-emit")
	if len(hist) == 0 {
		t.Fatal("expected at least one emitted event")
	}
	want := map[string]bool{
		"workflow.start":  false,
		"workflow.finish": false,
		"step.start":      false,
		"step.complete":   false,
	}
	for _, e := range hist {
		if _, ok := want[e.Kind]; ok {
			want[e.Kind] = true
		}
	}
	for kind, saw := range want {
		if !saw {
			t.Fatalf("expected a %s event, got %v", kind, hist)
		}
	}
}

// recordingProvenance is a test double verifying the driver calls
// RecordStepStart/RecordStepEnd around step dispatch and completion.
type recordingProvenance struct {
	starts []string
	ends   []string
}

func (p *recordingProvenance) RecordStepStart(stepID string, parent string) {
	p.starts = append(p.starts, stepID)
}

func (p *recordingProvenance) RecordStepEnd(stepID string, status workflow.Status) {
	p.ends = append(p.ends, stepID)
}

func TestWithProvenanceRecordsStepLifecycle(t *testing.T) {
	prov := &recordingProvenance{}
	step := &workflow.Step{
		ID:      "#main/s1",
		Process: passthroughProcess{outID: "#main/s1/y"},
		Inputs:  []*workflow.Parameter{{ID: "#main/s1/x", Type: workflow.Prim("int"), Sources: []string{"#main/x"}}},
		Outputs: []*workflow.Parameter{{ID: "#main/s1/y", Type: workflow.Prim("int")}},
	}
	wf, err := workflow.NewWorkflow("#main",
		[]*workflow.Parameter{{ID: "#main/x", Type: workflow.Prim("int")}},
		[]*workflow.Parameter{{ID: "#main/y", Type: workflow.Prim("int"), Sources: []string{"#main/s1/y"}}},
		[]*workflow.Step{step}, nil, workflow.WithProvenance(prov))
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}

	_, status, err := wf.Run(context.Background(), "run-provenance", map[string]any{"x": 1.0}, &workflow.RuntimeContext{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if status != workflow.StatusSuccess {
		t.Fatalf("expected success, got %v", status)
	}
	if len(prov.starts) != 1 || prov.starts[0] != "#main/s1" {
		t.Fatalf("expected RecordStepStart(#main/s1) once, got %v", prov.starts)
	}
	if len(prov.ends) != 1 || prov.ends[0] != "#main/s1" {
		t.Fatalf("expected RecordStepEnd(#main/s1) once, got %v", prov.ends)
	}
}

func TestWithStorePersistsStateAcrossRuns(t *testing.T) {
	mem := store.NewMemoryStore()
	step := &workflow.Step{
		ID:      "#main/s1",
		Process: passthroughProcess{outID: "#main/s1/y"},
		Inputs:  []*workflow.Parameter{{ID: "#main/s1/x", Type: workflow.Prim("int"), Sources: []string{"#main/x"}}},
		Outputs: []*workflow.Parameter{{ID: "#main/s1/y", Type: workflow.Prim("int")}},
	}
	wf, err := workflow.NewWorkflow("#main",
		[]*workflow.Parameter{{ID: "#main/x", Type: workflow.Prim("int")}},
		[]*workflow.Parameter{{ID: "#main/y", Type: workflow.Prim("int"), Sources: []string{"#main/s1/y"}}},
		[]*workflow.Step{step}, nil, workflow.WithStore(mem))
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}

	out, _, err := wf.Run(context.Background(), "run-store", map[string]any{"x": 7.0}, &workflow.RuntimeContext{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out["y"] != 7.0 {
		t.Fatalf("expected y=7, got %v", out["y"])
	}

	if _, ok, err := mem.LoadState("run-store"); err != nil || !ok {
		t.Fatalf("expected state to be persisted after Run, ok=%v err=%v", ok, err)
	}
}

// foreverPullJobProcess dispatches one Job per round forever and never
// invokes its OutputCallback, simulating a step whose work is always
// "in flight": its sequence alternates a fresh job with a stall so the
// driver's per-step drain loop yields back to the round loop instead of
// spinning (§5 suspension points), while every round still reports real
// progress. The only thing that can end the run is WithMaxRounds.
type foreverPullJobProcess struct{}

func (foreverPullJobProcess) Job(context.Context, map[string]any, workflow.OutputCallback, *workflow.RuntimeContext) workflow.JobSequence {
	return &foreverPullJobSeq{}
}

type foreverPullJobSeq struct{ ready bool }

func (s *foreverPullJobSeq) Pull(context.Context) (workflow.Job, workflow.PullStatus) {
	s.ready = !s.ready
	if s.ready {
		return workflow.Job{ID: "job"}, workflow.PullJob
	}
	return workflow.Job{}, workflow.PullStalled
}

func TestWithMaxRoundsBoundsAnEndlessRun(t *testing.T) {
	step := &workflow.Step{
		ID:      "#main/s1",
		Process: foreverPullJobProcess{},
		Inputs:  []*workflow.Parameter{{ID: "#main/s1/x", Type: workflow.Prim("int"), Sources: []string{"#main/x"}}},
		Outputs: []*workflow.Parameter{{ID: "#main/s1/y", Type: workflow.Prim("int")}},
	}
	wf, err := workflow.NewWorkflow("#main",
		[]*workflow.Parameter{{ID: "#main/x", Type: workflow.Prim("int")}},
		[]*workflow.Parameter{{ID: "#main/y", Type: workflow.Prim("int"), Sources: []string{"#main/s1/y"}}},
		[]*workflow.Step{step}, nil, workflow.WithMaxRounds(3))
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}

	_, status, err := wf.Run(context.Background(), "run-maxrounds", map[string]any{"x": 1.0}, &workflow.RuntimeContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != workflow.StatusPermanentFail {
		t.Fatalf("expected WithMaxRounds to cut off the endless run as permanentFail, got %v", status)
	}
}
