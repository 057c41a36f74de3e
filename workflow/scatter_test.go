package workflow_test

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/cwlgo/wfcore/workflow"
	"github.com/cwlgo/wfcore/workflow/emit"
)

// sumProcess adds its "#main/step/a" and "#main/step/b" shard inputs
// and reports the result under "#main/step/out", synchronously.
type sumProcess struct{}

func (sumProcess) Job(_ context.Context, input map[string]any, out workflow.OutputCallback, _ *workflow.RuntimeContext) workflow.JobSequence {
	a, _ := input["#main/step/a"].(float64)
	b, _ := input["#main/step/b"].(float64)
	out(map[string]any{"#main/step/out": a + b}, workflow.StatusSuccess)
	return doneSeq{}
}

type doneSeq struct{}

func (doneSeq) Pull(context.Context) (workflow.Job, workflow.PullStatus) { return workflow.Job{}, workflow.PullDone }

func newTestStep(t *testing.T, scatter []string, method workflow.ScatterMethod) *workflow.Step {
	t.Helper()
	return &workflow.Step{
		ID:      "#main/step",
		Process: sumProcess{},
		Inputs: []*workflow.Parameter{
			{ID: "#main/step/a", Type: workflow.Prim("int")},
			{ID: "#main/step/b", Type: workflow.Prim("int")},
		},
		Outputs: []*workflow.Parameter{
			{ID: "#main/step/out", Type: workflow.Prim("int")},
		},
		Scatter:       scatter,
		ScatterMethod: method,
		Requirements:  workflow.Requirements{workflow.ReqScatter: true},
	}
}

func buildWorkflowFor(t *testing.T, step *workflow.Step, inputs []*workflow.Parameter, opts ...workflow.Option) *workflow.Workflow {
	t.Helper()
	outputs := []*workflow.Parameter{
		{ID: "#main/result", Sources: []string{step.Outputs[0].ID}},
	}
	wf, err := workflow.NewWorkflow("#main", inputs, outputs, []*workflow.Step{step}, workflow.Requirements{workflow.ReqScatter: true}, opts...)
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	// NewWorkflow wraps the scattered step's output type in arrays; the
	// workflow output takes that rewritten type.
	outputs[0].Type = step.Outputs[0].Type
	return wf
}

func TestScatterDotProduct(t *testing.T) {
	step := newTestStep(t, []string{"a", "b"}, workflow.ScatterDotProduct)
	step.Inputs[0].Sources = []string{"#main/a"}
	step.Inputs[1].Sources = []string{"#main/b"}
	inputs := []*workflow.Parameter{
		{ID: "#main/a", Type: workflow.ArrayOf(workflow.Prim("int"))},
		{ID: "#main/b", Type: workflow.ArrayOf(workflow.Prim("int"))},
	}
	wf := buildWorkflowFor(t, step, inputs)

	out, status, err := wf.Run(context.Background(), "run-dot", map[string]any{
		"a": []any{1.0, 2.0, 3.0}, "b": []any{10.0, 20.0, 30.0},
	}, &workflow.RuntimeContext{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if status != workflow.StatusSuccess {
		t.Fatalf("expected success, got %v", status)
	}
	if !reflect.DeepEqual(out["result"], []any{11.0, 22.0, 33.0}) {
		t.Fatalf("expected [11 22 33], got %v", out["result"])
	}
}

func TestScatterDotProductLengthMismatch(t *testing.T) {
	step := newTestStep(t, []string{"a", "b"}, workflow.ScatterDotProduct)
	step.Inputs[0].Sources = []string{"#main/a"}
	step.Inputs[1].Sources = []string{"#main/b"}
	inputs := []*workflow.Parameter{
		{ID: "#main/a", Type: workflow.ArrayOf(workflow.Prim("int"))},
		{ID: "#main/b", Type: workflow.ArrayOf(workflow.Prim("int"))},
	}
	buf := emit.NewBufferedEmitter()
	wf := buildWorkflowFor(t, step, inputs, workflow.WithEmitter(buf))

	_, status, err := wf.Run(context.Background(), "run-mismatch", map[string]any{
		"a": []any{1.0, 2.0, 3.0}, "b": []any{10.0, 20.0},
	}, &workflow.RuntimeContext{})
	if err != nil {
		t.Fatalf("a step's ScatterLengthMismatch should only escalate processStatus, got Run error %v", err)
	}
	if status != workflow.StatusPermanentFail {
		t.Fatalf("expected permanentFail, got %v", status)
	}
	sawMismatch := false
	for _, e := range buf.History("run-mismatch") {
		msg, _ := e.Meta["error"].(string)
		if e.Kind == "step.error" && strings.Contains(msg, "ScatterLengthMismatch") {
			sawMismatch = true
		}
	}
	if !sawMismatch {
		t.Fatal("expected a step.error event carrying a ScatterLengthMismatch error")
	}
}

func TestScatterNestedCrossProduct(t *testing.T) {
	step := newTestStep(t, []string{"a", "b"}, workflow.ScatterNestedCrossProduct)
	step.Process = mulProcess{}
	step.Inputs[0].Sources = []string{"#main/a"}
	step.Inputs[1].Sources = []string{"#main/b"}
	inputs := []*workflow.Parameter{
		{ID: "#main/a", Type: workflow.ArrayOf(workflow.Prim("int"))},
		{ID: "#main/b", Type: workflow.ArrayOf(workflow.Prim("int"))},
	}
	wf := buildWorkflowFor(t, step, inputs)

	out, status, err := wf.Run(context.Background(), "run-nested", map[string]any{
		"a": []any{1.0, 2.0}, "b": []any{10.0, 20.0, 30.0},
	}, &workflow.RuntimeContext{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if status != workflow.StatusSuccess {
		t.Fatalf("expected success, got %v", status)
	}
	want := []any{
		[]any{10.0, 20.0, 30.0},
		[]any{20.0, 40.0, 60.0},
	}
	if !reflect.DeepEqual(out["result"], want) {
		t.Fatalf("expected %v, got %v", want, out["result"])
	}
}

type mulProcess struct{}

func (mulProcess) Job(_ context.Context, input map[string]any, out workflow.OutputCallback, _ *workflow.RuntimeContext) workflow.JobSequence {
	a, _ := input["#main/step/a"].(float64)
	b, _ := input["#main/step/b"].(float64)
	out(map[string]any{"#main/step/out": a * b}, workflow.StatusSuccess)
	return doneSeq{}
}

func TestScatterFlatCrossProduct(t *testing.T) {
	step := newTestStep(t, []string{"a", "b"}, workflow.ScatterFlatCrossProduct)
	step.Process = mulProcess{}
	step.Inputs[0].Sources = []string{"#main/a"}
	step.Inputs[1].Sources = []string{"#main/b"}
	inputs := []*workflow.Parameter{
		{ID: "#main/a", Type: workflow.ArrayOf(workflow.Prim("int"))},
		{ID: "#main/b", Type: workflow.ArrayOf(workflow.Prim("int"))},
	}
	wf := buildWorkflowFor(t, step, inputs)

	out, status, err := wf.Run(context.Background(), "run-flat", map[string]any{
		"a": []any{1.0, 2.0}, "b": []any{10.0, 20.0},
	}, &workflow.RuntimeContext{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if status != workflow.StatusSuccess {
		t.Fatalf("expected success, got %v", status)
	}
	if !reflect.DeepEqual(out["result"], []any{10.0, 20.0, 20.0, 40.0}) {
		t.Fatalf("expected flat [10 20 20 40], got %v", out["result"])
	}
}

func TestScatterEmitsShardEvents(t *testing.T) {
	step := newTestStep(t, []string{"a", "b"}, workflow.ScatterDotProduct)
	step.Inputs[0].Sources = []string{"#main/a"}
	step.Inputs[1].Sources = []string{"#main/b"}
	inputs := []*workflow.Parameter{
		{ID: "#main/a", Type: workflow.ArrayOf(workflow.Prim("int"))},
		{ID: "#main/b", Type: workflow.ArrayOf(workflow.Prim("int"))},
	}
	outputs := []*workflow.Parameter{
		{ID: "#main/result", Sources: []string{step.Outputs[0].ID}},
	}
	buf := emit.NewBufferedEmitter()
	wf, err := workflow.NewWorkflow("#main", inputs, outputs, []*workflow.Step{step},
		workflow.Requirements{workflow.ReqScatter: true}, workflow.WithEmitter(buf))
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	outputs[0].Type = step.Outputs[0].Type

	_, status, err := wf.Run(context.Background(), "run-shard-events", map[string]any{
		"a": []any{1.0, 2.0, 3.0}, "b": []any{10.0, 20.0, 30.0},
	}, &workflow.RuntimeContext{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if status != workflow.StatusSuccess {
		t.Fatalf("expected success, got %v", status)
	}

	var starts, finishes int
	for _, e := range buf.History("run-shard-events") {
		switch e.Kind {
		case "shard.start":
			starts++
		case "shard.finish":
			finishes++
		}
	}
	if starts != 3 || finishes != 3 {
		t.Fatalf("expected 3 shard.start and 3 shard.finish events, got %d/%d", starts, finishes)
	}
}

func TestScatterEmptyAxisProducesEmptyArray(t *testing.T) {
	step := newTestStep(t, []string{"a", "b"}, workflow.ScatterDotProduct)
	step.Inputs[0].Sources = []string{"#main/a"}
	step.Inputs[1].Sources = []string{"#main/b"}
	inputs := []*workflow.Parameter{
		{ID: "#main/a", Type: workflow.ArrayOf(workflow.Prim("int"))},
		{ID: "#main/b", Type: workflow.ArrayOf(workflow.Prim("int"))},
	}
	wf := buildWorkflowFor(t, step, inputs)

	out, status, err := wf.Run(context.Background(), "run-empty", map[string]any{
		"a": []any{}, "b": []any{},
	}, &workflow.RuntimeContext{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if status != workflow.StatusSuccess {
		t.Fatalf("expected success on empty scatter, got %v", status)
	}
	if !reflect.DeepEqual(out["result"], []any{}) {
		t.Fatalf("expected empty array, got %v", out["result"])
	}
}
