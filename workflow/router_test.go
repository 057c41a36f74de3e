package workflow_test

import (
	"reflect"
	"testing"

	"github.com/cwlgo/wfcore/workflow"
)

func itemOf(p *workflow.Parameter, v any, status workflow.Status) *workflow.WorkflowStateItem {
	return &workflow.WorkflowStateItem{Parameter: p, Value: v, Status: status}
}

func TestResolveUnknownSource(t *testing.T) {
	state := workflow.StateMap{}
	sink := &workflow.Parameter{ID: "#main/sink", Type: workflow.Prim("int"), Sources: []string{"#main/missing"}}

	_, _, err := workflow.Resolve(state, []*workflow.Parameter{sink}, false, false, false)
	if err == nil {
		t.Fatal("expected an UnknownSource error")
	}
	we, ok := err.(*workflow.WorkflowError)
	if !ok || we.Code != workflow.CodeUnknownSource {
		t.Fatalf("expected CodeUnknownSource, got %v", err)
	}
}

func TestResolveNotReadyWhenSourceUnset(t *testing.T) {
	state := workflow.StateMap{"#main/src": nil}
	sink := &workflow.Parameter{ID: "#main/sink", Type: workflow.Prim("int"), Sources: []string{"#main/src"}}

	_, ready, err := workflow.Resolve(state, []*workflow.Parameter{sink}, false, false, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ready {
		t.Fatal("expected not-ready when source is unset and allowPartial is false")
	}
}

func TestResolveLinearPassthrough(t *testing.T) {
	srcParam := &workflow.Parameter{ID: "#main/x", Type: workflow.Prim("int")}
	state := workflow.StateMap{"#main/x": itemOf(srcParam, 7.0, workflow.StatusSuccess)}
	sink := &workflow.Parameter{ID: "#main/step1/in", Type: workflow.Prim("int"), Sources: []string{"#main/x"}}

	out, ready, err := workflow.Resolve(state, []*workflow.Parameter{sink}, false, false, false)
	if err != nil || !ready {
		t.Fatalf("resolve failed: ready=%v err=%v", ready, err)
	}
	if out["#main/step1/in"] != 7.0 {
		t.Fatalf("expected 7.0, got %v", out["#main/step1/in"])
	}
}

func TestResolveMultipleSourcesRequiresRequirement(t *testing.T) {
	a := &workflow.Parameter{ID: "#main/a", Type: workflow.Prim("int")}
	b := &workflow.Parameter{ID: "#main/b", Type: workflow.Prim("int")}
	state := workflow.StateMap{
		"#main/a": itemOf(a, 1.0, workflow.StatusSuccess),
		"#main/b": itemOf(b, 2.0, workflow.StatusSuccess),
	}
	sink := &workflow.Parameter{
		ID: "#main/sink", Type: workflow.Prim("int"),
		Sources: []string{"#main/a", "#main/b"}, LinkMerge: workflow.MergeNested,
	}

	_, _, err := workflow.Resolve(state, []*workflow.Parameter{sink}, false, false, false)
	we, ok := err.(*workflow.WorkflowError)
	if !ok || we.Code != workflow.CodeMultipleInputsUnsupported {
		t.Fatalf("expected CodeMultipleInputsUnsupported, got %v", err)
	}

	out, ready, err := workflow.Resolve(state, []*workflow.Parameter{sink}, false, true, false)
	if err != nil || !ready {
		t.Fatalf("resolve with multiple-input support failed: ready=%v err=%v", ready, err)
	}
	if !reflect.DeepEqual(out["#main/sink"], []any{1.0, 2.0}) {
		t.Fatalf("expected merged [1.0, 2.0], got %v", out["#main/sink"])
	}
}

func TestResolveLinkMergeFlattened(t *testing.T) {
	a := &workflow.Parameter{ID: "#main/a", Type: workflow.ArrayOf(workflow.Prim("int"))}
	b := &workflow.Parameter{ID: "#main/b", Type: workflow.Prim("int")}
	state := workflow.StateMap{
		"#main/a": itemOf(a, []any{1.0, 2.0}, workflow.StatusSuccess),
		"#main/b": itemOf(b, 3.0, workflow.StatusSuccess),
	}
	sink := &workflow.Parameter{
		ID: "#main/sink", Type: workflow.ArrayOf(workflow.Prim("int")),
		Sources: []string{"#main/a", "#main/b"}, LinkMerge: workflow.MergeFlattened,
	}

	out, ready, err := workflow.Resolve(state, []*workflow.Parameter{sink}, false, true, false)
	if err != nil || !ready {
		t.Fatalf("resolve failed: ready=%v err=%v", ready, err)
	}
	if !reflect.DeepEqual(out["#main/sink"], []any{1.0, 2.0, 3.0}) {
		t.Fatalf("expected flattened [1.0, 2.0, 3.0], got %v", out["#main/sink"])
	}
}

func TestResolvePickValueFirstNonNull(t *testing.T) {
	x1 := &workflow.Parameter{ID: "#main/x1", Type: workflow.Prim("int")}
	x2 := &workflow.Parameter{ID: "#main/x2", Type: workflow.Prim("int")}
	state := workflow.StateMap{
		"#main/x1": itemOf(x1, nil, workflow.StatusSkipped),
		"#main/x2": itemOf(x2, 42.0, workflow.StatusSuccess),
	}
	sink := &workflow.Parameter{
		ID: "#main/sink", Type: workflow.Prim("int"),
		Sources: []string{"#main/x1", "#main/x2"}, LinkMerge: workflow.MergeNested,
		PickValue: workflow.PickFirstNonNull,
	}

	out, ready, err := workflow.Resolve(state, []*workflow.Parameter{sink}, false, true, false)
	if err != nil || !ready {
		t.Fatalf("resolve failed: ready=%v err=%v", ready, err)
	}
	if out["#main/sink"] != 42.0 {
		t.Fatalf("expected 42.0, got %v", out["#main/sink"])
	}
}

func TestResolvePickValueAllNull(t *testing.T) {
	x1 := &workflow.Parameter{ID: "#main/x1", Type: workflow.Prim("int")}
	state := workflow.StateMap{"#main/x1": itemOf(x1, nil, workflow.StatusSkipped)}
	sink := &workflow.Parameter{
		ID: "#main/sink", Type: workflow.Prim("int"),
		Sources: []string{"#main/x1"}, LinkMerge: workflow.MergeNested, PickValue: workflow.PickFirstNonNull,
	}

	_, _, err := workflow.Resolve(state, []*workflow.Parameter{sink}, false, false, false)
	we, ok := err.(*workflow.WorkflowError)
	if !ok || we.Code != workflow.CodeAllNull {
		t.Fatalf("expected CodeAllNull, got %v", err)
	}
}

func TestResolvePickValueOnlyNonNullMultiple(t *testing.T) {
	x1 := &workflow.Parameter{ID: "#main/x1", Type: workflow.Prim("int")}
	x2 := &workflow.Parameter{ID: "#main/x2", Type: workflow.Prim("int")}
	state := workflow.StateMap{
		"#main/x1": itemOf(x1, 1.0, workflow.StatusSuccess),
		"#main/x2": itemOf(x2, 2.0, workflow.StatusSuccess),
	}
	sink := &workflow.Parameter{
		ID: "#main/sink", Type: workflow.Prim("int"),
		Sources: []string{"#main/x1", "#main/x2"}, LinkMerge: workflow.MergeNested,
		PickValue: workflow.PickOnlyNonNull,
	}

	_, _, err := workflow.Resolve(state, []*workflow.Parameter{sink}, false, true, false)
	we, ok := err.(*workflow.WorkflowError)
	if !ok || we.Code != workflow.CodeMultipleNonNull {
		t.Fatalf("expected CodeMultipleNonNull, got %v", err)
	}
}

func TestResolveTypeMismatch(t *testing.T) {
	src := &workflow.Parameter{ID: "#main/x", Type: workflow.Prim("string")}
	state := workflow.StateMap{"#main/x": itemOf(src, "hi", workflow.StatusSuccess)}
	sink := &workflow.Parameter{ID: "#main/sink", Type: workflow.Prim("int"), Sources: []string{"#main/x"}}

	_, _, err := workflow.Resolve(state, []*workflow.Parameter{sink}, false, false, false)
	we, ok := err.(*workflow.WorkflowError)
	if !ok || we.Code != workflow.CodeTypeMismatch {
		t.Fatalf("expected CodeTypeMismatch, got %v", err)
	}
}

func TestResolveUnionSinkAndSource(t *testing.T) {
	src := &workflow.Parameter{ID: "#main/x", Type: workflow.Union(workflow.Prim("int"), workflow.Prim("string"))}
	state := workflow.StateMap{"#main/x": itemOf(src, "hi", workflow.StatusSuccess)}
	sink := &workflow.Parameter{
		ID: "#main/sink", Type: workflow.Union(workflow.Prim("string"), workflow.Prim("null")),
		Sources: []string{"#main/x"},
	}

	out, ready, err := workflow.Resolve(state, []*workflow.Parameter{sink}, false, false, false)
	if err != nil || !ready {
		t.Fatalf("resolve failed: ready=%v err=%v", ready, err)
	}
	if out["#main/sink"] != "hi" {
		t.Fatalf("expected %q, got %v", "hi", out["#main/sink"])
	}
}

func TestResolveDefault(t *testing.T) {
	sink := &workflow.Parameter{ID: "#main/sink", Type: workflow.Prim("int"), HasDefault: true, Default: 99.0}
	out, ready, err := workflow.Resolve(workflow.StateMap{}, []*workflow.Parameter{sink}, false, false, false)
	if err != nil || !ready {
		t.Fatalf("resolve failed: ready=%v err=%v", ready, err)
	}
	if out["#main/sink"] != 99.0 {
		t.Fatalf("expected default 99.0, got %v", out["#main/sink"])
	}
}

func TestResolveMissingValue(t *testing.T) {
	sink := &workflow.Parameter{ID: "#main/sink", Type: workflow.Prim("int")}
	_, _, err := workflow.Resolve(workflow.StateMap{}, []*workflow.Parameter{sink}, false, false, false)
	we, ok := err.(*workflow.WorkflowError)
	if !ok || we.Code != workflow.CodeMissingValue {
		t.Fatalf("expected CodeMissingValue, got %v", err)
	}
}

func TestResolveNotConnectedBindsNull(t *testing.T) {
	sink := &workflow.Parameter{ID: "#main/sink", Type: workflow.Any(), NotConnected: true}
	out, ready, err := workflow.Resolve(workflow.StateMap{}, []*workflow.Parameter{sink}, false, false, false)
	if err != nil || !ready {
		t.Fatalf("resolve failed: ready=%v err=%v", ready, err)
	}
	if out["#main/sink"] != nil {
		t.Fatalf("expected nil, got %v", out["#main/sink"])
	}
}

func TestResolveIsPureAndDeterministic(t *testing.T) {
	src := &workflow.Parameter{ID: "#main/x", Type: workflow.ArrayOf(workflow.Prim("int"))}
	state := workflow.StateMap{"#main/x": itemOf(src, []any{1.0, 2.0}, workflow.StatusSuccess)}
	sink := &workflow.Parameter{ID: "#main/sink", Type: workflow.ArrayOf(workflow.Prim("int")), Sources: []string{"#main/x"}}

	out1, _, _ := workflow.Resolve(state, []*workflow.Parameter{sink}, false, false, false)
	out1["#main/sink"].([]any)[0] = 999.0

	out2, _, _ := workflow.Resolve(state, []*workflow.Parameter{sink}, false, false, false)
	if !reflect.DeepEqual(out2["#main/sink"], []any{1.0, 2.0}) {
		t.Fatalf("Resolve mutated shared state: %v", state["#main/x"].Value)
	}
}

func TestCanAssignAnyMatchesEverything(t *testing.T) {
	if !workflow.CanAssign(workflow.Any(), workflow.Prim("string")) {
		t.Fatal("Any sink should accept anything")
	}
	if !workflow.CanAssign(workflow.Prim("string"), workflow.Any()) {
		t.Fatal("Any source should satisfy anything")
	}
}

func TestCanAssignRecordRequiresAllFields(t *testing.T) {
	sink := workflow.ParamType{Kind: workflow.KindRecord, Fields: map[string]workflow.ParamType{
		"a": workflow.Prim("int"), "b": workflow.Prim("string"),
	}}
	srcOK := workflow.ParamType{Kind: workflow.KindRecord, Fields: map[string]workflow.ParamType{
		"a": workflow.Prim("int"), "b": workflow.Prim("string"), "c": workflow.Prim("int"),
	}}
	srcMissing := workflow.ParamType{Kind: workflow.KindRecord, Fields: map[string]workflow.ParamType{
		"a": workflow.Prim("int"),
	}}
	if !workflow.CanAssign(sink, srcOK) {
		t.Fatal("expected record with a superset of fields to be assignable")
	}
	if workflow.CanAssign(sink, srcMissing) {
		t.Fatal("expected record missing a required field to be rejected")
	}
}

func TestWorseStatusPermanentFailIsSticky(t *testing.T) {
	if workflow.WorseStatus(workflow.StatusPermanentFail, workflow.StatusSuccess) != workflow.StatusPermanentFail {
		t.Fatal("permanentFail must be sticky")
	}
	if workflow.WorseStatus(workflow.StatusSuccess, workflow.StatusSkipped) != workflow.StatusSuccess {
		t.Fatal("skipped must not escalate processStatus away from success")
	}
	if workflow.WorseStatus(workflow.StatusSkipped, workflow.StatusTemporaryFail) != workflow.StatusTemporaryFail {
		t.Fatal("temporaryFail is worse than skipped")
	}
}
