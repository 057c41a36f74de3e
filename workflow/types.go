// Package workflow implements the execution core of a declarative
// workflow engine: a data-flow scheduler that drives a directed acyclic
// graph of steps to completion, resolving per-step inputs from upstream
// state, handling conditional execution and scatter fan-out, and
// collecting per-step outputs back into workflow state.
package workflow

// TypeKind tags the shape of a ParamType.
type TypeKind int

const (
	// KindPrimitive is a scalar or opaque named type ("string", "int",
	// "File", "Directory", "null", ...).
	KindPrimitive TypeKind = iota
	// KindArray wraps a single element type.
	KindArray
	// KindRecord is a named-field aggregate.
	KindRecord
	// KindUnion is a list of alternative arms.
	KindUnion
	// KindAny matches anything (the WDL "Any" type).
	KindAny
)

// ParamType is a tagged variant over the handful of type shapes the WDL's
// type system produces: primitives, arrays, records, and unions of those.
type ParamType struct {
	Kind      TypeKind
	Primitive string
	Array     *ParamType
	Fields    map[string]ParamType
	Union     []ParamType
}

// Any is the type that is assignable to and from everything.
func Any() ParamType { return ParamType{Kind: KindAny} }

// Prim builds a primitive ParamType.
func Prim(name string) ParamType { return ParamType{Kind: KindPrimitive, Primitive: name} }

// ArrayOf builds an array ParamType with the given element type.
func ArrayOf(elem ParamType) ParamType { return ParamType{Kind: KindArray, Array: &elem} }

// Union builds a union ParamType over the given arms.
func Union(arms ...ParamType) ParamType { return ParamType{Kind: KindUnion, Union: arms} }

// CanAssign reports whether a value of type src may be bound to a sink of
// type sink, by structural recursion over the tagged type variant (§9
// design note: "Type compatibility (canAssign) becomes structural
// recursion"). A union sink matches if any arm matches; a union source
// matches if any arm of the source can be narrowed against the sink.
func CanAssign(sink, src ParamType) bool {
	if sink.Kind == KindAny || src.Kind == KindAny {
		return true
	}
	if sink.Kind == KindUnion {
		for _, arm := range sink.Union {
			if CanAssign(arm, src) {
				return true
			}
		}
		return false
	}
	if src.Kind == KindUnion {
		for _, arm := range src.Union {
			if CanAssign(sink, arm) {
				return true
			}
		}
		return false
	}
	if sink.Kind != src.Kind {
		return false
	}
	switch sink.Kind {
	case KindPrimitive:
		return sink.Primitive == src.Primitive
	case KindArray:
		return CanAssign(*sink.Array, *src.Array)
	case KindRecord:
		for name, fieldType := range sink.Fields {
			srcField, ok := src.Fields[name]
			if !ok || !CanAssign(fieldType, srcField) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// LinkMerge is the policy for combining multiple sources into one sink
// binding.
type LinkMerge string

const (
	// MergeNested appends each source's value as one element.
	MergeNested LinkMerge = "merge_nested"
	// MergeFlattened extends the list with the source's elements if the
	// source value is itself a list, else appends it as one element.
	MergeFlattened LinkMerge = "merge_flattened"
)

// PickValue is the policy for filtering nulls out of a merged binding.
type PickValue string

const (
	// PickFirstNonNull takes the first non-null element.
	PickFirstNonNull PickValue = "first_non_null"
	// PickOnlyNonNull requires exactly one non-null element.
	PickOnlyNonNull PickValue = "only_non_null"
	// PickAllNonNull keeps every non-null element.
	PickAllNonNull PickValue = "all_non_null"
)

// Parameter is a named, typed workflow or step I/O port.
type Parameter struct {
	// ID is the fully qualified parameter id.
	ID string
	// Type is the parameter's declared type.
	Type ParamType
	// HasDefault and Default hold the parameter's default value, if any.
	// Default may legitimately be nil, so presence is tracked separately.
	HasDefault bool
	Default    any

	// Sources lists the upstream parameter ids this sink reads from (the
	// "source" field for step inputs, "outputSource" for workflow
	// outputs — callers populate this from whichever field applies).
	Sources []string
	// LinkMerge selects how multiple Sources combine. Empty means
	// "merge_nested" is implied only when len(Sources) > 1; a single
	// source never merges.
	LinkMerge LinkMerge
	// PickValue is the post-merge null filter, if any.
	PickValue PickValue
	// ValueFrom is an optional input-local expression applied after
	// merging and defaulting.
	ValueFrom string
	// LoadContents requests that a File value's leading bytes be
	// pre-loaded before valueFrom/when evaluation.
	LoadContents bool

	// NotConnected marks a step input left unbound by the workflow
	// author: it still has a Parameter (typed Any) so valueFrom/when
	// expressions that reference it by name resolve, but no source
	// feeds it.
	NotConnected bool
	// UsedByStep records whether a sibling valueFrom or when expression
	// textually references this (typically NotConnected) parameter.
	UsedByStep bool
}

// Status is the completion status of a WorkflowStateItem.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusSkipped       Status = "skipped"
	StatusPermanentFail Status = "permanentFail"
	StatusTemporaryFail Status = "temporaryFail"
)

// WorseStatus folds a new observed status into the running worst-so-far
// processStatus. success and skipped rank equally: per §8,
// "processStatus == success ⇔ every step completed with status ∈
// {success, skipped}", so a skipped step must never by itself escalate
// processStatus away from success. Only temporaryFail and permanentFail
// rank worse; permanentFail is sticky: once reached it never reverts
// (§7).
func WorseStatus(a, b Status) Status {
	rank := func(s Status) int {
		switch s {
		case StatusSuccess, StatusSkipped:
			return 0
		case StatusTemporaryFail:
			return 1
		case StatusPermanentFail:
			return 2
		default:
			return 2
		}
	}
	if a == StatusPermanentFail || b == StatusPermanentFail {
		return StatusPermanentFail
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

// WorkflowStateItem binds a parameter descriptor to the value it produced
// and the status of the step that produced it.
type WorkflowStateItem struct {
	Parameter *Parameter
	Value     any
	Status    Status
}

// StateMap maps parameter id to either a WorkflowStateItem or *unset*.
// Unset is represented by a present key mapping to a nil pointer;
// absence of the key entirely means "unknown source".
type StateMap map[string]*WorkflowStateItem

// Get distinguishes "unknown" (not a key at all), "unset" (key present,
// nil item) and "bound" (key present, non-nil item).
func (s StateMap) Get(id string) (item *WorkflowStateItem, known bool) {
	item, known = s[id]
	return item, known
}

// deepCopyValue deep-copies a JSON-like value tree (map[string]any,
// []any, or scalar). File/Directory references are opaque handles and
// are copied by value (shallow), matching the core's "never dereference
// a File/Directory" rule (§9).
func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopyValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopyValue(val)
		}
		return out
	default:
		return v
	}
}

// FileRef is an opaque handle to a File-class value. The core never
// dereferences Location; only the expression engine and file-system
// collaborator do.
type FileRef struct {
	Location   string
	Contents   string
	HasContent bool
	Secondary  []*FileRef
}

// DirRef is an opaque handle to a Directory-class value.
type DirRef struct {
	Location string
	Listing  []any
}

// FindFiles recursively collects every File-class node (and its
// secondaryFiles) reachable from a value tree, grounded in cwltool's
// workflow.py findfiles helper. Useful for staging/cleanup callers even
// though staging itself is out of scope for this core.
func FindFiles(v any) []*FileRef {
	var out []*FileRef
	var walk func(any)
	walk = func(node any) {
		switch t := node.(type) {
		case *FileRef:
			out = append(out, t)
			for _, sec := range t.Secondary {
				walk(sec)
			}
		case map[string]any:
			for _, val := range t {
				walk(val)
			}
		case []any:
			for _, val := range t {
				walk(val)
			}
		}
	}
	walk(v)
	return out
}
