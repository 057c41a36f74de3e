package workflow

// Resolve implements the StateRouter (§4.1): it resolves a parameter list
// against the workflow's current state map, applying source selection,
// link-merge, pick-value, defaults, and type compatibility checks.
//
// shortIDs controls whether the bound input object is keyed by each
// parameter's full id or its short name (cwltool's object_from_state
// frag_only flag: step-input resolution uses full ids, final workflow
// output collection uses short names).
//
// allowPartial relaxes readiness: sources that are still unset are
// skipped rather than causing a not-ready result, and missing/valueFrom
// placeholders are permitted to bind null. It corresponds to the
// "incomplete" flag used by final output collection.
//
// Resolve is pure: it never mutates state. It returns (bound, true, nil)
// on success, (nil, false, nil) when the inputs are not yet ready (only
// possible when allowPartial is false), or (nil, false, err) on a
// structural error (§7 StateRouter errors).
func Resolve(state StateMap, params []*Parameter, shortIDs bool, supportsMultipleInput bool, allowPartial bool) (map[string]any, bool, error) {
	out := make(map[string]any, len(params))

	for _, p := range params {
		iid := p.ID
		if shortIDs {
			iid = ShortName(p.ID)
		}

		if len(p.Sources) > 0 {
			if len(p.Sources) > 1 && !supportsMultipleInput {
				return nil, false, newErr(CodeMultipleInputsUnsupported, p.ID, nil,
					"workflow contains multiple inbound links to %q but MultipleInputFeatureRequirement not declared", p.ID)
			}

			linkMerge := p.LinkMerge
			if linkMerge == "" && len(p.Sources) > 1 {
				linkMerge = MergeNested
			}

			for _, src := range p.Sources {
				item, known := state[src]
				switch {
				case known && item != nil && (item.Status == StatusSuccess || item.Status == StatusSkipped || allowPartial):
					ok, err := matchTypes(p.Type, item, iid, out, linkMerge, p.ValueFrom)
					if err != nil {
						return nil, false, err
					}
					if !ok {
						return nil, false, newErr(CodeTypeMismatch, p.ID, nil,
							"type mismatch between source %q and sink %q", src, p.ID)
					}
				case !known:
					return nil, false, newErr(CodeUnknownSource, p.ID, nil,
						"source %q for parameter %q does not exist", src, p.ID)
				case !allowPartial:
					return nil, false, nil
				default:
					// Known but unset (or failed) while allowPartial is
					// true: contributes nothing, not an error.
				}
			}
		}

		if p.PickValue != "" {
			if seq, ok := out[iid].([]any); ok {
				picked, err := pickValue(p.PickValue, seq, p.ID)
				if err != nil {
					return nil, false, err
				}
				out[iid] = picked
			}
		}

		if out[iid] == nil && p.HasDefault {
			out[iid] = p.Default
		}

		if _, present := out[iid]; !present && (p.ValueFrom != "" || allowPartial) {
			out[iid] = nil
		}

		// An input the workflow author left unconnected binds null
		// rather than failing, unless a sibling valueFrom/when
		// expression actually references it by name (UsedByStep),
		// mirroring cwltool's used_by_step bookkeeping.
		if _, present := out[iid]; !present && p.NotConnected && !p.UsedByStep {
			out[iid] = nil
		}

		if _, present := out[iid]; !present {
			return nil, false, newErr(CodeMissingValue, p.ID, nil, "value for %q not specified", p.ID)
		}
	}

	return out, true, nil
}

func pickValue(pv PickValue, seq []any, paramID string) (any, error) {
	switch pv {
	case PickFirstNonNull:
		for _, v := range seq {
			if v != nil {
				return v, nil
			}
		}
		return nil, newErr(CodeAllNull, paramID, nil, "all sources for %q are null", ShortName(paramID))
	case PickOnlyNonNull:
		found := false
		var result any
		for _, v := range seq {
			if v != nil {
				if found {
					return nil, newErr(CodeMultipleNonNull, paramID, nil,
						"expected only one source for %q to be non-null", ShortName(paramID))
				}
				found = true
				result = v
			}
		}
		if !found {
			return nil, newErr(CodeAllNull, paramID, nil, "all sources for %q are null", ShortName(paramID))
		}
		return result, nil
	case PickAllNonNull:
		result := make([]any, 0, len(seq))
		for _, v := range seq {
			if v != nil {
				result = append(result, v)
			}
		}
		return result, nil
	default:
		return seq, nil
	}
}

// matchTypes is the type-directed merge step (§4.1 step 3), grounded in
// cwltool's match_types: union sinks/sources recurse over their arms,
// linkMerge accumulates into a list, and a plain binding requires type
// assignability (or an Any sink, or a deferred valueFrom).
func matchTypes(sinkType ParamType, item *WorkflowStateItem, iid string, out map[string]any, linkMerge LinkMerge, valueFrom string) (bool, error) {
	if sinkType.Kind == KindUnion {
		for _, arm := range sinkType.Union {
			ok, err := matchTypes(arm, item, iid, out, linkMerge, valueFrom)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}

	srcType := item.Parameter.Type
	if srcType.Kind == KindUnion {
		for _, arm := range srcType.Union {
			probeParam := *item.Parameter
			probeParam.Type = arm
			probe := *item
			probe.Parameter = &probeParam
			ok, err := matchTypes(sinkType, &probe, iid, out, linkMerge, valueFrom)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}

	if linkMerge != "" {
		lst, _ := out[iid].([]any)
		switch linkMerge {
		case MergeNested:
			lst = append(lst, deepCopyValue(item.Value))
		case MergeFlattened:
			if arr, ok := item.Value.([]any); ok {
				lst = append(lst, arr...)
			} else {
				lst = append(lst, deepCopyValue(item.Value))
			}
		default:
			return false, newErr(CodeUnknownLinkMerge, iid, nil, "unrecognized linkMerge %q", linkMerge)
		}
		out[iid] = lst
		return true, nil
	}

	if valueFrom != "" || CanAssign(sinkType, srcType) || sinkType.Kind == KindAny {
		out[iid] = deepCopyValue(item.Value)
		return true, nil
	}
	return false, nil
}
