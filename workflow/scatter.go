package workflow

import (
	"context"
	"sync"
	"time"
)

// newScatterSequence implements the ScatterEngine (§4.3): it expands a
// step's scattered inputs into shards according to the step's
// ScatterMethod, runs each shard's per-shard PostScatterEval and Process
// dispatch, and collects shard outputs back into the step's (now
// array-typed) output parameters. Grounded in cwltool's
// dotproduct_scatter / nested_crossproduct_scatter /
// flat_crossproduct_scatter / ReceiveScatterOutput / parallel_steps.
func newScatterSequence(ctx context.Context, step *Step, inputObj map[string]any, rc *RuntimeContext, final OutputCallback) (JobSequence, error) {
	byShort := make(map[string]*Parameter, len(step.Inputs))
	for _, p := range step.Inputs {
		byShort[ShortName(p.ID)] = p
	}

	axes := make([]*Parameter, len(step.Scatter))
	lengths := make([]int, len(step.Scatter))
	for i, key := range step.Scatter {
		p, ok := byShort[key]
		if !ok {
			return nil, newErr(CodeScatterKeyUnknown, step.ID, nil,
				"scatter parameter %q does not correspond to an input parameter of this step", key)
		}
		arr, ok := inputObj[p.ID].([]any)
		if !ok {
			return nil, newErr(CodeScatterLengthMismatch, step.ID, nil,
				"scatter input %q is not an array", key)
		}
		axes[i] = p
		lengths[i] = len(arr)
	}

	method := step.ScatterMethod
	if method == "" {
		method = ScatterDotProduct
	}

	var tuples [][]int
	var dims []int
	switch method {
	case ScatterDotProduct:
		n := -1
		for _, l := range lengths {
			if n == -1 {
				n = l
			} else if l != n {
				return nil, newErr(CodeScatterLengthMismatch, step.ID, nil,
					"dotproduct scatter requires equal-length arrays, got %v", lengths)
			}
		}
		tuples = make([][]int, n)
		for i := 0; i < n; i++ {
			tup := make([]int, len(axes))
			for a := range axes {
				tup[a] = i
			}
			tuples[i] = tup
		}
		dims = []int{n}
	case ScatterNestedCrossProduct, ScatterFlatCrossProduct:
		tuples = cartesianProduct(lengths)
		dims = append([]int(nil), lengths...)
	default:
		return nil, newErr(CodeScatterMethodRequired, step.ID, nil, "unknown scatterMethod %q", method)
	}

	total := len(tuples)
	collector := &shardCollector{
		total: total,
		dest:  make([]map[string]any, total),
		status: make([]Status, total),
		outputs: step.Outputs,
		nested:  method == ScatterNestedCrossProduct,
		dims:    dims,
		final:   final,
	}

	if total == 0 {
		collector.finishEmpty()
		return &scatterSequence{}, nil
	}

	subs := make([]JobSequence, total)
	done := make([]bool, total)

	emitShard := func(kind string, idx int, status Status) {
		if rc.Emitter == nil {
			return
		}
		rc.Emitter.Emit(Event{RunID: rc.RunID, StepID: step.ID, Kind: kind, Status: status, Time: time.Now(), Meta: map[string]any{"shard": idx}})
	}

	for idx, tup := range tuples {
		shardInput := make(map[string]any, len(inputObj))
		for k, v := range inputObj {
			shardInput[k] = v
		}
		for a, p := range axes {
			arr := inputObj[p.ID].([]any)
			shardInput[p.ID] = arr[tup[a]]
		}

		shardIdx := idx
		emitShard("shard.start", shardIdx, "")
		evaluated, err := rc.postScatterEval(ctx, shardInput)
		switch {
		case err != nil:
			emitShard("shard.finish", shardIdx, StatusPermanentFail)
			collector.receive(shardIdx, nil, StatusPermanentFail)
			done[shardIdx] = true
		case evaluated == nil:
			emitShard("shard.finish", shardIdx, StatusSkipped)
			collector.receive(shardIdx, map[string]any{}, StatusSkipped)
			done[shardIdx] = true
		default:
			jobCtx, cancel := withStepTimeout(ctx, step)
			subs[shardIdx] = step.Process.Job(jobCtx, evaluated, func(output map[string]any, status Status) {
				filled, missing := stepOutputOrNil(step, output)
				if missing && status == StatusSuccess {
					status = StatusPermanentFail
				}
				emitShard("shard.finish", shardIdx, status)
				collector.receive(shardIdx, filled, status)
			}, rc)
			cancel()
		}
	}

	return &scatterSequence{subs: subs, done: done}, nil
}

// cartesianProduct enumerates index tuples over axes of the given
// lengths in row-major order (first axis varies slowest), matching the
// nesting order applyScatterTypeRewrite wraps outputs in.
func cartesianProduct(lengths []int) [][]int {
	total := 1
	for _, l := range lengths {
		total *= l
	}
	if total == 0 {
		return nil
	}
	out := make([][]int, total)
	for i := range out {
		tup := make([]int, len(lengths))
		rem := i
		for a := len(lengths) - 1; a >= 0; a-- {
			tup[a] = rem % lengths[a]
			rem /= lengths[a]
		}
		out[i] = tup
	}
	return out
}

// shardCollector gathers per-shard outputs and fires the step's final
// OutputCallback exactly once, after every shard has reported (§4.3
// ReceiveScatterOutput).
type shardCollector struct {
	mu        sync.Mutex
	total     int
	contributed int
	dest      []map[string]any
	status    []Status
	outputs   []*Parameter
	nested    bool
	dims      []int
	final     OutputCallback
	fired     bool
}

func (c *shardCollector) receive(idx int, output map[string]any, status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < len(c.dest) {
		c.dest[idx] = output
		c.status[idx] = status
		c.contributed++
	}
	if c.contributed >= c.total && !c.fired {
		c.fired = true
		c.assembleAndFire()
	}
}

func (c *shardCollector) finishEmpty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fired {
		return
	}
	c.fired = true
	c.assembleAndFire()
}

func (c *shardCollector) assembleAndFire() {
	worst := StatusSuccess
	result := make(map[string]any, len(c.outputs))
	for _, p := range c.outputs {
		flat := make([]any, c.total)
		for i := 0; i < c.total; i++ {
			if c.dest[i] != nil {
				flat[i] = c.dest[i][p.ID]
			}
		}
		if c.nested && len(c.dims) > 1 {
			result[p.ID] = reshapeNested(flat, c.dims)
		} else {
			result[p.ID] = flat
		}
	}
	for _, s := range c.status {
		worst = WorseStatus(worst, s)
	}
	if c.total == 0 {
		worst = StatusSuccess
	}
	c.final(result, worst)
}

func reshapeNested(flat []any, dims []int) any {
	if len(dims) <= 1 {
		return flat
	}
	d0 := dims[0]
	rest := dims[1:]
	chunk := 1
	for _, d := range rest {
		chunk *= d
	}
	out := make([]any, d0)
	for i := 0; i < d0; i++ {
		start := i * chunk
		end := start + chunk
		out[i] = reshapeNested(flat[start:end], rest)
	}
	return out
}

// scatterSequence round-robins Pull across every shard's JobSequence,
// mirroring cwltool's parallel_steps driver: a stall on one shard never
// blocks progress on another.
type scatterSequence struct {
	mu     sync.Mutex
	subs   []JobSequence
	done   []bool
	cursor int
}

func (s *scatterSequence) Pull(ctx context.Context) (Job, PullStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.subs)
	if n == 0 {
		return Job{}, PullDone
	}

	for i := 0; i < n; i++ {
		idx := (s.cursor + i) % n
		if s.done[idx] {
			continue
		}
		if s.subs[idx] == nil {
			s.done[idx] = true
			continue
		}
		job, status := s.subs[idx].Pull(ctx)
		if status == PullJob {
			s.cursor = (idx + 1) % n
			return job, PullJob
		}
		if status == PullDone {
			s.done[idx] = true
		}
	}

	for _, d := range s.done {
		if !d {
			return Job{}, PullStalled
		}
	}
	return Job{}, PullDone
}
