package dataflow

import (
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ddflow/internal/arrangement"
	"github.com/roach88/ddflow/internal/value"
	"github.com/roach88/ddflow/internal/zset"
)

// Env gives a pipeline read access to arrangements during one round.
type Env interface {
	// Arrangement returns the current state, already including Delta(id).
	Arrangement(id ArrID) *arrangement.Arrangement
	// Delta returns the arrangement's delta for this round as Pairs.
	// Nil or empty when the arrangement did not change.
	Delta(id ArrID) *zset.ZSet
}

// Pipeline evaluates one rule's stages incrementally. It owns the
// integrated state of its join and aggregate stages. A Pipeline is driven
// by a single goroutine; join work inside a step is spread over shards.
type Pipeline struct {
	stages  []Stage
	states  []stageState
	workers int
}

type stageState interface {
	reset()
}

// NewPipeline creates a pipeline with fresh state for stages. workers
// bounds the shard fan-out of join stages.
func NewPipeline(stages []Stage, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	p := &Pipeline{stages: stages, workers: workers, states: make([]stageState, len(stages))}
	for i, s := range stages {
		switch s.(type) {
		case Join, Semijoin:
			p.states[i] = newJoinState(workers)
		case Aggregate:
			p.states[i] = newAggregateState()
		case Transform:
			p.states[i] = newTransformState()
		}
	}
	return p
}

// Stages returns the stage descriptions.
func (p *Pipeline) Stages() []Stage { return p.stages }

// Reset clears all integrated stage state.
func (p *Pipeline) Reset() {
	for _, st := range p.states {
		if st != nil {
			st.reset()
		}
	}
}

// Step pushes one round's source delta through every stage and returns the
// rule's output delta. Join stages run even when their input is empty so
// that arrangement deltas reach the integrated left side.
func (p *Pipeline) Step(env Env, in *zset.ZSet) *zset.ZSet {
	cur := in
	if cur == nil {
		cur = zset.New()
	}
	for i, s := range p.stages {
		switch st := s.(type) {
		case FilterMap:
			cur = filterMap(st, cur)
		case Arrange:
			cur = arrange(st, cur)
		case Join:
			cur = p.join(p.states[i].(*joinState), env, st.Arrangement, cur, joinKeyFn(st.Key), joinEmitter(st.Combine))
		case Semijoin:
			cur = p.join(p.states[i].(*joinState), env, st.Arrangement, cur, joinKeyFn(st.Key), semijoinEmitter(st.Combine))
		case Aggregate:
			cur = p.states[i].(*aggregateState).step(st, cur)
		case Transform:
			cur = p.states[i].(*transformState).step(st, cur)
		}
	}
	return cur
}

func filterMap(s FilterMap, in *zset.ZSet) *zset.ZSet {
	if s.Fn == nil {
		return in
	}
	out := zset.New()
	in.Range(func(row value.Value, w zset.Weight) bool {
		if v, ok := s.Fn(row); ok {
			out.Add(v, w)
		}
		return true
	})
	return out
}

func arrange(s Arrange, in *zset.ZSet) *zset.ZSet {
	out := zset.New()
	in.Range(func(row value.Value, w zset.Weight) bool {
		if k, v, ok := s.Key(row); ok {
			out.Add(arrangement.Pair(k, v), w)
		}
		return true
	})
	return out
}

// =============================================================================
// Join / Semijoin
// =============================================================================

type keyFunc func(row value.Value) (key, left value.Value, ok bool)

type emitFunc func(left, key, right value.Value) (value.Value, bool)

func joinKeyFn(key func(value.Value) (value.Value, bool)) keyFunc {
	if key == nil {
		return func(row value.Value) (value.Value, value.Value, bool) {
			t, ok := row.(value.Tuple)
			if !ok || len(t) != 2 {
				return nil, nil, false
			}
			return t[0], t[1], true
		}
	}
	return func(row value.Value) (value.Value, value.Value, bool) {
		k, ok := key(row)
		return k, row, ok
	}
}

func joinEmitter(combine func(left, key, right value.Value) (value.Value, bool)) emitFunc {
	if combine == nil {
		return defaultJoinCombine
	}
	return combine
}

func semijoinEmitter(combine func(left, key value.Value) (value.Value, bool)) emitFunc {
	if combine == nil {
		combine = defaultSemijoinCombine
	}
	return func(left, key, _ value.Value) (value.Value, bool) {
		return combine(left, key)
	}
}

type joinState struct {
	left *arrangement.Arrangement
}

func newJoinState(workers int) *joinState {
	return &joinState{left: arrangement.New("", arrangement.Map, nil, workers)}
}

func (s *joinState) reset() { s.left.Reset() }

// join computes ΔL ⋈ R + L_old ⋈ ΔR and then integrates ΔL into L_old.
// Work is partitioned by key shard; each shard goroutine only reads the
// arrangements and writes its own output set.
func (p *Pipeline) join(st *joinState, env Env, id ArrID, in *zset.ZSet, key keyFunc, emit emitFunc) *zset.ZSet {
	right := env.Arrangement(id)
	dRight := env.Delta(id)

	dLeft := zset.New()
	in.Range(func(row value.Value, w zset.Weight) bool {
		if k, l, ok := key(row); ok {
			dLeft.Add(arrangement.Pair(k, l), w)
		}
		return true
	})
	if dLeft.IsEmpty() && dRight.IsEmpty() {
		return zset.New()
	}

	n := p.workers
	leftParts := partition(dLeft, n)
	rightParts := partition(dRight, n)
	outs := make([]*zset.ZSet, n)

	work := func(i int) {
		out := zset.New()
		for _, e := range leftParts[i] {
			k, l := arrangement.Unpair(e.Value)
			wl := e.Weight
			right.Lookup(k, func(r value.Value, wr zset.Weight) bool {
				if v, ok := emit(l, k, r); ok {
					out.Add(v, wl*wr)
				}
				return true
			})
		}
		for _, e := range rightParts[i] {
			k, r := arrangement.Unpair(e.Value)
			wr := e.Weight
			st.left.Lookup(k, func(l value.Value, wl zset.Weight) bool {
				if v, ok := emit(l, k, r); ok {
					out.Add(v, wl*wr)
				}
				return true
			})
		}
		outs[i] = out
	}

	if n == 1 {
		work(0)
	} else {
		var g errgroup.Group
		for i := 0; i < n; i++ {
			if len(leftParts[i]) == 0 && len(rightParts[i]) == 0 {
				continue
			}
			i := i
			g.Go(func() error {
				work(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	result := zset.New()
	for _, o := range outs {
		result.Merge(o)
	}
	st.left.ApplyKeyed(dLeft)
	return result
}

// partition splits a ZSet of Pairs into n slices by key shard.
func partition(pairs *zset.ZSet, n int) [][]zset.Entry {
	parts := make([][]zset.Entry, n)
	pairs.Range(func(row value.Value, w zset.Weight) bool {
		k, _ := arrangement.Unpair(row)
		i := value.Shard(k, n)
		parts[i] = append(parts[i], zset.Entry{Value: row, Weight: w})
		return true
	})
	return parts
}

// =============================================================================
// Aggregate
// =============================================================================

type group struct {
	key     value.Value
	members *zset.ZSet
}

type aggregateState struct {
	groups map[string]*group
}

func newAggregateState() *aggregateState {
	return &aggregateState{groups: make(map[string]*group)}
}

func (s *aggregateState) reset() { clear(s.groups) }

// step applies a delta of Pairs to the groups. For every touched key the
// previous output is retracted and the new one emitted; an emptied group
// emits nothing.
func (s *aggregateState) step(agg Aggregate, in *zset.ZSet) *zset.ZSet {
	project := agg.Project
	if project == nil {
		project = defaultAggregateProject
	}

	touched := make(map[string]*zset.ZSet)
	keys := make(map[string]value.Value)
	in.Range(func(row value.Value, w zset.Weight) bool {
		t, ok := row.(value.Tuple)
		if !ok || len(t) != 2 {
			return true
		}
		k := value.Key(t[0])
		d, ok := touched[k]
		if !ok {
			d = zset.New()
			touched[k] = d
			keys[k] = t[0]
		}
		d.Add(t[1], w)
		return true
	})

	out := zset.New()
	for k, d := range touched {
		g, ok := s.groups[k]
		if !ok {
			g = &group{key: keys[k], members: zset.New()}
		}

		oldRow, hadOld := s.output(agg.Reducer, project, g)
		g.members.Merge(d)
		newRow, hasNew := s.output(agg.Reducer, project, g)

		if g.members.IsEmpty() {
			delete(s.groups, k)
		} else {
			s.groups[k] = g
		}

		if hadOld && hasNew && value.Equal(oldRow, newRow) {
			continue
		}
		if hadOld {
			out.Add(oldRow, -1)
		}
		if hasNew {
			out.Add(newRow, 1)
		}
	}
	return out
}

func (s *aggregateState) output(r Reducer, project func(key, result value.Value) (value.Value, bool), g *group) (value.Value, bool) {
	members := positive(g.members)
	if len(members) == 0 {
		return nil, false
	}
	res, ok := r.Reduce(g.key, members)
	if !ok {
		return nil, false
	}
	return project(g.key, res)
}

func positive(z *zset.ZSet) []zset.Entry {
	entries := z.Entries()
	out := entries[:0]
	for _, e := range entries {
		if e.Weight > 0 {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// Transform
// =============================================================================

type transformState struct {
	input  *zset.ZSet
	output *zset.ZSet
}

func newTransformState() *transformState {
	return &transformState{input: zset.New(), output: zset.New()}
}

func (s *transformState) reset() {
	s.input.Clear()
	s.output.Clear()
}

// step integrates in, reruns the function over the rows present in the
// input and returns the change of its result.
func (s *transformState) step(tr Transform, in *zset.ZSet) *zset.ZSet {
	if in.IsEmpty() {
		return zset.New()
	}
	s.input.Merge(in)

	var rows []value.Value
	for _, e := range positive(s.input) {
		rows = append(rows, e.Value)
	}
	next := zset.FromValues(tr.Fn(rows)...).Distinct()

	d := zset.Diff(s.output, next)
	s.output = next
	return d
}
