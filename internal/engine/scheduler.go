package engine

import (
	"slices"

	"github.com/roach88/ddflow/internal/arrangement"
	"github.com/roach88/ddflow/internal/program"
	"github.com/roach88/ddflow/internal/zset"
)

// txnState accumulates the net change of every relation and arrangement
// over one transaction. Downstream strata read these as their first-round
// input.
type txnState struct {
	rels map[program.RelID]*zset.ZSet
	arrs map[program.ArrID]*zset.ZSet
}

func newTxnState() *txnState {
	return &txnState{
		rels: make(map[program.RelID]*zset.ZSet),
		arrs: make(map[program.ArrID]*zset.ZSet),
	}
}

func (t *txnState) addRel(rel program.RelID, d *zset.ZSet) {
	acc, ok := t.rels[rel]
	if !ok {
		acc = zset.New()
		t.rels[rel] = acc
	}
	acc.Merge(d)
}

func (t *txnState) addArr(id program.ArrID, d *zset.ZSet) {
	acc, ok := t.arrs[id]
	if !ok {
		acc = zset.New()
		t.arrs[id] = acc
	}
	acc.Merge(d)
}

// publish integrates a visible relation delta into the relation's
// arrangements and records both in the transaction. Returns the
// arrangement deltas.
func (e *Engine) publish(t *txnState, rel program.RelID, visible *zset.ZSet) map[program.ArrID]*zset.ZSet {
	if visible.IsEmpty() {
		return nil
	}
	arrDeltas := make(map[program.ArrID]*zset.ZSet, len(e.rels[rel].arrs))
	for _, id := range e.rels[rel].arrs {
		arrDeltas[id] = e.arrs[id].Apply(visible)
	}
	if t != nil {
		t.addRel(rel, visible)
		for id, d := range arrDeltas {
			t.addArr(id, d)
		}
	}
	return arrDeltas
}

// roundEnv exposes arrangements and this round's arrangement deltas to
// pipelines.
type roundEnv struct {
	arrs   []*arrangement.Arrangement
	deltas map[program.ArrID]*zset.ZSet
}

func (r roundEnv) Arrangement(id program.ArrID) *arrangement.Arrangement { return r.arrs[id] }
func (r roundEnv) Delta(id program.ArrID) *zset.ZSet                     { return r.deltas[id] }

// evalStratum brings stratum s up to date with the upstream changes
// recorded in t.
//
// An acyclic stratum evaluates each rule once. A recursive stratum runs
// semi-naive rounds: round 0 consumes the upstream deltas, each later round
// consumes the previous round's own deltas, until a round changes nothing.
// If the upstream deltas of a recursive stratum contain a retraction the
// stratum is rebuilt instead, because derivation counts cannot detect
// cyclic self-support.
func (e *Engine) evalStratum(t *txnState, s *program.Stratum) error {
	if len(s.Rules) == 0 {
		return nil
	}
	g := e.graph
	inStratum := func(rel program.RelID) bool { return e.plan.StratumOf[rel] == s.Index }

	// Upstream inputs of this stratum.
	srcDeltas := make(map[program.RelID]*zset.ZSet)
	arrDeltas := make(map[program.ArrID]*zset.ZSet)
	retraction := false
	for _, ri := range s.Rules {
		r := &g.Rules[ri]
		if !inStratum(r.Source) {
			if d, ok := t.rels[r.Source]; ok && !d.IsEmpty() {
				srcDeltas[r.Source] = d
				retraction = retraction || d.HasNegative()
			}
		}
		for _, id := range program.StageArrangements(r.Stages) {
			if inStratum(g.Arrangements[id].Relation) {
				continue
			}
			if d, ok := t.arrs[id]; ok && !d.IsEmpty() {
				arrDeltas[id] = d
				retraction = retraction || d.HasNegative()
			}
		}
	}
	if len(srcDeltas) == 0 && len(arrDeltas) == 0 {
		return nil
	}

	rebuild := s.Recursive && retraction
	var before map[program.RelID]*zset.ZSet
	if rebuild {
		before = e.resetStratum(s)
		// Re-derive from the full upstream content; the arrangements read
		// by joins are already current, so no arrangement delta is needed.
		srcDeltas = make(map[program.RelID]*zset.ZSet)
		for _, ri := range s.Rules {
			src := g.Rules[ri].Source
			if !inStratum(src) {
				srcDeltas[src] = e.rels[src].snapshot()
			}
		}
		arrDeltas = make(map[program.ArrID]*zset.ZSet)
		e.metrics.rebuilds.Inc()
	}

	// Rebuilt strata report old-vs-new content at the end instead of
	// per-round deltas.
	record := t
	if rebuild {
		record = nil
	}

	round := 0
	for {
		if round == 0 {
			e.state.set(State{Phase: Applying, Stratum: s.Index})
		} else {
			e.state.set(State{Phase: Iterating, Stratum: s.Index, Round: round})
		}

		env := roundEnv{arrs: e.arrs, deltas: arrDeltas}
		outputs := make(map[program.RelID]*zset.ZSet)
		for _, ri := range s.Rules {
			r := &g.Rules[ri]
			out := e.pipelines[ri].Step(env, srcDeltas[r.Source])
			if out.IsEmpty() {
				continue
			}
			// out may alias an upstream delta; never merge into it.
			acc, ok := outputs[r.Target]
			if !ok {
				acc = zset.New()
				outputs[r.Target] = acc
			}
			acc.Merge(out)
		}

		nextSrc := make(map[program.RelID]*zset.ZSet)
		nextArr := make(map[program.ArrID]*zset.ZSet)
		for _, rel := range s.Relations {
			raw, ok := outputs[rel]
			if !ok {
				continue
			}
			visible := e.rels[rel].integrate(raw)
			if visible.IsEmpty() {
				continue
			}
			nextSrc[rel] = visible
			for id, d := range e.publish(record, rel, visible) {
				nextArr[id] = d
			}
		}

		round++
		e.metrics.rounds.Inc()
		e.logger.Debug("round evaluated",
			"stratum", s.Index,
			"round", round,
			"delta", deltaSize(nextSrc),
			"rebuild", rebuild,
		)

		if !s.Recursive || len(nextSrc) == 0 {
			break
		}
		if e.maxIterations > 0 && round >= e.maxIterations {
			return newIterationLimit(e.RelationName(s.Relations[0]), s.Index, e.maxIterations)
		}
		srcDeltas, arrDeltas = nextSrc, nextArr
	}

	if rebuild {
		e.recordRebuild(t, s, before)
	}
	return nil
}

// resetStratum clears the relations, arrangements and stage states of s
// and returns the visible content it held.
func (e *Engine) resetStratum(s *program.Stratum) map[program.RelID]*zset.ZSet {
	before := make(map[program.RelID]*zset.ZSet, len(s.Relations))
	for _, rel := range s.Relations {
		before[rel] = e.rels[rel].snapshot()
		e.rels[rel].reset()
		for _, id := range e.rels[rel].arrs {
			e.arrs[id].Reset()
		}
	}
	for _, ri := range s.Rules {
		e.pipelines[ri].Reset()
	}
	e.logger.Debug("stratum reset for rebuild", "stratum", s.Index, "relations", len(s.Relations))
	return before
}

// recordRebuild records the difference between the content a rebuilt
// stratum held before and after the transaction.
func (e *Engine) recordRebuild(t *txnState, s *program.Stratum, before map[program.RelID]*zset.ZSet) {
	for _, rel := range s.Relations {
		after := e.rels[rel].content
		if d := zset.Diff(before[rel], after); !d.IsEmpty() {
			t.addRel(rel, d)
		}
		for _, id := range e.rels[rel].arrs {
			a := e.arrs[id]
			if d := zset.Diff(a.Project(before[rel]), a.Project(after)); !d.IsEmpty() {
				t.addArr(id, d)
			}
		}
	}
}

func deltaSize(deltas map[program.RelID]*zset.ZSet) int {
	n := 0
	for _, d := range deltas {
		n += d.Len()
	}
	return n
}

func sortedRelIDs[V any](m map[program.RelID]V) []program.RelID {
	ids := make([]program.RelID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
