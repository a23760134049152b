package engine

import (
	"github.com/roach88/ddflow/internal/program"
	"github.com/roach88/ddflow/internal/value"
	"github.com/roach88/ddflow/internal/zset"
)

// relState is the engine-owned state of one relation.
//
// Distinct relations keep raw derivation counts and expose only sign
// changes as their visible delta. content holds the visible collection and
// is maintained only when keep is set.
type relState struct {
	rel      *program.Relation
	distinct bool
	keep     bool
	content  *zset.ZSet
	raw      *zset.ZSet
	arrs     []program.ArrID
}

func newRelState(rel *program.Relation, distinct, keep bool) *relState {
	s := &relState{rel: rel, distinct: distinct, keep: keep}
	if keep {
		s.content = zset.New()
	}
	if distinct {
		s.raw = zset.New()
	}
	return s
}

// integrate applies a raw delta and returns the visible delta.
func (s *relState) integrate(delta *zset.ZSet) *zset.ZSet {
	visible := delta
	if s.distinct {
		visible = zset.New()
		delta.Range(func(v value.Value, w zset.Weight) bool {
			before := s.raw.Weight(v)
			after := s.raw.Add(v, w)
			switch {
			case before <= 0 && after > 0:
				visible.Add(v, 1)
			case before > 0 && after <= 0:
				visible.Add(v, -1)
			}
			return true
		})
	}
	if s.keep {
		s.content.Merge(visible)
	}
	return visible
}

// contains reports whether v is visible. Requires keep.
func (s *relState) contains(v value.Value) bool {
	return s.content.Weight(v) > 0
}

// snapshot returns a copy of the visible content. Requires keep.
func (s *relState) snapshot() *zset.ZSet {
	return s.content.Clone()
}

func (s *relState) reset() {
	if s.content != nil {
		s.content.Clear()
	}
	if s.raw != nil {
		s.raw.Clear()
	}
}
