// Package arrangement maintains indexed, shareable views of a collection.
//
// An Arrangement is a sharded ordered index from key to (value, weight).
// Map arrangements keep the owning relation's weights per (key, value)
// pair; Set arrangements keep only key presence and report presence
// deltas. Shards partition the keyspace by value.Shard(key, n) and are
// mutated by at most one goroutine each.
package arrangement

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ddflow/internal/value"
	"github.com/roach88/ddflow/internal/zset"
)

// Kind selects what an arrangement records per key.
type Kind int

const (
	// Map records every (key, value) pair with its weight.
	Map Kind = iota
	// Set records whether at least one row carries the key.
	Set
)

func (k Kind) String() string {
	switch k {
	case Map:
		return "map"
	case Set:
		return "set"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps "map" / "set" to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "map", "":
		return Map, nil
	case "set":
		return Set, nil
	default:
		return Map, errors.Newf("unknown arrangement kind %q", s)
	}
}

// KeyFunc extracts the arrangement key and the arranged value from a row.
// Rows for which ok is false are not arranged.
type KeyFunc func(row value.Value) (key, val value.Value, ok bool)

// btreeDegree matches the fan-out cockroach uses for its in-memory
// descriptor trees.
const btreeDegree = 8

type item struct {
	key    value.Value
	val    value.Value // nil for Set arrangements
	weight zset.Weight // Set: number of supporting rows
}

func itemLess(a, b *item) bool {
	if c := value.Compare(a.key, b.key); c != 0 {
		return c < 0
	}
	return value.Compare(a.val, b.val) < 0
}

type shard struct {
	tree *btree.BTreeG[*item]
}

func newShard() *shard {
	return &shard{tree: btree.NewG[*item](btreeDegree, itemLess)}
}

// Arrangement is an indexed view of one relation.
type Arrangement struct {
	name   string
	kind   Kind
	keyFn  KeyFunc
	shards []*shard
}

// New creates an empty arrangement with the given number of shards
// (at least one).
func New(name string, kind Kind, keyFn KeyFunc, shards int) *Arrangement {
	if shards < 1 {
		shards = 1
	}
	a := &Arrangement{name: name, kind: kind, keyFn: keyFn, shards: make([]*shard, shards)}
	for i := range a.shards {
		a.shards[i] = newShard()
	}
	return a
}

func (a *Arrangement) Name() string { return a.name }
func (a *Arrangement) Kind() Kind   { return a.kind }
func (a *Arrangement) Shards() int  { return len(a.shards) }

// ShardOf returns the shard responsible for key.
func (a *Arrangement) ShardOf(key value.Value) int {
	return value.Shard(key, len(a.shards))
}

// Pair packs a key and value into the row form used by arrangement deltas.
func Pair(key, val value.Value) value.Tuple {
	return value.Tuple{key, val}
}

// Unpair splits a Pair. It panics on rows that are not pairs.
func Unpair(row value.Value) (key, val value.Value) {
	t := row.(value.Tuple)
	return t[0], t[1]
}

// Keyed maps a relation delta to (key, value) pairs using the key
// function. Weights are carried over unchanged.
func (a *Arrangement) Keyed(delta *zset.ZSet) *zset.ZSet {
	out := zset.New()
	delta.Range(func(row value.Value, w zset.Weight) bool {
		k, v, ok := a.keyFn(row)
		if !ok {
			return true
		}
		out.Add(Pair(k, v), w)
		return true
	})
	return out
}

// Apply integrates a delta of the owning relation and returns the
// arrangement delta as a ZSet of Pairs. For Map arrangements this is the
// keyed input. For Set arrangements it is the presence delta: Pair(k, k)
// with +1 when k becomes present and -1 when it disappears.
func (a *Arrangement) Apply(delta *zset.ZSet) *zset.ZSet {
	return a.ApplyKeyed(a.Keyed(delta))
}

// ApplyKeyed integrates an already keyed delta (a ZSet of Pairs).
// Shards are updated concurrently; the call returns once every shard
// has been integrated.
func (a *Arrangement) ApplyKeyed(pairs *zset.ZSet) *zset.ZSet {
	if pairs.IsEmpty() {
		return zset.New()
	}

	parts := make([][]zset.Entry, len(a.shards))
	pairs.Range(func(row value.Value, w zset.Weight) bool {
		k, _ := Unpair(row)
		i := a.ShardOf(k)
		parts[i] = append(parts[i], zset.Entry{Value: row, Weight: w})
		return true
	})

	outs := make([]*zset.ZSet, len(a.shards))
	if len(a.shards) == 1 {
		outs[0] = a.applyShard(a.shards[0], parts[0])
	} else {
		var g errgroup.Group
		for i := range a.shards {
			if len(parts[i]) == 0 {
				continue
			}
			i := i
			g.Go(func() error {
				outs[i] = a.applyShard(a.shards[i], parts[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	out := zset.New()
	for _, o := range outs {
		out.Merge(o)
	}
	return out
}

func (a *Arrangement) applyShard(s *shard, entries []zset.Entry) *zset.ZSet {
	out := zset.New()
	for _, e := range entries {
		k, v := Unpair(e.Value)
		if a.kind == Set {
			pivot := &item{key: k}
			cur, found := s.tree.Get(pivot)
			before := zset.Weight(0)
			if found {
				before = cur.weight
				cur.weight += e.Weight
			} else {
				cur = &item{key: k, weight: e.Weight}
				s.tree.ReplaceOrInsert(cur)
			}
			after := cur.weight
			if after == 0 {
				s.tree.Delete(pivot)
			}
			switch {
			case before <= 0 && after > 0:
				out.Add(Pair(k, k), 1)
			case before > 0 && after <= 0:
				out.Add(Pair(k, k), -1)
			}
			continue
		}

		pivot := &item{key: k, val: v}
		if cur, found := s.tree.Get(pivot); found {
			cur.weight += e.Weight
			if cur.weight == 0 {
				s.tree.Delete(pivot)
			}
		} else {
			s.tree.ReplaceOrInsert(&item{key: k, val: v, weight: e.Weight})
		}
		out.Add(e.Value, e.Weight)
	}
	return out
}

// Lookup calls fn for every value stored under key, in value order, until
// fn returns false. Set arrangements yield (key, 1) when key is present.
// Lookup only reads and may run concurrently with other lookups.
func (a *Arrangement) Lookup(key value.Value, fn func(val value.Value, w zset.Weight) bool) {
	s := a.shards[a.ShardOf(key)]
	if a.kind == Set {
		if cur, ok := s.tree.Get(&item{key: key}); ok && cur.weight > 0 {
			fn(key, 1)
		}
		return
	}
	s.tree.AscendGreaterOrEqual(&item{key: key}, func(it *item) bool {
		if !value.Equal(it.key, key) {
			return false
		}
		return fn(it.val, it.weight)
	})
}

// Get returns the entries stored under key, sorted by value.
func (a *Arrangement) Get(key value.Value) []zset.Entry {
	var out []zset.Entry
	a.Lookup(key, func(val value.Value, w zset.Weight) bool {
		out = append(out, zset.Entry{Value: val, Weight: w})
		return true
	})
	return out
}

// Contains reports whether any value is stored under key.
func (a *Arrangement) Contains(key value.Value) bool {
	found := false
	a.Lookup(key, func(value.Value, zset.Weight) bool {
		found = true
		return false
	})
	return found
}

// Len returns the number of stored (key, value) pairs, or keys for Set
// arrangements.
func (a *Arrangement) Len() int {
	n := 0
	for _, s := range a.shards {
		n += s.tree.Len()
	}
	return n
}

// Entries returns the full arrangement as Pairs sorted by key then value.
// Set arrangements report Pair(k, k) with weight one.
func (a *Arrangement) Entries() []zset.Entry {
	var out []zset.Entry
	for _, s := range a.shards {
		s.tree.Ascend(func(it *item) bool {
			if a.kind == Set {
				if it.weight > 0 {
					out = append(out, zset.Entry{Value: Pair(it.key, it.key), Weight: 1})
				}
				return true
			}
			out = append(out, zset.Entry{Value: Pair(it.key, it.val), Weight: it.weight})
			return true
		})
	}
	zset.SortEntries(out)
	return out
}

// Project computes the arrangement image of a full collection without
// touching the arrangement: keyed pairs for Map, presence pairs for Set.
// Diffing two projections yields the arrangement delta between two
// collection states.
func (a *Arrangement) Project(content *zset.ZSet) *zset.ZSet {
	keyed := a.Keyed(content)
	if a.kind == Map {
		return keyed
	}
	support := zset.New()
	keyed.Range(func(row value.Value, w zset.Weight) bool {
		k, _ := Unpair(row)
		support.Add(Pair(k, k), w)
		return true
	})
	return support.Distinct()
}

// Reset drops every stored entry.
func (a *Arrangement) Reset() {
	for i := range a.shards {
		a.shards[i] = newShard()
	}
}
