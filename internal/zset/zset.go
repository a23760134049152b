// Package zset implements weighted collections (Z-sets): maps from values to
// signed multiplicities where a net weight of zero means absent.
//
// Every change flowing through ddflow is a ZSet. Inserts carry positive
// weights, retractions negative ones, and adding two deltas is ZSet
// addition.
package zset

import (
	"slices"
	"strings"

	"github.com/roach88/ddflow/internal/value"
)

// Weight is the signed multiplicity of a value.
type Weight = int64

// Entry is a value with its weight.
type Entry struct {
	Value  value.Value `json:"value"`
	Weight Weight      `json:"weight"`
}

// ZSet maps values to non-zero weights. The zero value is not usable;
// construct with New. A ZSet is not safe for concurrent mutation.
type ZSet struct {
	entries map[string]*Entry
}

// New returns an empty ZSet.
func New() *ZSet {
	return &ZSet{entries: make(map[string]*Entry)}
}

// FromValues returns a ZSet holding each value with weight +1 per
// occurrence.
func FromValues(vals ...value.Value) *ZSet {
	z := New()
	for _, v := range vals {
		z.Add(v, 1)
	}
	return z
}

// FromEntries returns a ZSet with the given entries summed.
func FromEntries(entries ...Entry) *ZSet {
	z := New()
	for _, e := range entries {
		z.Add(e.Value, e.Weight)
	}
	return z
}

// Add adds w to the weight of v and returns the resulting weight.
// Entries reaching zero are removed.
func (z *ZSet) Add(v value.Value, w Weight) Weight {
	if w == 0 {
		return z.Weight(v)
	}
	return z.addKey(value.Key(v), v, w)
}

func (z *ZSet) addKey(k string, v value.Value, w Weight) Weight {
	e, ok := z.entries[k]
	if !ok {
		z.entries[k] = &Entry{Value: v, Weight: w}
		return w
	}
	e.Weight += w
	if e.Weight == 0 {
		delete(z.entries, k)
		return 0
	}
	return e.Weight
}

// Weight returns the weight of v, zero when absent.
func (z *ZSet) Weight(v value.Value) Weight {
	if e, ok := z.entries[value.Key(v)]; ok {
		return e.Weight
	}
	return 0
}

// Contains reports whether v has a non-zero weight.
func (z *ZSet) Contains(v value.Value) bool {
	_, ok := z.entries[value.Key(v)]
	return ok
}

// Len returns the number of distinct values with non-zero weight.
func (z *ZSet) Len() int {
	if z == nil {
		return 0
	}
	return len(z.entries)
}

// IsEmpty reports whether every weight is zero. A nil ZSet is empty.
func (z *ZSet) IsEmpty() bool {
	return z.Len() == 0
}

// Merge adds every entry of other into z (in-place ZSet addition).
func (z *ZSet) Merge(other *ZSet) *ZSet {
	if other == nil {
		return z
	}
	for k, e := range other.entries {
		z.addKey(k, e.Value, e.Weight)
	}
	return z
}

// MergeScaled adds every entry of other multiplied by factor.
func (z *ZSet) MergeScaled(other *ZSet, factor Weight) *ZSet {
	if other == nil || factor == 0 {
		return z
	}
	for k, e := range other.entries {
		z.addKey(k, e.Value, e.Weight*factor)
	}
	return z
}

// Clone returns an independent copy. Values are shared.
func (z *ZSet) Clone() *ZSet {
	c := &ZSet{entries: make(map[string]*Entry, z.Len())}
	if z == nil {
		return c
	}
	for k, e := range z.entries {
		c.entries[k] = &Entry{Value: e.Value, Weight: e.Weight}
	}
	return c
}

// Negate returns a copy with every weight negated.
func (z *ZSet) Negate() *ZSet {
	return New().MergeScaled(z, -1)
}

// Clear removes every entry.
func (z *ZSet) Clear() {
	clear(z.entries)
}

// HasNegative reports whether any weight is below zero.
func (z *ZSet) HasNegative() bool {
	if z == nil {
		return false
	}
	for _, e := range z.entries {
		if e.Weight < 0 {
			return true
		}
	}
	return false
}

// Distinct returns the set of values with positive weight, each with
// weight one.
func (z *ZSet) Distinct() *ZSet {
	d := New()
	if z == nil {
		return d
	}
	for k, e := range z.entries {
		if e.Weight > 0 {
			d.entries[k] = &Entry{Value: e.Value, Weight: 1}
		}
	}
	return d
}

// Range calls fn for every entry in unspecified order until fn returns
// false. z must not be mutated during Range.
func (z *ZSet) Range(fn func(v value.Value, w Weight) bool) {
	if z == nil {
		return
	}
	for _, e := range z.entries {
		if !fn(e.Value, e.Weight) {
			return
		}
	}
}

// Entries returns all entries sorted by value.
func (z *ZSet) Entries() []Entry {
	out := make([]Entry, 0, z.Len())
	z.Range(func(v value.Value, w Weight) bool {
		out = append(out, Entry{Value: v, Weight: w})
		return true
	})
	SortEntries(out)
	return out
}

// Values returns the values with non-zero weight, sorted.
func (z *ZSet) Values() []value.Value {
	entries := z.Entries()
	out := make([]value.Value, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}

// Equal reports whether both ZSets hold the same weights.
func (z *ZSet) Equal(other *ZSet) bool {
	if z.Len() != other.Len() {
		return false
	}
	if z == nil || other == nil {
		return true
	}
	for k, e := range z.entries {
		o, ok := other.entries[k]
		if !ok || o.Weight != e.Weight {
			return false
		}
	}
	return true
}

// String renders entries in value order, e.g. {(1,2):+1, (2,3):-1}.
func (z *ZSet) String() string {
	entries := z.Entries()
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (e Entry) String() string {
	return e.Value.String() + ":" + FormatWeight(e.Weight)
}

// Diff returns after - before.
func Diff(before, after *ZSet) *ZSet {
	return after.Clone().MergeScaled(before, -1)
}

// SortEntries sorts entries by value order.
func SortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		return value.Compare(a.Value, b.Value)
	})
}

// FormatWeight renders a weight with an explicit sign.
func FormatWeight(w Weight) string {
	if w > 0 {
		return "+" + value.Int(w).String()
	}
	return value.Int(w).String()
}
