package engine

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/roach88/ddflow/internal/program"
	"github.com/roach88/ddflow/internal/value"
	"github.com/roach88/ddflow/internal/zset"
)

// UpdateKind distinguishes inserts from deletes.
type UpdateKind int

const (
	// InsertKind adds a value to an input relation.
	InsertKind UpdateKind = iota + 1
	// DeleteValueKind removes a value from an input relation.
	DeleteValueKind
)

func (k UpdateKind) String() string {
	switch k {
	case InsertKind:
		return "insert"
	case DeleteValueKind:
		return "delete"
	default:
		return "update(" + strconv.Itoa(int(k)) + ")"
	}
}

// Update is one change to an input relation.
type Update struct {
	Kind     UpdateKind
	Relation program.RelID
	Value    value.Value
}

// Insert builds an insert update.
func Insert(rel program.RelID, v value.Value) Update {
	return Update{Kind: InsertKind, Relation: rel, Value: v}
}

// Delete builds a delete-by-value update.
func Delete(rel program.RelID, v value.Value) Update {
	return Update{Kind: DeleteValueKind, Relation: rel, Value: v}
}

// ApplyTransaction applies updates atomically and returns the net change
// of every tracked relation.
//
// Input relations have set semantics: inserting a present value or deleting
// an absent one has no effect, and only the net effect per value reaches
// the rules. When any update fails validation the transaction is rejected
// with SCHEMA_MISMATCH or UNKNOWN_RELATION and no state changes.
//
// ctx is only checked before the transaction starts; a started transaction
// runs to completion.
func (e *Engine) ApplyTransaction(ctx context.Context, updates []Update) (*DeltaMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "apply transaction")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply(updates)
}

// apply runs one transaction. Caller holds e.mu.
func (e *Engine) apply(updates []Update) (*DeltaMap, error) {
	if e.poisoned != nil {
		return nil, e.poisoned
	}

	inputs, err := e.prepare(updates)
	if err != nil {
		return nil, err
	}

	txn := TxnInfo{ID: e.idGen.Generate(), Seq: e.clock.Next()}
	t := newTxnState()

	for _, rel := range sortedRelIDs(inputs) {
		visible := e.rels[rel].integrate(inputs[rel])
		e.publish(t, rel, visible)
	}

	for i := range e.plan.Strata {
		if err := e.evalStratum(t, &e.plan.Strata[i]); err != nil {
			e.poisoned = err
			e.state.set(State{Phase: Idle})
			e.logger.Error("transaction aborted, engine poisoned", "txn", txn.ID, "error", err)
			return nil, err
		}
	}
	e.state.set(State{Phase: Idle})

	dm := newDeltaMap(txn)
	for rel, d := range t.rels {
		if d.IsEmpty() || !e.tracked(rel) {
			continue
		}
		dm.deltas[rel] = d
	}

	e.metrics.transactions.Inc()
	e.metrics.deltaSize.Observe(float64(dm.Size()))
	e.logger.Debug("transaction committed",
		"txn", txn.ID,
		"seq", txn.Seq,
		"updates", len(updates),
		"changed_relations", len(dm.deltas),
	)

	for _, rel := range dm.Relations() {
		entries := dm.Get(rel)
		for _, fn := range e.observers[rel] {
			fn(txn, entries)
		}
	}
	return dm, nil
}

// prepare validates every update and folds them into one net delta per
// input relation. Nothing is mutated.
func (e *Engine) prepare(updates []Update) (map[program.RelID]*zset.ZSet, error) {
	// pending tracks the presence each touched value has after the updates
	// seen so far; it starts from the committed content.
	type change struct {
		v       value.Value
		before  bool
		present bool
	}
	pending := make(map[program.RelID]map[string]*change)

	for i, u := range updates {
		r, ok := e.graph.Relation(u.Relation)
		if !ok {
			return nil, newUnknownRelation("relation", map[string]string{
				"id":     relIDString(u.Relation),
				"update": strconv.Itoa(i),
			})
		}
		if r.Role != program.Input {
			return nil, newSchemaMismatch(r.Name, "updates may only target input relations", nil)
		}
		if u.Kind != InsertKind && u.Kind != DeleteValueKind {
			return nil, newSchemaMismatch(r.Name, "unsupported update kind "+u.Kind.String(), nil)
		}
		if err := value.Conform(r.Schema, u.Value); err != nil {
			return nil, newSchemaMismatch(r.Name, "value does not match schema", err)
		}

		changes, ok := pending[u.Relation]
		if !ok {
			changes = make(map[string]*change)
			pending[u.Relation] = changes
		}
		k := value.Key(u.Value)
		c, ok := changes[k]
		if !ok {
			present := e.rels[u.Relation].contains(u.Value)
			c = &change{v: u.Value, before: present, present: present}
			changes[k] = c
		}
		c.present = u.Kind == InsertKind
	}

	out := make(map[program.RelID]*zset.ZSet)
	for rel, changes := range pending {
		d := zset.New()
		for _, c := range changes {
			switch {
			case !c.before && c.present:
				d.Add(c.v, 1)
			case c.before && !c.present:
				d.Add(c.v, -1)
			}
		}
		if !d.IsEmpty() {
			out[rel] = d
		}
	}
	return out, nil
}

func relIDString(rel program.RelID) string {
	return strconv.Itoa(int(rel))
}
