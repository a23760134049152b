package engine

import (
	"slices"

	"github.com/roach88/ddflow/internal/program"
	"github.com/roach88/ddflow/internal/zset"
)

// TxnInfo identifies a committed transaction.
type TxnInfo struct {
	ID  string `json:"id"`
	Seq int64  `json:"seq"`
}

// Observer receives the net delta of one relation after each transaction
// that changed it. Observers run while the engine lock is held and must not
// call back into the engine.
type Observer func(txn TxnInfo, delta []zset.Entry)

// DeltaMap is the net change of every tracked relation in one transaction.
// Relations whose net change is empty are absent.
type DeltaMap struct {
	Txn    TxnInfo
	deltas map[program.RelID]*zset.ZSet
}

func newDeltaMap(txn TxnInfo) *DeltaMap {
	return &DeltaMap{Txn: txn, deltas: make(map[program.RelID]*zset.ZSet)}
}

// Get returns the net change of rel sorted by value, nil when unchanged.
func (d *DeltaMap) Get(rel program.RelID) []zset.Entry {
	z, ok := d.deltas[rel]
	if !ok {
		return nil
	}
	return z.Entries()
}

// ZSet returns the net change of rel, an empty ZSet when unchanged.
func (d *DeltaMap) ZSet(rel program.RelID) *zset.ZSet {
	if z, ok := d.deltas[rel]; ok {
		return z.Clone()
	}
	return zset.New()
}

// Relations lists the changed relations in id order.
func (d *DeltaMap) Relations() []program.RelID {
	rels := make([]program.RelID, 0, len(d.deltas))
	for r := range d.deltas {
		rels = append(rels, r)
	}
	slices.Sort(rels)
	return rels
}

// IsEmpty reports whether no tracked relation changed.
func (d *DeltaMap) IsEmpty() bool {
	return len(d.deltas) == 0
}

// Size returns the total number of entries across relations.
func (d *DeltaMap) Size() int {
	n := 0
	for _, z := range d.deltas {
		n += z.Len()
	}
	return n
}
