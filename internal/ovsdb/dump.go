package ovsdb

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/ddflow/internal/program"
	"github.com/roach88/ddflow/internal/value"
	"github.com/roach88/ddflow/internal/zset"
)

// Delta yields the net change of a relation. *engine.DeltaMap implements it.
type Delta interface {
	Get(rel program.RelID) []zset.Entry
}

// WeightError reports a delta entry whose weight does not fit the table it
// is dumped from: delta tables admit +1 only, output tables ±1.
type WeightError struct {
	Relation string
	Value    value.Value
	Weight   zset.Weight
}

func (e *WeightError) Error() string {
	return fmt.Sprintf("%s: unexpected weight %s for %s", e.Relation, zset.FormatWeight(e.Weight), e.Value)
}

type opKind int

const (
	opInsert opKind = iota
	opDelete
	opUpdate
)

// DumpDeltaTables renders the changes of <module>::DeltaPlus_<table> as
// inserts, <module>::DeltaMinus_<table> as deletes and
// <module>::Update_<table> as updates, in that order. DeltaPlus must exist;
// the other two are optional. Operations name the Original of
// <module>::<table> (or of DeltaPlus) when set, table otherwise.
func DumpDeltaTables(cat Catalog, delta Delta, module, table string) (string, error) {
	ovsTable := originalTable(cat, table, module+"::"+table, module+"::DeltaPlus_"+table)
	var cmds []string
	parts := []struct {
		prefix   string
		op       opKind
		required bool
	}{
		{"DeltaPlus_", opInsert, true},
		{"DeltaMinus_", opDelete, false},
		{"Update_", opUpdate, false},
	}
	for _, p := range parts {
		name := module + "::" + p.prefix + table
		id, ok := cat.RelationID(name)
		if !ok {
			if p.required {
				return "", errors.Newf("unknown table %s", name)
			}
			continue
		}
		rel, _ := cat.Relation(id)
		for _, e := range delta.Get(id) {
			if e.Weight != 1 {
				return "", &WeightError{Relation: name, Value: e.Value, Weight: e.Weight}
			}
			cmd, err := render(p.op, ovsTable, rel.Schema, e.Value)
			if err != nil {
				return "", errors.Wrap(err, name)
			}
			cmds = append(cmds, cmd)
		}
	}
	return strings.Join(cmds, ","), nil
}

// DumpOutputTable renders the changes of <module>::Out_<table>: weight +1
// as insert and -1 as delete. The relation's Original, when set, names the
// table in the operations.
func DumpOutputTable(cat Catalog, delta Delta, module, table string) (string, error) {
	name := module + "::Out_" + table
	id, ok := cat.RelationID(name)
	if !ok {
		return "", errors.Newf("unknown table %s", name)
	}
	rel, _ := cat.Relation(id)
	ovsTable := originalTable(cat, table, name)

	var cmds []string
	for _, e := range delta.Get(id) {
		var op opKind
		switch e.Weight {
		case 1:
			op = opInsert
		case -1:
			op = opDelete
		default:
			return "", &WeightError{Relation: name, Value: e.Value, Weight: e.Weight}
		}
		cmd, err := render(op, ovsTable, rel.Schema, e.Value)
		if err != nil {
			return "", errors.Wrap(err, name)
		}
		cmds = append(cmds, cmd)
	}
	return strings.Join(cmds, ","), nil
}

// originalTable returns the first Original set on the named relations, or
// table.
func originalTable(cat Catalog, table string, names ...string) string {
	for _, name := range names {
		id, ok := cat.RelationID(name)
		if !ok {
			continue
		}
		if rel, ok := cat.Relation(id); ok && rel.Original != "" {
			return rel.Original
		}
	}
	return table
}

type operation struct {
	Op       string         `json:"op"`
	Table    string         `json:"table"`
	UUIDName string         `json:"uuid-name,omitempty"`
	Where    []any          `json:"where,omitempty"`
	Row      map[string]any `json:"row,omitempty"`
}

func render(op opKind, table string, schema value.Schema, v value.Value) (string, error) {
	row, ok := v.(value.Tuple)
	if !ok || len(row) != len(schema) {
		return "", errors.Newf("record %s does not match schema %s", v, schema)
	}

	var uuid string
	cols := make(map[string]any, len(schema))
	for i, f := range schema {
		if f.Name == UUIDColumn {
			s, ok := row[i].(value.String)
			if !ok {
				return "", errors.Newf("%s must be a string, got %s", UUIDColumn, row[i].Kind())
			}
			uuid = string(s)
			continue
		}
		d, err := toDatum(row[i])
		if err != nil {
			return "", errors.Wrapf(err, "column %s", f.Name)
		}
		cols[f.Name] = d
	}

	o := operation{Table: table}
	switch op {
	case opInsert:
		o.Op = "insert"
		o.Row = cols
		if uuid != "" {
			o.UUIDName = uuidName(uuid)
		}
	case opDelete, opUpdate:
		if uuid == "" {
			return "", errors.Newf("record %s has no %s", v, UUIDColumn)
		}
		o.Where = []any{[]any{UUIDColumn, "==", []any{"uuid", uuid}}}
		if op == opDelete {
			o.Op = "delete"
		} else {
			o.Op = "update"
			o.Row = cols
		}
	}
	return marshal(o)
}
