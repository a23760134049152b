package ovsdb

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/roach88/ddflow/internal/engine"
	"github.com/roach88/ddflow/internal/program"
	"github.com/roach88/ddflow/internal/value"
)

// Catalog resolves relation names. *engine.Engine implements it.
type Catalog interface {
	RelationID(name string) (program.RelID, bool)
	Relation(rel program.RelID) (*program.Relation, bool)
}

type rowUpdate struct {
	Old map[string]any `json:"old"`
	New map[string]any `json:"new"`
}

// ParseTableUpdates converts an OVSDB <table-updates> object,
//
//	{"<table>": {"<uuid>": {"old": {...}, "new": {...}}}}
//
// into updates of the relations prefix+table. A row with only "new" is an
// insert, only "old" a delete, and both a delete of the old row followed by
// an insert of the new one. "old" may list only modified columns; the rest
// are taken from "new". Tables and rows are processed in name order.
func ParseTableUpdates(cat Catalog, prefix string, data []byte) ([]engine.Update, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tables map[string]map[string]rowUpdate
	if err := dec.Decode(&tables); err != nil {
		return nil, errors.Wrap(err, "parse table updates")
	}

	var updates []engine.Update
	for _, table := range sortedKeys(tables) {
		name := prefix + table
		id, ok := cat.RelationID(name)
		if !ok {
			return nil, errors.Newf("unknown relation %s for table %s", name, table)
		}
		rel, _ := cat.Relation(id)

		rows := tables[table]
		for _, uuid := range sortedKeys(rows) {
			ru := rows[uuid]
			switch {
			case ru.Old != nil && ru.New != nil:
				oldRow, err := toRow(rel, uuid, overlay(ru.New, ru.Old))
				if err != nil {
					return nil, errors.Wrapf(err, "%s %s old", table, uuid)
				}
				newRow, err := toRow(rel, uuid, ru.New)
				if err != nil {
					return nil, errors.Wrapf(err, "%s %s new", table, uuid)
				}
				updates = append(updates, engine.Delete(id, oldRow), engine.Insert(id, newRow))
			case ru.New != nil:
				row, err := toRow(rel, uuid, ru.New)
				if err != nil {
					return nil, errors.Wrapf(err, "%s %s new", table, uuid)
				}
				updates = append(updates, engine.Insert(id, row))
			case ru.Old != nil:
				row, err := toRow(rel, uuid, ru.Old)
				if err != nil {
					return nil, errors.Wrapf(err, "%s %s old", table, uuid)
				}
				updates = append(updates, engine.Delete(id, row))
			default:
				return nil, errors.Newf("%s %s: row update has neither old nor new", table, uuid)
			}
		}
	}
	return updates, nil
}

// toRow builds a tuple in schema order. Missing columns take the zero
// value of their kind; the _uuid field is the row's UUID.
func toRow(rel *program.Relation, uuid string, cols map[string]any) (value.Tuple, error) {
	for name := range cols {
		if rel.Schema.Index(name) < 0 {
			return nil, errors.Newf("relation %s has no column %q", rel.Name, name)
		}
	}
	row := make(value.Tuple, len(rel.Schema))
	for i, f := range rel.Schema {
		if f.Name == UUIDColumn {
			row[i] = value.NewString(uuid)
			continue
		}
		raw, ok := cols[f.Name]
		if !ok {
			row[i] = zero(f.Kind)
			continue
		}
		v, err := fromDatum(f.Kind, raw)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", f.Name)
		}
		row[i] = v
	}
	return row, nil
}

func overlay(base, over map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
