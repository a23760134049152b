package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/roach88/ddflow/internal/engine"
	"github.com/roach88/ddflow/internal/program"
	"github.com/roach88/ddflow/internal/value"
	"github.com/roach88/ddflow/internal/zset"
)

// ScriptError reports a command that failed while executing.
type ScriptError struct {
	Code    string
	Line    int
	Command CommandKind
	Err     error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("line %d: %s: %v", e.Line, e.Command, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// Change is one row of a commit or dump in JSON output.
type Change struct {
	Row    value.Value `json:"row"`
	Weight int64       `json:"weight"`
}

// CommitResult is the JSON payload of "commit dump_changes;".
type CommitResult struct {
	Txn     engine.TxnInfo      `json:"txn"`
	Changes map[string][]Change `json:"changes"`
}

// RowsResult is the JSON payload of dump and query_index.
type RowsResult struct {
	Name string        `json:"name"`
	Rows []value.Value `json:"rows"`
}

// Session executes script commands against one engine. Updates between
// "start;" and "commit;" are applied as a single transaction.
type Session struct {
	eng *engine.Engine
	out *OutputFormatter
	now func() time.Time

	inTxn   bool
	pending []engine.Update
}

// NewSession creates a session writing results through out.
func NewSession(eng *engine.Engine, out *OutputFormatter) *Session {
	return &Session{eng: eng, out: out, now: time.Now}
}

// Exec runs cmds in order until the first error or "exit;". Updates of a
// transaction left open at the end are discarded.
func (s *Session) Exec(ctx context.Context, cmds []Command) error {
	defer s.discard()
	for _, c := range cmds {
		stop, err := s.exec(ctx, c)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	if s.inTxn {
		s.out.VerboseLog("discarding %d update(s) of an uncommitted transaction", len(s.pending))
	}
	return nil
}

func (s *Session) discard() {
	s.inTxn = false
	s.pending = nil
}

func (s *Session) fail(c Command, code string, err error) error {
	return &ScriptError{Code: code, Line: c.Line, Command: c.Kind, Err: err}
}

func (s *Session) exec(ctx context.Context, c Command) (bool, error) {
	switch c.Kind {
	case CmdStart:
		if s.inTxn {
			return false, s.fail(c, ErrCodeScriptState, errors.New("transaction already in progress"))
		}
		s.inTxn = true

	case CmdInsert, CmdDelete:
		if !s.inTxn {
			return false, s.fail(c, ErrCodeScriptState, errors.New("no transaction in progress"))
		}
		rel, ok := s.eng.RelationID(c.Name)
		if !ok {
			return false, s.fail(c, ErrCodeTransaction, errors.Newf("unknown relation %s", c.Name))
		}
		if c.Kind == CmdInsert {
			s.pending = append(s.pending, engine.Insert(rel, c.Value))
		} else {
			s.pending = append(s.pending, engine.Delete(rel, c.Value))
		}

	case CmdCommit:
		if !s.inTxn {
			return false, s.fail(c, ErrCodeScriptState, errors.New("no transaction in progress"))
		}
		updates := s.pending
		s.discard()
		dm, err := s.eng.ApplyTransaction(ctx, updates)
		if err != nil {
			return false, s.fail(c, ErrCodeTransaction, err)
		}
		s.out.VerboseLog("committed txn %s (seq %d): %d update(s)", dm.Txn.ID, dm.Txn.Seq, len(updates))
		if c.DumpChanges {
			if err := s.writeChanges(dm); err != nil {
				return false, err
			}
		}

	case CmdRollback:
		if !s.inTxn {
			return false, s.fail(c, ErrCodeScriptState, errors.New("no transaction in progress"))
		}
		s.discard()

	case CmdDump:
		if err := s.dump(c); err != nil {
			return false, err
		}

	case CmdQueryIndex:
		if err := s.query(ctx, c); err != nil {
			return false, err
		}

	case CmdTimestamp:
		ms := s.now().UnixMilli()
		if s.out.Format == "json" {
			return false, s.out.Success(map[string]int64{"timestamp": ms})
		}
		fmt.Fprintf(s.out.Writer, "Timestamp: %d\n", ms)

	case CmdEcho:
		if s.out.Format == "json" {
			return false, s.out.Success(map[string]string{"echo": c.Text})
		}
		fmt.Fprintln(s.out.Writer, c.Text)

	case CmdExit:
		return true, nil
	}
	return false, nil
}

func (s *Session) writeChanges(dm *engine.DeltaMap) error {
	if s.out.Format == "json" {
		res := CommitResult{Txn: dm.Txn, Changes: make(map[string][]Change)}
		for _, rel := range dm.Relations() {
			var changes []Change
			for _, e := range dm.Get(rel) {
				changes = append(changes, Change{Row: e.Value, Weight: e.Weight})
			}
			res.Changes[s.eng.RelationName(rel)] = changes
		}
		return s.out.Success(res)
	}
	for _, rel := range dm.Relations() {
		r, _ := s.eng.Relation(rel)
		fmt.Fprintf(s.out.Writer, "%s:\n", r.Name)
		for _, e := range dm.Get(rel) {
			fmt.Fprintf(s.out.Writer, "%s: %s\n", value.FormatRecord(r.Name, r.Schema, e.Value), zset.FormatWeight(e.Weight))
		}
	}
	return nil
}

func (s *Session) dump(c Command) error {
	var rels []*program.Relation
	if c.Name == "" {
		for i := range s.eng.Graph().Relations {
			rels = append(rels, &s.eng.Graph().Relations[i])
		}
	} else {
		id, ok := s.eng.RelationID(c.Name)
		if !ok {
			return s.fail(c, ErrCodeTransaction, errors.Newf("unknown relation %s", c.Name))
		}
		r, _ := s.eng.Relation(id)
		rels = append(rels, r)
	}

	for _, r := range rels {
		entries, err := s.eng.Snapshot(r.ID)
		if err != nil {
			return s.fail(c, ErrCodeTransaction, err)
		}
		if err := s.writeRows(r, r.Name, entries); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) query(ctx context.Context, c Command) error {
	entries, err := s.eng.Lookup(ctx, c.Name, c.Value)
	if err != nil {
		return s.fail(c, ErrCodeTransaction, err)
	}
	a, _ := s.eng.Graph().ArrangementByName(c.Name)
	r, _ := s.eng.Relation(a.Relation)
	return s.writeRows(r, c.Name, entries)
}

func (s *Session) writeRows(r *program.Relation, name string, entries []zset.Entry) error {
	if s.out.Format == "json" {
		rows := make([]value.Value, len(entries))
		for i, e := range entries {
			rows[i] = e.Value
		}
		return s.out.Success(RowsResult{Name: name, Rows: rows})
	}
	for _, e := range entries {
		fmt.Fprintln(s.out.Writer, value.FormatRecord(r.Name, r.Schema, e.Value))
	}
	return nil
}
