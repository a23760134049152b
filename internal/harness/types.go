package harness

import (
	"github.com/roach88/ddflow/internal/value"
	"github.com/roach88/ddflow/internal/zset"
)

// Change is one row of a recorded delta.
type Change struct {
	Relation string      `json:"relation"`
	Row      value.Value `json:"row"`
	Weight   zset.Weight `json:"weight"`
	label    string
}

// TxnTrace records the outcome of one scenario transaction. Index 0 is the
// transaction that applied the program's facts.
type TxnTrace struct {
	Index       int      `json:"index"`
	Description string   `json:"description,omitempty"`
	ID          string   `json:"id,omitempty"`
	Seq         int64    `json:"seq,omitempty"`
	Error       string   `json:"error,omitempty"`
	Changes     []Change `json:"changes"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expectation, snapshot and
	// assertion held.
	Pass bool `json:"pass"`

	// Trace holds one entry per transaction, facts first when present.
	Trace []TxnTrace `json:"trace"`

	// Errors contains mismatch messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TxnTrace{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Changes returns every recorded change of relation in trace order.
func (r *Result) Changes(relation string) []Change {
	var out []Change
	for _, t := range r.Trace {
		for _, c := range t.Changes {
			if c.Relation == relation {
				out = append(out, c)
			}
		}
	}
	return out
}
