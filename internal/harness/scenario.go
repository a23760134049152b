package harness

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of transactions against one program,
// with the deltas and final contents each step is expected to produce.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is the path of the program description (CUE, YAML or JSON).
	// LoadScenario resolves it relative to the scenario file.
	Program string `yaml:"program"`

	// Workers is the engine worker count. Zero means one.
	Workers int `yaml:"workers,omitempty"`

	// Trace lists non-output relations whose changes are recorded too.
	Trace []string `yaml:"trace,omitempty"`

	// Transactions are applied in order.
	Transactions []Transaction `yaml:"transactions"`

	// Snapshots maps relation names to their expected final rows.
	// Multiplicity is ignored.
	Snapshots map[string][][]any `yaml:"snapshots,omitempty"`

	// Assertions run after the last transaction.
	// Supported types: delta_contains, delta_count, final_state, lookup
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Transaction is one atomic batch of updates.
type Transaction struct {
	Description string   `yaml:"description,omitempty"`
	Updates     []Update `yaml:"updates"`

	// Expect maps relation names to the exact net delta of the
	// transaction. Relations not listed are not checked.
	Expect map[string][]ExpectedRow `yaml:"expect,omitempty"`

	// ExpectError is the error code the transaction must fail with,
	// e.g. SCHEMA_MISMATCH.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Update inserts or deletes rows of one relation. Exactly one of Insert
// and Delete names the relation.
type Update struct {
	Insert string `yaml:"insert,omitempty"`
	Delete string `yaml:"delete,omitempty"`
	Values []any  `yaml:"values"`
}

// Relation returns the relation named by the update and whether it is an
// insert.
func (u Update) Relation() (string, bool) {
	if u.Insert != "" {
		return u.Insert, true
	}
	return u.Delete, false
}

// ExpectedRow is one row of an expected delta. A zero Weight means +1.
type ExpectedRow struct {
	Row    any   `yaml:"row"`
	Weight int64 `yaml:"weight,omitempty"`
}

// weight returns the effective weight.
func (r ExpectedRow) weight() int64 {
	if r.Weight == 0 {
		return 1
	}
	return r.Weight
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "delta_contains": a transaction changed Row of Relation by Weight
	// - "delta_count": Relation changed exactly Count times across the trace
	// - "final_state": Row is present in Relation after the last transaction
	// - "lookup": Arrangement holds exactly Rows under Key
	Type string `yaml:"type"`

	Relation string `yaml:"relation,omitempty"`
	Row      any    `yaml:"row,omitempty"`

	// Weight defaults to +1 (used by delta_contains).
	Weight int64 `yaml:"weight,omitempty"`

	// Txn restricts delta_contains to one transaction (1-based). Zero
	// searches the whole trace.
	Txn int `yaml:"txn,omitempty"`

	// Count is the expected number of changes (used by delta_count).
	Count int `yaml:"count,omitempty"`

	Arrangement string `yaml:"arrangement,omitempty"`
	Key         any    `yaml:"key,omitempty"`
	Rows        []any  `yaml:"rows,omitempty"`
}

// Assertion type constants.
const (
	AssertDeltaContains = "delta_contains"
	AssertDeltaCount    = "delta_count"
	AssertFinalState    = "final_state"
	AssertLookup        = "lookup"
)

// LoadScenario reads and parses a scenario YAML file, resolving the
// program path relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the program path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario file")
	}

	// Strict decoding catches typos like "snapshot:" vs "snapshots:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, errors.Wrap(err, "parse YAML")
	}

	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) && basePath != "" {
		scenario.Program = filepath.Join(basePath, scenario.Program)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, errors.Wrap(err, "invalid scenario")
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if s.Program == "" {
		return errors.New("program is required")
	}
	if _, err := os.Stat(s.Program); os.IsNotExist(err) {
		return errors.Newf("program file not found: %s", s.Program)
	}
	if s.Workers < 0 {
		return errors.New("workers must be non-negative")
	}
	if len(s.Transactions) == 0 {
		return errors.New("transactions list is required and must be non-empty")
	}

	for i, txn := range s.Transactions {
		if len(txn.Updates) == 0 {
			return errors.Newf("transactions[%d]: updates list is required and must be non-empty", i)
		}
		for j, u := range txn.Updates {
			if (u.Insert == "") == (u.Delete == "") {
				return errors.Newf("transactions[%d].updates[%d]: exactly one of insert and delete is required", i, j)
			}
			if len(u.Values) == 0 {
				return errors.Newf("transactions[%d].updates[%d]: values is required", i, j)
			}
		}
		if txn.ExpectError != "" && len(txn.Expect) > 0 {
			return errors.Newf("transactions[%d]: expect and expect_error are exclusive", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, len(s.Transactions)); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, txns int) error {
	if a.Type == "" {
		return errors.Newf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertDeltaContains:
		if a.Relation == "" || a.Row == nil {
			return errors.Newf("assertions[%d]: relation and row are required for delta_contains", index)
		}
		if a.Txn < 0 || a.Txn > txns {
			return errors.Newf("assertions[%d]: txn %d out of range", index, a.Txn)
		}
	case AssertDeltaCount:
		if a.Relation == "" {
			return errors.Newf("assertions[%d]: relation is required for delta_count", index)
		}
		if a.Count < 0 {
			return errors.Newf("assertions[%d]: count must be non-negative for delta_count", index)
		}
	case AssertFinalState:
		if a.Relation == "" || a.Row == nil {
			return errors.Newf("assertions[%d]: relation and row are required for final_state", index)
		}
	case AssertLookup:
		if a.Arrangement == "" || a.Key == nil {
			return errors.Newf("assertions[%d]: arrangement and key are required for lookup", index)
		}
	default:
		return errors.Newf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
