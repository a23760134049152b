package graphspec

// ProgramDesc is the serialized form of a program.
type ProgramDesc struct {
	Name         string            `json:"name" yaml:"name"`
	Relations    []RelationDesc    `json:"relations" yaml:"relations"`
	Arrangements []ArrangementDesc `json:"arrangements,omitempty" yaml:"arrangements,omitempty"`
	Rules        []RuleDesc        `json:"rules,omitempty" yaml:"rules,omitempty"`
	Facts        []FactDesc        `json:"facts,omitempty" yaml:"facts,omitempty"`
}

// RelationDesc declares a relation. Role is "input" or "derived". Original
// names the OVSDB table the relation mirrors when it differs from Name.
type RelationDesc struct {
	Name     string      `json:"name" yaml:"name"`
	Role     string      `json:"role" yaml:"role"`
	Distinct bool        `json:"distinct,omitempty" yaml:"distinct,omitempty"`
	Output   bool        `json:"output,omitempty" yaml:"output,omitempty"`
	Original string      `json:"original,omitempty" yaml:"original,omitempty"`
	Fields   []FieldDesc `json:"fields" yaml:"fields"`
}

// FieldDesc is one schema column. Type is bool, int, string, tuple or array.
type FieldDesc struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// ArrangementDesc declares an arrangement of a relation keyed by the named
// fields. An empty Key arranges by the whole row.
type ArrangementDesc struct {
	Name      string   `json:"name" yaml:"name"`
	Relation  string   `json:"relation" yaml:"relation"`
	Kind      string   `json:"kind,omitempty" yaml:"kind,omitempty"`
	Key       []string `json:"key,omitempty" yaml:"key,omitempty"`
	Queryable bool     `json:"queryable,omitempty" yaml:"queryable,omitempty"`
}

// RuleDesc feeds Source through Stages into Target.
type RuleDesc struct {
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Target      string      `json:"target" yaml:"target"`
	Source      string      `json:"source" yaml:"source"`
	Stages      []StageDesc `json:"stages,omitempty" yaml:"stages,omitempty"`
}

// StageDesc holds exactly one stage.
type StageDesc struct {
	FilterMap *FilterMapDesc `json:"filter_map,omitempty" yaml:"filter_map,omitempty"`
	Join      *JoinDesc      `json:"join,omitempty" yaml:"join,omitempty"`
	Semijoin  *JoinDesc      `json:"semijoin,omitempty" yaml:"semijoin,omitempty"`
	Arrange   *ArrangeDesc   `json:"arrange,omitempty" yaml:"arrange,omitempty"`
	Aggregate *AggregateDesc `json:"aggregate,omitempty" yaml:"aggregate,omitempty"`
	Transform *TransformDesc `json:"transform,omitempty" yaml:"transform,omitempty"`
}

// FilterMapDesc keeps rows satisfying every condition, then projects.
type FilterMapDesc struct {
	Where   []CondDesc `json:"where,omitempty" yaml:"where,omitempty"`
	Project []any      `json:"project,omitempty" yaml:"project,omitempty"`
}

// CondDesc compares two operands with one of ==, !=, <, <=, >, >=.
type CondDesc struct {
	Left  any    `json:"left" yaml:"left"`
	Op    string `json:"op" yaml:"op"`
	Right any    `json:"right" yaml:"right"`
}

// JoinDesc matches rows against an arrangement. For a join the row after
// the stage is the left row followed by the arranged row; for a semijoin it
// is the left row. Project then applies to that row. An empty Key uses the
// key of a preceding arrange stage.
type JoinDesc struct {
	Arrangement string `json:"arrangement" yaml:"arrangement"`
	Key         []any  `json:"key,omitempty" yaml:"key,omitempty"`
	Project     []any  `json:"project,omitempty" yaml:"project,omitempty"`
}

// ArrangeDesc re-keys rows. An empty Value keeps the whole row.
type ArrangeDesc struct {
	Key   []any `json:"key" yaml:"key"`
	Value []any `json:"value,omitempty" yaml:"value,omitempty"`
}

// AggregateDesc reduces each group of a preceding arrange stage. Column,
// when set, selects one column of the arranged value before reducing; N is
// the index for the nth reducer. The row after the stage is the key columns
// followed by the result.
type AggregateDesc struct {
	Reducer string `json:"reducer" yaml:"reducer"`
	Column  *int   `json:"column,omitempty" yaml:"column,omitempty"`
	N       int    `json:"n,omitempty" yaml:"n,omitempty"`
	Project []any  `json:"project,omitempty" yaml:"project,omitempty"`
}

// TransformDesc applies a named whole-collection function. The only
// function is "scc": Edge picks the source and destination columns of each
// row, and the output rows are (node, smallest node of its cycle).
type TransformDesc struct {
	Function string `json:"function" yaml:"function"`
	Edge     []any  `json:"edge,omitempty" yaml:"edge,omitempty"`
}

// FactDesc seeds an input relation. Each value is a row, positional or
// keyed by field name.
type FactDesc struct {
	Relation string `json:"relation" yaml:"relation"`
	Values   []any  `json:"values" yaml:"values"`
}
