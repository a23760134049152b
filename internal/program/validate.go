package program

import (
	"fmt"
	"strings"

	"github.com/roach88/ddflow/internal/arrangement"
	"github.com/roach88/ddflow/internal/dataflow"
	"github.com/roach88/ddflow/internal/value"
)

// Validation error codes (G100-G199)
const (
	// Declaration errors (G101-G105)
	ErrEmptyName            = "G101" // relation or arrangement name is empty
	ErrDuplicateRelation    = "G102" // relation name declared twice
	ErrDuplicateArrangement = "G103" // arrangement name declared twice
	ErrIDMismatch           = "G104" // id does not match declaration position
	ErrInvalidSchema        = "G105" // field without name or kind

	// Reference errors (G110-G119)
	ErrUnknownRelation    = "G110" // rule, arrangement or fact names a missing relation
	ErrUnknownArrangement = "G111" // stage names a missing arrangement
	ErrRuleTargetsInput   = "G112" // rules may only write derived relations
	ErrArrangementKind    = "G113" // join needs a map arrangement, semijoin a set
	ErrMissingFunction    = "G114" // key function, reducer or stage missing
	ErrUnkeyedInput       = "G115" // stage needs keyed rows from an arrange stage

	// Fact errors (G120-G129)
	ErrFactOnDerived = "G120" // facts may only seed input relations
	ErrFactSchema    = "G121" // fact does not match relation schema

	// Stratification errors (G130-G139)
	ErrRecursiveAggregate = "G130" // aggregate inside a recursive stratum
	ErrRecursiveTransform = "G131" // transform inside a recursive stratum
)

// ValidationError represents one problem found in a graph.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors carries every problem found in one graph.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, ve := range e {
		parts[i] = ve.Error()
	}
	return strings.Join(parts, "; ")
}

// Validate checks declarations and references of g.
// Returns all errors found (does not fail-fast).
func Validate(g *Graph) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateRelations(g)...)
	errs = append(errs, validateArrangements(g)...)
	for i := range g.Rules {
		errs = append(errs, validateRule(g, i)...)
	}
	errs = append(errs, validateFacts(g)...)
	return errs
}

func validateRelations(g *Graph) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for i, r := range g.Relations {
		field := fmt.Sprintf("relations[%d]", i)
		if r.ID != RelID(i) {
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Message: fmt.Sprintf("id %d does not match position %d", r.ID, i),
				Code:    ErrIDMismatch,
			})
		}
		if strings.TrimSpace(r.Name) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: "relation name is required",
				Code:    ErrEmptyName,
			})
		} else if seen[r.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate relation name %q", r.Name),
				Code:    ErrDuplicateRelation,
			})
		}
		seen[r.Name] = true

		for j, f := range r.Schema {
			if f.Name == "" || f.Kind == value.KindInvalid {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.schema[%d]", field, j),
					Message: "field needs a name and a kind",
					Code:    ErrInvalidSchema,
				})
			}
		}
	}
	return errs
}

func validateArrangements(g *Graph) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for i, a := range g.Arrangements {
		field := fmt.Sprintf("arrangements[%d]", i)
		if a.ID != ArrID(i) {
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Message: fmt.Sprintf("id %d does not match position %d", a.ID, i),
				Code:    ErrIDMismatch,
			})
		}
		if strings.TrimSpace(a.Name) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: "arrangement name is required",
				Code:    ErrEmptyName,
			})
		} else if seen[a.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate arrangement name %q", a.Name),
				Code:    ErrDuplicateArrangement,
			})
		}
		seen[a.Name] = true

		if _, ok := g.Relation(a.Relation); !ok {
			errs = append(errs, ValidationError{
				Field:   field + ".relation",
				Message: fmt.Sprintf("unknown relation id %d", a.Relation),
				Code:    ErrUnknownRelation,
			})
		}
		if a.Key == nil {
			errs = append(errs, ValidationError{
				Field:   field + ".key",
				Message: "arrangement needs a key function",
				Code:    ErrMissingFunction,
			})
		}
	}
	return errs
}

func validateRule(g *Graph, i int) []ValidationError {
	var errs []ValidationError
	r := &g.Rules[i]
	field := fmt.Sprintf("rules[%d]", i)

	if target, ok := g.Relation(r.Target); !ok {
		errs = append(errs, ValidationError{
			Field:   field + ".target",
			Message: fmt.Sprintf("unknown relation id %d", r.Target),
			Code:    ErrUnknownRelation,
		})
	} else if target.Role == Input {
		errs = append(errs, ValidationError{
			Field:   field + ".target",
			Message: fmt.Sprintf("rule writes input relation %q", target.Name),
			Code:    ErrRuleTargetsInput,
		})
	}
	if _, ok := g.Relation(r.Source); !ok {
		errs = append(errs, ValidationError{
			Field:   field + ".source",
			Message: fmt.Sprintf("unknown relation id %d", r.Source),
			Code:    ErrUnknownRelation,
		})
	}

	keyed := false
	for j, s := range r.Stages {
		sf := fmt.Sprintf("%s.stages[%d]", field, j)
		switch st := s.(type) {
		case nil:
			errs = append(errs, ValidationError{Field: sf, Message: "stage is nil", Code: ErrMissingFunction})
		case dataflow.FilterMap:
			keyed = false
		case dataflow.Arrange:
			if st.Key == nil {
				errs = append(errs, ValidationError{Field: sf + ".key", Message: "arrange needs a key function", Code: ErrMissingFunction})
			}
			keyed = true
			continue
		case dataflow.Join:
			errs = append(errs, checkStageArrangement(g, sf, st.Arrangement, arrangement.Map)...)
			if st.Key == nil && !keyed {
				errs = append(errs, ValidationError{Field: sf + ".key", Message: "join without key function must follow an arrange stage", Code: ErrUnkeyedInput})
			}
		case dataflow.Semijoin:
			errs = append(errs, checkStageArrangement(g, sf, st.Arrangement, arrangement.Set)...)
			if st.Key == nil && !keyed {
				errs = append(errs, ValidationError{Field: sf + ".key", Message: "semijoin without key function must follow an arrange stage", Code: ErrUnkeyedInput})
			}
		case dataflow.Aggregate:
			if !keyed {
				errs = append(errs, ValidationError{Field: sf, Message: "aggregate must follow an arrange stage", Code: ErrUnkeyedInput})
			}
			switch red := st.Reducer.(type) {
			case nil:
				errs = append(errs, ValidationError{Field: sf + ".reducer", Message: "aggregate needs a reducer", Code: ErrMissingFunction})
			case dataflow.Fold:
				if red.Fn == nil {
					errs = append(errs, ValidationError{Field: sf + ".reducer", Message: "fold needs a function", Code: ErrMissingFunction})
				}
			}
		case dataflow.Transform:
			if st.Fn == nil {
				errs = append(errs, ValidationError{Field: sf + ".fn", Message: "transform needs a function", Code: ErrMissingFunction})
			}
		}
		keyed = false
	}
	return errs
}

func checkStageArrangement(g *Graph, field string, id ArrID, want arrangement.Kind) []ValidationError {
	a, ok := g.Arrangement(id)
	if !ok {
		return []ValidationError{{
			Field:   field + ".arrangement",
			Message: fmt.Sprintf("unknown arrangement id %d", id),
			Code:    ErrUnknownArrangement,
		}}
	}
	if a.Kind != want {
		return []ValidationError{{
			Field:   field + ".arrangement",
			Message: fmt.Sprintf("arrangement %q is a %s arrangement, stage needs %s", a.Name, a.Kind, want),
			Code:    ErrArrangementKind,
		}}
	}
	return nil
}

func validateFacts(g *Graph) []ValidationError {
	var errs []ValidationError
	for i, f := range g.Facts {
		field := fmt.Sprintf("facts[%d]", i)
		r, ok := g.Relation(f.Relation)
		if !ok {
			errs = append(errs, ValidationError{
				Field:   field + ".relation",
				Message: fmt.Sprintf("unknown relation id %d", f.Relation),
				Code:    ErrUnknownRelation,
			})
			continue
		}
		if r.Role != Input {
			errs = append(errs, ValidationError{
				Field:   field + ".relation",
				Message: fmt.Sprintf("fact targets derived relation %q", r.Name),
				Code:    ErrFactOnDerived,
			})
		}
		if err := value.Conform(r.Schema, f.Value); err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".value",
				Message: fmt.Sprintf("%s: %v", r.Name, err),
				Code:    ErrFactSchema,
			})
		}
	}
	return errs
}
