package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/ddflow/internal/arrangement"
	"github.com/roach88/ddflow/internal/dataflow"
	"github.com/roach88/ddflow/internal/program"
	"github.com/roach88/ddflow/internal/value"
	"github.com/roach88/ddflow/internal/zset"
)

// Engine evaluates one program incrementally.
//
// All name tables, arrangements and stage states live on the Engine; two
// engines built from the same graph share nothing but the graph.
type Engine struct {
	mu sync.Mutex

	graph     *program.Graph
	plan      *program.Plan
	rels      []*relState
	arrs      []*arrangement.Arrangement
	pipelines []*dataflow.Pipeline // indexed like graph.Rules
	relNames  map[string]program.RelID
	arrNames  map[string]program.ArrID
	observers map[program.RelID][]Observer

	workers       int
	retain        bool
	maxIterations int
	registerer    prometheus.Registerer
	logger        *slog.Logger
	idGen         IDGenerator

	clock    *Clock
	metrics  *metrics
	state    stateBox
	poisoned error
	initial  *DeltaMap
}

// Build validates and stratifies g, allocates relation, arrangement and
// stage state, and applies g's facts as the first transaction.
//
// Returns a GRAPH_ERROR wrapping program.ValidationErrors when g is invalid.
func Build(g *program.Graph, opts ...Option) (*Engine, error) {
	if g == nil {
		return nil, newGraphError(errors.New("nil graph"))
	}
	if errs := program.Validate(g); len(errs) > 0 {
		return nil, newGraphError(program.ValidationErrors(errs))
	}
	plan, errs := program.Stratify(g)
	if len(errs) > 0 {
		return nil, newGraphError(program.ValidationErrors(errs))
	}

	e := &Engine{
		graph:     g,
		plan:      plan,
		relNames:  make(map[string]program.RelID, len(g.Relations)),
		arrNames:  make(map[string]program.ArrID, len(g.Arrangements)),
		observers: make(map[program.RelID][]Observer),
		workers:   1,
		clock:     NewClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.idGen == nil {
		e.idGen = UUIDv7Generator{}
	}
	if e.registerer == nil {
		e.registerer = prometheus.NewRegistry()
	}

	m, err := newMetrics(e.registerer, g.Name)
	if err != nil {
		return nil, errors.Wrap(err, "build engine")
	}
	e.metrics = m

	e.allocate()

	e.logger.Info("program built",
		"program", g.Name,
		"relations", len(g.Relations),
		"arrangements", len(g.Arrangements),
		"rules", len(g.Rules),
		"strata", len(plan.Strata),
		"workers", e.workers,
	)

	if len(g.Facts) > 0 {
		updates := make([]Update, len(g.Facts))
		for i, f := range g.Facts {
			updates[i] = Insert(f.Relation, f.Value)
		}
		e.mu.Lock()
		delta, err := e.apply(updates)
		e.mu.Unlock()
		if err != nil {
			return nil, errors.Wrap(err, "apply initial facts")
		}
		e.initial = delta
	}
	return e, nil
}

// allocate creates relation states, arrangements and pipelines.
func (e *Engine) allocate() {
	g := e.graph

	// Relations that must keep content: inputs (set semantics), members of
	// recursive strata (rebuild diff) and their upstream sources (rebuild
	// input).
	keep := make([]bool, len(g.Relations))
	distinct := make([]bool, len(g.Relations))
	for i, r := range g.Relations {
		keep[i] = e.retain || r.Role == program.Input
		distinct[i] = r.Distinct
	}
	for _, s := range e.plan.Strata {
		if !s.Recursive {
			continue
		}
		for _, r := range s.Relations {
			keep[r] = true
			distinct[r] = true
		}
		for _, ri := range s.Rules {
			src := g.Rules[ri].Source
			if e.plan.StratumOf[src] != s.Index {
				keep[src] = true
			}
		}
	}

	e.rels = make([]*relState, len(g.Relations))
	for i := range g.Relations {
		r := &g.Relations[i]
		e.rels[i] = newRelState(r, distinct[i] && r.Role != program.Input, keep[i])
		e.relNames[r.Name] = r.ID
	}

	e.arrs = make([]*arrangement.Arrangement, len(g.Arrangements))
	for i := range g.Arrangements {
		a := &g.Arrangements[i]
		e.arrs[i] = arrangement.New(a.Name, a.Kind, a.Key, e.workers)
		e.arrNames[a.Name] = a.ID
		owner := e.rels[a.Relation]
		owner.arrs = append(owner.arrs, a.ID)
	}

	e.pipelines = make([]*dataflow.Pipeline, len(g.Rules))
	for i, r := range g.Rules {
		e.pipelines[i] = dataflow.NewPipeline(r.Stages, e.workers)
	}
}

// Graph returns the program the engine was built from.
func (e *Engine) Graph() *program.Graph { return e.graph }

// Plan returns the stratification of the program.
func (e *Engine) Plan() *program.Plan { return e.plan }

// State returns the current phase. Safe to call from any goroutine.
func (e *Engine) State() State { return e.state.get() }

// InitialDelta returns the DeltaMap produced by the program's facts, or
// nil when the program declares none.
func (e *Engine) InitialDelta() *DeltaMap { return e.initial }

// RelationID resolves a relation name.
func (e *Engine) RelationID(name string) (program.RelID, bool) {
	id, ok := e.relNames[name]
	return id, ok
}

// RelationName returns the name of rel, "" when unknown.
func (e *Engine) RelationName(rel program.RelID) string {
	if r, ok := e.graph.Relation(rel); ok {
		return r.Name
	}
	return ""
}

// Relation returns the declaration of rel.
func (e *Engine) Relation(rel program.RelID) (*program.Relation, bool) {
	return e.graph.Relation(rel)
}

// RegisterObserver subscribes fn to the net changes of rel and makes rel a
// tracked relation of every later DeltaMap.
func (e *Engine) RegisterObserver(rel program.RelID, fn Observer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.graph.Relation(rel); !ok {
		return newUnknownRelation("relation", map[string]string{"id": relIDString(rel)})
	}
	e.observers[rel] = append(e.observers[rel], fn)
	return nil
}

// Snapshot returns the full content of rel sorted by value.
// Requires WithRetention(true); otherwise returns NOT_RETAINED.
func (e *Engine) Snapshot(rel program.RelID) ([]zset.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.graph.Relation(rel)
	if !ok {
		return nil, newUnknownRelation("relation", map[string]string{"id": relIDString(rel)})
	}
	if !e.retain {
		return nil, &Error{
			Code:     ErrCodeNotRetained,
			Message:  "engine was built without retention",
			Relation: r.Name,
		}
	}
	return e.rels[rel].content.Entries(), nil
}

// Lookup returns the values stored under key in a queryable arrangement,
// sorted by value. Set arrangements yield the key itself when present.
func (e *Engine) Lookup(ctx context.Context, arrName string, key value.Value) ([]zset.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "lookup")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	id, ok := e.arrNames[arrName]
	if !ok {
		return nil, newUnknownRelation("arrangement", map[string]string{"name": arrName})
	}
	if !e.graph.Arrangements[id].Queryable {
		return nil, &Error{
			Code:     ErrCodeNotQueryable,
			Message:  "arrangement is not queryable",
			Relation: arrName,
		}
	}
	return e.arrs[id].Get(key), nil
}

// tracked reports whether rel's changes belong in the DeltaMap.
func (e *Engine) tracked(rel program.RelID) bool {
	return e.graph.Relations[rel].Output || len(e.observers[rel]) > 0
}
