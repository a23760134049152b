// Package engine maintains the relations of a program incrementally.
//
// An Engine is built once from a program.Graph. Each call to
// ApplyTransaction validates a batch of input updates, pushes their net
// effect through the strata of the program in dependency order, and
// returns the net change of every tracked relation as a DeltaMap.
//
// Thread-safety model:
//   - ApplyTransaction, Snapshot, Lookup and RegisterObserver serialize on
//     one engine mutex; there is a single logical writer
//   - State may be read from any goroutine at any time
//   - Inside a transaction, join and arrangement work is spread over
//     WithWorkers shards; each round ends at an errgroup barrier
//
// INVARIANTS:
//   - A failed transaction (SCHEMA_MISMATCH, UNKNOWN_RELATION) leaves every
//     relation unchanged: updates are validated before any mutation
//   - Every arrangement delta is delivered exactly once to each pipeline
//     reading it, after it has been integrated into the arrangement
//   - Recursive strata hold set semantics; a retraction reaching one
//     rebuilds it from its upstream content
package engine
