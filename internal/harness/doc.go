// Package harness runs scripted transaction scenarios against a program
// and compares the resulting deltas with expectations and golden traces.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: tally
//	description: "Votes are recounted when a vote moves"
//	program: ../programs/tally.yaml
//	trace: [Vote]
//	transactions:
//	  - description: first votes
//	    updates:
//	      - insert: Vote
//	        values: [[alice, red], [bob, red]]
//	    expect:
//	      Tally:
//	        - {row: [red, 2]}
//	  - updates:
//	      - delete: Vote
//	        values: [[bob, red]]
//	    expect:
//	      Tally:
//	        - {row: [red, 2], weight: -1}
//	        - {row: [red, 1]}
//	snapshots:
//	  Tally: [[red, 1]]
//	assertions:
//	  - type: delta_count
//	    relation: Tally
//	    count: 3
//
// Output relations are always recorded; trace adds others. A transaction
// may instead declare expect_error with the engine error code it must fail
// with.
//
// # Assertion Types
//
//   - delta_contains: a transaction changed a row by a weight
//   - delta_count: a relation changed exactly N times across the scenario
//   - final_state: a row is present after the last transaction
//   - lookup: a queryable arrangement holds exactly the given rows under a key
//
// # Deterministic Testing
//
// Transaction ids come from testutil.SequentialIDGenerator ("txn-1",
// "txn-2", ...) so traces are identical across runs and can be compared
// with golden files through RunWithGolden.
package harness
