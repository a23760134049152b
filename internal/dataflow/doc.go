// Package dataflow defines rule stages and evaluates them incrementally.
//
// A rule is a source relation followed by an ordered list of stages. Stage
// values are stateless descriptions; the per-stage integrated state a stage
// needs (the left side of a join, the groups of an aggregate) lives in a
// Pipeline owned by the engine.
//
// Each Pipeline.Step consumes the delta of the source relation for one round
// and returns the delta of the rule's output. Join stages follow the
// bilinear rule
//
//	out = ΔL ⋈ R + L_old ⋈ ΔR,   then L_old += ΔL
//
// where R already includes ΔR. Every arrangement delta must therefore be
// presented to a pipeline exactly once, after it has been integrated.
//
// Transform stages are not incremental: they rerun a function over the whole
// integrated input and emit the difference from the previous result, so they
// may not appear in recursive strata.
package dataflow
