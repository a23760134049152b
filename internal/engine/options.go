package engine

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures an Engine at Build time.
type Option func(*Engine)

// WithWorkers sets the number of key shards used for join and arrangement
// work inside a round.
//
// Default: 1. Values below 1 are treated as 1.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = max(n, 1)
	}
}

// WithRetention keeps the full content of every relation so that Snapshot
// can be served.
//
// Default: false. Relations the engine needs internally (inputs, members
// and upstream sources of recursive strata) keep content regardless.
func WithRetention(retain bool) Option {
	return func(e *Engine) {
		e.retain = retain
	}
}

// WithMaxIterations bounds the rounds a recursive stratum may take in one
// transaction.
//
// Default: 0 (unlimited).
// Use WithMaxIterations(3) in tests of non-converging rule graphs.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		e.maxIterations = n
	}
}

// WithRegisterer registers the engine's metrics on reg instead of a private
// registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.registerer = reg
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithIDGenerator sets the transaction id source.
//
// Default: UUIDv7Generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(e *Engine) {
		e.idGen = gen
	}
}
