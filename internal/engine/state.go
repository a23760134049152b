package engine

import (
	"fmt"
	"sync"
)

// Phase is the coarse activity of an engine.
type Phase int

const (
	// Idle means no transaction is running.
	Idle Phase = iota
	// Applying means stratum Stratum is processing its upstream deltas.
	Applying
	// Iterating means a recursive stratum is running rounds past the first.
	Iterating
)

// State is a point-in-time view of the engine's progress.
type State struct {
	Phase   Phase
	Stratum int
	Round   int
}

func (s State) String() string {
	switch s.Phase {
	case Applying:
		return fmt.Sprintf("applying(%d)", s.Stratum)
	case Iterating:
		return fmt.Sprintf("iterating(%d, round=%d)", s.Stratum, s.Round)
	default:
		return "idle"
	}
}

// stateBox publishes State independently of the engine mutex so that
// monitoring goroutines never block behind a transaction.
type stateBox struct {
	mu sync.RWMutex
	s  State
}

func (b *stateBox) set(s State) {
	b.mu.Lock()
	b.s = s
	b.mu.Unlock()
}

func (b *stateBox) get() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.s
}
