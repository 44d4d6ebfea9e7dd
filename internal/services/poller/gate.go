package poller

import "sync/atomic"

// Gate pauses polling while the interactive layer resolves a job-expired
// notification. The poller sets it; Acknowledge clears it.
type Gate struct {
	waiting atomic.Bool
}

// NewGate returns an open gate.
func NewGate() *Gate {
	return &Gate{}
}

// Set closes the gate.
func (g *Gate) Set() {
	g.waiting.Store(true)
}

// Clear opens the gate. Clearing an open gate is a no-op.
func (g *Gate) Clear() {
	g.waiting.Store(false)
}

// Waiting reports whether the poller must stay idle.
func (g *Gate) Waiting() bool {
	return g.waiting.Load()
}
