package splitter

// PauseGate is the two-state circuit breaker guarding value-moving
// operations. It starts active and transitions only through Pause and Resume.
// Authorization lives with the caller (the engine); the gate owns the state
// machine alone.
type PauseGate struct {
	paused bool
}

// Paused reports whether the gate is suspended.
func (g *PauseGate) Paused() bool { return g.paused }

// Guard returns ErrPaused when the gate is suspended. Value-moving
// operations call this before any other validation or mutation.
func (g *PauseGate) Guard() error {
	if g.paused {
		return ErrPaused
	}
	return nil
}

// Pause suspends the gate. Pausing an already suspended gate is an error, not
// a no-op, so operator mistakes surface immediately.
func (g *PauseGate) Pause() error {
	if g.paused {
		return ErrAlreadyPaused
	}
	g.paused = true
	return nil
}

// Resume reactivates the gate. Resuming an active gate is rejected
// symmetrically.
func (g *PauseGate) Resume() error {
	if !g.paused {
		return ErrNotPaused
	}
	g.paused = false
	return nil
}
