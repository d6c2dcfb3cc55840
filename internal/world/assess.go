package world

// Result is the outcome of assessing one finished run against the world's
// criteria.
type Result struct {
	Passed        bool
	Evaluated     bool // false when criteria are evaluated elsewhere
	GemsCollected int
	SwitchesOpen  int
	Failures      []string
}

// Assess evaluates the current world state against the registered criteria.
// A run that produced any fail command never passes. Worlds with external
// criteria report counts only.
func (w *World) Assess() Result {
	w.mu.Lock()
	criteria := w.def.Criteria
	failed := w.failed
	failures := append([]string(nil), w.failures...)
	w.mu.Unlock()

	r := Result{
		GemsCollected: w.GemsCollected(),
		SwitchesOpen:  w.SwitchesOpen(),
		Failures:      failures,
	}
	if criteria.External {
		return r
	}
	r.Evaluated = true
	r.Passed = !failed &&
		r.GemsCollected >= criteria.Gems &&
		r.SwitchesOpen >= criteria.Switches
	return r
}

// Criteria returns the registered success criteria.
func (w *World) Criteria() Criteria {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.def.Criteria
}
