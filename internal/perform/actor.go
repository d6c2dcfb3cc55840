package perform

import (
	"sync"

	"github.com/playgrid/server/internal/command"
)

// Slot names one capability an actor may carry. The set is closed: dispatch
// iterates present slots in order rather than doing open-ended lookup.
type Slot int

const (
	SlotAnimation Slot = iota
	SlotSound
	SlotNarration
	slotCount
)

// Component is one capability attached to an actor. Perform returns true
// when the component takes ownership of producing the visual completion, in
// which case it must invoke done exactly once, from any goroutine. A false
// return means the component declined and done must never be called.
type Component interface {
	Perform(cmd command.Command, done func()) bool
	Cancel(cmd command.Command)
}

// Applier applies a command's state-only projection. The world implements
// this; the actor never touches grid contents directly.
type Applier interface {
	Apply(cmd command.Command)
}

// Driver receives the actor's overall completion for an accepted command.
// The command queue implements this while a playback run is active.
type Driver interface {
	PerformerFinished(id command.PerformerID)
}

// Actor is a composable set of performer components sharing one identity.
// A command offered to the actor fans out to every attached component; the
// actor's completion fires only after all accepting components have signalled
// (join counter), at which point the state projection is applied and the
// driver is notified.
type Actor struct {
	id      command.PerformerID
	applier Applier

	mu        sync.Mutex
	slots     [slotCount]Component
	driver    Driver
	inWorld   bool
	seq       uint64 // bumped per dispatch and per cancel; stale callbacks no-op
	accepted  int
	signalled int
	offered   bool // fan-out finished, accepted count is final
	active    bool
	inflight  command.Command
}

func NewActor(id command.PerformerID, applier Applier) *Actor {
	return &Actor{id: id, applier: applier, inWorld: true}
}

func (a *Actor) ID() command.PerformerID { return a.id }

// Attach installs a component into its slot, replacing any previous
// occupant. Safe while a command is in flight: the running dispatch holds
// its own snapshot of the slots.
func (a *Actor) Attach(slot Slot, c Component) {
	a.mu.Lock()
	a.slots[slot] = c
	a.mu.Unlock()
}

func (a *Actor) Detach(slot Slot) {
	a.mu.Lock()
	a.slots[slot] = nil
	a.mu.Unlock()
}

// SetDriver binds the actor to the queue driving it for the current run.
func (a *Actor) SetDriver(d Driver) {
	a.mu.Lock()
	a.driver = d
	a.mu.Unlock()
}

// SetInWorld marks whether the actor is part of the visible world. While
// false, every command short-circuits to the synchronous state-change path.
func (a *Actor) SetInWorld(in bool) {
	a.mu.Lock()
	a.inWorld = in
	a.mu.Unlock()
}

// Perform offers cmd to each attached component in slot order. It returns
// true when at least one component accepted and the completion will arrive
// asynchronously via the driver. It returns false when the command already
// ran to its end state: no component accepted, the actor is off-world, or
// every accepting component signalled before fan-out finished. In the false
// case the state projection has been applied before returning.
func (a *Actor) Perform(cmd command.Command) bool {
	a.mu.Lock()
	present := a.presentLocked()
	if !a.inWorld || len(present) == 0 {
		a.mu.Unlock()
		a.applier.Apply(cmd)
		return false
	}
	a.seq++
	seq := a.seq
	a.active = true
	a.offered = false
	a.accepted = 0
	a.signalled = 0
	a.inflight = cmd
	a.mu.Unlock()

	accepted := 0
	for _, c := range present {
		if c.Perform(cmd, a.doneFunc(seq)) {
			accepted++
		}
	}

	a.mu.Lock()
	if seq != a.seq {
		// cancelled mid-offer
		a.mu.Unlock()
		return false
	}
	if accepted == 0 || a.signalled >= accepted {
		a.active = false
		a.mu.Unlock()
		a.applier.Apply(cmd)
		return false
	}
	a.accepted = accepted
	a.offered = true
	a.mu.Unlock()
	return true
}

// doneFunc builds the completion callback handed to one component. The
// captured sequence number turns callbacks from cancelled or superseded
// dispatches into no-ops.
func (a *Actor) doneFunc(seq uint64) func() {
	return func() {
		a.mu.Lock()
		if seq != a.seq || !a.active {
			a.mu.Unlock()
			return // late signal from cancelled work
		}
		a.signalled++
		if !a.offered || a.signalled < a.accepted {
			a.mu.Unlock()
			return
		}
		a.active = false
		cmd := a.inflight
		driver := a.driver
		a.mu.Unlock()

		a.applier.Apply(cmd)
		if driver != nil {
			driver.PerformerFinished(a.id)
		}
	}
}

// Cancel aborts the in-flight dispatch, if any, and forwards the cancel to
// every attached component. Idempotent; no completion fires afterwards.
func (a *Actor) Cancel(cmd command.Command) {
	a.mu.Lock()
	a.seq++
	a.active = false
	present := a.presentLocked()
	a.mu.Unlock()

	for _, c := range present {
		c.Cancel(cmd)
	}
}

// ApplyStateChange applies cmd's projection with no animation. Used by the
// queue for rewind and forced completion.
func (a *Actor) ApplyStateChange(cmd command.Command) {
	a.applier.Apply(cmd)
}

func (a *Actor) presentLocked() []Component {
	out := make([]Component, 0, slotCount)
	for _, c := range a.slots {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}
