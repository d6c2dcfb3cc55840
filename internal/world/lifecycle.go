package world

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/playgrid/server/internal/event"
	"github.com/playgrid/server/internal/perform"
	"github.com/playgrid/server/internal/queue"
)

// State is the world lifecycle position.
type State int

const (
	StateInitial State = iota
	StateBuilt
	StateReady
	StateRun
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateBuilt:
		return "built"
	case StateReady:
		return "ready"
	case StateRun:
		return "run"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrWrongState is returned by lifecycle transitions requested out of order.
var ErrWrongState = errors.New("world: transition not valid in current state")

func (w *World) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// RegisterAssessment replaces the success criteria before playback. One-shot
// setup, called by the host before handing control to the state machine.
func (w *World) RegisterAssessment(c Criteria) {
	w.mu.Lock()
	w.def.Criteria = c
	w.mu.Unlock()
}

// FinalizeWorldBuilding performs the bulk, non-animated placement pass:
// static tiles and items from the definition plus the character at its start
// pose. It then collapses net-zero placement commands issued during
// authoring and drops the collapsing barrier; everything appended afterwards
// stays in the log verbatim.
func (w *World) FinalizeWorldBuilding() error {
	w.mu.Lock()
	if w.state != StateInitial {
		w.mu.Unlock()
		return fmt.Errorf("%w: finalize from %s", ErrWrongState, w.state)
	}

	for c, kind := range w.def.Tiles {
		w.tiles[c] = kind
	}
	for _, def := range w.def.Items {
		it := w.installItemLocked(def)
		it.Present = true
	}
	id := w.registry.Reserve()
	ch := &characterState{id: id, at: w.def.Start, heading: w.def.Heading}
	ch.performer = perform.NewActor(id, w)
	w.registry.Register(id, ch.performer)
	w.character = ch

	w.recomputeDimensionsLocked()
	w.state = StateBuilt
	name := w.def.Name
	cols, rows := w.cols, w.rows
	w.mu.Unlock()

	w.queue.Barrier()
	elided := w.queue.CollapsePlacement(0, w.queue.Len())

	if w.log != nil {
		w.log.Info("world built",
			zap.String("world", name),
			zap.Int32("cols", cols),
			zap.Int32("rows", rows),
			zap.Int("collapsed", elided))
	}
	if w.bus != nil {
		event.Publish(w.bus, event.WorldBuilt{WorldName: name, Columns: cols, Rows: rows})
	}
	return nil
}

// PrepareForReplay rewinds the queue and recomputes dimensions so visual
// playback always starts from a known-good state. Idempotent; re-entered
// once per playback attempt.
func (w *World) PrepareForReplay() error {
	w.mu.Lock()
	switch w.state {
	case StateBuilt, StateReady, StateDone:
	default:
		w.mu.Unlock()
		return fmt.Errorf("%w: prepare from %s", ErrWrongState, w.state)
	}
	w.state = StateReady
	w.failed = false
	w.failures = nil
	w.mu.Unlock()

	w.queue.Rewind()

	w.mu.Lock()
	w.recomputeDimensionsLocked()
	w.mu.Unlock()
	return nil
}

// StartPlayback binds every performer to the queue as its driver, waits the
// settle delay, then switches the queue to continuous mode and starts at
// index 0. A queue with nothing to execute goes straight to done.
func (w *World) StartPlayback(settle time.Duration) error {
	w.mu.Lock()
	if w.state != StateReady {
		w.mu.Unlock()
		return fmt.Errorf("%w: start playback from %s", ErrWrongState, w.state)
	}
	w.state = StateRun
	w.runStart = time.Now()
	w.doneLatch = false
	performers := make([]*perform.Actor, 0, len(w.items)+1)
	if w.character != nil {
		performers = append(performers, w.character.performer)
	}
	for _, it := range w.items {
		performers = append(performers, it.performer)
	}
	w.mu.Unlock()

	for _, p := range performers {
		p.SetDriver(w.queue)
	}

	if w.queue.IsFinished() {
		w.finishRun()
		return nil
	}

	if settle > 0 {
		time.Sleep(settle)
	}
	w.queue.SetRunMode(queue.Continuous)
	w.queue.RunCommand(0)
	return nil
}

// finishRun is the internal run→done transition. The latch guarantees the
// terminal event fires exactly once per run even when completion signals
// race.
func (w *World) finishRun() {
	w.mu.Lock()
	if w.state != StateRun || w.doneLatch {
		w.mu.Unlock()
		return
	}
	w.doneLatch = true
	w.state = StateDone
	w.recomputeDimensionsLocked()
	name := w.def.Name
	started := w.runStart
	w.mu.Unlock()

	result := w.Assess()

	if w.log != nil {
		w.log.Info("playback complete",
			zap.String("world", name),
			zap.Bool("passed", result.Passed),
			zap.Int("gems", result.GemsCollected),
			zap.Int("switches", result.SwitchesOpen))
	}
	if w.bus != nil {
		event.Publish(w.bus, event.PlaybackFinished{
			WorldName:     name,
			Passed:        result.Passed,
			GemsCollected: result.GemsCollected,
			SwitchesOpen:  result.SwitchesOpen,
			Commands:      w.queue.Len(),
			Duration:      time.Since(started),
		})
	}
}
