package command

import (
	"fmt"
	"strings"

	"github.com/playgrid/server/internal/grid"
)

// Kind discriminates the command variants.
type Kind uint8

const (
	KindMove Kind = iota + 1
	KindTurn
	KindAdd
	KindRemove
	KindControl
	KindRun
	KindFail
)

func (k Kind) String() string {
	switch k {
	case KindMove:
		return "move"
	case KindTurn:
		return "turn"
	case KindAdd:
		return "add"
	case KindRemove:
		return "remove"
	case KindControl:
		return "control"
	case KindRun:
		return "run"
	case KindFail:
		return "fail"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// MovementKind selects how a move is animated.
type MovementKind uint8

const (
	MoveWalk MovementKind = iota
	MoveJump
	MoveTeleport
)

func (m MovementKind) String() string {
	switch m {
	case MoveWalk:
		return "walk"
	case MoveJump:
		return "jump"
	case MoveTeleport:
		return "teleport"
	}
	return fmt.Sprintf("movement(%d)", uint8(m))
}

// ControlKind names the class of controllable item a control command drives.
type ControlKind uint8

const (
	ControlSwitch ControlKind = iota
	ControlPortal
	ControlPlatformLock
)

func (c ControlKind) String() string {
	switch c {
	case ControlSwitch:
		return "switch"
	case ControlPortal:
		return "portal"
	case ControlPlatformLock:
		return "platform-lock"
	}
	return fmt.Sprintf("control(%d)", uint8(c))
}

// MoveSpec carries the absolute endpoints of one move, so the state-only
// projection just sets the destination and replay never accumulates drift.
type MoveSpec struct {
	From grid.Coordinate
	To   grid.Coordinate
	Gait MovementKind
}

// TurnSpec carries the absolute headings of a quarter turn.
type TurnSpec struct {
	From      grid.Heading
	To        grid.Heading
	Clockwise bool
}

// ControlSpec toggles a controllable item to an explicit end state.
type ControlSpec struct {
	Kind ControlKind
	On   bool
}

// RunSpec requests a pure animation with no state change.
type RunSpec struct {
	Action    string
	Variation int32
}

// Command is an immutable description of one world mutation and the
// performer that causes it. Only the fields for its Kind are meaningful.
type Command struct {
	Performer PerformerID
	Kind      Kind

	Move    MoveSpec
	Turn    TurnSpec
	Items   []PerformerID // add/remove targets
	Picked  bool          // remove was a pickup by the performer (drives score)
	Control ControlSpec
	Run     RunSpec
	Reason  string // fail
}

func Move(p PerformerID, from, to grid.Coordinate, gait MovementKind) Command {
	return Command{Performer: p, Kind: KindMove, Move: MoveSpec{From: from, To: to, Gait: gait}}
}

func Turn(p PerformerID, from grid.Heading, clockwise bool) Command {
	return Command{Performer: p, Kind: KindTurn, Turn: TurnSpec{
		From: from, To: grid.Turned(from, clockwise), Clockwise: clockwise,
	}}
}

func Add(p PerformerID, items ...PerformerID) Command {
	return Command{Performer: p, Kind: KindAdd, Items: items}
}

func Remove(p PerformerID, items ...PerformerID) Command {
	return Command{Performer: p, Kind: KindRemove, Items: items}
}

// Collect is a remove issued by an actor picking the items up, as opposed to
// authoring code deleting them. Only collects count toward the score.
func Collect(p PerformerID, items ...PerformerID) Command {
	return Command{Performer: p, Kind: KindRemove, Items: items, Picked: true}
}

func Control(item PerformerID, kind ControlKind, on bool) Command {
	return Command{Performer: item, Kind: KindControl, Control: ControlSpec{Kind: kind, On: on}}
}

func Run(p PerformerID, action string, variation int32) Command {
	return Command{Performer: p, Kind: KindRun, Run: RunSpec{Action: action, Variation: variation}}
}

func Fail(p PerformerID, reason string) Command {
	return Command{Performer: p, Kind: KindFail, Reason: reason}
}

// Description renders a deterministic human-readable form, used in logs,
// narration and diagnostics.
func (c Command) Description() string {
	switch c.Kind {
	case KindMove:
		return fmt.Sprintf("move %s %s->%s", c.Move.Gait, c.Move.From, c.Move.To)
	case KindTurn:
		dir := "ccw"
		if c.Turn.Clockwise {
			dir = "cw"
		}
		return fmt.Sprintf("turn %s %s->%s", dir, c.Turn.From, c.Turn.To)
	case KindAdd:
		return fmt.Sprintf("add %s", describeItems(c.Items))
	case KindRemove:
		verb := "remove"
		if c.Picked {
			verb = "collect"
		}
		return fmt.Sprintf("%s %s", verb, describeItems(c.Items))
	case KindControl:
		state := "off"
		if c.Control.On {
			state = "on"
		}
		return fmt.Sprintf("control %s %s", c.Control.Kind, state)
	case KindRun:
		return fmt.Sprintf("run %s/%d", c.Run.Action, c.Run.Variation)
	case KindFail:
		return fmt.Sprintf("fail: %s", c.Reason)
	}
	return c.Kind.String()
}

func describeItems(items []PerformerID) string {
	parts := make([]string, len(items))
	for i, id := range items {
		parts[i] = fmt.Sprintf("item-%d", id.Index())
	}
	return strings.Join(parts, ",")
}

// SameItems reports whether two commands name the identical item set in the
// identical order. Used by placement collapsing.
func SameItems(a, b Command) bool {
	if len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Items {
		if a.Items[i] != b.Items[i] {
			return false
		}
	}
	return true
}
