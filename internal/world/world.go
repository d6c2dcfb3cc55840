package world

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/playgrid/server/internal/command"
	"github.com/playgrid/server/internal/event"
	"github.com/playgrid/server/internal/grid"
	"github.com/playgrid/server/internal/perform"
	"github.com/playgrid/server/internal/queue"
)

// Item is one stateful grid item and its performer.
type Item struct {
	ID        command.PerformerID
	Kind      ItemKind
	At        grid.Coordinate
	On        bool
	Present   bool
	Collected bool
	Pair      grid.Coordinate
	performer *perform.Actor
}

// characterState is the model pose of the character. The model advances
// as soon as commands are issued; animation replays it later.
type characterState struct {
	id        command.PerformerID
	at        grid.Coordinate
	heading   grid.Heading
	performer *perform.Actor
}

// World owns the grid, every performer, the command queue, and the lifecycle
// state machine. It is the sole writer of grid contents: the queue only
// issues commands that the world's projection interprets.
type World struct {
	def *Definition
	log *zap.Logger
	bus *event.Bus

	queue    *queue.Queue
	registry *Registry

	mu        sync.Mutex
	state     State
	tiles     map[grid.Coordinate]TileKind
	items     map[command.PerformerID]*Item
	itemsByAt map[grid.Coordinate][]*Item
	character *characterState
	cols      int32
	rows      int32
	failed    bool
	failures  []string
	doneLatch bool
	runStart  time.Time
}

func New(def *Definition, log *zap.Logger, bus *event.Bus) *World {
	w := &World{
		def:       def,
		log:       log,
		bus:       bus,
		registry:  NewRegistry(),
		state:     StateInitial,
		tiles:     make(map[grid.Coordinate]TileKind),
		items:     make(map[command.PerformerID]*Item),
		itemsByAt: make(map[grid.Coordinate][]*Item),
	}
	w.queue = queue.New(w, log)
	w.queue.AddObserver(w)
	return w
}

func (w *World) Name() string        { return w.def.Name }
func (w *World) Queue() *queue.Queue { return w.queue }

// Resolve implements queue.Resolver over the world registry.
func (w *World) Resolve(id command.PerformerID) queue.Performer {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.registry.Lookup(id)
}

// Character returns the identity of the playable character. Zero until the
// world is built.
func (w *World) Character() command.PerformerID {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.character == nil {
		return 0
	}
	return w.character.id
}

// AttachComponent installs a performer component on the character or an
// item. Unknown identities are a wiring defect.
func (w *World) AttachComponent(id command.PerformerID, slot perform.Slot, c perform.Component) {
	a := w.actorFor(id)
	a.Attach(slot, c)
}

func (w *World) DetachComponent(id command.PerformerID, slot perform.Slot) {
	a := w.actorFor(id)
	a.Detach(slot)
}

// StageOffWorld marks a performer as outside the visible world; its commands
// short-circuit to the synchronous state-change path until restored.
func (w *World) StageOffWorld(id command.PerformerID, offWorld bool) {
	w.actorFor(id).SetInWorld(!offWorld)
}

func (w *World) actorFor(id command.PerformerID) *perform.Actor {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.character != nil && w.character.id == id {
		return w.character.performer
	}
	if it, ok := w.items[id]; ok {
		return it.performer
	}
	panic(fmt.Sprintf("world: unknown performer id %d", id))
}

// Issue applies cmd's state projection to the model immediately and appends
// it to the queue for later animated replay. This is the producer entry
// point: the model always runs ahead of the animation, which is exactly what
// Rewind reconstructs before playback.
func (w *World) Issue(cmd command.Command) {
	w.Apply(cmd)
	w.queue.Append(cmd)
}

// Apply is the state-only projection of one command. Projections are
// absolute (they set end states rather than accumulate deltas), so replaying
// the full log any number of times converges on the same world state.
func (w *World) Apply(cmd command.Command) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch cmd.Kind {
	case command.KindMove:
		if ch := w.character; ch != nil && ch.id == cmd.Performer {
			ch.at = cmd.Move.To
		}
	case command.KindTurn:
		if ch := w.character; ch != nil && ch.id == cmd.Performer {
			ch.heading = cmd.Turn.To
		}
	case command.KindAdd:
		for _, id := range cmd.Items {
			if it, ok := w.items[id]; ok {
				it.Present = true
				it.Collected = false
			}
		}
	case command.KindRemove:
		for _, id := range cmd.Items {
			if it, ok := w.items[id]; ok {
				it.Present = false
				if cmd.Picked {
					it.Collected = true
				}
			}
		}
	case command.KindControl:
		if it, ok := w.items[cmd.Performer]; ok {
			it.On = cmd.Control.On
		}
	case command.KindRun:
		// pure animation, no state
	case command.KindFail:
		w.failed = true
		w.failures = append(w.failures, cmd.Reason)
	}
}

// ── Model queries (sensors) ─────────────────────────────────────────

// Pose returns the character's model position and heading.
func (w *World) Pose() (grid.Coordinate, grid.Heading) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.character == nil {
		return grid.Coordinate{}, grid.North
	}
	return w.character.at, w.character.heading
}

// Walkable reports whether the character may stand on c.
func (w *World) Walkable(c grid.Coordinate) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.walkableLocked(c)
}

func (w *World) walkableLocked(c grid.Coordinate) bool {
	kind, ok := w.tiles[c]
	if !ok || kind != TileFloor {
		return false
	}
	for _, it := range w.itemsByAt[c] {
		if it.Kind == ItemPlatformLock && it.Present && !it.On {
			return false
		}
	}
	return true
}

// ItemAt returns the present item of the given kind at c, if any.
func (w *World) ItemAt(c grid.Coordinate, kind ItemKind) (*Item, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, it := range w.itemsByAt[c] {
		if it.Kind == kind && it.Present {
			return it, true
		}
	}
	return nil, false
}

// GemsCollected counts gems picked up so far, derived from item state so
// rewinding never double-counts.
func (w *World) GemsCollected() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, it := range w.items {
		if it.Kind == ItemGem && it.Collected {
			n++
		}
	}
	return n
}

// SwitchesOpen counts switches currently toggled on.
func (w *World) SwitchesOpen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, it := range w.items {
		if it.Kind == ItemSwitch && it.Present && it.On {
			n++
		}
	}
	return n
}

// Failed reports whether any fail command has been applied this run.
func (w *World) Failed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failed
}

// Dimensions returns the recomputed world extents.
func (w *World) Dimensions() (cols, rows int32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cols, w.rows
}

// PlaceItem adds a dynamic item at runtime and returns its identity. The
// matching add command is issued through the queue, so the placement is part
// of the replayable log.
func (w *World) PlaceItem(def ItemDef) command.PerformerID {
	w.mu.Lock()
	it := w.installItemLocked(def)
	w.mu.Unlock()

	w.Issue(command.Add(it.ID, it.ID))
	return it.ID
}

// RemoveItem issues a pure removal (not a pickup) of an item.
func (w *World) RemoveItem(id command.PerformerID) {
	w.Issue(command.Remove(id, id))
}

func (w *World) installItemLocked(def ItemDef) *Item {
	id := w.registry.Reserve()
	it := &Item{ID: id, Kind: def.Kind, At: def.At, On: def.On, Pair: def.Pair}
	it.performer = perform.NewActor(id, w)
	w.registry.Register(id, it.performer)
	w.items[id] = it
	w.itemsByAt[def.At] = append(w.itemsByAt[def.At], it)
	return it
}

func (w *World) recomputeDimensionsLocked() {
	var maxX, maxY int32 = -1, -1
	for c := range w.tiles {
		if c.X > maxX {
			maxX = c.X
		}
		if c.Y > maxY {
			maxY = c.Y
		}
	}
	for _, it := range w.items {
		if !it.Present {
			continue
		}
		if it.At.X > maxX {
			maxX = it.At.X
		}
		if it.At.Y > maxY {
			maxY = it.At.Y
		}
	}
	w.cols, w.rows = maxX+1, maxY+1
}

// ── Queue observation ───────────────────────────────────────────────

func (w *World) CommandAdded(cmd command.Command, index int) {
	if w.log != nil {
		w.log.Debug("command added", zap.Int("index", index), zap.String("command", cmd.Description()))
	}
}

func (w *World) CommandWillRun(cmd command.Command, index int) {
	if w.log != nil {
		w.log.Debug("command running", zap.Int("index", index), zap.String("command", cmd.Description()))
	}
}

// CommandCompleted watches for the queue running dry during a continuous
// run; that is the internal run→done transition.
func (w *World) CommandCompleted(cmd command.Command, index int) {
	w.mu.Lock()
	running := w.state == StateRun
	w.mu.Unlock()
	if running && w.queue.IsFinished() {
		w.finishRun()
	}
}
