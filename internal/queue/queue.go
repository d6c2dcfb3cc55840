package queue

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/playgrid/server/internal/command"
)

// RunMode selects how the queue advances.
type RunMode int

const (
	// RandomAccess: the caller explicitly runs one index at a time.
	RandomAccess RunMode = iota
	// Continuous: each completion automatically runs the next command.
	Continuous
)

// Performer executes one command, visually or state-only. The queue holds
// performers only through the resolver; it never owns them.
type Performer interface {
	// Perform starts execution. A true return means completion arrives later
	// through PerformerFinished; false means the command already ran to its
	// end state synchronously.
	Perform(cmd command.Command) bool
	Cancel(cmd command.Command)
	ApplyStateChange(cmd command.Command)
}

// Resolver maps a performer identity to the live performer. The world owns
// the registry behind it.
type Resolver interface {
	Resolve(id command.PerformerID) Performer
}

// Observer is notified at the three lifecycle points of every command.
// Notifications are strictly ordered per command. Observers must not mutate
// the queue from inside a callback.
type Observer interface {
	CommandAdded(cmd command.Command, index int)
	CommandWillRun(cmd command.Command, index int)
	CommandCompleted(cmd command.Command, index int)
}

// Queue is the ordered, replayable log of commands. At most one command is
// current at any time; commands never run out of order or concurrently.
type Queue struct {
	resolver Resolver
	log      *zap.Logger

	mu        sync.Mutex
	commands  []command.Command
	done      []bool
	cursor    int
	current   int // index of the executing command, -1 when idle
	mode      RunMode
	barrier   int // commands at index >= barrier are never collapsed
	observers []Observer
	overflow  *Controller
}

func New(resolver Resolver, log *zap.Logger) *Queue {
	return &Queue{
		resolver: resolver,
		log:      log,
		current:  -1,
	}
}

// SetOverflow installs the admission controller consulted after each append.
func (q *Queue) SetOverflow(c *Controller) {
	q.mu.Lock()
	q.overflow = c
	q.mu.Unlock()
}

func (q *Queue) AddObserver(o Observer) {
	q.mu.Lock()
	q.observers = append(q.observers, o)
	q.mu.Unlock()
}

func (q *Queue) RemoveObserver(o Observer) {
	q.mu.Lock()
	for i, existing := range q.observers {
		if existing == o {
			q.observers = append(q.observers[:i], q.observers[i+1:]...)
			break
		}
	}
	q.mu.Unlock()
}

func (q *Queue) RunMode() RunMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.mode
}

func (q *Queue) SetRunMode(m RunMode) {
	q.mu.Lock()
	q.mode = m
	q.mu.Unlock()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// IsFinished reports that the cursor has passed the last command and nothing
// is executing.
func (q *Queue) IsFinished() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cursor >= len(q.commands) && q.current == -1
}

// Snapshot returns a copy of the full log.
func (q *Queue) Snapshot() []command.Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]command.Command, len(q.commands))
	copy(out, q.commands)
	return out
}

// Append adds cmd to the tail, notifies observers, runs the overflow
// admission check, and in continuous mode starts the head if the queue is
// idle.
func (q *Queue) Append(cmd command.Command) {
	q.mu.Lock()
	q.commands = append(q.commands, cmd)
	q.done = append(q.done, false)
	idx := len(q.commands) - 1
	obs := q.observersLocked()
	overflow := q.overflow
	q.mu.Unlock()

	for _, o := range obs {
		o.CommandAdded(cmd, idx)
	}
	if overflow != nil {
		overflow.commandAdded(q)
	}

	q.mu.Lock()
	start := q.mode == Continuous && q.current == -1 && q.cursor < len(q.commands)
	next := q.cursor
	q.mu.Unlock()
	if start {
		q.RunCommand(next)
	}
}

// RunCommand executes the command at index. Running an invalid index, or
// running while another command is current, is a scheduler defect and
// panics. Commands that finish synchronously advance in a loop, so an
// all-synchronous log never grows the stack.
func (q *Queue) RunCommand(index int) {
	for {
		q.mu.Lock()
		if index < 0 || index >= len(q.commands) {
			n := len(q.commands)
			q.mu.Unlock()
			panic(fmt.Sprintf("queue: run index %d out of range (%d commands)", index, n))
		}
		if q.current != -1 {
			cur := q.current
			q.mu.Unlock()
			panic(fmt.Sprintf("queue: command %d requested while %d is current", index, cur))
		}
		cmd := q.commands[index]
		q.current = index
		obs := q.observersLocked()
		q.mu.Unlock()

		for _, o := range obs {
			o.CommandWillRun(cmd, index)
		}

		p := q.resolver.Resolve(cmd.Performer)
		if p == nil {
			panic(fmt.Sprintf("queue: no performer for %s (id %d)", cmd.Description(), cmd.Performer))
		}
		if p.Perform(cmd) {
			return // asynchronous; PerformerFinished advances
		}
		next, ok := q.finish(index)
		if !ok {
			return
		}
		index = next
	}
}

// PerformerFinished is the single completion entry point performers call
// back into, exactly once per accepted command. Late callbacks for commands
// that are no longer current are absorbed silently.
func (q *Queue) PerformerFinished(id command.PerformerID) {
	q.mu.Lock()
	if q.current == -1 || q.commands[q.current].Performer != id {
		q.mu.Unlock()
		if q.log != nil {
			q.log.Debug("late completion discarded", zap.Uint64("performer", uint64(id)))
		}
		return
	}
	idx := q.current
	q.mu.Unlock()

	next, ok := q.finish(idx)
	if ok {
		q.RunCommand(next)
	}
}

// finish marks index complete, notifies observers, and reports whether a
// continuous run should advance and to where.
func (q *Queue) finish(index int) (int, bool) {
	q.mu.Lock()
	if q.current != index {
		q.mu.Unlock()
		return 0, false // superseded while completing
	}
	cmd := q.commands[index]
	q.current = -1
	q.done[index] = true
	if index >= q.cursor {
		q.cursor = index + 1
	}
	advance := q.mode == Continuous && q.cursor < len(q.commands)
	next := q.cursor
	obs := q.observersLocked()
	q.mu.Unlock()

	for _, o := range obs {
		o.CommandCompleted(cmd, index)
	}
	return next, advance
}

// Complete forces the current in-flight command to its end state
// synchronously, with no auto-advance. A no-op when the queue is idle.
func (q *Queue) Complete() {
	q.mu.Lock()
	if q.current == -1 {
		q.mu.Unlock()
		return
	}
	index := q.current
	cmd := q.commands[index]
	q.mu.Unlock()

	p := q.resolver.Resolve(cmd.Performer)
	if p == nil {
		panic(fmt.Sprintf("queue: no performer for %s (id %d)", cmd.Description(), cmd.Performer))
	}
	p.Cancel(cmd)
	p.ApplyStateChange(cmd)

	q.mu.Lock()
	if q.current != index {
		q.mu.Unlock()
		return
	}
	q.current = -1
	q.done[index] = true
	if index >= q.cursor {
		q.cursor = index + 1
	}
	obs := q.observersLocked()
	q.mu.Unlock()

	for _, o := range obs {
		o.CommandCompleted(cmd, index)
	}
}

// Rewind cancels any in-flight command, resets the cursor to the start, and
// re-applies every command's state-only projection in order. No about-to-run
// or completed notifications fire; only the final world state matters.
func (q *Queue) Rewind() {
	q.mu.Lock()
	if q.current != -1 {
		cmd := q.commands[q.current]
		q.current = -1
		q.mu.Unlock()
		if p := q.resolver.Resolve(cmd.Performer); p != nil {
			p.Cancel(cmd)
		}
		q.mu.Lock()
	}
	q.cursor = 0
	for i := range q.done {
		q.done[i] = false
	}
	cmds := make([]command.Command, len(q.commands))
	copy(cmds, q.commands)
	q.mu.Unlock()

	for _, cmd := range cmds {
		p := q.resolver.Resolve(cmd.Performer)
		if p == nil {
			panic(fmt.Sprintf("queue: no performer for %s (id %d)", cmd.Description(), cmd.Performer))
		}
		p.ApplyStateChange(cmd)
	}
}

// Clear drops the whole log and resets the cursor. Clearing mid-command is a
// caller defect; cancel or Complete first.
func (q *Queue) Clear() {
	q.mu.Lock()
	if q.current != -1 {
		cur := q.current
		q.mu.Unlock()
		panic(fmt.Sprintf("queue: clear while command %d is current", cur))
	}
	q.commands = nil
	q.done = nil
	q.cursor = 0
	q.barrier = 0
	q.mu.Unlock()
}

// Barrier marks the current tail of the log. Commands appended after the
// barrier are never eligible for placement collapsing.
func (q *Queue) Barrier() {
	q.mu.Lock()
	q.barrier = len(q.commands)
	q.mu.Unlock()
}

// CollapsePlacement elides contiguous add/remove pairs that cancel each
// other out (same item set, neither a pickup) inside [from,to), clamped to
// the barrier. Returns the number of commands elided. Only legal before any
// command has run.
func (q *Queue) CollapsePlacement(from, to int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cursor != 0 || q.current != -1 {
		panic("queue: collapse after execution started")
	}
	if to > q.barrier {
		to = q.barrier
	}
	if from < 0 {
		from = 0
	}

	elided := 0
	for {
		collapsed := false
		for i := from; i+1 < to; i++ {
			a, b := q.commands[i], q.commands[i+1]
			if !netZeroPlacement(a, b) {
				continue
			}
			q.commands = append(q.commands[:i], q.commands[i+2:]...)
			q.done = q.done[:len(q.commands)]
			q.barrier -= 2
			to -= 2
			elided += 2
			collapsed = true
			break
		}
		if !collapsed {
			return elided
		}
	}
}

// netZeroPlacement reports whether a followed by b has no net placement
// effect: one pure add and one pure remove of the identical item set.
func netZeroPlacement(a, b command.Command) bool {
	if a.Picked || b.Picked {
		return false
	}
	addThenRemove := a.Kind == command.KindAdd && b.Kind == command.KindRemove
	removeThenAdd := a.Kind == command.KindRemove && b.Kind == command.KindAdd
	if !addThenRemove && !removeThenAdd {
		return false
	}
	return command.SameItems(a, b)
}

// CompletedCount returns how many commands of the given kind have completed
// so far. Drives assessment counters.
func (q *Queue) CompletedCount(kind command.Kind) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for i, cmd := range q.commands {
		if q.done[i] && cmd.Kind == kind {
			n++
		}
	}
	return n
}

// CompletedFor returns, in order, the completed commands attributed to one
// performer.
func (q *Queue) CompletedFor(id command.PerformerID) []command.Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []command.Command
	for i, cmd := range q.commands {
		if q.done[i] && cmd.Performer == id {
			out = append(out, cmd)
		}
	}
	return out
}

// PendingCollectCount returns how many pickup commands are appended but not
// yet completed. Drives a running score display.
func (q *Queue) PendingCollectCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for i, cmd := range q.commands {
		if cmd.Kind == command.KindRemove && cmd.Picked && !q.done[i] {
			n++
		}
	}
	return n
}

func (q *Queue) observersLocked() []Observer {
	out := make([]Observer, len(q.observers))
	copy(out, q.observers)
	return out
}
