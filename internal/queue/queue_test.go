package queue

import (
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/playgrid/server/internal/command"
	"github.com/playgrid/server/internal/grid"
)

// stubResolver maps identities to performers.
type stubResolver map[command.PerformerID]Performer

func (r stubResolver) Resolve(id command.PerformerID) Performer { return r[id] }

// syncPerformer completes every command inside Perform.
type syncPerformer struct {
	mu      sync.Mutex
	applied []command.Command
	cancels int
}

func (p *syncPerformer) Perform(cmd command.Command) bool {
	p.ApplyStateChange(cmd)
	return false
}

func (p *syncPerformer) Cancel(cmd command.Command) {
	p.mu.Lock()
	p.cancels++
	p.mu.Unlock()
}

func (p *syncPerformer) ApplyStateChange(cmd command.Command) {
	p.mu.Lock()
	p.applied = append(p.applied, cmd)
	p.mu.Unlock()
}

func (p *syncPerformer) appliedKinds() []command.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]command.Kind, len(p.applied))
	for i, c := range p.applied {
		out[i] = c.Kind
	}
	return out
}

// asyncPerformer parks every command until the test finishes it.
type asyncPerformer struct {
	id      command.PerformerID
	q       *Queue
	mu      sync.Mutex
	pending []command.Command
	applied int
	cancels int
}

func (p *asyncPerformer) Perform(cmd command.Command) bool {
	p.mu.Lock()
	p.pending = append(p.pending, cmd)
	p.mu.Unlock()
	return true
}

func (p *asyncPerformer) Cancel(cmd command.Command) {
	p.mu.Lock()
	p.cancels++
	p.pending = nil
	p.mu.Unlock()
}

func (p *asyncPerformer) ApplyStateChange(cmd command.Command) {
	p.mu.Lock()
	p.applied++
	p.mu.Unlock()
}

// finish signals completion of the oldest pending command.
func (p *asyncPerformer) finish() {
	p.mu.Lock()
	if len(p.pending) > 0 {
		p.pending = p.pending[1:]
	}
	p.mu.Unlock()
	p.q.PerformerFinished(p.id)
}

// lifecycleRecorder checks notification ordering and the single-flight
// invariant.
type lifecycleRecorder struct {
	t         *testing.T
	mu        sync.Mutex
	added     []int
	willRun   []int
	completed []int
	inFlight  int
}

func (r *lifecycleRecorder) CommandAdded(cmd command.Command, index int) {
	r.mu.Lock()
	r.added = append(r.added, index)
	r.mu.Unlock()
}

func (r *lifecycleRecorder) CommandWillRun(cmd command.Command, index int) {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > 1 {
		r.t.Errorf("two commands current at once (index %d)", index)
	}
	r.willRun = append(r.willRun, index)
	r.mu.Unlock()
}

func (r *lifecycleRecorder) CommandCompleted(cmd command.Command, index int) {
	r.mu.Lock()
	r.inFlight--
	r.completed = append(r.completed, index)
	r.mu.Unlock()
}

func moveCmd(id command.PerformerID, x int32) command.Command {
	return command.Move(id, grid.Coordinate{X: x, Y: 0}, grid.Coordinate{X: x + 1, Y: 0}, command.MoveWalk)
}

func newSyncQueue(t *testing.T) (*Queue, *syncPerformer, command.PerformerID) {
	t.Helper()
	id := command.NewPerformerID(1, 0)
	p := &syncPerformer{}
	q := New(stubResolver{id: p}, zap.NewNop())
	return q, p, id
}

func TestContinuousOrderPreservation(t *testing.T) {
	q, _, id := newSyncQueue(t)
	rec := &lifecycleRecorder{t: t}
	q.AddObserver(rec)
	q.SetRunMode(Continuous)

	const n = 10
	for i := 0; i < n; i++ {
		q.Append(moveCmd(id, int32(i)))
	}

	if len(rec.completed) != n {
		t.Fatalf("expected %d completions, got %d", n, len(rec.completed))
	}
	for i := 0; i < n; i++ {
		if rec.added[i] != i || rec.completed[i] != i {
			t.Fatalf("order broken at %d: added=%v completed=%v", i, rec.added, rec.completed)
		}
	}
	if !q.IsFinished() {
		t.Fatal("queue should be finished")
	}
}

func TestRandomAccessDoesNotAutoAdvance(t *testing.T) {
	q, _, id := newSyncQueue(t)
	rec := &lifecycleRecorder{t: t}
	q.AddObserver(rec)

	q.Append(moveCmd(id, 0))
	q.Append(moveCmd(id, 1))
	if len(rec.willRun) != 0 {
		t.Fatal("random-access queue ran without being told")
	}

	q.RunCommand(0)
	if len(rec.completed) != 1 || rec.completed[0] != 0 {
		t.Fatalf("expected only index 0 to complete, got %v", rec.completed)
	}
	if q.IsFinished() {
		t.Fatal("queue must not be finished with a pending command")
	}
}

func TestAsyncCompletionAdvancesContinuousRun(t *testing.T) {
	id := command.NewPerformerID(1, 0)
	p := &asyncPerformer{id: id}
	q := New(stubResolver{id: p}, zap.NewNop())
	p.q = q
	rec := &lifecycleRecorder{t: t}
	q.AddObserver(rec)

	q.Append(moveCmd(id, 0))
	q.Append(moveCmd(id, 1))
	q.SetRunMode(Continuous)
	q.RunCommand(0)

	if len(rec.completed) != 0 {
		t.Fatal("nothing should complete before the performer signals")
	}
	p.finish()
	if len(rec.completed) != 1 {
		t.Fatalf("expected 1 completion, got %d", len(rec.completed))
	}
	p.finish()
	if len(rec.completed) != 2 {
		t.Fatalf("expected 2 completions, got %d", len(rec.completed))
	}
	if !q.IsFinished() {
		t.Fatal("queue should be finished")
	}
}

func TestLateCompletionIsNoOp(t *testing.T) {
	id := command.NewPerformerID(1, 0)
	p := &asyncPerformer{id: id}
	q := New(stubResolver{id: p}, zap.NewNop())
	p.q = q
	rec := &lifecycleRecorder{t: t}
	q.AddObserver(rec)

	q.Append(moveCmd(id, 0))
	q.RunCommand(0)

	// Rewind cancels the in-flight command; the performer's completion
	// arrives afterwards and must be absorbed.
	q.Rewind()
	p.finish()

	if len(rec.completed) != 0 {
		t.Fatalf("late completion produced notifications: %v", rec.completed)
	}
	if p.cancels != 1 {
		t.Fatalf("expected 1 cancel, got %d", p.cancels)
	}
}

func TestCompleteForcesEndStateWithoutAdvancing(t *testing.T) {
	id := command.NewPerformerID(1, 0)
	p := &asyncPerformer{id: id}
	q := New(stubResolver{id: p}, zap.NewNop())
	p.q = q
	rec := &lifecycleRecorder{t: t}
	q.AddObserver(rec)

	q.Append(moveCmd(id, 0))
	q.Append(moveCmd(id, 1))
	q.SetRunMode(Continuous)
	q.RunCommand(0)

	q.Complete()
	if len(rec.completed) != 1 {
		t.Fatalf("expected forced completion of index 0, got %v", rec.completed)
	}
	if p.applied != 1 {
		t.Fatalf("forced completion must apply the state change, applied=%d", p.applied)
	}
	if len(rec.willRun) != 1 {
		t.Fatal("Complete must not auto-advance to the next command")
	}

	// Completing an idle queue is a no-op.
	q.Complete()
	if len(rec.completed) != 1 {
		t.Fatal("Complete on idle queue produced a completion")
	}
}

func TestRewindReappliesInOrderAndIsIdempotent(t *testing.T) {
	q, p, id := newSyncQueue(t)

	q.Append(moveCmd(id, 0))
	q.Append(command.Turn(id, grid.North, true))
	q.Append(command.Collect(id, command.NewPerformerID(7, 0)))

	q.Rewind()
	want := []command.Kind{command.KindMove, command.KindTurn, command.KindRemove}
	got := p.appliedKinds()
	if len(got) != len(want) {
		t.Fatalf("expected %d applications, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("application %d: got %v want %v", i, got[i], want[i])
		}
	}

	// A second rewind re-applies the identical sequence.
	q.Rewind()
	got = p.appliedKinds()
	if len(got) != 2*len(want) {
		t.Fatalf("second rewind applied %d total, want %d", len(got), 2*len(want))
	}
	for i := range want {
		if got[len(want)+i] != want[i] {
			t.Fatalf("second pass diverged at %d", i)
		}
	}

	if q.IsFinished() {
		t.Fatal("rewound queue must not be finished")
	}
}

func TestClearMidCommandPanics(t *testing.T) {
	id := command.NewPerformerID(1, 0)
	p := &asyncPerformer{id: id}
	q := New(stubResolver{id: p}, zap.NewNop())
	p.q = q
	q.Append(moveCmd(id, 0))
	q.RunCommand(0)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic clearing mid-command")
		}
	}()
	q.Clear()
}

func TestRunOutOfRangePanics(t *testing.T) {
	q, _, _ := newSyncQueue(t)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range index")
		}
	}()
	q.RunCommand(3)
}

func TestCollapsePlacement(t *testing.T) {
	q, _, _ := newSyncQueue(t)
	item := command.NewPerformerID(9, 0)
	other := command.NewPerformerID(10, 0)

	q.Append(command.Add(item, item))
	q.Append(command.Remove(item, item))
	q.Append(command.Add(other, other))
	q.Barrier()

	// Appended after the barrier: never collapsed.
	q.Append(command.Add(item, item))
	q.Append(command.Remove(item, item))

	elided := q.CollapsePlacement(0, q.Len())
	if elided != 2 {
		t.Fatalf("expected 2 elided commands, got %d", elided)
	}
	cmds := q.Snapshot()
	if len(cmds) != 3 {
		t.Fatalf("expected 3 remaining commands, got %d", len(cmds))
	}
	if cmds[0].Items[0] != other {
		t.Fatal("surviving pre-barrier command is wrong")
	}
}

func TestCollapseIgnoresPickupsAndMismatches(t *testing.T) {
	q, _, _ := newSyncQueue(t)
	actor := command.NewPerformerID(1, 0)
	a := command.NewPerformerID(9, 0)
	b := command.NewPerformerID(10, 0)

	q.Append(command.Add(a, a))
	q.Append(command.Collect(actor, a)) // pickup, never elided
	q.Append(command.Add(b, b))
	q.Append(command.Remove(a, a)) // different item set than previous add
	q.Barrier()

	if elided := q.CollapsePlacement(0, q.Len()); elided != 0 {
		t.Fatalf("expected no elisions, got %d", elided)
	}
}

func TestDerivedQueries(t *testing.T) {
	q, _, id := newSyncQueue(t)
	gem := command.NewPerformerID(9, 0)
	q.SetRunMode(Continuous)

	q.Append(moveCmd(id, 0))
	q.Append(command.Turn(id, grid.North, true))
	q.Append(command.Collect(id, gem))

	if q.CompletedCount(command.KindMove) != 1 {
		t.Fatalf("move count = %d, want 1", q.CompletedCount(command.KindMove))
	}
	if q.CompletedCount(command.KindRemove) != 1 {
		t.Fatalf("remove count = %d, want 1", q.CompletedCount(command.KindRemove))
	}
	if got := len(q.CompletedFor(id)); got != 3 {
		t.Fatalf("completed-for = %d, want 3", got)
	}
	if q.PendingCollectCount() != 0 {
		t.Fatalf("pending collects = %d, want 0", q.PendingCollectCount())
	}

	// A rewound queue has everything pending again.
	q.SetRunMode(RandomAccess)
	q.Rewind()
	if q.PendingCollectCount() != 1 {
		t.Fatalf("pending collects after rewind = %d, want 1", q.PendingCollectCount())
	}
}
