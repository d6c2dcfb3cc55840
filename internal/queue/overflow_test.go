package queue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/playgrid/server/internal/command"
)

// collectingSink records every flushed batch.
type collectingSink struct {
	mu      sync.Mutex
	batches [][]command.Command
}

func (s *collectingSink) FlushBatch(cmds []command.Command) {
	s.mu.Lock()
	s.batches = append(s.batches, cmds)
	s.mu.Unlock()
}

func (s *collectingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func newOverflowQueue(t *testing.T, high, low int, timeout time.Duration) (*Queue, *Controller, *collectingSink, command.PerformerID) {
	t.Helper()
	id := command.NewPerformerID(1, 0)
	p := &syncPerformer{}
	q := New(stubResolver{id: p}, zap.NewNop())
	sink := &collectingSink{}
	ctrl := NewController(high, low, timeout, sink, zap.NewNop())
	q.SetOverflow(ctrl)
	return q, ctrl, sink, id
}

func TestNoFlushBelowHighWatermark(t *testing.T) {
	q, ctrl, sink, id := newOverflowQueue(t, 500, 50, time.Second)

	for i := 0; i < 500; i++ {
		q.Append(moveCmd(id, int32(i)))
	}
	if sink.count() != 0 {
		t.Fatalf("flushed %d batches below the watermark", sink.count())
	}
	if !ctrl.Ready() {
		t.Fatal("controller must stay ready below the watermark")
	}
	if err := ctrl.AwaitReady(); err != nil {
		t.Fatalf("AwaitReady: %v", err)
	}
	if q.Len() != 500 {
		t.Fatalf("queue drained early, len=%d", q.Len())
	}
}

func TestCrossingWatermarkFlushesOnce(t *testing.T) {
	q, ctrl, sink, id := newOverflowQueue(t, 500, 50, time.Second)

	for i := 0; i < 501; i++ {
		q.Append(moveCmd(id, int32(i)))
	}
	if sink.count() != 1 {
		t.Fatalf("expected exactly 1 flush, got %d", sink.count())
	}
	if got := len(sink.batches[0]); got != 501 {
		t.Fatalf("flushed batch has %d commands, want 501", got)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not cleared after flush, len=%d", q.Len())
	}
	if ctrl.Ready() {
		t.Fatal("controller must be suspended after a flush")
	}
	if ctrl.Flushes() != 1 {
		t.Fatalf("flushes=%d, want 1", ctrl.Flushes())
	}

	// The producer can keep appending; a second flush needs another full
	// high-watermark crossing.
	q.Append(moveCmd(id, 1000))
	if sink.count() != 1 {
		t.Fatal("single append after flush must not flush again")
	}
}

func TestFlushCompletesInFlightCommand(t *testing.T) {
	high := 3
	id := command.NewPerformerID(1, 0)
	p := &asyncPerformer{id: id}
	q := New(stubResolver{id: p}, zap.NewNop())
	p.q = q
	sink := &collectingSink{}
	ctrl := NewController(high, 1, time.Second, sink, zap.NewNop())
	q.SetOverflow(ctrl)
	q.SetRunMode(Continuous)

	// The first append starts running and parks in the performer; the
	// crossing append must force it to its end state, not deadlock.
	for i := 0; i < high+1; i++ {
		q.Append(moveCmd(id, int32(i)))
	}
	if sink.count() != 1 {
		t.Fatalf("expected 1 flush, got %d", sink.count())
	}
	if p.cancels == 0 {
		t.Fatal("in-flight command was not cancelled by the flush")
	}
	if q.Len() != 0 {
		t.Fatalf("queue not cleared, len=%d", q.Len())
	}
	if ctrl.Flushes() != 1 {
		t.Fatalf("flushes=%d, want 1", ctrl.Flushes())
	}
}

func TestAwaitReadyBlocksUntilSignal(t *testing.T) {
	q, ctrl, _, id := newOverflowQueue(t, 2, 1, 5*time.Second)
	for i := 0; i < 3; i++ {
		q.Append(moveCmd(id, int32(i)))
	}
	if ctrl.Ready() {
		t.Fatal("controller should be suspended")
	}

	released := make(chan error, 1)
	go func() { released <- ctrl.AwaitReady() }()

	select {
	case <-released:
		t.Fatal("AwaitReady returned before the consumer signalled")
	case <-time.After(50 * time.Millisecond):
	}

	ctrl.SignalReady()
	select {
	case err := <-released:
		if err != nil {
			t.Fatalf("AwaitReady: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("AwaitReady did not wake after SignalReady")
	}
	if !ctrl.Ready() {
		t.Fatal("controller should be ready again")
	}
}

func TestAwaitReadyTimesOut(t *testing.T) {
	q, ctrl, _, id := newOverflowQueue(t, 2, 1, 30*time.Millisecond)
	for i := 0; i < 3; i++ {
		q.Append(moveCmd(id, int32(i)))
	}

	err := ctrl.AwaitReady()
	if !errors.Is(err, ErrConsumerStalled) {
		t.Fatalf("expected ErrConsumerStalled, got %v", err)
	}
}

func TestReportDrainedSignalsExactlyOnceAtLowWatermark(t *testing.T) {
	q, ctrl, _, id := newOverflowQueue(t, 500, 50, time.Second)
	for i := 0; i < 501; i++ {
		q.Append(moveCmd(id, int32(i)))
	}

	// 450 drained of 501 leaves 51 remaining: still above the threshold.
	ctrl.ReportDrained(450)
	if ctrl.Ready() {
		t.Fatal("signalled above the low watermark")
	}
	// One more leaves exactly 50 remaining.
	ctrl.ReportDrained(1)
	if !ctrl.Ready() {
		t.Fatal("no signal at the low watermark")
	}

	// Draining the rest must not re-signal or panic on a closed channel.
	ctrl.ReportDrained(50)
	if !ctrl.Ready() {
		t.Fatal("ready flag lost after full drain")
	}
}

func TestRedundantSignalsAbsorbed(t *testing.T) {
	q, ctrl, _, id := newOverflowQueue(t, 2, 1, time.Second)
	for i := 0; i < 3; i++ {
		q.Append(moveCmd(id, int32(i)))
	}
	ctrl.SignalReady()
	ctrl.SignalReady() // second close would panic if not absorbed
	if err := ctrl.AwaitReady(); err != nil {
		t.Fatalf("AwaitReady: %v", err)
	}
}
