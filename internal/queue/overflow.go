package queue

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/playgrid/server/internal/command"
)

// ErrConsumerStalled is returned when the consumer never signals readiness
// within the configured timeout after a flush.
var ErrConsumerStalled = errors.New("queue: consumer did not signal ready before timeout")

// FlushSink receives a flushed batch of commands as one completed unit. The
// viewer transport implements this; headless runs may record or discard.
type FlushSink interface {
	FlushBatch(cmds []command.Command)
}

// Controller bounds how far the producer may run ahead of the consumer.
// Crossing the high watermark flushes the whole batch to the sink, forces
// the queue through Complete+Rewind+Clear so the producer's view of world
// state stays correct without waiting for animation, and suspends the
// producer until the consumer signals readiness.
type Controller struct {
	high    int
	low     int // remaining-command threshold that re-arms readiness
	timeout time.Duration
	sink    FlushSink
	log     *zap.Logger

	mu         sync.Mutex
	ready      bool
	readyCh    chan struct{} // closed when readiness returns
	drainTotal int
	drained    int
	signalled  bool // one ready signal per drain cycle
	flushes    int
}

func NewController(high, low int, timeout time.Duration, sink FlushSink, log *zap.Logger) *Controller {
	return &Controller{
		high:    high,
		low:     low,
		timeout: timeout,
		sink:    sink,
		log:     log,
		ready:   true,
	}
}

// commandAdded is the admission check Append runs after every append. The
// queue length may exceed the high watermark by exactly the triggering
// command.
func (c *Controller) commandAdded(q *Queue) {
	if q.Len() <= c.high {
		return
	}

	batch := q.Snapshot()

	// Flip consumer-ready before the batch goes out, so an acknowledgement
	// arriving mid-flush is not lost.
	c.mu.Lock()
	c.ready = false
	c.readyCh = make(chan struct{})
	c.drainTotal = len(batch)
	c.drained = 0
	c.signalled = false
	c.flushes++
	c.mu.Unlock()

	if c.sink != nil {
		c.sink.FlushBatch(batch)
	}
	q.Complete()
	q.Rewind()
	q.Clear()

	if c.log != nil {
		c.log.Info("command backlog flushed",
			zap.Int("batch", len(batch)),
			zap.Int("high_watermark", c.high))
	}
}

// AwaitReady blocks the producer until the consumer signals readiness. It
// returns immediately while the controller is ready, and ErrConsumerStalled
// when the signal never arrives within the timeout.
func (c *Controller) AwaitReady() error {
	c.mu.Lock()
	if c.ready {
		c.mu.Unlock()
		return nil
	}
	ch := c.readyCh
	c.mu.Unlock()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		return ErrConsumerStalled
	}
}

// SignalReady marks the consumer ready for more and wakes any suspended
// producer. Redundant signals are absorbed.
func (c *Controller) SignalReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signalReadyLocked()
}

func (c *Controller) signalReadyLocked() {
	if c.ready {
		return
	}
	c.ready = true
	close(c.readyCh)
}

// ReportDrained records consumer progress through the flushed batch. When
// the remaining backlog falls to the low watermark, one ready signal is
// raised for the drain cycle.
func (c *Controller) ReportDrained(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drained += n
	remaining := c.drainTotal - c.drained
	if !c.signalled && !c.ready && remaining <= c.low {
		c.signalled = true
		c.signalReadyLocked()
		if c.log != nil {
			c.log.Debug("consumer drained to low watermark",
				zap.Int("remaining", remaining),
				zap.Int("low_watermark", c.low))
		}
	}
}

// Ready reports the consumer-ready flag.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Flushes reports how many flush-and-suspend cycles have occurred.
func (c *Controller) Flushes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushes
}
