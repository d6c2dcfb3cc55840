package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/playgrid/server/internal/command"
	"github.com/playgrid/server/internal/queue"
	"github.com/playgrid/server/internal/transport/wire"
)

// Session is one connected viewer. Network I/O runs in dedicated reader and
// writer goroutines; the engine only touches the outbound queue.
type Session struct {
	ID   uint64
	conn *websocket.Conn
	ctrl *queue.Controller
	log  *zap.Logger

	out          chan []byte
	writeTimeout time.Duration
	pongTimeout  time.Duration

	closeCh   chan struct{}
	closeOnce sync.Once
}

func NewSession(conn *websocket.Conn, id uint64, outSize int, writeTimeout, pongTimeout time.Duration, ctrl *queue.Controller, log *zap.Logger) *Session {
	return &Session{
		ID:           id,
		conn:         conn,
		ctrl:         ctrl,
		log:          log.With(zap.Uint64("viewer", id)),
		out:          make(chan []byte, outSize),
		writeTimeout: writeTimeout,
		pongTimeout:  pongTimeout,
		closeCh:      make(chan struct{}),
	}
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// readLoop consumes viewer messages. The only inbound payloads are the
// flow-control signals — incremental drain progress and the ready-for-more
// acknowledgement; everything else is a protocol error worth logging, not
// acting on.
func (s *Session) readLoop() {
	defer s.Close()
	s.conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		if len(data) == 0 {
			continue
		}
		switch data[0] {
		case wire.OpReady:
			s.ctrl.SignalReady()
		case wire.OpDrained:
			n, err := wire.DecodeDrained(data)
			if err != nil || n <= 0 {
				s.log.Warn("malformed drain report")
				continue
			}
			s.ctrl.ReportDrained(n)
		default:
			s.log.Warn("unexpected viewer message", zap.Uint8("opcode", data[0]))
		}
	}
}

func (s *Session) writeLoop() {
	ping := time.NewTicker(s.pongTimeout * 9 / 10)
	defer ping.Stop()
	defer s.conn.Close()
	for {
		select {
		case <-s.closeCh:
			return
		case msg := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				s.log.Warn("viewer write failed", zap.Error(err))
				s.Close()
				return
			}
		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}

// send enqueues one message. Messages for a closed or saturated session are
// dropped with a diagnostic; the log itself is never mutated by transport
// failures.
func (s *Session) send(msg []byte) {
	select {
	case <-s.closeCh:
		s.log.Debug("viewer gone, message dropped")
	case s.out <- msg:
	default:
		s.log.Warn("viewer outbound queue full, message dropped")
	}
}

// FlushBatch implements queue.FlushSink: the whole batch is serialized as
// individual command messages followed by the batch-done flow-control
// marker.
func (s *Session) FlushBatch(cmds []command.Command) {
	for _, cmd := range cmds {
		s.send(wire.EncodeCommand(cmd))
	}
	s.send(wire.EncodeBatchDone(len(cmds)))
}

// SendFinished transmits the terminating message.
func (s *Session) SendFinished(f wire.Finish) {
	s.send(wire.EncodeFinished(f))
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.conn.Close()
	})
}
