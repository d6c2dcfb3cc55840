package transport

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/playgrid/server/internal/command"
	"github.com/playgrid/server/internal/config"
	"github.com/playgrid/server/internal/queue"
	"github.com/playgrid/server/internal/transport/wire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The viewer runs on the same machine; origin checks add nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server accepts viewer WebSocket connections on /viewer. One viewer drives
// the stream at a time; a new connection replaces the old one.
type Server struct {
	cfg  config.TransportConfig
	ctrl *queue.Controller
	log  *zap.Logger

	nextID atomic.Uint64
	mu     sync.Mutex
	cur    *Session

	listener net.Listener
	httpSrv  *http.Server
}

func NewServer(cfg config.TransportConfig, ctrl *queue.Controller, log *zap.Logger) *Server {
	return &Server{cfg: cfg, ctrl: ctrl, log: log}
}

// Start binds the listener and serves in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.BindAddress)
	if err != nil {
		return err
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/viewer", s.handleViewer)
	s.httpSrv = &http.Server{Handler: mux}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("viewer server stopped", zap.Error(err))
		}
	}()
	s.log.Info("viewer transport listening", zap.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("viewer upgrade failed", zap.Error(err))
		return
	}

	id := s.nextID.Add(1)
	sess := NewSession(conn, id, s.cfg.OutQueueSize, s.cfg.WriteTimeout.Std(), s.cfg.PongTimeout.Std(), s.ctrl, s.log)
	sess.Start()

	s.mu.Lock()
	old := s.cur
	s.cur = sess
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	s.log.Info("viewer connected", zap.Uint64("viewer", id), zap.String("ip", r.RemoteAddr))
}

// Current returns the attached viewer session, or nil.
func (s *Server) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// FlushBatch implements queue.FlushSink. With no viewer attached the flush
// is a diagnostic no-op: nothing is lost from the producer's point of view,
// but nothing advances remotely until reconnection.
func (s *Server) FlushBatch(cmds []command.Command) {
	sess := s.Current()
	if sess == nil {
		s.log.Warn("no viewer attached, batch not streamed", zap.Int("commands", len(cmds)))
		return
	}
	sess.FlushBatch(cmds)
}

// SendFinished forwards the terminating message to the attached viewer.
func (s *Server) SendFinished(f wire.Finish) {
	sess := s.Current()
	if sess == nil {
		s.log.Debug("no viewer attached, finish not streamed")
		return
	}
	sess.SendFinished(f)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cur
	s.cur = nil
	s.mu.Unlock()
	if cur != nil {
		cur.Close()
	}
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}
