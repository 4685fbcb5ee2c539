// Package websocket serves the sync protocol to browsers: one websocket
// text message per protocol envelope, plus a JSON health endpoint.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/proxsync/internal/config"
	"github.com/cory-johannsen/proxsync/internal/gameserver"
	"github.com/cory-johannsen/proxsync/internal/protocol"
)

const shutdownTimeout = 5 * time.Second

// SessionServer is the part of the sync service the websocket front end
// needs.
type SessionServer interface {
	Serve(ctx context.Context, t gameserver.Transport) error
	Roster() []protocol.PlayerState
}

// Health is the body of GET /healthz.
type Health struct {
	Status   string  `json:"status"`
	Players  int     `json:"players"`
	TickRate int     `json:"tickRate"`
	Radius   float64 `json:"radius"`
}

// Server upgrades HTTP requests on the configured path and runs each
// websocket as one participant.
type Server struct {
	cfg      config.WebSocketConfig
	sessions SessionServer
	tickRate int
	radius   float64
	logger   *zap.Logger
	upgrader gws.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	http    *http.Server
	addr    string
	stopped bool
}

// NewServer creates a websocket front end. tickRate and radius are reported
// by /healthz.
//
// Precondition: cfg must have passed validation; sessions and logger must be non-nil.
func NewServer(cfg config.WebSocketConfig, sessions SessionServer, tickRate int, radius float64, logger *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		tickRate: tickRate,
		radius:   radius,
		logger:   logger,
		upgrader: gws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Any origin may connect; there is no cookie-based state to protect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler returns the HTTP routes: the upgrade path and GET /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc(s.cfg.Path, s.handleUpgrade)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Health{
		Status:   "ok",
		Players:  len(s.sessions.Roster()),
		TickRate: s.tickRate,
		Radius:   s.radius,
	})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	start := time.Now()
	t := newTransport(conn, s.cfg)
	go t.pingLoop()

	if err := s.sessions.Serve(s.ctx, t); err != nil {
		s.logger.Debug("websocket session ended",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return
	}
	s.logger.Info("websocket session ended cleanly",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Duration("duration", time.Since(start)),
	)
}

// Start listens on the configured address and serves until Stop. It blocks.
//
// Postcondition: Returns nil after Stop, or the listen/serve error.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		lis.Close()
		return nil
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.http = srv
	s.addr = lis.Addr().String()
	s.mu.Unlock()

	s.logger.Info("websocket server listening",
		zap.String("addr", lis.Addr().String()),
		zap.String("path", s.cfg.Path),
	)
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop ends every open session, shuts the HTTP server down, and waits for
// the session handlers to return.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	srv := s.http
	s.mu.Unlock()

	s.cancel()
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warn("websocket shutdown", zap.Error(err))
		}
	}
	s.wg.Wait()
	s.logger.Info("websocket server stopped")
}
