// Package daemon hosts the provider-side endpoint: a WebSocket listener
// feeding the session multiplexer plus health and metrics handlers.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/config"
	"github.com/agentmesh/agentmesh/internal/observability"
	"github.com/agentmesh/agentmesh/internal/session"
	"github.com/agentmesh/agentmesh/internal/transport/ws"
)

// SessionFactory builds a provider session bound to a peer's send callback.
type SessionFactory func(peerDID string, send session.SendFunc) (*session.Session, error)

// Server accepts peer connections and runs provider negotiations.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
	factory SessionFactory
	mux     *session.Mux

	upgrader *ws.Upgrader

	connMu sync.Mutex
	conns  map[string]*ws.Conn

	runCtx context.Context
}

// NewServer constructs a daemon instance.
func NewServer(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics, factory SessionFactory) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		factory:  factory,
		upgrader: ws.NewUpgrader(),
		conns:    make(map[string]*ws.Conn),
	}
	s.mux = session.NewMux(s.newProviderSession, logger, metrics)
	return s
}

// Mux exposes the session multiplexer (used by tests and embedding hosts).
func (s *Server) Mux() *session.Mux {
	return s.mux
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (s *Server) Run(ctx context.Context) error {
	s.runCtx = ctx

	httpMux := http.NewServeMux()
	httpMux.HandleFunc(s.cfg.Server.WSPath, s.wsHandler)
	httpMux.HandleFunc("/health", s.healthHandler)
	httpMux.HandleFunc("/metrics", s.metricsHandler)

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           httpMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting agentmesh provider daemon", zap.String("addr", s.cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down agentmesh provider daemon")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Accept(w, r)
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		s.metrics.RecordTransportError("accept")
		return
	}
	peerDID := conn.PeerDID()
	s.logger.Info("peer connected", zap.String("peer_did", peerDID))

	s.connMu.Lock()
	s.conns[peerDID] = conn
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		delete(s.conns, peerDID)
		s.connMu.Unlock()
		s.mux.Remove(peerDID)
		conn.Close()
		s.logger.Info("peer disconnected", zap.String("peer_did", peerDID))
	}()

	if err := conn.ReadLoop(r.Context(), func(data []byte) {
		s.mux.HandleInbound(peerDID, data)
	}); err != nil {
		s.logger.Debug("read loop ended", zap.String("peer_did", peerDID), zap.Error(err))
	}
}

// newProviderSession is the multiplexer hook: the first frame from an
// unknown DID creates a session bound to that peer's connection and starts
// its driver.
func (s *Server) newProviderSession(peerDID string) (*session.Session, error) {
	s.connMu.Lock()
	conn, ok := s.conns[peerDID]
	s.connMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no connection for peer %s", peerDID)
	}

	sess, err := s.factory(peerDID, conn.Send)
	if err != nil {
		return nil, err
	}

	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		success, modulePath := sess.WaitRemoteNegotiation(ctx)
		s.logger.Info("provider negotiation done",
			zap.String("peer_did", peerDID),
			zap.Bool("success", success),
			zap.String("module_path", modulePath))
		s.mux.Remove(peerDID)
	}()

	return sess, nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}

	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
