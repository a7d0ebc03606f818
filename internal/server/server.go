package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/ubxrelay/internal/logging"
)

// DefaultAddr is the listen address used when Config.Addr is empty
const DefaultAddr = ":8090"

// Config holds the server configuration
type Config struct {
	Addr     string
	CertPath string // Serve TLS when both CertPath and KeyPath are set
	KeyPath  string
}

// Option configures a Server
type Option func(*Server)

// WithMetrics serves h on /metrics
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithStatus adds the relay section to /status
func WithStatus(fn StatusFunc) Option {
	return func(s *Server) { s.status = fn }
}

// Server exposes the websocket hub, metrics and status over HTTP
type Server struct {
	config    Config
	hub       *Hub
	metrics   http.Handler
	status    StatusFunc
	tlsConfig *tls.Config
	now       func() time.Time
	started   time.Time

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
}

// New creates a Server for hub. TLS material is loaded immediately so
// configuration errors surface before the relay starts.
func New(config Config, hub *Hub, opts ...Option) (*Server, error) {
	if hub == nil {
		return nil, errors.New("server: nil hub")
	}
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}

	s := &Server{
		config: config,
		hub:    hub,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if config.CertPath != "" || config.KeyPath != "" {
		if config.CertPath == "" || config.KeyPath == "" {
			return nil, errors.New("server: both cert and key are required for TLS")
		}
		tlsConfig, err := NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, err
		}
		s.tlsConfig = tlsConfig
	}

	return s, nil
}

// Listen binds the listen address. Start calls it when needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound TCP port, or 0 before Listen
func (s *Server) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	s.started = s.now()
	s.http = &http.Server{
		Handler:           s.newMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv, ln := s.http, s.listener
	s.mu.Unlock()

	logging.Info("HTTP server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Any("tls_info", GetTLSInfo(s.tlsConfig)),
		zap.Bool("metrics", s.metrics != nil),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

// Shutdown disconnects stream clients and stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down HTTP server...")

	s.hub.Close()

	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		return srv.Close()
	}
	return nil
}
