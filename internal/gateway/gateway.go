// Package gateway serves the session API, health, metrics and live session
// events over HTTP. It binds to loopback by default.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/companion/internal/mission"
	"github.com/flemzord/companion/internal/session"
)

// Options configures a Gateway.
type Options struct {
	Config   Config
	Sessions *session.Registry

	// Missions is optional; the mission routes answer 503 without it.
	Missions *mission.Runner

	// Gatherer serves /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Gateway is the HTTP front of the session registry.
type Gateway struct {
	config    Config
	sessions  *session.Registry
	missions  *mission.Runner
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	startedAt time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New validates opts and builds a gateway.
func New(opts Options) (*Gateway, error) {
	if opts.Sessions == nil {
		return nil, errors.New("gateway: a session registry is required")
	}
	cfg := opts.Config
	cfg.defaults()
	if _, err := net.ResolveTCPAddr("tcp", cfg.Bind); err != nil {
		return nil, fmt.Errorf("gateway: invalid bind address %q: %w", cfg.Bind, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Gateway{
		config:    cfg,
		sessions:  opts.Sessions,
		missions:  opts.Missions,
		gatherer:  gatherer,
		logger:    logger.With("component", "gateway"),
		startedAt: time.Now(),
	}, nil
}

// Handler returns the routed handler.
func (g *Gateway) Handler() http.Handler {
	return g.buildRouter()
}

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.config.Auth.IsConfigured() {
		if host, _, err := net.SplitHostPort(g.config.Bind); err == nil && !isLoopback(host) {
			g.logger.Warn("gateway: API exposed without authentication", "bind", g.config.Bind)
		}
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	srv := &http.Server{
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g.mu.Lock()
	g.server, g.listener = srv, ln
	g.mu.Unlock()

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or "" before Start.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// Stop shuts the server down gracefully within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	srv := g.server
	g.mu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return srv.Shutdown(shutdownCtx)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
