package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"larkgate/internal/bridge"
	"larkgate/internal/config"
	"larkgate/internal/mcpserver"
	"larkgate/internal/tools"
	"larkgate/pkg/logging"
)

// Deps are the components the HTTP surface dispatches to.
type Deps struct {
	Bridge   *bridge.Bridge
	Registry *tools.Registry
	Executor tools.Executor
	Tokens   TokenSourceFunc
	// MCP is nil when the MCP transports are disabled.
	MCP     *mcpserver.Server
	Version string
}

// Server is the gateway's HTTP listener.
type Server struct {
	cfg        config.ServerConfig
	cors       *CORS
	handler    http.Handler
	httpServer *http.Server
}

// New wires every route behind the request id, access log and CORS
// middleware.
func New(cfg config.ServerConfig, origins []string, deps Deps) *Server {
	s := &Server{
		cfg:  cfg,
		cors: NewCORS(origins),
	}

	mux := http.NewServeMux()
	bridge.NewHandler(deps.Bridge, cfg.PublicURL).Register(mux)

	gw := &Gateway{
		registry:     deps.Registry,
		exec:         deps.Executor,
		tokens:       deps.Tokens,
		publicURL:    cfg.PublicURL,
		callbackPath: deps.Bridge.CallbackPath(),
		version:      deps.Version,
		mcpEnabled:   deps.MCP != nil,
	}
	gw.Register(mux)

	if deps.MCP != nil {
		deps.MCP.Register(mux)
	}

	accessLog := AccessLog(func(msg string, attrs ...slog.Attr) {
		logging.InfoAttrs("HTTP", msg, attrs...)
	})
	s.handler = RequestID(accessLog(s.cors.Middleware(mux)))

	s.httpServer = &http.Server{
		Addr:              cfg.Address(),
		Handler:           s.handler,
		ReadHeaderTimeout: orDefault(cfg.ReadHeaderTimeout, config.DefaultReadHeaderTimeout),
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       orDefault(cfg.IdleTimeout, config.DefaultIdleTimeout),
	}
	if deps.MCP != nil {
		s.httpServer.RegisterOnShutdown(deps.MCP.Close)
	}
	return s
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetAllowedOrigins applies a new CORS origin list to subsequent requests.
func (s *Server) SetAllowedOrigins(origins []string) {
	s.cors.SetAllowedOrigins(origins)
	logging.Info("HTTP", "Applied %d allowed CORS origins", len(origins))
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	logging.Info("HTTP", "Listening on %s", l.Addr())
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and serves.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address(), err)
	}
	return s.Serve(l)
}

// Shutdown drains in-flight requests, bounded by the configured shutdown
// timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, orDefault(s.cfg.ShutdownTimeout, config.DefaultShutdownTimeout))
	defer cancel()

	logging.Info("HTTP", "Shutting down")
	return s.httpServer.Shutdown(ctx)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
