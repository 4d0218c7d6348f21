package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nextron-mcp/internal/config"
)

// ServerName is advertised to clients during initialization.
const ServerName = "nextron-mcp"

const shutdownTimeout = 10 * time.Second

// Server hosts the portal tools over one of the configured transports.
type Server struct {
	logger   *zap.Logger
	service  PortalService
	mcp      *server.MCPServer
	handlers *Handlers

	stdin  io.Reader
	stdout io.Writer
}

// Option customizes a Server.
type Option func(*Server)

// WithStdio replaces the process stdin and stdout used by the stdio transport.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(s *Server) {
		s.stdin = in
		s.stdout = out
	}
}

// NewServer registers every tool against service.
func NewServer(service PortalService, version string, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		logger:  logger.Named("mcp"),
		service: service,
		mcp: server.NewMCPServer(
			ServerName,
			version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handlers = NewHandlers(logger, service)
	s.handlers.RegisterTools(s.mcp)
	return s
}

// MCPServer exposes the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// Serve runs the configured transport until ctx is canceled or the transport fails.
func (s *Server) Serve(ctx context.Context, cfg config.TransportConfig) error {
	switch cfg.Mode {
	case config.TransportStdio:
		return s.serveStdio(ctx)
	case config.TransportSSE:
		return s.serveSSE(ctx, cfg)
	default:
		return fmt.Errorf("unsupported transport %q", cfg.Mode)
	}
}

func (s *Server) serveStdio(ctx context.Context) error {
	s.logger.Info("MCP server listening on stdio.")
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))

	err := stdio.Listen(ctx, s.stdin, s.stdout)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("stdio transport: %w", err)
}

func (s *Server) serveSSE(ctx context.Context, cfg config.TransportConfig) error {
	addr := cfg.Address()
	sse := server.NewSSEServer(s.mcp, server.WithBaseURL(publicBaseURL(cfg)))

	// Streams derive from baseCtx, so canceling it ends them and lets Shutdown finish.
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(sse),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening on SSE.", zap.String("address", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("sse transport: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Stopping SSE transport.")
	cancelStreams()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("SSE transport did not stop cleanly.", zap.Error(err))
		_ = httpServer.Close()
	}
	<-errCh
	return nil
}

// Router serves the SSE transport next to a plain health probe.
func (s *Server) Router(transport http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/*", transport)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.service.Health()); err != nil {
		s.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// publicBaseURL is the address clients are told to post messages to.
func publicBaseURL(cfg config.TransportConfig) string {
	host := cfg.Host
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, fmt.Sprint(cfg.Port))
}
