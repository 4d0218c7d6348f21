package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nextron-mcp/internal/browser"
	"github.com/xkilldash9x/nextron-mcp/internal/config"
	"github.com/xkilldash9x/nextron-mcp/internal/mcp"
	"github.com/xkilldash9x/nextron-mcp/internal/observability"
	"github.com/xkilldash9x/nextron-mcp/internal/portal"
)

// shutdownGrace bounds how long closing sessions and the engine may take on exit.
const shutdownGrace = 30 * time.Second

// Seams for tests: the engine launcher and the blocking serve loop.
var (
	newLauncher = browser.PlaywrightLauncher
	serveFunc   = runServe
)

func newServeCmd() *cobra.Command {
	var (
		transport string
		host      string
		port      int
	)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the portal tools over MCP (stdio or SSE)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("transport") {
				cfg.SetTransportMode(transport)
			}
			if flags.Changed("host") {
				cfg.SetTransportHost(host)
			}
			if flags.Changed("port") {
				cfg.SetTransportPort(port)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			return serveFunc(cmd, cfg)
		},
	}

	serveCmd.Flags().StringVarP(&transport, "transport", "t", config.TransportStdio, "transport to serve on: stdio or sse")
	serveCmd.Flags().StringVar(&host, "host", "0.0.0.0", "listen host for the sse transport")
	serveCmd.Flags().IntVarP(&port, "port", "p", 8000, "listen port for the sse transport")
	return serveCmd
}

// runServe wires the tool host and blocks until the context is canceled or the
// transport fails. Sessions and the browser engine are always torn down.
func runServe(cmd *cobra.Command, cfg config.Interface) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()
	defer observability.Sync()

	browserCfg := cfg.Browser()
	sessions := browser.NewManager(newLauncher(browserCfg, logger), browserCfg, logger)
	service := portal.NewService(sessions, cfg.Portal(), logger)
	server := mcp.NewServer(service, Version, logger, mcp.WithStdio(cmd.InOrStdin(), cmd.OutOrStdout()))

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	var janitor sync.WaitGroup
	janitor.Add(1)
	go func() {
		defer janitor.Done()
		sessions.RunJanitor(janitorCtx, browserCfg.ReapInterval)
	}()

	serveErr := server.Serve(ctx, cfg.Transport())
	if serveErr != nil {
		logger.Error("Transport stopped with error.", zap.Error(serveErr))
	}

	stopJanitor()
	janitor.Wait()

	logger.Info("Shutting down sessions.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	service.Shutdown(shutdownCtx)
	logger.Info("Shutdown complete.")

	return serveErr
}
