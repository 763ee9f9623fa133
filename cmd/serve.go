package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/suidriver/internal/server"
	"github.com/giantswarm/suidriver/internal/toolserver"
	"github.com/giantswarm/suidriver/pkg/logging"
)

const shutdownTimeout = 15 * time.Second

type serveOptions struct {
	listen string
	mcp    bool
	noHTTP bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve test suites to a host over HTTP and MCP",
		Long: `Start the driver as a long-running service.

The projects directory is scanned and, unless watch.enabled is false,
watched for changes. Test suites and tasks are exposed through the HTTP
host API on server.listen; Prometheus metrics are served on /metrics.

With --mcp the driver also speaks the Model Context Protocol on stdin and
stdout, so that AI assistants can list suites, start tasks and read their
results. Logs always go to stderr.

Configuration:
  suidriver loads config.yaml from --config-path (default
  $HOME/.config/suidriver). Every setting can be overridden with a
  SUIDRIVER_* environment variable, e.g. SUIDRIVER_PROJECTS_DIR.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.listen, "listen", "", "HTTP listen address (overrides server.listen)")
	cmd.Flags().BoolVar(&opts.mcp, "mcp", false, "Serve MCP tools on stdin/stdout")
	cmd.Flags().BoolVar(&opts.noHTTP, "no-http", false, "Do not start the HTTP host API")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	if opts.noHTTP && !opts.mcp {
		return errors.New("nothing to serve: --no-http requires --mcp")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.listen != "" {
		cfg.Server.Listen = opts.listen
	}

	drv, err := newDriver(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize driver: %w", err)
	}
	defer closeDriver(drv)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := drv.Start(ctx); err != nil {
		return fmt.Errorf("failed to scan %s: %w", cfg.ProjectsDir, err)
	}
	logging.Info("CLI", "Serving %d test suites from %s", drv.Catalog().Len(), cfg.ProjectsDir)

	var httpErrs <-chan error
	if !opts.noHTTP {
		srv := server.New(drv)
		if err := srv.Start(cfg.Server.Listen); err != nil {
			return err
		}
		httpErrs = srv.Errors()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logging.Warn("CLI", "HTTP shutdown: %v", err)
			}
		}()
	}

	mcpDone := make(chan error, 1)
	if opts.mcp {
		ts := toolserver.New(drv)
		go func() {
			mcpDone <- ts.Serve(ctx, os.Stdin, cmd.OutOrStdout())
		}()
	}

	select {
	case <-ctx.Done():
		logging.Info("CLI", "Shutting down")
		return nil
	case err, ok := <-httpErrs:
		if ok && err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case err := <-mcpDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		logging.Info("CLI", "MCP client disconnected, shutting down")
		return nil
	}
}
