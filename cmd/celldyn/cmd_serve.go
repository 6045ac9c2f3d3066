package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/celldyn/internal/config"
	"github.com/nvandessel/celldyn/internal/httpapi"
	"github.com/nvandessel/celldyn/internal/mcp"
	"github.com/nvandessel/celldyn/internal/metrics"
	"github.com/nvandessel/celldyn/internal/ratelimit"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON HTTP API",
		Long: `Serve the HTTP API until interrupted.

Endpoints:
  GET  /api/health
  GET  /api/cell-lines
  POST /api/simulate
  POST /api/predict/optimal-dose
  POST /api/predict/growth
  GET  /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, metrics.New())
			if err != nil {
				return err
			}
			defer a.Close()

			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			handler := httpapi.NewHandler(a.svc, httpapi.Options{
				Limiters: ratelimit.NewOperationLimiters(),
				Metrics:  a.metrics,
				Logger:   a.logger,
			})
			srv := httpapi.NewServer(addr, handler, a.cfg.Server.ReadTimeout)

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a.logger.Info("serving HTTP API", "addr", addr, "registry", a.cfg.Registry.String(), "version", version)
			if err := srv.ListenAndServe(ctx); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			a.logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default: server.addr from config)")

	return cmd
}

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Run as an MCP server over stdio",
		Long: `Expose simulation and prediction as MCP tools for AI agents.

Tools: celldyn_simulate, celldyn_predict_dose, celldyn_predict_growth,
celldyn_cell_lines, celldyn_health. Resource: celldyn://cell-lines.
Every tool call is appended to ~/.celldyn/audit.jsonl.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			auditDir, _ := cmd.Flags().GetString("audit-dir")
			if auditDir == "" {
				if dir, err := config.Dir(); err == nil {
					auditDir = dir
				}
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:       "celldyn",
				Version:    version,
				Operations: a.svc,
				AuditDir:   auditDir,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			// stdout carries the protocol; logs stay on stderr.
			a.logger.Info("starting MCP server", "registry", a.cfg.Registry.String(), "audit_dir", auditDir)
			return server.Run(cmd.Context())
		},
	}

	cmd.Flags().String("audit-dir", "", "Directory for audit.jsonl (default ~/.celldyn)")

	return cmd
}
