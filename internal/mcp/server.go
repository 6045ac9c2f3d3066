// Package mcp provides an MCP (Model Context Protocol) server for celldyn.
package mcp

import (
	"context"
	"errors"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/celldyn/internal/models"
	"github.com/nvandessel/celldyn/internal/ratelimit"
	"github.com/nvandessel/celldyn/internal/service"
)

// Operations is the subset of service.Service the tools call.
type Operations interface {
	Simulate(ctx context.Context, req models.SimulationRequest) (*models.SimulationResult, error)
	PredictDose(ctx context.Context, req models.OptimalDoseRequest) (*models.OptimalDosePrediction, error)
	PredictGrowth(ctx context.Context, req models.GrowthRequest) (*models.GrowthPrediction, error)
	CellLines(ctx context.Context) (map[string]models.CellLineParameters, error)
	Health(ctx context.Context) service.HealthReport
}

// Server wraps the MCP SDK server and exposes the celldyn operations as tools.
type Server struct {
	server       *sdk.Server
	ops          Operations
	toolLimiters ratelimit.OperationLimiters
	auditLogger  *AuditLogger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "celldyn")
	Version string // Server version

	// Operations serves the tool calls. Required.
	Operations Operations

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string

	// Limiters defaults to ratelimit.NewOperationLimiters().
	Limiters ratelimit.OperationLimiters
}

// NewServer creates a new MCP server with celldyn tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Operations == nil {
		return nil, errors.New("mcp: operations are required")
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	limiters := cfg.Limiters
	if limiters == nil {
		limiters = ratelimit.NewOperationLimiters()
	}

	s := &Server{
		server:       mcpServer,
		ops:          cfg.Operations,
		toolLimiters: limiters,
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Close releases the audit log. The operations are owned by the caller.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}
