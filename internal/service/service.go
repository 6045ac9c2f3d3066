// Package service is the calling layer shared by the CLI, HTTP and MCP
// transports. It validates requests, bounds their cost, resolves cell lines
// from the registry and runs the engine or the predictor. It holds no
// simulation state between calls.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/celldyn/internal/config"
	"github.com/nvandessel/celldyn/internal/logging"
	"github.com/nvandessel/celldyn/internal/metrics"
	"github.com/nvandessel/celldyn/internal/models"
	"github.com/nvandessel/celldyn/internal/prediction"
	"github.com/nvandessel/celldyn/internal/registry"
	"github.com/nvandessel/celldyn/internal/simulation"
	"github.com/nvandessel/celldyn/internal/treatment"
)

// Features lists the capabilities reported by Health.
var Features = []string{
	"cell-cycle-resolved agents (G1/S/G2/M)",
	"Hill dose-response drug treatment",
	"shared microenvironment (glucose, oxygen, lactate)",
	"ATP and health tracking per cell",
	"deterministic seeded runs",
	"optimal dose prediction",
	"growth forecast",
}

// Options configures a Service. Registry is required; everything else has
// a usable zero value.
type Options struct {
	Registry registry.Registry
	Engine   simulation.Config
	Limits   config.LimitsConfig
	Seed     uint64

	Logger  *slog.Logger
	Trace   *logging.RunTrace
	Metrics *metrics.Metrics
	Version string

	// NewRunID defaults to uuid.NewString.
	NewRunID func() string
}

// Service implements the celldyn operations.
type Service struct {
	registry  registry.Registry
	engine    *simulation.Engine
	predictor *prediction.Predictor
	limits    config.LimitsConfig
	seed      uint64
	logger    *slog.Logger
	trace     *logging.RunTrace
	metrics   *metrics.Metrics
	version   string
	newRunID  func() string
}

// HealthReport is the response of Health.
type HealthReport struct {
	Status    string   `json:"status"`
	Version   string   `json:"version"`
	Features  []string `json:"features"`
	CellLines int      `json:"cell_lines"`
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Registry == nil {
		return nil, errors.New("service: registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	limits := opts.Limits
	def := config.Default().Limits
	if limits.MaxSteps <= 0 {
		limits.MaxSteps = def.MaxSteps
	}
	if limits.MaxCultureSize <= 0 {
		limits.MaxCultureSize = def.MaxCultureSize
	}
	if limits.MaxInitialCells <= 0 {
		limits.MaxInitialCells = def.MaxInitialCells
	}
	newRunID := opts.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	return &Service{
		registry:  opts.Registry,
		engine:    simulation.NewEngine(opts.Engine, logger),
		predictor: prediction.New(opts.Registry),
		limits:    limits,
		seed:      opts.Seed,
		logger:    logger,
		trace:     opts.Trace,
		metrics:   opts.Metrics,
		version:   version,
		newRunID:  newRunID,
	}, nil
}

// FromConfig opens the configured registry and builds a Service around it.
// The caller owns the returned Service and must Close it.
func FromConfig(ctx context.Context, cfg *config.CelldynConfig, opts Options) (*Service, error) {
	reg, err := registry.Open(ctx, registry.Options{
		Backend: cfg.Registry.Backend,
		Path:    cfg.Registry.Path,
		DSN:     cfg.Registry.DSN,
		S3: registry.S3Options{
			Bucket:    cfg.Registry.S3.Bucket,
			Key:       cfg.Registry.S3.Key,
			Region:    cfg.Registry.S3.Region,
			Endpoint:  cfg.Registry.S3.Endpoint,
			PathStyle: cfg.Registry.S3.PathStyle,
		},
	})
	if err != nil {
		return nil, err
	}

	opts.Registry = reg
	opts.Engine = simulation.Config{
		Workers:           cfg.Workers(),
		ParallelThreshold: cfg.Engine.ParallelThreshold,
	}
	opts.Limits = cfg.Limits
	opts.Seed = cfg.Engine.Seed

	s, err := New(opts)
	if err != nil {
		_ = registry.CloseIfSupported(reg)
		return nil, err
	}
	return s, nil
}

// Close releases the registry backend.
func (s *Service) Close() error {
	return registry.CloseIfSupported(s.registry)
}

// Simulate validates req, resolves its cell line and runs the engine.
func (s *Service) Simulate(ctx context.Context, req models.SimulationRequest) (*models.SimulationResult, error) {
	start := time.Now()

	in, err := s.prepare(ctx, req)
	if err != nil {
		label := metrics.UnknownCellLine
		if in.Line != nil {
			label = in.Line.Name
		}
		s.logger.Debug("simulation rejected", "cell_line", req.CellLineName, "error", err)
		s.metrics.ObserveRun(label, metrics.OutcomeRejected, 0, 0, 0)
		return nil, err
	}

	runID := s.newRunID()
	s.trace.Event(logging.EventRunStart, runID, map[string]any{
		"cell_line":     in.Line.Name,
		"treatment":     req.Treatment,
		"initial_cells": in.Params.InitialCells,
		"culture_size":  in.CultureSize,
		"duration":      in.Params.Duration,
		"interval":      in.Params.TimeInterval,
		"steps":         in.Params.Steps(),
		"seed":          in.Seed,
	})

	result, err := s.engine.Run(ctx, in)
	elapsed := time.Since(start)
	if err != nil {
		s.logger.Warn("simulation failed", "run_id", runID, "cell_line", in.Line.Name, "error", err)
		s.trace.Event(logging.EventRunFailed, runID, map[string]any{
			"error": err.Error(),
			"kind":  string(models.KindOf(err)),
		})
		s.metrics.ObserveRun(in.Line.Name, metrics.OutcomeFailed, 0, 0, elapsed)
		return nil, err
	}
	result.RunID = runID

	final, _ := result.Final()
	outcome := metrics.OutcomeComplete
	if result.Extinct {
		outcome = metrics.OutcomeExtinct
		s.trace.Event(logging.EventRunExtinct, runID, map[string]any{"time": result.ExtinctAt, "step": result.Steps})
	}
	s.trace.Event(logging.EventRunComplete, runID, map[string]any{
		"steps":        result.Steps,
		"final_viable": final.Viable,
		"viability":    final.Viability,
		"elapsed_ms":   elapsed.Milliseconds(),
	})
	s.metrics.ObserveRun(in.Line.Name, outcome, result.Steps, final.Viable, elapsed)
	s.logger.Info("simulation complete",
		"run_id", runID,
		"cell_line", in.Line.Name,
		"steps", result.Steps,
		"final_viable", final.Viable,
		"extinct", result.Extinct,
		"elapsed", elapsed)

	return result, nil
}

// prepare turns a request into engine input. Everything that can fail
// before the first step fails here. On error the returned input carries the
// cell line when the registry resolved it.
func (s *Service) prepare(ctx context.Context, req models.SimulationRequest) (simulation.Input, error) {
	if err := req.Validate(); err != nil {
		return simulation.Input{}, err
	}
	if err := s.checkLimits(req); err != nil {
		return simulation.Input{}, err
	}

	line, err := s.registry.Get(ctx, req.CellLineName)
	if err != nil {
		return simulation.Input{}, err
	}
	tm, err := treatment.New(*line, req.Treatment, req.ExperimentParams.Duration)
	if err != nil {
		return simulation.Input{Line: line}, err
	}

	seed := s.seed
	if req.Seed != nil {
		seed = *req.Seed
	}

	return simulation.Input{
		Line:        line,
		Environment: req.Environment,
		Treatment:   tm,
		Params:      req.ExperimentParams,
		CultureSize: req.CultureSize,
		Seed:        seed,
	}, nil
}

func (s *Service) checkLimits(req models.SimulationRequest) error {
	if steps := req.ExperimentParams.Steps(); steps > s.limits.MaxSteps {
		return models.NewInvalidParameterError("experimentParams.timeInterval",
			fmt.Sprintf("run needs %d steps, more than the limit of %d; increase timeInterval or shorten duration", steps, s.limits.MaxSteps))
	}
	if req.CultureSize > s.limits.MaxCultureSize {
		return models.NewInvalidParameterError("cultureSize",
			fmt.Sprintf("cultureSize %d exceeds the limit of %d", req.CultureSize, s.limits.MaxCultureSize))
	}
	if req.ExperimentParams.InitialCells > s.limits.MaxInitialCells {
		return models.NewInvalidParameterError("experimentParams.initialCells",
			fmt.Sprintf("initialCells %d exceeds the limit of %d", req.ExperimentParams.InitialCells, s.limits.MaxInitialCells))
	}
	return nil
}

// PredictDose returns the optimal dose for a (cell line, drug) pairing.
func (s *Service) PredictDose(ctx context.Context, req models.OptimalDoseRequest) (*models.OptimalDosePrediction, error) {
	p, err := s.predictor.OptimalDose(ctx, req)
	s.metrics.ObservePrediction(metrics.PredictionDose, err)
	if err != nil {
		s.logger.Debug("dose prediction rejected", "cell_line", req.CellLineName, "drug", req.DrugClass, "error", err)
		return nil, err
	}
	s.logger.Info("dose predicted", "cell_line", p.CellLine, "drug", p.DrugClass, "dose", p.OptimalDose, "window", p.Window)
	return p, nil
}

// PredictGrowth returns an untreated growth forecast.
func (s *Service) PredictGrowth(ctx context.Context, req models.GrowthRequest) (*models.GrowthPrediction, error) {
	p, err := s.predictor.Growth(ctx, req)
	s.metrics.ObservePrediction(metrics.PredictionGrowth, err)
	if err != nil {
		s.logger.Debug("growth prediction rejected", "cell_line", req.CellLineName, "error", err)
		return nil, err
	}
	s.logger.Info("growth predicted", "cell_line", p.CellLine, "doubling_time", p.PredictedDoublingTime)
	return p, nil
}

// CellLines returns every registered line keyed by name.
func (s *Service) CellLines(ctx context.Context) (map[string]models.CellLineParameters, error) {
	lines, err := s.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing cell lines: %w", err)
	}
	out := make(map[string]models.CellLineParameters, len(lines))
	for _, l := range lines {
		out[l.Name] = l
	}
	return out, nil
}

// Health reports the service status. A registry that cannot be listed
// makes the service "degraded" rather than failing the call.
func (s *Service) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:   "healthy",
		Version:  s.version,
		Features: append([]string(nil), Features...),
	}
	lines, err := s.registry.List(ctx)
	if err != nil {
		s.logger.Warn("registry unavailable", "error", err)
		report.Status = "degraded"
		return report
	}
	report.CellLines = len(lines)
	return report
}
