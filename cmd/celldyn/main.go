package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nvandessel/celldyn/internal/config"
	"github.com/nvandessel/celldyn/internal/logging"
	"github.com/nvandessel/celldyn/internal/metrics"
	"github.com/nvandessel/celldyn/internal/service"
)

// Set via -ldflags at release time.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "celldyn",
		Short: "Cell culture simulation and prediction engine",
		Long: `celldyn simulates cell populations growing in culture under
temperature, pH and drug treatment, and predicts optimal doses and
growth from cell-line parameters.

Runs are seeded: the same request and seed always produce the same
snapshot series.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.celldyn/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Override logging.level (info, debug, trace)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSimulateCmd(),
		newPredictCmd(),
		newCellLinesCmd(),
		newServeCmd(),
		newMCPServerCmd(),
		newConfigCmd(),
	)

	return rootCmd
}

// loadConfig reads --config when given, otherwise the default chain
// (file, .env, CELLDYN_* variables), then applies --log-level.
func loadConfig(cmd *cobra.Command) (*config.CelldynConfig, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.CelldynConfig
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		if err := cfg.Set("logging.level", level); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// app bundles the service with the resources it was built from.
type app struct {
	cfg     *config.CelldynConfig
	svc     *service.Service
	logger  *slog.Logger
	trace   *logging.RunTrace
	metrics *metrics.Metrics
}

// openApp loads config and opens the configured registry. Logs go to
// stderr so stdout stays parseable.
func openApp(cmd *cobra.Command, m *metrics.Metrics) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())

	var trace *logging.RunTrace
	if dir, err := config.Dir(); err == nil {
		trace = logging.NewRunTrace(dir, cfg.Logging.Level)
	}

	svc, err := service.FromConfig(cmd.Context(), cfg, service.Options{
		Logger:  logger,
		Trace:   trace,
		Metrics: m,
		Version: version,
	})
	if err != nil {
		trace.Close()
		return nil, err
	}

	return &app{cfg: cfg, svc: svc, logger: logger, trace: trace, metrics: m}, nil
}

func (a *app) Close() {
	_ = a.svc.Close()
	a.trace.Close()
}

// signalContext is cancelled on the first shutdown signal.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, shutdownSignals...)
}

func jsonOutput(cmd *cobra.Command) bool {
	jsonOut, _ := cmd.Flags().GetBool("json")
	return jsonOut
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
