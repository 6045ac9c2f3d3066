package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/celldyn/internal/cell"
	"github.com/nvandessel/celldyn/internal/constants"
	"github.com/nvandessel/celldyn/internal/logging"
	"github.com/nvandessel/celldyn/internal/microenv"
	"github.com/nvandessel/celldyn/internal/models"
	"github.com/nvandessel/celldyn/internal/treatment"
)

// Stream keys separating the independent random streams of a run.
const (
	streamInit       = 0x63656c6c64796e00
	streamCapacity   = 0x63656c6c64796e01
	streamDeath      = 0x63656c6c64796e02
	streamMetabolism = 0x63656c6c64796e03
	stepStride       = 0x9E3779B97F4A7C15
)

// Config holds tunable parameters for the engine.
type Config struct {
	// Workers is the maximum number of goroutines used for per-cell updates.
	// Values below 2 keep the update on the calling goroutine.
	Workers int

	// ParallelThreshold is the population above which the per-cell update is
	// split across workers. Default: 2048.
	ParallelThreshold int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Workers:           runtime.GOMAXPROCS(0),
		ParallelThreshold: constants.DefaultParallelThreshold,
	}
}

// Input is everything a single run needs. Line is read-only for the run.
type Input struct {
	Line        *models.CellLineParameters
	Environment models.Environment

	// Treatment is the prebuilt treatment model. Nil means untreated.
	Treatment *treatment.Model

	Params      models.ExperimentParams
	CultureSize int
	Seed        uint64
}

// Engine runs simulations. It is stateless between runs and safe for
// concurrent use; all run state lives in Run.
type Engine struct {
	config Config
	logger *slog.Logger
}

// NewEngine creates an engine. A nil logger discards output.
func NewEngine(config Config, logger *slog.Logger) *Engine {
	if config.ParallelThreshold <= 0 {
		config.ParallelThreshold = constants.DefaultParallelThreshold
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{config: config, logger: logger}
}

// Run simulates the culture and returns the ordered snapshot series, starting
// with the initial state. A run that goes extinct stops early; its last
// snapshot reports zero viable cells. Divergence aborts the run and returns
// no snapshots.
func (e *Engine) Run(ctx context.Context, in Input) (*models.SimulationResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	line := in.Line
	params := in.Params
	steps := params.Steps()
	tm := in.Treatment
	if tm == nil {
		tm = treatment.None()
	}

	c := newCulture(line, params.InitialCells, in.CultureSize, in.Seed)
	pool := microenv.NewPool()
	stress := microenv.StressFactor(in.Environment)
	hazard := tm.Hazard()

	result := &models.SimulationResult{
		CellLine: line.Name,
		Seed:     in.Seed,
		Data:     make([]models.Snapshot, 0, steps+1),
	}
	result.Data = append(result.Data, c.snapshot(0, 0, pool.Levels()))

	outcomes := make([]cell.Outcome, 0, in.CultureSize)

	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("simulation cancelled at step %d: %w", step, err)
		}

		dt := params.StepLength(step)
		now := math.Min(float64(step+1)*params.TimeInterval, params.Duration)

		lv := pool.Update(len(c.cells), in.CultureSize, dt)
		stepIn := cell.StepInput{
			Dt:       dt,
			Stress:   stress,
			Glucose:  lv.Glucose,
			Oxygen:   lv.Oxygen,
			Lactate:  lv.Lactate,
			Supply:   lv.Supply,
			Starving: lv.Starving,
			Hazard:   hazard,
		}

		outcomes = outcomes[:len(c.cells)]
		if err := e.advance(ctx, c.cells, outcomes, line, stepIn, in.Seed, step); err != nil {
			return nil, err
		}

		dead := c.resolve(outcomes, step, dt)
		snap := c.snapshot(now, dead, lv)
		if err := checkSnapshot(snap); err != nil {
			return nil, err
		}
		result.Data = append(result.Data, snap)
		result.Steps = step + 1

		e.logger.Log(ctx, logging.LevelTrace, "step",
			"step", step+1,
			"time", now,
			"viable", snap.Viable,
			"dead", snap.Dead,
			"glucose", snap.Glucose,
			"lactate", snap.Lactate)

		if snap.Viable == 0 {
			result.Extinct = true
			result.ExtinctAt = now
			e.logger.Debug("culture extinct", "cell_line", line.Name, "time", now, "step", step+1)
			break
		}
	}

	return result, nil
}

// advance computes every cell's outcome from the step-start state. Outcomes
// are written by index, so chunks never share a slot.
func (e *Engine) advance(ctx context.Context, cells []cell.Cell, out []cell.Outcome, line *models.CellLineParameters, in cell.StepInput, seed uint64, step int) error {
	update := func(lo, hi int) error {
		var src rand.PCG
		for i := lo; i < hi; i++ {
			src.Seed(seed, uint64(step)*stepStride+cells[i].ID)
			o, err := cell.Step(cells[i], line, in, uniform(&src))
			if err != nil {
				return fmt.Errorf("step %d: %w", step+1, err)
			}
			out[i] = o
		}
		return nil
	}

	n := len(cells)
	workers := e.config.Workers
	if workers < 2 || n <= e.config.ParallelThreshold {
		return update(0, n)
	}

	chunk := (n + workers - 1) / workers
	g, _ := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error { return update(lo, hi) })
	}
	return g.Wait()
}

// uniform returns a float64 in [0, 1) from the top 53 bits of src.
func uniform(src *rand.PCG) float64 {
	return float64(src.Uint64()>>11) * 0x1p-53
}

func validateInput(in Input) error {
	if in.Line == nil {
		return models.NewConfigurationError("cellLineName", "cell line parameters are required")
	}
	if err := in.Line.Validate(); err != nil {
		return err
	}
	if err := in.Environment.Validate(); err != nil {
		return err
	}
	if err := in.Params.Validate(); err != nil {
		return err
	}
	if in.CultureSize <= 0 {
		return models.NewInvalidParameterError("cultureSize", fmt.Sprintf("cultureSize must be positive, got %d", in.CultureSize))
	}
	if in.Params.InitialCells > in.CultureSize {
		return models.NewInvalidParameterError("experimentParams.initialCells",
			fmt.Sprintf("initialCells (%d) exceeds cultureSize (%d)", in.Params.InitialCells, in.CultureSize))
	}
	return nil
}

// checkSnapshot rejects aggregates that left their documented ranges.
func checkSnapshot(s models.Snapshot) error {
	fractions := []struct {
		field string
		v     float64
	}{
		{"avg_health", s.AvgHealth},
		{"avg_atp", s.AvgATP},
		{"glucose", s.Glucose},
		{"oxygen", s.Oxygen},
		{"lactate", s.Lactate},
		{"viability", s.Viability / 100},
	}
	for _, f := range fractions {
		if math.IsNaN(f.v) || f.v < 0 || f.v > 1 {
			return models.NewDivergenceError(f.field, fmt.Sprintf("t=%gh: %s = %v outside [0,1]", s.Time, f.field, f.v))
		}
	}
	if s.Phases.Sum() != s.Viable {
		return models.NewDivergenceError("phases", fmt.Sprintf("t=%gh: phase counts %d != viable %d", s.Time, s.Phases.Sum(), s.Viable))
	}
	return nil
}

// newRand returns a PCG-backed generator for one of the run's streams.
func newRand(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}
