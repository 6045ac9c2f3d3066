// Package simulation is the culture time-stepping engine.
//
// A run is a pure function of its Input: the engine builds a private culture,
// then for every step it updates the shared medium, advances every cell from
// the step-start state into a separate outcome buffer, resolves division
// against the culture capacity and emits one Snapshot. Per-cell updates read
// only the step-start state and may run on several goroutines; the medium
// update and the capacity decision have a single writer.
//
// Randomness is derived from the run seed alone:
//
//   - initial cycle positions from one PCG stream per run,
//   - each cell's maintenance multiplier from a PCG stream keyed by (seed, cell ID),
//   - each cell's death key from a PCG stream keyed by (seed, step, cell ID),
//   - the step's death count from a PCG stream keyed by (seed, step),
//   - a daughter's claim on a contested slot from a PCG stream keyed by (seed, daughter ID).
//
// Daughter IDs follow the lineage (parent ID and mitosis count) rather than
// birth order, and the death count is a binomial quantile of a single draw.
// Two runs that differ only in drug concentration therefore share their
// random numbers cell by cell, and the higher concentration never kills fewer
// cells of a step from the same population.
//
// Results are byte-identical for the same seed whatever the worker count.
//
// Usage:
//
//	eng := simulation.NewEngine(simulation.DefaultConfig(), logger)
//	res, err := eng.Run(ctx, simulation.Input{
//	    Line:        line,
//	    Environment: models.OptimalEnvironment(),
//	    Params:      models.ExperimentParams{InitialCells: 500, Duration: 72, TimeInterval: 1},
//	    CultureSize: 1000,
//	    Seed:        42,
//	})
package simulation
