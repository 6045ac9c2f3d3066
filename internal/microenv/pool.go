// Package microenv models the shared culture medium: glucose, oxygen and
// lactate pools consumed by cells and replenished by perfusion, plus the
// environmental stress factor derived from temperature and pH.
package microenv

import (
	"math"

	"github.com/nvandessel/celldyn/internal/constants"
	"github.com/nvandessel/celldyn/internal/models"
)

// Pool holds normalized resource levels in [0, 1].
// A Pool has a single writer: the engine updates it once per step.
type Pool struct {
	Glucose float64
	Oxygen  float64
	Lactate float64
}

// Levels is the read-only view of the pool that every cell sees during a step.
type Levels struct {
	Glucose float64
	Oxygen  float64
	Lactate float64

	// Supply is the fraction of metabolic demand that was met this step.
	// Every viable cell receives the same ATP credit share.
	Supply float64

	// Starving is set when glucose or oxygen is below the low-resource threshold.
	Starving bool
}

// NewPool returns a freshly fed culture: glucose and oxygen full, no lactate.
func NewPool() *Pool {
	return &Pool{
		Glucose: constants.InitialGlucose,
		Oxygen:  constants.InitialOxygen,
		Lactate: constants.InitialLactate,
	}
}

// Levels returns the current pool levels without advancing time.
func (p *Pool) Levels() Levels {
	return Levels{
		Glucose:  p.Glucose,
		Oxygen:   p.Oxygen,
		Lactate:  p.Lactate,
		Supply:   1,
		Starving: p.Starving(),
	}
}

// Starving reports whether glucose or oxygen is below the low-resource threshold.
func (p *Pool) Starving() bool {
	return p.Glucose < constants.LowResourceThreshold || p.Oxygen < constants.LowResourceThreshold
}

// Update advances the pool by dt hours for viable cells in a vessel sized for
// capacity cells, and returns the levels cells read for this step.
func (p *Pool) Update(viable, capacity int, dt float64) Levels {
	supply := 1.0
	if viable > 0 && capacity > 0 && dt > 0 {
		occupancy := float64(viable) / float64(capacity)

		glucoseDemand := occupancy * constants.GlucoseUptake * dt
		glucoseUsed := math.Min(glucoseDemand, p.Glucose)
		oxygenDemand := occupancy * constants.OxygenUptake * dt
		oxygenUsed := math.Min(oxygenDemand, p.Oxygen)

		p.Glucose -= glucoseUsed
		p.Oxygen -= oxygenUsed
		p.Lactate += constants.LactateYield * glucoseUsed

		supply = math.Min(satisfaction(glucoseUsed, glucoseDemand), satisfaction(oxygenUsed, oxygenDemand))
	}

	if dt > 0 {
		p.Lactate *= math.Exp(-constants.LactateClearance * dt)

		perfused := 1 - math.Exp(-constants.PerfusionRate*dt)
		p.Glucose += (constants.InitialGlucose - p.Glucose) * perfused
		p.Lactate += (constants.InitialLactate - p.Lactate) * perfused

		oxygenated := 1 - math.Exp(-constants.OxygenationRate*dt)
		p.Oxygen += (constants.InitialOxygen - p.Oxygen) * oxygenated
	}

	p.Glucose = clamp01(p.Glucose)
	p.Oxygen = clamp01(p.Oxygen)
	p.Lactate = clamp01(p.Lactate)

	return Levels{
		Glucose:  p.Glucose,
		Oxygen:   p.Oxygen,
		Lactate:  p.Lactate,
		Supply:   supply,
		Starving: p.Starving(),
	}
}

func satisfaction(used, demand float64) float64 {
	if demand <= 0 {
		return 1
	}
	return clamp01(used / demand)
}

// StressFactor maps temperature and pH deviations from the canonical optimum
// to a progression multiplier in [MinStressFactor, 1].
func StressFactor(env models.Environment) float64 {
	dT := math.Abs(env.Temperature-constants.OptimalTemperature) / constants.OptimalTemperature
	dPH := math.Abs(env.PH-constants.OptimalPH) / constants.OptimalPH
	s := 1 - constants.TemperaturePenalty*dT - constants.PHPenalty*dPH
	if s < constants.MinStressFactor {
		return constants.MinStressFactor
	}
	if s > 1 {
		return 1
	}
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
