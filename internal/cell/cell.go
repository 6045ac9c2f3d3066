// Package cell implements the per-cell cycle state machine with health and
// ATP bookkeeping. Step is a pure function of the prior cell state and the
// step inputs, which lets the engine update cells in any order or in parallel.
package cell

import (
	"fmt"
	"math"

	"github.com/nvandessel/celldyn/internal/constants"
	"github.com/nvandessel/celldyn/internal/models"
)

// Cell is one agent in the culture.
type Cell struct {
	ID         uint64
	Generation int
	Phase      models.Phase

	// Progress is the hours already spent in the current phase.
	Progress float64

	Health float64
	ATP    float64
	Viable bool

	// Mitoses counts completed mitoses, including those the vessel had no
	// room for. Daughter IDs derive from it.
	Mitoses int

	// Metabolism scales the cell's ATP maintenance cost. Zero means 1.
	Metabolism float64
}

// StepInput is everything a cell reads during one step. All cells of a step
// see the same input.
type StepInput struct {
	Dt     float64 // hours
	Stress float64 // progression multiplier in [MinStressFactor, 1]

	Glucose  float64
	Oxygen   float64
	Lactate  float64
	Supply   float64 // fraction of metabolic demand met this step
	Starving bool

	// Hazard is the drug kill rate per hour.
	Hazard float64
}

// Outcome is the next state of a cell after one step.
type Outcome struct {
	Cell Cell

	// Divides is set when the cell completed mitosis this step and asks for a
	// daughter. The engine decides whether the division happens.
	Divides bool

	// Died is set when the cell became non-viable during this step.
	Died bool

	// DeathRate is the per-hour rate of stochastic death (drug kill plus
	// apoptosis) the cell was exposed to this step.
	DeathRate float64

	// DeathKey orders cells for stochastic death: the engine kills the cells
	// with the smallest keys. It is +Inf when DeathRate is zero.
	DeathKey float64
}

// Kill marks the outcome as a death during this step.
func (o *Outcome) Kill() {
	o.Cell.Viable = false
	o.Cell.Phase = models.PhaseDead
	o.Cell.Progress = 0
	o.Divides = false
	o.Died = true
}

// NewAt creates a healthy cell placed at position u in [0,1) along the cycle
// of line, so that a seeded population starts asynchronous.
func NewAt(id uint64, line *models.CellLineParameters, u, metabolism float64) Cell {
	c := Cell{
		ID:         id,
		Phase:      models.PhaseG1,
		Health:     constants.InitialHealth,
		ATP:        constants.InitialATP,
		Viable:     true,
		Metabolism: metabolism,
	}

	offset := u * line.CycleLength()
	for _, phase := range models.CyclePhases {
		d := line.PhaseDuration(phase)
		if offset < d {
			c.Phase = phase
			c.Progress = offset
			return c
		}
		offset -= d
	}
	// u rounded up to the cycle end.
	c.Phase = models.PhaseM
	c.Progress = 0
	return c
}

// Step advances c by one step. u is a uniform draw in [0,1) that sets the
// cell's DeathKey; the caller owns the random source and decides which
// exposed cells die. Step itself only kills cells whose health ran out.
func Step(c Cell, line *models.CellLineParameters, in StepInput, u float64) (Outcome, error) {
	if !c.Viable || c.Phase == models.PhaseDead {
		c.Viable = false
		c.Phase = models.PhaseDead
		return Outcome{Cell: c, DeathKey: math.Inf(1)}, nil
	}

	prevHealth := c.Health
	out := Outcome{}

	c.ATP = clamp01(c.ATP + (constants.ATPYield*in.Supply-c.maintenance())*in.Dt)

	rate := DecayRate(c.ATP, in)
	if rate > 0 {
		c.Health -= rate * in.Dt
	} else {
		c.Health += constants.HealthRecovery * in.Dt
	}
	c.Health = clamp01(c.Health)

	// Progression is driven by the health the cell entered the step with.
	hours := in.Dt * in.Stress * prevHealth
	for hours > 0 {
		remain := line.PhaseDuration(c.Phase) - c.Progress
		if hours < remain {
			c.Progress += hours
			break
		}
		hours -= remain
		c.Progress = 0
		if c.Phase == models.PhaseM {
			c.Phase = models.PhaseG1
			out.Divides = true
			break
		}
		c.Phase = c.Phase.Next()
	}

	if err := checkFinite(c); err != nil {
		return Outcome{}, err
	}

	out.Cell = c
	out.DeathRate = in.Hazard + apoptosisRate(c.Health)
	out.DeathKey = math.Inf(1)
	if out.DeathRate > 0 {
		// Exponential race: P(key < k) = 1-exp(-rate*k).
		out.DeathKey = -math.Log1p(-u) / out.DeathRate
	}
	if c.Health <= 0 {
		out.Kill()
	}
	return out, nil
}

// DeathProbability returns the chance that a cell exposed to rate per hour
// dies within dt hours.
func DeathProbability(rate, dt float64) float64 {
	return -math.Expm1(-rate * dt)
}

// ChildID returns the ID of the daughter parent produces at its next
// mitosis. IDs follow the lineage, so the same cell gets the same ID in every
// run with the same initial population, whatever happened to its relatives.
func ChildID(parent Cell) uint64 {
	x := parent.ID*0x100000001B3 ^ uint64(parent.Mitoses+1)
	x += 0x9E3779B97F4A7C15
	x = (x ^ x>>30) * 0xBF58476D1CE4E5B9
	x = (x ^ x>>27) * 0x94D049BB133111EB
	return x ^ x>>31
}

// MetabolismAt maps a uniform draw u in [0,1) to a maintenance multiplier in
// [1-MetabolicVariability, 1+MetabolicVariability).
func MetabolismAt(u float64) float64 {
	return 1 + constants.MetabolicVariability*(2*u-1)
}

func (c Cell) maintenance() float64 {
	if c.Metabolism <= 0 {
		return constants.ATPMaintenance
	}
	return constants.ATPMaintenance * c.Metabolism
}

// DecayRate returns the per-hour health loss of a cell with the given ATP
// level under in. Zero means the cell recovers instead.
func DecayRate(atp float64, in StepInput) float64 {
	rate := constants.EnvStressDecay * (1 - in.Stress)

	if in.Lactate > constants.LactateToxicThreshold {
		excess := (in.Lactate - constants.LactateToxicThreshold) / (1 - constants.LactateToxicThreshold)
		rate += constants.LactateDecay * excess
	}
	if atp < constants.LowATPThreshold {
		deficit := (constants.LowATPThreshold - atp) / constants.LowATPThreshold
		rate += constants.ATPDepletionDecay * deficit
	}

	rate += constants.DrugDamageFraction * in.Hazard

	if in.Starving {
		rate *= constants.StarvationPenalty
	}
	return rate
}

func apoptosisRate(health float64) float64 {
	if health >= constants.ApoptosisHealthThreshold {
		return 0
	}
	return constants.BasalApoptosisRate * (constants.ApoptosisHealthThreshold - health) / constants.ApoptosisHealthThreshold
}

// Divide splits parent into itself and a fresh G1 daughter with the given
// ID and metabolism. The daughter inherits the parent's health; the parent
// pays the division ATP cost.
func Divide(parent Cell, childID uint64, metabolism float64) (Cell, Cell) {
	parent.ATP = clamp01(parent.ATP - constants.DivisionATPCost)
	child := Cell{
		ID:         childID,
		Generation: parent.Generation + 1,
		Phase:      models.PhaseG1,
		Health:     parent.Health,
		ATP:        constants.ChildATP,
		Viable:     true,
		Metabolism: metabolism,
	}
	return parent, child
}

func checkFinite(c Cell) error {
	values := []struct {
		field string
		v     float64
	}{
		{"health", c.Health},
		{"atp", c.ATP},
		{"progress", c.Progress},
	}
	for _, f := range values {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return models.NewDivergenceError(f.field, fmt.Sprintf("cell %d: %s is %v", c.ID, f.field, f.v))
		}
	}
	return nil
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
