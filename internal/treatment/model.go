// Package treatment converts a drug exposure into a per-hour kill hazard
// using a Hill-type dose-response curve.
//
// The hazard is calibrated against the run duration T so that sustained
// exposure at concentration c leaves a surviving fraction of
//
//	S(c) = (1 + (c/IC50)^n)^(-MaxEffect)
//
// of the exposed cohort after T hours. At c = IC50 and MaxEffect = 1 that is
// exactly 50%. The same closed form drives the optimal-dose prediction.
package treatment

import (
	"fmt"
	"math"

	"github.com/nvandessel/celldyn/internal/constants"
	"github.com/nvandessel/celldyn/internal/models"
)

// Model is the immutable treatment for one run.
type Model struct {
	kind          models.TreatmentType
	drugClass     string
	concentration float64
	sensitivity   models.DrugSensitivity
	duration      float64
	hazard        float64
}

// New builds the treatment model for a run of duration hours on the given
// cell line. An unknown drug class is a configuration error.
func New(line models.CellLineParameters, t models.Treatment, duration float64) (*Model, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if !(duration > 0) {
		return nil, models.NewInvalidParameterError("experimentParams.duration", fmt.Sprintf("duration must be positive, got %v", duration))
	}

	m := &Model{kind: t.Type, duration: duration}
	if t.Type == models.TreatmentNone {
		return m, nil
	}

	sens, ok := line.Sensitivity(t.DrugClass)
	if !ok {
		return nil, models.NewConfigurationError("treatment.drugClass",
			fmt.Sprintf("drug class %q is not configured for cell line %s (known: %v)", t.DrugClass, line.Name, line.DrugClasses()))
	}

	m.drugClass = t.DrugClass
	m.concentration = t.Concentration
	m.sensitivity = sens
	m.hazard = sens.MaxEffect * LogKill(t.Concentration, sens) / duration
	if math.IsNaN(m.hazard) || math.IsInf(m.hazard, 0) {
		return nil, models.NewInvalidParameterError("treatment.concentration",
			fmt.Sprintf("concentration %v produces a non-finite hazard", t.Concentration))
	}
	return m, nil
}

// None returns a model with zero hazard.
func None() *Model {
	return &Model{kind: models.TreatmentNone}
}

// Hazard returns the constant per-hour kill rate.
func (m *Model) Hazard() float64 {
	if m == nil {
		return 0
	}
	return m.hazard
}

// Effect returns the Hill fraction h(c) in [0, 1).
func (m *Model) Effect() float64 {
	if m == nil || m.kind == models.TreatmentNone {
		return 0
	}
	return HillFraction(m.concentration, m.sensitivity.IC50, Hill(m.sensitivity))
}

// DeathProbability returns the probability that a cell is killed by the drug
// during a step of dt hours.
func (m *Model) DeathProbability(dt float64) float64 {
	return -math.Expm1(-m.Hazard() * dt)
}

// Survival returns the fraction of the exposed cohort expected to survive the run.
func (m *Model) Survival() float64 {
	if m == nil || m.kind == models.TreatmentNone {
		return 1
	}
	return Survival(m.concentration, m.sensitivity)
}

// DrugClass returns the drug class, or "" for untreated runs.
func (m *Model) DrugClass() string {
	return m.drugClass
}

// Hill returns the effective cooperativity exponent of s.
func Hill(s models.DrugSensitivity) float64 {
	if s.Hill > 0 {
		return s.Hill
	}
	return constants.DefaultHillCoefficient
}

// ToxicThreshold returns the effective toxicity bound of s in μM.
func ToxicThreshold(s models.DrugSensitivity) float64 {
	if s.ToxicThreshold > 0 {
		return s.ToxicThreshold
	}
	return constants.DefaultToxicMultiple * s.IC50
}

// HillFraction returns c^n / (IC50^n + c^n).
func HillFraction(c, ic50, n float64) float64 {
	if c <= 0 {
		return 0
	}
	r := math.Pow(c/ic50, n)
	return r / (1 + r)
}

// LogKill returns -ln(1 - h(c)) = ln(1 + (c/IC50)^n), the cumulative log-kill
// of sustained exposure before MaxEffect scaling.
func LogKill(c float64, s models.DrugSensitivity) float64 {
	if c <= 0 {
		return 0
	}
	return math.Log1p(math.Pow(c/s.IC50, Hill(s)))
}

// Survival returns (1 + (c/IC50)^n)^(-MaxEffect).
func Survival(c float64, s models.DrugSensitivity) float64 {
	return math.Exp(-s.MaxEffect * LogKill(c, s))
}

// DoseForSurvival inverts Survival: the concentration leaving the target
// surviving fraction. target must be in (0, 1).
func DoseForSurvival(target float64, s models.DrugSensitivity) (float64, error) {
	if !(target > 0 && target < 1) {
		return 0, models.NewInvalidParameterError("target", fmt.Sprintf("target survival must be in (0,1), got %v", target))
	}
	ratio := math.Expm1(-math.Log(target)/s.MaxEffect)
	return s.IC50 * math.Pow(ratio, 1/Hill(s)), nil
}
