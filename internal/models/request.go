package models

import (
	"fmt"
	"math"

	"github.com/nvandessel/celldyn/internal/constants"
)

// TreatmentType selects between untreated and drug-treated runs.
type TreatmentType string

const (
	TreatmentNone TreatmentType = "none"
	TreatmentDrug TreatmentType = "drug"
)

// Environment holds culture conditions. Only deviations from the canonical
// optimum (37°C, pH 7.4) matter to the engine.
type Environment struct {
	Temperature float64 `json:"temperature" yaml:"temperature"`
	PH          float64 `json:"pH" yaml:"pH"`
}

// OptimalEnvironment returns the canonical optimum.
func OptimalEnvironment() Environment {
	return Environment{Temperature: constants.OptimalTemperature, PH: constants.OptimalPH}
}

// Treatment describes the drug exposure held constant for a run.
type Treatment struct {
	Type          TreatmentType `json:"type" yaml:"type"`
	DrugClass     string        `json:"drugClass,omitempty" yaml:"drugClass,omitempty"`
	Concentration float64       `json:"concentration" yaml:"concentration"` // μM
}

// ExperimentParams bounds a run in time and initial size.
type ExperimentParams struct {
	InitialCells int     `json:"initialCells" yaml:"initialCells"`
	Duration     float64 `json:"duration" yaml:"duration"`         // hours
	TimeInterval float64 `json:"timeInterval" yaml:"timeInterval"` // hours
}

// Steps returns ceil(duration/interval). A trailing partial interval counts
// as one truncated step.
func (p ExperimentParams) Steps() int {
	if !(p.TimeInterval > 0) || !(p.Duration > 0) {
		return 0
	}
	return int(math.Ceil(p.Duration/p.TimeInterval - constants.StepEpsilon))
}

// StepLength returns the length in hours of step i (0-based).
func (p ExperimentParams) StepLength(i int) float64 {
	start := float64(i) * p.TimeInterval
	if end := start + p.TimeInterval; end > p.Duration {
		return p.Duration - start
	}
	return p.TimeInterval
}

// SimulationRequest is the input of a simulation run.
type SimulationRequest struct {
	CellLineName     string           `json:"cellLineName"`
	Environment      Environment      `json:"environment"`
	Treatment        Treatment        `json:"treatment"`
	ExperimentParams ExperimentParams `json:"experimentParams"`
	CultureSize      int              `json:"cultureSize"`

	// Seed fixes the run's random source. Nil means the configured default.
	Seed *uint64 `json:"seed,omitempty"`
}

// Validate checks the fields that do not need the registry.
func (r SimulationRequest) Validate() error {
	if r.CellLineName == "" {
		return NewConfigurationError("cellLineName", "cellLineName is required")
	}
	if err := r.Environment.Validate(); err != nil {
		return err
	}
	if err := r.Treatment.Validate(); err != nil {
		return err
	}
	if err := r.ExperimentParams.Validate(); err != nil {
		return err
	}
	if r.CultureSize <= 0 {
		return NewInvalidParameterError("cultureSize", fmt.Sprintf("cultureSize must be positive, got %d", r.CultureSize))
	}
	if r.ExperimentParams.InitialCells > r.CultureSize {
		return NewInvalidParameterError("experimentParams.initialCells",
			fmt.Sprintf("initialCells (%d) exceeds cultureSize (%d)", r.ExperimentParams.InitialCells, r.CultureSize))
	}
	return nil
}

// Validate checks temperature and pH are finite and physically plausible.
func (e Environment) Validate() error {
	if math.IsNaN(e.Temperature) || e.Temperature < constants.MinTemperature || e.Temperature > constants.MaxTemperature {
		return NewInvalidParameterError("environment.temperature",
			fmt.Sprintf("temperature must be within [%g, %g] °C, got %v", constants.MinTemperature, constants.MaxTemperature, e.Temperature))
	}
	if math.IsNaN(e.PH) || e.PH < constants.MinPH || e.PH > constants.MaxPH {
		return NewInvalidParameterError("environment.pH",
			fmt.Sprintf("pH must be within [%g, %g], got %v", constants.MinPH, constants.MaxPH, e.PH))
	}
	return nil
}

// Validate checks the treatment is structurally complete.
func (t Treatment) Validate() error {
	switch t.Type {
	case TreatmentNone:
	case TreatmentDrug:
		if t.DrugClass == "" {
			return NewConfigurationError("treatment.drugClass", "drugClass is required when treatment type is drug")
		}
	case "":
		return NewConfigurationError("treatment.type", "treatment type is required")
	default:
		return NewConfigurationError("treatment.type", fmt.Sprintf("unknown treatment type %q (valid: none, drug)", t.Type))
	}
	if math.IsNaN(t.Concentration) || math.IsInf(t.Concentration, 0) || t.Concentration < 0 {
		return NewInvalidParameterError("treatment.concentration", fmt.Sprintf("concentration must be a finite value >= 0, got %v", t.Concentration))
	}
	return nil
}

// Validate checks counts and times are positive.
func (p ExperimentParams) Validate() error {
	if p.InitialCells <= 0 {
		return NewInvalidParameterError("experimentParams.initialCells", fmt.Sprintf("initialCells must be positive, got %d", p.InitialCells))
	}
	if !(p.Duration > 0) || math.IsInf(p.Duration, 0) {
		return NewInvalidParameterError("experimentParams.duration", fmt.Sprintf("duration must be positive, got %v", p.Duration))
	}
	if !(p.TimeInterval > 0) || math.IsInf(p.TimeInterval, 0) {
		return NewInvalidParameterError("experimentParams.timeInterval", fmt.Sprintf("timeInterval must be positive, got %v", p.TimeInterval))
	}
	return nil
}

// OptimalDoseRequest asks for the dose reaching the target viability.
type OptimalDoseRequest struct {
	CellLineName string `json:"cellLineName"`
	DrugClass    string `json:"drugClass"`
}

// Validate checks both identifiers are present.
func (r OptimalDoseRequest) Validate() error {
	if r.CellLineName == "" {
		return NewConfigurationError("cellLineName", "cellLineName is required")
	}
	if r.DrugClass == "" {
		return NewConfigurationError("drugClass", "drugClass is required")
	}
	return nil
}

// GrowthRequest asks for an untreated growth forecast.
type GrowthRequest struct {
	CellLineName     string           `json:"cellLineName"`
	Environment      Environment      `json:"environment"`
	ExperimentParams ExperimentParams `json:"experimentParams"`
}

// Validate checks identifiers, environment and experiment parameters.
func (r GrowthRequest) Validate() error {
	if r.CellLineName == "" {
		return NewConfigurationError("cellLineName", "cellLineName is required")
	}
	if err := r.Environment.Validate(); err != nil {
		return err
	}
	return r.ExperimentParams.Validate()
}
