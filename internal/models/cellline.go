package models

import (
	"fmt"
	"sort"

	"github.com/nvandessel/celldyn/internal/sanitize"
)

// DrugSensitivity describes how a cell line responds to one drug class.
type DrugSensitivity struct {
	// IC50 is the concentration (μM) producing half of the maximal effect.
	IC50 float64 `json:"ic50" yaml:"ic50"`

	// MaxEffect scales the log-kill produced by the drug. Range: (0, 1].
	MaxEffect float64 `json:"max_effect" yaml:"max_effect"`

	// Hill is the cooperativity exponent of the dose-response curve.
	// Zero means the default coefficient.
	Hill float64 `json:"hill,omitempty" yaml:"hill,omitempty"`

	// ToxicThreshold is the concentration (μM) above which off-target toxicity
	// is expected. Zero means 20x IC50.
	ToxicThreshold float64 `json:"toxic_threshold,omitempty" yaml:"toxic_threshold,omitempty"`
}

// CellLineParameters are the static, read-only parameters of a cell line.
type CellLineParameters struct {
	Name string `json:"name" yaml:"name"`

	// Type is a coarse category, e.g. "cancer" or "normal".
	Type string `json:"type" yaml:"type"`

	// Origin is the tissue of origin, e.g. "cervical adenocarcinoma".
	Origin string `json:"origin" yaml:"origin"`

	// DoublingTime is the base population doubling time in hours.
	DoublingTime float64 `json:"doubling_time" yaml:"doubling_time"`

	Adherent bool `json:"adherent" yaml:"adherent"`

	// Phase durations in hours.
	G1Duration float64 `json:"g1_duration" yaml:"g1_duration"`
	SDuration  float64 `json:"s_duration" yaml:"s_duration"`
	G2Duration float64 `json:"g2_duration" yaml:"g2_duration"`
	MDuration  float64 `json:"m_duration" yaml:"m_duration"`

	// DrugSensitivity is keyed by drug class (e.g. "cisplatin").
	DrugSensitivity map[string]DrugSensitivity `json:"drug_sensitivity" yaml:"drug_sensitivity"`
}

// CycleLength returns the sum of all phase durations.
func (p CellLineParameters) CycleLength() float64 {
	return p.G1Duration + p.SDuration + p.G2Duration + p.MDuration
}

// PhaseDuration returns the duration in hours of the given phase.
// Dead has no duration and returns 0.
func (p CellLineParameters) PhaseDuration(phase Phase) float64 {
	switch phase {
	case PhaseG1:
		return p.G1Duration
	case PhaseS:
		return p.SDuration
	case PhaseG2:
		return p.G2Duration
	case PhaseM:
		return p.MDuration
	}
	return 0
}

// Sensitivity looks up a drug class. The boolean is false when the line has
// no entry for it; callers must not fall back to a default.
func (p CellLineParameters) Sensitivity(drugClass string) (DrugSensitivity, bool) {
	s, ok := p.DrugSensitivity[drugClass]
	return s, ok
}

// DrugClasses returns the configured drug classes in sorted order.
func (p CellLineParameters) DrugClasses() []string {
	classes := make([]string, 0, len(p.DrugSensitivity))
	for k := range p.DrugSensitivity {
		classes = append(classes, k)
	}
	sort.Strings(classes)
	return classes
}

// Validate checks the parameters are usable by the engine.
func (p CellLineParameters) Validate() error {
	if p.Name == "" {
		return NewConfigurationError("name", "cell line name is required")
	}
	if !sanitize.IsIdentifier(p.Name) {
		return NewConfigurationError("name", fmt.Sprintf("cell line name %q may only contain letters, digits and -_.+", p.Name))
	}
	durations := []struct {
		field string
		value float64
	}{
		{"g1_duration", p.G1Duration},
		{"s_duration", p.SDuration},
		{"g2_duration", p.G2Duration},
		{"m_duration", p.MDuration},
	}
	for _, d := range durations {
		if !(d.value > 0) {
			return NewConfigurationError(d.field, fmt.Sprintf("cell line %s: %s must be positive, got %v", p.Name, d.field, d.value))
		}
	}
	if !(p.DoublingTime > 0) {
		return NewConfigurationError("doubling_time", fmt.Sprintf("cell line %s: doubling_time must be positive, got %v", p.Name, p.DoublingTime))
	}
	for drug, s := range p.DrugSensitivity {
		if drug == "" {
			return NewConfigurationError("drug_sensitivity", fmt.Sprintf("cell line %s: empty drug class", p.Name))
		}
		if !sanitize.IsIdentifier(drug) {
			return NewConfigurationError("drug_sensitivity", fmt.Sprintf("cell line %s: drug class %q may only contain letters, digits and -_.+", p.Name, drug))
		}
		if !(s.IC50 > 0) {
			return NewConfigurationError("drug_sensitivity."+drug+".ic50", fmt.Sprintf("cell line %s: %s ic50 must be positive, got %v", p.Name, drug, s.IC50))
		}
		if !(s.MaxEffect > 0) || s.MaxEffect > 1 {
			return NewConfigurationError("drug_sensitivity."+drug+".max_effect", fmt.Sprintf("cell line %s: %s max_effect must be in (0,1], got %v", p.Name, drug, s.MaxEffect))
		}
		if s.Hill < 0 || s.ToxicThreshold < 0 {
			return NewConfigurationError("drug_sensitivity."+drug, fmt.Sprintf("cell line %s: %s hill and toxic_threshold must be non-negative", p.Name, drug))
		}
	}
	return nil
}
