package models

import (
	"errors"
	"reflect"
	"testing"
)

func validLine() CellLineParameters {
	return CellLineParameters{
		Name:         "HeLa",
		Type:         "cancer",
		Origin:       "cervical adenocarcinoma",
		DoublingTime: 24,
		Adherent:     true,
		G1Duration:   11,
		SDuration:    8,
		G2Duration:   4,
		MDuration:    1,
		DrugSensitivity: map[string]DrugSensitivity{
			"cisplatin":   {IC50: 5, MaxEffect: 0.9},
			"doxorubicin": {IC50: 0.5, MaxEffect: 0.95, Hill: 1.2},
		},
	}
}

func TestCellLineParameters_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(p *CellLineParameters)
		wantField string
	}{
		{"valid", func(p *CellLineParameters) {}, ""},
		{"empty name", func(p *CellLineParameters) { p.Name = "" }, "name"},
		{"name with space", func(p *CellLineParameters) { p.Name = "He La" }, "name"},
		{"name with markup", func(p *CellLineParameters) { p.Name = "<b>HeLa</b>" }, "name"},
		{"zero g1", func(p *CellLineParameters) { p.G1Duration = 0 }, "g1_duration"},
		{"negative m", func(p *CellLineParameters) { p.MDuration = -1 }, "m_duration"},
		{"zero doubling time", func(p *CellLineParameters) { p.DoublingTime = 0 }, "doubling_time"},
		{"empty drug class", func(p *CellLineParameters) {
			p.DrugSensitivity[""] = DrugSensitivity{IC50: 1, MaxEffect: 1}
		}, "drug_sensitivity"},
		{"drug class with pipe", func(p *CellLineParameters) {
			p.DrugSensitivity["cis|platin"] = DrugSensitivity{IC50: 1, MaxEffect: 1}
		}, "drug_sensitivity"},
		{"zero ic50", func(p *CellLineParameters) {
			p.DrugSensitivity["cisplatin"] = DrugSensitivity{IC50: 0, MaxEffect: 0.9}
		}, "drug_sensitivity.cisplatin.ic50"},
		{"max effect above one", func(p *CellLineParameters) {
			p.DrugSensitivity["cisplatin"] = DrugSensitivity{IC50: 5, MaxEffect: 1.5}
		}, "drug_sensitivity.cisplatin.max_effect"},
		{"negative hill", func(p *CellLineParameters) {
			p.DrugSensitivity["cisplatin"] = DrugSensitivity{IC50: 5, MaxEffect: 0.9, Hill: -1}
		}, "drug_sensitivity.cisplatin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validLine()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("Validate() = %v, want configuration error", err)
			}
			if got := FieldOf(err); got != tt.wantField {
				t.Errorf("field = %q, want %q", got, tt.wantField)
			}
		})
	}
}

func TestCellLineParameters_Cycle(t *testing.T) {
	p := validLine()
	if got := p.CycleLength(); got != 24 {
		t.Errorf("CycleLength() = %v, want 24", got)
	}

	want := map[Phase]float64{PhaseG1: 11, PhaseS: 8, PhaseG2: 4, PhaseM: 1, PhaseDead: 0}
	for phase, d := range want {
		if got := p.PhaseDuration(phase); got != d {
			t.Errorf("PhaseDuration(%s) = %v, want %v", phase, got, d)
		}
	}
}

func TestCellLineParameters_Sensitivity(t *testing.T) {
	p := validLine()
	s, ok := p.Sensitivity("cisplatin")
	if !ok || s.IC50 != 5 {
		t.Errorf("Sensitivity(cisplatin) = %+v, %v", s, ok)
	}
	if _, ok := p.Sensitivity("paclitaxel"); ok {
		t.Error("expected no entry for an unpaired drug")
	}
	if got := p.DrugClasses(); !reflect.DeepEqual(got, []string{"cisplatin", "doxorubicin"}) {
		t.Errorf("DrugClasses() = %v", got)
	}
}

func TestPhase_Next(t *testing.T) {
	p := PhaseG1
	var seen []string
	for range 5 {
		seen = append(seen, p.String())
		p = p.Next()
	}
	if want := []string{"G1", "S", "G2", "M", "G1"}; !reflect.DeepEqual(seen, want) {
		t.Errorf("cycle = %v, want %v", seen, want)
	}
	if PhaseDead.Next() != PhaseDead {
		t.Error("Dead must be terminal")
	}
	if Phase(42).String() != "unknown" {
		t.Error("out-of-range phase should stringify as unknown")
	}
}

func TestPhaseCounts(t *testing.T) {
	var c PhaseCounts
	for _, p := range []Phase{PhaseG1, PhaseG1, PhaseS, PhaseM, PhaseDead} {
		c.Add(p)
	}
	if c.G1 != 2 || c.S != 1 || c.G2 != 0 || c.M != 1 {
		t.Errorf("counts = %+v", c)
	}
	if c.Sum() != 4 {
		t.Errorf("Sum() = %d, want 4", c.Sum())
	}
}

func TestSimulationResult_Final(t *testing.T) {
	if _, ok := (SimulationResult{}).Final(); ok {
		t.Error("empty result should have no final snapshot")
	}
	r := SimulationResult{Data: []Snapshot{{Time: 0}, {Time: 1, Viable: 7}}}
	final, ok := r.Final()
	if !ok || final.Viable != 7 {
		t.Errorf("Final() = %+v, %v", final, ok)
	}
}
