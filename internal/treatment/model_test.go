package treatment

import (
	"errors"
	"math"
	"testing"

	"github.com/nvandessel/celldyn/internal/models"
)

func testLine() models.CellLineParameters {
	return models.CellLineParameters{
		Name:         "HeLa",
		DoublingTime: 24,
		G1Duration:   11,
		SDuration:    8,
		G2Duration:   4,
		MDuration:    1,
		DrugSensitivity: map[string]models.DrugSensitivity{
			"cisplatin": {IC50: 5.0, MaxEffect: 0.95, Hill: 1.5},
			"taxol":     {IC50: 0.01, MaxEffect: 1},
		},
	}
}

func TestNew_None(t *testing.T) {
	m, err := New(testLine(), models.Treatment{Type: models.TreatmentNone}, 72)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m.Hazard() != 0 {
		t.Errorf("Hazard() = %v, want 0", m.Hazard())
	}
	if m.Effect() != 0 {
		t.Errorf("Effect() = %v, want 0", m.Effect())
	}
	if m.Survival() != 1 {
		t.Errorf("Survival() = %v, want 1", m.Survival())
	}
	if m.DrugClass() != "" {
		t.Errorf("DrugClass() = %q, want empty", m.DrugClass())
	}
}

func TestNew_UnknownDrugIsConfigurationError(t *testing.T) {
	_, err := New(testLine(), models.Treatment{Type: models.TreatmentDrug, DrugClass: "aspirin", Concentration: 1}, 72)
	if err == nil {
		t.Fatal("expected error for unknown drug class")
	}
	if !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("error = %v, want configuration error", err)
	}
	if got := models.FieldOf(err); got != "treatment.drugClass" {
		t.Errorf("field = %q, want treatment.drugClass", got)
	}
}

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		tr       models.Treatment
		duration float64
		want     error
	}{
		{"missing drug class", models.Treatment{Type: models.TreatmentDrug}, 72, models.ErrConfiguration},
		{"negative concentration", models.Treatment{Type: models.TreatmentDrug, DrugClass: "cisplatin", Concentration: -1}, 72, models.ErrInvalidParameter},
		{"zero duration", models.Treatment{Type: models.TreatmentNone}, 0, models.ErrInvalidParameter},
		{"unknown type", models.Treatment{Type: "radiation"}, 72, models.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(testLine(), tt.tr, tt.duration)
			if !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHazard_CumulativeSurvivalAtIC50(t *testing.T) {
	const duration = 72.0
	line := testLine()
	line.DrugSensitivity["cisplatin"] = models.DrugSensitivity{IC50: 5, MaxEffect: 1, Hill: 1.5}

	m, err := New(line, models.Treatment{Type: models.TreatmentDrug, DrugClass: "cisplatin", Concentration: 5}, duration)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Sustained exposure over the whole run kills half the cohort.
	got := math.Exp(-m.Hazard() * duration)
	if math.Abs(got-0.5) > 1e-12 {
		t.Errorf("survival after %vh = %v, want 0.5", duration, got)
	}
	if math.Abs(m.Survival()-0.5) > 1e-12 {
		t.Errorf("Survival() = %v, want 0.5", m.Survival())
	}
	if math.Abs(m.Effect()-0.5) > 1e-12 {
		t.Errorf("Effect() = %v, want 0.5", m.Effect())
	}
}

func TestHazard_MonotonicInConcentration(t *testing.T) {
	prev := -1.0
	for _, c := range []float64{0, 0.5, 1, 5, 10, 50, 500} {
		m, err := New(testLine(), models.Treatment{Type: models.TreatmentDrug, DrugClass: "cisplatin", Concentration: c}, 72)
		if err != nil {
			t.Fatalf("New(c=%v) error = %v", c, err)
		}
		if m.Hazard() < prev {
			t.Fatalf("hazard decreased from %v to %v at c=%v", prev, m.Hazard(), c)
		}
		prev = m.Hazard()
	}
}

func TestDeathProbability(t *testing.T) {
	m, err := New(testLine(), models.Treatment{Type: models.TreatmentDrug, DrugClass: "cisplatin", Concentration: 50}, 72)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	p := m.DeathProbability(1)
	if p <= 0 || p >= 1 {
		t.Errorf("DeathProbability(1) = %v, want within (0,1)", p)
	}
	if got := None().DeathProbability(1); got != 0 {
		t.Errorf("None().DeathProbability(1) = %v, want 0", got)
	}
}

func TestHillFraction(t *testing.T) {
	tests := []struct {
		c, ic50, n float64
		want       float64
	}{
		{0, 5, 1.5, 0},
		{5, 5, 1.5, 0.5},
		{5, 5, 1, 0.5},
		{10, 5, 1, 2.0 / 3},
		{-1, 5, 1, 0},
	}
	for _, tt := range tests {
		got := HillFraction(tt.c, tt.ic50, tt.n)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("HillFraction(%v, %v, %v) = %v, want %v", tt.c, tt.ic50, tt.n, got, tt.want)
		}
	}
}

func TestDefaults(t *testing.T) {
	s := models.DrugSensitivity{IC50: 2, MaxEffect: 1}
	if got := Hill(s); got != 1.5 {
		t.Errorf("Hill() = %v, want default 1.5", got)
	}
	if got := ToxicThreshold(s); got != 40 {
		t.Errorf("ToxicThreshold() = %v, want 20x IC50 = 40", got)
	}

	s.Hill, s.ToxicThreshold = 2, 15
	if got := Hill(s); got != 2 {
		t.Errorf("Hill() = %v, want 2", got)
	}
	if got := ToxicThreshold(s); got != 15 {
		t.Errorf("ToxicThreshold() = %v, want 15", got)
	}
}

func TestDoseForSurvival_InvertsSurvival(t *testing.T) {
	sens := []models.DrugSensitivity{
		{IC50: 5, MaxEffect: 0.95, Hill: 1.5},
		{IC50: 0.01, MaxEffect: 1},
		{IC50: 120, MaxEffect: 0.6, Hill: 2},
	}
	for _, s := range sens {
		for _, target := range []float64{0.1, 0.5, 0.9} {
			dose, err := DoseForSurvival(target, s)
			if err != nil {
				t.Fatalf("DoseForSurvival(%v, %+v) error = %v", target, s, err)
			}
			if got := Survival(dose, s); math.Abs(got-target) > 1e-9 {
				t.Errorf("Survival(DoseForSurvival(%v)) = %v for %+v", target, got, s)
			}
		}
	}
}

func TestDoseForSurvival_AtHalfAndFullEffectIsIC50(t *testing.T) {
	s := models.DrugSensitivity{IC50: 5, MaxEffect: 1, Hill: 1.5}
	dose, err := DoseForSurvival(0.5, s)
	if err != nil {
		t.Fatalf("DoseForSurvival() error = %v", err)
	}
	if math.Abs(dose-5) > 1e-9 {
		t.Errorf("dose = %v, want IC50 = 5", dose)
	}
}

func TestDoseForSurvival_RejectsTarget(t *testing.T) {
	s := models.DrugSensitivity{IC50: 5, MaxEffect: 1}
	for _, target := range []float64{0, 1, -0.5, 2, math.NaN()} {
		if _, err := DoseForSurvival(target, s); !errors.Is(err, models.ErrInvalidParameter) {
			t.Errorf("DoseForSurvival(%v) error = %v, want invalid parameter", target, err)
		}
	}
}
