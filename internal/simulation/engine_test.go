package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/nvandessel/celldyn/internal/constants"
	"github.com/nvandessel/celldyn/internal/models"
	"github.com/nvandessel/celldyn/internal/treatment"
)

func helaLine() *models.CellLineParameters {
	return &models.CellLineParameters{
		Name:         "HeLa",
		Type:         "cancer",
		DoublingTime: 24,
		G1Duration:   11,
		SDuration:    8,
		G2Duration:   4,
		MDuration:    1,
		DrugSensitivity: map[string]models.DrugSensitivity{
			"cisplatin": {IC50: 5.0, MaxEffect: 0.95, Hill: 1.5},
		},
	}
}

func mcf7Line() *models.CellLineParameters {
	return &models.CellLineParameters{
		Name:         "MCF-7",
		Type:         "cancer",
		DoublingTime: 29,
		G1Duration:   15,
		SDuration:    8,
		G2Duration:   5,
		MDuration:    1,
		DrugSensitivity: map[string]models.DrugSensitivity{
			"taxol": {IC50: 6.0, MaxEffect: 0.9, Hill: 1.5},
		},
	}
}

func hek293Line() *models.CellLineParameters {
	return &models.CellLineParameters{
		Name:         "HEK293",
		Type:         "normal",
		DoublingTime: 30,
		G1Duration:   14,
		SDuration:    9,
		G2Duration:   6,
		MDuration:    1,
	}
}

func params(initial int, duration, interval float64) models.ExperimentParams {
	return models.ExperimentParams{InitialCells: initial, Duration: duration, TimeInterval: interval}
}

func drug(t *testing.T, line *models.CellLineParameters, class string, conc, duration float64) *treatment.Model {
	t.Helper()
	m, err := treatment.New(*line, models.Treatment{Type: models.TreatmentDrug, DrugClass: class, Concentration: conc}, duration)
	if err != nil {
		t.Fatalf("treatment.New(%s, %v) error = %v", class, conc, err)
	}
	return m
}

func run(t *testing.T, cfg Config, in Input) *models.SimulationResult {
	t.Helper()
	res, err := NewEngine(cfg, nil).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return res
}

func finalViable(t *testing.T, res *models.SimulationResult) int {
	t.Helper()
	s, ok := res.Final()
	if !ok {
		t.Fatal("result has no snapshots")
	}
	return s.Viable
}

func assertInvariants(t *testing.T, res *models.SimulationResult, cultureSize int) {
	t.Helper()
	if len(res.Data) != res.Steps+1 {
		t.Errorf("len(Data) = %d, want Steps+1 = %d", len(res.Data), res.Steps+1)
	}
	prev := -1.0
	for i, s := range res.Data {
		if s.Phases.Sum() != s.Viable {
			t.Fatalf("snapshot %d: phase sum %d != viable %d", i, s.Phases.Sum(), s.Viable)
		}
		if s.Total != s.Viable+s.Dead {
			t.Fatalf("snapshot %d: total %d != viable %d + dead %d", i, s.Total, s.Viable, s.Dead)
		}
		if s.Total > cultureSize {
			t.Fatalf("snapshot %d: total %d exceeds culture size %d", i, s.Total, cultureSize)
		}
		if s.Viability < 0 || s.Viability > 100 {
			t.Fatalf("snapshot %d: viability %v out of [0,100]", i, s.Viability)
		}
		for name, v := range map[string]float64{
			"avg_health": s.AvgHealth, "avg_atp": s.AvgATP,
			"glucose": s.Glucose, "oxygen": s.Oxygen, "lactate": s.Lactate,
		} {
			if v < 0 || v > 1 || math.IsNaN(v) {
				t.Fatalf("snapshot %d: %s = %v out of [0,1]", i, name, v)
			}
		}
		if s.Time <= prev {
			t.Fatalf("snapshot %d: time %v not after %v", i, s.Time, prev)
		}
		prev = s.Time
	}
}

func TestRun_InitialSnapshot(t *testing.T) {
	res := run(t, DefaultConfig(), Input{
		Line:        helaLine(),
		Environment: models.OptimalEnvironment(),
		Params:      params(500, 24, 1),
		CultureSize: 1000,
		Seed:        42,
	})

	s0 := res.Data[0]
	if s0.Time != 0 || s0.Viable != 500 || s0.Dead != 0 || s0.Total != 500 {
		t.Errorf("initial snapshot = %+v, want t=0 viable=500 dead=0 total=500", s0)
	}
	if s0.Viability != 100 || s0.AvgHealth != 1 || s0.Glucose != 1 || s0.Oxygen != 1 || s0.Lactate != 0 {
		t.Errorf("initial snapshot = %+v, want a healthy fresh culture", s0)
	}
	if res.CellLine != "HeLa" || res.Seed != 42 {
		t.Errorf("result header = %q/%d, want HeLa/42", res.CellLine, res.Seed)
	}
}

func TestRun_DeterministicAcrossWorkerCounts(t *testing.T) {
	line := helaLine()
	in := Input{
		Line:        line,
		Environment: models.Environment{Temperature: 36, PH: 7.3},
		Treatment:   drug(t, line, "cisplatin", 5, 72),
		Params:      params(3000, 72, 2),
		CultureSize: 6000,
		Seed:        7,
	}

	serial := run(t, Config{Workers: 1}, in)
	parallel := run(t, Config{Workers: 8, ParallelThreshold: 100}, in)
	again := run(t, Config{Workers: 3, ParallelThreshold: 1}, in)

	a, err := json.Marshal(serial.Data)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	b, _ := json.Marshal(parallel.Data)
	c, _ := json.Marshal(again.Data)
	if !bytes.Equal(a, b) || !bytes.Equal(a, c) {
		t.Error("snapshot series differ between worker counts for the same seed")
	}
}

func TestRun_SameSeedSameResult(t *testing.T) {
	line := mcf7Line()
	in := Input{
		Line:        line,
		Environment: models.OptimalEnvironment(),
		Treatment:   drug(t, line, "taxol", 6, 48),
		Params:      params(200, 48, 1),
		CultureSize: 400,
		Seed:        1234,
	}
	a, _ := json.Marshal(run(t, DefaultConfig(), in))
	b, _ := json.Marshal(run(t, DefaultConfig(), in))
	if !bytes.Equal(a, b) {
		t.Error("two runs with the same seed produced different output")
	}
}

func TestRun_Invariants(t *testing.T) {
	hela := helaLine()
	mcf7 := mcf7Line()
	tests := []struct {
		name string
		in   Input
	}{
		{"hela baseline", Input{Line: hela, Environment: models.OptimalEnvironment(), Params: params(500, 72, 1), CultureSize: 1000}},
		{"hela cisplatin", Input{Line: hela, Environment: models.OptimalEnvironment(), Treatment: drug(t, hela, "cisplatin", 5, 72), Params: params(500, 72, 1), CultureSize: 1000}},
		{"mcf7 taxol high", Input{Line: mcf7, Environment: models.OptimalEnvironment(), Treatment: drug(t, mcf7, "taxol", 600, 96), Params: params(500, 96, 4), CultureSize: 1000}},
		{"hek293 stressed", Input{Line: hek293Line(), Environment: models.Environment{Temperature: 32, PH: 7.0}, Params: params(500, 72, 0.5), CultureSize: 1000}},
		{"crowded start", Input{Line: hela, Environment: models.OptimalEnvironment(), Params: params(1000, 48, 1), CultureSize: 1000}},
		{"tiny culture", Input{Line: hela, Environment: models.Environment{Temperature: 40, PH: 7.8}, Params: params(1, 100, 3), CultureSize: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Seed = 99
			res := run(t, DefaultConfig(), tt.in)
			assertInvariants(t, res, tt.in.CultureSize)
		})
	}
}

func TestRun_HeLaBaselineGrowth(t *testing.T) {
	res := run(t, DefaultConfig(), Input{
		Line:        helaLine(),
		Environment: models.OptimalEnvironment(),
		Params:      params(500, 72, 1),
		CultureSize: 1000,
		Seed:        42,
	})

	if res.Extinct {
		t.Fatal("untreated culture went extinct")
	}
	if got := finalViable(t, res); got != 1000 {
		t.Errorf("final viable = %d, want 1000 (capacity)", got)
	}

	// Half a doubling time in, the cells that started in the second half of
	// the cycle have divided.
	half := res.Data[12]
	if half.Time != 12 {
		t.Fatalf("Data[12].Time = %v, want 12", half.Time)
	}
	if half.Viable < 650 || half.Viable > 850 {
		t.Errorf("viable at 12h = %d, want about 750", half.Viable)
	}

	// One full doubling time fills the vessel.
	if got := res.Data[24].Viable; got != 1000 {
		t.Errorf("viable at 24h = %d, want 1000", got)
	}
}

func TestRun_StressReducesGrowth(t *testing.T) {
	base := Input{
		Line:        hek293Line(),
		Environment: models.OptimalEnvironment(),
		Params:      params(500, 72, 1),
		CultureSize: 1000,
		Seed:        42,
	}
	stressed := base
	stressed.Environment = models.Environment{Temperature: 32, PH: 7.0}

	optimal := finalViable(t, run(t, DefaultConfig(), base))
	cold := finalViable(t, run(t, DefaultConfig(), stressed))

	if cold >= optimal {
		t.Errorf("stressed final = %d, want < optimal final %d", cold, optimal)
	}
	if cold <= 500 {
		t.Errorf("stressed final = %d, want some growth above 500", cold)
	}
}

func TestRun_ExtinctionIsTerminal(t *testing.T) {
	line := helaLine()
	res := run(t, DefaultConfig(), Input{
		Line:        line,
		Environment: models.OptimalEnvironment(),
		Treatment:   drug(t, line, "cisplatin", 500, 72),
		Params:      params(500, 72, 1),
		CultureSize: 1000,
		Seed:        42,
	})

	if !res.Extinct {
		t.Fatalf("expected extinction at 100x IC50, final = %+v", res.Data[len(res.Data)-1])
	}
	if res.ExtinctAt <= 0 || res.ExtinctAt >= 72 {
		t.Errorf("ExtinctAt = %v, want within (0, 72)", res.ExtinctAt)
	}
	last := res.Data[len(res.Data)-1]
	if last.Viable != 0 || last.Time != res.ExtinctAt {
		t.Errorf("last snapshot = %+v, want zero viable at %v", last, res.ExtinctAt)
	}
	for _, s := range res.Data[:len(res.Data)-1] {
		if s.Viable == 0 {
			t.Fatalf("viable reached 0 at %v before the run stopped", s.Time)
		}
	}
}

func TestRun_MonotonicDoseResponse(t *testing.T) {
	line := mcf7Line()
	prev := math.MaxInt
	for _, conc := range []float64{0, 6, 60, 600} {
		res := run(t, DefaultConfig(), Input{
			Line:        line,
			Environment: models.OptimalEnvironment(),
			Treatment:   drug(t, line, "taxol", conc, 96),
			Params:      params(500, 96, 1),
			CultureSize: 1000,
			Seed:        42,
		})
		got := finalViable(t, res)
		if got > prev {
			t.Errorf("final viable at %v μM = %d, want <= %d", conc, got, prev)
		}
		prev = got
	}
}

func TestRun_MonotonicDoseResponseFineGrid(t *testing.T) {
	if testing.Short() {
		t.Skip("runs 648 simulations")
	}

	tests := []struct {
		name  string
		line  *models.CellLineParameters
		class string
	}{
		{"HeLa/cisplatin", helaLine(), "cisplatin"},
		{"MCF-7/taxol", mcf7Line(), "taxol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, seed := range []uint64{1, 2, 3, 42} {
				prev, prevConc := math.MaxInt, 0.0
				for i := 0; i <= 80; i++ {
					conc := 0.5 * float64(i)
					res := run(t, DefaultConfig(), Input{
						Line:        tt.line,
						Environment: models.OptimalEnvironment(),
						Treatment:   drug(t, tt.line, tt.class, conc, 72),
						Params:      params(500, 72, 1),
						CultureSize: 10000,
						Seed:        seed,
					})
					got := finalViable(t, res)
					if got > prev {
						t.Errorf("seed %d: final viable %d at %v μM > %d at %v μM", seed, got, conc, prev, prevConc)
					}
					prev, prevConc = got, conc
				}
			}
		})
	}
}

func TestRun_DenseCultureExhaustsMedium(t *testing.T) {
	res := run(t, DefaultConfig(), Input{
		Line:        helaLine(),
		Environment: models.OptimalEnvironment(),
		Params:      params(1000, 240, 1),
		CultureSize: 1000,
		Seed:        42,
	})
	assertInvariants(t, res, 1000)

	starvedAt, toxicAt, firstDeath := -1.0, -1.0, -1.0
	minHealth, deaths := 1.0, 0
	for _, s := range res.Data {
		if starvedAt < 0 && s.Glucose < constants.LowResourceThreshold {
			starvedAt = s.Time
		}
		if toxicAt < 0 && s.Lactate > constants.LactateToxicThreshold {
			toxicAt = s.Time
		}
		if firstDeath < 0 && s.Dead > 0 {
			firstDeath = s.Time
		}
		minHealth = math.Min(minHealth, s.AvgHealth)
		deaths += s.Dead
	}

	if starvedAt < 24 || starvedAt > 96 {
		t.Errorf("glucose fell below %v at %vh, want within the first four days", constants.LowResourceThreshold, starvedAt)
	}
	if toxicAt < 0 {
		t.Errorf("lactate never exceeded %v", constants.LactateToxicThreshold)
	}
	if firstDeath < 0 || firstDeath < starvedAt {
		t.Fatalf("first death at %vh, want deaths after starvation at %vh", firstDeath, starvedAt)
	}
	if minHealth > 0.5 {
		t.Errorf("lowest average health = %v, want the starving culture below 0.5", minHealth)
	}
	if deaths < 100 {
		t.Errorf("untreated dense culture lost %d cells, want starvation deaths", deaths)
	}
	if res.Extinct {
		t.Error("starvation should thin the culture, not wipe it out")
	}
}

func TestBinomialQuantile(t *testing.T) {
	tests := []struct {
		n    int
		p, v float64
		want int
	}{
		{0, 0.5, 0.5, 0},
		{10, 0, 0.99, 0},
		{10, 1, 0.01, 10},
		{10, 0.5, 0.5, 5},
		{10, 0.5, 0.3, 4},
		{1, 0.3, 0.69, 0},
		{1, 0.3, 0.71, 1},
	}
	for _, tt := range tests {
		if got := binomialQuantile(tt.n, tt.p, tt.v); got != tt.want {
			t.Errorf("binomialQuantile(%d, %v, %v) = %d, want %d", tt.n, tt.p, tt.v, got, tt.want)
		}
	}

	// Quantiles at a fixed level grow with p and with n.
	for _, v := range []float64{0.05, 0.5, 0.95} {
		prev := 0
		for p := 0.0; p <= 0.2; p += 0.005 {
			got := binomialQuantile(2000, p, v)
			if got < prev {
				t.Fatalf("v=%v: quantile fell from %d to %d at p=%v", v, prev, got, p)
			}
			prev = got
		}
		if a, b := binomialQuantile(1000, 0.05, v), binomialQuantile(1001, 0.05, v); b < a || b > a+1 {
			t.Errorf("v=%v: quantile at n=1001 = %d, want %d or %d", v, b, a, a+1)
		}
	}
}

func TestRun_TruncatedLastStep(t *testing.T) {
	res := run(t, DefaultConfig(), Input{
		Line:        helaLine(),
		Environment: models.OptimalEnvironment(),
		Params:      params(10, 10, 3),
		CultureSize: 100,
		Seed:        1,
	})

	want := []float64{0, 3, 6, 9, 10}
	if len(res.Data) != len(want) {
		t.Fatalf("len(Data) = %d, want %d", len(res.Data), len(want))
	}
	for i, w := range want {
		if res.Data[i].Time != w {
			t.Errorf("Data[%d].Time = %v, want %v", i, res.Data[i].Time, w)
		}
	}
	if res.Steps != 4 {
		t.Errorf("Steps = %d, want 4", res.Steps)
	}
}

func TestRun_FullCultureDoesNotDivide(t *testing.T) {
	res := run(t, DefaultConfig(), Input{
		Line:        helaLine(),
		Environment: models.OptimalEnvironment(),
		Params:      params(1000, 48, 1),
		CultureSize: 1000,
		Seed:        5,
	})
	for i, s := range res.Data {
		if s.Viable != 1000 {
			t.Fatalf("snapshot %d: viable = %d, want the full culture of 1000", i, s.Viable)
		}
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(DefaultConfig(), nil).Run(ctx, Input{
		Line:        helaLine(),
		Environment: models.OptimalEnvironment(),
		Params:      params(10, 10, 1),
		CultureSize: 100,
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRun_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want error
	}{
		{"nil line", Input{Environment: models.OptimalEnvironment(), Params: params(1, 1, 1), CultureSize: 1}, models.ErrConfiguration},
		{"initial above capacity", Input{Line: helaLine(), Environment: models.OptimalEnvironment(), Params: params(11, 1, 1), CultureSize: 10}, models.ErrInvalidParameter},
		{"zero culture", Input{Line: helaLine(), Environment: models.OptimalEnvironment(), Params: params(1, 1, 1)}, models.ErrInvalidParameter},
		{"zero interval", Input{Line: helaLine(), Environment: models.OptimalEnvironment(), Params: params(1, 1, 0), CultureSize: 10}, models.ErrInvalidParameter},
		{"boiling", Input{Line: helaLine(), Environment: models.Environment{Temperature: 90, PH: 7.4}, Params: params(1, 1, 1), CultureSize: 10}, models.ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(DefaultConfig(), nil).Run(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("Run() error = %v, want %v", err, tt.want)
			}
		})
	}
}
