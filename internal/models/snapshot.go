package models

// PhaseCounts holds the number of viable cells per cycle phase.
type PhaseCounts struct {
	G1 int `json:"G1"`
	S  int `json:"S"`
	G2 int `json:"G2"`
	M  int `json:"M"`
}

// Add increments the counter for phase. Dead is ignored.
func (c *PhaseCounts) Add(phase Phase) {
	switch phase {
	case PhaseG1:
		c.G1++
	case PhaseS:
		c.S++
	case PhaseG2:
		c.G2++
	case PhaseM:
		c.M++
	}
}

// Sum returns the total over all phases.
func (c PhaseCounts) Sum() int {
	return c.G1 + c.S + c.G2 + c.M
}

// Snapshot aggregates the culture at one recorded time point.
// Snapshots are values; the engine never mutates one after emitting it.
type Snapshot struct {
	Time   float64     `json:"time"` // hours since start
	Phases PhaseCounts `json:"phases"`
	Viable int         `json:"viable"`
	Dead   int         `json:"dead"`  // cells that died during this step
	Total  int         `json:"total"` // viable + dead this step

	// Viability is 100*viable/total, or 0 for an empty culture.
	Viability float64 `json:"viability"`
	AvgHealth float64 `json:"avg_health"`
	AvgATP    float64 `json:"avg_atp"`

	// Pool levels as normalized fractions.
	Glucose float64 `json:"glucose"`
	Oxygen  float64 `json:"oxygen"`
	Lactate float64 `json:"lactate"`
}

// SimulationResult is the response of a simulation run.
type SimulationResult struct {
	RunID     string  `json:"run_id,omitempty"`
	CellLine  string  `json:"cell_line"`
	Seed      uint64  `json:"seed"`
	Steps     int     `json:"steps"` // steps executed, excluding the initial snapshot
	Extinct   bool    `json:"extinct"`
	ExtinctAt float64 `json:"extinct_at,omitempty"`

	// Data is the ordered snapshot series, starting with the initial state.
	Data []Snapshot `json:"data"`
}

// Final returns the last snapshot. ok is false for an empty result.
func (r SimulationResult) Final() (Snapshot, bool) {
	if len(r.Data) == 0 {
		return Snapshot{}, false
	}
	return r.Data[len(r.Data)-1], true
}

// Therapeutic window categories.
const (
	WindowWide     = "wide"
	WindowModerate = "moderate"
	WindowNarrow   = "narrow"
	WindowUnsafe   = "unsafe"
)

// OptimalDosePrediction is the response of an optimal-dose prediction.
type OptimalDosePrediction struct {
	CellLine          string  `json:"cell_line"`
	DrugClass         string  `json:"drug_class"`
	IC50              float64 `json:"ic50"`
	OptimalDose       float64 `json:"optimal_dose"`
	ExpectedViability float64 `json:"expected_viability"` // percent
	TherapeuticIndex  float64 `json:"therapeutic_index"`
	Window            string  `json:"window"`
	Recommendation    string  `json:"recommendation"`
}

// GrowthPrediction is the response of a growth forecast.
type GrowthPrediction struct {
	CellLine              string  `json:"cell_line"`
	PredictedDoublingTime float64 `json:"predicted_doubling_time"`
	EstimatedFinalCount   float64 `json:"estimated_final_count"`
	StressFactor          float64 `json:"stress_factor"`
}
