package mcp

import (
	"github.com/nvandessel/celldyn/internal/models"
)

// SimulateInput defines the input for the celldyn_simulate tool.
// Omitted fields fall back to the documented defaults; an explicit zero is
// passed through and validated like any other value.
type SimulateInput struct {
	CellLine      string   `json:"cell_line" jsonschema:"Cell line name, e.g. HeLa, MCF-7, A549, HEK293"`
	Temperature   *float64 `json:"temperature,omitempty" jsonschema:"Incubation temperature in °C (default 37)"`
	PH            *float64 `json:"ph,omitempty" jsonschema:"Medium pH (default 7.4)"`
	DrugClass     string   `json:"drug_class,omitempty" jsonschema:"Drug class to treat with; empty for an untreated culture"`
	Concentration *float64 `json:"concentration,omitempty" jsonschema:"Drug concentration in μM; requires drug_class"`
	InitialCells  *int     `json:"initial_cells,omitempty" jsonschema:"Viable cells at time 0 (default 500)"`
	Duration      *float64 `json:"duration,omitempty" jsonschema:"Simulated hours (default 72)"`
	TimeInterval  *float64 `json:"time_interval,omitempty" jsonschema:"Hours per step and snapshot (default 1)"`
	CultureSize   *int     `json:"culture_size,omitempty" jsonschema:"Vessel capacity in cells (default 1000)"`
	Seed          *uint64  `json:"seed,omitempty" jsonschema:"Random seed; omit for the server default"`
	SummaryOnly   bool     `json:"summary_only,omitempty" jsonschema:"Return only the first and last snapshot"`
}

// SimulateOutput defines the output for the celldyn_simulate tool.
type SimulateOutput struct {
	RunID       string            `json:"run_id" jsonschema:"Identifier of this run"`
	CellLine    string            `json:"cell_line" jsonschema:"Resolved cell line name"`
	Seed        uint64            `json:"seed" jsonschema:"Seed the run used"`
	Steps       int               `json:"steps" jsonschema:"Time steps executed"`
	Extinct     bool              `json:"extinct" jsonschema:"Whether every cell died before the end"`
	ExtinctAt   float64           `json:"extinct_at,omitempty" jsonschema:"Hour at which the culture went extinct"`
	FinalViable int               `json:"final_viable" jsonschema:"Viable cells in the last snapshot"`
	Viability   float64           `json:"viability" jsonschema:"Viability percent in the last snapshot"`
	FoldChange  float64           `json:"fold_change" jsonschema:"Final viable cells over initial cells"`
	Snapshots   []models.Snapshot `json:"snapshots" jsonschema:"Snapshot series, or first and last when summary_only"`
	TotalSnaps  int               `json:"snapshot_count" jsonschema:"Number of snapshots the run produced"`
}

// PredictDoseInput defines the input for the celldyn_predict_dose tool.
type PredictDoseInput struct {
	CellLine  string `json:"cell_line" jsonschema:"Cell line name"`
	DrugClass string `json:"drug_class" jsonschema:"Drug class, e.g. cisplatin, taxol, doxorubicin, 5-fluorouracil"`
}

// PredictGrowthInput defines the input for the celldyn_predict_growth tool.
type PredictGrowthInput struct {
	CellLine     string   `json:"cell_line" jsonschema:"Cell line name"`
	Temperature  *float64 `json:"temperature,omitempty" jsonschema:"Incubation temperature in °C (default 37)"`
	PH           *float64 `json:"ph,omitempty" jsonschema:"Medium pH (default 7.4)"`
	InitialCells *int     `json:"initial_cells,omitempty" jsonschema:"Cells at time 0 (default 500)"`
	Duration     *float64 `json:"duration,omitempty" jsonschema:"Forecast horizon in hours (default 72)"`
}

// CellLinesInput defines the input for the celldyn_cell_lines tool.
type CellLinesInput struct {
	Name string `json:"name,omitempty" jsonschema:"Return only this cell line"`
}

// CellLinesOutput defines the output for the celldyn_cell_lines tool.
type CellLinesOutput struct {
	CellLines map[string]models.CellLineParameters `json:"cell_lines" jsonschema:"Registered cell lines keyed by name"`
	Count     int                                  `json:"count" jsonschema:"Number of cell lines returned"`
}

// HealthInput defines the (empty) input for the celldyn_health tool.
type HealthInput struct{}
