package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/celldyn/internal/constants"
	"github.com/nvandessel/celldyn/internal/models"
	"github.com/nvandessel/celldyn/internal/ratelimit"
	"github.com/nvandessel/celldyn/internal/sanitize"
	"github.com/nvandessel/celldyn/internal/service"
)

const (
	cellLinesURI         = "celldyn://cell-lines"
	cellLineURIPrefix    = "celldyn://cell-lines/"
	cellLineTemplateName = "celldyn://cell-lines/{name}"
)

// registerTools registers all celldyn MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "celldyn_simulate",
		Description: "Run a stochastic cell-culture simulation and return the snapshot series",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "celldyn_predict_dose",
		Description: "Predict the drug concentration that brings a cell line to the target viability",
	}, s.handlePredictDose)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "celldyn_predict_growth",
		Description: "Forecast untreated growth under the given temperature and pH",
	}, s.handlePredictGrowth)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "celldyn_cell_lines",
		Description: "List the registered cell lines and their parameters",
	}, s.handleCellLines)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "celldyn_health",
		Description: "Report service status, version and features",
	}, s.handleHealth)
}

// registerResources registers the cell line catalog as MCP resources.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         cellLinesURI,
		Name:        "celldyn-cell-lines",
		Description: "Registered cell lines with doubling times and drug sensitivities.",
		MIMEType:    "text/markdown",
	}, s.handleCellLinesResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: cellLineTemplateName,
		Name:        "celldyn-cell-line",
		Description: "Full parameters of one cell line as JSON.",
		MIMEType:    "application/json",
	}, s.handleCellLineResource)
}

func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	var runID string
	defer func() {
		s.auditTool("celldyn_simulate", runID, start, retErr, sanitizeToolParams(map[string]any{
			"cell_line": args.CellLine, "drug_class": args.DrugClass, "concentration": param(args.Concentration),
			"temperature": param(args.Temperature), "ph": param(args.PH), "initial_cells": param(args.InitialCells),
			"duration": param(args.Duration), "time_interval": param(args.TimeInterval), "culture_size": param(args.CultureSize),
			"seed": param(args.Seed), "summary_only": args.SummaryOnly,
		}))
	}()

	if err := s.toolLimiters.Check(ratelimit.OpSimulate, ""); err != nil {
		return nil, SimulateOutput{}, err
	}

	simReq, err := simulationRequest(args)
	if err != nil {
		return nil, SimulateOutput{}, err
	}
	result, err := s.ops.Simulate(ctx, simReq)
	if err != nil {
		return nil, SimulateOutput{}, err
	}
	runID = result.RunID

	out := SimulateOutput{
		RunID:      result.RunID,
		CellLine:   result.CellLine,
		Seed:       result.Seed,
		Steps:      result.Steps,
		Extinct:    result.Extinct,
		ExtinctAt:  result.ExtinctAt,
		Snapshots:  result.Data,
		TotalSnaps: len(result.Data),
	}
	if final, ok := result.Final(); ok {
		out.FinalViable = final.Viable
		out.Viability = final.Viability
		if initial := result.Data[0].Viable; initial > 0 {
			out.FoldChange = float64(final.Viable) / float64(initial)
		}
	}
	if args.SummaryOnly && len(result.Data) > 2 {
		out.Snapshots = []models.Snapshot{result.Data[0], result.Data[len(result.Data)-1]}
	}

	return nil, out, nil
}

// simulationRequest maps tool input to a request. Omitted fields take the
// defaults; explicit values, zeros included, are left for validation.
func simulationRequest(args SimulateInput) (models.SimulationRequest, error) {
	if err := identifiers("cellLineName", args.CellLine, "treatment.drugClass", args.DrugClass); err != nil {
		return models.SimulationRequest{}, err
	}
	req := models.SimulationRequest{
		CellLineName: args.CellLine,
		Environment:  environment(args.Temperature, args.PH),
		Treatment:    models.Treatment{Type: models.TreatmentNone},
		ExperimentParams: models.ExperimentParams{
			InitialCells: or(args.InitialCells, constants.DefaultInitialCells),
			Duration:     or(args.Duration, constants.DefaultDuration),
			TimeInterval: or(args.TimeInterval, constants.DefaultTimeInterval),
		},
		CultureSize: or(args.CultureSize, constants.DefaultCultureSize),
		Seed:        args.Seed,
	}
	switch {
	case args.DrugClass != "":
		req.Treatment = models.Treatment{
			Type:          models.TreatmentDrug,
			DrugClass:     args.DrugClass,
			Concentration: or(args.Concentration, 0),
		}
	case args.Concentration != nil:
		return models.SimulationRequest{}, models.NewConfigurationError("treatment.drugClass", "concentration requires drug_class")
	}
	return req, nil
}

func (s *Server) handlePredictDose(ctx context.Context, req *sdk.CallToolRequest, args PredictDoseInput) (_ *sdk.CallToolResult, _ models.OptimalDosePrediction, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("celldyn_predict_dose", "", start, retErr, sanitizeToolParams(map[string]any{
			"cell_line": args.CellLine, "drug_class": args.DrugClass,
		}))
	}()

	if err := s.toolLimiters.Check(ratelimit.OpPredictDose, ""); err != nil {
		return nil, models.OptimalDosePrediction{}, err
	}

	if err := identifiers("cellLineName", args.CellLine, "drugClass", args.DrugClass); err != nil {
		return nil, models.OptimalDosePrediction{}, err
	}
	pred, err := s.ops.PredictDose(ctx, models.OptimalDoseRequest{
		CellLineName: args.CellLine,
		DrugClass:    args.DrugClass,
	})
	if err != nil {
		return nil, models.OptimalDosePrediction{}, err
	}
	return nil, *pred, nil
}

func (s *Server) handlePredictGrowth(ctx context.Context, req *sdk.CallToolRequest, args PredictGrowthInput) (_ *sdk.CallToolResult, _ models.GrowthPrediction, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("celldyn_predict_growth", "", start, retErr, sanitizeToolParams(map[string]any{
			"cell_line": args.CellLine, "temperature": param(args.Temperature), "ph": param(args.PH),
			"initial_cells": param(args.InitialCells), "duration": param(args.Duration),
		}))
	}()

	if err := s.toolLimiters.Check(ratelimit.OpPredictGrowth, ""); err != nil {
		return nil, models.GrowthPrediction{}, err
	}

	if err := identifiers("cellLineName", args.CellLine); err != nil {
		return nil, models.GrowthPrediction{}, err
	}
	pred, err := s.ops.PredictGrowth(ctx, models.GrowthRequest{
		CellLineName: args.CellLine,
		Environment:  environment(args.Temperature, args.PH),
		ExperimentParams: models.ExperimentParams{
			InitialCells: or(args.InitialCells, constants.DefaultInitialCells),
			Duration:     or(args.Duration, constants.DefaultDuration),
			TimeInterval: constants.DefaultTimeInterval,
		},
	})
	if err != nil {
		return nil, models.GrowthPrediction{}, err
	}
	return nil, *pred, nil
}

func (s *Server) handleCellLines(ctx context.Context, req *sdk.CallToolRequest, args CellLinesInput) (_ *sdk.CallToolResult, _ CellLinesOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("celldyn_cell_lines", "", start, retErr, sanitizeToolParams(map[string]any{
			"name": args.Name,
		}))
	}()

	if err := s.toolLimiters.Check(ratelimit.OpCellLines, ""); err != nil {
		return nil, CellLinesOutput{}, err
	}

	lines, err := s.ops.CellLines(ctx)
	if err != nil {
		return nil, CellLinesOutput{}, err
	}

	if args.Name != "" {
		if err := identifiers("name", args.Name); err != nil {
			return nil, CellLinesOutput{}, err
		}
		name, params, ok := lookup(lines, args.Name)
		if !ok {
			return nil, CellLinesOutput{}, models.NewNotFoundError("name", fmt.Sprintf("unknown cell line %q", args.Name))
		}
		lines = map[string]models.CellLineParameters{name: params}
	}

	return nil, CellLinesOutput{CellLines: lines, Count: len(lines)}, nil
}

func (s *Server) handleHealth(ctx context.Context, req *sdk.CallToolRequest, args HealthInput) (_ *sdk.CallToolResult, _ service.HealthReport, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("celldyn_health", "", start, retErr, nil)
	}()

	if err := s.toolLimiters.Check(ratelimit.OpHealth, ""); err != nil {
		return nil, service.HealthReport{}, err
	}
	return nil, s.ops.Health(ctx), nil
}

// handleCellLinesResource renders the catalog as a markdown table.
func (s *Server) handleCellLinesResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	lines, err := s.ops.CellLines(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cell lines: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# Cell Lines\n\n")
	if len(lines) == 0 {
		sb.WriteString("No cell lines are registered.\n")
	} else {
		sb.WriteString("| Name | Type | Origin | Doubling time (h) | Drugs |\n")
		sb.WriteString("|------|------|--------|-------------------|-------|\n")
		for _, name := range sortedNames(lines) {
			p := lines[name]
			drugs := make([]string, 0, len(p.DrugSensitivity))
			for drug := range p.DrugSensitivity {
				drugs = append(drugs, drug)
			}
			sort.Strings(drugs)
			fmt.Fprintf(&sb, "| %s | %s | %s | %g | %s |\n", name,
				sanitize.MarkdownCell(p.Type), sanitize.MarkdownCell(p.Origin), p.DoublingTime, strings.Join(drugs, ", "))
		}
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      cellLinesURI,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

// handleCellLineResource returns one cell line's parameters.
// URI format: celldyn://cell-lines/{name}
func (s *Server) handleCellLineResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	if !strings.HasPrefix(uri, cellLineURIPrefix) {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	name := strings.TrimPrefix(uri, cellLineURIPrefix)
	if name == "" {
		return nil, fmt.Errorf("cell line name is required")
	}
	if !sanitize.IsIdentifier(name) {
		return nil, fmt.Errorf("invalid cell line name %q", name)
	}

	lines, err := s.ops.CellLines(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cell lines: %w", err)
	}
	_, params, ok := lookup(lines, name)
	if !ok {
		return nil, sdk.ResourceNotFoundError(uri)
	}

	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode cell line: %w", err)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

// lookup finds a cell line by name, ignoring case.
func lookup(lines map[string]models.CellLineParameters, name string) (string, models.CellLineParameters, bool) {
	if p, ok := lines[name]; ok {
		return name, p, true
	}
	for k, p := range lines {
		if strings.EqualFold(k, name) {
			return k, p, true
		}
	}
	return "", models.CellLineParameters{}, false
}

func sortedNames(lines map[string]models.CellLineParameters) []string {
	names := make([]string, 0, len(lines))
	for name := range lines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// identifiers checks field/value pairs. Empty values pass so the request
// validation can report them as missing.
func identifiers(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		field, v := pairs[i], pairs[i+1]
		if v != "" && !sanitize.IsIdentifier(v) {
			return models.NewConfigurationError(field, fmt.Sprintf("%q is not a valid identifier", v))
		}
	}
	return nil
}

func environment(temperature, ph *float64) models.Environment {
	return models.Environment{
		Temperature: or(temperature, constants.OptimalTemperature),
		PH:          or(ph, constants.OptimalPH),
	}
}

// or returns *v, or def when the field was omitted.
func or[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}

// param unwraps an optional field for the audit log.
func param[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
