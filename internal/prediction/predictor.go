// Package prediction derives dose and growth forecasts from registry
// parameters alone. It shares the closed-form dose response with the
// treatment model, so a predicted dose reproduces the same survival the
// engine's hazard is calibrated to.
package prediction

import (
	"context"
	"fmt"
	"math"

	"github.com/nvandessel/celldyn/internal/constants"
	"github.com/nvandessel/celldyn/internal/microenv"
	"github.com/nvandessel/celldyn/internal/models"
	"github.com/nvandessel/celldyn/internal/treatment"
)

// Lookup resolves a cell line by name.
type Lookup interface {
	Get(ctx context.Context, name string) (*models.CellLineParameters, error)
}

// Predictor answers optimal-dose and growth questions.
type Predictor struct {
	lines  Lookup
	target float64
}

// New creates a Predictor targeting constants.TargetViability.
func New(lines Lookup) *Predictor {
	return &Predictor{lines: lines, target: constants.TargetViability}
}

// OptimalDose returns the concentration expected to leave the target
// viability after sustained exposure, together with a therapeutic window
// classification. An absent (line, drug) pairing is a not-found error.
func (p *Predictor) OptimalDose(ctx context.Context, req models.OptimalDoseRequest) (*models.OptimalDosePrediction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	line, err := p.lines.Get(ctx, req.CellLineName)
	if err != nil {
		return nil, err
	}
	sens, ok := line.Sensitivity(req.DrugClass)
	if !ok {
		return nil, models.NewNotFoundError("drugClass",
			fmt.Sprintf("no sensitivity data for %s on cell line %s (known: %v)", req.DrugClass, line.Name, line.DrugClasses()))
	}

	dose, err := treatment.DoseForSurvival(p.target, sens)
	if err != nil {
		return nil, err
	}
	toxic := treatment.ToxicThreshold(sens)
	index := toxic / dose
	window := Window(index)

	return &models.OptimalDosePrediction{
		CellLine:          line.Name,
		DrugClass:         req.DrugClass,
		IC50:              sens.IC50,
		OptimalDose:       dose,
		ExpectedViability: 100 * treatment.Survival(dose, sens),
		TherapeuticIndex:  index,
		Window:            window,
		Recommendation:    recommendation(window, req.DrugClass, dose, sens.IC50, toxic),
	}, nil
}

// Growth projects an untreated culture exponentially using the line's
// doubling time stretched by the environmental stress factor. The count is
// not capped by any culture size.
func (p *Predictor) Growth(ctx context.Context, req models.GrowthRequest) (*models.GrowthPrediction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	line, err := p.lines.Get(ctx, req.CellLineName)
	if err != nil {
		return nil, err
	}

	stress := microenv.StressFactor(req.Environment)
	doubling := line.DoublingTime / stress
	final := float64(req.ExperimentParams.InitialCells) * math.Exp2(req.ExperimentParams.Duration/doubling)
	if math.IsInf(final, 0) || math.IsNaN(final) {
		return nil, models.NewInvalidParameterError("experimentParams.duration",
			fmt.Sprintf("projection over %vh overflows", req.ExperimentParams.Duration))
	}

	return &models.GrowthPrediction{
		CellLine:              line.Name,
		PredictedDoublingTime: doubling,
		EstimatedFinalCount:   final,
		StressFactor:          stress,
	}, nil
}

// Window classifies a therapeutic index.
func Window(index float64) string {
	switch {
	case index >= constants.WideWindowIndex:
		return models.WindowWide
	case index >= constants.ModerateWindowIndex:
		return models.WindowModerate
	case index >= constants.NarrowWindowIndex:
		return models.WindowNarrow
	default:
		return models.WindowUnsafe
	}
}

func recommendation(window, drug string, dose, ic50, toxic float64) string {
	switch window {
	case models.WindowWide:
		return fmt.Sprintf("Therapeutic window wide: %.3g μM %s sits well below the toxicity bound of %.3g μM.", dose, drug, toxic)
	case models.WindowModerate:
		return fmt.Sprintf("Therapeutic window moderate: %.3g μM %s is usable; stay below %.3g μM.", dose, drug, toxic)
	case models.WindowNarrow:
		return fmt.Sprintf("Therapeutic window narrow: %.3g μM %s (IC50 %.3g μM) is close to the toxicity bound of %.3g μM; titrate carefully.", dose, drug, ic50, toxic)
	default:
		return fmt.Sprintf("Therapeutic window unsafe: %.3g μM %s exceeds the toxicity bound of %.3g μM; not recommended.", dose, drug, toxic)
	}
}
