package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/celldyn/internal/constants"
	"github.com/nvandessel/celldyn/internal/models"
)

func newPredictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Closed-form predictions from cell-line parameters",
		Long: `Predict doses and growth without running a simulation.

Examples:
  celldyn predict dose --cell-line HeLa --drug cisplatin
  celldyn predict growth --cell-line HEK293 --temperature 33 --duration 48`,
	}

	cmd.AddCommand(
		newPredictDoseCmd(),
		newPredictGrowthCmd(),
	)

	return cmd
}

func newPredictDoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dose",
		Short: "Predict the concentration reaching the target viability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cellLine, _ := cmd.Flags().GetString("cell-line")
			drug, _ := cmd.Flags().GetString("drug")

			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.svc.PredictDose(cmd.Context(), models.OptimalDoseRequest{
				CellLineName: cellLine,
				DrugClass:    drug,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return writeJSON(out, p)
			}
			fmt.Fprintf(out, "%s + %s\n", p.CellLine, p.DrugClass)
			fmt.Fprintf(out, "  IC50:               %.3g μM\n", p.IC50)
			fmt.Fprintf(out, "  Optimal dose:       %.3g μM\n", p.OptimalDose)
			fmt.Fprintf(out, "  Expected viability: %.1f%%\n", p.ExpectedViability)
			fmt.Fprintf(out, "  Therapeutic index:  %.2f (%s window)\n", p.TherapeuticIndex, p.Window)
			fmt.Fprintf(out, "\n%s\n", p.Recommendation)
			return nil
		},
	}

	cmd.Flags().String("cell-line", "", "Cell line name (required)")
	cmd.Flags().String("drug", "", "Drug class (required)")
	_ = cmd.MarkFlagRequired("cell-line")
	_ = cmd.MarkFlagRequired("drug")

	return cmd
}

func newPredictGrowthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "growth",
		Short: "Forecast untreated growth under the given conditions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			cellLine, _ := flags.GetString("cell-line")
			temperature, _ := flags.GetFloat64("temperature")
			ph, _ := flags.GetFloat64("ph")
			initialCells, _ := flags.GetInt("initial-cells")
			duration, _ := flags.GetFloat64("duration")

			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.svc.PredictGrowth(cmd.Context(), models.GrowthRequest{
				CellLineName: cellLine,
				Environment:  models.Environment{Temperature: temperature, PH: ph},
				ExperimentParams: models.ExperimentParams{
					InitialCells: initialCells,
					Duration:     duration,
					TimeInterval: constants.DefaultTimeInterval,
				},
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return writeJSON(out, p)
			}
			fmt.Fprintf(out, "%s at %g°C, pH %g over %gh\n", p.CellLine, temperature, ph, duration)
			fmt.Fprintf(out, "  Doubling time:   %.1fh\n", p.PredictedDoublingTime)
			fmt.Fprintf(out, "  Stress factor:   %.2f\n", p.StressFactor)
			fmt.Fprintf(out, "  Estimated cells: %s (from %s)\n",
				humanize.Comma(int64(p.EstimatedFinalCount)), humanize.Comma(int64(initialCells)))
			return nil
		},
	}

	cmd.Flags().String("cell-line", "", "Cell line name (required)")
	cmd.Flags().Float64("temperature", constants.OptimalTemperature, "Incubation temperature in °C")
	cmd.Flags().Float64("ph", constants.OptimalPH, "Medium pH")
	cmd.Flags().Int("initial-cells", constants.DefaultInitialCells, "Cells at time 0")
	cmd.Flags().Float64("duration", constants.DefaultDuration, "Forecast horizon in hours")
	_ = cmd.MarkFlagRequired("cell-line")

	return cmd
}
