package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/celldyn/internal/models"
	"github.com/nvandessel/celldyn/internal/registry"
)

func newCellLinesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cell-lines [name]",
		Short: "List registered cell lines",
		Long: `List the cell lines in the configured registry, or show one in detail.

Examples:
  celldyn cell-lines                     # Table of all lines
  celldyn cell-lines hela                # One line with drug sensitivities
  celldyn cell-lines export > lines.yaml # Catalog YAML
  celldyn cell-lines import lines.yaml   # Load into a sqlite/postgres registry`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			lines, err := a.svc.CellLines(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				line, ok := findCellLine(lines, args[0])
				if !ok {
					return models.NewNotFoundError("cellLineName", fmt.Sprintf("unknown cell line %q", args[0]))
				}
				if jsonOutput(cmd) {
					return writeJSON(out, line)
				}
				return printCellLine(out, line)
			}

			if jsonOutput(cmd) {
				return writeJSON(out, lines)
			}
			return printCellLines(out, lines)
		},
	}

	cmd.AddCommand(
		newCellLinesExportCmd(),
		newCellLinesImportCmd(),
	)

	return cmd
}

func newCellLinesExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write the registry as catalog YAML (stdout by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			lines, err := a.svc.CellLines(cmd.Context())
			if err != nil {
				return err
			}
			list := make([]models.CellLineParameters, 0, len(lines))
			for _, l := range lines {
				list = append(list, l)
			}
			data, err := registry.MarshalCatalog(list)
			if err != nil {
				return fmt.Errorf("failed to encode catalog: %w", err)
			}

			if len(args) == 0 {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(args[0], data, 0644); err != nil {
				return fmt.Errorf("failed to write catalog: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d cell lines to %s\n", len(list), args[0])
			return nil
		},
	}
}

func newCellLinesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Store a catalog YAML file in the configured database registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read catalog: %w", err)
			}
			lines, err := registry.ParseCatalog(data)
			if err != nil {
				return err
			}

			reg, err := registry.Open(cmd.Context(), registry.Options{
				Backend: cfg.Registry.Backend,
				Path:    cfg.Registry.Path,
				DSN:     cfg.Registry.DSN,
			})
			if err != nil {
				return err
			}
			defer registry.CloseIfSupported(reg)

			n, err := importLines(cmd.Context(), strings.ToLower(cfg.Registry.Backend), reg, lines)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"status":   "imported",
					"count":    n,
					"registry": cfg.Registry.String(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d cell lines into %s\n", n, cfg.Registry.String())
			return nil
		},
	}
}

// importLines stores lines in a database registry, in one transaction when
// the backend supports it.
func importLines(ctx context.Context, backend string, reg registry.Registry, lines []models.CellLineParameters) (int, error) {
	if backend != registry.BackendSQLite && backend != registry.BackendPostgres {
		return 0, fmt.Errorf("registry backend %q is read-only; use sqlite or postgres", backend)
	}
	if im, ok := reg.(interface {
		Import(context.Context, []models.CellLineParameters) error
	}); ok {
		if err := im.Import(ctx, lines); err != nil {
			return 0, fmt.Errorf("failed to import catalog: %w", err)
		}
		return len(lines), nil
	}

	w, ok := reg.(registry.Writer)
	if !ok {
		return 0, fmt.Errorf("registry backend %q does not accept writes", backend)
	}
	for i, l := range lines {
		if err := w.Put(ctx, l); err != nil {
			return i, fmt.Errorf("failed to store %s: %w", l.Name, err)
		}
	}
	return len(lines), nil
}

func findCellLine(lines map[string]models.CellLineParameters, name string) (models.CellLineParameters, bool) {
	if l, ok := lines[name]; ok {
		return l, true
	}
	for k, l := range lines {
		if strings.EqualFold(k, name) {
			return l, true
		}
	}
	return models.CellLineParameters{}, false
}

func printCellLines(w io.Writer, lines map[string]models.CellLineParameters) error {
	names := make([]string, 0, len(lines))
	for name := range lines {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tORIGIN\tDOUBLING (h)\tDRUGS")
	for _, name := range names {
		l := lines[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%s\n", l.Name, l.Type, l.Origin, l.DoublingTime, strings.Join(l.DrugClasses(), ", "))
	}
	return tw.Flush()
}

func printCellLine(w io.Writer, l models.CellLineParameters) error {
	fmt.Fprintf(w, "%s (%s, %s)\n", l.Name, l.Type, l.Origin)
	fmt.Fprintf(w, "  Doubling time: %gh\n", l.DoublingTime)
	fmt.Fprintf(w, "  Adherent:      %v\n", l.Adherent)
	fmt.Fprintf(w, "  Cycle:         G1 %gh, S %gh, G2 %gh, M %gh\n", l.G1Duration, l.SDuration, l.G2Duration, l.MDuration)
	if len(l.DrugSensitivity) == 0 {
		return nil
	}

	fmt.Fprintln(w, "\nDrug sensitivity:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  DRUG\tIC50 (μM)\tMAX EFFECT\tHILL\tTOXIC (μM)")
	for _, drug := range l.DrugClasses() {
		s := l.DrugSensitivity[drug]
		fmt.Fprintf(tw, "  %s\t%g\t%g\t%g\t%g\n", drug, s.IC50, s.MaxEffect, s.Hill, s.ToxicThreshold)
	}
	return tw.Flush()
}
