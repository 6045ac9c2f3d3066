package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/celldyn/internal/models"
	"github.com/nvandessel/celldyn/internal/registry"
)

// isolateHome points HOME at a temp directory so tests never touch ~/.celldyn.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// writeConfig writes a config file and returns its path.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestNewRootCmd(t *testing.T) {
	root := newRootCmd()
	if root.Use != "celldyn" {
		t.Errorf("Use = %q, want celldyn", root.Use)
	}
	for _, flag := range []string{"json", "config", "log-level"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing --%s flag", flag)
		}
	}

	want := []string{"version", "simulate", "predict", "cell-lines", "serve", "mcp-server", "config"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing subcommand %s", name)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version", "--json")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if got["version"] != version || got["commit"] != commit {
		t.Errorf("version output = %v", got)
	}

	out, err = run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "celldyn version "+version) {
		t.Errorf("version text = %q", out)
	}
}

func TestSimulateCmd_JSON(t *testing.T) {
	isolateHome(t)

	out, err := run(t, "simulate", "--cell-line", "HeLa", "--duration", "4", "--seed", "9", "--json")
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	var res models.SimulationResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if res.CellLine != "HeLa" || res.Seed != 9 || res.Steps != 4 || len(res.Data) != 5 {
		t.Errorf("result = %s seed %d steps %d snapshots %d", res.CellLine, res.Seed, res.Steps, len(res.Data))
	}
	if res.Data[0].Viable != 500 {
		t.Errorf("initial viable = %d, want 500", res.Data[0].Viable)
	}
}

func TestSimulateCmd_DefaultSeedFromConfig(t *testing.T) {
	isolateHome(t)
	cfg := writeConfig(t, "engine:\n  seed: 1234\n")

	out, err := run(t, "simulate", "--config", cfg, "--cell-line", "A549", "--duration", "2", "--json")
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	var res models.SimulationResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.Seed != 1234 {
		t.Errorf("seed = %d, want 1234 from config", res.Seed)
	}
}

func TestSimulateCmd_Text(t *testing.T) {
	isolateHome(t)

	out, err := run(t, "simulate", "--cell-line", "MCF-7", "--duration", "6", "--summary")
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	for _, want := range []string{"Run ", "MCF-7", "TIME (h)", "VIABILITY", "Final viable cells:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if rows := strings.Count(out, "%"); rows != 2 {
		t.Errorf("summary should print 2 rows, got %d", rows)
	}
}

func TestSimulateCmd_Errors(t *testing.T) {
	isolateHome(t)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown cell line", []string{"simulate", "--cell-line", "Vero"}, models.ErrNotFound},
		{"bad pH", []string{"simulate", "--cell-line", "HeLa", "--ph", "2"}, models.ErrInvalidParameter},
		{"unknown drug", []string{"simulate", "--cell-line", "HeLa", "--drug", "aspirin", "--concentration", "1"}, models.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := run(t, "simulate", "--cell-line", "HeLa", "--concentration", "5"); err == nil {
		t.Error("--concentration without --drug should fail")
	}
	if _, err := run(t, "simulate"); err == nil {
		t.Error("missing --cell-line should fail")
	}
}

func TestSimulationRequestFromFlags(t *testing.T) {
	cmd := newSimulateCmd()
	if err := cmd.ParseFlags([]string{"--cell-line", "HeLa", "--drug", "taxol", "--concentration", "2.5"}); err != nil {
		t.Fatal(err)
	}
	req, err := simulationRequestFromFlags(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if req.Seed != nil {
		t.Error("seed should be nil unless --seed is given")
	}
	want := models.Treatment{Type: models.TreatmentDrug, DrugClass: "taxol", Concentration: 2.5}
	if req.Treatment != want {
		t.Errorf("treatment = %+v, want %+v", req.Treatment, want)
	}
	if req.Environment != models.OptimalEnvironment() || req.CultureSize != 1000 {
		t.Errorf("defaults = %+v, culture %d", req.Environment, req.CultureSize)
	}

	cmd = newSimulateCmd()
	if err := cmd.ParseFlags([]string{"--cell-line", "HeLa", "--seed", "0"}); err != nil {
		t.Fatal(err)
	}
	req, _ = simulationRequestFromFlags(cmd)
	if req.Seed == nil || *req.Seed != 0 {
		t.Error("explicit --seed 0 should be honored")
	}
}

func TestPredictCmds(t *testing.T) {
	isolateHome(t)

	out, err := run(t, "predict", "dose", "--cell-line", "hela", "--drug", "cisplatin", "--json")
	if err != nil {
		t.Fatalf("predict dose failed: %v", err)
	}
	var dose models.OptimalDosePrediction
	if err := json.Unmarshal([]byte(out), &dose); err != nil {
		t.Fatal(err)
	}
	if dose.CellLine != "HeLa" || dose.IC50 != 5 {
		t.Errorf("dose = %+v", dose)
	}

	out, err = run(t, "predict", "growth", "--cell-line", "HeLa")
	if err != nil {
		t.Fatalf("predict growth failed: %v", err)
	}
	if !strings.Contains(out, "Estimated cells: 4,000 (from 500)") {
		t.Errorf("growth output = %q", out)
	}

	if _, err := run(t, "predict", "dose", "--cell-line", "HEK293", "--drug", "taxol"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unpaired drug error = %v", err)
	}
}

func TestCellLinesCmd(t *testing.T) {
	isolateHome(t)

	out, err := run(t, "cell-lines")
	if err != nil {
		t.Fatalf("cell-lines failed: %v", err)
	}
	for _, name := range []string{"A549", "HEK293", "HeLa", "MCF-7"} {
		if !strings.Contains(out, name) {
			t.Errorf("list missing %s", name)
		}
	}

	out, err = run(t, "cell-lines", "hela")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "HeLa (cancer") || !strings.Contains(out, "Drug sensitivity:") {
		t.Errorf("detail output = %q", out)
	}

	if _, err := run(t, "cell-lines", "Vero"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown line error = %v", err)
	}
}

func TestCellLinesExportImport(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	catalog := filepath.Join(dir, "lines.yaml")

	if _, err := run(t, "cell-lines", "export", catalog); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	data, err := os.ReadFile(catalog)
	if err != nil {
		t.Fatal(err)
	}
	lines, err := registry.ParseCatalog(data)
	if err != nil || len(lines) != 4 {
		t.Fatalf("exported catalog: %d lines, err %v", len(lines), err)
	}

	cfg := writeConfig(t, "registry:\n  backend: sqlite\n  path: "+filepath.Join(dir, "registry.db")+"\n")
	out, err := run(t, "cell-lines", "import", catalog, "--config", cfg, "--json")
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	var res map[string]any
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res["status"] != "imported" || res["count"] != float64(4) {
		t.Errorf("import result = %v", res)
	}

	out, err = run(t, "cell-lines", "--config", cfg, "--json")
	if err != nil {
		t.Fatal(err)
	}
	var listed map[string]models.CellLineParameters
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed) != 4 {
		t.Errorf("sqlite registry lists %d lines, want 4", len(listed))
	}
}

func TestImportLines_ReadOnlyBackend(t *testing.T) {
	reg, err := registry.NewBuiltin()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := importLines(context.Background(), registry.BackendBuiltin, reg, nil); err == nil {
		t.Error("importing into the builtin registry should fail")
	}
}

func TestConfigCmds(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, "config", "set", "engine.seed", "77", "--config", path); err != nil {
		t.Fatalf("config set failed: %v", err)
	}

	out, err := run(t, "config", "get", "engine.seed", "--config", path, "--json")
	if err != nil {
		t.Fatalf("config get failed: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if got["value"] != float64(77) {
		t.Errorf("engine.seed = %v, want 77", got["value"])
	}

	out, err = run(t, "config", "list", "--config", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "engine.seed:") || !strings.Contains(out, "registry.dsn:") {
		t.Errorf("list output = %q", out)
	}

	if _, err := run(t, "config", "set", "engine.workers", "many", "--config", path); err == nil {
		t.Error("non-numeric workers should fail")
	}
	if _, err := run(t, "config", "set", "no.such.key", "1", "--config", path); err == nil {
		t.Error("unknown key should fail")
	}
	if _, err := run(t, "config", "get", "no.such.key", "--config", path); err == nil {
		t.Error("unknown key should fail")
	}
}

func TestLoadConfig_LogLevelOverride(t *testing.T) {
	isolateHome(t)
	path := writeConfig(t, "logging:\n  level: info\n")

	root := newRootCmd()
	root.SetArgs([]string{"config", "get", "logging.level", "--config", path, "--log-level", "debug"})
	var out bytes.Buffer
	root.SetOut(&out)
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != "logging.level = debug" {
		t.Errorf("output = %q", out.String())
	}

	if _, err := run(t, "config", "get", "logging.level", "--config", path, "--log-level", "loud"); err == nil {
		t.Error("invalid --log-level should fail")
	}
}

func TestServeAndMCPFlags(t *testing.T) {
	if newServeCmd().Flags().Lookup("addr") == nil {
		t.Error("serve missing --addr flag")
	}
	if newMCPServerCmd().Flags().Lookup("audit-dir") == nil {
		t.Error("mcp-server missing --audit-dir flag")
	}
}
