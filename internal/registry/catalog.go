package registry

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/celldyn/internal/models"
	"github.com/nvandessel/celldyn/internal/pathutil"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// catalogFile is the on-disk and embedded catalog layout. Lines are keyed by
// name; the key fills CellLineParameters.Name.
type catalogFile struct {
	CellLines map[string]models.CellLineParameters `yaml:"cell_lines"`
}

// BuiltinCatalog returns the embedded catalog source.
func BuiltinCatalog() []byte {
	return append([]byte(nil), builtinCatalog...)
}

// ParseCatalog decodes and validates a YAML catalog. Lines come back sorted
// by name.
func ParseCatalog(data []byte) ([]models.CellLineParameters, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, models.NewConfigurationError("catalog", fmt.Sprintf("parse catalog: %v", err))
	}
	if len(f.CellLines) == 0 {
		return nil, models.NewConfigurationError("cell_lines", "catalog defines no cell lines")
	}

	lines := make([]models.CellLineParameters, 0, len(f.CellLines))
	for name, l := range f.CellLines {
		if l.Name != "" && l.Name != name {
			return nil, models.NewConfigurationError("name", fmt.Sprintf("cell line key %q does not match name %q", name, l.Name))
		}
		l.Name = name
		if err := l.Validate(); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Name < lines[j].Name })
	return lines, nil
}

// MarshalCatalog encodes lines in the catalog layout.
func MarshalCatalog(lines []models.CellLineParameters) ([]byte, error) {
	f := catalogFile{CellLines: make(map[string]models.CellLineParameters, len(lines))}
	for _, l := range lines {
		f.CellLines[l.Name] = l
	}
	return yaml.Marshal(f)
}

// NewBuiltin returns a registry holding the embedded catalog.
func NewBuiltin() (*Memory, error) {
	lines, err := ParseCatalog(builtinCatalog)
	if err != nil {
		return nil, fmt.Errorf("builtin catalog: %w", err)
	}
	return NewMemory(lines)
}

// OpenFile loads a YAML catalog from path.
func OpenFile(path string) (*Memory, error) {
	if path == "" {
		return nil, models.NewConfigurationError("registry.path", "file registry requires a catalog path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", pathutil.RedactPath(path), err)
	}
	lines, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", pathutil.RedactPath(path), err)
	}
	return NewMemory(lines)
}
