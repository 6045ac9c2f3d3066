package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nvandessel/celldyn/internal/models"
)

// Memory is an in-memory registry. The builtin, file and s3 backends load
// their catalog into one.
type Memory struct {
	mu    sync.RWMutex
	lines map[string]models.CellLineParameters
}

// NewMemory validates lines and builds a registry from them. Duplicate names
// are a configuration error.
func NewMemory(lines []models.CellLineParameters) (*Memory, error) {
	m := &Memory{lines: make(map[string]models.CellLineParameters, len(lines))}
	for _, l := range lines {
		if err := l.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m.lines[l.Name]; dup {
			return nil, models.NewConfigurationError("name", fmt.Sprintf("duplicate cell line %q", l.Name))
		}
		m.lines[l.Name] = cloneLine(l)
	}
	return m, nil
}

// Get returns a copy of the named line. Exact names win; otherwise a
// case-insensitive match is accepted.
func (m *Memory) Get(_ context.Context, name string) (*models.CellLineParameters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if l, ok := m.lines[name]; ok {
		c := cloneLine(l)
		return &c, nil
	}
	for k, l := range m.lines {
		if strings.EqualFold(k, name) {
			c := cloneLine(l)
			return &c, nil
		}
	}
	return nil, notFound(name, m.namesLocked())
}

// List returns copies of every line sorted by name.
func (m *Memory) List(_ context.Context) ([]models.CellLineParameters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.CellLineParameters, 0, len(m.lines))
	for _, name := range m.namesLocked() {
		out = append(out, cloneLine(m.lines[name]))
	}
	return out, nil
}

// Put validates and stores line, replacing any line of the same name.
func (m *Memory) Put(_ context.Context, line models.CellLineParameters) error {
	if err := line.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines[line.Name] = cloneLine(line)
	return nil
}

func (m *Memory) namesLocked() []string {
	names := make([]string, 0, len(m.lines))
	for k := range m.lines {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
