package registry

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nvandessel/celldyn/internal/models"
)

// schemaV1 is shared by the sqlite and postgres backends. DOUBLE PRECISION
// keeps float64 on postgres and maps to REAL affinity on sqlite.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS cell_lines (
    name TEXT PRIMARY KEY,
    line_type TEXT NOT NULL DEFAULT '',
    origin TEXT NOT NULL DEFAULT '',
    doubling_time DOUBLE PRECISION NOT NULL,
    adherent INTEGER NOT NULL DEFAULT 0,
    g1_duration DOUBLE PRECISION NOT NULL,
    s_duration DOUBLE PRECISION NOT NULL,
    g2_duration DOUBLE PRECISION NOT NULL,
    m_duration DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS drug_sensitivity (
    cell_line TEXT NOT NULL REFERENCES cell_lines(name) ON DELETE CASCADE,
    drug_class TEXT NOT NULL,
    ic50 DOUBLE PRECISION NOT NULL,
    max_effect DOUBLE PRECISION NOT NULL,
    hill DOUBLE PRECISION NOT NULL DEFAULT 0,
    toxic_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
    PRIMARY KEY (cell_line, drug_class)
);
`

// dialect adapts the shared SQL to a driver's placeholder syntax.
type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// rebind rewrites ? placeholders to $n for postgres.
func (d dialect) rebind(q string) string {
	if d != dialectPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlRegistry implements Registry and Writer over database/sql.
type sqlRegistry struct {
	db      *sql.DB
	dialect dialect
}

func initSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schemaV1, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// seedIfEmpty loads the builtin catalog into an empty database.
func (s *sqlRegistry) seedIfEmpty(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cell_lines`).Scan(&count); err != nil {
		return fmt.Errorf("count cell lines: %w", err)
	}
	if count > 0 {
		return nil
	}
	lines, err := ParseCatalog(builtinCatalog)
	if err != nil {
		return err
	}
	return s.Import(ctx, lines)
}

// Import stores every line in one transaction.
func (s *sqlRegistry) Import(ctx context.Context, lines []models.CellLineParameters) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, l := range lines {
		if err := s.put(ctx, tx, l); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

// Put validates and upserts line with its drug sensitivities.
func (s *sqlRegistry) Put(ctx context.Context, line models.CellLineParameters) error {
	return s.Import(ctx, []models.CellLineParameters{line})
}

func (s *sqlRegistry) put(ctx context.Context, tx *sql.Tx, l models.CellLineParameters) error {
	if err := l.Validate(); err != nil {
		return err
	}
	adherent := 0
	if l.Adherent {
		adherent = 1
	}

	_, err := tx.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO cell_lines (name, line_type, origin, doubling_time, adherent, g1_duration, s_duration, g2_duration, m_duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			line_type = excluded.line_type,
			origin = excluded.origin,
			doubling_time = excluded.doubling_time,
			adherent = excluded.adherent,
			g1_duration = excluded.g1_duration,
			s_duration = excluded.s_duration,
			g2_duration = excluded.g2_duration,
			m_duration = excluded.m_duration`),
		l.Name, l.Type, l.Origin, l.DoublingTime, adherent, l.G1Duration, l.SDuration, l.G2Duration, l.MDuration)
	if err != nil {
		return fmt.Errorf("upsert cell line %s: %w", l.Name, err)
	}

	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM drug_sensitivity WHERE cell_line = ?`), l.Name); err != nil {
		return fmt.Errorf("clear drug sensitivity for %s: %w", l.Name, err)
	}
	for _, drug := range l.DrugClasses() {
		d := l.DrugSensitivity[drug]
		_, err := tx.ExecContext(ctx, s.dialect.rebind(`
			INSERT INTO drug_sensitivity (cell_line, drug_class, ic50, max_effect, hill, toxic_threshold)
			VALUES (?, ?, ?, ?, ?, ?)`),
			l.Name, drug, d.IC50, d.MaxEffect, d.Hill, d.ToxicThreshold)
		if err != nil {
			return fmt.Errorf("insert %s sensitivity for %s: %w", drug, l.Name, err)
		}
	}
	return nil
}

// Get returns the named line. Exact names win; otherwise a case-insensitive
// match is accepted.
func (s *sqlRegistry) Get(ctx context.Context, name string) (*models.CellLineParameters, error) {
	lines, err := s.query(ctx, `WHERE LOWER(name) = LOWER(?)`, name)
	if err != nil {
		return nil, err
	}
	for i := range lines {
		if lines[i].Name == name {
			return &lines[i], nil
		}
	}
	if len(lines) > 0 {
		return &lines[0], nil
	}

	known, err := s.names(ctx)
	if err != nil {
		return nil, err
	}
	return nil, notFound(name, known)
}

// List returns every line sorted by name.
func (s *sqlRegistry) List(ctx context.Context) ([]models.CellLineParameters, error) {
	return s.query(ctx, "")
}

// Close closes the database.
func (s *sqlRegistry) Close() error {
	return s.db.Close()
}

func (s *sqlRegistry) query(ctx context.Context, where string, args ...any) ([]models.CellLineParameters, error) {
	q := `SELECT name, line_type, origin, doubling_time, adherent, g1_duration, s_duration, g2_duration, m_duration
		FROM cell_lines ` + where + ` ORDER BY name`
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query cell lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []models.CellLineParameters
	index := make(map[string]int)
	for rows.Next() {
		var (
			l        models.CellLineParameters
			adherent int
		)
		if err := rows.Scan(&l.Name, &l.Type, &l.Origin, &l.DoublingTime, &adherent,
			&l.G1Duration, &l.SDuration, &l.G2Duration, &l.MDuration); err != nil {
			return nil, fmt.Errorf("scan cell line: %w", err)
		}
		l.Adherent = adherent != 0
		l.DrugSensitivity = make(map[string]models.DrugSensitivity)
		index[l.Name] = len(lines)
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cell lines: %w", err)
	}
	if len(lines) == 0 {
		return lines, nil
	}

	drugs, err := s.db.QueryContext(ctx,
		`SELECT cell_line, drug_class, ic50, max_effect, hill, toxic_threshold FROM drug_sensitivity`)
	if err != nil {
		return nil, fmt.Errorf("query drug sensitivity: %w", err)
	}
	defer func() { _ = drugs.Close() }()

	for drugs.Next() {
		var (
			line, class string
			d           models.DrugSensitivity
		)
		if err := drugs.Scan(&line, &class, &d.IC50, &d.MaxEffect, &d.Hill, &d.ToxicThreshold); err != nil {
			return nil, fmt.Errorf("scan drug sensitivity: %w", err)
		}
		if i, ok := index[line]; ok {
			lines[i].DrugSensitivity[class] = d
		}
	}
	if err := drugs.Err(); err != nil {
		return nil, fmt.Errorf("iterate drug sensitivity: %w", err)
	}
	// Collations differ between backends; order by byte value here.
	sort.Slice(lines, func(i, j int) bool { return lines[i].Name < lines[j].Name })
	return lines, nil
}

func (s *sqlRegistry) names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM cell_lines ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query cell line names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan cell line name: %w", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cell line names: %w", err)
	}
	sort.Strings(names)
	return names, nil
}
