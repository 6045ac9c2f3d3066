// Package registry provides read-only lookup of cell-line parameters.
//
// Backends:
//   - builtin: the catalog embedded in the binary (default)
//   - file:    a YAML catalog on disk
//   - sqlite:  a local database seeded from the builtin catalog
//   - postgres: a shared database seeded from the builtin catalog
//   - s3:      a YAML catalog object fetched once at open
//
// Every backend returns copies, so callers can never mutate registry state.
package registry

import (
	"context"
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/nvandessel/celldyn/internal/models"
)

// Backend names accepted by Open.
const (
	BackendBuiltin  = "builtin"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Registry looks up cell lines by name. Implementations are safe for
// concurrent use.
type Registry interface {
	// Get returns the named line, or a not-found error on field cellLineName.
	Get(ctx context.Context, name string) (*models.CellLineParameters, error)

	// List returns every line sorted by name.
	List(ctx context.Context) ([]models.CellLineParameters, error)
}

// Writer is implemented by backends that can store lines.
type Writer interface {
	Put(ctx context.Context, line models.CellLineParameters) error
}

// S3Options locates a catalog object.
type S3Options struct {
	Bucket    string
	Key       string
	Region    string
	Endpoint  string // optional, e.g. a MinIO URL
	PathStyle bool
}

// Options selects and configures a backend.
type Options struct {
	Backend string
	Path    string // file catalog or sqlite database path
	DSN     string // postgres connection string
	S3      S3Options
}

// Open returns the registry selected by opts.Backend. An empty backend means
// builtin.
func Open(ctx context.Context, opts Options) (Registry, error) {
	backend := strings.ToLower(opts.Backend)
	if backend == "" {
		backend = BackendBuiltin
	}

	var (
		r   Registry
		err error
	)
	switch backend {
	case BackendBuiltin:
		r, err = asRegistry(NewBuiltin())
	case BackendFile:
		r, err = asRegistry(OpenFile(opts.Path))
	case BackendSQLite:
		r, err = asRegistry(OpenSQLite(ctx, opts.Path))
	case BackendPostgres:
		r, err = asRegistry(OpenPostgres(ctx, opts.DSN))
	case BackendS3:
		r, err = asRegistry(OpenS3(ctx, opts.S3))
	default:
		return nil, fmt.Errorf("unknown registry backend %q (valid: builtin, file, sqlite, postgres, s3)", opts.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s registry: %w", backend, err)
	}
	return r, nil
}

// asRegistry drops typed nil pointers so a failed open yields a nil interface.
func asRegistry[T Registry](r T, err error) (Registry, error) {
	if err != nil {
		return nil, err
	}
	return r, nil
}

// CloseIfSupported closes r when the backend holds resources.
func CloseIfSupported(r Registry) error {
	if c, ok := r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func notFound(name string, known []string) error {
	return models.NewNotFoundError("cellLineName",
		fmt.Sprintf("unknown cell line %q (known: %s)", name, strings.Join(known, ", ")))
}

func cloneLine(p models.CellLineParameters) models.CellLineParameters {
	p.DrugSensitivity = maps.Clone(p.DrugSensitivity)
	return p
}
