// Package catalog is the read-only reference store of grades and their property bounds.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/ppiankov/certgrade/internal/model"
	"github.com/ppiankov/certgrade/internal/normalize"
)

// ErrGradeNotFound is returned when no grade has the requested name
var ErrGradeNotFound = errors.New("grade not found")

// Catalog answers the three questions a validation run asks
type Catalog interface {
	// ListGradeNames returns every grade name, optionally scoped to a category
	ListGradeNames(ctx context.Context, category string) ([]string, error)

	// GradeByName returns the grade with exactly this name
	GradeByName(ctx context.Context, name string) (model.Grade, error)

	// ListPropertySpecs returns the bounded properties of one kind for a grade
	ListPropertySpecs(ctx context.Context, gradeID int64, kind model.PropertyKind) ([]model.PropertySpec, error)
}

// Store is a Catalog that holds resources
type Store interface {
	Catalog
	Close() error
}

const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Open opens the catalog described by cfg
func Open(ctx context.Context, cfg model.CatalogConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(cfg.Driver) {
	case "", DriverFile, "yaml":
		c, err := LoadFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		return c, nil
	case DriverSQLite, "sqlite3", DriverPostgres, "postgres", "postgresql":
		c, err := OpenSQLConfig(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown catalog driver: %s (supported: file, sqlite, pgx)", cfg.Driver)
	}
}

// OpenSQLConfig opens the SQL catalog named by cfg; sqlite falls back to Path when DSN is empty
func OpenSQLConfig(ctx context.Context, cfg model.CatalogConfig, logger *slog.Logger) (*SQLCatalog, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverSQLite, "sqlite3":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Path
		}
		return OpenSQL(ctx, DriverSQLite, dsn, logger)
	case DriverPostgres, "postgres", "postgresql":
		return OpenSQL(ctx, DriverPostgres, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("catalog driver %q is not a SQL driver (use sqlite or pgx)", cfg.Driver)
	}
}

// ParseBound coerces a stored bound to a number. Empty, "-" and nil mean an open side.
// Decimal commas are accepted ("0,20").
func ParseBound(v any) (*float64, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return checkFinite(b)
	case int:
		return model.Float(float64(b)), nil
	case int64:
		return model.Float(float64(b)), nil
	case string:
		s := strings.TrimSpace(b)
		if s == "" || s == "-" || s == "–" {
			return nil, nil
		}
		f, ok := normalize.ParseNumber(s)
		if !ok {
			return nil, fmt.Errorf("bound %q is not a number", b)
		}
		return checkFinite(f)
	default:
		return nil, fmt.Errorf("bound has unsupported type %T", v)
	}
}

// FormatBound renders a bound for text storage
func FormatBound(b *float64) any {
	if b == nil {
		return nil
	}
	return strconv.FormatFloat(*b, 'f', -1, 64)
}

// CheckSpec enforces min <= max when both sides are present
func CheckSpec(s model.PropertySpec) error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("property name is empty")
	}
	if s.Min != nil && s.Max != nil && *s.Min > *s.Max {
		return fmt.Errorf("property %q: min %v exceeds max %v", s.Name, *s.Min, *s.Max)
	}
	return nil
}

func checkFinite(f float64) (*float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("bound %v is not finite", f)
	}
	return model.Float(f), nil
}
