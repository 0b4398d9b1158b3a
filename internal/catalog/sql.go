package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/certgrade/internal/model"
)

// SQLCatalog reads grades from a relational store.
// Bounds are stored as text and coerced on read, so legacy rows like "0,20" still load.
type SQLCatalog struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// OpenSQL opens and pings a sqlite or postgres catalog
func OpenSQL(ctx context.Context, driver, dsn string, logger *slog.Logger) (*SQLCatalog, error) {
	if dsn == "" {
		return nil, fmt.Errorf("catalog driver %s requires a DSN", driver)
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("catalog.open", "driver", driver)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	if driver == DriverSQLite {
		// sqlite allows one writer; a single connection avoids SQLITE_BUSY on import
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		logger.Error("catalog.ping_failed", "driver", driver, "error", err)
		return nil, fmt.Errorf("ping catalog: %w", err)
	}

	return &SQLCatalog{db: db, driver: driver, logger: logger}, nil
}

// Close closes the database handle
func (c *SQLCatalog) Close() error {
	return c.db.Close()
}

// Migrate creates the catalog tables when missing
func (c *SQLCatalog) Migrate(ctx context.Context) error {
	idColumn := "INTEGER PRIMARY KEY"
	if c.driver == DriverPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS materials (
			id ` + idColumn + `,
			grade_name TEXT NOT NULL UNIQUE,
			category TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS chemical_properties (
			id ` + idColumn + `,
			grade_id BIGINT NOT NULL REFERENCES materials(id) ON DELETE CASCADE,
			element TEXT NOT NULL,
			unit TEXT NOT NULL DEFAULT '',
			min_value TEXT,
			max_value TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS mechanical_properties (
			id ` + idColumn + `,
			grade_id BIGINT NOT NULL REFERENCES materials(id) ON DELETE CASCADE,
			property_name TEXT NOT NULL,
			unit TEXT NOT NULL DEFAULT '',
			diameter TEXT NOT NULL DEFAULT '',
			min_value TEXT,
			max_value TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS chemical_properties_grade_idx ON chemical_properties (grade_id)`,
		`CREATE INDEX IF NOT EXISTS mechanical_properties_grade_idx ON mechanical_properties (grade_id)`,
	}

	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	c.logger.Info("catalog.migrated", "driver", c.driver)
	return nil
}

// ListGradeNames returns grade names in id order
func (c *SQLCatalog) ListGradeNames(ctx context.Context, category string) ([]string, error) {
	query := `SELECT grade_name FROM materials ORDER BY id`
	var args []any
	if category != "" {
		query = `SELECT grade_name FROM materials WHERE LOWER(category) = LOWER(?) ORDER BY id`
		args = append(args, category)
	}

	rows, err := c.db.QueryContext(ctx, c.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan grade: %w", err)
		}
		if strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}
	return names, rows.Err()
}

// GradeByName returns the grade with exactly this name
func (c *SQLCatalog) GradeByName(ctx context.Context, name string) (model.Grade, error) {
	var g model.Grade
	err := c.db.QueryRowContext(ctx,
		c.rebind(`SELECT id, grade_name, category FROM materials WHERE grade_name = ?`), name,
	).Scan(&g.ID, &g.Name, &g.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Grade{}, fmt.Errorf("%w: %s", ErrGradeNotFound, name)
	}
	if err != nil {
		return model.Grade{}, fmt.Errorf("grade %q: %w", name, err)
	}
	return g, nil
}

// ListPropertySpecs returns a grade's specs of one kind in insertion order
func (c *SQLCatalog) ListPropertySpecs(ctx context.Context, gradeID int64, kind model.PropertyKind) ([]model.PropertySpec, error) {
	query := `SELECT element, unit, '', min_value, max_value FROM chemical_properties WHERE grade_id = ? ORDER BY id`
	if kind == model.KindMechanical {
		query = `SELECT property_name, unit, diameter, min_value, max_value FROM mechanical_properties WHERE grade_id = ? ORDER BY id`
	}

	rows, err := c.db.QueryContext(ctx, c.rebind(query), gradeID)
	if err != nil {
		return nil, fmt.Errorf("list %s properties: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	specs := []model.PropertySpec{}
	for rows.Next() {
		var (
			name, unit, diameter string
			minText, maxText     sql.NullString
		)
		if err := rows.Scan(&name, &unit, &diameter, &minText, &maxText); err != nil {
			return nil, fmt.Errorf("scan %s property: %w", kind, err)
		}

		spec := model.PropertySpec{
			GradeID:  gradeID,
			Kind:     kind,
			Name:     strings.TrimSpace(name),
			Unit:     unit,
			Diameter: diameter,
		}
		if spec.Min, err = ParseBound(nullable(minText)); err != nil {
			return nil, fmt.Errorf("grade %d %s %q min: %w", gradeID, kind, name, err)
		}
		if spec.Max, err = ParseBound(nullable(maxText)); err != nil {
			return nil, fmt.Errorf("grade %d %s %q max: %w", gradeID, kind, name, err)
		}
		if err := CheckSpec(spec); err != nil {
			return nil, fmt.Errorf("grade %d %s: %w", gradeID, kind, err)
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

// ImportFile upserts every grade of a YAML catalog in one transaction.
// Existing grades keep their id; their property rows are replaced.
func (c *SQLCatalog) ImportFile(ctx context.Context, src *FileCatalog) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	imported := 0
	for _, g := range src.Grades() {
		id, err := c.upsertGrade(ctx, tx, g)
		if err != nil {
			return 0, err
		}

		for _, table := range []string{"chemical_properties", "mechanical_properties"} {
			if _, err := tx.ExecContext(ctx, c.rebind(`DELETE FROM `+table+` WHERE grade_id = ?`), id); err != nil {
				return 0, fmt.Errorf("clear %s for %q: %w", table, g.Name, err)
			}
		}

		specs := src.SpecsFor(g.ID)
		for _, s := range specs[model.KindChemical] {
			if _, err := tx.ExecContext(ctx,
				c.rebind(`INSERT INTO chemical_properties (grade_id, element, unit, min_value, max_value) VALUES (?, ?, ?, ?, ?)`),
				id, s.Name, s.Unit, FormatBound(s.Min), FormatBound(s.Max),
			); err != nil {
				return 0, fmt.Errorf("insert chemical %q for %q: %w", s.Name, g.Name, err)
			}
		}
		for _, s := range specs[model.KindMechanical] {
			if _, err := tx.ExecContext(ctx,
				c.rebind(`INSERT INTO mechanical_properties (grade_id, property_name, unit, diameter, min_value, max_value) VALUES (?, ?, ?, ?, ?, ?)`),
				id, s.Name, s.Unit, s.Diameter, FormatBound(s.Min), FormatBound(s.Max),
			); err != nil {
				return 0, fmt.Errorf("insert mechanical %q for %q: %w", s.Name, g.Name, err)
			}
		}
		imported++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	c.logger.Info("catalog.imported", "grades", imported)
	return imported, nil
}

func (c *SQLCatalog) upsertGrade(ctx context.Context, tx *sql.Tx, g model.Grade) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, c.rebind(`SELECT id FROM materials WHERE grade_name = ?`), g.Name).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = tx.QueryRowContext(ctx,
			c.rebind(`INSERT INTO materials (grade_name, category) VALUES (?, ?) RETURNING id`),
			g.Name, g.Category,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert grade %q: %w", g.Name, err)
		}
	case err != nil:
		return 0, fmt.Errorf("find grade %q: %w", g.Name, err)
	default:
		if _, err := tx.ExecContext(ctx, c.rebind(`UPDATE materials SET category = ? WHERE id = ?`), g.Category, id); err != nil {
			return 0, fmt.Errorf("update grade %q: %w", g.Name, err)
		}
	}
	return id, nil
}

// rebind turns ? placeholders into $n for postgres
func (c *SQLCatalog) rebind(query string) string {
	if c.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func nullable(s sql.NullString) any {
	if !s.Valid {
		return nil
	}
	return s.String
}
