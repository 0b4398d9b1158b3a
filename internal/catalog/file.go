package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/certgrade/internal/model"
)

// FileCatalog is an in-memory catalog loaded from a YAML document:
//
//	grades:
//	  - name: S355J2
//	    category: structural
//	    chemical:
//	      - {property: C, unit: "%", max: "0,20"}
//	    mechanical:
//	      - {property: Yield strength, unit: MPa, diameter: "≤16", min: 355}
//
// Grade ids are assigned in file order starting at 1.
type FileCatalog struct {
	grades []model.Grade
	specs  map[int64]map[model.PropertyKind][]model.PropertySpec
}

type fileDocument struct {
	Grades []fileGrade `yaml:"grades"`
}

type fileGrade struct {
	Name       string     `yaml:"name"`
	Category   string     `yaml:"category"`
	Chemical   []fileSpec `yaml:"chemical"`
	Mechanical []fileSpec `yaml:"mechanical"`
}

type fileSpec struct {
	Property string `yaml:"property"`
	Unit     string `yaml:"unit"`
	Diameter string `yaml:"diameter"`
	Min      any    `yaml:"min"`
	Max      any    `yaml:"max"`
}

// LoadFile reads a YAML catalog from disk
func LoadFile(path string) (*FileCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()

	c, err := ParseFile(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseFile parses a YAML catalog; every bound is checked before anything is returned
func ParseFile(r io.Reader) (*FileCatalog, error) {
	var doc fileDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &FileCatalog{
		specs: make(map[int64]map[model.PropertyKind][]model.PropertySpec),
	}
	seen := make(map[string]bool)

	for i, g := range doc.Grades {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			return nil, fmt.Errorf("grade #%d has no name", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate grade %q", name)
		}
		seen[name] = true

		grade := model.Grade{ID: int64(len(c.grades) + 1), Name: name, Category: strings.TrimSpace(g.Category)}
		c.grades = append(c.grades, grade)
		c.specs[grade.ID] = make(map[model.PropertyKind][]model.PropertySpec)

		for _, kind := range model.Kinds() {
			rows := g.Chemical
			if kind == model.KindMechanical {
				rows = g.Mechanical
			}
			for _, row := range rows {
				spec, err := row.toSpec(grade.ID, kind)
				if err != nil {
					return nil, fmt.Errorf("grade %q %s: %w", name, kind, err)
				}
				c.specs[grade.ID][kind] = append(c.specs[grade.ID][kind], spec)
			}
		}
	}

	return c, nil
}

func (s fileSpec) toSpec(gradeID int64, kind model.PropertyKind) (model.PropertySpec, error) {
	lo, err := ParseBound(s.Min)
	if err != nil {
		return model.PropertySpec{}, fmt.Errorf("property %q min: %w", s.Property, err)
	}
	hi, err := ParseBound(s.Max)
	if err != nil {
		return model.PropertySpec{}, fmt.Errorf("property %q max: %w", s.Property, err)
	}

	spec := model.PropertySpec{
		GradeID:  gradeID,
		Kind:     kind,
		Name:     strings.TrimSpace(s.Property),
		Unit:     strings.TrimSpace(s.Unit),
		Diameter: strings.TrimSpace(s.Diameter),
		Min:      lo,
		Max:      hi,
	}
	return spec, CheckSpec(spec)
}

// Grades returns every grade in file order
func (c *FileCatalog) Grades() []model.Grade {
	return append([]model.Grade(nil), c.grades...)
}

// ListGradeNames returns grade names in file order; category matching ignores case
func (c *FileCatalog) ListGradeNames(ctx context.Context, category string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(c.grades))
	for _, g := range c.grades {
		if category != "" && !strings.EqualFold(g.Category, category) {
			continue
		}
		names = append(names, g.Name)
	}
	return names, nil
}

// GradeByName returns the grade with exactly this name
func (c *FileCatalog) GradeByName(ctx context.Context, name string) (model.Grade, error) {
	if err := ctx.Err(); err != nil {
		return model.Grade{}, err
	}
	for _, g := range c.grades {
		if g.Name == name {
			return g, nil
		}
	}
	return model.Grade{}, fmt.Errorf("%w: %s", ErrGradeNotFound, name)
}

// ListPropertySpecs returns a copy of the grade's specs of one kind
func (c *FileCatalog) ListPropertySpecs(ctx context.Context, gradeID int64, kind model.PropertyKind) ([]model.PropertySpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	byKind, ok := c.specs[gradeID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrGradeNotFound, gradeID)
	}
	return append([]model.PropertySpec{}, byKind[kind]...), nil
}

// SpecsFor returns all specs of a grade by kind, for import into another store
func (c *FileCatalog) SpecsFor(gradeID int64) map[model.PropertyKind][]model.PropertySpec {
	return c.specs[gradeID]
}

// Close is a no-op
func (c *FileCatalog) Close() error {
	return nil
}
