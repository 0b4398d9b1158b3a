package model

// Grade is a named material specification (e.g. a steel grade) from the catalog
type Grade struct {
	ID       int64  `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
}

// PropertyKind separates chemical composition from mechanical test values
type PropertyKind string

const (
	KindChemical   PropertyKind = "chemical"
	KindMechanical PropertyKind = "mechanical"
)

// Kinds lists property kinds in report order
func Kinds() []PropertyKind {
	return []PropertyKind{KindChemical, KindMechanical}
}

// PropertySpec is one bounded property belonging to a grade.
// A nil Min or Max is an open side; both nil means no enforceable limit.
type PropertySpec struct {
	GradeID  int64        `json:"grade_id" yaml:"-"`
	Kind     PropertyKind `json:"kind" yaml:"-"`
	Name     string       `json:"property" yaml:"property"`
	Unit     string       `json:"unit,omitempty" yaml:"unit,omitempty"`
	Diameter string       `json:"diameter,omitempty" yaml:"diameter,omitempty"` // e.g. ">16,≤40"
	Min      *float64     `json:"min,omitempty" yaml:"min,omitempty"`
	Max      *float64     `json:"max,omitempty" yaml:"max,omitempty"`
}

// ExtractedProperty is a raw (property_name, value) pair returned by the extraction capability.
// Value stays untyped until normalized: json.Number, string, map or list.
type ExtractedProperty struct {
	Name  string `json:"property_name"`
	Value any    `json:"value"`
}

// NormalizedValue is the canonical numeric form of a raw value.
// Low == High for a single measurement.
type NormalizedValue struct {
	Low   *float64 `json:"low,omitempty"`
	High  *float64 `json:"high,omitempty"`
	Valid bool     `json:"valid"`
}

// Point returns a valid single-value NormalizedValue
func Point(v float64) NormalizedValue {
	return NormalizedValue{Low: Float(v), High: Float(v), Valid: true}
}

// Span returns a NormalizedValue for the given sides; it is valid when at least one side is set
func Span(low, high *float64) NormalizedValue {
	return NormalizedValue{Low: low, High: high, Valid: low != nil || high != nil}
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
