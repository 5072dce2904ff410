package effect

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrCurveNotFound is returned when a curve reference has no row.
	ErrCurveNotFound = errors.New("curve not found")
	// ErrEmptyCurve is returned when evaluating a curve without keys.
	ErrEmptyCurve = errors.New("curve has no keys")
)

// CurveKey is one point of a curve.
type CurveKey struct {
	Time  float64 `yaml:"time"`
	Value float64 `yaml:"value"`
}

// Curve is a piecewise linear function. Evaluation clamps outside the key
// range.
type Curve struct {
	keys []CurveKey
}

// NewCurve creates a curve; keys are sorted by time.
func NewCurve(keys ...CurveKey) *Curve {
	sorted := slices.Clone(keys)
	slices.SortStableFunc(sorted, func(a, b CurveKey) int {
		return cmp.Compare(a.Time, b.Time)
	})
	return &Curve{keys: sorted}
}

// Eval returns the curve value at x.
func (c *Curve) Eval(x float64) (float64, error) {
	if c == nil || len(c.keys) == 0 {
		return 0, ErrEmptyCurve
	}
	first, last := c.keys[0], c.keys[len(c.keys)-1]
	if x <= first.Time {
		return first.Value, nil
	}
	if x >= last.Time {
		return last.Value, nil
	}
	i, _ := slices.BinarySearchFunc(c.keys, x, func(k CurveKey, t float64) int {
		return cmp.Compare(k.Time, t)
	})
	hi := c.keys[i]
	if hi.Time == x {
		return hi.Value, nil
	}
	lo := c.keys[i-1]
	alpha := (x - lo.Time) / (hi.Time - lo.Time)
	return lo.Value + (hi.Value-lo.Value)*alpha, nil
}

// CurveTable is a named collection of curves, typically keyed by level.
type CurveTable struct {
	name string
	rows map[string]*Curve
}

// NewCurveTable creates an empty table.
func NewCurveTable(name string) *CurveTable {
	return &CurveTable{name: name, rows: make(map[string]*Curve)}
}

// Name returns the table name.
func (t *CurveTable) Name() string {
	return t.name
}

// AddRow adds or replaces a row.
func (t *CurveTable) AddRow(row string, keys ...CurveKey) {
	t.rows[row] = NewCurve(keys...)
}

// Row returns the curve of row.
func (t *CurveTable) Row(row string) (*Curve, bool) {
	c, ok := t.rows[row]
	return c, ok
}

// Eval evaluates row at x.
func (t *CurveTable) Eval(row string, x float64) (float64, error) {
	c, ok := t.rows[row]
	if !ok {
		return 0, fmt.Errorf("%s.%s: %w", t.name, row, ErrCurveNotFound)
	}
	return c.Eval(x)
}

// CurveRef points at one row of a table.
type CurveRef struct {
	Table *CurveTable
	Row   string
}

// IsSet reports whether the reference names a row.
func (r CurveRef) IsSet() bool {
	return r.Row != ""
}

// Eval evaluates the referenced row at x.
func (r CurveRef) Eval(x float64) (float64, error) {
	if r.Table == nil {
		return 0, fmt.Errorf("%q without table: %w", r.Row, ErrCurveNotFound)
	}
	return r.Table.Eval(r.Row, x)
}
