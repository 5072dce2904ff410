package attribute

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAttribute is returned when an attribute reference cannot be parsed.
var ErrInvalidAttribute = errors.New("invalid attribute reference")

// SetID names an attribute set schema, e.g. "Health" or "Combat".
type SetID string

// Attribute identifies one numeric field of one attribute set.
// It is a lightweight comparable key and is only meaningful relative to an
// owner that holds an instance of Set.
type Attribute struct {
	Set   SetID
	Field string
}

// New creates an Attribute key.
func New(set SetID, field string) Attribute {
	return Attribute{Set: set, Field: field}
}

// Parse reads "Set.Field".
func Parse(s string) (Attribute, error) {
	set, field, ok := strings.Cut(s, ".")
	if !ok || set == "" || field == "" {
		return Attribute{}, fmt.Errorf("parsing %q: %w", s, ErrInvalidAttribute)
	}
	return New(SetID(set), field), nil
}

// IsValid reports whether both parts are set.
func (a Attribute) IsValid() bool {
	return a.Set != "" && a.Field != ""
}

func (a Attribute) String() string {
	if !a.IsValid() {
		return "<none>"
	}
	return string(a.Set) + "." + a.Field
}

// Value is the base and current (aggregated) value of one attribute.
type Value struct {
	Base    float64
	Current float64
}

// Owner is anything holding attribute set instances.
type Owner interface {
	HasAttributeSet(id SetID) bool
}
