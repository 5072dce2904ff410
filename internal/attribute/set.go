package attribute

import (
	"fmt"
	"maps"
	"slices"
)

// FieldDef declares one field of a schema with its default base value.
type FieldDef struct {
	Name    string  `yaml:"name"`
	Default float64 `yaml:"default"`
}

// Schema describes an attribute set: its ID and fields.
type Schema struct {
	ID     SetID      `yaml:"id"`
	Fields []FieldDef `yaml:"fields"`
}

// Set is one entity's instance of a schema.
type Set struct {
	id     SetID
	values map[string]*Value
}

// NewSet instantiates schema with default values.
func NewSet(schema Schema) *Set {
	s := &Set{
		id:     schema.ID,
		values: make(map[string]*Value, len(schema.Fields)),
	}
	for _, f := range schema.Fields {
		s.values[f.Name] = &Value{Base: f.Default, Current: f.Default}
	}
	return s
}

// ID returns the schema ID of the set.
func (s *Set) ID() SetID {
	return s.id
}

// Has reports whether field exists in the set.
func (s *Set) Has(field string) bool {
	_, ok := s.values[field]
	return ok
}

// Fields returns field names in sorted order.
func (s *Set) Fields() []string {
	return slices.Sorted(maps.Keys(s.values))
}

// Value returns a copy of the field value.
func (s *Set) Value(field string) (Value, bool) {
	v, ok := s.values[field]
	if !ok {
		return Value{}, false
	}
	return *v, true
}

// Sets is the collection of attribute set instances owned by one entity.
//
// Not safe for concurrent use.
type Sets struct {
	sets map[SetID]*Set
}

// NewSets creates an empty collection.
func NewSets() *Sets {
	return &Sets{sets: make(map[SetID]*Set)}
}

// Add registers an instance. Returns an error if a set with the same ID exists.
func (s *Sets) Add(set *Set) error {
	if _, ok := s.sets[set.id]; ok {
		return fmt.Errorf("attribute set %q already added", set.id)
	}
	s.sets[set.id] = set
	return nil
}

// Get returns the instance of id, or nil.
func (s *Sets) Get(id SetID) *Set {
	return s.sets[id]
}

// IDs returns the held set IDs in sorted order.
func (s *Sets) IDs() []SetID {
	return slices.Sorted(maps.Keys(s.sets))
}

// HasAttributeSet implements Owner.
func (s *Sets) HasAttributeSet(id SetID) bool {
	_, ok := s.sets[id]
	return ok
}

// Has reports whether attr resolves against the held sets.
func (s *Sets) Has(attr Attribute) bool {
	return s.value(attr) != nil
}

// Base returns the base value of attr.
func (s *Sets) Base(attr Attribute) (float64, bool) {
	v := s.value(attr)
	if v == nil {
		return 0, false
	}
	return v.Base, true
}

// Current returns the current value of attr.
func (s *Sets) Current(attr Attribute) (float64, bool) {
	v := s.value(attr)
	if v == nil {
		return 0, false
	}
	return v.Current, true
}

// SetBase overwrites the base value. Returns false if attr does not resolve.
func (s *Sets) SetBase(attr Attribute, base float64) bool {
	v := s.value(attr)
	if v == nil {
		return false
	}
	v.Base = base
	return true
}

// SetCurrent overwrites the current value. Returns false if attr does not resolve.
func (s *Sets) SetCurrent(attr Attribute, current float64) bool {
	v := s.value(attr)
	if v == nil {
		return false
	}
	v.Current = current
	return true
}

func (s *Sets) value(attr Attribute) *Value {
	set := s.sets[attr.Set]
	if set == nil {
		return nil
	}
	return set.values[attr.Field]
}
