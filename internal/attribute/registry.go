package attribute

import (
	"fmt"
	"maps"
	"slices"
)

// Registry holds the known attribute set schemas.
type Registry struct {
	schemas map[SetID]Schema
}

// NewRegistry creates a registry from schemas.
func NewRegistry(schemas ...Schema) (*Registry, error) {
	r := &Registry{schemas: make(map[SetID]Schema, len(schemas))}
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a schema.
func (r *Registry) Register(s Schema) error {
	if s.ID == "" {
		return fmt.Errorf("attribute schema without id")
	}
	if _, ok := r.schemas[s.ID]; ok {
		return fmt.Errorf("attribute schema %q registered twice", s.ID)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" || seen[f.Name] {
			return fmt.Errorf("attribute schema %q: bad or duplicate field %q", s.ID, f.Name)
		}
		seen[f.Name] = true
	}
	r.schemas[s.ID] = s
	return nil
}

// Schema returns the schema of id.
func (r *Registry) Schema(id SetID) (Schema, bool) {
	s, ok := r.schemas[id]
	return s, ok
}

// Resolve reports whether attr names a declared field.
func (r *Registry) Resolve(attr Attribute) bool {
	s, ok := r.schemas[attr.Set]
	if !ok {
		return false
	}
	for _, f := range s.Fields {
		if f.Name == attr.Field {
			return true
		}
	}
	return false
}

// IDs returns registered schema IDs in sorted order.
func (r *Registry) IDs() []SetID {
	return slices.Sorted(maps.Keys(r.schemas))
}

// Instantiate creates a Sets collection with one instance per id.
func (r *Registry) Instantiate(ids ...SetID) (*Sets, error) {
	sets := NewSets()
	for _, id := range ids {
		s, ok := r.schemas[id]
		if !ok {
			return nil, fmt.Errorf("unknown attribute set %q", id)
		}
		if err := sets.Add(NewSet(s)); err != nil {
			return nil, err
		}
	}
	return sets, nil
}
