package effect

import (
	"slices"

	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/tag"
)

// Query selects active effects. Every non-zero field must match; the zero
// Query matches everything.
type Query struct {
	Definition *Definition
	Instigator Instigator

	// Owning tags are the effect's asset and granted tags.
	OwningTagsMatchAny tag.Container
	OwningTagsMatchAll tag.Container
	OwningTagsIgnore   tag.Container

	// Source tags are the tags captured from the instigator.
	SourceTagsMatchAny tag.Container

	ModifyingAttribute attribute.Attribute
	IgnoreHandles      []Handle

	Custom func(*ActiveEffect) bool
}

// QueryMatchingOwningTags matches effects owning any of tags.
func QueryMatchingOwningTags(tags tag.Container) Query {
	return Query{OwningTagsMatchAny: tags}
}

// QueryMatchingDefinition matches effects of def.
func QueryMatchingDefinition(def *Definition) Query {
	return Query{Definition: def}
}

// Matches reports whether ae satisfies q.
func (q Query) Matches(ae *ActiveEffect) bool {
	if len(q.IgnoreHandles) > 0 && slices.Contains(q.IgnoreHandles, ae.Handle) {
		return false
	}
	if !q.MatchesSpec(ae.Spec) {
		return false
	}
	if q.Custom != nil && !q.Custom(ae) {
		return false
	}
	return true
}

// MatchesSpec checks the spec-level conditions of q. Handle and custom
// conditions are ignored.
func (q Query) MatchesSpec(s *Spec) bool {
	if q.Definition != nil && s.Def != q.Definition {
		return false
	}
	if q.Instigator != nil && s.Context.Instigator != q.Instigator {
		return false
	}
	if !q.OwningTagsMatchAny.IsEmpty() || !q.OwningTagsMatchAll.IsEmpty() || !q.OwningTagsIgnore.IsEmpty() {
		owning := s.OwningTags()
		if !q.OwningTagsMatchAny.IsEmpty() && !owning.HasAny(q.OwningTagsMatchAny) {
			return false
		}
		if !owning.HasAll(q.OwningTagsMatchAll) {
			return false
		}
		if owning.HasAny(q.OwningTagsIgnore) {
			return false
		}
	}
	if !q.SourceTagsMatchAny.IsEmpty() && !s.CapturedSourceTags.HasAny(q.SourceTagsMatchAny) {
		return false
	}
	if q.ModifyingAttribute.IsValid() {
		found := false
		for _, mod := range s.Def.Modifiers {
			if mod.Attribute == q.ModifyingAttribute {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
