package tag

import (
	"slices"
	"strings"
)

// Tag is a hierarchical gameplay tag such as "State.Debuff.Stun".
// A tag matches itself and every parent it descends from:
// "State.Debuff.Stun" matches "State.Debuff" and "State".
type Tag string

// IsValid reports whether t is non-empty.
func (t Tag) IsValid() bool {
	return t != ""
}

// MatchesTag reports whether t equals parent or descends from it.
func (t Tag) MatchesTag(parent Tag) bool {
	if t == parent {
		return true
	}
	if parent == "" || len(t) <= len(parent) {
		return false
	}
	return strings.HasPrefix(string(t), string(parent)) && t[len(parent)] == '.'
}

// Parent returns the direct parent of t, or "" for a root tag.
func (t Tag) Parent() Tag {
	i := strings.LastIndexByte(string(t), '.')
	if i < 0 {
		return ""
	}
	return t[:i]
}

// Container is an ordered set of explicit tags.
// The zero value is an empty container ready to use.
type Container struct {
	tags []Tag
}

// NewContainer creates a container holding the given tags.
// Duplicates and empty tags are dropped.
func NewContainer(tags ...Tag) Container {
	var c Container
	for _, t := range tags {
		c.Add(t)
	}
	return c
}

// Add inserts t if it is valid and not already present.
func (c *Container) Add(t Tag) {
	if !t.IsValid() {
		return
	}
	i, found := slices.BinarySearch(c.tags, t)
	if found {
		return
	}
	c.tags = slices.Insert(c.tags, i, t)
}

// Remove deletes t. Returns false if t was not present.
func (c *Container) Remove(t Tag) bool {
	i, found := slices.BinarySearch(c.tags, t)
	if !found {
		return false
	}
	c.tags = slices.Delete(c.tags, i, i+1)
	return true
}

// AppendContainer adds every tag of other.
func (c *Container) AppendContainer(other Container) {
	for _, t := range other.tags {
		c.Add(t)
	}
}

// Len returns the number of explicit tags.
func (c Container) Len() int {
	return len(c.tags)
}

// IsEmpty reports whether the container has no tags.
func (c Container) IsEmpty() bool {
	return len(c.tags) == 0
}

// Tags returns a copy of the explicit tags in sorted order.
func (c Container) Tags() []Tag {
	return slices.Clone(c.tags)
}

// Clone returns an independent copy.
func (c Container) Clone() Container {
	return Container{tags: slices.Clone(c.tags)}
}

// HasTagExact reports whether t is explicitly present.
func (c Container) HasTagExact(t Tag) bool {
	_, found := slices.BinarySearch(c.tags, t)
	return found
}

// HasTag reports whether any tag in c matches t (hierarchically).
func (c Container) HasTag(t Tag) bool {
	if !t.IsValid() {
		return false
	}
	for _, owned := range c.tags {
		if owned.MatchesTag(t) {
			return true
		}
	}
	return false
}

// HasAll reports whether every tag of required is matched by c.
// An empty required container is always satisfied.
func (c Container) HasAll(required Container) bool {
	for _, t := range required.tags {
		if !c.HasTag(t) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one tag of other is matched by c.
// An empty other container never matches.
func (c Container) HasAny(other Container) bool {
	for _, t := range other.tags {
		if c.HasTag(t) {
			return true
		}
	}
	return false
}

// HasNone reports whether no tag of ignored is matched by c.
func (c Container) HasNone(ignored Container) bool {
	return !c.HasAny(ignored)
}

// Equal reports whether both containers hold the same explicit tags.
func (c Container) Equal(other Container) bool {
	return slices.Equal(c.tags, other.tags)
}

// String joins tags with commas.
func (c Container) String() string {
	parts := make([]string, len(c.tags))
	for i, t := range c.tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

// Requirements gates something on a tag set: every Require tag must be
// present and no Ignore tag may be present.
type Requirements struct {
	Require Container
	Ignore  Container
}

// IsEmpty reports whether the requirements are trivially met.
func (r Requirements) IsEmpty() bool {
	return r.Require.IsEmpty() && r.Ignore.IsEmpty()
}

// RequirementsMet reports whether c satisfies r.
func (r Requirements) RequirementsMet(c Container) bool {
	return c.HasAll(r.Require) && c.HasNone(r.Ignore)
}

// Provider exposes the tags an entity currently owns.
type Provider interface {
	OwnedTags() Container
}
