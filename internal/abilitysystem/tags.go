package abilitysystem

import "github.com/udisondev/abilitysystem/internal/tag"

// AddLooseGameplayTag grants t count times outside of any effect.
func (c *Component) AddLooseGameplayTag(t tag.Tag, count int) {
	if count <= 0 {
		return
	}
	c.tags.UpdateCount(t, count)
}

// RemoveLooseGameplayTag removes count loose grants of t.
func (c *Component) RemoveLooseGameplayTag(t tag.Tag, count int) {
	if count <= 0 {
		return
	}
	c.tags.UpdateCount(t, -count)
}

// SetLooseGameplayTagCount forces the count of t, used for loose tags
// replicated from the authority.
func (c *Component) SetLooseGameplayTagCount(t tag.Tag, count int) {
	c.tags.SetCount(t, count)
}

// HasMatchingGameplayTag reports whether an owned tag matches t.
func (c *Component) HasMatchingGameplayTag(t tag.Tag) bool {
	return c.OwnedTags().HasTag(t)
}

// TagCount returns the explicit count of t.
func (c *Component) TagCount(t tag.Tag) int {
	return c.tags.Count(t)
}

// RegisterGameplayTagEvent calls fn when the count of t changes as selected
// by eventType.
func (c *Component) RegisterGameplayTagEvent(t tag.Tag, eventType tag.EventType, fn tag.ChangeFunc) {
	c.tags.RegisterEvent(t, eventType, fn)
}
