package tag

import "slices"

// EventType selects when a registered tag callback fires.
type EventType int8

const (
	// NewOrRemoved fires when a tag's count moves between zero and non-zero.
	NewOrRemoved EventType = iota
	// AnyCountChange fires on every count change.
	AnyCountChange
)

// ChangeFunc is called with the tag and its new count.
type ChangeFunc func(t Tag, newCount int)

type tagEvent struct {
	eventType EventType
	fn        ChangeFunc
}

// CountContainer tracks reference counts of owned tags. Several sources
// (active effects, loose tags) may grant the same tag; the tag is owned
// while its count is positive.
//
// Not safe for concurrent use.
type CountContainer struct {
	counts   map[Tag]int
	explicit Container

	events  map[Tag][]tagEvent
	generic []ChangeFunc
}

// NewCountContainer creates an empty CountContainer.
func NewCountContainer() *CountContainer {
	return &CountContainer{
		counts: make(map[Tag]int),
		events: make(map[Tag][]tagEvent),
	}
}

// Count returns the current count of t.
func (c *CountContainer) Count(t Tag) int {
	return c.counts[t]
}

// Explicit returns the tags with a positive count.
func (c *CountContainer) Explicit() Container {
	return c.explicit.Clone()
}

// HasTag reports whether an owned tag matches t.
func (c *CountContainer) HasTag(t Tag) bool {
	return c.explicit.HasTag(t)
}

// RegisterEvent subscribes fn to count changes of t.
func (c *CountContainer) RegisterEvent(t Tag, eventType EventType, fn ChangeFunc) {
	c.events[t] = append(c.events[t], tagEvent{eventType: eventType, fn: fn})
}

// RegisterGenericEvent subscribes fn to every existence change of any tag.
func (c *CountContainer) RegisterGenericEvent(fn ChangeFunc) {
	c.generic = append(c.generic, fn)
}

// UpdateCount adds delta to the count of t and fires events.
// Returns true if the tag was added or removed as a result.
func (c *CountContainer) UpdateCount(t Tag, delta int) bool {
	if !t.IsValid() || delta == 0 {
		return false
	}

	old := c.counts[t]
	newCount := max(old+delta, 0)
	if newCount == 0 {
		delete(c.counts, t)
	} else {
		c.counts[t] = newCount
	}

	existenceChanged := (old == 0) != (newCount == 0)
	if existenceChanged {
		if newCount > 0 {
			c.explicit.Add(t)
		} else {
			c.explicit.Remove(t)
		}
	}

	c.notify(t, newCount, existenceChanged)
	return existenceChanged
}

// UpdateContainer adds delta to every tag of tags.
func (c *CountContainer) UpdateContainer(tags Container, delta int) {
	for _, t := range tags.tags {
		c.UpdateCount(t, delta)
	}
}

// SetCount forces the count of t, used for loose tags replicated from an
// authority.
func (c *CountContainer) SetCount(t Tag, count int) {
	c.UpdateCount(t, count-c.counts[t])
}

func (c *CountContainer) notify(t Tag, newCount int, existenceChanged bool) {
	// Callbacks may register new events; iterate over snapshots.
	for _, ev := range slices.Clone(c.events[t]) {
		if ev.eventType == AnyCountChange || existenceChanged {
			ev.fn(t, newCount)
		}
	}
	if !existenceChanged {
		return
	}
	for _, fn := range slices.Clone(c.generic) {
		fn(t, newCount)
	}
}
