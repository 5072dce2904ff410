package effect

import (
	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/prediction"
	"github.com/udisondev/abilitysystem/internal/tag"
	"github.com/udisondev/abilitysystem/internal/timer"
)

// RemovalInfo describes why an active effect went away.
type RemovalInfo struct {
	// Premature is true for explicit removal, false for duration expiry.
	Premature  bool
	StackCount int32
	Effect     *ActiveEffect
}

// EventSet holds the per-effect delegates.
type EventSet struct {
	OnRemoved          []func(RemovalInfo)
	OnStackChange      []func(h Handle, newCount, oldCount int32)
	OnTimeChange       []func(h Handle, start, duration float64)
	OnInhibitionChange []func(h Handle, inhibited bool)
}

// ActiveEffect is a live application of a non-instant spec. It is owned by
// a Container and mutated only through it.
type ActiveEffect struct {
	Handle        Handle
	Spec          *Spec
	PredictionKey prediction.Key

	StartServerTime       float64
	CachedStartServerTime float64
	StartWorldTime        float64

	IsInhibited     bool
	IsPendingRemove bool

	// Replicated entries are driven by the authority: no local timers.
	Replicated bool

	Events EventSet

	durationTimer timer.Handle
	periodTimer   timer.Handle

	modifiedAttrs   []attribute.Attribute
	dependencyAttrs []attribute.Attribute

	// Tags and abilities granted to the owner while the entry is active.
	grantedTags       tag.Container
	sideEffectsActive bool
}

// StackCount returns the current stack count.
func (ae *ActiveEffect) StackCount() int32 {
	return ae.Spec.StackCount
}

// Duration returns the spec duration.
func (ae *ActiveEffect) Duration() float64 {
	return ae.Spec.Duration
}

// Period returns the spec period.
func (ae *ActiveEffect) Period() float64 {
	return ae.Spec.Period
}

// EndTime returns the world time the effect expires, or -1 if it never does.
func (ae *ActiveEffect) EndTime() float64 {
	if ae.Spec.Duration <= 0 {
		return DurationInfinite
	}
	return ae.StartWorldTime + ae.Spec.Duration
}

// TimeRemaining returns seconds until expiry at now, or -1 for infinite.
func (ae *ActiveEffect) TimeRemaining(now float64) float64 {
	if ae.Spec.Duration <= 0 {
		return DurationInfinite
	}
	return max(ae.EndTime()-now, 0)
}

// OnRemoved registers a removal delegate.
func (ae *ActiveEffect) OnRemoved(fn func(RemovalInfo)) {
	ae.Events.OnRemoved = append(ae.Events.OnRemoved, fn)
}

// OnStackChange registers a stack count delegate.
func (ae *ActiveEffect) OnStackChange(fn func(h Handle, newCount, oldCount int32)) {
	ae.Events.OnStackChange = append(ae.Events.OnStackChange, fn)
}
