package effect

import (
	"log/slog"
	"slices"

	"github.com/udisondev/abilitysystem/internal/aggregator"
	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/tag"
	"github.com/udisondev/abilitysystem/internal/timer"
)

// maxTagChangeDepth bounds nested owner tag change handling (granted tags
// that inhibit effects that grant tags...).
const maxTagChangeDepth = 8

type opKind int8

const (
	opInsert opKind = iota
	opRemove
	opNotify
)

// pendingOp is a structural mutation or notification deferred by the scope
// lock.
type pendingOp struct {
	kind opKind
	ae   *ActiveEffect
	ev   ChangeEvent
}

// Container owns the active effects and attribute aggregators of one
// entity. It is the only component allowed to mutate either.
//
// Structural changes made while the scope lock is held are queued and
// applied in FIFO order when the outermost DecrementLock releases it.
//
// Not safe for concurrent use.
type Container struct {
	owner  Owner
	attrs  *attribute.Sets
	timers timer.Service

	effects     []*ActiveEffect
	pendingAdds []*ActiveEffect
	byHandle    map[Handle]*ActiveEffect

	lockCount      int
	pending        []pendingOp
	pendingRemoves int

	aggregators map[attribute.Attribute]*aggregator.Aggregator
	bc          *broadcast

	cueTags *tag.CountContainer

	tagChangeDepth   int
	cyclicBroadcasts int

	addedListeners     []func(*ActiveEffect)
	onAnyRemoved       []func(RemovalInfo)
	onChange           []func(ChangeEvent)
	onPeriodicExecuted []func(*ActiveEffect)
	onAttributeChange  map[attribute.Attribute][]func(AttributeChange)
}

// NewContainer creates an empty container. attrs holds the owner's attribute
// set instances; base values are read from and written to it.
func NewContainer(owner Owner, attrs *attribute.Sets, timers timer.Service) *Container {
	return &Container{
		owner:             owner,
		attrs:             attrs,
		timers:            timers,
		byHandle:          make(map[Handle]*ActiveEffect),
		aggregators:       make(map[attribute.Attribute]*aggregator.Aggregator),
		cueTags:           tag.NewCountContainer(),
		onAttributeChange: make(map[attribute.Attribute][]func(AttributeChange)),
	}
}

// Attributes returns the attribute sets of the owner.
func (c *Container) Attributes() *attribute.Sets {
	return c.attrs
}

// Timers returns the timer service.
func (c *Container) Timers() timer.Service {
	return c.timers
}

// IncrementLock acquires the reentrant scope lock.
func (c *Container) IncrementLock() {
	c.lockCount++
}

// DecrementLock releases the scope lock. Releasing the outermost lock
// flushes pending operations.
func (c *Container) DecrementLock() {
	if c.lockCount == 0 {
		slog.Warn("effect: unbalanced scope lock release", "owner", c.owner.ID())
		return
	}
	c.lockCount--
	if c.lockCount > 0 {
		return
	}
	c.flushPending()
}

// IsLocked reports whether the scope lock is held.
func (c *Container) IsLocked() bool {
	return c.lockCount > 0
}

// flushPending drains the queue. The lock is held while draining so that
// callbacks mutating the container append to the same queue.
func (c *Container) flushPending() {
	if len(c.pending) == 0 {
		return
	}
	c.lockCount++
	for len(c.pending) > 0 {
		op := c.pending[0]
		c.pending = c.pending[1:]
		switch op.kind {
		case opInsert:
			c.pendingAdds = slices.DeleteFunc(c.pendingAdds, func(ae *ActiveEffect) bool { return ae == op.ae })
			c.effects = append(c.effects, op.ae)
		case opRemove:
			c.effects = slices.DeleteFunc(c.effects, func(ae *ActiveEffect) bool { return ae == op.ae })
			c.pendingRemoves--
		}
		c.deliver(op.ev)
	}
	c.pending = nil
	c.lockCount--

	if c.pendingRemoves != 0 {
		slog.Warn("effect: pending remove count out of sync", "owner", c.owner.ID(), "count", c.pendingRemoves)
		c.pendingRemoves = 0
	}
}

// insert adds a new entry, deferring the structural part while locked.
func (c *Container) insert(ae *ActiveEffect) {
	c.byHandle[ae.Handle] = ae
	ev := newChangeEvent(ChangeAdded, ae)
	if c.lockCount > 0 {
		c.pendingAdds = append(c.pendingAdds, ae)
		c.pending = append(c.pending, pendingOp{kind: opInsert, ae: ae, ev: ev})
		return
	}
	c.effects = append(c.effects, ae)
	c.deliver(ev)
}

// compact drops a removed entry from the sequence, deferring while locked.
func (c *Container) compact(ae *ActiveEffect, premature bool) {
	ev := newChangeEvent(ChangeRemoved, ae)
	ev.Premature = premature
	if c.lockCount > 0 {
		c.pendingRemoves++
		c.pending = append(c.pending, pendingOp{kind: opRemove, ae: ae, ev: ev})
		return
	}
	c.effects = slices.DeleteFunc(c.effects, func(e *ActiveEffect) bool { return e == ae })
	c.pendingAdds = slices.DeleteFunc(c.pendingAdds, func(e *ActiveEffect) bool { return e == ae })
	c.deliver(ev)
}

// emit publishes a non-structural change in order with structural ones.
func (c *Container) emit(ev ChangeEvent) {
	if c.lockCount > 0 {
		c.pending = append(c.pending, pendingOp{kind: opNotify, ev: ev})
		return
	}
	c.deliver(ev)
}

func (c *Container) deliver(ev ChangeEvent) {
	for _, fn := range c.onChange {
		fn(ev)
	}
}

// OnChange subscribes to structural and replicated-state changes.
func (c *Container) OnChange(fn func(ChangeEvent)) {
	c.onChange = append(c.onChange, fn)
}

// OnActiveEffectAdded subscribes to new entries, fired on application.
func (c *Container) OnActiveEffectAdded(fn func(*ActiveEffect)) {
	c.addedListeners = append(c.addedListeners, fn)
}

// OnAnyEffectRemoved subscribes to full removals of any entry.
func (c *Container) OnAnyEffectRemoved(fn func(RemovalInfo)) {
	c.onAnyRemoved = append(c.onAnyRemoved, fn)
}

// OnPeriodicEffectExecuted subscribes to periodic executions.
func (c *Container) OnPeriodicEffectExecuted(fn func(*ActiveEffect)) {
	c.onPeriodicExecuted = append(c.onPeriodicExecuted, fn)
}

// OnAttributeChange subscribes to current value changes of attr.
func (c *Container) OnAttributeChange(attr attribute.Attribute, fn func(AttributeChange)) {
	c.onAttributeChange[attr] = append(c.onAttributeChange[attr], fn)
}

// IsCueActive reports whether an active, uninhibited effect carries cueTag.
func (c *Container) IsCueActive(cueTag tag.Tag) bool {
	return c.cueTags.HasTag(cueTag)
}

// CyclicBroadcasts returns how many dirty broadcast cycles were broken.
func (c *Container) CyclicBroadcasts() int {
	return c.cyclicBroadcasts
}

// each calls fn for every live entry, including pending inserts, skipping
// entries pending removal. fn must not rely on mutations being visible
// during the walk.
func (c *Container) each(fn func(ae *ActiveEffect) bool) {
	for _, list := range [2][]*ActiveEffect{c.effects, c.pendingAdds} {
		for _, ae := range slices.Clone(list) {
			if ae.IsPendingRemove {
				continue
			}
			if !fn(ae) {
				return
			}
		}
	}
}

// live returns a snapshot of every live entry in application order.
func (c *Container) live() []*ActiveEffect {
	out := make([]*ActiveEffect, 0, len(c.effects)+len(c.pendingAdds))
	c.each(func(ae *ActiveEffect) bool {
		out = append(out, ae)
		return true
	})
	return out
}
