package aggregator

import (
	"log/slog"
	"slices"
)

// Aggregator combines the mods registered for one attribute into a final
// value.
//
// Evaluation starts from the base value and walks channels in ascending
// order. Within a channel the order is Override, Additive, Multiplicative,
// Division. The first qualifying Override (lowest channel, FIFO within the
// bucket) wins outright. Otherwise each channel computes
//
//	((value + Σadd) * Πmul) / Πdiv
//
// and feeds the result into the next channel.
//
// Not safe for concurrent use.
type Aggregator struct {
	baseValue float64
	mods      [NumChannels][numOps][]Mod

	// Effects whose magnitudes read this attribute, in registration order.
	dependents []Handle

	dirty   bool
	onDirty func(*Aggregator)
}

// New creates an Aggregator with the given base value.
func New(base float64) *Aggregator {
	return &Aggregator{baseValue: base}
}

// SetOnDirty installs the callback fired after every change that may alter
// the final value.
func (a *Aggregator) SetOnDirty(fn func(*Aggregator)) {
	a.onDirty = fn
}

// BaseValue returns the base value.
func (a *Aggregator) BaseValue() float64 {
	return a.baseValue
}

// SetBaseValue replaces the base value and broadcasts if it changed.
func (a *Aggregator) SetBaseValue(v float64) {
	if a.baseValue == v {
		return
	}
	a.baseValue = v
	a.broadcastDirty()
}

// IsDirty reports whether the aggregator changed since the last ClearDirty.
func (a *Aggregator) IsDirty() bool {
	return a.dirty
}

// ClearDirty resets the dirty flag after the owner re-evaluated.
func (a *Aggregator) ClearDirty() {
	a.dirty = false
}

// AddMod appends m to the bucket for (m.Channel, m.Op).
func (a *Aggregator) AddMod(m Mod) {
	if !m.Op.IsValid() || !m.Channel.IsValid() {
		slog.Warn("aggregator: mod rejected", "op", m.Op, "channel", m.Channel, "handle", m.Handle)
		return
	}
	a.mods[m.Channel][m.Op] = append(a.mods[m.Channel][m.Op], m)
	a.broadcastDirty()
}

// RemoveModsWithHandle removes every mod registered by h.
// Broadcasts only if something was removed.
func (a *Aggregator) RemoveModsWithHandle(h Handle) bool {
	removed := false
	a.forEachBucket(func(bucket *[]Mod) {
		before := len(*bucket)
		*bucket = slices.DeleteFunc(*bucket, func(m Mod) bool { return m.Handle == h })
		if len(*bucket) != before {
			removed = true
		}
	})
	if removed {
		a.broadcastDirty()
	}
	return removed
}

// UpdateModMagnitudes rewrites the magnitude of every mod of h in place,
// keeping its position in the bucket.
func (a *Aggregator) UpdateModMagnitudes(h Handle, magnitude func(m Mod) float64) bool {
	changed := false
	a.forEachBucket(func(bucket *[]Mod) {
		for i := range *bucket {
			m := &(*bucket)[i]
			if m.Handle != h {
				continue
			}
			if v := magnitude(*m); v != m.Magnitude {
				m.Magnitude = v
				changed = true
			}
		}
	})
	if changed {
		a.broadcastDirty()
	}
	return changed
}

// SetInhibited toggles qualification of every mod of h.
func (a *Aggregator) SetInhibited(h Handle, inhibited bool) bool {
	changed := false
	a.forEachBucket(func(bucket *[]Mod) {
		for i := range *bucket {
			m := &(*bucket)[i]
			if m.Handle == h && m.Inhibited != inhibited {
				m.Inhibited = inhibited
				changed = true
			}
		}
	})
	if changed {
		a.broadcastDirty()
	}
	return changed
}

// SetPredicted clears or sets the predicted flag on every mod of h.
func (a *Aggregator) SetPredicted(h Handle, predicted bool) bool {
	changed := false
	a.forEachBucket(func(bucket *[]Mod) {
		for i := range *bucket {
			m := &(*bucket)[i]
			if m.Handle == h && m.IsPredicted != predicted {
				m.IsPredicted = predicted
				changed = true
			}
		}
	})
	if changed {
		a.broadcastDirty()
	}
	return changed
}

// Mods returns a copy of all mods in evaluation order.
func (a *Aggregator) Mods() []Mod {
	var out []Mod
	for ch := range NumChannels {
		for _, op := range evaluationOrder {
			out = append(out, a.mods[ch][op]...)
		}
	}
	return out
}

// ModCount returns the number of registered mods.
func (a *Aggregator) ModCount() int {
	n := 0
	a.forEachBucket(func(bucket *[]Mod) { n += len(*bucket) })
	return n
}

// AddDependent registers an effect whose magnitude reads this attribute.
func (a *Aggregator) AddDependent(h Handle) {
	if !slices.Contains(a.dependents, h) {
		a.dependents = append(a.dependents, h)
	}
}

// RemoveDependent unregisters h.
func (a *Aggregator) RemoveDependent(h Handle) {
	a.dependents = slices.DeleteFunc(a.dependents, func(d Handle) bool { return d == h })
}

// Dependents returns a copy of the dependent handles.
func (a *Aggregator) Dependents() []Handle {
	return slices.Clone(a.dependents)
}

// Clone returns a snapshot with the same base and mods, without callbacks
// or dependents.
func (a *Aggregator) Clone() *Aggregator {
	c := &Aggregator{baseValue: a.baseValue}
	for ch := range NumChannels {
		for op := range numOps {
			c.mods[ch][op] = slices.Clone(a.mods[ch][op])
		}
	}
	return c
}

var evaluationOrder = [numOps]ModOp{OpOverride, OpAdditive, OpMultiplicative, OpDivision}

func (a *Aggregator) forEachBucket(fn func(bucket *[]Mod)) {
	for ch := range NumChannels {
		for op := range numOps {
			fn(&a.mods[ch][op])
		}
	}
}

func (a *Aggregator) broadcastDirty() {
	a.dirty = true
	if a.onDirty != nil {
		a.onDirty(a)
	}
}
