package effect

import (
	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/prediction"
)

// ActiveEffect returns the live entry for h, or nil.
func (c *Container) ActiveEffect(h Handle) *ActiveEffect {
	ae := c.byHandle[h]
	if ae == nil || ae.IsPendingRemove {
		return nil
	}
	return ae
}

// Len returns the number of live entries.
func (c *Container) Len() int {
	return len(c.byHandle)
}

// ActiveEffectCount sums the stack counts of matching entries. With
// enforceOngoingCheck inhibited entries are skipped.
func (c *Container) ActiveEffectCount(q Query, enforceOngoingCheck bool) int {
	n := 0
	c.each(func(ae *ActiveEffect) bool {
		if enforceOngoingCheck && ae.IsInhibited {
			return true
		}
		if q.Matches(ae) {
			n += int(ae.Spec.StackCount)
		}
		return true
	})
	return n
}

// ActiveEffects returns the handles of matching entries in application
// order.
func (c *Container) ActiveEffects(q Query) []Handle {
	var out []Handle
	c.each(func(ae *ActiveEffect) bool {
		if q.Matches(ae) {
			out = append(out, ae.Handle)
		}
		return true
	})
	return out
}

// AllActiveEffectHandles returns every live handle.
func (c *Container) AllActiveEffectHandles() []Handle {
	return c.ActiveEffects(Query{})
}

// ActiveEffectsTimeRemaining returns the remaining time of matching
// entries, -1 for infinite ones.
func (c *Container) ActiveEffectsTimeRemaining(q Query) []float64 {
	now := c.timers.Now()
	var out []float64
	c.each(func(ae *ActiveEffect) bool {
		if q.Matches(ae) {
			out = append(out, ae.TimeRemaining(now))
		}
		return true
	})
	return out
}

// ActiveEffectsDuration returns the total duration of matching entries.
func (c *Container) ActiveEffectsDuration(q Query) []float64 {
	var out []float64
	c.each(func(ae *ActiveEffect) bool {
		if q.Matches(ae) {
			out = append(out, ae.Spec.Duration)
		}
		return true
	})
	return out
}

// StartTimeAndDuration returns the world start time and duration of h.
func (c *Container) StartTimeAndDuration(h Handle) (start, duration float64, ok bool) {
	ae := c.ActiveEffect(h)
	if ae == nil {
		return 0, 0, false
	}
	return ae.StartWorldTime, ae.Spec.Duration, true
}

// EffectMagnitude returns the single-stack magnitude of the first modifier
// of h on attr.
func (c *Container) EffectMagnitude(h Handle, attr attribute.Attribute) (float64, bool) {
	ae := c.ActiveEffect(h)
	if ae == nil {
		return 0, false
	}
	for i, mod := range ae.Spec.Def.Modifiers {
		if mod.Attribute == attr {
			return ae.Spec.ModifierMagnitude(i), true
		}
	}
	return 0, false
}

// SetActiveEffectLevel changes the level of h and updates its mods.
func (c *Container) SetActiveEffectLevel(h Handle, level float64) bool {
	ae := c.ActiveEffect(h)
	if ae == nil {
		return false
	}
	if ae.Spec.Level == level {
		return true
	}

	c.IncrementLock()
	defer c.DecrementLock()

	ae.Spec.SetLevel(level)
	c.updateModMagnitudes(ae, false)
	c.emit(newChangeEvent(ChangeLevel, ae))
	return true
}

// ModifyActiveEffectStartTime shifts the start of h by delta seconds and
// reschedules its expiry. An entry pushed past its end expires now.
func (c *Container) ModifyActiveEffectStartTime(h Handle, delta float64) bool {
	ae := c.ActiveEffect(h)
	if ae == nil {
		return false
	}

	c.IncrementLock()
	defer c.DecrementLock()

	ae.StartWorldTime += delta
	ae.StartServerTime += delta
	if ae.Spec.Duration > 0 && !ae.Replicated {
		remaining := ae.EndTime() - c.timers.Now()
		if remaining <= 0 {
			c.CheckDuration(h)
			return true
		}
		c.timers.Cancel(ae.durationTimer)
		ae.durationTimer = c.timers.Schedule(remaining, false, func() { c.CheckDuration(h) })
	}
	c.onTimeChange(ae)
	return true
}

// HasReceivedEffectWithPredictedKey reports whether an entry replicated
// from the authority carries key.
func (c *Container) HasReceivedEffectWithPredictedKey(key prediction.Key) bool {
	found := false
	c.each(func(ae *ActiveEffect) bool {
		if ae.PredictionKey.Matches(key) && ae.Replicated {
			found = true
			return false
		}
		return true
	})
	return found
}

// HasPredictedEffectWithPredictedKey reports whether a locally predicted
// entry carries key.
func (c *Container) HasPredictedEffectWithPredictedKey(key prediction.Key) bool {
	found := false
	c.each(func(ae *ActiveEffect) bool {
		if ae.PredictionKey.Matches(key) && !ae.Replicated && ae.PredictionKey.WasLocallyGenerated() {
			found = true
			return false
		}
		return true
	})
	return found
}
