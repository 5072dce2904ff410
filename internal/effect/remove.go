package effect

import (
	"log/slog"
	"slices"

	"github.com/udisondev/abilitysystem/internal/cue"
	"github.com/udisondev/abilitysystem/internal/prediction"
	"github.com/udisondev/abilitysystem/internal/timer"
)

// RemoveActiveEffect removes stacks from the entry h; stacks <= 0 removes
// the entry entirely. Returns false for unknown or already removed
// handles.
func (c *Container) RemoveActiveEffect(h Handle, stacks int) bool {
	c.IncrementLock()
	defer c.DecrementLock()

	ae := c.byHandle[h]
	if ae == nil || ae.IsPendingRemove {
		slog.Debug("effect: remove of unknown handle", "owner", c.owner.ID(), "handle", h)
		return false
	}
	return c.internalRemove(ae, stacks, true)
}

// RemoveActiveEffects removes stacks from every entry matching q and
// returns how many entries were affected.
func (c *Container) RemoveActiveEffects(q Query, stacks int) int {
	c.IncrementLock()
	defer c.DecrementLock()

	n := 0
	for _, ae := range c.live() {
		if q.Matches(ae) && c.internalRemove(ae, stacks, true) {
			n++
		}
	}
	return n
}

// internalRemove lowers the stack count of ae or removes it. premature is
// false only for duration expiry.
func (c *Container) internalRemove(ae *ActiveEffect, stacks int, premature bool) bool {
	if ae.IsPendingRemove {
		return false
	}
	if stacks > 0 && ae.Spec.StackCount > int32(stacks) {
		old := ae.Spec.StackCount
		ae.Spec.StackCount -= int32(stacks)
		c.onStackCountChange(ae, old, ae.Spec.StackCount)
		return true
	}

	info := RemovalInfo{Premature: premature, StackCount: ae.Spec.StackCount, Effect: ae}
	ae.IsPendingRemove = true
	delete(c.byHandle, ae.Handle)

	c.unregisterDependencies(ae)
	c.removeActiveSideEffects(ae)
	c.unregisterMods(ae)
	if !ae.IsInhibited && !c.suppressRemovedCue(ae) {
		c.InvokeCues(ae.Spec, ae.PredictionKey, cue.Removed)
	}

	c.timers.Cancel(ae.durationTimer)
	c.timers.Cancel(ae.periodTimer)
	ae.durationTimer = timer.Handle{}
	ae.periodTimer = timer.Handle{}

	slog.Debug("effect: removed",
		"owner", c.owner.ID(),
		"effect", ae.Spec.Name(),
		"handle", ae.Handle,
		"premature", premature)

	for _, fn := range slices.Clone(ae.Events.OnRemoved) {
		fn(info)
	}
	for _, fn := range slices.Clone(c.onAnyRemoved) {
		fn(info)
	}

	if c.owner.IsAuthority() {
		c.applyExpirationEffects(ae, premature)
	}
	c.compact(ae, premature)
	return true
}

// suppressRemovedCue reports whether a predicted entry is being replaced by
// the authoritative one, which already owns the cue.
func (c *Container) suppressRemovedCue(ae *ActiveEffect) bool {
	return ae.PredictionKey.IsLocalClientKey() && c.HasReceivedEffectWithPredictedKey(ae.PredictionKey)
}

func (c *Container) applyExpirationEffects(ae *ActiveEffect, premature bool) {
	defs := ae.Spec.Def.RoutineExpirationEffects
	if premature {
		defs = ae.Spec.Def.PrematureExpirationEffects
	}
	for _, def := range defs {
		c.owner.ApplyGameplayEffectSpecToSelf(ae.Spec.derive(def), prediction.Key{})
	}
}
