package effect

import (
	"log/slog"
	"slices"

	"github.com/udisondev/abilitysystem/internal/aggregator"
	"github.com/udisondev/abilitysystem/internal/prediction"
	"github.com/udisondev/abilitysystem/internal/timer"
)

// ApplySpec adds spec to the container, or stacks it onto a matching entry.
// The second result reports whether an existing stackable entry was found.
//
// A nil entry means the spec was not applied: clients never predict
// stacking and overflow may be denied. When stacking on the authority the
// incoming key is cleared through key.
//
// The returned pointer is only valid until the next structural mutation.
func (c *Container) ApplySpec(spec *Spec, key *prediction.Key) (*ActiveEffect, bool) {
	c.IncrementLock()
	defer c.DecrementLock()

	var k prediction.Key
	if key != nil {
		k = *key
	}
	now := c.timers.Now()

	var (
		ae          *ActiveEffect
		found       bool
		oldStacks   int32
		oldDuration float64
		requalify   bool
		setDuration = true
		setPeriod   = true
	)

	if spec.Def.StackingType != StackingNone {
		if existing := c.findStackableEffect(spec); existing != nil {
			if !c.owner.IsAuthority() {
				return nil, false
			}
			if key != nil {
				*key = prediction.Key{}
			}
			limit := spec.Def.StackLimitCount
			if limit > 0 && existing.Spec.StackCount >= limit && !c.handleStackOverflow(existing, spec) {
				return nil, false
			}

			ae = existing
			found = true
			oldStacks = existing.Spec.StackCount
			newStacks := oldStacks + spec.StackCount
			if limit > 0 {
				newStacks = min(newStacks, limit)
			}

			// The incoming spec replaces the stored one; its captures may come
			// from a different instigator.
			c.unregisterDependencies(ae)
			old := ae.Spec
			ae.Spec = spec.Clone()
			ae.Spec.GrantedAbilities = old.GrantedAbilities
			ae.Spec.StackCount = newStacks
			oldDuration = old.Duration
			requalify = !slices.Equal(qualifyingModifiers(old), qualifyingModifiers(ae.Spec))

			if spec.Def.StackDurationRefreshPolicy == NeverRefresh {
				setDuration = false
			} else {
				ae.StartWorldTime = now
				ae.StartServerTime = now
			}
			if spec.Def.StackPeriodResetPolicy == NeverReset {
				setPeriod = false
			}
		}
	}

	if ae == nil {
		ae = &ActiveEffect{
			Handle:                NewHandle(),
			Spec:                  spec.Clone(),
			PredictionKey:         k,
			StartServerTime:       now,
			CachedStartServerTime: now,
			StartWorldTime:        now,
		}
		c.byHandle[ae.Handle] = ae
	}

	s := ae.Spec
	s.CapturedTargetTags = c.owner.OwnedTags()
	s.CaptureAttributeDataFromTarget(c)
	s.CalculateModifierMagnitudes()
	c.registerDependencies(ae)
	if setDuration {
		s.recalculateDuration()
		c.scheduleDuration(ae)
	} else {
		s.Duration = oldDuration
	}
	if setPeriod {
		c.schedulePeriod(ae)
	}

	if !found && !c.owner.IsAuthority() && k.IsLocalClientKey() {
		// The predicted entry is dropped once the authority answers; the
		// authoritative version arrives through replication.
		h := ae.Handle
		c.owner.Predictions().OnRejectedOrCaughtUp(k, func() {
			c.RemoveActiveEffect(h, -1)
		})
	}

	if found {
		if requalify {
			c.unregisterMods(ae)
			c.registerMods(ae)
		}
		c.onStackCountChange(ae, oldStacks, ae.Spec.StackCount)
		if setDuration {
			c.onTimeChange(ae)
		}
	} else {
		c.onAdded(ae)
	}
	return ae, found
}

func (c *Container) findStackableEffect(spec *Spec) *ActiveEffect {
	var found *ActiveEffect
	c.each(func(ae *ActiveEffect) bool {
		if ae.Spec.Def != spec.Def {
			return true
		}
		if spec.Def.StackingType == AggregateBySource &&
			ae.Spec.Context.InstigatorID() != spec.Context.InstigatorID() {
			return true
		}
		found = ae
		return false
	})
	return found
}

// handleStackOverflow applies the overflow effects and reports whether the
// application may still refresh the full stack.
func (c *Container) handleStackOverflow(existing *ActiveEffect, incoming *Spec) bool {
	for _, def := range incoming.Def.OverflowEffects {
		c.owner.ApplyGameplayEffectSpecToSelf(incoming.derive(def), prediction.Key{})
	}
	allow := !incoming.Def.DenyOverflowApplication
	if !allow && incoming.Def.ClearStackOnOverflow {
		c.internalRemove(existing, -1, true)
	}
	return allow
}

func (c *Container) scheduleDuration(ae *ActiveEffect) {
	c.timers.Cancel(ae.durationTimer)
	ae.durationTimer = timer.Handle{}
	if ae.Replicated || ae.Spec.Duration <= 0 {
		return
	}
	h := ae.Handle
	ae.durationTimer = c.timers.Schedule(ae.Spec.Duration, false, func() { c.CheckDuration(h) })
}

func (c *Container) schedulePeriod(ae *ActiveEffect) {
	c.timers.Cancel(ae.periodTimer)
	ae.periodTimer = timer.Handle{}
	if ae.Replicated || ae.Spec.Period <= 0 {
		return
	}
	h := ae.Handle
	ae.periodTimer = c.timers.Schedule(ae.Spec.Period, true, func() { c.ExecutePeriodicEffect(h) })
	if ae.Spec.Def.ExecutePeriodicEffectOnApplication {
		c.timers.ScheduleNextTick(func() { c.ExecutePeriodicEffect(h) })
	}
}

// onAdded decides Active vs Inhibited and registers the new entry's mods.
func (c *Container) onAdded(ae *ActiveEffect) {
	reqs := ae.Spec.Def.OngoingTagRequirements
	ae.IsInhibited = !reqs.IsEmpty() && !reqs.RequirementsMet(c.owner.OwnedTags())
	c.insert(ae)

	c.registerMods(ae)
	if !ae.IsInhibited {
		c.addActiveSideEffects(ae)
	}

	slog.Debug("effect: applied",
		"owner", c.owner.ID(),
		"effect", ae.Spec.Name(),
		"handle", ae.Handle,
		"duration", ae.Spec.Duration,
		"inhibited", ae.IsInhibited)

	for _, fn := range slices.Clone(c.addedListeners) {
		fn(ae)
	}
}

// qualifyingModifiers returns the indexes of the modifiers whose source
// requirements the tags captured from the instigator meet.
func qualifyingModifiers(s *Spec) []int {
	var out []int
	for i, mod := range s.Def.Modifiers {
		if mod.SourceTags.IsEmpty() || mod.SourceTags.RequirementsMet(s.CapturedSourceTags) {
			out = append(out, i)
		}
	}
	return out
}

// registerMods adds one mod per modifier. Periodic effects execute against
// base values and register none. Source requirements are checked here
// against the tags captured from the instigator; a stack that replaces the
// spec with different captured tags registers again.
func (c *Container) registerMods(ae *ActiveEffect) {
	s := ae.Spec
	if s.IsPeriodic() {
		return
	}
	predicted := !c.owner.IsAuthority() && ae.PredictionKey.IsLocalClientKey()
	for _, i := range qualifyingModifiers(s) {
		mod := s.Def.Modifiers[i]
		agg := c.Aggregator(mod.Attribute)
		if agg == nil {
			slog.Warn("effect: modifier on missing attribute",
				"owner", c.owner.ID(), "effect", s.Name(), "attribute", mod.Attribute)
			continue
		}
		if !slices.Contains(ae.modifiedAttrs, mod.Attribute) {
			ae.modifiedAttrs = append(ae.modifiedAttrs, mod.Attribute)
		}
		agg.AddMod(aggregator.Mod{
			Magnitude:   s.StackedModifierMagnitude(i),
			Op:          mod.Op,
			Channel:     mod.Channel,
			TargetReqs:  mod.TargetTags,
			IsPredicted: predicted,
			Inhibited:   ae.IsInhibited,
			Handle:      ae.Handle,
			ModIndex:    i,
		})
	}
}

func (c *Container) unregisterMods(ae *ActiveEffect) {
	for _, attr := range ae.modifiedAttrs {
		if agg := c.aggregators[attr]; agg != nil {
			agg.RemoveModsWithHandle(ae.Handle)
		}
	}
	ae.modifiedAttrs = nil
}

// registerDependencies links live target captures so the entry's
// magnitudes follow the backing attributes.
func (c *Container) registerDependencies(ae *ActiveEffect) {
	for _, attr := range ae.Spec.liveTargetCaptures() {
		agg := c.Aggregator(attr)
		if agg == nil {
			continue
		}
		agg.AddDependent(ae.Handle)
		ae.dependencyAttrs = append(ae.dependencyAttrs, attr)
	}
}

func (c *Container) unregisterDependencies(ae *ActiveEffect) {
	for _, attr := range ae.dependencyAttrs {
		if agg := c.aggregators[attr]; agg != nil {
			agg.RemoveDependent(ae.Handle)
		}
	}
	ae.dependencyAttrs = nil
}

// addActiveSideEffects grants tags, cue tags and abilities.
func (c *Container) addActiveSideEffects(ae *ActiveEffect) {
	if ae.sideEffectsActive {
		return
	}
	ae.sideEffectsActive = true
	ae.grantedTags = ae.Spec.AllGrantedTags()
	c.cueTags.UpdateContainer(ae.Spec.Def.CueTags(), 1)
	if len(ae.Spec.GrantedAbilities) > 0 {
		c.owner.GrantAbilities(ae.Handle, ae.Spec.GrantedAbilities)
	}
	c.owner.UpdateTagCounts(ae.grantedTags, 1)
}

func (c *Container) removeActiveSideEffects(ae *ActiveEffect) {
	if !ae.sideEffectsActive {
		return
	}
	ae.sideEffectsActive = false
	c.cueTags.UpdateContainer(ae.Spec.Def.CueTags(), -1)
	if len(ae.Spec.GrantedAbilities) > 0 {
		c.owner.RemoveAbilities(ae.Handle, ae.Spec.GrantedAbilities)
	}
	c.owner.UpdateTagCounts(ae.grantedTags, -1)
}

func (c *Container) onStackCountChange(ae *ActiveEffect, oldCount, newCount int32) {
	c.updateModMagnitudes(ae, false)
	if oldCount == newCount {
		return
	}
	slog.Debug("effect: stack count changed",
		"owner", c.owner.ID(), "handle", ae.Handle, "old", oldCount, "new", newCount)
	for _, fn := range slices.Clone(ae.Events.OnStackChange) {
		fn(ae.Handle, newCount, oldCount)
	}
	c.emit(newChangeEvent(ChangeStackCount, ae))
}

func (c *Container) onTimeChange(ae *ActiveEffect) {
	for _, fn := range slices.Clone(ae.Events.OnTimeChange) {
		fn(ae.Handle, ae.StartWorldTime, ae.Spec.Duration)
	}
	c.emit(newChangeEvent(ChangeTime, ae))
}
