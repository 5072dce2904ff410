package effect

import (
	"log/slog"
	"slices"

	"github.com/udisondev/abilitysystem/internal/cue"
	"github.com/udisondev/abilitysystem/internal/prediction"
)

// durationTolerance absorbs float error between the timer due time and
// start+duration.
const durationTolerance = 1e-6

// ExecuteActiveEffectsFrom executes spec once against the owner's base
// values: instant effects and every period of a periodic effect. Returns
// whether any modifier was applied.
func (c *Container) ExecuteActiveEffectsFrom(spec *Spec, key prediction.Key) bool {
	c.IncrementLock()
	defer c.DecrementLock()

	spec.CapturedTargetTags = c.owner.OwnedTags()
	spec.CaptureAttributeDataFromTarget(c)
	spec.CalculateModifierMagnitudes()

	applied := false
	for i, mod := range spec.Def.Modifiers {
		if !mod.SourceTags.RequirementsMet(spec.CapturedSourceTags) ||
			!mod.TargetTags.RequirementsMet(spec.CapturedTargetTags) {
			continue
		}
		if c.ApplyModToAttributeBase(mod.Attribute, mod.Op, spec.StackedModifierMagnitude(i)) {
			applied = true
		}
	}

	for _, ce := range spec.Def.ConditionalEffects {
		if spec.CapturedSourceTags.HasAll(ce.RequiredSourceTags) {
			c.owner.ApplyGameplayEffectSpecToSelf(spec.derive(ce.Def), key)
		}
	}

	if applied || !spec.Def.RequireModifierSuccessToTriggerCues {
		c.InvokeCues(spec, key, cue.Executed)
	}
	return applied
}

// ExecutePeriodicEffect is the period timer callback. It tolerates handles
// removed since the timer was scheduled.
func (c *Container) ExecutePeriodicEffect(h Handle) {
	ae := c.byHandle[h]
	if ae == nil || ae.IsPendingRemove || ae.IsInhibited {
		return
	}

	c.IncrementLock()
	defer c.DecrementLock()

	slog.Debug("effect: periodic execution",
		"owner", c.owner.ID(), "effect", ae.Spec.Name(), "handle", h, "stacks", ae.Spec.StackCount)
	c.ExecuteActiveEffectsFrom(ae.Spec, ae.PredictionKey)

	for _, fn := range slices.Clone(c.onPeriodicExecuted) {
		fn(ae)
	}
}

// CheckDuration is the duration timer callback. An entry whose duration
// was extended since scheduling is rescheduled for the remainder.
func (c *Container) CheckDuration(h Handle) {
	ae := c.byHandle[h]
	if ae == nil || ae.IsPendingRemove {
		return
	}
	d := ae.Spec.Duration
	if d <= 0 {
		return
	}

	c.IncrementLock()
	defer c.DecrementLock()

	now := c.timers.Now()
	end := ae.StartWorldTime + d
	if now+durationTolerance < end {
		c.timers.Cancel(ae.durationTimer)
		ae.durationTimer = c.timers.Schedule(end-now, false, func() { c.CheckDuration(h) })
		return
	}

	switch ae.Spec.Def.StackExpirationPolicy {
	case RemoveSingleStackAndRefreshDuration:
		if ae.Spec.StackCount > 1 {
			c.internalRemove(ae, 1, false)
			c.restartDuration(ae, now)
			return
		}
		c.internalRemove(ae, -1, false)
	case RefreshDuration:
		c.restartDuration(ae, now)
	default:
		c.internalRemove(ae, -1, false)
	}
}

func (c *Container) restartDuration(ae *ActiveEffect, now float64) {
	ae.StartWorldTime = now
	ae.StartServerTime = now
	c.scheduleDuration(ae)
	c.onTimeChange(ae)
}

// InvokeCues dispatches event for every cue tag of spec's definition.
func (c *Container) InvokeCues(spec *Spec, key prediction.Key, event cue.Event) {
	tags := spec.Def.CueTags()
	if tags.IsEmpty() {
		return
	}
	params := spec.CueParams(key)
	for _, t := range tags.Tags() {
		c.owner.InvokeCue(t, event, params)
	}
}
