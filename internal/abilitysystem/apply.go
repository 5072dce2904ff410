package abilitysystem

import (
	"log/slog"
	"slices"

	"github.com/udisondev/abilitysystem/internal/cue"
	"github.com/udisondev/abilitysystem/internal/effect"
	"github.com/udisondev/abilitysystem/internal/prediction"
)

// chanceEpsilon treats chances this close to 1 as certain.
const chanceEpsilon = 1e-8

// MakeOutgoingSpec creates a spec for def instigated by this component and
// captures source attributes now. A nil ctx.Instigator is set to c.
func (c *Component) MakeOutgoingSpec(def *effect.Definition, level float64, ctx effect.Context) *effect.Spec {
	if ctx.Instigator == nil {
		ctx.Instigator = c
	}
	spec := effect.NewSpec(def, level, ctx, c.OwnedTags())
	spec.CaptureAttributeDataFromSource(c.effects)
	return spec
}

// ApplyGameplayEffectToSelf builds an outgoing spec for def and applies it
// to this component.
func (c *Component) ApplyGameplayEffectToSelf(def *effect.Definition, level float64, key prediction.Key) effect.Handle {
	return c.ApplyGameplayEffectSpecToSelf(c.MakeOutgoingSpec(def, level, effect.Context{}), key)
}

// ApplyGameplayEffectToTarget builds an outgoing spec for def and applies it
// to target.
func (c *Component) ApplyGameplayEffectToTarget(def *effect.Definition, target *Component, level float64, key prediction.Key) effect.Handle {
	return c.ApplyGameplayEffectSpecToTarget(c.MakeOutgoingSpec(def, level, effect.Context{}), target, key)
}

// ApplyGameplayEffectSpecToTarget applies spec to target through the
// target's own entry point.
func (c *Component) ApplyGameplayEffectSpecToTarget(spec *effect.Spec, target *Component, key prediction.Key) effect.Handle {
	if target == nil {
		return effect.HandleInvalid
	}
	if !c.predictTargetEffects {
		key = prediction.Key{}
	}
	return target.ApplyGameplayEffectSpecToSelf(spec, key)
}

// ApplyGameplayEffectSpecToSelf applies spec to this component.
//
// Returns effect.HandleInvalid when the application is refused,
// effect.HandleNone for an executed instant effect, or the handle of the
// active entry (new or stacked onto).
func (c *Component) ApplyGameplayEffectSpecToSelf(spec *effect.Spec, key prediction.Key) effect.Handle {
	if spec == nil || spec.Def == nil {
		return effect.HandleInvalid
	}

	c.effects.IncrementLock()
	defer c.effects.DecrementLock()

	def := spec.Def

	if !c.authority && !key.IsValidForMorePrediction() {
		return c.reject(spec, RejectAuthority)
	}
	if spec.IsPeriodic() && key.IsValid() {
		if !c.authority {
			return c.reject(spec, RejectPeriodicPrediction)
		}
		key = prediction.Key{}
	}

	if immunity := c.effects.HasApplicationImmunityToSpec(spec); immunity != nil {
		for _, fn := range slices.Clone(c.onImmunityBlock) {
			fn(spec, immunity)
		}
		return c.reject(spec, RejectImmunity)
	}

	for i, mod := range def.Modifiers {
		if !mod.Attribute.IsValid() {
			slog.Warn("effect modifier has no attribute",
				"owner", c.id, "effect", def.Name, "modifier", i)
			return c.reject(spec, RejectInvalidAttribute)
		}
	}

	if spec.ChanceToApply < 1-chanceEpsilon && c.rand.Float64() > spec.ChanceToApply {
		return c.reject(spec, RejectChance)
	}

	if !def.ApplicationTagRequirements.RequirementsMet(c.OwnedTags()) {
		return c.reject(spec, RejectTagRequirements)
	}
	for _, req := range def.ApplicationRequirements {
		if !req.CanApply(spec, c) {
			return c.reject(spec, RejectCustomRequirement)
		}
	}

	instant := spec.IsInstant()
	treatAsInfinite := !c.authority && key.IsLocalClientKey() && instant

	h := effect.HandleNone
	applied := spec
	var ae *effect.ActiveEffect
	if !instant || treatAsInfinite {
		toApply := spec
		if treatAsInfinite {
			// The predicted execution is modelled as an infinite entry that
			// is dropped once the authority answers.
			toApply = spec.Clone()
			toApply.SetDuration(effect.DurationInfinite, true)
		}
		var foundStack bool
		ae, foundStack = c.effects.ApplySpec(toApply, &key)
		if ae == nil {
			return c.reject(spec, RejectStacking)
		}
		h = ae.Handle
		applied = ae.Spec

		if !instant && !c.suppressCues && !ae.IsInhibited &&
			(!foundStack || !def.SuppressStackingCues) {
			if ae.Spec.StackCount > spec.StackCount {
				// Stack changes replicate without an add; tell every peer.
				c.multicast.InvokeAddedAndWhileActive(c.id, def.CueTags(), ae.Spec.CueParams(key))
			} else {
				c.effects.InvokeCues(ae.Spec, key, cue.OnActive)
				c.effects.InvokeCues(ae.Spec, key, cue.WhileActive)
			}
		}
	}

	switch {
	case treatAsInfinite:
		c.effects.InvokeCues(applied, key, cue.Executed)
	case instant && def.OngoingTagRequirements.IsEmpty():
		applied = spec.Clone()
		c.effects.ExecuteActiveEffectsFrom(applied, key)
	case instant:
		slog.Warn("instant effect has ongoing tag requirements, not executed",
			"owner", c.id, "effect", def.Name)
	}

	if c.authority && !def.RemoveEffectsWithTags.IsEmpty() {
		q := effect.QueryMatchingOwningTags(def.RemoveEffectsWithTags)
		if effect.IsValidHandle(h) {
			q.IgnoreHandles = []effect.Handle{h}
		}
		if n := c.effects.RemoveActiveEffects(q, -1); n > 0 {
			slog.Debug("effects removed by tags", "owner", c.id, "effect", def.Name, "removed", n)
		}
	}

	if len(spec.TargetEffectSpecs) > 0 && spec.IsPeriodic() {
		slog.Warn("periodic effect applies target effects once, not every period",
			"owner", c.id, "effect", def.Name)
	}
	for _, ts := range spec.TargetEffectSpecs {
		c.ApplyGameplayEffectSpecToSelf(ts, key)
	}

	c.metrics.EffectApplied(def.Name)
	for _, fn := range slices.Clone(c.onAppliedToSelf) {
		fn(c, applied, h)
	}
	if inst := spec.Context.Instigator; inst != nil {
		inst.OnGameplayEffectAppliedToTarget(c, applied, h)
	}
	return h
}

func (c *Component) reject(spec *effect.Spec, reason RejectReason) effect.Handle {
	if IsDebugEnabled() {
		slog.Debug("effect rejected", "owner", c.id, "effect", spec.Name(), "reason", reason)
	}
	c.metrics.EffectRejected(spec.Name(), reason)
	return effect.HandleInvalid
}

// RemoveActiveGameplayEffect removes stacks from h; stacks <= 0 removes the
// whole entry.
func (c *Component) RemoveActiveGameplayEffect(h effect.Handle, stacks int) bool {
	return c.effects.RemoveActiveEffect(h, stacks)
}

// RemoveActiveGameplayEffectBySourceEffect removes stacks from every entry
// of def instigated by instigator (any instigator when nil).
func (c *Component) RemoveActiveGameplayEffectBySourceEffect(def *effect.Definition, instigator effect.Instigator, stacks int) int {
	q := effect.QueryMatchingDefinition(def)
	q.Instigator = instigator
	return c.effects.RemoveActiveEffects(q, stacks)
}

// RemoveActiveEffects removes stacks from every entry matching q.
func (c *Component) RemoveActiveEffects(q effect.Query, stacks int) int {
	return c.effects.RemoveActiveEffects(q, stacks)
}
