package abilitysystem

import (
	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/effect"
)

// ActiveEffect returns the live entry for h, or nil.
func (c *Component) ActiveEffect(h effect.Handle) *effect.ActiveEffect {
	return c.effects.ActiveEffect(h)
}

// ActiveEffects returns the handles of entries matching q.
func (c *Component) ActiveEffects(q effect.Query) []effect.Handle {
	return c.effects.ActiveEffects(q)
}

// GameplayEffectCount sums the stacks of entries of def instigated by
// instigator (any instigator when nil).
func (c *Component) GameplayEffectCount(def *effect.Definition, instigator effect.Instigator, enforceOngoingCheck bool) int {
	q := effect.QueryMatchingDefinition(def)
	q.Instigator = instigator
	return c.effects.ActiveEffectCount(q, enforceOngoingCheck)
}

// AggregatedStackCount sums the stacks of entries matching q.
func (c *Component) AggregatedStackCount(q effect.Query) int {
	return c.effects.ActiveEffectCount(q, false)
}

// CurrentStackCount returns the stack count of h, 0 when h is not active.
func (c *Component) CurrentStackCount(h effect.Handle) int32 {
	ae := c.effects.ActiveEffect(h)
	if ae == nil {
		return 0
	}
	return ae.Spec.StackCount
}

// GameplayEffectDuration returns the duration of h, 0 when h is not
// active.
func (c *Component) GameplayEffectDuration(h effect.Handle) float64 {
	_, d, ok := c.effects.StartTimeAndDuration(h)
	if !ok {
		return 0
	}
	return d
}

// GameplayEffectTimeRemaining returns the remaining time of entries
// matching q, -1 for infinite ones.
func (c *Component) GameplayEffectTimeRemaining(q effect.Query) []float64 {
	return c.effects.ActiveEffectsTimeRemaining(q)
}

// SetActiveGameplayEffectLevel changes the level of h.
func (c *Component) SetActiveGameplayEffectLevel(h effect.Handle, level float64) bool {
	return c.effects.SetActiveEffectLevel(h, level)
}

// GameplayEffectMagnitude returns the single-stack magnitude h applies to
// attr.
func (c *Component) GameplayEffectMagnitude(h effect.Handle, attr attribute.Attribute) (float64, bool) {
	return c.effects.EffectMagnitude(h, attr)
}
