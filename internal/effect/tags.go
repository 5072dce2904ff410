package effect

import (
	"log/slog"
	"slices"

	"github.com/udisondev/abilitysystem/internal/cue"
	"github.com/udisondev/abilitysystem/internal/tag"
)

// OnOwnerTagChange re-checks removal and ongoing tag requirements after a
// tag was added to or removed from the owner, then refreshes current
// values for mods gated on target tags.
func (c *Container) OnOwnerTagChange(t tag.Tag, count int) {
	if c.tagChangeDepth >= maxTagChangeDepth {
		slog.Warn("effect: owner tag change recursion limit",
			"owner", c.owner.ID(), "tag", t, "depth", c.tagChangeDepth)
		return
	}
	c.tagChangeDepth++
	defer func() { c.tagChangeDepth-- }()

	c.IncrementLock()
	defer c.DecrementLock()

	for _, ae := range c.live() {
		if ae.IsPendingRemove {
			continue
		}
		owned := c.owner.OwnedTags()
		def := ae.Spec.Def
		if !def.RemovalTagRequirements.IsEmpty() && def.RemovalTagRequirements.RequirementsMet(owned) {
			c.internalRemove(ae, -1, true)
			continue
		}
		if def.OngoingTagRequirements.IsEmpty() {
			continue
		}
		c.setInhibited(ae, !def.OngoingTagRequirements.RequirementsMet(owned))
	}
	c.refreshAllAttributes()
}

// setInhibited moves ae between Active and Inhibited. Mods stay registered
// and only stop qualifying; tags, abilities and cues follow the state.
func (c *Container) setInhibited(ae *ActiveEffect, inhibited bool) {
	if ae.IsInhibited == inhibited {
		return
	}
	ae.IsInhibited = inhibited
	for _, attr := range ae.modifiedAttrs {
		if agg := c.aggregators[attr]; agg != nil {
			agg.SetInhibited(ae.Handle, inhibited)
		}
	}

	if inhibited {
		c.removeActiveSideEffects(ae)
		c.InvokeCues(ae.Spec, ae.PredictionKey, cue.Removed)
	} else {
		c.addActiveSideEffects(ae)
		c.InvokeCues(ae.Spec, ae.PredictionKey, cue.OnActive)
		c.InvokeCues(ae.Spec, ae.PredictionKey, cue.WhileActive)
	}

	slog.Debug("effect: inhibition changed",
		"owner", c.owner.ID(), "effect", ae.Spec.Name(), "handle", ae.Handle, "inhibited", inhibited)
	for _, fn := range slices.Clone(ae.Events.OnInhibitionChange) {
		fn(ae.Handle, inhibited)
	}
	c.emit(newChangeEvent(ChangeInhibition, ae))
}

// HasApplicationImmunityToSpec returns the active entry that blocks spec,
// or nil.
func (c *Container) HasApplicationImmunityToSpec(spec *Spec) *ActiveEffect {
	var blocker *ActiveEffect
	c.each(func(ae *ActiveEffect) bool {
		if ae.IsInhibited {
			return true
		}
		def := ae.Spec.Def
		if !def.GrantedApplicationImmunityTags.IsEmpty() &&
			def.GrantedApplicationImmunityTags.RequirementsMet(spec.CapturedSourceTags) {
			blocker = ae
			return false
		}
		if def.GrantedApplicationImmunityQuery != nil && def.GrantedApplicationImmunityQuery.MatchesSpec(spec) {
			blocker = ae
			return false
		}
		return true
	})
	return blocker
}
