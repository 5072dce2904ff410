package abilitysystem

import (
	"log/slog"

	"github.com/udisondev/abilitysystem/internal/effect"
	"github.com/udisondev/abilitysystem/internal/tag"
)

// SavedEffect is the persistent form of an active effect.
type SavedEffect struct {
	Definition  string             `json:"definition"`
	Level       float64            `json:"level"`
	StackCount  int32              `json:"stacks"`
	Remaining   float64            `json:"remaining"` // -1 for infinite
	Instigator  string             `json:"instigator,omitempty"`
	SourceTags  []tag.Tag          `json:"source_tags,omitempty"`
	SetByCaller map[string]float64 `json:"set_by_caller,omitempty"`
}

// SaveEffects captures every authoritative entry. Mirrors and predicted
// entries are not saved.
func (c *Component) SaveEffects() []SavedEffect {
	now := c.timers.Now()
	var out []SavedEffect
	for _, h := range c.effects.AllActiveEffectHandles() {
		ae := c.effects.ActiveEffect(h)
		if ae == nil || ae.Replicated || ae.PredictionKey.IsLocalClientKey() {
			continue
		}
		out = append(out, SavedEffect{
			Definition:  ae.Spec.Name(),
			Level:       ae.Spec.Level,
			StackCount:  ae.Spec.StackCount,
			Remaining:   ae.TimeRemaining(now),
			Instigator:  ae.Spec.Context.InstigatorID(),
			SourceTags:  ae.Spec.CapturedSourceTags.Tags(),
			SetByCaller: ae.Spec.SetByCallerMagnitudes(),
		})
	}
	return out
}

// RestoreEffects re-applies saved entries with their remaining time and
// stack count. Chance and application requirements are not re-checked.
// Returns the number of restored entries.
func (c *Component) RestoreEffects(saved []SavedEffect) int {
	if c.catalog == nil {
		slog.Warn("no catalog to restore effects", "owner", c.id, "count", len(saved))
		return 0
	}

	c.effects.IncrementLock()
	defer c.effects.DecrementLock()

	n := 0
	for _, se := range saved {
		def, ok := c.catalog.Definition(se.Definition)
		if !ok {
			slog.Warn("unknown saved effect", "owner", c.id, "effect", se.Definition)
			continue
		}
		if se.Remaining == 0 {
			continue
		}

		var ctx effect.Context
		switch se.Instigator {
		case "":
		case c.id:
			ctx.Instigator = c
		default:
			ctx.Instigator = remotePeer(se.Instigator)
		}
		spec := effect.NewSpec(def, se.Level, ctx, tag.NewContainer(se.SourceTags...))
		for name, v := range se.SetByCaller {
			spec.SetSetByCallerMagnitude(name, v)
		}
		spec.StackCount = max(se.StackCount, 1)
		spec.SetDuration(se.Remaining, true)

		if ae, _ := c.effects.ApplySpec(spec, nil); ae != nil {
			n++
		}
	}
	return n
}
