package abilitysystem

import (
	"log/slog"

	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/cue"
	"github.com/udisondev/abilitysystem/internal/effect"
	"github.com/udisondev/abilitysystem/internal/prediction"
	"github.com/udisondev/abilitysystem/internal/tag"
)

// ReplicatedEffect is one active effect as the authority sends it to peers.
type ReplicatedEffect struct {
	// Handle is the authority's handle; peers map it to a local one.
	Handle        effect.Handle          `json:"handle"`
	Definition    string                 `json:"definition"`
	PredictionKey prediction.Key         `json:"prediction_key"`
	Instigator    string                 `json:"instigator,omitempty"`
	SourceTags    []tag.Tag              `json:"source_tags,omitempty"`
	SetByCaller   map[string]float64     `json:"set_by_caller,omitempty"`
	State         effect.ReplicatedState `json:"state"`
}

// remotePeer stands in for an instigator that lives on another peer.
type remotePeer string

func (p remotePeer) ID() string { return string(p) }

func (remotePeer) OwnedTags() tag.Container { return tag.Container{} }

func (remotePeer) NumericAttribute(attribute.Attribute) (float64, bool) { return 0, false }

func (remotePeer) OnGameplayEffectAppliedToTarget(effect.Target, *effect.Spec, effect.Handle) {}

// Replicate builds the replicated form of ae.
func Replicate(ae *effect.ActiveEffect) ReplicatedEffect {
	return ReplicatedEffect{
		Handle:        ae.Handle,
		Definition:    ae.Spec.Name(),
		PredictionKey: ae.PredictionKey,
		Instigator:    ae.Spec.Context.InstigatorID(),
		SourceTags:    ae.Spec.CapturedSourceTags.Tags(),
		SetByCaller:   ae.Spec.SetByCallerMagnitudes(),
		State:         ae.ReplicatedState(),
	}
}

// ReplicatedEffects returns every live entry in replicated form, for peers
// joining late.
func (c *Component) ReplicatedEffects() []ReplicatedEffect {
	var out []ReplicatedEffect
	for _, h := range c.effects.AllActiveEffectHandles() {
		if ae := c.effects.ActiveEffect(h); ae != nil {
			out = append(out, Replicate(ae))
		}
	}
	return out
}

// ReceiveReplicatedEffect mirrors an entry sent by the authority, or
// updates the existing mirror. Returns the local handle.
func (c *Component) ReceiveReplicatedEffect(re ReplicatedEffect) effect.Handle {
	if c.authority {
		slog.Warn("authority received a replicated effect", "owner", c.id, "effect", re.Definition)
		return effect.HandleInvalid
	}
	if local, ok := c.remote[re.Handle]; ok {
		if c.effects.UpdateReplicated(local, re.State) {
			return local
		}
		delete(c.remote, re.Handle)
	}
	if c.catalog == nil {
		slog.Warn("no catalog to resolve replicated effect", "owner", c.id, "effect", re.Definition)
		return effect.HandleInvalid
	}
	def, ok := c.catalog.Definition(re.Definition)
	if !ok {
		slog.Warn("unknown replicated effect", "owner", c.id, "effect", re.Definition)
		return effect.HandleInvalid
	}

	var ctx effect.Context
	if re.Instigator != "" {
		ctx.Instigator = remotePeer(re.Instigator)
	}
	spec := effect.NewSpec(def, re.State.Level, ctx, tag.NewContainer(re.SourceTags...))
	for name, v := range re.SetByCaller {
		spec.SetSetByCallerMagnitude(name, v)
	}

	// A predicted copy already fired its activation cues.
	predicted := c.effects.HasPredictedEffectWithPredictedKey(re.PredictionKey)
	ae := c.effects.InsertReplicated(spec, re.PredictionKey, re.State)
	c.remote[re.Handle] = ae.Handle

	if !predicted && !ae.IsInhibited {
		c.effects.InvokeCues(ae.Spec, ae.PredictionKey, cue.OnActive)
		c.effects.InvokeCues(ae.Spec, ae.PredictionKey, cue.WhileActive)
	}
	return ae.Handle
}

// ReceiveReplicatedRemove drops the mirror of an authority handle.
func (c *Component) ReceiveReplicatedRemove(authorityHandle effect.Handle) bool {
	local, ok := c.remote[authorityHandle]
	if !ok {
		return false
	}
	delete(c.remote, authorityHandle)
	return c.effects.RemoveActiveEffect(local, -1)
}

// LocalHandle returns the mirror of an authority handle.
func (c *Component) LocalHandle(authorityHandle effect.Handle) (effect.Handle, bool) {
	h, ok := c.remote[authorityHandle]
	return h, ok
}
