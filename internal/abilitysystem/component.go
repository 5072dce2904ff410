// Package abilitysystem implements the per-entity orchestrator that applies
// gameplay effects: authority and prediction checks, immunity, chance, tag
// gating, cue dispatch and replication intake around an effect.Container.
package abilitysystem

import (
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/cue"
	"github.com/udisondev/abilitysystem/internal/effect"
	"github.com/udisondev/abilitysystem/internal/prediction"
	"github.com/udisondev/abilitysystem/internal/tag"
	"github.com/udisondev/abilitysystem/internal/timer"
)

// RandomSource draws uniform numbers in [0,1) for chance-to-apply rolls.
type RandomSource interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// DefinitionSource resolves definitions by name for replicated and restored
// effects.
type DefinitionSource interface {
	Definition(name string) (*effect.Definition, bool)
}

// AppliedFunc observes a successful application.
type AppliedFunc func(target effect.Target, spec *effect.Spec, h effect.Handle)

// ImmunityFunc observes an application blocked by immunity.
type ImmunityFunc func(blocked *effect.Spec, immunity *effect.ActiveEffect)

// Config configures a Component. Only ID and Attributes are required.
type Config struct {
	ID        string
	Authority bool

	Attributes *attribute.Sets
	Timers     timer.Service

	Cues      cue.Dispatcher
	Multicast cue.Multicaster
	Random    RandomSource
	Catalog   DefinitionSource
	Metrics   Metrics

	// PredictTargetEffects keeps the prediction key when applying to
	// another component. Off by default: only self effects are predicted.
	PredictTargetEffects bool
}

// Component is the ability system of one entity.
//
// Not safe for concurrent use: every call, including timer callbacks, must
// happen on the goroutine that drives the timer service.
type Component struct {
	id        string
	authority bool

	tags    *tag.CountContainer
	effects *effect.Container
	timers  timer.Service

	cues         cue.Dispatcher
	multicast    cue.Multicaster
	suppressCues bool

	rand                 RandomSource
	keys                 *prediction.Generator
	preds                *prediction.Delegates
	catalog              DefinitionSource
	metrics              Metrics
	predictTargetEffects bool

	granted map[effect.Handle][]effect.GrantedAbility
	// remote maps authority handles to local mirrors.
	remote map[effect.Handle]effect.Handle

	onAppliedToSelf   []AppliedFunc
	onAppliedToTarget []AppliedFunc
	onImmunityBlock   []ImmunityFunc
}

// New creates a component and its effect container.
func New(cfg Config) *Component {
	c := &Component{
		id:                   cfg.ID,
		authority:            cfg.Authority,
		tags:                 tag.NewCountContainer(),
		timers:               cfg.Timers,
		cues:                 cfg.Cues,
		multicast:            cfg.Multicast,
		rand:                 cfg.Random,
		keys:                 prediction.NewGenerator(cfg.Authority),
		preds:                prediction.NewDelegates(),
		catalog:              cfg.Catalog,
		metrics:              cfg.Metrics,
		predictTargetEffects: cfg.PredictTargetEffects,
		granted:              make(map[effect.Handle][]effect.GrantedAbility),
		remote:               make(map[effect.Handle]effect.Handle),
	}
	if c.timers == nil {
		c.timers = timer.NewManager()
	}
	if c.cues == nil {
		c.cues = cue.LogDispatcher{}
	}
	if c.multicast == nil {
		c.multicast = cue.LocalMulticaster{Dispatcher: c.cues}
	}
	if c.rand == nil {
		c.rand = globalRand{}
	}
	if c.metrics == nil {
		c.metrics = nopMetrics{}
	}
	attrs := cfg.Attributes
	if attrs == nil {
		attrs = attribute.NewSets()
	}

	c.effects = effect.NewContainer(c, attrs, c.timers)
	c.tags.RegisterGenericEvent(func(t tag.Tag, count int) {
		c.effects.OnOwnerTagChange(t, count)
	})
	c.effects.OnAnyEffectRemoved(func(info effect.RemovalInfo) {
		c.metrics.EffectRemoved(info.Effect.Spec.Name(), info.Premature)
	})
	c.effects.OnPeriodicEffectExecuted(func(ae *effect.ActiveEffect) {
		c.metrics.PeriodicExecuted(ae.Spec.Name())
	})
	return c
}

// ID returns the entity ID.
func (c *Component) ID() string {
	return c.id
}

// IsAuthority reports whether this component owns the authoritative state.
func (c *Component) IsAuthority() bool {
	return c.authority
}

// Effects returns the effect container.
func (c *Component) Effects() *effect.Container {
	return c.effects
}

// Timers returns the timer service driving this component.
func (c *Component) Timers() timer.Service {
	return c.timers
}

// OwnedTags returns the explicit tags currently owned.
func (c *Component) OwnedTags() tag.Container {
	return c.tags.Explicit()
}

// UpdateTagCounts adds delta to the count of every tag in tags.
func (c *Component) UpdateTagCounts(tags tag.Container, delta int) {
	c.tags.UpdateContainer(tags, delta)
}

// SetSuppressCues disables cue dispatch, e.g. while restoring a snapshot.
func (c *Component) SetSuppressCues(suppress bool) {
	c.suppressCues = suppress
}

// InvokeCue forwards one cue event to the dispatcher.
func (c *Component) InvokeCue(cueTag tag.Tag, event cue.Event, params cue.Params) {
	if c.suppressCues {
		return
	}
	c.cues.InvokeCue(c.id, cueTag, event, params)
}

// Predictions returns the caught-up and rejection delegates of this
// component.
func (c *Component) Predictions() *prediction.Delegates {
	return c.preds
}

// NewPredictionKey generates a key for a locally predicted action.
func (c *Component) NewPredictionKey() prediction.Key {
	return c.keys.NewKey()
}

// CatchUpTo acknowledges every prediction up to and including key.
func (c *Component) CatchUpTo(key prediction.Key) {
	c.preds.CatchUpTo(key)
}

// RejectPrediction reverts everything predicted under key.
func (c *Component) RejectPrediction(key prediction.Key) {
	c.preds.Reject(key)
}

// GrantAbilities records the abilities granted by h.
func (c *Component) GrantAbilities(h effect.Handle, abilities []effect.GrantedAbility) {
	c.granted[h] = slices.Clone(abilities)
	slog.Debug("abilities granted", "owner", c.id, "handle", h, "count", len(abilities))
}

// RemoveAbilities drops the abilities granted by h.
func (c *Component) RemoveAbilities(h effect.Handle, _ []effect.GrantedAbility) {
	if _, ok := c.granted[h]; !ok {
		return
	}
	delete(c.granted, h)
	slog.Debug("abilities removed", "owner", c.id, "handle", h)
}

// GrantedAbilities returns every ability currently granted by effects,
// ordered by granting handle.
func (c *Component) GrantedAbilities() []effect.GrantedAbility {
	handles := make([]effect.Handle, 0, len(c.granted))
	for h := range c.granted {
		handles = append(handles, h)
	}
	slices.Sort(handles)

	var out []effect.GrantedAbility
	for _, h := range handles {
		out = append(out, c.granted[h]...)
	}
	return out
}

// OnGameplayEffectAppliedToSelf registers fn for effects landing on this
// component.
func (c *Component) OnGameplayEffectAppliedToSelf(fn AppliedFunc) {
	c.onAppliedToSelf = append(c.onAppliedToSelf, fn)
}

// OnGameplayEffectAppliedToOther registers fn for effects this component
// instigated landing on any target.
func (c *Component) OnGameplayEffectAppliedToOther(fn AppliedFunc) {
	c.onAppliedToTarget = append(c.onAppliedToTarget, fn)
}

// OnImmunityBlockGameplayEffect registers fn for applications refused by
// immunity.
func (c *Component) OnImmunityBlockGameplayEffect(fn ImmunityFunc) {
	c.onImmunityBlock = append(c.onImmunityBlock, fn)
}

// OnGameplayEffectAppliedToTarget is called by a target when a spec this
// component instigated was applied to it.
func (c *Component) OnGameplayEffectAppliedToTarget(target effect.Target, spec *effect.Spec, h effect.Handle) {
	for _, fn := range slices.Clone(c.onAppliedToTarget) {
		fn(target, spec, h)
	}
}
