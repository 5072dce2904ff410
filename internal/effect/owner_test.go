package effect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/abilitysystem/internal/aggregator"
	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/cue"
	"github.com/udisondev/abilitysystem/internal/prediction"
	"github.com/udisondev/abilitysystem/internal/tag"
	"github.com/udisondev/abilitysystem/internal/timer"
)

var (
	attrHealth   = attribute.New("Vitals", "Health")
	attrArmor    = attribute.New("Vitals", "Armor")
	attrStrength = attribute.New("Stats", "Strength")
	attrDamage   = attribute.New("Stats", "Damage")
)

// fakeOwner is a minimal Owner: owned tags are a count map wired back into
// the container, applications go straight to the container.
type fakeOwner struct {
	id        string
	authority bool
	tags      *tag.CountContainer
	preds     *prediction.Delegates
	cues      *cue.Recorder
	granted   map[Handle][]GrantedAbility
	timers    *timer.Manager
	c         *Container
}

func newFakeOwner(t *testing.T, authority bool) *fakeOwner {
	t.Helper()

	sets := attribute.NewSets()
	require.NoError(t, sets.Add(attribute.NewSet(attribute.Schema{
		ID: "Vitals",
		Fields: []attribute.FieldDef{
			{Name: "Health", Default: 100},
			{Name: "Armor", Default: 50},
		},
	})))
	require.NoError(t, sets.Add(attribute.NewSet(attribute.Schema{
		ID: "Stats",
		Fields: []attribute.FieldDef{
			{Name: "Strength", Default: 10},
			{Name: "Damage", Default: 0},
		},
	})))

	o := &fakeOwner{
		id:        "hero",
		authority: authority,
		tags:      tag.NewCountContainer(),
		preds:     prediction.NewDelegates(),
		cues:      &cue.Recorder{},
		granted:   make(map[Handle][]GrantedAbility),
		timers:    timer.NewManager(),
	}
	o.c = NewContainer(o, sets, o.timers)
	o.tags.RegisterGenericEvent(func(t tag.Tag, n int) { o.c.OnOwnerTagChange(t, n) })
	return o
}

func (o *fakeOwner) ID() string               { return o.id }
func (o *fakeOwner) OwnedTags() tag.Container { return o.tags.Explicit() }
func (o *fakeOwner) IsAuthority() bool        { return o.authority }

func (o *fakeOwner) NumericAttribute(attr attribute.Attribute) (float64, bool) {
	return o.c.NumericAttribute(attr)
}

func (o *fakeOwner) OnGameplayEffectAppliedToTarget(Target, *Spec, Handle) {}

func (o *fakeOwner) UpdateTagCounts(tags tag.Container, delta int) {
	o.tags.UpdateContainer(tags, delta)
}

func (o *fakeOwner) ApplyGameplayEffectSpecToSelf(spec *Spec, key prediction.Key) Handle {
	if spec.IsInstant() {
		o.c.ExecuteActiveEffectsFrom(spec, key)
		return HandleNone
	}
	ae, _ := o.c.ApplySpec(spec, &key)
	if ae == nil {
		return HandleInvalid
	}
	return ae.Handle
}

func (o *fakeOwner) InvokeCue(cueTag tag.Tag, event cue.Event, params cue.Params) {
	o.cues.InvokeCue(o.id, cueTag, event, params)
}

func (o *fakeOwner) Predictions() *prediction.Delegates { return o.preds }

func (o *fakeOwner) GrantAbilities(h Handle, abilities []GrantedAbility) {
	o.granted[h] = abilities
}

func (o *fakeOwner) RemoveAbilities(h Handle, _ []GrantedAbility) {
	delete(o.granted, h)
}

func (o *fakeOwner) value(t *testing.T, attr attribute.Attribute) float64 {
	t.Helper()
	v, ok := o.c.NumericAttribute(attr)
	require.True(t, ok, "attribute %s", attr)
	return v
}

func (o *fakeOwner) base(t *testing.T, attr attribute.Attribute) float64 {
	t.Helper()
	v, ok := o.c.AttributeBase(attr)
	require.True(t, ok, "attribute %s", attr)
	return v
}

func (o *fakeOwner) apply(t *testing.T, def *Definition) *ActiveEffect {
	t.Helper()
	ae, _ := o.c.ApplySpec(NewSpec(def, 1, Context{Instigator: o}, o.OwnedTags()), nil)
	require.NotNil(t, ae)
	return ae
}

func modifier(attr attribute.Attribute, op aggregator.ModOp, magnitude float64) ModifierInfo {
	return ModifierInfo{Attribute: attr, Op: op, Magnitude: ScalarMagnitude(magnitude)}
}

func infinite(name string, mods ...ModifierInfo) *Definition {
	return &Definition{Name: name, DurationPolicy: Infinite, Modifiers: mods}
}
