package abilitysystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/abilitysystem/internal/aggregator"
	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/cue"
	"github.com/udisondev/abilitysystem/internal/effect"
	"github.com/udisondev/abilitysystem/internal/prediction"
	"github.com/udisondev/abilitysystem/internal/tag"
	"github.com/udisondev/abilitysystem/internal/timer"
)

var (
	attrHealth = attribute.New("Vitals", "Health")
	attrArmor  = attribute.New("Vitals", "Armor")
)

const (
	tagStunned  tag.Tag = "State.Stunned"
	tagPoison   tag.Tag = "Effect.Poison"
	tagCleanse  tag.Tag = "Effect.Cleanse"
	tagCueHit   tag.Tag = "Cue.Hit"
	tagCueShine tag.Tag = "Cue.Shine"
)

type catalog map[string]*effect.Definition

func (c catalog) Definition(name string) (*effect.Definition, bool) {
	def, ok := c[name]
	return def, ok
}

type fixedRand float64

func (r fixedRand) Float64() float64 { return float64(r) }

type multicastCall struct {
	target string
	tags   tag.Container
	params cue.Params
}

type recordingMulticaster struct {
	calls []multicastCall
}

func (m *recordingMulticaster) InvokeAddedAndWhileActive(target string, cueTags tag.Container, params cue.Params) {
	m.calls = append(m.calls, multicastCall{target: target, tags: cueTags, params: params})
}

type harness struct {
	c         *Component
	timers    *timer.Manager
	cues      *cue.Recorder
	multicast *recordingMulticaster
}

func newHarness(t *testing.T, id string, authority bool, defs catalog) *harness {
	t.Helper()

	sets := attribute.NewSets()
	require.NoError(t, sets.Add(attribute.NewSet(attribute.Schema{
		ID: "Vitals",
		Fields: []attribute.FieldDef{
			{Name: "Health", Default: 100},
			{Name: "Armor", Default: 10},
		},
	})))

	h := &harness{
		timers:    timer.NewManager(),
		cues:      &cue.Recorder{},
		multicast: &recordingMulticaster{},
	}
	h.c = New(Config{
		ID:         id,
		Authority:  authority,
		Attributes: sets,
		Timers:     h.timers,
		Cues:       h.cues,
		Multicast:  h.multicast,
		Random:     fixedRand(0.5),
		Catalog:    defs,
	})
	return h
}

func (h *harness) value(t *testing.T, attr attribute.Attribute) float64 {
	t.Helper()
	v, ok := h.c.NumericAttribute(attr)
	require.True(t, ok)
	return v
}

func mod(attr attribute.Attribute, op aggregator.ModOp, magnitude float64) effect.ModifierInfo {
	return effect.ModifierInfo{Attribute: attr, Op: op, Magnitude: effect.ScalarMagnitude(magnitude)}
}

func damage(amount float64) *effect.Definition {
	return &effect.Definition{
		Name:      "Damage",
		Modifiers: []effect.ModifierInfo{mod(attrHealth, aggregator.OpAdditive, -amount)},
		Cues:      []effect.CueInfo{{Tags: tag.NewContainer(tagCueHit)}},
	}
}

func armorBuff() *effect.Definition {
	return &effect.Definition{
		Name:           "ArmorBuff",
		DurationPolicy: effect.Infinite,
		Modifiers:      []effect.ModifierInfo{mod(attrArmor, aggregator.OpAdditive, 5)},
		Cues:           []effect.CueInfo{{Tags: tag.NewContainer(tagCueShine)}},
	}
}

func TestApply_NonAuthorityWithoutKeyIsRejected(t *testing.T) {
	h := newHarness(t, "client", false, nil)

	got := h.c.ApplyGameplayEffectToSelf(armorBuff(), 1, prediction.Key{})

	assert.Equal(t, effect.HandleInvalid, got)
	assert.Zero(t, h.c.Effects().Len())
	assert.Equal(t, 10.0, h.value(t, attrArmor))
	assert.Empty(t, h.cues.Calls())
}

func TestApply_InstantExecutesOnBase(t *testing.T) {
	h := newHarness(t, "hero", true, nil)

	got := h.c.ApplyGameplayEffectToSelf(damage(30), 1, prediction.Key{})

	assert.Equal(t, effect.HandleNone, got)
	assert.True(t, effect.WasApplied(got))
	base, _ := h.c.NumericAttributeBase(attrHealth)
	assert.Equal(t, 70.0, base)
	assert.Equal(t, 70.0, h.value(t, attrHealth))
	assert.Zero(t, h.c.Effects().Len())
	assert.Equal(t, 1, h.cues.Count(tagCueHit, cue.Executed))
}

func TestApply_InstantWithOngoingRequirementsIsSkipped(t *testing.T) {
	h := newHarness(t, "hero", true, nil)
	def := damage(30)
	def.OngoingTagRequirements = tag.Requirements{Require: tag.NewContainer(tagStunned)}

	got := h.c.ApplyGameplayEffectToSelf(def, 1, prediction.Key{})

	assert.Equal(t, effect.HandleNone, got)
	assert.Equal(t, 100.0, h.value(t, attrHealth))
}

func TestApply_Chance(t *testing.T) {
	tests := []struct {
		name    string
		chance  float64
		applied bool
	}{
		{"below roll", 0.3, false},
		{"above roll", 0.7, true},
		{"certain", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "hero", true, nil)
			def := armorBuff()
			def.ChanceToApply = tt.chance

			got := h.c.ApplyGameplayEffectToSelf(def, 1, prediction.Key{})

			assert.Equal(t, tt.applied, effect.IsValidHandle(got))
		})
	}
}

func TestApply_InvalidModifierAttributeIsRejected(t *testing.T) {
	h := newHarness(t, "hero", true, nil)
	def := armorBuff()
	def.Modifiers = append(def.Modifiers, effect.ModifierInfo{Op: aggregator.OpAdditive, Magnitude: effect.ScalarMagnitude(1)})

	got := h.c.ApplyGameplayEffectToSelf(def, 1, prediction.Key{})

	assert.Equal(t, effect.HandleInvalid, got)
	assert.Equal(t, 10.0, h.value(t, attrArmor))
}

type denyAll struct{}

func (denyAll) CanApply(*effect.Spec, effect.Target) bool { return false }

func TestApply_Requirements(t *testing.T) {
	h := newHarness(t, "hero", true, nil)

	gated := armorBuff()
	gated.ApplicationTagRequirements = tag.Requirements{Ignore: tag.NewContainer(tagStunned)}
	h.c.AddLooseGameplayTag(tagStunned, 1)
	assert.Equal(t, effect.HandleInvalid, h.c.ApplyGameplayEffectToSelf(gated, 1, prediction.Key{}))

	h.c.RemoveLooseGameplayTag(tagStunned, 1)
	assert.True(t, effect.IsValidHandle(h.c.ApplyGameplayEffectToSelf(gated, 1, prediction.Key{})))

	custom := armorBuff()
	custom.ApplicationRequirements = []effect.ApplicationRequirement{denyAll{}}
	assert.Equal(t, effect.HandleInvalid, h.c.ApplyGameplayEffectToSelf(custom, 1, prediction.Key{}))
}

func TestApply_ImmunityBlocksAndNotifies(t *testing.T) {
	h := newHarness(t, "hero", true, nil)

	immunity := &effect.Definition{
		Name:                           "PoisonImmunity",
		DurationPolicy:                 effect.Infinite,
		GrantedApplicationImmunityTags: tag.Requirements{Require: tag.NewContainer(tagPoison)},
	}
	immuneHandle := h.c.ApplyGameplayEffectToSelf(immunity, 1, prediction.Key{})
	require.True(t, effect.IsValidHandle(immuneHandle))

	var blockedBy effect.Handle
	h.c.OnImmunityBlockGameplayEffect(func(_ *effect.Spec, ae *effect.ActiveEffect) {
		blockedBy = ae.Handle
	})

	poison := damage(5)
	poison.AssetTags = tag.NewContainer(tagPoison)
	got := h.c.ApplyGameplayEffectToSelf(poison, 1, prediction.Key{})

	assert.Equal(t, effect.HandleInvalid, got)
	assert.Equal(t, immuneHandle, blockedBy)
	assert.Equal(t, 100.0, h.value(t, attrHealth))
}

func TestApply_CuesOnNewEntryAndStack(t *testing.T) {
	h := newHarness(t, "hero", true, nil)
	def := armorBuff()
	def.StackingType = effect.AggregateByTarget
	def.StackLimitCount = 3

	first := h.c.ApplyGameplayEffectToSelf(def, 1, prediction.Key{})
	require.True(t, effect.IsValidHandle(first))
	assert.Equal(t, []cue.Event{cue.OnActive, cue.WhileActive}, h.cues.Events(tagCueShine))
	assert.Empty(t, h.multicast.calls)

	second := h.c.ApplyGameplayEffectToSelf(def, 1, prediction.Key{})
	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), h.c.CurrentStackCount(first))
	require.Len(t, h.multicast.calls, 1)
	assert.Equal(t, "hero", h.multicast.calls[0].target)
	assert.Equal(t, int32(2), h.multicast.calls[0].params.StackCount)
	assert.True(t, h.multicast.calls[0].tags.HasTagExact(tagCueShine))
	assert.Len(t, h.cues.Events(tagCueShine), 2, "stacking goes through the multicaster only")

	def.SuppressStackingCues = true
	h.c.ApplyGameplayEffectToSelf(def, 1, prediction.Key{})
	assert.Len(t, h.multicast.calls, 1)
	assert.Equal(t, int32(3), h.c.CurrentStackCount(first))
}

func TestApply_RemoveEffectsWithTagsKeepsNewEntry(t *testing.T) {
	h := newHarness(t, "hero", true, nil)

	poison := armorBuff()
	poison.Name = "Poison"
	poison.AssetTags = tag.NewContainer(tagPoison)
	poisonHandle := h.c.ApplyGameplayEffectToSelf(poison, 1, prediction.Key{})
	require.True(t, effect.IsValidHandle(poisonHandle))

	cleanse := armorBuff()
	cleanse.Name = "Cleanse"
	cleanse.AssetTags = tag.NewContainer(tagCleanse, tagPoison)
	cleanse.RemoveEffectsWithTags = tag.NewContainer(tagPoison)
	cleanseHandle := h.c.ApplyGameplayEffectToSelf(cleanse, 1, prediction.Key{})

	assert.Nil(t, h.c.ActiveEffect(poisonHandle))
	assert.NotNil(t, h.c.ActiveEffect(cleanseHandle))
}

func TestApply_TargetEffectSpecsAndDelegates(t *testing.T) {
	source := newHarness(t, "mage", true, nil)
	target := newHarness(t, "orc", true, nil)

	var toSelf, toOther []string
	target.c.OnGameplayEffectAppliedToSelf(func(_ effect.Target, spec *effect.Spec, _ effect.Handle) {
		toSelf = append(toSelf, spec.Name())
	})
	source.c.OnGameplayEffectAppliedToOther(func(tg effect.Target, spec *effect.Spec, _ effect.Handle) {
		toOther = append(toOther, tg.ID()+":"+spec.Name())
	})

	spec := source.c.MakeOutgoingSpec(armorBuff(), 1, effect.Context{})
	spec.TargetEffectSpecs = []*effect.Spec{source.c.MakeOutgoingSpec(damage(20), 1, effect.Context{})}

	h := source.c.ApplyGameplayEffectSpecToTarget(spec, target.c, prediction.Key{})

	require.True(t, effect.IsValidHandle(h))
	assert.Equal(t, 15.0, target.value(t, attrArmor))
	assert.Equal(t, 80.0, target.value(t, attrHealth))
	assert.Equal(t, []string{"Damage", "ArmorBuff"}, toSelf)
	assert.Equal(t, []string{"orc:Damage", "orc:ArmorBuff"}, toOther)
	assert.Zero(t, source.c.Effects().Len())
}

func TestApply_PeriodicPrediction(t *testing.T) {
	periodic := &effect.Definition{
		Name:           "Regen",
		DurationPolicy: effect.Infinite,
		Period:         1,
		Modifiers:      []effect.ModifierInfo{mod(attrHealth, aggregator.OpAdditive, 1)},
	}

	client := newHarness(t, "client", false, nil)
	key := client.c.NewPredictionKey()
	assert.Equal(t, effect.HandleInvalid, client.c.ApplyGameplayEffectToSelf(periodic, 1, key))

	server := newHarness(t, "server", true, nil)
	h := server.c.ApplyGameplayEffectToSelf(periodic, 1, key.AsReceived())
	require.True(t, effect.IsValidHandle(h))
	assert.False(t, server.c.ActiveEffect(h).PredictionKey.IsValid())
}

func TestApply_PredictedInstantIsTemporary(t *testing.T) {
	h := newHarness(t, "client", false, nil)
	key := h.c.NewPredictionKey()

	got := h.c.ApplyGameplayEffectToSelf(damage(25), 1, key)

	require.True(t, effect.IsValidHandle(got))
	ae := h.c.ActiveEffect(got)
	require.NotNil(t, ae)
	assert.Equal(t, effect.DurationInfinite, ae.Spec.Duration)
	assert.Equal(t, 75.0, h.value(t, attrHealth))
	base, _ := h.c.NumericAttributeBase(attrHealth)
	assert.Equal(t, 100.0, base)
	assert.Equal(t, 1, h.cues.Count(tagCueHit, cue.Executed))
	assert.Zero(t, h.cues.Count(tagCueHit, cue.OnActive))

	h.c.CatchUpTo(key)

	assert.Nil(t, h.c.ActiveEffect(got))
	assert.Equal(t, 100.0, h.value(t, attrHealth))
}

func TestApply_TargetEffectsAreNotPredicted(t *testing.T) {
	client := newHarness(t, "client", false, nil)
	other := newHarness(t, "other", false, nil)
	key := client.c.NewPredictionKey()

	got := client.c.ApplyGameplayEffectToTarget(armorBuff(), other.c, 1, key)

	assert.Equal(t, effect.HandleInvalid, got)
	assert.Zero(t, other.c.Effects().Len())
}

func TestLooseTagsInhibitEffects(t *testing.T) {
	h := newHarness(t, "hero", true, nil)
	def := armorBuff()
	def.OngoingTagRequirements = tag.Requirements{Ignore: tag.NewContainer(tagStunned)}

	handle := h.c.ApplyGameplayEffectToSelf(def, 1, prediction.Key{})
	require.True(t, effect.IsValidHandle(handle))
	assert.Equal(t, 15.0, h.value(t, attrArmor))

	var seen []int
	h.c.RegisterGameplayTagEvent(tagStunned, tag.NewOrRemoved, func(_ tag.Tag, n int) {
		seen = append(seen, n)
	})

	h.c.AddLooseGameplayTag(tagStunned, 2)
	assert.Equal(t, 10.0, h.value(t, attrArmor))
	assert.True(t, h.c.ActiveEffect(handle).IsInhibited)
	assert.True(t, h.c.HasMatchingGameplayTag("State"))

	h.c.RemoveLooseGameplayTag(tagStunned, 1)
	assert.Equal(t, 10.0, h.value(t, attrArmor))

	h.c.RemoveLooseGameplayTag(tagStunned, 1)
	assert.Equal(t, 15.0, h.value(t, attrArmor))
	assert.Equal(t, handle, h.c.ActiveEffect(handle).Handle)
	assert.Equal(t, []int{2, 0}, seen)
}

func TestGrantedAbilities(t *testing.T) {
	h := newHarness(t, "hero", true, nil)
	def := armorBuff()
	def.GrantedAbilities = []effect.GrantedAbility{{Name: "Fireball", Level: 2}}

	handle := h.c.ApplyGameplayEffectToSelf(def, 1, prediction.Key{})
	assert.Equal(t, []effect.GrantedAbility{{Name: "Fireball", Level: 2}}, h.c.GrantedAbilities())

	h.c.RemoveActiveGameplayEffect(handle, -1)
	assert.Empty(t, h.c.GrantedAbilities())
}

func TestRemoveBySourceEffect(t *testing.T) {
	target := newHarness(t, "orc", true, nil)
	a := newHarness(t, "a", true, nil)
	b := newHarness(t, "b", true, nil)
	def := armorBuff()

	a.c.ApplyGameplayEffectToTarget(def, target.c, 1, prediction.Key{})
	b.c.ApplyGameplayEffectToTarget(def, target.c, 1, prediction.Key{})
	require.Equal(t, 2, target.c.GameplayEffectCount(def, nil, false))

	removed := target.c.RemoveActiveGameplayEffectBySourceEffect(def, a.c, -1)

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, target.c.GameplayEffectCount(def, b.c, false))
	assert.Zero(t, target.c.GameplayEffectCount(def, a.c, false))
	assert.Equal(t, 15.0, target.value(t, attrArmor))
}
