package effect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/abilitysystem/internal/aggregator"
	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/cue"
	"github.com/udisondev/abilitysystem/internal/prediction"
	"github.com/udisondev/abilitysystem/internal/tag"
)

const (
	tagBuffed     tag.Tag = "Status.Buffed"
	tagStunned    tag.Tag = "Status.Stunned"
	tagFire       tag.Tag = "Element.Fire"
	tagCueBurn    tag.Tag = "Cue.Burn"
	tagEffectBuff tag.Tag = "Effect.Buff"
)

func TestContainer_AdditiveStackScalesMagnitude(t *testing.T) {
	o := newFakeOwner(t, true)
	def := infinite("Rage", modifier(attrHealth, aggregator.OpAdditive, 10))
	def.StackingType = AggregateByTarget
	def.StackLimitCount = 3

	first := o.apply(t, def)
	assert.Equal(t, 110.0, o.value(t, attrHealth))

	ae, found := o.c.ApplySpec(NewSpec(def, 1, Context{Instigator: o}, tag.Container{}), nil)
	require.NotNil(t, ae)
	assert.True(t, found)
	assert.Equal(t, first.Handle, ae.Handle)
	assert.Equal(t, int32(2), ae.StackCount())
	assert.Equal(t, 120.0, o.value(t, attrHealth))
	assert.Equal(t, 1, o.c.Aggregator(attrHealth).ModCount(), "stacks share one mod")
}

func TestContainer_StackCountIsClampedToLimit(t *testing.T) {
	def := infinite("Poison", modifier(attrHealth, aggregator.OpAdditive, -1))
	def.StackingType = AggregateBySource
	def.StackLimitCount = 3
	def.DenyOverflowApplication = true

	for n := 1; n <= 6; n++ {
		o := newFakeOwner(t, true)
		var h Handle
		for range n {
			ae, _ := o.c.ApplySpec(NewSpec(def, 1, Context{Instigator: o}, tag.Container{}), nil)
			if ae != nil {
				h = ae.Handle
			}
		}
		ae := o.c.ActiveEffect(h)
		require.NotNil(t, ae)
		assert.Equal(t, int32(min(n, 3)), ae.StackCount(), "n=%d", n)
		assert.Equal(t, 100.0-float64(min(n, 3)), o.value(t, attrHealth), "n=%d", n)
	}
}

func TestContainer_OverflowEffectsAndClearStack(t *testing.T) {
	o := newFakeOwner(t, true)
	burst := &Definition{
		Name:           "Burst",
		DurationPolicy: Instant,
		Modifiers:      []ModifierInfo{modifier(attrHealth, aggregator.OpAdditive, -30)},
	}
	def := infinite("Charge", modifier(attrArmor, aggregator.OpAdditive, 1))
	def.StackingType = AggregateByTarget
	def.StackLimitCount = 2
	def.DenyOverflowApplication = true
	def.ClearStackOnOverflow = true
	def.OverflowEffects = []*Definition{burst}

	o.apply(t, def)
	o.apply(t, def)
	ae, _ := o.c.ApplySpec(NewSpec(def, 1, Context{Instigator: o}, tag.Container{}), nil)

	assert.Nil(t, ae)
	assert.Equal(t, 70.0, o.base(t, attrHealth))
	assert.Equal(t, 0, o.c.Len())
	assert.Equal(t, 50.0, o.value(t, attrArmor))
}

func TestContainer_OverrideWinsRegardlessOfOrder(t *testing.T) {
	add := infinite("Bulwark", modifier(attrArmor, aggregator.OpAdditive, 1000))
	override := infinite("Shatter", modifier(attrArmor, aggregator.OpOverride, 7))

	orders := map[string][]*Definition{
		"additive first": {add, override},
		"override first": {override, add},
	}
	for name, defs := range orders {
		t.Run(name, func(t *testing.T) {
			o := newFakeOwner(t, true)
			for _, def := range defs {
				o.apply(t, def)
			}
			assert.Equal(t, 7.0, o.value(t, attrArmor))
		})
	}
}

func TestContainer_RemoveUnregistersModsAndIsIdempotent(t *testing.T) {
	o := newFakeOwner(t, true)
	def := infinite("Fortify",
		modifier(attrHealth, aggregator.OpMultiplicative, 1.5),
		modifier(attrArmor, aggregator.OpAdditive, 25),
	)
	ae := o.apply(t, def)
	require.Equal(t, 150.0, o.value(t, attrHealth))
	require.Equal(t, 75.0, o.value(t, attrArmor))

	var removed []RemovalInfo
	o.c.OnAnyEffectRemoved(func(info RemovalInfo) { removed = append(removed, info) })

	assert.True(t, o.c.RemoveActiveEffect(ae.Handle, -1))
	assert.Equal(t, 100.0, o.value(t, attrHealth))
	assert.Equal(t, 50.0, o.value(t, attrArmor))
	assert.Zero(t, o.c.Aggregator(attrHealth).ModCount())
	assert.Nil(t, o.c.ActiveEffect(ae.Handle))

	assert.False(t, o.c.RemoveActiveEffect(ae.Handle, -1))
	assert.False(t, o.c.RemoveActiveEffect(HandleInvalid, -1))
	require.Len(t, removed, 1)
	assert.True(t, removed[0].Premature)
}

func TestContainer_PartialStackRemoval(t *testing.T) {
	o := newFakeOwner(t, true)
	def := infinite("Rage", modifier(attrHealth, aggregator.OpAdditive, 10))
	def.StackingType = AggregateByTarget
	def.StackLimitCount = 5

	ae := o.apply(t, def)
	o.apply(t, def)
	o.apply(t, def)
	require.Equal(t, 130.0, o.value(t, attrHealth))

	var changes [][2]int32
	ae.OnStackChange(func(_ Handle, newCount, oldCount int32) {
		changes = append(changes, [2]int32{newCount, oldCount})
	})

	assert.True(t, o.c.RemoveActiveEffect(ae.Handle, 2))
	assert.Equal(t, int32(1), ae.StackCount())
	assert.Equal(t, 110.0, o.value(t, attrHealth))
	assert.Equal(t, [][2]int32{{1, 3}}, changes)

	assert.True(t, o.c.RemoveActiveEffect(ae.Handle, 1))
	assert.Equal(t, 100.0, o.value(t, attrHealth))
	assert.Zero(t, o.c.Len())
}

func TestContainer_PeriodicExecutionCount(t *testing.T) {
	tests := []struct {
		name          string
		onApplication bool
		want          int
	}{
		{name: "period only", onApplication: false, want: 4},
		{name: "execute on application", onApplication: true, want: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newFakeOwner(t, true)
			def := &Definition{
				Name:                               "Bleed",
				DurationPolicy:                     HasDuration,
				DurationMagnitude:                  ScalarMagnitude(5),
				Period:                             1,
				ExecutePeriodicEffectOnApplication: tt.onApplication,
				Modifiers:                          []ModifierInfo{modifier(attrHealth, aggregator.OpAdditive, -1)},
			}

			var at []float64
			o.c.OnPeriodicEffectExecuted(func(*ActiveEffect) { at = append(at, o.timers.Now()) })
			o.apply(t, def)

			for range 16 {
				o.timers.Advance(0.5)
			}

			assert.Len(t, at, tt.want, "executions at %v", at)
			assert.Equal(t, 100.0-float64(tt.want), o.base(t, attrHealth))
			assert.Zero(t, o.c.Len())
			assert.Zero(t, o.timers.Pending())
		})
	}
}

func TestContainer_PeriodicEffectRegistersNoMods(t *testing.T) {
	o := newFakeOwner(t, true)
	def := &Definition{
		Name:           "Regen",
		DurationPolicy: Infinite,
		Period:         2,
		Modifiers:      []ModifierInfo{modifier(attrHealth, aggregator.OpAdditive, 5)},
	}
	o.apply(t, def)
	assert.Zero(t, o.c.Aggregator(attrHealth).ModCount())

	o.timers.Advance(4)
	assert.Equal(t, 110.0, o.base(t, attrHealth))
	assert.Equal(t, 110.0, o.value(t, attrHealth))
}

func TestContainer_TagGatedInhibitionKeepsHandle(t *testing.T) {
	o := newFakeOwner(t, true)
	def := infinite("Frenzy", modifier(attrHealth, aggregator.OpAdditive, 10))
	def.OngoingTagRequirements = tag.Requirements{Require: tag.NewContainer(tagBuffed)}
	def.GrantedTags = tag.NewContainer(tagEffectBuff)
	def.Cues = []CueInfo{{Tags: tag.NewContainer(tagCueBurn)}}

	ae := o.apply(t, def)
	h := ae.Handle
	assert.True(t, ae.IsInhibited)
	assert.Equal(t, 100.0, o.value(t, attrHealth))
	assert.Equal(t, 1, o.c.Aggregator(attrHealth).ModCount(), "inhibited mods stay registered")
	assert.False(t, o.tags.HasTag(tagEffectBuff))

	o.tags.UpdateCount(tagBuffed, 1)
	require.NotNil(t, o.c.ActiveEffect(h))
	assert.False(t, o.c.ActiveEffect(h).IsInhibited)
	assert.Equal(t, 110.0, o.value(t, attrHealth))
	assert.True(t, o.tags.HasTag(tagEffectBuff))
	assert.Equal(t, 1, o.cues.Count(tagCueBurn, cue.OnActive))
	assert.True(t, o.c.IsCueActive(tagCueBurn))

	o.tags.UpdateCount(tagBuffed, -1)
	assert.True(t, o.c.ActiveEffect(h).IsInhibited)
	assert.Equal(t, 100.0, o.value(t, attrHealth))
	assert.Equal(t, 1, o.cues.Count(tagCueBurn, cue.Removed))
	assert.Equal(t, 1, o.c.Len())
}

func TestContainer_RemovalTagRequirements(t *testing.T) {
	o := newFakeOwner(t, true)
	def := infinite("Focus", modifier(attrArmor, aggregator.OpAdditive, 5))
	def.RemovalTagRequirements = tag.Requirements{Require: tag.NewContainer(tagStunned)}
	o.apply(t, def)

	o.tags.UpdateCount(tagStunned, 1)
	assert.Zero(t, o.c.Len())
	assert.Equal(t, 50.0, o.value(t, attrArmor))
}

func TestContainer_TargetTagRequirementsFollowOwnerTags(t *testing.T) {
	o := newFakeOwner(t, true)
	mod := modifier(attrArmor, aggregator.OpAdditive, 20)
	mod.TargetTags = tag.Requirements{Require: tag.NewContainer(tagBuffed)}
	o.apply(t, infinite("Stance", mod))
	assert.Equal(t, 50.0, o.value(t, attrArmor))

	o.tags.UpdateCount(tagBuffed, 1)
	assert.Equal(t, 70.0, o.value(t, attrArmor))
}

func TestContainer_SourceTagRequirementsCheckedOnRegistration(t *testing.T) {
	o := newFakeOwner(t, true)
	mod := modifier(attrArmor, aggregator.OpAdditive, 20)
	mod.SourceTags = tag.Requirements{Require: tag.NewContainer(tagFire)}
	def := infinite("Ember", mod)

	o.c.ApplySpec(NewSpec(def, 1, Context{}, tag.Container{}), nil)
	assert.Equal(t, 50.0, o.value(t, attrArmor))

	o.c.ApplySpec(NewSpec(def, 1, Context{}, tag.NewContainer(tagFire)), nil)
	assert.Equal(t, 70.0, o.value(t, attrArmor))
}

func TestContainer_StackReplacingSpecRechecksSourceTags(t *testing.T) {
	o := newFakeOwner(t, true)
	mod := modifier(attrArmor, aggregator.OpAdditive, 20)
	mod.SourceTags = tag.Requirements{Require: tag.NewContainer(tagFire)}
	def := infinite("Ember", mod)
	def.StackingType = AggregateByTarget
	def.StackLimitCount = 5

	first, _ := o.c.ApplySpec(NewSpec(def, 1, Context{}, tag.Container{}), nil)
	require.NotNil(t, first)
	assert.Equal(t, 50.0, o.value(t, attrArmor))

	ae, found := o.c.ApplySpec(NewSpec(def, 1, Context{}, tag.NewContainer(tagFire)), nil)
	require.True(t, found)
	assert.Equal(t, first.Handle, ae.Handle)
	assert.Equal(t, 90.0, o.value(t, attrArmor))
	assert.Equal(t, 1, o.c.Aggregator(attrArmor).ModCount())

	_, found = o.c.ApplySpec(NewSpec(def, 1, Context{}, tag.Container{}), nil)
	require.True(t, found)
	assert.Equal(t, 50.0, o.value(t, attrArmor))
	assert.Zero(t, o.c.Aggregator(attrArmor).ModCount())
}

func TestContainer_ScopeLockDefersStructuralChanges(t *testing.T) {
	o := newFakeOwner(t, true)
	var kinds []ChangeKind
	o.c.OnChange(func(ev ChangeEvent) { kinds = append(kinds, ev.Kind) })

	o.c.IncrementLock()
	ae := o.apply(t, infinite("Shield", modifier(attrArmor, aggregator.OpAdditive, 10)))
	assert.Empty(t, o.c.effects)
	assert.Equal(t, []Handle{ae.Handle}, o.c.AllActiveEffectHandles())
	assert.Equal(t, 60.0, o.value(t, attrArmor))
	assert.Empty(t, kinds)

	o.c.IncrementLock()
	assert.True(t, o.c.RemoveActiveEffect(ae.Handle, -1))
	o.c.DecrementLock()
	assert.Empty(t, kinds, "inner unlock does not flush")

	o.c.DecrementLock()
	assert.Equal(t, []ChangeKind{ChangeAdded, ChangeRemoved}, kinds)
	assert.Empty(t, o.c.effects)
	assert.Empty(t, o.c.pendingAdds)
	assert.False(t, o.c.IsLocked())
}

func TestContainer_UnbalancedUnlockIsIgnored(t *testing.T) {
	o := newFakeOwner(t, true)
	o.c.DecrementLock()
	assert.False(t, o.c.IsLocked())
	o.apply(t, infinite("Shield", modifier(attrArmor, aggregator.OpAdditive, 10)))
	assert.Len(t, o.c.effects, 1)
}

func TestContainer_RemovedCueFiresOnce(t *testing.T) {
	o := newFakeOwner(t, true)
	def := infinite("Burning", modifier(attrHealth, aggregator.OpAdditive, -5))
	def.Cues = []CueInfo{{Tags: tag.NewContainer(tagCueBurn)}}

	ae := o.apply(t, def)
	o.c.RemoveActiveEffect(ae.Handle, -1)
	o.c.RemoveActiveEffect(ae.Handle, -1)

	assert.Equal(t, 1, o.cues.Count(tagCueBurn, cue.Removed))
	assert.False(t, o.c.IsCueActive(tagCueBurn))
}

func TestContainer_ExpirationEffects(t *testing.T) {
	routine := &Definition{
		Name:           "Exhausted",
		DurationPolicy: Instant,
		Modifiers:      []ModifierInfo{modifier(attrHealth, aggregator.OpAdditive, -10)},
	}
	premature := &Definition{
		Name:           "Interrupted",
		DurationPolicy: Instant,
		Modifiers:      []ModifierInfo{modifier(attrHealth, aggregator.OpAdditive, -1)},
	}
	newDef := func() *Definition {
		return &Definition{
			Name:                       "Sprint",
			DurationPolicy:             HasDuration,
			DurationMagnitude:          ScalarMagnitude(2),
			RoutineExpirationEffects:   []*Definition{routine},
			PrematureExpirationEffects: []*Definition{premature},
		}
	}

	t.Run("routine", func(t *testing.T) {
		o := newFakeOwner(t, true)
		o.apply(t, newDef())
		o.timers.Advance(1)
		assert.Equal(t, 1, o.c.Len())
		o.timers.Advance(1)
		assert.Zero(t, o.c.Len())
		assert.Equal(t, 90.0, o.base(t, attrHealth))
	})

	t.Run("premature", func(t *testing.T) {
		o := newFakeOwner(t, true)
		ae := o.apply(t, newDef())
		o.c.RemoveActiveEffect(ae.Handle, -1)
		assert.Equal(t, 99.0, o.base(t, attrHealth))
		assert.Zero(t, o.timers.Pending())
	})
}

func TestContainer_StackExpirationPolicies(t *testing.T) {
	newDef := func(policy StackExpirationPolicy) *Definition {
		return &Definition{
			Name:                  "Momentum",
			DurationPolicy:        HasDuration,
			DurationMagnitude:     ScalarMagnitude(3),
			Modifiers:             []ModifierInfo{modifier(attrArmor, aggregator.OpAdditive, 1)},
			StackingType:          AggregateByTarget,
			StackLimitCount:       5,
			StackExpirationPolicy: policy,
		}
	}

	t.Run("remove single stack", func(t *testing.T) {
		o := newFakeOwner(t, true)
		def := newDef(RemoveSingleStackAndRefreshDuration)
		ae := o.apply(t, def)
		o.apply(t, def)

		o.timers.Advance(3)
		require.NotNil(t, o.c.ActiveEffect(ae.Handle))
		assert.Equal(t, int32(1), ae.StackCount())
		assert.Equal(t, 51.0, o.value(t, attrArmor))

		o.timers.Advance(3)
		assert.Zero(t, o.c.Len())
	})

	t.Run("refresh duration", func(t *testing.T) {
		o := newFakeOwner(t, true)
		ae := o.apply(t, newDef(RefreshDuration))
		o.timers.Advance(9)
		require.NotNil(t, o.c.ActiveEffect(ae.Handle))
		assert.Equal(t, 9.0, ae.StartWorldTime)
	})
}

func TestContainer_StackDurationNeverRefresh(t *testing.T) {
	o := newFakeOwner(t, true)
	def := &Definition{
		Name:                       "Haste",
		DurationPolicy:             HasDuration,
		DurationMagnitude:          ScalarMagnitude(4),
		StackingType:               AggregateByTarget,
		StackLimitCount:            3,
		StackDurationRefreshPolicy: NeverRefresh,
	}
	o.apply(t, def)
	o.timers.Advance(3)
	ae := o.apply(t, def)
	assert.Equal(t, 0.0, ae.StartWorldTime)

	o.timers.Advance(1)
	assert.Zero(t, o.c.Len())
}

func TestContainer_LiveAndSnapshotTargetCaptures(t *testing.T) {
	tests := []struct {
		name     string
		snapshot bool
		want     float64
	}{
		{name: "live", snapshot: false, want: 30},
		{name: "snapshot", snapshot: true, want: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newFakeOwner(t, true)
			def := infinite("Might", ModifierInfo{
				Attribute: attrDamage,
				Op:        aggregator.OpAdditive,
				Magnitude: AttributeBasedMagnitude(AttributeBased{
					Capture:     CaptureDefinition{Attribute: attrStrength, Source: CaptureFromTarget, Snapshot: tt.snapshot},
					Coefficient: 2,
				}),
			})
			o.apply(t, def)
			require.Equal(t, 20.0, o.value(t, attrDamage))

			require.True(t, o.c.SetAttributeBase(attrStrength, 15))
			assert.Equal(t, tt.want, o.value(t, attrDamage))
		})
	}
}

func TestContainer_CyclicDependencyIsBroken(t *testing.T) {
	o := newFakeOwner(t, true)
	def := infinite("Overflow", ModifierInfo{
		Attribute: attrStrength,
		Op:        aggregator.OpAdditive,
		Magnitude: AttributeBasedMagnitude(AttributeBased{
			Capture:     CaptureDefinition{Attribute: attrStrength, Source: CaptureFromTarget},
			Coefficient: 0.5,
		}),
	})
	o.apply(t, def)

	assert.Equal(t, 1, o.c.CyclicBroadcasts())
	assert.Equal(t, 15.0, o.value(t, attrStrength))
}

func TestContainer_DiamondDependencyEvaluatesOncePerWrite(t *testing.T) {
	o := newFakeOwner(t, true)
	live := func(attr attribute.Attribute) Magnitude {
		return AttributeBasedMagnitude(AttributeBased{
			Capture: CaptureDefinition{Attribute: attr, Source: CaptureFromTarget},
		})
	}
	o.apply(t, infinite("HealthFromStrength", ModifierInfo{Attribute: attrHealth, Op: aggregator.OpAdditive, Magnitude: live(attrStrength)}))
	o.apply(t, infinite("ArmorFromStrength", ModifierInfo{Attribute: attrArmor, Op: aggregator.OpAdditive, Magnitude: live(attrStrength)}))
	o.apply(t, infinite("HealthFromArmor", ModifierInfo{Attribute: attrHealth, Op: aggregator.OpAdditive, Magnitude: live(attrArmor)}))
	require.Equal(t, 60.0, o.value(t, attrArmor))
	require.Equal(t, 170.0, o.value(t, attrHealth))

	var health, armor []AttributeChange
	o.c.OnAttributeChange(attrHealth, func(ch AttributeChange) { health = append(health, ch) })
	o.c.OnAttributeChange(attrArmor, func(ch AttributeChange) { armor = append(armor, ch) })

	require.True(t, o.c.SetAttributeBase(attrStrength, 20))

	assert.Equal(t, []AttributeChange{{Attribute: attrArmor, OldValue: 60, NewValue: 70}}, armor)
	assert.Equal(t, []AttributeChange{{Attribute: attrHealth, OldValue: 170, NewValue: 190}}, health)
	assert.Equal(t, 0, o.c.CyclicBroadcasts())

	require.True(t, o.c.SetAttributeBase(attrStrength, 15))
	assert.Len(t, health, 2)
	assert.Equal(t, 180.0, o.value(t, attrHealth))
	assert.Equal(t, 65.0, o.value(t, attrArmor))
}

func TestContainer_MalformedCurveContributesZero(t *testing.T) {
	table := NewCurveTable("Scaling")
	table.AddRow("Armor", CurveKey{Time: 1, Value: 4}, CurveKey{Time: 10, Value: 40})

	tests := []struct {
		name string
		ref  CurveRef
	}{
		{name: "nil table", ref: CurveRef{Row: "Armor"}},
		{name: "missing row", ref: CurveRef{Table: table, Row: "Missing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newFakeOwner(t, true)
			def := infinite("Warded",
				ModifierInfo{Attribute: attrArmor, Op: aggregator.OpAdditive, Magnitude: CurveMagnitude(1, tt.ref)},
				ModifierInfo{Attribute: attrArmor, Op: aggregator.OpAdditive, Magnitude: CurveMagnitude(1, CurveRef{Table: table, Row: "Armor"})},
			)

			ae := o.apply(t, def)
			assert.Equal(t, 0.0, ae.Spec.ModifierMagnitude(0))
			assert.Equal(t, 4.0, ae.Spec.ModifierMagnitude(1))
			assert.Equal(t, 54.0, o.value(t, attrArmor))
			assert.Equal(t, 2, o.c.Aggregator(attrArmor).ModCount())
			assert.Equal(t, 1, o.c.ActiveEffectCount(Query{}, false))

			require.True(t, o.c.RemoveActiveEffect(ae.Handle, -1))
			assert.Equal(t, 50.0, o.value(t, attrArmor))
			assert.Equal(t, 0, o.c.Aggregator(attrArmor).ModCount())
		})
	}
}

func TestContainer_AttributeChangeDelegate(t *testing.T) {
	o := newFakeOwner(t, true)
	var changes []AttributeChange
	o.c.OnAttributeChange(attrArmor, func(ch AttributeChange) { changes = append(changes, ch) })

	ae := o.apply(t, infinite("Plate", modifier(attrArmor, aggregator.OpAdditive, 5)))
	o.c.RemoveActiveEffect(ae.Handle, -1)

	assert.Equal(t, []AttributeChange{
		{Attribute: attrArmor, OldValue: 50, NewValue: 55},
		{Attribute: attrArmor, OldValue: 55, NewValue: 50},
	}, changes)
}

func TestContainer_Immunity(t *testing.T) {
	o := newFakeOwner(t, true)
	ward := infinite("FireWard")
	ward.GrantedApplicationImmunityTags = tag.Requirements{Require: tag.NewContainer(tagFire)}
	o.apply(t, ward)

	burn := infinite("Burn", modifier(attrHealth, aggregator.OpAdditive, -5))
	fromFire := NewSpec(burn, 1, Context{}, tag.NewContainer(tagFire))
	plain := NewSpec(burn, 1, Context{}, tag.Container{})

	assert.NotNil(t, o.c.HasApplicationImmunityToSpec(fromFire))
	assert.Nil(t, o.c.HasApplicationImmunityToSpec(plain))

	q := QueryMatchingDefinition(burn)
	shield := infinite("Cleanse")
	shield.GrantedApplicationImmunityQuery = &q
	o.apply(t, shield)
	assert.NotNil(t, o.c.HasApplicationImmunityToSpec(plain))
}

func TestContainer_Queries(t *testing.T) {
	o := newFakeOwner(t, true)
	buff := infinite("Blessing", modifier(attrArmor, aggregator.OpAdditive, 1))
	buff.AssetTags = tag.NewContainer(tagEffectBuff)
	buff.StackingType = AggregateByTarget
	buff.StackLimitCount = 4
	gated := infinite("Zeal", modifier(attrArmor, aggregator.OpAdditive, 1))
	gated.AssetTags = tag.NewContainer(tagEffectBuff)
	gated.OngoingTagRequirements = tag.Requirements{Require: tag.NewContainer(tagBuffed)}
	other := infinite("Curse", modifier(attrHealth, aggregator.OpAdditive, -1))

	o.apply(t, buff)
	o.apply(t, buff)
	o.apply(t, gated)
	o.apply(t, other)

	q := QueryMatchingOwningTags(tag.NewContainer(tagEffectBuff))
	assert.Equal(t, 3, o.c.ActiveEffectCount(q, false))
	assert.Equal(t, 2, o.c.ActiveEffectCount(q, true))
	assert.Len(t, o.c.ActiveEffects(q), 2)
	assert.Len(t, o.c.ActiveEffects(Query{ModifyingAttribute: attrHealth}), 1)
	assert.Equal(t, []float64{-1, -1}, o.c.ActiveEffectsTimeRemaining(q))

	assert.Equal(t, 2, o.c.RemoveActiveEffects(q, -1))
	assert.Equal(t, 1, o.c.Len())
}

func TestContainer_SetLevelAndStartTime(t *testing.T) {
	o := newFakeOwner(t, true)
	table := NewCurveTable("Scaling")
	table.AddRow("Armor", CurveKey{Time: 1, Value: 10}, CurveKey{Time: 5, Value: 50})
	def := &Definition{
		Name:              "Aegis",
		DurationPolicy:    HasDuration,
		DurationMagnitude: ScalarMagnitude(10),
		Modifiers: []ModifierInfo{{
			Attribute: attrArmor,
			Op:        aggregator.OpAdditive,
			Magnitude: CurveMagnitude(1, CurveRef{Table: table, Row: "Armor"}),
		}},
	}
	ae := o.apply(t, def)
	require.Equal(t, 60.0, o.value(t, attrArmor))

	require.True(t, o.c.SetActiveEffectLevel(ae.Handle, 3))
	assert.Equal(t, 80.0, o.value(t, attrArmor))
	m, ok := o.c.EffectMagnitude(ae.Handle, attrArmor)
	require.True(t, ok)
	assert.Equal(t, 30.0, m)

	require.True(t, o.c.ModifyActiveEffectStartTime(ae.Handle, -8))
	start, duration, ok := o.c.StartTimeAndDuration(ae.Handle)
	require.True(t, ok)
	assert.Equal(t, -8.0, start)
	assert.Equal(t, 10.0, duration)

	o.timers.Advance(2)
	assert.Zero(t, o.c.Len())
	assert.Equal(t, 50.0, o.value(t, attrArmor))
}

func TestContainer_ClientPrediction(t *testing.T) {
	key := prediction.Key{ID: 1}
	def := infinite("Quickstep", modifier(attrArmor, aggregator.OpAdditive, 10))
	def.Cues = []CueInfo{{Tags: tag.NewContainer(tagCueBurn)}}

	t.Run("caught up with replicated version", func(t *testing.T) {
		o := newFakeOwner(t, false)
		k := key
		predicted, _ := o.c.ApplySpec(NewSpec(def, 1, Context{}, tag.Container{}), &k)
		require.NotNil(t, predicted)
		assert.True(t, o.c.HasPredictedEffectWithPredictedKey(key))
		assert.Equal(t, 60.0, o.value(t, attrArmor))

		o.c.InsertReplicated(NewSpec(def, 1, Context{}, tag.Container{}), key, ReplicatedState{StackCount: 1, Level: 1, Duration: DurationInfinite})
		assert.True(t, o.c.HasReceivedEffectWithPredictedKey(key))

		o.preds.CatchUpTo(key)
		assert.Nil(t, o.c.ActiveEffect(predicted.Handle))
		assert.Equal(t, 1, o.c.Len())
		assert.Equal(t, 60.0, o.value(t, attrArmor))
		assert.Zero(t, o.cues.Count(tagCueBurn, cue.Removed), "replicated entry owns the cue")
	})

	t.Run("rejected", func(t *testing.T) {
		o := newFakeOwner(t, false)
		k := key
		predicted, _ := o.c.ApplySpec(NewSpec(def, 1, Context{}, tag.Container{}), &k)
		require.NotNil(t, predicted)

		o.preds.Reject(key)
		assert.Zero(t, o.c.Len())
		assert.Equal(t, 50.0, o.value(t, attrArmor))
		assert.Equal(t, 1, o.cues.Count(tagCueBurn, cue.Removed))
	})

	t.Run("clients never predict stacking", func(t *testing.T) {
		o := newFakeOwner(t, false)
		stacking := infinite("Tempo", modifier(attrArmor, aggregator.OpAdditive, 1))
		stacking.StackingType = AggregateByTarget
		k1, k2 := prediction.Key{ID: 1}, prediction.Key{ID: 2}

		first, _ := o.c.ApplySpec(NewSpec(stacking, 1, Context{}, tag.Container{}), &k1)
		require.NotNil(t, first)
		second, found := o.c.ApplySpec(NewSpec(stacking, 1, Context{}, tag.Container{}), &k2)
		assert.Nil(t, second)
		assert.False(t, found)
		assert.Equal(t, int32(1), first.StackCount())
	})
}

func TestContainer_AuthorityClearsKeyOnStack(t *testing.T) {
	o := newFakeOwner(t, true)
	def := infinite("Tempo", modifier(attrArmor, aggregator.OpAdditive, 1))
	def.StackingType = AggregateByTarget

	o.apply(t, def)
	k := prediction.Key{ID: 4}
	_, found := o.c.ApplySpec(NewSpec(def, 1, Context{}, tag.Container{}), &k)
	assert.True(t, found)
	assert.False(t, k.IsValid())
}

func TestContainer_ReplicatedUpdate(t *testing.T) {
	o := newFakeOwner(t, false)
	def := infinite("Aura", modifier(attrArmor, aggregator.OpAdditive, 4))
	def.StackingType = AggregateByTarget

	ae := o.c.InsertReplicated(NewSpec(def, 1, Context{}, tag.Container{}), prediction.Key{},
		ReplicatedState{StackCount: 1, Level: 1, Duration: DurationInfinite, Magnitudes: []float64{6}})
	assert.Equal(t, 56.0, o.value(t, attrArmor))

	require.True(t, o.c.UpdateReplicated(ae.Handle, ReplicatedState{StackCount: 2, Level: 1, Duration: DurationInfinite, Magnitudes: []float64{6}}))
	assert.Equal(t, 62.0, o.value(t, attrArmor))

	require.True(t, o.c.ReceiveReplicatedAttribute(attrArmor, 72))
	assert.Equal(t, 60.0, o.base(t, attrArmor))
	assert.Equal(t, 72.0, o.value(t, attrArmor))
}

func TestContainer_GrantedAbilities(t *testing.T) {
	o := newFakeOwner(t, true)
	def := infinite("Training")
	def.GrantedAbilities = []GrantedAbility{{Name: "Cleave", Level: 1}}

	ae := o.apply(t, def)
	assert.Equal(t, def.GrantedAbilities, o.granted[ae.Handle])

	o.c.RemoveActiveEffect(ae.Handle, -1)
	assert.Empty(t, o.granted)
}

func TestContainer_ConditionalEffectsAndCueGating(t *testing.T) {
	o := newFakeOwner(t, true)
	ignite := &Definition{
		Name:           "Ignite",
		DurationPolicy: Infinite,
		Modifiers:      []ModifierInfo{modifier(attrArmor, aggregator.OpAdditive, -5)},
	}
	strike := &Definition{
		Name:                                "Strike",
		DurationPolicy:                      Instant,
		Modifiers:                           []ModifierInfo{modifier(attrHealth, aggregator.OpAdditive, -20)},
		ConditionalEffects:                  []ConditionalEffect{{Def: ignite, RequiredSourceTags: tag.NewContainer(tagFire)}},
		Cues:                                []CueInfo{{Tags: tag.NewContainer(tagCueBurn)}},
		RequireModifierSuccessToTriggerCues: true,
	}

	assert.True(t, o.c.ExecuteActiveEffectsFrom(NewSpec(strike, 1, Context{}, tag.NewContainer(tagFire)), prediction.Key{}))
	assert.Equal(t, 80.0, o.base(t, attrHealth))
	assert.Equal(t, 45.0, o.value(t, attrArmor))
	assert.Equal(t, 1, o.cues.Count(tagCueBurn, cue.Executed))

	gated := *strike
	gated.Modifiers = []ModifierInfo{modifier(attrHealth, aggregator.OpDivision, 0)}
	assert.False(t, o.c.ExecuteActiveEffectsFrom(NewSpec(&gated, 1, Context{}, tag.Container{}), prediction.Key{}))
	assert.Equal(t, 1, o.cues.Count(tagCueBurn, cue.Executed))
}
