package effect

import (
	"errors"
	"fmt"

	"github.com/udisondev/abilitysystem/internal/aggregator"
	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/tag"
)

// Duration sentinels stored in Spec.Duration.
const (
	DurationInstant  = 0.0
	DurationInfinite = -1.0
)

// minModifiedDuration is the floor applied to finite durations that
// evaluate to zero or less.
const minModifiedDuration = 0.1

// DurationPolicy is how long an effect lasts.
type DurationPolicy int8

const (
	Instant DurationPolicy = iota
	Infinite
	HasDuration
)

// StackingType selects which applications stack together.
type StackingType int8

const (
	StackingNone StackingType = iota
	// AggregateBySource stacks applications of the same instigator.
	AggregateBySource
	// AggregateByTarget stacks all applications on the target.
	AggregateByTarget
)

// StackDurationRefreshPolicy controls the duration on a successful stack.
type StackDurationRefreshPolicy int8

const (
	RefreshOnSuccessfulApplication StackDurationRefreshPolicy = iota
	NeverRefresh
)

// StackPeriodResetPolicy controls the period timer on a successful stack.
type StackPeriodResetPolicy int8

const (
	ResetOnSuccessfulApplication StackPeriodResetPolicy = iota
	NeverReset
)

// StackExpirationPolicy controls what happens when a stacked effect's
// duration runs out.
type StackExpirationPolicy int8

const (
	ClearEntireStack StackExpirationPolicy = iota
	RemoveSingleStackAndRefreshDuration
	RefreshDuration
)

// ModifierInfo is one attribute modification of a definition.
type ModifierInfo struct {
	Attribute  attribute.Attribute
	Op         aggregator.ModOp
	Magnitude  Magnitude
	Channel    aggregator.Channel
	SourceTags tag.Requirements
	TargetTags tag.Requirements
}

// CueInfo binds cue tags to a definition.
type CueInfo struct {
	Tags tag.Container
}

// GrantedAbility is an ability granted while an effect is active.
type GrantedAbility struct {
	Name  string
	Level float64
}

// ConditionalEffect is applied after an execution when the source owns
// RequiredSourceTags.
type ConditionalEffect struct {
	Def                *Definition
	RequiredSourceTags tag.Container
}

// ApplicationRequirement is an injected predicate evaluated before applying.
type ApplicationRequirement interface {
	CanApply(spec *Spec, target Target) bool
}

// Definition is the immutable, shared description of an effect.
type Definition struct {
	Name string

	DurationPolicy    DurationPolicy
	DurationMagnitude Magnitude
	Period            float64
	// ExecutePeriodicEffectOnApplication runs one execution on the next tick
	// after application in addition to every period.
	ExecutePeriodicEffectOnApplication bool

	Modifiers []ModifierInfo

	// ChanceToApply in (0,1]. Zero means always.
	ChanceToApply           float64
	ApplicationRequirements []ApplicationRequirement
	ConditionalEffects      []ConditionalEffect

	PrematureExpirationEffects []*Definition
	RoutineExpirationEffects   []*Definition

	Cues                                []CueInfo
	RequireModifierSuccessToTriggerCues bool
	SuppressStackingCues                bool

	// AssetTags describe the effect itself and are not granted to the target.
	AssetTags   tag.Container
	GrantedTags tag.Container

	OngoingTagRequirements     tag.Requirements
	ApplicationTagRequirements tag.Requirements
	RemovalTagRequirements     tag.Requirements
	RemoveEffectsWithTags      tag.Container

	GrantedApplicationImmunityTags  tag.Requirements
	GrantedApplicationImmunityQuery *Query

	StackingType               StackingType
	StackLimitCount            int32
	StackDurationRefreshPolicy StackDurationRefreshPolicy
	StackPeriodResetPolicy     StackPeriodResetPolicy
	StackExpirationPolicy      StackExpirationPolicy
	DenyOverflowApplication    bool
	ClearStackOnOverflow       bool
	OverflowEffects            []*Definition

	GrantedAbilities []GrantedAbility
}

// IsPeriodic reports whether the definition executes on a period.
func (d *Definition) IsPeriodic() bool {
	return d.Period > 0
}

// Validate reports content errors. resolve may be nil to skip attribute
// resolution.
func (d *Definition) Validate(resolve func(attribute.Attribute) bool) error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, errors.New("definition without name"))
	}
	for i, mod := range d.Modifiers {
		if !mod.Attribute.IsValid() || (resolve != nil && !resolve(mod.Attribute)) {
			errs = append(errs, fmt.Errorf("modifier %d: unresolvable attribute %s", i, mod.Attribute))
		}
		if !mod.Op.IsValid() {
			errs = append(errs, fmt.Errorf("modifier %d: invalid op %v", i, mod.Op))
		}
		if !mod.Channel.IsValid() {
			errs = append(errs, fmt.Errorf("modifier %d: invalid channel %d", i, mod.Channel))
		}
	}
	if d.DurationPolicy == Instant && !d.OngoingTagRequirements.IsEmpty() {
		errs = append(errs, errors.New("instant effect with ongoing tag requirements"))
	}
	if d.DurationPolicy == Instant && d.IsPeriodic() {
		errs = append(errs, errors.New("instant effect with period"))
	}
	if d.ChanceToApply < 0 || d.ChanceToApply > 1 {
		errs = append(errs, fmt.Errorf("chance to apply %v out of range", d.ChanceToApply))
	}
	if d.StackLimitCount < 0 {
		errs = append(errs, fmt.Errorf("negative stack limit %d", d.StackLimitCount))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("effect %q: %w", d.Name, err)
	}
	return nil
}

func (d *Definition) captureDefinitions() []CaptureDefinition {
	var out []CaptureDefinition
	add := func(m Magnitude) {
		cd, ok := m.captureDefinition()
		if !ok {
			return
		}
		for _, existing := range out {
			if existing == cd {
				return
			}
		}
		out = append(out, cd)
	}
	for _, mod := range d.Modifiers {
		add(mod.Magnitude)
	}
	add(d.DurationMagnitude)
	return out
}

// CueTags returns the cue tags of every CueInfo.
func (d *Definition) CueTags() tag.Container {
	var all tag.Container
	for _, c := range d.Cues {
		all.AppendContainer(c.Tags)
	}
	return all
}
