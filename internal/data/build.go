package data

import (
	"errors"
	"fmt"

	"github.com/udisondev/abilitysystem/internal/aggregator"
	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/effect"
	"github.com/udisondev/abilitysystem/internal/script"
	"github.com/udisondev/abilitysystem/internal/tag"
)

// builder fills pre-allocated definitions so that effects may reference
// each other (and themselves) by name.
type builder struct {
	catalog *Catalog
	scripts *script.Engine
}

func (b *builder) build(def *effect.Definition, doc effectDoc) error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	switch doc.Policy {
	case "", "instant":
		def.DurationPolicy = effect.Instant
	case "infinite":
		def.DurationPolicy = effect.Infinite
	case "has_duration":
		def.DurationPolicy = effect.HasDuration
		if doc.Duration == nil {
			collect(errors.New("has_duration without duration"))
		} else {
			m, err := b.magnitude(*doc.Duration)
			collect(err)
			def.DurationMagnitude = m
		}
	default:
		collect(fmt.Errorf("unknown policy %q", doc.Policy))
	}
	def.Period = doc.Period
	def.ExecutePeriodicEffectOnApplication = doc.ExecuteOnApplication

	for i, md := range doc.Modifiers {
		mod, err := b.modifier(md)
		if err != nil {
			collect(fmt.Errorf("modifier %d: %w", i, err))
			continue
		}
		def.Modifiers = append(def.Modifiers, mod)
	}

	def.ChanceToApply = doc.Chance
	for _, fn := range doc.ApplicationRequirements {
		if b.scripts == nil {
			collect(fmt.Errorf("requirement %q: %w", fn, ErrNoScriptEngine))
			continue
		}
		req, err := b.scripts.Requirement(fn)
		if err != nil {
			collect(err)
			continue
		}
		def.ApplicationRequirements = append(def.ApplicationRequirements, req)
	}
	for _, cd := range doc.ConditionalEffects {
		target, err := b.effect(cd.Effect)
		if err != nil {
			collect(err)
			continue
		}
		def.ConditionalEffects = append(def.ConditionalEffects, effect.ConditionalEffect{
			Def:                target,
			RequiredSourceTags: tag.NewContainer(cd.RequiredSourceTags...),
		})
	}

	var err error
	def.PrematureExpirationEffects, err = b.effects(doc.PrematureExpirationEffects)
	collect(err)
	def.RoutineExpirationEffects, err = b.effects(doc.RoutineExpirationEffects)
	collect(err)

	if len(doc.Cues) > 0 {
		def.Cues = []effect.CueInfo{{Tags: tag.NewContainer(doc.Cues...)}}
	}
	def.RequireModifierSuccessToTriggerCues = doc.RequireModifierSuccessToTriggerCues
	def.SuppressStackingCues = doc.SuppressStackingCues

	def.AssetTags = tag.NewContainer(doc.AssetTags...)
	def.GrantedTags = tag.NewContainer(doc.GrantedTags...)
	def.OngoingTagRequirements = requirements(doc.OngoingTags)
	def.ApplicationTagRequirements = requirements(doc.ApplicationTags)
	def.RemovalTagRequirements = requirements(doc.RemovalTags)
	def.RemoveEffectsWithTags = tag.NewContainer(doc.RemoveEffectsWithTags...)

	def.GrantedApplicationImmunityTags = requirements(doc.ImmunityTags)
	if doc.ImmunityQuery != nil {
		q, err := b.query(*doc.ImmunityQuery)
		collect(err)
		def.GrantedApplicationImmunityQuery = q
	}

	collect(b.stacking(def, doc.Stacking))

	for _, a := range doc.GrantedAbilities {
		def.GrantedAbilities = append(def.GrantedAbilities, effect.GrantedAbility{Name: a.Name, Level: a.Level})
	}
	return errors.Join(errs...)
}

func (b *builder) modifier(doc modifierDoc) (effect.ModifierInfo, error) {
	attr, err := b.attribute(doc.Attribute)
	if err != nil {
		return effect.ModifierInfo{}, err
	}
	op := aggregator.OpAdditive
	if doc.Op != "" {
		if op, err = aggregator.ParseModOp(doc.Op); err != nil {
			return effect.ModifierInfo{}, err
		}
	}
	m, err := b.magnitude(doc.Magnitude)
	if err != nil {
		return effect.ModifierInfo{}, err
	}
	return effect.ModifierInfo{
		Attribute:  attr,
		Op:         op,
		Magnitude:  m,
		Channel:    aggregator.Channel(doc.Channel),
		SourceTags: requirements(doc.SourceTags),
		TargetTags: requirements(doc.TargetTags),
	}, nil
}

func (b *builder) magnitude(doc magnitudeDoc) (effect.Magnitude, error) {
	coefficient := doc.Coefficient
	if coefficient == 0 {
		coefficient = 1
	}
	switch {
	case doc.Scalar != nil:
		return effect.ScalarMagnitude(*doc.Scalar), nil

	case doc.Curve != nil:
		ref, err := b.curve(*doc.Curve)
		if err != nil {
			return effect.Magnitude{}, err
		}
		return effect.CurveMagnitude(coefficient, ref), nil

	case doc.Attribute != nil:
		return b.attributeBased(*doc.Attribute)

	case doc.SetByCaller != "":
		return effect.SetByCallerMagnitude(doc.SetByCaller), nil

	case doc.Script != "":
		if b.scripts == nil {
			return effect.Magnitude{}, fmt.Errorf("magnitude %q: %w", doc.Script, ErrNoScriptEngine)
		}
		calc, err := b.scripts.Magnitude(doc.Script)
		if err != nil {
			return effect.Magnitude{}, err
		}
		return effect.CustomMagnitude(coefficient, calc), nil

	default:
		return effect.Magnitude{}, errors.New("empty magnitude")
	}
}

func (b *builder) attributeBased(doc attributeBasedDoc) (effect.Magnitude, error) {
	attr, err := b.attribute(doc.Attribute)
	if err != nil {
		return effect.Magnitude{}, err
	}
	ab := effect.AttributeBased{
		Capture:              effect.CaptureDefinition{Attribute: attr, Snapshot: doc.Snapshot},
		FinalChannel:         aggregator.Channel(doc.Channel),
		Coefficient:          doc.Coefficient,
		PreMultiplyAdditive:  doc.PreAdd,
		PostMultiplyAdditive: doc.PostAdd,
	}
	switch doc.Source {
	case "", "source":
		ab.Capture.Source = effect.CaptureFromSource
	case "target":
		ab.Capture.Source = effect.CaptureFromTarget
	default:
		return effect.Magnitude{}, fmt.Errorf("unknown capture source %q", doc.Source)
	}
	switch doc.Policy {
	case "", "magnitude":
		ab.Policy = effect.AttributeMagnitude
	case "base":
		ab.Policy = effect.AttributeBaseValue
	case "bonus":
		ab.Policy = effect.AttributeBonusMagnitude
	case "to_channel":
		ab.Policy = effect.AttributeMagnitudeToChannel
	default:
		return effect.Magnitude{}, fmt.Errorf("unknown attribute policy %q", doc.Policy)
	}
	if doc.Curve != nil {
		ref, err := b.curve(*doc.Curve)
		if err != nil {
			return effect.Magnitude{}, err
		}
		ab.Curve = ref
	}
	return effect.AttributeBasedMagnitude(ab), nil
}

func (b *builder) stacking(def *effect.Definition, doc stackingDoc) error {
	switch doc.Type {
	case "", "none":
		def.StackingType = effect.StackingNone
	case "by_source":
		def.StackingType = effect.AggregateBySource
	case "by_target":
		def.StackingType = effect.AggregateByTarget
	default:
		return fmt.Errorf("unknown stacking type %q", doc.Type)
	}
	def.StackLimitCount = doc.Limit

	switch doc.DurationRefresh {
	case "", "refresh":
		def.StackDurationRefreshPolicy = effect.RefreshOnSuccessfulApplication
	case "never":
		def.StackDurationRefreshPolicy = effect.NeverRefresh
	default:
		return fmt.Errorf("unknown duration refresh policy %q", doc.DurationRefresh)
	}
	switch doc.PeriodReset {
	case "", "reset":
		def.StackPeriodResetPolicy = effect.ResetOnSuccessfulApplication
	case "never":
		def.StackPeriodResetPolicy = effect.NeverReset
	default:
		return fmt.Errorf("unknown period reset policy %q", doc.PeriodReset)
	}
	switch doc.Expiration {
	case "", "clear":
		def.StackExpirationPolicy = effect.ClearEntireStack
	case "remove_single":
		def.StackExpirationPolicy = effect.RemoveSingleStackAndRefreshDuration
	case "refresh":
		def.StackExpirationPolicy = effect.RefreshDuration
	default:
		return fmt.Errorf("unknown stack expiration policy %q", doc.Expiration)
	}

	def.DenyOverflowApplication = doc.DenyOverflow
	def.ClearStackOnOverflow = doc.ClearOnOverflow
	overflow, err := b.effects(doc.OverflowEffects)
	def.OverflowEffects = overflow
	return err
}

func (b *builder) query(doc immunityQueryDoc) (*effect.Query, error) {
	q := &effect.Query{
		OwningTagsMatchAny: tag.NewContainer(doc.OwningTagsAny...),
		SourceTagsMatchAny: tag.NewContainer(doc.SourceTagsAny...),
	}
	if doc.Effect != "" {
		def, err := b.effect(doc.Effect)
		if err != nil {
			return nil, err
		}
		q.Definition = def
	}
	if doc.ModifyingAttribute != "" {
		attr, err := b.attribute(doc.ModifyingAttribute)
		if err != nil {
			return nil, err
		}
		q.ModifyingAttribute = attr
	}
	return q, nil
}

func (b *builder) attribute(name string) (attribute.Attribute, error) {
	attr, err := attribute.Parse(name)
	if err != nil {
		return attribute.Attribute{}, err
	}
	if !b.catalog.registry.Resolve(attr) {
		return attribute.Attribute{}, fmt.Errorf("%s: %w", name, ErrUnknownAttribute)
	}
	return attr, nil
}

func (b *builder) curve(doc curveRefDoc) (effect.CurveRef, error) {
	table, ok := b.catalog.curves[doc.Table]
	if !ok {
		return effect.CurveRef{}, fmt.Errorf("table %q: %w", doc.Table, ErrUnknownCurve)
	}
	if _, ok := table.Row(doc.Row); !ok {
		return effect.CurveRef{}, fmt.Errorf("row %s.%s: %w", doc.Table, doc.Row, ErrUnknownCurve)
	}
	return effect.CurveRef{Table: table, Row: doc.Row}, nil
}

func (b *builder) effect(name string) (*effect.Definition, error) {
	def, ok := b.catalog.defs[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownEffect)
	}
	return def, nil
}

func (b *builder) effects(names []string) ([]*effect.Definition, error) {
	var (
		out  []*effect.Definition
		errs []error
	)
	for _, name := range names {
		def, err := b.effect(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, def)
	}
	return out, errors.Join(errs...)
}

func requirements(doc requirementsDoc) tag.Requirements {
	return tag.Requirements{
		Require: tag.NewContainer(doc.Require...),
		Ignore:  tag.NewContainer(doc.Ignore...),
	}
}
