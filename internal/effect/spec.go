package effect

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/udisondev/abilitysystem/internal/aggregator"
	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/cue"
	"github.com/udisondev/abilitysystem/internal/prediction"
	"github.com/udisondev/abilitysystem/internal/tag"
)

// Target is the read-only view of an entity an effect is applied to.
type Target interface {
	ID() string
	OwnedTags() tag.Container
	NumericAttribute(attr attribute.Attribute) (float64, bool)
}

// Instigator is the entity that created a spec. It is notified when the
// spec lands on a target.
type Instigator interface {
	Target
	OnGameplayEffectAppliedToTarget(target Target, spec *Spec, h Handle)
}

// AggregatorLookup resolves the aggregator of an attribute on one entity.
type AggregatorLookup interface {
	Aggregator(attr attribute.Attribute) *aggregator.Aggregator
}

// Context describes who applied a spec.
type Context struct {
	Instigator   Instigator
	EffectCauser string
}

// InstigatorID returns the instigator ID or "".
func (c Context) InstigatorID() string {
	if c.Instigator == nil {
		return ""
	}
	return c.Instigator.ID()
}

type capturedAttribute struct {
	def      CaptureDefinition
	snapshot *aggregator.Aggregator
}

// Spec is one application of a Definition: level, stacks, duration and the
// captured data its magnitudes read.
type Spec struct {
	Def        *Definition
	Level      float64
	StackCount int32
	Duration   float64
	Period     float64

	ChanceToApply float64
	Context       Context

	CapturedSourceTags tag.Container
	CapturedTargetTags tag.Container
	DynamicGrantedTags tag.Container
	DynamicAssetTags   tag.Container

	GrantedAbilities  []GrantedAbility
	TargetEffectSpecs []*Spec

	setByCaller    map[string]float64
	modMagnitudes  []float64
	captures       []capturedAttribute
	liveTarget     AggregatorLookup
	durationLocked bool
}

// NewSpec creates a spec for def. sourceTags are the instigator's owned tags
// at creation time.
func NewSpec(def *Definition, level float64, ctx Context, sourceTags tag.Container) *Spec {
	s := &Spec{
		Def:              def,
		Level:            level,
		StackCount:       1,
		Period:           def.Period,
		ChanceToApply:    def.ChanceToApply,
		Context:          ctx,
		GrantedAbilities: slices.Clone(def.GrantedAbilities),
		modMagnitudes:    make([]float64, len(def.Modifiers)),
	}
	if s.ChanceToApply <= 0 {
		s.ChanceToApply = 1
	}
	s.CapturedSourceTags = sourceTags.Clone()
	s.CapturedSourceTags.AppendContainer(def.AssetTags)

	for _, cd := range def.captureDefinitions() {
		s.captures = append(s.captures, capturedAttribute{def: cd})
	}
	s.calculateDuration()
	return s
}

// Clone returns an independent copy. Snapshot aggregators are immutable and
// shared.
func (s *Spec) Clone() *Spec {
	c := *s
	c.CapturedSourceTags = s.CapturedSourceTags.Clone()
	c.CapturedTargetTags = s.CapturedTargetTags.Clone()
	c.DynamicGrantedTags = s.DynamicGrantedTags.Clone()
	c.DynamicAssetTags = s.DynamicAssetTags.Clone()
	c.GrantedAbilities = slices.Clone(s.GrantedAbilities)
	c.TargetEffectSpecs = slices.Clone(s.TargetEffectSpecs)
	c.setByCaller = maps.Clone(s.setByCaller)
	c.modMagnitudes = slices.Clone(s.modMagnitudes)
	c.captures = slices.Clone(s.captures)
	return &c
}

// derive creates a spec for def in the same context, reusing the source
// snapshots captured by s.
func (s *Spec) derive(def *Definition) *Spec {
	d := NewSpec(def, s.Level, s.Context, s.CapturedSourceTags)
	for i := range d.captures {
		dc := &d.captures[i]
		if dc.def.Source != CaptureFromSource {
			continue
		}
		for _, sc := range s.captures {
			if sc.def.Source == CaptureFromSource && sc.def.Attribute == dc.def.Attribute && sc.snapshot != nil {
				dc.snapshot = sc.snapshot
				break
			}
		}
	}
	d.calculateDuration()
	return d
}

// Name returns the definition name.
func (s *Spec) Name() string {
	return s.Def.Name
}

// IsInstant reports whether the spec executes once without an entry.
func (s *Spec) IsInstant() bool {
	return s.Duration == DurationInstant
}

// IsPeriodic reports whether the spec executes on a period.
func (s *Spec) IsPeriodic() bool {
	return s.Period > 0
}

// SetDuration overrides the duration. Locked durations are not recomputed
// when the spec is applied.
func (s *Spec) SetDuration(d float64, lock bool) {
	s.Duration = d
	s.durationLocked = lock
}

// SetLevel changes the level and recalculates modifier magnitudes. The
// duration is kept.
func (s *Spec) SetLevel(level float64) {
	s.Level = level
	s.CalculateModifierMagnitudes()
}

// SetSetByCallerMagnitude sets a named magnitude.
func (s *Spec) SetSetByCallerMagnitude(name string, v float64) {
	if s.setByCaller == nil {
		s.setByCaller = make(map[string]float64)
	}
	s.setByCaller[name] = v
}

// SetByCallerMagnitude returns a named magnitude.
func (s *Spec) SetByCallerMagnitude(name string) (float64, bool) {
	v, ok := s.setByCaller[name]
	return v, ok
}

// SetByCallerMagnitudes returns a copy of all named magnitudes.
func (s *Spec) SetByCallerMagnitudes() map[string]float64 {
	return maps.Clone(s.setByCaller)
}

// AllGrantedTags returns definition and dynamic granted tags.
func (s *Spec) AllGrantedTags() tag.Container {
	all := s.Def.GrantedTags.Clone()
	all.AppendContainer(s.DynamicGrantedTags)
	return all
}

// AllAssetTags returns definition and dynamic asset tags.
func (s *Spec) AllAssetTags() tag.Container {
	all := s.Def.AssetTags.Clone()
	all.AppendContainer(s.DynamicAssetTags)
	return all
}

// OwningTags returns asset and granted tags, used by queries.
func (s *Spec) OwningTags() tag.Container {
	all := s.AllAssetTags()
	all.AppendContainer(s.AllGrantedTags())
	return all
}

// CaptureAttributeDataFromSource snapshots every source capture from the
// instigator's aggregators. Source captures are always snapshots.
func (s *Spec) CaptureAttributeDataFromSource(source AggregatorLookup) {
	for i := range s.captures {
		c := &s.captures[i]
		if c.def.Source != CaptureFromSource {
			continue
		}
		if agg := source.Aggregator(c.def.Attribute); agg != nil {
			c.snapshot = agg.Clone()
		}
	}
}

// CaptureAttributeDataFromTarget snapshots target snapshot captures and
// links live target captures to target.
func (s *Spec) CaptureAttributeDataFromTarget(target AggregatorLookup) {
	s.liveTarget = target
	for i := range s.captures {
		c := &s.captures[i]
		if c.def.Source != CaptureFromTarget || !c.def.Snapshot || c.snapshot != nil {
			continue
		}
		if agg := target.Aggregator(c.def.Attribute); agg != nil {
			c.snapshot = agg.Clone()
		}
	}
}

// liveTargetCaptures returns the attributes read live from the target.
func (s *Spec) liveTargetCaptures() []attribute.Attribute {
	var out []attribute.Attribute
	for _, c := range s.captures {
		if c.def.Source == CaptureFromTarget && !c.def.Snapshot {
			out = append(out, c.def.Attribute)
		}
	}
	return out
}

func (s *Spec) capturedAttributeValue(def CaptureDefinition, policy AttributeCalcPolicy, ch aggregator.Channel) (float64, error) {
	var agg *aggregator.Aggregator
	for _, c := range s.captures {
		if c.def != def {
			continue
		}
		if c.snapshot != nil {
			agg = c.snapshot
		} else if def.Source == CaptureFromTarget && !def.Snapshot && s.liveTarget != nil {
			agg = s.liveTarget.Aggregator(def.Attribute)
		}
		break
	}
	if agg == nil {
		return 0, fmt.Errorf("%s: %w", def.Attribute, ErrAttributeNotCaptured)
	}

	params := aggregator.EvaluateParams{
		SourceTags: s.CapturedSourceTags,
		TargetTags: s.CapturedTargetTags,
	}
	switch policy {
	case AttributeBaseValue:
		return agg.BaseValue(), nil
	case AttributeBonusMagnitude:
		return agg.EvaluateBonus(params), nil
	case AttributeMagnitudeToChannel:
		return agg.EvaluateToChannel(params, ch), nil
	default:
		return agg.Evaluate(params), nil
	}
}

// CalculateModifierMagnitudes evaluates every modifier. A failed calculation
// yields 0 and logs a warning.
func (s *Spec) CalculateModifierMagnitudes() {
	if len(s.modMagnitudes) != len(s.Def.Modifiers) {
		s.modMagnitudes = make([]float64, len(s.Def.Modifiers))
	}
	for i, mod := range s.Def.Modifiers {
		v, err := mod.Magnitude.Calculate(s)
		if err != nil {
			slog.Warn("effect: modifier magnitude failed, using 0",
				"effect", s.Def.Name,
				"modifier", i,
				"attribute", mod.Attribute,
				"kind", mod.Magnitude.Kind,
				"error", err)
			v = 0
		}
		s.modMagnitudes[i] = v
	}
}

// ModifierMagnitude returns the evaluated single-stack magnitude of
// modifier i.
func (s *Spec) ModifierMagnitude(i int) float64 {
	if i < 0 || i >= len(s.modMagnitudes) {
		return 0
	}
	return s.modMagnitudes[i]
}

// StackedModifierMagnitude returns the magnitude of modifier i scaled by
// the stack count.
func (s *Spec) StackedModifierMagnitude(i int) float64 {
	if i < 0 || i >= len(s.Def.Modifiers) {
		return 0
	}
	return aggregator.StackedMagnitude(s.Def.Modifiers[i].Op, s.ModifierMagnitude(i), s.StackCount)
}

// calculateDuration computes Duration from the definition unless locked.
func (s *Spec) calculateDuration() {
	switch s.Def.DurationPolicy {
	case Instant:
		s.Duration = DurationInstant
	case Infinite:
		s.Duration = DurationInfinite
	case HasDuration:
		d, err := s.Def.DurationMagnitude.Calculate(s)
		switch {
		case errors.Is(err, ErrAttributeNotCaptured):
			// Target captures are filled in on application.
			slog.Debug("effect: duration waits for capture", "effect", s.Def.Name)
		case err != nil:
			slog.Warn("effect: duration magnitude failed",
				"effect", s.Def.Name, "error", err)
		}
		if d <= 0 {
			d = minModifiedDuration
		}
		s.Duration = d
	}
}

// recalculateDuration is called when the spec is applied, after target
// capture.
func (s *Spec) recalculateDuration() {
	if s.durationLocked {
		return
	}
	s.calculateDuration()
}

// CueParams builds cue parameters for this spec.
func (s *Spec) CueParams(key prediction.Key) cue.Params {
	magnitude := 0.0
	if len(s.Def.Modifiers) > 0 {
		magnitude = s.StackedModifierMagnitude(0)
	}
	return cue.Params{
		EffectName:    s.Def.Name,
		Level:         s.Level,
		StackCount:    s.StackCount,
		Magnitude:     magnitude,
		Instigator:    s.Context.InstigatorID(),
		EffectCauser:  s.Context.EffectCauser,
		PredictionKey: key,
		SourceTags:    s.CapturedSourceTags.Clone(),
		TargetTags:    s.CapturedTargetTags.Clone(),
	}
}
