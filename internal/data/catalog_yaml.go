package data

import (
	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/effect"
	"github.com/udisondev/abilitysystem/internal/tag"
)

// catalogFile is the YAML layout of an effect catalog.
type catalogFile struct {
	AttributeSets []attribute.Schema `yaml:"attribute_sets"`
	CurveTables   []curveTableDoc    `yaml:"curve_tables"`
	Scripts       []string           `yaml:"scripts"`
	Effects       []effectDoc        `yaml:"effects"`
}

type curveTableDoc struct {
	Name string                       `yaml:"name"`
	Rows map[string][]effect.CurveKey `yaml:"rows"`
}

type requirementsDoc struct {
	Require []tag.Tag `yaml:"require"`
	Ignore  []tag.Tag `yaml:"ignore"`
}

type curveRefDoc struct {
	Table string `yaml:"table"`
	Row   string `yaml:"row"`
}

type attributeBasedDoc struct {
	Attribute   string       `yaml:"attribute"`
	Source      string       `yaml:"source"` // source | target
	Snapshot    bool         `yaml:"snapshot"`
	Policy      string       `yaml:"policy"` // magnitude | base | bonus | to_channel
	Channel     int8         `yaml:"channel"`
	Coefficient float64      `yaml:"coefficient"`
	PreAdd      float64      `yaml:"pre_add"`
	PostAdd     float64      `yaml:"post_add"`
	Curve       *curveRefDoc `yaml:"curve"`
}

// magnitudeDoc sets exactly one of Scalar, Curve, Attribute, SetByCaller
// or Script. Coefficient scales curve and script magnitudes.
type magnitudeDoc struct {
	Scalar      *float64           `yaml:"scalar"`
	Curve       *curveRefDoc       `yaml:"curve"`
	Attribute   *attributeBasedDoc `yaml:"attribute"`
	SetByCaller string             `yaml:"set_by_caller"`
	Script      string             `yaml:"script"`
	Coefficient float64            `yaml:"coefficient"`
}

type modifierDoc struct {
	Attribute  string          `yaml:"attribute"`
	Op         string          `yaml:"op"`
	Channel    int8            `yaml:"channel"`
	Magnitude  magnitudeDoc    `yaml:"magnitude"`
	SourceTags requirementsDoc `yaml:"source_tags"`
	TargetTags requirementsDoc `yaml:"target_tags"`
}

type stackingDoc struct {
	Type            string   `yaml:"type"` // none | by_source | by_target
	Limit           int32    `yaml:"limit"`
	DurationRefresh string   `yaml:"duration_refresh"` // refresh | never
	PeriodReset     string   `yaml:"period_reset"`     // reset | never
	Expiration      string   `yaml:"expiration"`       // clear | remove_single | refresh
	DenyOverflow    bool     `yaml:"deny_overflow"`
	ClearOnOverflow bool     `yaml:"clear_on_overflow"`
	OverflowEffects []string `yaml:"overflow_effects"`
}

type immunityQueryDoc struct {
	Effect             string    `yaml:"effect"`
	OwningTagsAny      []tag.Tag `yaml:"owning_tags_any"`
	SourceTagsAny      []tag.Tag `yaml:"source_tags_any"`
	ModifyingAttribute string    `yaml:"modifying_attribute"`
}

type conditionalDoc struct {
	Effect             string    `yaml:"effect"`
	RequiredSourceTags []tag.Tag `yaml:"required_source_tags"`
}

type abilityDoc struct {
	Name  string  `yaml:"name"`
	Level float64 `yaml:"level"`
}

type effectDoc struct {
	Name string `yaml:"name"`

	Policy               string        `yaml:"policy"` // instant | infinite | has_duration
	Duration             *magnitudeDoc `yaml:"duration"`
	Period               float64       `yaml:"period"`
	ExecuteOnApplication bool          `yaml:"execute_on_application"`

	Modifiers []modifierDoc `yaml:"modifiers"`

	Chance                  float64          `yaml:"chance"`
	ApplicationRequirements []string         `yaml:"application_requirements"`
	ConditionalEffects      []conditionalDoc `yaml:"conditional_effects"`

	PrematureExpirationEffects []string `yaml:"premature_expiration_effects"`
	RoutineExpirationEffects   []string `yaml:"routine_expiration_effects"`

	Cues                                []tag.Tag `yaml:"cues"`
	RequireModifierSuccessToTriggerCues bool      `yaml:"require_modifier_success_to_trigger_cues"`
	SuppressStackingCues                bool      `yaml:"suppress_stacking_cues"`

	AssetTags             []tag.Tag       `yaml:"asset_tags"`
	GrantedTags           []tag.Tag       `yaml:"granted_tags"`
	OngoingTags           requirementsDoc `yaml:"ongoing_tags"`
	ApplicationTags       requirementsDoc `yaml:"application_tags"`
	RemovalTags           requirementsDoc `yaml:"removal_tags"`
	RemoveEffectsWithTags []tag.Tag       `yaml:"remove_effects_with_tags"`

	ImmunityTags  requirementsDoc   `yaml:"immunity_tags"`
	ImmunityQuery *immunityQueryDoc `yaml:"immunity_query"`

	Stacking stackingDoc `yaml:"stacking"`

	GrantedAbilities []abilityDoc `yaml:"granted_abilities"`
}
