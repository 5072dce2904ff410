package abilitysystem

// RejectReason names the check that refused an application.
type RejectReason string

const (
	RejectAuthority          RejectReason = "authority"
	RejectPeriodicPrediction RejectReason = "periodic_prediction"
	RejectImmunity           RejectReason = "immunity"
	RejectInvalidAttribute   RejectReason = "invalid_attribute"
	RejectChance             RejectReason = "chance"
	RejectTagRequirements    RejectReason = "tag_requirements"
	RejectCustomRequirement  RejectReason = "custom_requirement"
	RejectStacking           RejectReason = "stacking"
)

// Metrics receives effect lifecycle counters. Implementations must be safe
// for concurrent use; one Metrics is shared by every component.
type Metrics interface {
	EffectApplied(effect string)
	EffectRejected(effect string, reason RejectReason)
	EffectRemoved(effect string, premature bool)
	PeriodicExecuted(effect string)
}

type nopMetrics struct{}

func (nopMetrics) EffectApplied(string)                {}
func (nopMetrics) EffectRejected(string, RejectReason) {}
func (nopMetrics) EffectRemoved(string, bool)          {}
func (nopMetrics) PeriodicExecuted(string)             {}
