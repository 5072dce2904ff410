package effect

import (
	"github.com/udisondev/abilitysystem/internal/cue"
	"github.com/udisondev/abilitysystem/internal/prediction"
	"github.com/udisondev/abilitysystem/internal/tag"
)

// Owner is the entity a Container belongs to. The container calls back into
// it for everything outside its own state: owned tags, nested applications,
// cue dispatch and ability bookkeeping.
type Owner interface {
	Target

	IsAuthority() bool
	// UpdateTagCounts adds delta to the count of every tag.
	UpdateTagCounts(tags tag.Container, delta int)
	// ApplyGameplayEffectSpecToSelf is the full application entry point used
	// for overflow, expiration and conditional effects.
	ApplyGameplayEffectSpecToSelf(spec *Spec, key prediction.Key) Handle
	InvokeCue(cueTag tag.Tag, event cue.Event, params cue.Params)
	Predictions() *prediction.Delegates

	GrantAbilities(h Handle, abilities []GrantedAbility)
	RemoveAbilities(h Handle, abilities []GrantedAbility)
}
