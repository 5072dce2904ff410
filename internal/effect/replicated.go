package effect

import (
	"slices"

	"github.com/udisondev/abilitysystem/internal/prediction"
)

// ReplicatedState is the authority-owned state of one entry as seen by a
// remote peer.
type ReplicatedState struct {
	StackCount int32   `json:"stacks"`
	Level      float64 `json:"level"`
	StartTime  float64 `json:"start_time"`
	Duration   float64 `json:"duration"`
	// Magnitudes are the authority's single-stack modifier magnitudes. When
	// empty they are calculated locally.
	Magnitudes []float64 `json:"magnitudes,omitempty"`
}

// ReplicatedState captures the state a remote peer needs to mirror ae.
func (ae *ActiveEffect) ReplicatedState() ReplicatedState {
	return ReplicatedState{
		StackCount: ae.Spec.StackCount,
		Level:      ae.Spec.Level,
		StartTime:  ae.StartWorldTime,
		Duration:   ae.Spec.Duration,
		Magnitudes: slices.Clone(ae.Spec.modMagnitudes),
	}
}

// InsertReplicated mirrors an entry received from the authority. The entry
// gets a local handle, never schedules timers and is removed only by the
// authority.
func (c *Container) InsertReplicated(spec *Spec, key prediction.Key, st ReplicatedState) *ActiveEffect {
	c.IncrementLock()
	defer c.DecrementLock()

	s := spec.Clone()
	s.Level = st.Level
	s.StackCount = max(st.StackCount, 1)
	s.SetDuration(st.Duration, true)
	s.CapturedTargetTags = c.owner.OwnedTags()

	ae := &ActiveEffect{
		Handle:                NewHandle(),
		Spec:                  s,
		PredictionKey:         key.AsReceived(),
		StartServerTime:       st.StartTime,
		CachedStartServerTime: st.StartTime,
		StartWorldTime:        st.StartTime,
		Replicated:            true,
	}
	c.byHandle[ae.Handle] = ae

	if !c.applyReplicatedMagnitudes(s, st.Magnitudes) {
		s.CaptureAttributeDataFromTarget(c)
		s.CalculateModifierMagnitudes()
		c.registerDependencies(ae)
	}
	c.onAdded(ae)
	return ae
}

// UpdateReplicated applies a newer authority state to a mirrored entry.
func (c *Container) UpdateReplicated(h Handle, st ReplicatedState) bool {
	ae := c.ActiveEffect(h)
	if ae == nil || !ae.Replicated {
		return false
	}

	c.IncrementLock()
	defer c.DecrementLock()

	ae.Spec.Level = st.Level
	c.applyReplicatedMagnitudes(ae.Spec, st.Magnitudes)

	timeChanged := ae.StartWorldTime != st.StartTime || ae.Spec.Duration != st.Duration
	ae.StartWorldTime = st.StartTime
	ae.StartServerTime = st.StartTime
	ae.Spec.Duration = st.Duration

	old := ae.Spec.StackCount
	ae.Spec.StackCount = max(st.StackCount, 1)
	c.onStackCountChange(ae, old, ae.Spec.StackCount)
	if timeChanged {
		c.onTimeChange(ae)
	}
	return true
}

func (c *Container) applyReplicatedMagnitudes(s *Spec, magnitudes []float64) bool {
	if len(magnitudes) == 0 || len(magnitudes) != len(s.Def.Modifiers) {
		return false
	}
	s.modMagnitudes = slices.Clone(magnitudes)
	return true
}
