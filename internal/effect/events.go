package effect

import (
	"fmt"

	"github.com/udisondev/abilitysystem/internal/attribute"
)

// ChangeKind is a discrete, replicable mutation of a container.
type ChangeKind int8

const (
	ChangeAdded ChangeKind = iota
	ChangeRemoved
	ChangeStackCount
	ChangeInhibition
	ChangeTime
	ChangeLevel
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeStackCount:
		return "stack_count"
	case ChangeInhibition:
		return "inhibition"
	case ChangeTime:
		return "time"
	case ChangeLevel:
		return "level"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int8(k))
	}
}

// ChangeEvent is emitted once per structural or replicated-state mutation.
// Dynamic fields are captured when the mutation happens, even if the event
// is delivered after a scope lock is released.
type ChangeEvent struct {
	Kind       ChangeKind
	Handle     Handle
	Effect     *ActiveEffect
	StackCount int32
	Inhibited  bool
	Premature  bool
	StartTime  float64
	Duration   float64
	Level      float64
}

// AttributeChange is delivered to attribute value delegates.
type AttributeChange struct {
	Attribute attribute.Attribute
	OldValue  float64
	NewValue  float64
}

func newChangeEvent(kind ChangeKind, ae *ActiveEffect) ChangeEvent {
	return ChangeEvent{
		Kind:       kind,
		Handle:     ae.Handle,
		Effect:     ae,
		StackCount: ae.Spec.StackCount,
		Inhibited:  ae.IsInhibited,
		StartTime:  ae.StartWorldTime,
		Duration:   ae.Spec.Duration,
		Level:      ae.Spec.Level,
	}
}
