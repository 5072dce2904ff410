package aggregator

import (
	"fmt"
	"slices"

	"github.com/udisondev/abilitysystem/internal/tag"
)

// Handle identifies the active effect that registered a mod.
type Handle int64

// ModOp defines how a mod combines with the running value.
type ModOp int8

const (
	OpAdditive       ModOp = iota // value + magnitude
	OpMultiplicative              // value * magnitude (magnitude is a factor, 1.2 = +20%)
	OpDivision                    // value / magnitude
	OpOverride                    // value = magnitude, short-circuits evaluation
	numOps
)

func (op ModOp) String() string {
	switch op {
	case OpAdditive:
		return "Additive"
	case OpMultiplicative:
		return "Multiplicative"
	case OpDivision:
		return "Division"
	case OpOverride:
		return "Override"
	default:
		return fmt.Sprintf("ModOp(%d)", int8(op))
	}
}

// IsValid reports whether op is a known operation.
func (op ModOp) IsValid() bool {
	return op >= OpAdditive && op < numOps
}

// ParseModOp parses the names returned by String.
func ParseModOp(s string) (ModOp, error) {
	for op := OpAdditive; op < numOps; op++ {
		if op.String() == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown mod op %q", s)
}

// Channel orders groups of mods. The output of channel N is the input of
// channel N+1.
type Channel int8

const (
	ChannelDefault Channel = 0
	MaxChannel     Channel = 9
	NumChannels            = int(MaxChannel) + 1
)

// IsValid reports whether c is in range.
func (c Channel) IsValid() bool {
	return c >= 0 && c <= MaxChannel
}

// Mod is one contribution of one active effect to one attribute.
type Mod struct {
	Magnitude  float64
	Op         ModOp
	Channel    Channel
	SourceReqs tag.Requirements
	TargetReqs tag.Requirements

	// IsPredicted marks mods of client-predicted effects.
	IsPredicted bool
	// Inhibited mods stay registered but never qualify.
	Inhibited bool

	Handle   Handle
	ModIndex int // index of the modifier within its effect definition
}

// EvaluateParams carries the context of one evaluation.
type EvaluateParams struct {
	SourceTags        tag.Container
	TargetTags        tag.Container
	IncludePredictive bool
	IgnoreHandles     []Handle
}

// Qualifies reports whether m contributes under p.
func (m *Mod) Qualifies(p EvaluateParams) bool {
	if m.Inhibited {
		return false
	}
	if m.IsPredicted && !p.IncludePredictive {
		return false
	}
	if len(p.IgnoreHandles) > 0 && slices.Contains(p.IgnoreHandles, m.Handle) {
		return false
	}
	if !m.SourceReqs.IsEmpty() && !m.SourceReqs.RequirementsMet(p.SourceTags) {
		return false
	}
	if !m.TargetReqs.IsEmpty() && !m.TargetReqs.RequirementsMet(p.TargetTags) {
		return false
	}
	return true
}

// StackedMagnitude scales a single-application magnitude by stack count.
// Additive: m*n. Multiplicative and Division: 1+(m-1)*n. Override: m.
func StackedMagnitude(op ModOp, magnitude float64, stacks int32) float64 {
	n := float64(max(stacks, 1))
	switch op {
	case OpAdditive:
		return magnitude * n
	case OpMultiplicative, OpDivision:
		return 1 + (magnitude-1)*n
	default:
		return magnitude
	}
}
