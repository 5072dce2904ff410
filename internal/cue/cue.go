package cue

import (
	"fmt"
	"log/slog"

	"github.com/udisondev/abilitysystem/internal/prediction"
	"github.com/udisondev/abilitysystem/internal/tag"
)

//go:generate go tool mockgen -destination=./mocks/dispatcher_mock.go -package=mocks . Dispatcher

// Event is a lifecycle transition of an effect that presentation reacts to.
type Event int8

const (
	OnActive    Event = iota // effect became active (first application or un-inhibited)
	WhileActive              // effect is active; fired alongside OnActive and on late join
	Executed                 // instant or periodic execution
	Removed                  // effect removed or inhibited
)

func (e Event) String() string {
	switch e {
	case OnActive:
		return "OnActive"
	case WhileActive:
		return "WhileActive"
	case Executed:
		return "Executed"
	case Removed:
		return "Removed"
	default:
		return fmt.Sprintf("Event(%d)", int8(e))
	}
}

// Params describes the effect that triggered a cue.
type Params struct {
	EffectName    string         `json:"effect"`
	Level         float64        `json:"level"`
	StackCount    int32          `json:"stacks"`
	Magnitude     float64        `json:"magnitude"`
	Instigator    string         `json:"instigator,omitempty"`
	EffectCauser  string         `json:"causer,omitempty"`
	PredictionKey prediction.Key `json:"prediction_key"`
	SourceTags    tag.Container  `json:"-"`
	TargetTags    tag.Container  `json:"-"`
}

// Dispatcher delivers cue events to the presentation layer.
type Dispatcher interface {
	// InvokeCue fires one event for one cue tag on target.
	InvokeCue(target string, cueTag tag.Tag, event Event, params Params)
}

// LogDispatcher writes every cue to slog at debug level.
type LogDispatcher struct{}

// InvokeCue implements Dispatcher.
func (LogDispatcher) InvokeCue(target string, cueTag tag.Tag, event Event, params Params) {
	slog.Debug("gameplay cue",
		"target", target,
		"cue", cueTag,
		"event", event,
		"effect", params.EffectName,
		"stacks", params.StackCount,
		"key", params.PredictionKey)
}

// Multi fans one invocation out to several dispatchers in order.
type Multi []Dispatcher

// InvokeCue implements Dispatcher.
func (m Multi) InvokeCue(target string, cueTag tag.Tag, event Event, params Params) {
	for _, d := range m {
		d.InvokeCue(target, cueTag, event, params)
	}
}
