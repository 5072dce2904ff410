package cue

import (
	"slices"

	"github.com/udisondev/abilitysystem/internal/tag"
)

// Invocation is one recorded cue.
type Invocation struct {
	Target string
	Tag    tag.Tag
	Event  Event
	Params Params
}

// Recorder keeps every invocation in order. Used by the simulation host to
// forward cues to observers and by tests.
type Recorder struct {
	calls []Invocation
}

// InvokeCue implements Dispatcher.
func (r *Recorder) InvokeCue(target string, cueTag tag.Tag, event Event, params Params) {
	r.calls = append(r.calls, Invocation{Target: target, Tag: cueTag, Event: event, Params: params})
}

// Calls returns a copy of the recorded invocations.
func (r *Recorder) Calls() []Invocation {
	return slices.Clone(r.calls)
}

// Count returns how many times event fired for cueTag.
func (r *Recorder) Count(cueTag tag.Tag, event Event) int {
	n := 0
	for _, c := range r.calls {
		if c.Tag == cueTag && c.Event == event {
			n++
		}
	}
	return n
}

// Events returns the recorded events for cueTag in order.
func (r *Recorder) Events(cueTag tag.Tag) []Event {
	var out []Event
	for _, c := range r.calls {
		if c.Tag == cueTag {
			out = append(out, c.Event)
		}
	}
	return out
}

// Drain returns and clears the recorded invocations.
func (r *Recorder) Drain() []Invocation {
	out := r.calls
	r.calls = nil
	return out
}

// Reset clears the recording.
func (r *Recorder) Reset() {
	r.calls = nil
}
