package cue

import "github.com/udisondev/abilitysystem/internal/tag"

// Multicaster delivers OnActive and WhileActive for a re-applied stack to
// every peer observing target, including the caller. Stack changes replicate
// without an add notification, so peers learn about the cues this way.
type Multicaster interface {
	InvokeAddedAndWhileActive(target string, cueTags tag.Container, params Params)
}

// LocalMulticaster delivers to one in-process dispatcher.
type LocalMulticaster struct {
	Dispatcher Dispatcher
}

// InvokeAddedAndWhileActive implements Multicaster.
func (m LocalMulticaster) InvokeAddedAndWhileActive(target string, cueTags tag.Container, params Params) {
	for _, t := range cueTags.Tags() {
		m.Dispatcher.InvokeCue(target, t, OnActive, params)
		m.Dispatcher.InvokeCue(target, t, WhileActive, params)
	}
}
