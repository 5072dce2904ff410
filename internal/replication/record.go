// Package replication streams the effect state of authoritative components
// to remote observers and mirrors it into non-authoritative components.
package replication

import (
	"strconv"

	"github.com/udisondev/abilitysystem/internal/abilitysystem"
	"github.com/udisondev/abilitysystem/internal/cue"
	"github.com/udisondev/abilitysystem/internal/effect"
	"github.com/udisondev/abilitysystem/internal/tag"
)

// Kind discriminates records on the wire.
type Kind string

const (
	KindHello     Kind = "hello"     // first record of every stream
	KindEffect    Kind = "effect"    // added or updated entry
	KindRemove    Kind = "remove"    // removed entry
	KindAttribute Kind = "attribute" // current value of one attribute
	KindCue       Kind = "cue"       // presentation event
)

// Record is one replicated mutation. Seq increases by one per broadcast
// record and is shared by all observers.
type Record struct {
	Kind  Kind   `json:"kind"`
	Seq   uint64 `json:"seq"`
	Owner string `json:"owner,omitempty"`

	// hello
	Fingerprint string `json:"fingerprint,omitempty"`

	Effect    *abilitysystem.ReplicatedEffect `json:"effect,omitempty"`
	Handle    effect.Handle                   `json:"handle,omitempty"`
	Attribute string                          `json:"attribute,omitempty"`
	Value     float64                         `json:"value"`
	Cue       *CueRecord                      `json:"cue,omitempty"`
}

// CueRecord is the payload of a KindCue record.
type CueRecord struct {
	Tag    tag.Tag    `json:"tag"`
	Event  cue.Event  `json:"event"`
	Params cue.Params `json:"params"`
}

// EffectRecord builds a KindEffect record for ae.
func EffectRecord(owner string, ae *effect.ActiveEffect) Record {
	re := abilitysystem.Replicate(ae)
	return Record{Kind: KindEffect, Owner: owner, Effect: &re}
}

// RemoveRecord builds a KindRemove record.
func RemoveRecord(owner string, h effect.Handle) Record {
	return Record{Kind: KindRemove, Owner: owner, Handle: h}
}

// AttributeRecord builds a KindAttribute record.
func AttributeRecord(owner, attr string, value float64) Record {
	return Record{Kind: KindAttribute, Owner: owner, Attribute: attr, Value: value}
}

// cacheKey identifies the record a later one of the same kind replaces.
func (r Record) cacheKey() string {
	switch r.Kind {
	case KindEffect:
		return r.Owner + "/e/" + handleKey(r.Effect.Handle)
	case KindRemove:
		return r.Owner + "/e/" + handleKey(r.Handle)
	case KindAttribute:
		return r.Owner + "/a/" + r.Attribute
	default:
		return ""
	}
}

func handleKey(h effect.Handle) string {
	return strconv.FormatInt(int64(h), 10)
}
