package replication

import (
	"log/slog"
	"slices"

	"github.com/udisondev/abilitysystem/internal/abilitysystem"
	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/effect"
)

// Mirror applies records to non-authoritative components with the same IDs
// as their authoritative counterparts.
type Mirror struct {
	components map[string]*abilitysystem.Component
}

// NewMirror creates a mirror tracking components.
func NewMirror(components ...*abilitysystem.Component) *Mirror {
	m := &Mirror{components: make(map[string]*abilitysystem.Component, len(components))}
	for _, c := range components {
		m.Track(c)
	}
	return m
}

// Track adds c.
func (m *Mirror) Track(c *abilitysystem.Component) {
	if c.IsAuthority() {
		slog.Warn("mirroring into an authoritative component", "owner", c.ID())
	}
	m.components[c.ID()] = c
}

// Apply applies rec to its owner. Returns false for records of untracked
// owners, records without state and records that changed nothing.
func (m *Mirror) Apply(rec Record) bool {
	c, ok := m.components[rec.Owner]
	if !ok {
		return false
	}

	switch rec.Kind {
	case KindEffect:
		if rec.Effect == nil {
			return false
		}
		return c.ReceiveReplicatedEffect(*rec.Effect) != effect.HandleInvalid

	case KindRemove:
		return c.ReceiveReplicatedRemove(rec.Handle)

	case KindAttribute:
		attr, err := attribute.Parse(rec.Attribute)
		if err != nil {
			slog.Warn("bad replicated attribute", "owner", rec.Owner, "error", err)
			return false
		}
		return c.ReceiveReplicatedAttribute(attr, rec.Value)

	default:
		return false
	}
}

// ApplyBatch applies recs in order while the effect containers of their
// owners hold the scope lock. Structural changes and change notifications
// are flushed once the whole batch is in. Returns how many records changed
// state.
func (m *Mirror) ApplyBatch(recs []Record) int {
	var locked []*effect.Container
	for _, rec := range recs {
		c, ok := m.components[rec.Owner]
		if !ok {
			continue
		}
		ec := c.Effects()
		if slices.Contains(locked, ec) {
			continue
		}
		ec.IncrementLock()
		locked = append(locked, ec)
	}
	defer func() {
		for _, ec := range locked {
			ec.DecrementLock()
		}
	}()

	n := 0
	for _, rec := range recs {
		if m.Apply(rec) {
			n++
		}
	}
	return n
}
