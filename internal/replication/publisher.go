package replication

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/udisondev/abilitysystem/internal/abilitysystem"
	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/effect"
)

// Broadcaster receives records. *Hub implements it.
type Broadcaster interface {
	Broadcast(rec Record)
}

// Publisher turns the changes of one authoritative component into records.
// Entry changes go out as they happen; attribute values are held until
// Flush so that observers see them after the entries that produced them.
//
// All methods must be called on the goroutine that owns the component.
type Publisher struct {
	out   Broadcaster
	owner *abilitysystem.Component
	dirty map[attribute.Attribute]struct{}
}

// Publish subscribes to c and queues its current state.
func Publish(out Broadcaster, c *abilitysystem.Component) *Publisher {
	if !c.IsAuthority() {
		slog.Warn("publishing a non-authoritative component", "owner", c.ID())
	}
	p := &Publisher{
		out:   out,
		owner: c,
		dirty: make(map[attribute.Attribute]struct{}),
	}

	c.Effects().OnChange(p.onChange)

	sets := c.Effects().Attributes()
	for _, id := range sets.IDs() {
		for _, field := range sets.Get(id).Fields() {
			attr := attribute.New(id, field)
			p.dirty[attr] = struct{}{}
			c.OnAttributeChange(attr, func(ch effect.AttributeChange) {
				p.dirty[ch.Attribute] = struct{}{}
			})
		}
	}

	for _, re := range c.ReplicatedEffects() {
		out.Broadcast(Record{Kind: KindEffect, Owner: c.ID(), Effect: &re})
	}
	return p
}

func (p *Publisher) onChange(ev effect.ChangeEvent) {
	if ev.Kind == effect.ChangeRemoved {
		p.out.Broadcast(RemoveRecord(p.owner.ID(), ev.Handle))
		return
	}
	if ev.Effect == nil || ev.Effect.Replicated || ev.Effect.PredictionKey.IsLocalClientKey() {
		return
	}
	p.out.Broadcast(EffectRecord(p.owner.ID(), ev.Effect))
}

// Flush sends the current value of every attribute that changed since the
// last flush, in attribute order.
func (p *Publisher) Flush() {
	if len(p.dirty) == 0 {
		return
	}
	attrs := make([]attribute.Attribute, 0, len(p.dirty))
	for attr := range p.dirty {
		attrs = append(attrs, attr)
	}
	slices.SortFunc(attrs, func(a, b attribute.Attribute) int {
		return strings.Compare(a.String(), b.String())
	})
	clear(p.dirty)

	for _, attr := range attrs {
		v, ok := p.owner.NumericAttribute(attr)
		if !ok {
			continue
		}
		p.out.Broadcast(AttributeRecord(p.owner.ID(), attr.String(), v))
	}
}
