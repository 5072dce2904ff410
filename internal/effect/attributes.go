package effect

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/udisondev/abilitysystem/internal/aggregator"
	"github.com/udisondev/abilitysystem/internal/attribute"
)

// maxBroadcastIterations caps one dirty broadcast walk.
const maxBroadcastIterations = 1024

// broadcast is one dirty propagation. The affected attributes are planned
// up front and refreshed in topological order, so each is evaluated once
// after all of its inputs. parent records which attribute first reached
// each planned attribute; an edge back to an ancestor is a cycle.
type broadcast struct {
	order      []attribute.Attribute
	planned    map[attribute.Attribute]bool
	done       map[attribute.Attribute]bool
	parent     map[attribute.Attribute]attribute.Attribute
	current    attribute.Attribute
	iterations int

	// propagating is set while dependents of current are updated; the
	// aggregators they dirty are already part of the plan.
	propagating bool
}

func (b *broadcast) isAncestor(a, of attribute.Attribute) bool {
	p := of
	for range len(b.parent) + 1 {
		parent, ok := b.parent[p]
		if !ok {
			return false
		}
		if parent == a {
			return true
		}
		p = parent
	}
	return true
}

func (b *broadcast) chain(from, to attribute.Attribute) []string {
	out := []string{to.String(), from.String()}
	p := from
	for range len(b.parent) {
		parent, ok := b.parent[p]
		if !ok || parent == to {
			break
		}
		out = append(out, parent.String())
		p = parent
	}
	slices.Reverse(out)
	return out
}

// Aggregator returns the aggregator of attr, creating it from the owner's
// base value. Returns nil if the owner has no such attribute.
func (c *Container) Aggregator(attr attribute.Attribute) *aggregator.Aggregator {
	if agg, ok := c.aggregators[attr]; ok {
		return agg
	}
	base, ok := c.attrs.Base(attr)
	if !ok {
		return nil
	}
	agg := aggregator.New(base)
	agg.SetOnDirty(func(*aggregator.Aggregator) { c.onAggregatorDirty(attr) })
	c.aggregators[attr] = agg
	return agg
}

// AttributeBase returns the base value of attr.
func (c *Container) AttributeBase(attr attribute.Attribute) (float64, bool) {
	return c.attrs.Base(attr)
}

// NumericAttribute returns the current value of attr.
func (c *Container) NumericAttribute(attr attribute.Attribute) (float64, bool) {
	return c.attrs.Current(attr)
}

// SetAttributeBase replaces the base value of attr and re-evaluates it.
func (c *Container) SetAttributeBase(attr attribute.Attribute, v float64) bool {
	agg := c.Aggregator(attr)
	if agg == nil {
		return false
	}
	c.attrs.SetBase(attr, v)
	agg.SetBaseValue(v)
	return true
}

// ApplyModToAttributeBase applies one operation directly to the base value
// of attr. Used by instant and periodic executions.
func (c *Container) ApplyModToAttributeBase(attr attribute.Attribute, op aggregator.ModOp, magnitude float64) bool {
	base, ok := c.attrs.Base(attr)
	if !ok {
		slog.Warn("effect: execution on missing attribute", "owner", c.owner.ID(), "attribute", attr)
		return false
	}
	switch op {
	case aggregator.OpAdditive:
		base += magnitude
	case aggregator.OpMultiplicative:
		base *= magnitude
	case aggregator.OpDivision:
		if magnitude == 0 {
			slog.Warn("effect: division by zero skipped", "owner", c.owner.ID(), "attribute", attr)
			return false
		}
		base /= magnitude
	case aggregator.OpOverride:
		base = magnitude
	default:
		return false
	}
	return c.SetAttributeBase(attr, base)
}

// ReceiveReplicatedAttribute sets the base of attr so that, with the mods
// known locally, it evaluates to the authority's final value.
func (c *Container) ReceiveReplicatedAttribute(attr attribute.Attribute, final float64) bool {
	agg := c.Aggregator(attr)
	if agg == nil {
		return false
	}
	params := c.currentParams()
	params.IncludePredictive = false
	return c.SetAttributeBase(attr, agg.ReverseEvaluate(final, params))
}

// currentParams are the parameters the current value is evaluated with.
func (c *Container) currentParams() aggregator.EvaluateParams {
	return aggregator.EvaluateParams{
		TargetTags:        c.owner.OwnedTags(),
		IncludePredictive: !c.owner.IsAuthority(),
	}
}

func (c *Container) onAggregatorDirty(attr attribute.Attribute) {
	if c.bc != nil {
		c.enqueueBroadcast(attr)
		return
	}

	bc := c.planBroadcast(attr)
	c.bc = bc
	defer func() { c.bc = nil }()

	for len(bc.order) > 0 {
		if bc.iterations >= maxBroadcastIterations {
			slog.Warn("effect: dirty broadcast iteration cap reached",
				"owner", c.owner.ID(), "attribute", attr, "queued", len(bc.order))
			return
		}
		bc.iterations++
		next := bc.order[0]
		bc.order = bc.order[1:]
		bc.done[next] = true
		bc.current = next
		c.refreshAttribute(next, true)
	}
}

// dependentAttributes returns the attributes modified by live effects that
// read attr.
func (c *Container) dependentAttributes(attr attribute.Attribute) []attribute.Attribute {
	agg := c.aggregators[attr]
	if agg == nil {
		return nil
	}
	var out []attribute.Attribute
	for _, h := range agg.Dependents() {
		ae := c.byHandle[h]
		if ae == nil || ae.IsPendingRemove {
			continue
		}
		for _, m := range ae.modifiedAttrs {
			if !slices.Contains(out, m) {
				out = append(out, m)
			}
		}
	}
	return out
}

// planBroadcast collects every attribute reachable from root through live
// captures and orders them with Kahn's algorithm. Edges closing a cycle are
// reported and dropped; attributes still left on an undetected cycle are
// appended in discovery order.
func (c *Container) planBroadcast(root attribute.Attribute) *broadcast {
	bc := &broadcast{
		planned: map[attribute.Attribute]bool{root: true},
		done:    make(map[attribute.Attribute]bool),
		parent:  make(map[attribute.Attribute]attribute.Attribute),
	}

	discovered := []attribute.Attribute{root}
	edges := make(map[attribute.Attribute][]attribute.Attribute)
	inDegree := make(map[attribute.Attribute]int)
	for i := 0; i < len(discovered); i++ {
		from := discovered[i]
		for _, to := range c.dependentAttributes(from) {
			if to == from || bc.isAncestor(to, from) {
				c.debugCyclicAggregatorBroadcasts(bc.chain(from, to))
				continue
			}
			edges[from] = append(edges[from], to)
			inDegree[to]++
			if !bc.planned[to] {
				bc.planned[to] = true
				bc.parent[to] = from
				discovered = append(discovered, to)
			}
		}
	}

	ordered := make(map[attribute.Attribute]bool, len(discovered))
	ready := []attribute.Attribute{root}
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		ordered[next] = true
		bc.order = append(bc.order, next)
		for _, to := range edges[next] {
			inDegree[to]--
			if inDegree[to] == 0 {
				ready = append(ready, to)
			}
		}
	}
	for _, attr := range discovered {
		if ordered[attr] {
			continue
		}
		c.debugCyclicAggregatorBroadcasts([]string{root.String(), attr.String()})
		bc.order = append(bc.order, attr)
	}
	return bc
}

// enqueueBroadcast handles an aggregator dirtied during a walk. Planned
// attributes are refreshed in their turn; a new write from a listener to
// an attribute already refreshed starts another round for it.
func (c *Container) enqueueBroadcast(attr attribute.Attribute) {
	bc := c.bc
	if bc.planned[attr] && (bc.propagating || !bc.done[attr]) {
		return
	}
	if slices.Contains(bc.order, attr) {
		return
	}
	if !bc.planned[attr] {
		bc.planned[attr] = true
		bc.parent[attr] = bc.current
	}
	delete(bc.done, attr)
	bc.order = append(bc.order, attr)
}

func (c *Container) debugCyclicAggregatorBroadcasts(chain []string) {
	c.cyclicBroadcasts++
	slog.Warn("effect: cyclic aggregator broadcast",
		"owner", c.owner.ID(),
		"chain", strings.Join(chain, " -> "))
}

// refreshAttribute re-evaluates attr into its current value and, when
// propagate is set, updates the magnitudes of effects reading attr.
func (c *Container) refreshAttribute(attr attribute.Attribute, propagate bool) {
	agg := c.aggregators[attr]
	if agg == nil {
		return
	}
	v := agg.Evaluate(c.currentParams())
	agg.ClearDirty()

	old, _ := c.attrs.Current(attr)
	c.attrs.SetCurrent(attr, v)
	if old != v {
		change := AttributeChange{Attribute: attr, OldValue: old, NewValue: v}
		for _, fn := range slices.Clone(c.onAttributeChange[attr]) {
			fn(change)
		}
	}

	if !propagate {
		return
	}
	if bc := c.bc; bc != nil {
		bc.propagating = true
		defer func() { bc.propagating = false }()
	}
	for _, h := range agg.Dependents() {
		ae := c.byHandle[h]
		if ae == nil || ae.IsPendingRemove {
			continue
		}
		c.updateModMagnitudes(ae, true)
	}
}

// refreshAllAttributes re-evaluates every current value after an owner tag
// change. Captured magnitudes do not depend on owner tags.
func (c *Container) refreshAllAttributes() {
	attrs := make([]attribute.Attribute, 0, len(c.aggregators))
	for attr := range c.aggregators {
		attrs = append(attrs, attr)
	}
	slices.SortFunc(attrs, func(a, b attribute.Attribute) int {
		return strings.Compare(a.String(), b.String())
	})
	for _, attr := range attrs {
		c.refreshAttribute(attr, false)
	}
}

// updateModMagnitudes pushes the spec's stacked magnitudes into the
// registered mods of ae.
func (c *Container) updateModMagnitudes(ae *ActiveEffect, recalculate bool) {
	if recalculate {
		ae.Spec.CalculateModifierMagnitudes()
	}
	for _, attr := range ae.modifiedAttrs {
		agg := c.aggregators[attr]
		if agg == nil {
			continue
		}
		agg.UpdateModMagnitudes(ae.Handle, func(m aggregator.Mod) float64 {
			return ae.Spec.StackedModifierMagnitude(m.ModIndex)
		})
	}
}
