package abilitysystem

import (
	"github.com/udisondev/abilitysystem/internal/aggregator"
	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/effect"
)

// NumericAttribute returns the current value of attr.
func (c *Component) NumericAttribute(attr attribute.Attribute) (float64, bool) {
	return c.effects.NumericAttribute(attr)
}

// NumericAttributeBase returns the base value of attr.
func (c *Component) NumericAttributeBase(attr attribute.Attribute) (float64, bool) {
	return c.effects.AttributeBase(attr)
}

// SetNumericAttributeBase overwrites the base value of attr and re-evaluates
// its current value.
func (c *Component) SetNumericAttributeBase(attr attribute.Attribute, base float64) bool {
	return c.effects.SetAttributeBase(attr, base)
}

// ApplyModToAttribute applies one permanent modification to the base value
// of attr, bypassing effects.
func (c *Component) ApplyModToAttribute(attr attribute.Attribute, op aggregator.ModOp, magnitude float64) bool {
	return c.effects.ApplyModToAttributeBase(attr, op, magnitude)
}

// ReceiveReplicatedAttribute reconstructs the base value of attr from the
// current value computed by the authority.
func (c *Component) ReceiveReplicatedAttribute(attr attribute.Attribute, current float64) bool {
	return c.effects.ReceiveReplicatedAttribute(attr, current)
}

// OnAttributeChange registers fn for current-value changes of attr.
func (c *Component) OnAttributeChange(attr attribute.Attribute, fn func(effect.AttributeChange)) {
	c.effects.OnAttributeChange(attr, fn)
}
