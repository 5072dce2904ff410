package effect

import (
	"errors"
	"fmt"

	"github.com/udisondev/abilitysystem/internal/aggregator"
	"github.com/udisondev/abilitysystem/internal/attribute"
)

// ErrMissingSetByCaller is returned when a SetByCaller magnitude was never set.
var ErrMissingSetByCaller = errors.New("set-by-caller magnitude not set")

// ErrAttributeNotCaptured is returned when an attribute-based magnitude has
// no captured value to read.
var ErrAttributeNotCaptured = errors.New("attribute not captured")

// MagnitudeKind is the closed set of magnitude calculations.
type MagnitudeKind int8

const (
	MagnitudeScalar MagnitudeKind = iota
	MagnitudeCurve
	MagnitudeAttributeBased
	MagnitudeSetByCaller
	MagnitudeCustom
)

func (k MagnitudeKind) String() string {
	switch k {
	case MagnitudeScalar:
		return "Scalar"
	case MagnitudeCurve:
		return "CurveTable"
	case MagnitudeAttributeBased:
		return "AttributeBased"
	case MagnitudeSetByCaller:
		return "SetByCaller"
	case MagnitudeCustom:
		return "Custom"
	default:
		return fmt.Sprintf("MagnitudeKind(%d)", int8(k))
	}
}

// CaptureSource selects whose attribute a capture reads.
type CaptureSource int8

const (
	CaptureFromSource CaptureSource = iota
	CaptureFromTarget
)

// CaptureDefinition declares an attribute a spec reads.
// Snapshot captures freeze the value when captured; live captures follow the
// attribute and re-evaluate dependent mods when it changes.
type CaptureDefinition struct {
	Attribute attribute.Attribute
	Source    CaptureSource
	Snapshot  bool
}

// AttributeCalcPolicy selects which value of a captured attribute is read.
type AttributeCalcPolicy int8

const (
	AttributeMagnitude          AttributeCalcPolicy = iota // final value
	AttributeBaseValue                                     // base value only
	AttributeBonusMagnitude                                // final minus base
	AttributeMagnitudeToChannel                            // final value up to FinalChannel
)

// AttributeBased computes Coefficient * (PreMultiplyAdditive + value) +
// PostMultiplyAdditive, where value is read from a captured attribute and
// optionally mapped through Curve.
type AttributeBased struct {
	Capture              CaptureDefinition
	Policy               AttributeCalcPolicy
	FinalChannel         aggregator.Channel
	Coefficient          float64
	PreMultiplyAdditive  float64
	PostMultiplyAdditive float64
	Curve                CurveRef
}

// MagnitudeCalculation is an injected custom calculation.
type MagnitudeCalculation interface {
	CalculateMagnitude(spec *Spec) (float64, error)
}

// Magnitude describes how a modifier or duration value is computed.
type Magnitude struct {
	Kind MagnitudeKind

	// Value is the scalar value, or the coefficient for curve and custom kinds.
	Value float64

	Curve           CurveRef
	Attribute       AttributeBased
	SetByCallerName string
	Custom          MagnitudeCalculation
}

// ScalarMagnitude returns a constant magnitude.
func ScalarMagnitude(v float64) Magnitude {
	return Magnitude{Kind: MagnitudeScalar, Value: v}
}

// CurveMagnitude returns coefficient * curve(level).
func CurveMagnitude(coefficient float64, ref CurveRef) Magnitude {
	return Magnitude{Kind: MagnitudeCurve, Value: coefficient, Curve: ref}
}

// AttributeBasedMagnitude returns an attribute-based magnitude. A zero
// coefficient is treated as 1.
func AttributeBasedMagnitude(ab AttributeBased) Magnitude {
	if ab.Coefficient == 0 {
		ab.Coefficient = 1
	}
	return Magnitude{Kind: MagnitudeAttributeBased, Attribute: ab}
}

// SetByCallerMagnitude returns a magnitude supplied per spec under name.
func SetByCallerMagnitude(name string) Magnitude {
	return Magnitude{Kind: MagnitudeSetByCaller, SetByCallerName: name}
}

// CustomMagnitude returns coefficient * calc(spec).
func CustomMagnitude(coefficient float64, calc MagnitudeCalculation) Magnitude {
	return Magnitude{Kind: MagnitudeCustom, Value: coefficient, Custom: calc}
}

// Calculate evaluates the magnitude for spec.
func (m Magnitude) Calculate(spec *Spec) (float64, error) {
	switch m.Kind {
	case MagnitudeScalar:
		return m.Value, nil

	case MagnitudeCurve:
		v, err := m.Curve.Eval(spec.Level)
		if err != nil {
			return 0, err
		}
		return m.Value * v, nil

	case MagnitudeAttributeBased:
		ab := m.Attribute
		v, err := spec.capturedAttributeValue(ab.Capture, ab.Policy, ab.FinalChannel)
		if err != nil {
			return 0, err
		}
		if ab.Curve.IsSet() {
			if v, err = ab.Curve.Eval(v); err != nil {
				return 0, err
			}
		}
		return ab.Coefficient*(ab.PreMultiplyAdditive+v) + ab.PostMultiplyAdditive, nil

	case MagnitudeSetByCaller:
		v, ok := spec.SetByCallerMagnitude(m.SetByCallerName)
		if !ok {
			return 0, fmt.Errorf("%q: %w", m.SetByCallerName, ErrMissingSetByCaller)
		}
		return v, nil

	case MagnitudeCustom:
		if m.Custom == nil {
			return 0, errors.New("custom magnitude without calculation")
		}
		v, err := m.Custom.CalculateMagnitude(spec)
		if err != nil {
			return 0, err
		}
		return m.Value * v, nil

	default:
		return 0, fmt.Errorf("unknown magnitude kind %v", m.Kind)
	}
}

// captureDefinition returns the capture this magnitude reads, if any.
func (m Magnitude) captureDefinition() (CaptureDefinition, bool) {
	if m.Kind != MagnitudeAttributeBased || !m.Attribute.Capture.Attribute.IsValid() {
		return CaptureDefinition{}, false
	}
	return m.Attribute.Capture, true
}
