// Package script binds Lua functions as custom magnitude calculations and
// custom application requirements.
//
// Scripts are loaded once into an Engine and called with a read-only view of
// the spec: a table with effect, level, stacks, duration, period,
// source_tags, target_tags, set_by_caller and a source_attribute(name)
// function. Requirements also get a target table with id, tags,
// has_tag(name) and attribute(name).
package script

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Shopify/go-lua"

	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/effect"
	"github.com/udisondev/abilitysystem/internal/tag"
)

var (
	// ErrNotFunction is returned when a bound global is not a Lua function.
	ErrNotFunction = errors.New("script: global is not a function")
	// ErrNotNumber is returned when a magnitude script returns a non-number.
	ErrNotNumber = errors.New("script: result is not a number")
)

// Engine owns one Lua state. Not safe for concurrent use; calls happen on
// the goroutine that applies effects.
type Engine struct {
	l *lua.State
}

// NewEngine creates an engine with the standard Lua libraries opened.
func NewEngine() *Engine {
	l := lua.NewState()
	lua.OpenLibraries(l)
	return &Engine{l: l}
}

// Load runs a chunk, typically defining global functions.
func (e *Engine) Load(name, src string) error {
	if err := lua.LoadBuffer(e.l, src, name, ""); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	if err := e.l.ProtectedCall(0, 0, 0); err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

// LoadFile runs the chunk at path.
func (e *Engine) LoadFile(path string) error {
	if err := lua.LoadFile(e.l, path, ""); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if err := e.l.ProtectedCall(0, 0, 0); err != nil {
		return fmt.Errorf("run %s: %w", path, err)
	}
	return nil
}

// Magnitude binds the global function fn(spec) -> number.
func (e *Engine) Magnitude(fn string) (*Magnitude, error) {
	if err := e.checkFunction(fn); err != nil {
		return nil, err
	}
	return &Magnitude{e: e, fn: fn}, nil
}

// Requirement binds the global function fn(spec, target) -> boolean.
func (e *Engine) Requirement(fn string) (*Requirement, error) {
	if err := e.checkFunction(fn); err != nil {
		return nil, err
	}
	return &Requirement{e: e, fn: fn}, nil
}

func (e *Engine) checkFunction(fn string) error {
	e.l.Global(fn)
	defer e.l.Pop(1)
	if !e.l.IsFunction(-1) {
		return fmt.Errorf("%q: %w", fn, ErrNotFunction)
	}
	return nil
}

// Magnitude is a Lua-backed effect.MagnitudeCalculation.
type Magnitude struct {
	e  *Engine
	fn string
}

// Name returns the bound function name.
func (m *Magnitude) Name() string {
	return m.fn
}

// CalculateMagnitude implements effect.MagnitudeCalculation.
func (m *Magnitude) CalculateMagnitude(spec *effect.Spec) (float64, error) {
	l := m.e.l
	top := l.Top()
	defer l.SetTop(top)

	l.Global(m.fn)
	pushSpec(l, spec)
	if err := l.ProtectedCall(1, 1, 0); err != nil {
		return 0, fmt.Errorf("script %s: %w", m.fn, err)
	}
	v, ok := l.ToNumber(-1)
	if !ok {
		return 0, fmt.Errorf("script %s: %w", m.fn, ErrNotNumber)
	}
	return v, nil
}

// Requirement is a Lua-backed effect.ApplicationRequirement. Script errors
// refuse the application.
type Requirement struct {
	e  *Engine
	fn string
}

// Name returns the bound function name.
func (r *Requirement) Name() string {
	return r.fn
}

// CanApply implements effect.ApplicationRequirement.
func (r *Requirement) CanApply(spec *effect.Spec, target effect.Target) bool {
	l := r.e.l
	top := l.Top()
	defer l.SetTop(top)

	l.Global(r.fn)
	pushSpec(l, spec)
	pushTarget(l, target)
	if err := l.ProtectedCall(2, 1, 0); err != nil {
		slog.Warn("application requirement script failed",
			"script", r.fn, "effect", spec.Name(), "error", err)
		return false
	}
	return l.ToBoolean(-1)
}

func pushSpec(l *lua.State, spec *effect.Spec) {
	l.NewTable()
	l.PushString(spec.Name())
	l.SetField(-2, "effect")
	l.PushNumber(spec.Level)
	l.SetField(-2, "level")
	l.PushInteger(int(spec.StackCount))
	l.SetField(-2, "stacks")
	l.PushNumber(spec.Duration)
	l.SetField(-2, "duration")
	l.PushNumber(spec.Period)
	l.SetField(-2, "period")

	pushTags(l, spec.CapturedSourceTags)
	l.SetField(-2, "source_tags")
	pushTags(l, spec.CapturedTargetTags)
	l.SetField(-2, "target_tags")

	byCaller := spec.SetByCallerMagnitudes()
	l.CreateTable(0, len(byCaller))
	for name, v := range byCaller {
		l.PushNumber(v)
		l.SetField(-2, name)
	}
	l.SetField(-2, "set_by_caller")

	instigator := spec.Context.Instigator
	l.PushGoFunction(func(l *lua.State) int {
		if instigator == nil {
			l.PushNil()
			return 1
		}
		return pushAttribute(l, instigator, lua.CheckString(l, 1))
	})
	l.SetField(-2, "source_attribute")
}

func pushTarget(l *lua.State, target effect.Target) {
	l.NewTable()
	if target == nil {
		return
	}
	owned := target.OwnedTags()

	l.PushString(target.ID())
	l.SetField(-2, "id")
	pushTags(l, owned)
	l.SetField(-2, "tags")
	l.PushGoFunction(func(l *lua.State) int {
		l.PushBoolean(owned.HasTag(tag.Tag(lua.CheckString(l, 1))))
		return 1
	})
	l.SetField(-2, "has_tag")
	l.PushGoFunction(func(l *lua.State) int {
		return pushAttribute(l, target, lua.CheckString(l, 1))
	})
	l.SetField(-2, "attribute")
}

func pushTags(l *lua.State, c tag.Container) {
	tags := c.Tags()
	l.CreateTable(len(tags), 0)
	for i, t := range tags {
		l.PushString(string(t))
		l.RawSetInt(-2, i+1)
	}
}

func pushAttribute(l *lua.State, owner effect.Target, name string) int {
	attr, err := attribute.Parse(name)
	if err != nil {
		lua.Errorf(l, "%s", err.Error())
		return 0
	}
	v, ok := owner.NumericAttribute(attr)
	if !ok {
		l.PushNil()
		return 1
	}
	l.PushNumber(v)
	return 1
}
