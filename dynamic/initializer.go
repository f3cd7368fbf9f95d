package dynamic

import (
	"errors"

	"github.com/chazu/transmute/instrument"
)

// LoadedTypeInitializer prepares live state of a type once the host has
// defined it, typically by populating static fields the generated code
// reads.
type LoadedTypeInitializer interface {
	OnLoad(c instrument.Class) error

	// IsAlive reports whether OnLoad does anything.
	IsAlive() bool
}

// NoOpInitializer does nothing.
type NoOpInitializer struct{}

func (NoOpInitializer) OnLoad(instrument.Class) error { return nil }
func (NoOpInitializer) IsAlive() bool                 { return false }

// InitializerFunc adapts a function to LoadedTypeInitializer.
type InitializerFunc func(c instrument.Class) error

func (f InitializerFunc) OnLoad(c instrument.Class) error { return f(c) }
func (f InitializerFunc) IsAlive() bool                   { return true }

// StaticField sets a static field to a fixed value.
type StaticField struct {
	Field string
	Value any
}

func (s StaticField) OnLoad(c instrument.Class) error { return c.SetStatic(s.Field, s.Value) }
func (s StaticField) IsAlive() bool                   { return true }

// CompoundInitializer runs every initializer in order and joins their
// errors.
type CompoundInitializer []LoadedTypeInitializer

func (ci CompoundInitializer) OnLoad(c instrument.Class) error {
	var errs []error
	for _, i := range ci {
		if err := i.OnLoad(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ci CompoundInitializer) IsAlive() bool {
	for _, i := range ci {
		if i.IsAlive() {
			return true
		}
	}
	return false
}

func compound(inits []LoadedTypeInitializer) LoadedTypeInitializer {
	switch len(inits) {
	case 0:
		return NoOpInitializer{}
	case 1:
		return inits[0]
	default:
		return CompoundInitializer(append([]LoadedTypeInitializer(nil), inits...))
	}
}
