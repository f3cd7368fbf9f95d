// Package locator finds binary representations of types and describes them.
//
// A ClassFileLocator returns raw class file bytes by type name. A TypePool
// decodes those bytes into type descriptions, resolving superclasses
// through the same locator. A BinaryLocator creates a scoped pool for one
// load attempt, seeded with the bytes the host is about to define.
package locator

import (
	"errors"
	"fmt"

	"github.com/chazu/transmute/instrument"
)

// ErrNotFound indicates that no binary representation exists for a name.
var ErrNotFound = errors.New("locator: type not found")

// ErrClosed indicates use of a scoped context after Close.
var ErrClosed = errors.New("locator: context closed")

// ClassFileLocator returns the binary representation of a named type.
// Locate returns an error wrapping ErrNotFound when the type is unknown.
type ClassFileLocator interface {
	Locate(name string) ([]byte, error)
}

// LocatorFunc adapts a function to ClassFileLocator.
type LocatorFunc func(name string) ([]byte, error)

func (f LocatorFunc) Locate(name string) ([]byte, error) { return f(name) }

// NoOp locates nothing.
var NoOp ClassFileLocator = LocatorFunc(func(name string) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
})

// ForBytes locates exactly one type from bytes already in memory.
func ForBytes(name string, binary []byte) ClassFileLocator {
	return LocatorFunc(func(n string) ([]byte, error) {
		if n != name {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, n)
		}
		return binary, nil
	})
}

// ForMap locates types from an in-memory table.
func ForMap(types map[string][]byte) ClassFileLocator {
	return LocatorFunc(func(n string) ([]byte, error) {
		b, ok := types[n]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, n)
		}
		return b, nil
	})
}

// ForLoader locates types visible to a host loader. A nil loader locates
// nothing.
func ForLoader(l instrument.Loader) ClassFileLocator {
	if l == nil {
		return NoOp
	}
	return LocatorFunc(func(n string) ([]byte, error) {
		b, ok := l.Locate(n)
		if !ok {
			return nil, fmt.Errorf("%w: %s in loader %q", ErrNotFound, n, l.ID())
		}
		return b, nil
	})
}

// Compound queries locators in order and returns the first hit. Errors other
// than ErrNotFound stop the search.
func Compound(locators ...ClassFileLocator) ClassFileLocator {
	return LocatorFunc(func(n string) ([]byte, error) {
		for _, l := range locators {
			if l == nil {
				continue
			}
			b, err := l.Locate(n)
			if err == nil {
				return b, nil
			}
			if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, n)
	})
}
