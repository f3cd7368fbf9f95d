package host

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/instrument"
	"github.com/chazu/transmute/locator"
)

const maxHierarchyDepth = 64

// ErrAlreadyDefined is returned when a loader is asked to define a type it
// has defined before.
var ErrAlreadyDefined = errors.New("host: type already defined")

// Loader defines classes from a source of class files. Loads of distinct
// names proceed concurrently; concurrent loads of one name share a single
// definition.
type Loader struct {
	rt     *Runtime
	id     string
	source locator.ClassFileLocator
	pd     *instrument.ProtectionDomain

	mu      sync.RWMutex
	classes map[string]*Class
	order   []*Class

	group singleflight.Group
}

func (l *Loader) ID() string { return l.id }

// Locate returns the current bytes of a defined class, or the bytes the
// loader's source has for name.
func (l *Loader) Locate(name string) ([]byte, bool) {
	if c, ok := l.lookup(name); ok {
		return c.Bytes(), true
	}
	if l.source == nil {
		return nil, false
	}
	b, err := l.source.Locate(name)
	return b, err == nil
}

// Class returns a defined class without loading it.
func (l *Loader) Class(name string) (*Class, bool) {
	return l.lookup(name)
}

// Classes returns the classes defined so far in definition order.
func (l *Loader) Classes() []*Class {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Class(nil), l.order...)
}

func (l *Loader) lookup(name string) (*Class, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.classes[name]
	return c, ok
}

// Load returns the class for name, defining it from the loader's source
// through the registered transformers on first use.
func (l *Loader) Load(name string) (*Class, error) {
	if c, ok := l.lookup(name); ok {
		return c, nil
	}
	v, err, _ := l.group.Do(name, func() (any, error) {
		if c, ok := l.lookup(name); ok {
			return c, nil
		}
		if l.source == nil {
			return nil, fmt.Errorf("host: loading %s in %s: %w", name, l.id, locator.ErrNotFound)
		}
		binary, err := l.source.Locate(name)
		if err != nil {
			return nil, fmt.Errorf("host: loading %s in %s: %w", name, l.id, err)
		}
		base, current := l.rt.transformLoad(l, name, l.pd, binary)
		return l.define(name, base, current, l.pd)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Class), nil
}

// Inject defines a class from the given bytes without running transformers.
func (l *Loader) Inject(name string, binary []byte, pd *instrument.ProtectionDomain) (instrument.Class, error) {
	if pd == nil {
		pd = l.pd
	}
	c, err := l.define(name, binary, binary, pd)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (l *Loader) define(name string, base, current []byte, pd *instrument.ProtectionDomain) (*Class, error) {
	cf, err := classfile.Unmarshal(current)
	if err != nil {
		return nil, fmt.Errorf("host: defining %s: %w", name, err)
	}
	if cf.Name != name {
		return nil, fmt.Errorf("host: defining %s: class file declares %s", name, cf.Name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.classes[name]; ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrAlreadyDefined, name, l.id)
	}
	c := newClass(l, cf, base, current, pd)
	l.classes[name] = c
	l.order = append(l.order, c)
	return c, nil
}
