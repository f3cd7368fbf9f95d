package locator

import (
	"fmt"
	"sync"

	"github.com/chazu/transmute/classfile"
)

// maxHierarchyDepth bounds superclass resolution so cyclic hierarchies fail
// instead of recursing forever.
const maxHierarchyDepth = 64

// Resolution is the outcome of describing a type name.
type Resolution interface {
	IsResolved() bool
	Resolve() (*classfile.TypeDescription, error)
}

type resolved struct {
	td *classfile.TypeDescription
}

func (r resolved) IsResolved() bool                             { return true }
func (r resolved) Resolve() (*classfile.TypeDescription, error) { return r.td, nil }

type unresolved struct {
	err error
}

func (u unresolved) IsResolved() bool                             { return false }
func (u unresolved) Resolve() (*classfile.TypeDescription, error) { return nil, u.err }

// Resolved wraps a known description as a resolution.
func Resolved(td *classfile.TypeDescription) Resolution { return resolved{td: td} }

// Unresolved wraps a failure as a resolution.
func Unresolved(err error) Resolution { return unresolved{err: err} }

// TypePool describes types by name.
type TypePool interface {
	Describe(name string) Resolution
}

// Cache stores descriptions produced by a Pool.
type Cache interface {
	Get(name string) (*classfile.TypeDescription, bool)
	Put(name string, td *classfile.TypeDescription)
}

// mapCache is the per-pool cache used when none is supplied.
type mapCache struct {
	mu    sync.RWMutex
	types map[string]*classfile.TypeDescription
}

func newMapCache() *mapCache {
	return &mapCache{types: make(map[string]*classfile.TypeDescription)}
}

func (c *mapCache) Get(name string) (*classfile.TypeDescription, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	td, ok := c.types[name]
	return td, ok
}

func (c *mapCache) Put(name string, td *classfile.TypeDescription) {
	c.mu.Lock()
	c.types[name] = td
	c.mu.Unlock()
}

// Pool decodes class files from a locator into type descriptions,
// resolving the superclass chain eagerly.
type Pool struct {
	locator ClassFileLocator
	cache   Cache
}

// NewPool creates a pool with a private cache.
func NewPool(l ClassFileLocator) *Pool {
	return &Pool{locator: l, cache: newMapCache()}
}

// NewPoolWithCache creates a pool backed by the given cache.
func NewPoolWithCache(l ClassFileLocator, c Cache) *Pool {
	return &Pool{locator: l, cache: c}
}

// Describe resolves a type name. Primitive keywords and the built-in
// reference types resolve without consulting the locator.
func (p *Pool) Describe(name string) Resolution {
	td, err := p.describe(name, 0)
	if err != nil {
		return Unresolved(err)
	}
	return Resolved(td)
}

func (p *Pool) describe(name string, depth int) (*classfile.TypeDescription, error) {
	if builtin := builtinType(name); builtin != nil {
		return builtin, nil
	}
	if depth > maxHierarchyDepth {
		return nil, fmt.Errorf("locator: hierarchy of %s exceeds depth %d", name, maxHierarchyDepth)
	}
	if td, ok := p.cache.Get(name); ok {
		return td, nil
	}

	binary, err := p.locator.Locate(name)
	if err != nil {
		return nil, fmt.Errorf("describing %s: %w", name, err)
	}
	cf, err := classfile.Unmarshal(binary)
	if err != nil {
		return nil, fmt.Errorf("describing %s: %w", name, err)
	}
	if cf.Name != name {
		return nil, fmt.Errorf("describing %s: %w: class file declares %s", name, classfile.ErrMalformed, cf.Name)
	}

	var super *classfile.TypeDescription
	if cf.Superclass != "" {
		super, err = p.describe(cf.Superclass, depth+1)
		if err != nil {
			return nil, fmt.Errorf("superclass of %s: %w", name, err)
		}
	}

	td := classfile.ForClassFile(cf, super)
	p.cache.Put(name, td)
	return td, nil
}

func builtinType(name string) *classfile.TypeDescription {
	switch name {
	case "void", "boolean", "int", "long", "float", "double", classfile.ObjectName, classfile.StringName:
		return classfile.ForName(name)
	}
	return nil
}
