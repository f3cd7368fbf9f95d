package locator

import (
	"fmt"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/instrument"
)

// BinaryLocator prepares type lookup for a single load attempt.
type BinaryLocator interface {
	// Initialize opens a scoped context for the named type whose bytes are
	// about to be defined by loader. Callers must Close the context.
	Initialize(name string, binary []byte, loader instrument.Loader) (Initialized, error)
}

// Initialized is a scoped lookup context. Close releases any resources it
// holds; using the pool afterwards fails with ErrClosed.
type Initialized interface {
	TypePool() TypePool
	ClassFileLocator() ClassFileLocator
	Close() error
}

// scope guards a pool and locator against use after Close.
type scope struct {
	pool    TypePool
	locator ClassFileLocator
	closed  atomic.Bool
}

func (s *scope) TypePool() TypePool {
	return closablePool{s}
}

func (s *scope) ClassFileLocator() ClassFileLocator {
	return LocatorFunc(func(name string) ([]byte, error) {
		if s.closed.Load() {
			return nil, ErrClosed
		}
		return s.locator.Locate(name)
	})
}

func (s *scope) Close() error {
	s.closed.Store(true)
	return nil
}

type closablePool struct {
	s *scope
}

func (p closablePool) Describe(name string) Resolution {
	if p.s.closed.Load() {
		return Unresolved(ErrClosed)
	}
	return p.s.pool.Describe(name)
}

// ---------------------------------------------------------------------------
// Default: fresh pool per attempt
// ---------------------------------------------------------------------------

// Default resolves the type being loaded from its own bytes, then from the
// loader, then from an optional class path. Each attempt gets a fresh pool.
type Default struct {
	ClassPath ClassFileLocator
}

func (d Default) Initialize(name string, binary []byte, loader instrument.Loader) (Initialized, error) {
	loc := Compound(ForBytes(name, binary), ForLoader(loader), d.ClassPath)
	return &scope{pool: NewPool(loc), locator: loc}, nil
}

// ---------------------------------------------------------------------------
// Cached: shared cache across attempts
// ---------------------------------------------------------------------------

// Cached is like Default but shares descriptions of referenced types across
// attempts, keyed by loader. The type being loaded is always described from
// the bytes handed to Initialize. Concurrent misses for one key are
// collapsed into a single decode.
type Cached struct {
	classPath ClassFileLocator
	cache     *gocache.Cache
	group     singleflight.Group
}

// NewCached creates a cached binary locator whose entries expire after ttl.
func NewCached(classPath ClassFileLocator, ttl time.Duration) *Cached {
	return &Cached{
		classPath: classPath,
		cache:     gocache.New(ttl, 2*ttl),
	}
}

func (c *Cached) Initialize(name string, binary []byte, loader instrument.Loader) (Initialized, error) {
	loc := Compound(ForBytes(name, binary), ForLoader(loader), c.classPath)
	shared := &sharedCache{
		owner:  c,
		prefix: instrument.LoaderID(loader) + "\x00",
		skip:   name,
	}
	pool := &cachedPool{
		owner:   c,
		primary: name,
		prefix:  shared.prefix,
		inner:   NewPoolWithCache(loc, shared),
	}
	return &scope{pool: pool, locator: loc}, nil
}

// Len returns the number of cached descriptions.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}

// Flush drops all cached descriptions.
func (c *Cached) Flush() {
	c.cache.Flush()
}

type sharedCache struct {
	owner  *Cached
	prefix string
	skip   string
}

func (s *sharedCache) Get(name string) (*classfile.TypeDescription, bool) {
	if name == s.skip {
		return nil, false
	}
	v, found := s.owner.cache.Get(s.prefix + name)
	if !found {
		return nil, false
	}
	td, ok := v.(*classfile.TypeDescription)
	return td, ok
}

func (s *sharedCache) Put(name string, td *classfile.TypeDescription) {
	if name == s.skip {
		return
	}
	s.owner.cache.SetDefault(s.prefix+name, td)
}

type cachedPool struct {
	owner   *Cached
	primary string
	prefix  string
	inner   *Pool
}

func (p *cachedPool) Describe(name string) Resolution {
	if name == p.primary {
		return p.inner.Describe(name)
	}
	v, err, _ := p.owner.group.Do(p.prefix+name, func() (any, error) {
		return p.inner.Describe(name).Resolve()
	})
	if err != nil {
		return Unresolved(err)
	}
	td, ok := v.(*classfile.TypeDescription)
	if !ok {
		return Unresolved(fmt.Errorf("locator: unexpected cache entry for %s", name))
	}
	return Resolved(td)
}
