// Package host is an in-process execution environment for class files. It
// defines classes through loaders, runs registered load hooks on every
// definition, initializes classes lazily by interpreting their static
// initializers and supports retransformation of loaded classes.
package host

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/transmute/instrument"
	"github.com/chazu/transmute/locator"
	"github.com/chazu/transmute/nexus"
)

// ErrNoNative is returned when a native method has no binding.
var ErrNoNative = errors.New("host: unsatisfied native method")

// ErrDuplicateLoader is returned when a loader id is already in use.
var ErrDuplicateLoader = errors.New("host: duplicate loader id")

type registration struct {
	transformer    instrument.ClassFileTransformer
	canRetransform bool
	nativePrefix   string
}

// Runtime implements instrument.Instrumentation.
type Runtime struct {
	nexus *nexus.Nexus
	log   commonlog.Logger

	mu            sync.RWMutex
	registrations []*registration
	natives       map[string]instrument.Callable
	loaders       []*Loader
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithNexus makes generated type initializers consult n.
func WithNexus(n *nexus.Nexus) Option {
	return func(r *Runtime) { r.nexus = n }
}

// WithLogger replaces the "transmute.host" logger.
func WithLogger(log commonlog.Logger) Option {
	return func(r *Runtime) { r.log = log }
}

// New creates a runtime with its own Nexus unless one is given.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		log:     commonlog.GetLogger("transmute.host"),
		natives: make(map[string]instrument.Callable),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.nexus == nil {
		r.nexus = nexus.New()
	}
	return r
}

// Nexus returns the Nexus generated type initializers consult.
func (r *Runtime) Nexus() *nexus.Nexus {
	return r.nexus
}

// NewLoader creates a loader reading class files from source. The id is
// the loader's identity for per-loader state such as Nexus entries, so it
// must be unique within the runtime; the empty id denotes the bootstrap
// loader and is rejected.
func (r *Runtime) NewLoader(id string, source locator.ClassFileLocator) (*Loader, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id is reserved for the bootstrap loader", ErrDuplicateLoader)
	}
	l := &Loader{
		rt:      r,
		id:      id,
		source:  source,
		pd:      &instrument.ProtectionDomain{CodeSource: id},
		classes: make(map[string]*Class),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.loaders {
		if other.id == id {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLoader, id)
		}
	}
	r.loaders = append(r.loaders, l)
	return l, nil
}

// BindNative provides the implementation of a native method.
func (r *Runtime) BindNative(typeName, method string, fn instrument.Callable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.natives[typeName+"."+method] = fn
}

// resolveNative finds the binding of a native method. A method whose name
// starts with a registered prefix also resolves to the binding of the name
// without it.
func (r *Runtime) resolveNative(typeName, method string) (instrument.Callable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name := method
	for range len(r.registrations) + 1 {
		if fn, ok := r.natives[typeName+"."+name]; ok {
			return fn, nil
		}
		stripped := false
		for _, reg := range r.registrations {
			if reg.nativePrefix != "" && strings.HasPrefix(name, reg.nativePrefix) {
				name = strings.TrimPrefix(name, reg.nativePrefix)
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrNoNative, typeName, method)
}

// ---------------------------------------------------------------------------
// instrument.Instrumentation
// ---------------------------------------------------------------------------

func (r *Runtime) AddTransformer(t instrument.ClassFileTransformer, canRetransform bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations = append(r.registrations, &registration{transformer: t, canRetransform: canRetransform})
}

func (r *Runtime) RemoveTransformer(t instrument.ClassFileTransformer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, reg := range r.registrations {
		if reg.transformer == t {
			r.registrations = append(r.registrations[:i:i], r.registrations[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Runtime) IsRetransformClassesSupported() bool { return true }

func (r *Runtime) SetNativeMethodPrefix(t instrument.ClassFileTransformer, prefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.registrations {
		if reg.transformer == t {
			reg.nativePrefix = prefix
			return nil
		}
	}
	return fmt.Errorf("host: transformer is not registered")
}

func (r *Runtime) AllLoadedClasses() []instrument.Class {
	r.mu.RLock()
	loaders := append([]*Loader(nil), r.loaders...)
	r.mu.RUnlock()

	var classes []instrument.Class
	for _, l := range loaders {
		for _, c := range l.Classes() {
			classes = append(classes, c)
		}
	}
	return classes
}

// RetransformClasses reruns the retransformation-capable hooks over the
// given classes, starting from the bytes the other hooks produced at load
// time. Static state and initialization status are kept.
func (r *Runtime) RetransformClasses(classes ...instrument.Class) error {
	var errs []error
	for _, ic := range classes {
		c, ok := ic.(*Class)
		if !ok || c.loader.rt != r {
			errs = append(errs, fmt.Errorf("host: %s was not loaded by this runtime", ic.Name()))
			continue
		}
		binary := r.transform(c.loader, c.name, c, c.pd, c.base, true)
		if err := c.redefine(binary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Hook dispatch
// ---------------------------------------------------------------------------

// transformLoad runs the hooks for a fresh load: those that cannot
// retransform first, then the others. It returns the intermediate result,
// which later retransformations start from, and the final bytes.
func (r *Runtime) transformLoad(l *Loader, name string, pd *instrument.ProtectionDomain, original []byte) (base, current []byte) {
	base = r.transform(l, name, nil, pd, original, false)
	return base, r.transform(l, name, nil, pd, base, true)
}

func (r *Runtime) transform(l *Loader, name string, redefining *Class, pd *instrument.ProtectionDomain, binary []byte, retransformable bool) []byte {
	r.mu.RLock()
	var hooks []instrument.ClassFileTransformer
	for _, reg := range r.registrations {
		if reg.canRetransform == retransformable {
			hooks = append(hooks, reg.transformer)
		}
	}
	r.mu.RUnlock()

	var cls instrument.Class
	if redefining != nil {
		cls = redefining
	}
	for _, t := range hooks {
		if out := r.callHook(t, l, name, cls, pd, binary); out != nil {
			binary = out
		}
	}
	return binary
}

// callHook runs one hook; a panicking hook leaves the bytes unchanged.
func (r *Runtime) callHook(t instrument.ClassFileTransformer, l *Loader, name string, cls instrument.Class, pd *instrument.ProtectionDomain, binary []byte) (out []byte) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("load hook panicked", "type", name, "panic", p)
			out = nil
		}
	}()
	return t.Transform(l, name, cls, pd, binary)
}
