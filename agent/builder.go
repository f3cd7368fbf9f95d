// Package agent installs type transformations into a host. A Builder
// collects matcher/transformer pairs and options; Install freezes them into
// one ExecutingTransformer registered as the host's load hook.
package agent

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/chazu/transmute/dynamic"
	"github.com/chazu/transmute/instrument"
	"github.com/chazu/transmute/locator"
	"github.com/chazu/transmute/nexus"
)

// Builder is an immutable agent configuration. Every configuring method
// returns a new Builder.
type Builder struct {
	byteBuddy        *dynamic.ByteBuddy
	binaryLocator    locator.BinaryLocator
	listener         Listener
	selfInit         bool
	nexus            *nexus.Nexus
	retransformation bool
	nativePrefix     string
	transformations  Transformations
}

// New returns a builder with self-initialization enabled, the default
// binary locator and no listener.
func New() Builder {
	return Builder{
		byteBuddy:     dynamic.New(),
		binaryLocator: locator.Default{},
		listener:      NoOpListener{},
		selfInit:      true,
	}
}

// Default is New with a logging listener.
func Default() Builder {
	return New().WithListener(NewLoggingListener(nil))
}

// Identified is a builder with a pending matcher.
type Identified struct {
	b Builder
	m RawMatcher
}

// Type starts a transformation for attempts accepted by m.
func (b Builder) Type(m RawMatcher) Identified {
	return Identified{b: b, m: m}
}

// Transform completes the transformation. Pairs are matched in the order
// they were added.
func (i Identified) Transform(t Transformer) Builder {
	b := i.b
	ts := make(Transformations, len(b.transformations), len(b.transformations)+1)
	copy(ts, b.transformations)
	b.transformations = append(ts, transformation{matcher: i.m, transformer: t})
	return b
}

// WithBinaryLocator replaces the binary locator.
func (b Builder) WithBinaryLocator(l locator.BinaryLocator) Builder {
	b.binaryLocator = l
	return b
}

// WithListener replaces the listener.
func (b Builder) WithListener(l Listener) Builder {
	b.listener = l
	return b
}

// WithListeners adds listeners to the current one.
func (b Builder) WithListeners(ls ...Listener) Builder {
	all := CompoundListener{}
	if _, noop := b.listener.(NoOpListener); !noop && b.listener != nil {
		all = append(all, b.listener)
	}
	b.listener = append(all, ls...)
	return b
}

// DisableSelfInitialization leaves loaded-type initializers unapplied.
func (b Builder) DisableSelfInitialization() Builder {
	b.selfInit = false
	return b
}

// WithNexus sets the Nexus used for self-initialization. Without one,
// Install uses the host's when it provides one.
func (b Builder) WithNexus(n *nexus.Nexus) Builder {
	b.nexus = n
	return b
}

// AllowRetransformation registers the hook for retransformations and
// retransforms matching loaded types at installation.
func (b Builder) AllowRetransformation() Builder {
	b.retransformation = true
	return b
}

// WithByteBuddy replaces the builder factory.
func (b Builder) WithByteBuddy(bb *dynamic.ByteBuddy) Builder {
	b.byteBuddy = bb
	return b
}

// WithNativeMethodPrefix renames native methods that get intercepted by
// prepending prefix, which the host is told about at installation.
func (b Builder) WithNativeMethodPrefix(prefix string) (Builder, error) {
	if prefix == "" {
		return b, &ConfigurationError{Option: "native method prefix", Reason: "must not be empty"}
	}
	b.nativePrefix = prefix
	return b, nil
}

// ---------------------------------------------------------------------------
// Installation
// ---------------------------------------------------------------------------

// Install registers the agent with the host.
func (b Builder) Install(inst instrument.Instrumentation) (*Installation, error) {
	strategy, err := b.strategy(inst)
	if err != nil {
		return nil, err
	}
	if b.retransformation && !inst.IsRetransformClassesSupported() {
		return nil, &ConfigurationError{Option: "retransformation", Reason: "not supported by the host"}
	}

	var names dynamic.MethodNameTransformer = dynamic.NewSuffixing()
	if b.nativePrefix != "" {
		names = dynamic.NativePrefixing{Prefix: b.nativePrefix, Fallback: names}
	}
	listener := b.listener
	if listener == nil {
		listener = NoOpListener{}
	}

	et := &ExecutingTransformer{
		byteBuddy:       b.byteBuddy,
		names:           names,
		binaryLocator:   b.binaryLocator,
		listener:        listener,
		strategy:        strategy,
		transformations: b.transformations,
	}
	inst.AddTransformer(et, b.retransformation)
	installation := &Installation{ID: uuid.New(), inst: inst, transformer: et}

	if b.nativePrefix != "" {
		if err := inst.SetNativeMethodPrefix(et, b.nativePrefix); err != nil {
			installation.Reset()
			return nil, fmt.Errorf("agent: setting native method prefix: %w", err)
		}
	}
	if b.retransformation {
		if err := b.retransform(inst); err != nil {
			installation.Reset()
			return nil, err
		}
	}
	return installation, nil
}

func (b Builder) strategy(inst instrument.Instrumentation) (InitializationStrategy, error) {
	if !b.selfInit {
		return Disabled{}, nil
	}
	n := b.nexus
	if p, ok := inst.(NexusProvider); n == nil && ok {
		n = p.Nexus()
	}
	if n == nil {
		return nil, &ConfigurationError{Option: "self-initialization", Reason: "no nexus available"}
	}
	return SelfInjection{Nexus: n}, nil
}

// retransform triggers retransformation of every loaded type a registered
// matcher accepts.
func (b Builder) retransform(inst instrument.Instrumentation) error {
	var matches []instrument.Class
	for _, c := range inst.AllLoadedClasses() {
		// Types that cannot be described are not candidates.
		if ok, err := b.matchesLoaded(c); err == nil && ok {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	if err := inst.RetransformClasses(matches...); err != nil {
		return fmt.Errorf("agent: retransforming %d types: %w", len(matches), err)
	}
	return nil
}

func (b Builder) matchesLoaded(c instrument.Class) (bool, error) {
	scope, err := b.binaryLocator.Initialize(c.Name(), c.Bytes(), c.Loader())
	if err != nil {
		return false, &ResolutionError{Name: c.Name(), Err: err}
	}
	defer scope.Close()

	td, err := scope.TypePool().Describe(c.Name()).Resolve()
	if err != nil {
		return false, &ResolutionError{Name: c.Name(), Err: err}
	}
	_, ok := b.transformations.Resolve(td, c.Loader(), c, c.ProtectionDomain())
	return ok, nil
}

// Installation is a registered agent.
type Installation struct {
	ID uuid.UUID

	inst        instrument.Instrumentation
	transformer *ExecutingTransformer

	once sync.Once
}

// Transformer returns the hook registered with the host.
func (i *Installation) Transformer() *ExecutingTransformer {
	return i.transformer
}

// Reset removes the hook from the host. It reports whether this call
// removed it; later calls do nothing and return false.
func (i *Installation) Reset() bool {
	removed := false
	i.once.Do(func() {
		removed = i.inst.RemoveTransformer(i.transformer)
	})
	return removed
}
