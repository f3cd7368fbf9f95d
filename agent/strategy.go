package agent

import (
	"errors"
	"fmt"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/dynamic"
	"github.com/chazu/transmute/instrument"
	"github.com/chazu/transmute/nexus"
	"github.com/chazu/transmute/stack"
)

// InitializationStrategy decides how loaded-type initializers produced by a
// transformation reach the types they belong to.
type InitializationStrategy interface {
	// Dispatcher returns the per-attempt hooks for one type.
	Dispatcher(td *classfile.TypeDescription, loader instrument.Loader, classBeingRedefined instrument.Class) Dispatcher
}

// Dispatcher carries one load attempt through the strategy. Release must
// be safe to call after a successful Register.
//
// Entries a successful Register parks in a Nexus stay there until the host
// initializes the type. If the host never defines the returned bytes they
// are not reclaimed, and later attempts for the same type and loader fail
// to reserve a slot.
type Dispatcher interface {
	// Apply runs before the user transformer.
	Apply(b dynamic.Builder) (dynamic.Builder, error)

	// Register runs after the type was built.
	Register(u *dynamic.Unloaded, pd *instrument.ProtectionDomain) error

	// Release discards anything Apply claimed when the attempt fails.
	Release()
}

// NexusProvider is implemented by hosts that own the Nexus their generated
// type initializers consult.
type NexusProvider interface {
	Nexus() *nexus.Nexus
}

// ---------------------------------------------------------------------------
// Disabled
// ---------------------------------------------------------------------------

// Disabled leaves loaded-type initializers unapplied.
type Disabled struct{}

func (Disabled) Dispatcher(*classfile.TypeDescription, instrument.Loader, instrument.Class) Dispatcher {
	return noOpDispatcher{}
}

type noOpDispatcher struct{}

func (noOpDispatcher) Apply(b dynamic.Builder) (dynamic.Builder, error)               { return b, nil }
func (noOpDispatcher) Register(*dynamic.Unloaded, *instrument.ProtectionDomain) error { return nil }
func (noOpDispatcher) Release()                                                       {}

// ---------------------------------------------------------------------------
// SelfInjection
// ---------------------------------------------------------------------------

// SelfInjection parks initializers in a Nexus and makes every produced
// type consume its entry as the first action of its static initializer.
// Auxiliary types are injected into the loader eagerly.
type SelfInjection struct {
	Nexus *nexus.Nexus
}

func (s SelfInjection) Dispatcher(td *classfile.TypeDescription, loader instrument.Loader, classBeingRedefined instrument.Class) Dispatcher {
	return &selfInjectionDispatcher{
		nexus:      s.Nexus,
		loader:     loader,
		primary:    nexus.KeyOf(td.Name(), loader),
		redefining: classBeingRedefined,
	}
}

type selfInjectionDispatcher struct {
	nexus      *nexus.Nexus
	loader     instrument.Loader
	primary    nexus.Key
	redefining instrument.Class

	// claimed holds keys this attempt added and must drop on failure.
	claimed []nexus.Key
}

func (d *selfInjectionDispatcher) Apply(b dynamic.Builder) (dynamic.Builder, error) {
	// A redefined class is live; its initializer runs directly in Register,
	// so the primary type gets neither a slot nor the bootstrap prologue.
	// The class may not be initialized yet and would otherwise consult an
	// empty slot on first use.
	if d.redefining != nil {
		return b.WithAuxiliaryTypeInitializer(stack.NexusBootstrap{}), nil
	}
	if err := d.nexus.Reserve(d.primary); err != nil {
		return b, err
	}
	d.claimed = append(d.claimed, d.primary)
	return b.WithTypeInitializer(stack.NexusBootstrap{}), nil
}

func (d *selfInjectionDispatcher) Register(u *dynamic.Unloaded, pd *instrument.ProtectionDomain) error {
	for _, aux := range u.Auxiliaries {
		key := nexus.KeyOf(aux.Name(), d.loader)
		if err := d.nexus.Register(key, u.Initializer(aux.Name())); err != nil {
			return err
		}
		d.claimed = append(d.claimed, key)
	}

	if d.redefining == nil {
		if err := d.nexus.Register(d.primary, u.Initializer(u.Name())); err != nil {
			return err
		}
	}

	if len(u.Auxiliaries) > 0 && d.loader == nil {
		return errors.New("agent: cannot inject auxiliary types into the bootstrap loader")
	}
	for _, aux := range u.Auxiliaries {
		if _, err := d.loader.Inject(aux.Name(), aux.Bytes, pd); err != nil {
			return fmt.Errorf("agent: injecting %s: %w", aux.Name(), err)
		}
	}

	if d.redefining != nil {
		if err := u.Initializer(u.Name()).OnLoad(d.redefining); err != nil {
			return fmt.Errorf("agent: initializing redefined %s: %w", u.Name(), err)
		}
	}
	d.claimed = nil
	return nil
}

func (d *selfInjectionDispatcher) Release() {
	for _, key := range d.claimed {
		d.nexus.Release(key)
	}
	d.claimed = nil
}
