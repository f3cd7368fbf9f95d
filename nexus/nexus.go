// Package nexus holds loaded-type initializers between the moment a type is
// transformed and the moment its static initializer runs. The generated
// type initializer of a self-initializing type calls Initialize as its first
// instruction; each entry is consumed exactly once.
package nexus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/transmute/instrument"
)

// ErrConsistency marks a lookup that found no usable entry. The type that
// triggered it cannot be initialized.
var ErrConsistency = errors.New("nexus: inconsistent state")

// Key identifies a type within one loader.
type Key struct {
	Type   string
	Loader string
}

// KeyOf builds the key for a type name in loader l.
func KeyOf(name string, l instrument.Loader) Key {
	return Key{Type: name, Loader: instrument.LoaderID(l)}
}

func (k Key) String() string {
	if k.Loader == "" {
		return k.Type
	}
	return k.Type + "@" + k.Loader
}

// ConsistencyError reports a Nexus operation that violated the
// single-registration, single-use contract.
type ConsistencyError struct {
	Key    Key
	Reason string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("nexus: %s: %s", e.Key, e.Reason)
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistency }

// Initializer prepares a loaded class.
type Initializer interface {
	OnLoad(c instrument.Class) error
}

type entry struct {
	init     Initializer
	reserved bool
}

// Nexus is a registry of pending initializers. The zero value is not
// usable; call New.
type Nexus struct {
	mu      sync.Mutex
	entries map[Key]entry
}

// New creates an empty Nexus.
func New() *Nexus {
	return &Nexus{entries: make(map[Key]entry)}
}

// Reserve claims the slot for key before its initializer is known.
func (n *Nexus) Reserve(key Key) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.entries[key]; ok {
		return &ConsistencyError{Key: key, Reason: "slot already taken"}
	}
	n.entries[key] = entry{reserved: true}
	return nil
}

// Register stores the initializer for key, filling a reservation if one
// exists.
func (n *Nexus) Register(key Key, init Initializer) error {
	if init == nil {
		return fmt.Errorf("nexus: nil initializer for %s", key)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if e, ok := n.entries[key]; ok && !e.reserved {
		return &ConsistencyError{Key: key, Reason: "initializer already registered"}
	}
	n.entries[key] = entry{init: init}
	return nil
}

// Release drops the entry for key, reserved or registered. It reports
// whether an entry existed.
func (n *Nexus) Release(key Key) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.entries[key]
	delete(n.entries, key)
	return ok
}

// Initialize removes the entry for key and runs it against c. The entry is
// consumed even when the initializer fails.
func (n *Nexus) Initialize(key Key, c instrument.Class) error {
	n.mu.Lock()
	e, ok := n.entries[key]
	delete(n.entries, key)
	n.mu.Unlock()

	switch {
	case !ok:
		return &ConsistencyError{Key: key, Reason: "no initializer registered"}
	case e.reserved:
		return &ConsistencyError{Key: key, Reason: "reserved but never registered"}
	}
	if err := e.init.OnLoad(c); err != nil {
		return fmt.Errorf("nexus: initializing %s: %w", key, err)
	}
	return nil
}

// Pending returns the number of entries not yet consumed.
func (n *Nexus) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.entries)
}
