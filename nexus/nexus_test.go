package nexus

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/chazu/transmute/instrument"
)

type fakeClass struct {
	name string
}

func (c fakeClass) Name() string                                 { return c.name }
func (fakeClass) Loader() instrument.Loader                      { return nil }
func (fakeClass) ProtectionDomain() *instrument.ProtectionDomain { return nil }
func (fakeClass) Bytes() []byte                                  { return nil }
func (fakeClass) GetStatic(string) (any, error)                  { return nil, nil }
func (fakeClass) SetStatic(string, any) error                    { return nil }
func (fakeClass) Invoke(string, ...any) (any, error)             { return nil, nil }

type initFunc func(instrument.Class) error

func (f initFunc) OnLoad(c instrument.Class) error { return f(c) }

func TestInitializeConsumesEntry(t *testing.T) {
	n := New()
	key := Key{Type: "Foo", Loader: "app"}

	var seen string
	if err := n.Register(key, initFunc(func(c instrument.Class) error {
		seen = c.Name()
		return nil
	})); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if n.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", n.Pending())
	}

	if err := n.Initialize(key, fakeClass{name: "Foo"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if seen != "Foo" {
		t.Errorf("initializer saw %q, want Foo", seen)
	}
	if n.Pending() != 0 {
		t.Errorf("Pending() = %d after consumption, want 0", n.Pending())
	}

	err := n.Initialize(key, fakeClass{name: "Foo"})
	if !errors.Is(err, ErrConsistency) {
		t.Fatalf("second Initialize: got %v, want consistency error", err)
	}
	var ce *ConsistencyError
	if !errors.As(err, &ce) || ce.Key != key {
		t.Errorf("expected ConsistencyError for %v, got %v", key, err)
	}
}

func TestKeysAreLoaderScoped(t *testing.T) {
	n := New()
	a := Key{Type: "Foo", Loader: "a"}
	b := Key{Type: "Foo", Loader: "b"}

	if err := n.Register(a, initFunc(func(instrument.Class) error { return nil })); err != nil {
		t.Fatal(err)
	}
	if err := n.Initialize(b, fakeClass{}); !errors.Is(err, ErrConsistency) {
		t.Errorf("lookup in other loader: got %v, want consistency error", err)
	}
	if err := n.Initialize(a, fakeClass{}); err != nil {
		t.Errorf("lookup in own loader: %v", err)
	}
}

func TestReservation(t *testing.T) {
	n := New()
	key := KeyOf("Foo", nil)

	if err := n.Reserve(key); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := n.Reserve(key); !errors.Is(err, ErrConsistency) {
		t.Errorf("double Reserve: got %v, want consistency error", err)
	}

	// A reserved slot that was never filled cannot initialize.
	if err := n.Initialize(key, fakeClass{}); !errors.Is(err, ErrConsistency) {
		t.Errorf("Initialize reserved: got %v, want consistency error", err)
	}

	if err := n.Reserve(key); err != nil {
		t.Fatalf("Reserve after consumption: %v", err)
	}
	if err := n.Register(key, initFunc(func(instrument.Class) error { return nil })); err != nil {
		t.Fatalf("Register into reservation: %v", err)
	}
	if err := n.Register(key, initFunc(func(instrument.Class) error { return nil })); !errors.Is(err, ErrConsistency) {
		t.Errorf("double Register: got %v, want consistency error", err)
	}
	if !n.Release(key) {
		t.Error("Release should report an existing entry")
	}
	if n.Release(key) {
		t.Error("second Release should report nothing")
	}
}

func TestInitializerFailureStillConsumes(t *testing.T) {
	n := New()
	key := Key{Type: "Foo"}
	boom := errors.New("boom")

	_ = n.Register(key, initFunc(func(instrument.Class) error { return boom }))
	if err := n.Initialize(key, fakeClass{}); !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped boom", err)
	}
	if n.Pending() != 0 {
		t.Errorf("failed entry was not consumed")
	}
}

func TestRegisterNil(t *testing.T) {
	if err := New().Register(Key{Type: "Foo"}, nil); err == nil {
		t.Error("expected error registering nil initializer")
	}
}

func TestConcurrentInitializeRunsOnce(t *testing.T) {
	n := New()
	key := Key{Type: "Foo", Loader: "app"}

	var calls atomic.Int32
	_ = n.Register(key, initFunc(func(instrument.Class) error {
		calls.Add(1)
		return nil
	}))

	const workers = 32
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		failures  atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := n.Initialize(key, fakeClass{}); err != nil {
				failures.Add(1)
				return
			}
			successes.Add(1)
		}()
	}
	wg.Wait()

	if calls.Load() != 1 || successes.Load() != 1 {
		t.Errorf("initializer ran %d times with %d successes, want 1/1", calls.Load(), successes.Load())
	}
	if failures.Load() != workers-1 {
		t.Errorf("failures = %d, want %d", failures.Load(), workers-1)
	}
}

func TestKeyString(t *testing.T) {
	tests := []struct {
		key  Key
		want string
	}{
		{Key{Type: "Foo"}, "Foo"},
		{Key{Type: "Foo", Loader: "app"}, "Foo@app"},
	}
	for _, tt := range tests {
		if got := tt.key.String(); got != tt.want {
			t.Errorf("%#v.String() = %q, want %q", tt.key, got, tt.want)
		}
	}
}
