package host

import (
	"errors"
	"testing"

	"github.com/chazu/transmute/agent"
	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/dynamic"
	"github.com/chazu/transmute/matcher"
	"github.com/chazu/transmute/nexus"
)

// plusOne intercepts the selected methods and adds one to the result of
// the original.
func plusOne(m matcher.MethodMatcher) agent.Transformer {
	return agent.TransformerFunc(func(b dynamic.Builder, _ *classfile.TypeDescription) (dynamic.Builder, error) {
		return b.Method(m).Intercept(dynamic.Intercept(func(inv *dynamic.Invocation) (any, error) {
			v, err := inv.Proceed()
			if err != nil {
				return nil, err
			}
			switch n := v.(type) {
			case int32:
				return n + 1, nil
			case int64:
				return n + 1, nil
			}
			return nil, errors.New("unexpected result type")
		})), nil
	})
}

type recorder struct {
	agent.NoOpListener
	errs []error
}

func (r *recorder) OnError(_ string, err error) { r.errs = append(r.errs, err) }

func TestAgent_SelfInjectedInterceptor(t *testing.T) {
	rt := New()
	rec := &recorder{}
	installation, err := agent.New().WithListener(rec).
		Type(agent.ByName("app.")).Transform(plusOne(matcher.MethodNamed("echo"))).
		Install(rt)
	if err != nil {
		t.Fatal(err)
	}

	l := newLoader(t, rt, sampleClass("app.Foo"), sampleClass("lib.Bar"))
	foo := mustLoad(t, l, "app.Foo")
	if rt.Nexus().Pending() != 1 {
		t.Fatalf("Pending() = %d before initialization, want 1", rt.Nexus().Pending())
	}

	got, err := foo.Invoke("echo", int32(41))
	if err != nil {
		t.Fatal(err)
	}
	if got != int32(42) {
		t.Errorf("echo(41) = %v, want 42", got)
	}
	if rt.Nexus().Pending() != 0 {
		t.Errorf("Pending() = %d after initialization, want 0", rt.Nexus().Pending())
	}
	// The original initializer still runs after the bootstrap.
	if v, _ := foo.GetStatic("state"); v != "ready" {
		t.Errorf("state = %v, want ready", v)
	}
	// Calls between methods of the rewritten class reach the interceptor.
	if got, _ := foo.Invoke("callEcho", int32(1)); got != int32(2) {
		t.Errorf("callEcho(1) = %v, want 2", got)
	}

	bar := mustLoad(t, l, "lib.Bar")
	if got, _ := bar.Invoke("echo", int32(41)); got != int32(41) {
		t.Errorf("unmatched type was transformed: echo(41) = %v", got)
	}
	if len(rec.errs) != 0 {
		t.Errorf("unexpected errors: %v", rec.errs)
	}

	if !installation.Reset() {
		t.Error("Reset should remove the hook")
	}
	otherLoader, err := rt.NewLoader("other", l.source)
	if err != nil {
		t.Fatal(err)
	}
	other := mustLoad(t, otherLoader, "app.Foo")
	if got, _ := other.Invoke("echo", int32(41)); got != int32(41) {
		t.Errorf("type loaded after reset was transformed: echo(41) = %v", got)
	}
}

func TestAgent_AuxiliaryTypesAreInjected(t *testing.T) {
	rt := New()
	withHelper := agent.TransformerFunc(func(b dynamic.Builder, td *classfile.TypeDescription) (dynamic.Builder, error) {
		return b.WithAuxiliary(classfile.New(td.Name()+"$Helper", ""), dynamic.StaticField{Field: "owner", Value: td.Name()}), nil
	})
	if _, err := agent.New().Type(agent.ByName("app.")).Transform(withHelper).Install(rt); err != nil {
		t.Fatal(err)
	}

	l := newLoader(t, rt, sampleClass("app.Foo"))
	mustLoad(t, l, "app.Foo")
	helper, ok := l.Class("app.Foo$Helper")
	if !ok {
		t.Fatal("auxiliary type was not injected")
	}
	if err := helper.Initialize(); err != nil {
		t.Fatal(err)
	}
	if v, _ := helper.GetStatic("owner"); v != "app.Foo" {
		t.Errorf("helper owner = %v, want app.Foo", v)
	}
}

func TestAgent_DoubleBootstrapIsFatal(t *testing.T) {
	rt := New()
	if _, err := agent.New().Type(agent.ByName("app.")).Transform(plusOne(matcher.MethodNamed("echo"))).Install(rt); err != nil {
		t.Fatal(err)
	}
	foo := mustLoad(t, newLoader(t, rt, sampleClass("app.Foo")), "app.Foo")

	// Consuming the entry elsewhere leaves the class without its initializer.
	if !rt.Nexus().Release(nexus.KeyOf("app.Foo", foo.Loader())) {
		t.Fatal("expected a pending entry")
	}
	_, err := foo.Invoke("echo", int32(1))
	if !errors.Is(err, nexus.ErrConsistency) || !errors.Is(err, ErrErroneous) {
		t.Fatalf("got %v, want fatal consistency error", err)
	}
}

func TestAgent_RetransformsLoadedTypes(t *testing.T) {
	rt := New()
	l := newLoader(t, rt, sampleClass("app.Foo"))
	foo := mustLoad(t, l, "app.Foo")
	if got, _ := foo.Invoke("echo", int32(41)); got != int32(41) {
		t.Fatalf("echo(41) = %v before install", got)
	}

	_, err := agent.New().AllowRetransformation().
		Type(agent.ByName("app.")).Transform(plusOne(matcher.MethodNamed("echo"))).
		Install(rt)
	if err != nil {
		t.Fatal(err)
	}
	if got, err := foo.Invoke("echo", int32(41)); err != nil || got != int32(42) {
		t.Errorf("echo(41) after retransformation = %v, %v; want 42", got, err)
	}
	if rt.Nexus().Pending() != 0 {
		t.Errorf("retransformation parked %d initializers", rt.Nexus().Pending())
	}
}

func TestAgent_RetransformsUninitializedTypes(t *testing.T) {
	rt := New()
	rec := &recorder{}
	foo := mustLoad(t, newLoader(t, rt, sampleClass("app.Foo")), "app.Foo")

	_, err := agent.New().WithListener(rec).AllowRetransformation().
		Type(agent.ByName("app.")).Transform(plusOne(matcher.MethodNamed("echo"))).
		Install(rt)
	if err != nil {
		t.Fatal(err)
	}
	if init := foo.ClassFile().TypeInitializer; init != nil && len(init.Code) > 0 && classfile.Opcode(init.Code[0]) == classfile.OpNexus {
		t.Error("redefined type must not consult the nexus")
	}

	got, err := foo.Invoke("echo", int32(41))
	if err != nil || got != int32(42) {
		t.Fatalf("echo(41) on first use after retransformation = %v, %v; want 42", got, err)
	}
	if foo.IsErroneous() {
		t.Error("class became erroneous")
	}
	// The original initializer runs on first use.
	if v, _ := foo.GetStatic("state"); v != "ready" {
		t.Errorf("state = %v, want ready", v)
	}
	if len(rec.errs) != 0 {
		t.Errorf("unexpected errors: %v", rec.errs)
	}
}

func TestAgent_SameTypeInTwoLoaders(t *testing.T) {
	rt := New()
	rec := &recorder{}
	_, err := agent.New().WithListener(rec).
		Type(agent.ByName("app.")).Transform(plusOne(matcher.MethodNamed("echo"))).
		Install(rt)
	if err != nil {
		t.Fatal(err)
	}

	first := newLoader(t, rt, sampleClass("app.Foo"))
	second, err := rt.NewLoader("tenant", first.source)
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range []*Loader{first, second} {
		foo := mustLoad(t, l, "app.Foo")
		if got, err := foo.Invoke("echo", int32(41)); err != nil || got != int32(42) {
			t.Errorf("echo(41) in loader %s = %v, %v; want 42", l.ID(), got, err)
		}
	}
	if len(rec.errs) != 0 {
		t.Errorf("unexpected errors: %v", rec.errs)
	}
}

func TestAgent_NativeMethodPrefix(t *testing.T) {
	rt := New()
	rt.BindNative("app.Foo", "clock", func([]any) (any, error) { return int64(41), nil })

	b, err := agent.New().WithNativeMethodPrefix("wrapped_")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Type(agent.ByName("app.")).Transform(plusOne(matcher.IsNative())).Install(rt); err != nil {
		t.Fatal(err)
	}

	foo := mustLoad(t, newLoader(t, rt, sampleClass("app.Foo")), "app.Foo")
	if _, ok := foo.ClassFile().Method("wrapped_clock"); !ok {
		t.Fatal("native method was not renamed with the prefix")
	}
	if got, err := foo.Invoke("clock"); err != nil || got != int64(42) {
		t.Errorf("clock() = %v, %v; want 42", got, err)
	}
}
