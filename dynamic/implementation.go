package dynamic

import (
	"fmt"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/instrument"
	"github.com/chazu/transmute/stack"
	"github.com/chazu/transmute/stack/assign"
)

// Implementation generates the body of an intercepted method.
type Implementation interface {
	Implement(target *Target) (stack.Manipulation, error)
}

// Target describes the method being implemented and lets an
// implementation add the static state it needs.
type Target struct {
	Type   *classfile.TypeDescription
	Method classfile.MethodDescription

	// Original is the name the method's previous body was moved to.
	Original string

	Assigner assign.Assigner

	fields *[]classfile.Field
	inits  *[]LoadedTypeInitializer
}

// DefineField adds a static field to the type and returns its name.
func (t *Target) DefineField(name, typ string) (string, error) {
	for _, f := range *t.fields {
		if f.Name == name {
			return "", fmt.Errorf("field %s already defined", name)
		}
	}
	*t.fields = append(*t.fields, classfile.Field{Name: name, Type: typ, Static: true})
	return name, nil
}

// AddInitializer registers a loaded-type initializer for the type.
func (t *Target) AddInitializer(init LoadedTypeInitializer) {
	*t.inits = append(*t.inits, init)
}

// assignOrFail resolves an assignment and rejects illegal ones.
func (t *Target) assignOrFail(source, target *classfile.TypeDescription, dynamicallyTyped bool) (stack.Manipulation, error) {
	m := t.Assigner.Assign(source, target, dynamicallyTyped)
	if !m.IsValid() {
		return nil, fmt.Errorf("cannot assign %s to %s", source, target)
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// StubValue
// ---------------------------------------------------------------------------

// StubValue returns the default value of the method's return type.
type StubValue struct{}

func (StubValue) Implement(t *Target) (stack.Manipulation, error) {
	ret := t.Method.ReturnType()
	load, err := t.assignOrFail(classfile.VoidType, ret, true)
	if err != nil {
		return nil, err
	}
	return stack.Compound{load, stack.MethodReturn{Type: ret}}, nil
}

// ---------------------------------------------------------------------------
// FixedValue
// ---------------------------------------------------------------------------

// FixedValue returns a string constant, cast to the method's return type at
// runtime. Methods returning a primitive fail when called.
type FixedValue string

func (v FixedValue) Implement(t *Target) (stack.Manipulation, error) {
	ret := t.Method.ReturnType()
	conv, err := t.assignOrFail(classfile.StringType, ret, true)
	if err != nil {
		return nil, err
	}
	return stack.Compound{stack.TextConstant(v), conv, stack.MethodReturn{Type: ret}}, nil
}

// ---------------------------------------------------------------------------
// Intercept
// ---------------------------------------------------------------------------

// Invocation is a call routed to an Interceptor.
type Invocation struct {
	Class  instrument.Class
	Method classfile.MethodDescription

	// Original is the name of the preserved original method.
	Original string

	// Args holds boxed arguments in host representation.
	Args []any
}

// Proceed calls the original method with the invocation's arguments.
func (inv *Invocation) Proceed() (any, error) {
	return inv.Class.Invoke(inv.Original, inv.Args...)
}

// Interceptor handles calls of intercepted methods. It must return a value
// in host representation assignable to the method's return type.
type Interceptor func(inv *Invocation) (any, error)

// Intercept routes calls to fn. The interceptor is stored in a static field
// that a loaded-type initializer populates, so the generated code only
// works once that initializer has run.
func Intercept(fn Interceptor) Implementation {
	return interceptImpl{fn: fn}
}

type interceptImpl struct {
	fn Interceptor
}

func (i interceptImpl) Implement(t *Target) (stack.Manipulation, error) {
	field, err := t.DefineField("interceptor$"+t.Method.Name, classfile.CallableName)
	if err != nil {
		return nil, err
	}
	md, original, fn := t.Method, t.Original, i.fn
	t.AddInitializer(InitializerFunc(func(c instrument.Class) error {
		call := instrument.Callable(func(args []any) (any, error) {
			return fn(&Invocation{Class: c, Method: md, Original: original, Args: args})
		})
		return c.SetStatic(field, call)
	}))

	parts := stack.Compound{stack.GetStatic{Field: field, Type: classfile.ObjectType}}
	for idx, p := range t.Method.ParameterTypes() {
		box, err := t.assignOrFail(p, classfile.ObjectType, false)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", idx, err)
		}
		parts = append(parts, stack.LoadArgument{Index: idx, Type: p}, box)
	}
	parts = append(parts, stack.CallValue{Argc: len(t.Method.Params)})

	ret := t.Method.ReturnType()
	conv, err := t.assignOrFail(classfile.ObjectType, ret, true)
	if err != nil {
		return nil, err
	}
	return append(parts, conv, stack.MethodReturn{Type: ret}), nil
}
