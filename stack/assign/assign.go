// Package assign resolves how a value of one type is stored into a slot of
// another while generating method bodies.
//
// Assigners form a small fixed set of variants composed by wrapping:
//
//   - VoidAware: reconciles the void ("no value") type against real slots
//   - PrimitiveTypeAware: widening, boxing and unboxing of primitives
//   - Reference: the general assigner for reference types
//
// Every variant is a comparable value type. Two assigners are equal when
// they are the same variant wrapping equal assigners, so they can be used
// directly as map keys when deduplicating generated code.
package assign

import (
	"fmt"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/stack"
)

// Assigner computes the stack manipulation that converts a value of the
// source type into a value of the target type. When dynamicallyTyped is
// set, conversions that can only be verified at runtime are permitted.
type Assigner interface {
	Assign(source, target *classfile.TypeDescription, dynamicallyTyped bool) stack.Manipulation
}

// Default is the assigner chain used by code generation.
var Default Assigner = VoidAware{Chained: PrimitiveTypeAware{Chained: Reference{}}}

// ---------------------------------------------------------------------------
// VoidAware
// ---------------------------------------------------------------------------

// VoidAware handles assignments involving void and delegates everything
// else to Chained.
type VoidAware struct {
	Chained Assigner
}

func (a VoidAware) Assign(source, target *classfile.TypeDescription, dynamicallyTyped bool) stack.Manipulation {
	switch {
	case source.Represents(classfile.Void) && target.Represents(classfile.Void):
		return stack.Trivial{}
	case source.Represents(classfile.Void):
		if dynamicallyTyped {
			return stack.DefaultValueOf(target)
		}
		return stack.Illegal{}
	case target.Represents(classfile.Void):
		return stack.Pop(source)
	default:
		return a.Chained.Assign(source, target, dynamicallyTyped)
	}
}

func (a VoidAware) String() string {
	return fmt.Sprintf("VoidAware{chained=%v}", a.Chained)
}

// ---------------------------------------------------------------------------
// PrimitiveTypeAware
// ---------------------------------------------------------------------------

// PrimitiveTypeAware widens, boxes and unboxes primitive values. Assignments
// between two reference types go to Chained unchanged; boxing and unboxing
// consult Chained for the reference half of the conversion.
type PrimitiveTypeAware struct {
	Chained Assigner
}

func (a PrimitiveTypeAware) Assign(source, target *classfile.TypeDescription, dynamicallyTyped bool) stack.Manipulation {
	switch {
	case source.IsPrimitive() && target.IsPrimitive():
		return widen(source.Kind(), target.Kind())
	case source.IsPrimitive():
		boxed := classfile.BoxedType(source.Kind())
		rest := a.Chained.Assign(boxed, target, dynamicallyTyped)
		if !rest.IsValid() {
			return stack.Illegal{}
		}
		return stack.Compound{stack.Boxing{Kind: source.Kind()}, rest}
	case target.IsPrimitive():
		return a.unbox(source, target, dynamicallyTyped)
	default:
		return a.Chained.Assign(source, target, dynamicallyTyped)
	}
}

func (a PrimitiveTypeAware) unbox(source, target *classfile.TypeDescription, dynamicallyTyped bool) stack.Manipulation {
	// A boxed value unboxes to its own kind and then widens.
	if k, ok := classfile.UnboxedKind(source.Name()); ok {
		w := widen(k, target.Kind())
		if !w.IsValid() {
			return stack.Illegal{}
		}
		return stack.Compound{stack.Unboxing{Kind: k}, w}
	}
	if !dynamicallyTyped {
		return stack.Illegal{}
	}
	boxed := classfile.BoxedType(target.Kind())
	cast := a.Chained.Assign(source, boxed, true)
	if !cast.IsValid() {
		return stack.Illegal{}
	}
	return stack.Compound{cast, stack.Unboxing{Kind: target.Kind()}}
}

func (a PrimitiveTypeAware) String() string {
	return fmt.Sprintf("PrimitiveTypeAware{chained=%v}", a.Chained)
}

// widen returns the conversion between two primitive kinds. Identical kinds
// are trivial; boolean is stored as int and widens like it.
func widen(from, to classfile.Kind) stack.Manipulation {
	if from == to {
		return stack.Trivial{}
	}
	if from == classfile.Boolean {
		if to == classfile.Int {
			return stack.Trivial{}
		}
		from = classfile.Int
	}
	w := stack.Widening{From: from, To: to}
	if !w.IsValid() {
		return stack.Illegal{}
	}
	return w
}

// ---------------------------------------------------------------------------
// Reference
// ---------------------------------------------------------------------------

// Reference assigns between reference types: subtypes are assigned as is,
// other types only with a runtime check when dynamically typed.
type Reference struct{}

func (Reference) Assign(source, target *classfile.TypeDescription, dynamicallyTyped bool) stack.Manipulation {
	if source.IsPrimitive() || target.IsPrimitive() {
		return stack.Illegal{}
	}
	if source.IsAssignableTo(target) {
		return stack.Trivial{}
	}
	if dynamicallyTyped {
		return stack.CheckCast{Type: target.Name()}
	}
	return stack.Illegal{}
}

func (Reference) String() string { return "Reference" }
