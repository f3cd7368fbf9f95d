// Package stack provides the operand stack effects that code generation
// composes into method bodies. Every effect declares whether it is legal and
// reports its impact on the stack when applied to a code buffer.
package stack

import (
	"fmt"

	"github.com/chazu/transmute/classfile"
)

// Size describes the impact of a manipulation on the operand stack: the net
// change in slots and the peak growth while it runs.
type Size struct {
	Impact  int
	Maximal int
}

// SizeOf returns a size that pushes n slots.
func SizeOf(n int) Size {
	if n < 0 {
		return Size{Impact: n}
	}
	return Size{Impact: n, Maximal: n}
}

// Aggregate returns the size of running s followed by other.
func (s Size) Aggregate(other Size) Size {
	return Size{
		Impact:  s.Impact + other.Impact,
		Maximal: max(s.Maximal, s.Impact+other.Maximal),
	}
}

// Manipulation is an atomic or compound effect on the operand stack.
type Manipulation interface {
	// IsValid reports whether the manipulation may be applied. Illegal
	// manipulations describe assignments that cannot be expressed.
	IsValid() bool

	// Apply emits the manipulation's instructions and returns its size.
	Apply(code *classfile.Code) Size
}

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

// Trivial is the legal manipulation with no effect.
type Trivial struct{}

func (Trivial) IsValid() bool              { return true }
func (Trivial) Apply(*classfile.Code) Size { return Size{} }
func (Trivial) String() string             { return "Trivial" }

// Illegal marks an assignment that must never be emitted. Callers check
// IsValid before applying; applying it panics.
type Illegal struct{}

func (Illegal) IsValid() bool { return false }
func (Illegal) Apply(*classfile.Code) Size {
	panic("stack: illegal manipulation applied")
}
func (Illegal) String() string { return "Illegal" }

// Removal discards the top value of the stack at its width.
type Removal struct {
	Width classfile.StackSize
}

// Pop returns a removal sized for a value of the given type.
func Pop(td *classfile.TypeDescription) Manipulation {
	if td.StackSize() == classfile.ZeroWidth {
		return Trivial{}
	}
	return Removal{Width: td.StackSize()}
}

func (r Removal) IsValid() bool { return r.Width != classfile.ZeroWidth }

func (r Removal) Apply(code *classfile.Code) Size {
	switch r.Width {
	case classfile.SingleWidth:
		code.Emit(classfile.OpPop)
	case classfile.DoubleWidth:
		code.Emit(classfile.OpPop2)
	default:
		panic(fmt.Sprintf("stack: cannot remove value of width %d", r.Width))
	}
	return SizeOf(-int(r.Width))
}

func (r Removal) String() string { return fmt.Sprintf("Removal(%d)", r.Width) }

// DefaultValue pushes the canonical default value of a kind: zero for
// numeric primitives, false for boolean and null for references.
type DefaultValue struct {
	Kind classfile.Kind
}

// DefaultValueOf returns the default-value load for td. Void has no value,
// so it yields Trivial.
func DefaultValueOf(td *classfile.TypeDescription) Manipulation {
	if td.Represents(classfile.Void) {
		return Trivial{}
	}
	return DefaultValue{Kind: td.Kind()}
}

func (d DefaultValue) IsValid() bool { return d.Kind != classfile.Void }

func (d DefaultValue) Apply(code *classfile.Code) Size {
	switch d.Kind {
	case classfile.Boolean, classfile.Int:
		code.Emit(classfile.OpConstI0)
	case classfile.Long:
		code.Emit(classfile.OpConstL0)
	case classfile.Float:
		code.Emit(classfile.OpConstF0)
	case classfile.Double:
		code.Emit(classfile.OpConstD0)
	case classfile.Reference:
		code.Emit(classfile.OpConstNull)
	default:
		panic("stack: void has no default value")
	}
	return SizeOf(int(d.Kind.StackSize()))
}

func (d DefaultValue) String() string { return fmt.Sprintf("DefaultValue(%s)", d.Kind) }

// Compound applies its elements in order. It is valid only if every
// element is valid.
type Compound []Manipulation

func (c Compound) IsValid() bool {
	for _, m := range c {
		if !m.IsValid() {
			return false
		}
	}
	return true
}

func (c Compound) Apply(code *classfile.Code) Size {
	var size Size
	for _, m := range c {
		size = size.Aggregate(m.Apply(code))
	}
	return size
}
