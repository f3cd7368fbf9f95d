package stack

import (
	"fmt"

	"github.com/chazu/transmute/classfile"
)

// Widening converts a primitive value to a wider primitive kind.
type Widening struct {
	From, To classfile.Kind
}

func (w Widening) IsValid() bool {
	_, ok := classfile.WideningOpcode(w.From, w.To)
	return ok
}

func (w Widening) Apply(code *classfile.Code) Size {
	op, ok := classfile.WideningOpcode(w.From, w.To)
	if !ok {
		panic(fmt.Sprintf("stack: no widening from %s to %s", w.From, w.To))
	}
	code.Emit(op)
	return SizeOf(int(w.To.StackSize()) - int(w.From.StackSize()))
}

func (w Widening) String() string { return fmt.Sprintf("Widening(%s->%s)", w.From, w.To) }

// Boxing wraps a primitive value in its reference type.
type Boxing struct {
	Kind classfile.Kind
}

func (b Boxing) IsValid() bool { return b.Kind.IsPrimitive() }

func (b Boxing) Apply(code *classfile.Code) Size {
	code.EmitWithOperand(classfile.OpBox, byte(b.Kind))
	return SizeOf(1 - int(b.Kind.StackSize()))
}

func (b Boxing) String() string { return fmt.Sprintf("Boxing(%s)", b.Kind) }

// Unboxing extracts a primitive value from its reference type.
type Unboxing struct {
	Kind classfile.Kind
}

func (u Unboxing) IsValid() bool { return u.Kind.IsPrimitive() }

func (u Unboxing) Apply(code *classfile.Code) Size {
	code.EmitWithOperand(classfile.OpUnbox, byte(u.Kind))
	return SizeOf(int(u.Kind.StackSize()) - 1)
}

func (u Unboxing) String() string { return fmt.Sprintf("Unboxing(%s)", u.Kind) }

// CheckCast verifies at runtime that the top reference is of a named type.
type CheckCast struct {
	Type string
}

func (c CheckCast) IsValid() bool { return c.Type != "" }

func (c CheckCast) Apply(code *classfile.Code) Size {
	code.EmitConstant(classfile.OpCheckCast, c.Type)
	return Size{}
}

func (c CheckCast) String() string { return fmt.Sprintf("CheckCast(%s)", c.Type) }
