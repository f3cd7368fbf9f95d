package stack

import (
	"fmt"

	"github.com/chazu/transmute/classfile"
)

// LoadArgument pushes a method parameter.
type LoadArgument struct {
	Index int
	Type  *classfile.TypeDescription
}

func (l LoadArgument) IsValid() bool {
	return l.Index >= 0 && l.Index < 256 && !l.Type.Represents(classfile.Void)
}

func (l LoadArgument) Apply(code *classfile.Code) Size {
	code.EmitWithOperand(classfile.OpLoadArg, byte(l.Index))
	return SizeOf(int(l.Type.StackSize()))
}

// GetStatic pushes the value of a static field of the type being built.
type GetStatic struct {
	Field string
	Type  *classfile.TypeDescription
}

func (g GetStatic) IsValid() bool { return g.Field != "" }

func (g GetStatic) Apply(code *classfile.Code) Size {
	code.EmitConstant(classfile.OpGetStatic, g.Field)
	return SizeOf(int(g.Type.StackSize()))
}

// PutStatic stores the top value into a static field.
type PutStatic struct {
	Field string
	Type  *classfile.TypeDescription
}

func (p PutStatic) IsValid() bool { return p.Field != "" }

func (p PutStatic) Apply(code *classfile.Code) Size {
	code.EmitConstant(classfile.OpPutStatic, p.Field)
	return SizeOf(-int(p.Type.StackSize()))
}

// TextConstant pushes a string constant.
type TextConstant string

func (TextConstant) IsValid() bool { return true }

func (t TextConstant) Apply(code *classfile.Code) Size {
	code.EmitConstant(classfile.OpConst, string(t))
	return SizeOf(1)
}

// CallValue invokes the callable reference below Argc boxed arguments and
// pushes its boxed result.
type CallValue struct {
	Argc int
}

func (c CallValue) IsValid() bool { return c.Argc >= 0 && c.Argc < 256 }

func (c CallValue) Apply(code *classfile.Code) Size {
	code.EmitWithOperand(classfile.OpCallValue, byte(c.Argc))
	// callee and arguments are replaced by the result
	return Size{Impact: -c.Argc, Maximal: 0}
}

// InvokeStatic calls a static method of the type being built.
type InvokeStatic struct {
	Method classfile.MethodDescription
}

func (i InvokeStatic) IsValid() bool { return i.Method.Static && len(i.Method.Params) < 256 }

func (i InvokeStatic) Apply(code *classfile.Code) Size {
	code.EmitConstant(classfile.OpInvokeStatic, i.Method.Name, byte(len(i.Method.Params)))
	impact := int(i.Method.ReturnType().StackSize())
	for _, p := range i.Method.ParameterTypes() {
		impact -= int(p.StackSize())
	}
	return SizeOf(impact)
}

func (i InvokeStatic) String() string { return fmt.Sprintf("InvokeStatic(%s)", i.Method.Name) }

// MethodReturn returns from a method of the given return type.
type MethodReturn struct {
	Type *classfile.TypeDescription
}

func (MethodReturn) IsValid() bool { return true }

func (r MethodReturn) Apply(code *classfile.Code) Size {
	if r.Type.Represents(classfile.Void) {
		code.Emit(classfile.OpReturn)
		return Size{}
	}
	code.Emit(classfile.OpReturnValue)
	return SizeOf(-int(r.Type.StackSize()))
}

// NexusBootstrap hands the type under initialization to its registered
// loaded-type initializer. It is emitted as the first instruction of
// self-initializing type initializers.
type NexusBootstrap struct{}

func (NexusBootstrap) IsValid() bool { return true }

func (NexusBootstrap) Apply(code *classfile.Code) Size {
	code.Emit(classfile.OpNexus)
	return Size{}
}
