package host

import (
	"fmt"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/instrument"
	"github.com/chazu/transmute/nexus"
)

// maxCallDepth bounds nested OpInvokeStatic calls.
const maxCallDepth = 512

// ExecutionError reports a fault while running a method body.
type ExecutionError struct {
	Class  string
	Method string
	IP     int
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("host: %s.%s at %04x: %v", e.Class, e.Method, e.IP, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// fault aborts the running frame; execute turns it into an ExecutionError.
type fault struct{ err error }

func throw(format string, args ...any) {
	panic(fault{fmt.Errorf(format, args...)})
}

func throwErr(err error) {
	panic(fault{err})
}

// ---------------------------------------------------------------------------
// Frame
// ---------------------------------------------------------------------------

type frame struct {
	class  *Class
	method *classfile.Method
	params []classfile.Kind
	args   []any
	depth  int

	stack []any
	ip    int
}

func (f *frame) push(v any) {
	f.stack = append(f.stack, v)
}

func (f *frame) pushKind(k classfile.Kind, v any) {
	f.push(v)
	if k.StackSize() == classfile.DoubleWidth {
		f.push(wideSlot{})
	}
}

func (f *frame) pop() any {
	if len(f.stack) == 0 {
		throw("stack underflow")
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	if _, ok := v.(wideSlot); ok {
		throw("single-width pop of a double-width value")
	}
	return v
}

func (f *frame) popWide() any {
	if len(f.stack) < 2 {
		throw("stack underflow")
	}
	if _, ok := f.stack[len(f.stack)-1].(wideSlot); !ok {
		throw("double-width pop of a single-width value")
	}
	v := f.stack[len(f.stack)-2]
	f.stack = f.stack[:len(f.stack)-2]
	return v
}

func (f *frame) popKind(k classfile.Kind) any {
	if k.StackSize() == classfile.DoubleWidth {
		return f.popWide()
	}
	return f.pop()
}

func (f *frame) readU8() int {
	if f.ip >= len(f.method.Code) {
		throw("truncated instruction")
	}
	b := f.method.Code[f.ip]
	f.ip++
	return int(b)
}

func (f *frame) readU16() int {
	hi := f.readU8()
	return hi<<8 | f.readU8()
}

func (f *frame) constant() string {
	idx := f.readU16()
	if idx >= len(f.method.Constants) {
		throw("constant #%d out of range", idx)
	}
	return f.method.Constants[idx]
}

func popInt(f *frame) int32 {
	v, ok := f.pop().(int32)
	if !ok {
		throw("expected int on stack")
	}
	return v
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// execute runs a method body. Arguments and result use the stack
// representation.
func (c *Class) execute(m *classfile.Method, args []any, depth int) (result any, err error) {
	f := &frame{
		class:  c,
		method: m,
		args:   args,
		depth:  depth,
		stack:  make([]any, 0, int(m.MaxStack)+1),
	}
	for _, p := range m.Params {
		f.params = append(f.params, kindOf(p))
	}

	defer func() {
		if p := recover(); p != nil {
			flt, ok := p.(fault)
			if !ok {
				flt = fault{fmt.Errorf("%v", p)}
			}
			result, err = nil, &ExecutionError{Class: c.name, Method: m.Name, IP: f.ip, Err: flt.err}
		}
	}()
	return f.run(), nil
}

func (f *frame) run() any {
	ret := kindOf(f.method.Return)
	for {
		if f.ip >= len(f.method.Code) {
			throw("fell off the end of the method")
		}
		op := classfile.Opcode(f.method.Code[f.ip])
		f.ip++

		switch op {
		// --- Stack manipulation ---
		case classfile.OpNop:
			// Do nothing

		case classfile.OpPop:
			f.pop()

		case classfile.OpPop2:
			if len(f.stack) < 2 {
				throw("stack underflow")
			}
			f.stack = f.stack[:len(f.stack)-2]

		case classfile.OpDup:
			v := f.pop()
			f.push(v)
			f.push(v)

		// --- Constants ---
		case classfile.OpConstNull:
			f.push(nil)

		case classfile.OpConstI0:
			f.push(int32(0))

		case classfile.OpConstL0:
			f.pushKind(classfile.Long, int64(0))

		case classfile.OpConstF0:
			f.push(float32(0))

		case classfile.OpConstD0:
			f.pushKind(classfile.Double, float64(0))

		case classfile.OpConst:
			f.push(f.constant())

		// --- Arguments and statics ---
		case classfile.OpLoadArg:
			idx := f.readU8()
			if idx >= len(f.args) {
				throw("argument %d out of range", idx)
			}
			f.pushKind(f.params[idx], f.args[idx])

		case classfile.OpGetStatic:
			name := f.constant()
			v, k, err := f.class.getStatic(name)
			if err != nil {
				throwErr(err)
			}
			f.pushKind(k, v)

		case classfile.OpPutStatic:
			name := f.constant()
			k := f.class.fieldKind(name)
			f.class.putStatic(name, f.popKind(k))

		// --- Conversions ---
		case classfile.OpI2L:
			f.pushKind(classfile.Long, int64(popInt(f)))

		case classfile.OpI2F:
			f.push(float32(popInt(f)))

		case classfile.OpI2D:
			f.pushKind(classfile.Double, float64(popInt(f)))

		case classfile.OpL2F, classfile.OpL2D:
			v, ok := f.popWide().(int64)
			if !ok {
				throw("expected long on stack")
			}
			if op == classfile.OpL2F {
				f.push(float32(v))
			} else {
				f.pushKind(classfile.Double, float64(v))
			}

		case classfile.OpF2D:
			v, ok := f.pop().(float32)
			if !ok {
				throw("expected float on stack")
			}
			f.pushKind(classfile.Double, float64(v))

		case classfile.OpBox:
			k := classfile.Kind(f.readU8())
			f.push(box(k, f.popKind(k)))

		case classfile.OpUnbox:
			k := classfile.Kind(f.readU8())
			v, err := unbox(k, f.pop())
			if err != nil {
				throwErr(err)
			}
			f.pushKind(k, v)

		case classfile.OpCheckCast:
			typeName := f.constant()
			v := f.pop()
			if err := checkCast(typeName, v); err != nil {
				throwErr(err)
			}
			f.push(v)

		// --- Invocation ---
		case classfile.OpInvokeStatic:
			name := f.constant()
			argc := f.readU8()
			f.invokeStatic(name, argc)

		case classfile.OpCallValue:
			argc := f.readU8()
			args := make([]any, argc)
			for i := argc - 1; i >= 0; i-- {
				args[i] = f.pop()
			}
			callee, ok := f.pop().(instrument.Callable)
			if !ok || callee == nil {
				throw("call of a non-callable value")
			}
			v, err := callee(args)
			if err != nil {
				throwErr(err)
			}
			f.push(v)

		// --- Bootstrap ---
		case classfile.OpNexus:
			n := f.class.loader.rt.nexus
			if n == nil {
				throw("no nexus to initialize %s", f.class.name)
			}
			if err := n.Initialize(nexus.KeyOf(f.class.name, f.class.loader), f.class); err != nil {
				throwErr(err)
			}

		// --- Return ---
		case classfile.OpReturn:
			if ret != classfile.Void {
				throw("void return from %s method", f.method.Return)
			}
			return nil

		case classfile.OpReturnValue:
			return f.popKind(ret)

		default:
			throw("unknown opcode 0x%02X", byte(op))
		}
	}
}

func (f *frame) invokeStatic(name string, argc int) {
	if f.depth >= maxCallDepth {
		throw("call depth exceeds %d", maxCallDepth)
	}
	m, ok := f.class.method(name)
	if !ok {
		throw("no method %s", name)
	}
	if len(m.Params) != argc {
		throw("%s takes %d arguments, %d given", name, len(m.Params), argc)
	}
	args := make([]any, argc)
	for i := argc - 1; i >= 0; i-- {
		args[i] = f.popKind(kindOf(m.Params[i]))
	}
	v, err := f.class.call(m, args, f.depth+1)
	if err != nil {
		throwErr(err)
	}
	if k := kindOf(m.Return); k != classfile.Void {
		f.pushKind(k, v)
	}
}
