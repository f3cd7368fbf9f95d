package classfile

import "fmt"

// Kind classifies a type by how its values occupy the operand stack.
type Kind uint8

const (
	Void Kind = iota
	Boolean
	Int
	Long
	Float
	Double
	Reference
)

// String returns the source-level keyword for primitive kinds and
// "reference" for everything else.
func (k Kind) String() string {
	switch k {
	case Void:
		return "void"
	case Boolean:
		return "boolean"
	case Int:
		return "int"
	case Long:
		return "long"
	case Float:
		return "float"
	case Double:
		return "double"
	case Reference:
		return "reference"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// StackSize returns the number of operand stack slots a value of this kind
// occupies.
func (k Kind) StackSize() StackSize {
	switch k {
	case Void:
		return ZeroWidth
	case Long, Double:
		return DoubleWidth
	default:
		return SingleWidth
	}
}

// IsPrimitive reports whether the kind is neither void nor a reference.
func (k Kind) IsPrimitive() bool {
	return k != Void && k != Reference
}

// StackSize is the width of a value on the operand stack, in slots.
type StackSize int

const (
	ZeroWidth   StackSize = 0
	SingleWidth StackSize = 1
	DoubleWidth StackSize = 2
)

// Well-known reference type names.
const (
	ObjectName   = "Object"
	StringName   = "String"
	CallableName = "Callable"
)

var primitiveNames = map[string]Kind{
	"void":    Void,
	"boolean": Boolean,
	"int":     Int,
	"long":    Long,
	"float":   Float,
	"double":  Double,
}

var boxNames = map[Kind]string{
	Boolean: "Boolean",
	Int:     "Integer",
	Long:    "Long",
	Float:   "Float",
	Double:  "Double",
}

// ---------------------------------------------------------------------------
// TypeDescription: read-only handle describing a type's shape
// ---------------------------------------------------------------------------

// TypeDescription describes a type independently of whether it has been
// loaded. Instances are immutable once constructed; all accessors return
// copies of mutable state.
type TypeDescription struct {
	name       string
	kind       Kind
	superclass *TypeDescription
	file       *ClassFile
}

// Primitive and well-known descriptions.
var (
	VoidType    = &TypeDescription{name: "void", kind: Void}
	BooleanType = &TypeDescription{name: "boolean", kind: Boolean}
	IntType     = &TypeDescription{name: "int", kind: Int}
	LongType    = &TypeDescription{name: "long", kind: Long}
	FloatType   = &TypeDescription{name: "float", kind: Float}
	DoubleType  = &TypeDescription{name: "double", kind: Double}
	ObjectType  = &TypeDescription{name: ObjectName, kind: Reference}
	StringType  = &TypeDescription{name: StringName, kind: Reference, superclass: ObjectType}
)

// ForKind returns the description of a primitive kind. Reference yields
// the root Object type.
func ForKind(k Kind) *TypeDescription {
	switch k {
	case Void:
		return VoidType
	case Boolean:
		return BooleanType
	case Int:
		return IntType
	case Long:
		return LongType
	case Float:
		return FloatType
	case Double:
		return DoubleType
	default:
		return ObjectType
	}
}

// ForName returns a description for a type name as it appears in method
// and field signatures. Primitive keywords map to primitive descriptions;
// any other name yields a shallow reference description with no known
// structure beyond Object.
func ForName(name string) *TypeDescription {
	if k, ok := primitiveNames[name]; ok {
		return ForKind(k)
	}
	switch name {
	case ObjectName:
		return ObjectType
	case StringName:
		return StringType
	}
	return &TypeDescription{name: name, kind: Reference, superclass: ObjectType}
}

// ForClassFile describes a decoded class file. super is the description of
// the class file's superclass, or nil when it extends Object directly.
func ForClassFile(cf *ClassFile, super *TypeDescription) *TypeDescription {
	if super == nil {
		super = ObjectType
	}
	return &TypeDescription{
		name:       cf.Name,
		kind:       Reference,
		superclass: super,
		file:       cf.Clone(),
	}
}

// BoxedType returns the reference type used to box values of a primitive
// kind. Non-primitive kinds return nil.
func BoxedType(k Kind) *TypeDescription {
	name, ok := boxNames[k]
	if !ok {
		return nil
	}
	return &TypeDescription{name: name, kind: Reference, superclass: ObjectType}
}

// UnboxedKind returns the primitive kind boxed by the named reference type.
func UnboxedKind(name string) (Kind, bool) {
	for k, n := range boxNames {
		if n == name {
			return k, true
		}
	}
	return Reference, false
}

// Name returns the type's name.
func (td *TypeDescription) Name() string { return td.name }

// Kind returns the type's kind.
func (td *TypeDescription) Kind() Kind { return td.kind }

// Represents reports whether the type is of the given kind. Use it to test
// for void and the primitives.
func (td *TypeDescription) Represents(k Kind) bool { return td.kind == k }

// IsPrimitive reports whether the type is a non-void primitive.
func (td *TypeDescription) IsPrimitive() bool { return td.kind.IsPrimitive() }

// StackSize returns the operand stack width of values of this type.
func (td *TypeDescription) StackSize() StackSize { return td.kind.StackSize() }

// Superclass returns the superclass description, or nil for primitives and
// the root Object type.
func (td *TypeDescription) Superclass() *TypeDescription { return td.superclass }

// ClassFile returns a copy of the class file this description was built
// from, or nil if the type has no class file (primitives, shallow names).
func (td *TypeDescription) ClassFile() *ClassFile {
	if td.file == nil {
		return nil
	}
	return td.file.Clone()
}

// Methods returns the methods declared by the type.
func (td *TypeDescription) Methods() []MethodDescription {
	if td.file == nil {
		return nil
	}
	out := make([]MethodDescription, len(td.file.Methods))
	for i, m := range td.file.Methods {
		out[i] = m.Describe()
	}
	return out
}

// DeclaredMethod looks up a declared method by name.
func (td *TypeDescription) DeclaredMethod(name string) (MethodDescription, bool) {
	if td.file == nil {
		return MethodDescription{}, false
	}
	for _, m := range td.file.Methods {
		if m.Name == name {
			return m.Describe(), true
		}
	}
	return MethodDescription{}, false
}

// IsAssignableTo reports whether a value of this type can be stored in a
// slot of the other type without conversion.
func (td *TypeDescription) IsAssignableTo(other *TypeDescription) bool {
	if td.name == other.name {
		return true
	}
	if td.kind != Reference || other.kind != Reference {
		return false
	}
	if other.name == ObjectName {
		return true
	}
	for current := td.superclass; current != nil; current = current.superclass {
		if current.name == other.name {
			return true
		}
	}
	return false
}

// Equal reports whether two descriptions denote the same type.
func (td *TypeDescription) Equal(other *TypeDescription) bool {
	if td == nil || other == nil {
		return td == other
	}
	return td.name == other.name && td.kind == other.kind
}

func (td *TypeDescription) String() string {
	return td.name
}

// MethodDescription is the signature view of a declared method.
type MethodDescription struct {
	Name   string
	Params []string
	Return string
	Static bool
	Native bool
}

// ReturnType describes the method's return type.
func (md MethodDescription) ReturnType() *TypeDescription {
	return ForName(md.Return)
}

// ParameterTypes describes the method's parameter types in order.
func (md MethodDescription) ParameterTypes() []*TypeDescription {
	out := make([]*TypeDescription, len(md.Params))
	for i, p := range md.Params {
		out[i] = ForName(p)
	}
	return out
}
