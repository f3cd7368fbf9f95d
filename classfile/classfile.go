// Package classfile defines the binary representation of a type as the host
// loader sees it: a CBOR-encoded class file holding fields, methods and an
// optional type initializer, plus the opcode set used by method bodies.
package classfile

import (
	"errors"
	"fmt"
)

// FormatVersion is the current class file format version.
// Increment when making incompatible changes to the format.
const FormatVersion uint16 = 1

// Magic identifies transmute class files.
const Magic = "TMCF"

// TypeInitializerName is the reserved name of the static initialization
// method.
const TypeInitializerName = "<clinit>"

// ErrMalformed indicates bytes that do not decode to a valid class file.
var ErrMalformed = errors.New("classfile: malformed class file")

// ClassFile is the serialized form of a type.
type ClassFile struct {
	Magic           string   `cbor:"1,keyasint"`
	Version         uint16   `cbor:"2,keyasint"`
	Name            string   `cbor:"3,keyasint"`
	Superclass      string   `cbor:"4,keyasint,omitempty"`
	Fields          []Field  `cbor:"5,keyasint,omitempty"`
	Methods         []Method `cbor:"6,keyasint,omitempty"`
	TypeInitializer *Method  `cbor:"7,keyasint,omitempty"`
}

// Field declares a field.
type Field struct {
	Name   string `cbor:"1,keyasint"`
	Type   string `cbor:"2,keyasint"`
	Static bool   `cbor:"3,keyasint,omitempty"`
}

// Method declares a method and carries its body.
type Method struct {
	Name      string   `cbor:"1,keyasint"`
	Params    []string `cbor:"2,keyasint,omitempty"`
	Return    string   `cbor:"3,keyasint"`
	Static    bool     `cbor:"4,keyasint,omitempty"`
	Native    bool     `cbor:"5,keyasint,omitempty"`
	Code      []byte   `cbor:"6,keyasint,omitempty"`
	Constants []string `cbor:"7,keyasint,omitempty"`
	MaxStack  uint16   `cbor:"8,keyasint,omitempty"`
}

// New creates an empty class file for the named type.
func New(name, superclass string) *ClassFile {
	return &ClassFile{
		Magic:      Magic,
		Version:    FormatVersion,
		Name:       name,
		Superclass: superclass,
	}
}

// Describe returns the signature view of the method.
func (m *Method) Describe() MethodDescription {
	return MethodDescription{
		Name:   m.Name,
		Params: append([]string(nil), m.Params...),
		Return: m.Return,
		Static: m.Static,
		Native: m.Native,
	}
}

// Clone returns a deep copy of the method.
func (m *Method) Clone() *Method {
	c := *m
	c.Params = append([]string(nil), m.Params...)
	c.Code = append([]byte(nil), m.Code...)
	c.Constants = append([]string(nil), m.Constants...)
	return &c
}

// Clone returns a deep copy of the class file.
func (cf *ClassFile) Clone() *ClassFile {
	c := *cf
	c.Fields = append([]Field(nil), cf.Fields...)
	c.Methods = make([]Method, len(cf.Methods))
	for i := range cf.Methods {
		c.Methods[i] = *cf.Methods[i].Clone()
	}
	if cf.TypeInitializer != nil {
		c.TypeInitializer = cf.TypeInitializer.Clone()
	}
	return &c
}

// Method returns the declared method with the given name.
func (cf *ClassFile) Method(name string) (*Method, bool) {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name {
			return &cf.Methods[i], true
		}
	}
	return nil, false
}

// Field returns the declared field with the given name.
func (cf *ClassFile) Field(name string) (Field, bool) {
	for _, f := range cf.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks structural well-formedness: header, unique member names
// and decodable method bodies.
func (cf *ClassFile) Validate() error {
	if cf.Magic != Magic {
		return fmt.Errorf("%w: bad magic %q", ErrMalformed, cf.Magic)
	}
	if cf.Version != FormatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformed, cf.Version)
	}
	if cf.Name == "" {
		return fmt.Errorf("%w: missing type name", ErrMalformed)
	}

	seen := make(map[string]bool)
	for _, f := range cf.Fields {
		if seen["f:"+f.Name] {
			return fmt.Errorf("%w: duplicate field %s", ErrMalformed, f.Name)
		}
		seen["f:"+f.Name] = true
	}
	for i := range cf.Methods {
		m := &cf.Methods[i]
		if m.Name == TypeInitializerName {
			return fmt.Errorf("%w: %s declared as a method", ErrMalformed, TypeInitializerName)
		}
		if seen["m:"+m.Name] {
			return fmt.Errorf("%w: duplicate method %s", ErrMalformed, m.Name)
		}
		seen["m:"+m.Name] = true
		if err := m.validateCode(); err != nil {
			return fmt.Errorf("%w: method %s: %v", ErrMalformed, m.Name, err)
		}
	}
	if cf.TypeInitializer != nil {
		if err := cf.TypeInitializer.validateCode(); err != nil {
			return fmt.Errorf("%w: type initializer: %v", ErrMalformed, err)
		}
	}
	return nil
}

func (m *Method) validateCode() error {
	if m.Native {
		if len(m.Code) > 0 {
			return fmt.Errorf("native method carries code")
		}
		return nil
	}
	for ip := 0; ip < len(m.Code); {
		op := Opcode(m.Code[ip])
		info, ok := LookupOpcode(op)
		if !ok {
			return fmt.Errorf("unknown opcode 0x%02X at %d", byte(op), ip)
		}
		if ip+1+info.OperandLen > len(m.Code) {
			return fmt.Errorf("truncated %s at %d", info.Name, ip)
		}
		if op.UsesConstant() {
			idx := int(m.Code[ip+1])<<8 | int(m.Code[ip+2])
			if idx >= len(m.Constants) {
				return fmt.Errorf("%s at %d references constant %d of %d", info.Name, ip, idx, len(m.Constants))
			}
		}
		ip += 1 + info.OperandLen
	}
	return nil
}
