package host

import (
	"fmt"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/instrument"
)

// Values on the operand stack use int32 for boolean and int, int64 for
// long, float32 for float and float64 for double. Long and double values
// take two slots; the upper one holds wideSlot. References are plain Go
// values: nil, string, instrument.Callable or a boxed primitive, where a
// boxed boolean is a Go bool.

// wideSlot fills the second slot of a long or double.
type wideSlot struct{}

// CastError reports a reference that does not have the expected type.
type CastError struct {
	Value any
	Type  string
}

func (e *CastError) Error() string {
	return fmt.Sprintf("host: cannot cast %T to %s", e.Value, e.Type)
}

// toStack converts a value from its host representation to the stack
// representation of kind k.
func toStack(k classfile.Kind, v any) (any, error) {
	switch k {
	case classfile.Boolean:
		switch b := v.(type) {
		case bool:
			if b {
				return int32(1), nil
			}
			return int32(0), nil
		case int32:
			return b, nil
		}
	case classfile.Int:
		switch i := v.(type) {
		case int32:
			return i, nil
		case int:
			return int32(i), nil
		}
	case classfile.Long:
		switch i := v.(type) {
		case int64:
			return i, nil
		case int:
			return int64(i), nil
		case int32:
			return int64(i), nil
		}
	case classfile.Float:
		if f, ok := v.(float32); ok {
			return f, nil
		}
	case classfile.Double:
		switch f := v.(type) {
		case float64:
			return f, nil
		case float32:
			return float64(f), nil
		}
	case classfile.Reference:
		return v, nil
	case classfile.Void:
		return nil, nil
	}
	return nil, &CastError{Value: v, Type: k.String()}
}

// fromStack converts a stack value of kind k to its host representation.
func fromStack(k classfile.Kind, v any) any {
	switch k {
	case classfile.Boolean:
		i, _ := v.(int32)
		return i != 0
	case classfile.Void:
		return nil
	}
	return v
}

// box converts a primitive stack value to its boxed reference.
func box(k classfile.Kind, v any) any {
	return fromStack(k, v)
}

// unbox converts a boxed reference to a primitive stack value.
func unbox(k classfile.Kind, v any) (any, error) {
	ok := false
	switch k {
	case classfile.Boolean:
		_, ok = v.(bool)
	case classfile.Int:
		_, ok = v.(int32)
	case classfile.Long:
		_, ok = v.(int64)
	case classfile.Float:
		_, ok = v.(float32)
	case classfile.Double:
		_, ok = v.(float64)
	}
	if !ok {
		return nil, &CastError{Value: v, Type: k.String()}
	}
	return toStack(k, v)
}

// checkCast verifies that a reference may be used as typeName. Null casts
// to every reference type.
func checkCast(typeName string, v any) error {
	if v == nil {
		return nil
	}
	ok := false
	switch typeName {
	case classfile.ObjectName:
		ok = true
	case classfile.StringName:
		_, ok = v.(string)
	case classfile.CallableName:
		_, ok = v.(instrument.Callable)
	default:
		if k, boxed := classfile.UnboxedKind(typeName); boxed {
			_, err := unbox(k, v)
			ok = err == nil
		}
	}
	if !ok {
		return &CastError{Value: v, Type: typeName}
	}
	return nil
}

// defaultValue is the stack value a field of kind k starts with.
func defaultValue(k classfile.Kind) any {
	switch k {
	case classfile.Boolean, classfile.Int:
		return int32(0)
	case classfile.Long:
		return int64(0)
	case classfile.Float:
		return float32(0)
	case classfile.Double:
		return float64(0)
	}
	return nil
}

func kindOf(typeName string) classfile.Kind {
	return classfile.ForName(typeName).Kind()
}
