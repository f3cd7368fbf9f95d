package dynamic

import (
	"strings"

	"github.com/google/uuid"

	"github.com/chazu/transmute/classfile"
)

// MethodNameTransformer names the preserved original of a rebased method.
type MethodNameTransformer interface {
	Transform(md classfile.MethodDescription) string
}

// Suffixing appends "$original$" and a suffix to the method name.
type Suffixing struct {
	Suffix string
}

// NewSuffixing returns a suffixing transformer with a random suffix.
func NewSuffixing() Suffixing {
	return Suffixing{Suffix: strings.ReplaceAll(uuid.NewString(), "-", "")[:8]}
}

func (s Suffixing) Transform(md classfile.MethodDescription) string {
	return md.Name + "$original$" + s.Suffix
}

// NativePrefixing prepends Prefix to native methods, as hosts expect when
// resolving renamed native bindings, and defers to Fallback otherwise.
type NativePrefixing struct {
	Prefix   string
	Fallback MethodNameTransformer
}

func (p NativePrefixing) Transform(md classfile.MethodDescription) string {
	if md.Native {
		return p.Prefix + md.Name
	}
	return p.Fallback.Transform(md)
}
