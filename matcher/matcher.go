// Package matcher provides predicates over type and method descriptions.
package matcher

import (
	"regexp"
	"strings"

	"github.com/chazu/transmute/classfile"
)

// ElementMatcher selects type descriptions.
type ElementMatcher interface {
	Matches(td *classfile.TypeDescription) bool
}

// Func adapts a function to ElementMatcher.
type Func func(td *classfile.TypeDescription) bool

func (f Func) Matches(td *classfile.TypeDescription) bool { return f(td) }

// Any matches every type.
func Any() ElementMatcher {
	return Func(func(*classfile.TypeDescription) bool { return true })
}

// None matches no type.
func None() ElementMatcher {
	return Func(func(*classfile.TypeDescription) bool { return false })
}

// Named matches a type by exact name.
func Named(name string) ElementMatcher {
	return Func(func(td *classfile.TypeDescription) bool { return td.Name() == name })
}

// NameStartsWith matches types whose name has the given prefix.
func NameStartsWith(prefix string) ElementMatcher {
	return Func(func(td *classfile.TypeDescription) bool { return strings.HasPrefix(td.Name(), prefix) })
}

// NameEndsWith matches types whose name has the given suffix.
func NameEndsWith(suffix string) ElementMatcher {
	return Func(func(td *classfile.TypeDescription) bool { return strings.HasSuffix(td.Name(), suffix) })
}

// NameMatches matches type names against a regular expression.
func NameMatches(pattern string) (ElementMatcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return Func(func(td *classfile.TypeDescription) bool { return re.MatchString(td.Name()) }), nil
}

// IsSubtypeOf matches types assignable to the named type.
func IsSubtypeOf(name string) ElementMatcher {
	return Func(func(td *classfile.TypeDescription) bool {
		return td.IsAssignableTo(classfile.ForName(name))
	})
}

// DeclaresMethod matches types that declare at least one method accepted by m.
func DeclaresMethod(m MethodMatcher) ElementMatcher {
	return Func(func(td *classfile.TypeDescription) bool {
		for _, md := range td.Methods() {
			if m.Matches(md) {
				return true
			}
		}
		return false
	})
}

// Not inverts a matcher.
func Not(m ElementMatcher) ElementMatcher {
	return Func(func(td *classfile.TypeDescription) bool { return !m.Matches(td) })
}

// And matches when every matcher matches. An empty And matches everything.
func And(ms ...ElementMatcher) ElementMatcher {
	return Func(func(td *classfile.TypeDescription) bool {
		for _, m := range ms {
			if !m.Matches(td) {
				return false
			}
		}
		return true
	})
}

// Or matches when any matcher matches. An empty Or matches nothing.
func Or(ms ...ElementMatcher) ElementMatcher {
	return Func(func(td *classfile.TypeDescription) bool {
		for _, m := range ms {
			if m.Matches(td) {
				return true
			}
		}
		return false
	})
}

// ---------------------------------------------------------------------------
// Method matchers
// ---------------------------------------------------------------------------

// MethodMatcher selects method descriptions.
type MethodMatcher interface {
	Matches(md classfile.MethodDescription) bool
}

// MethodFunc adapts a function to MethodMatcher.
type MethodFunc func(md classfile.MethodDescription) bool

func (f MethodFunc) Matches(md classfile.MethodDescription) bool { return f(md) }

// AnyMethod matches every method.
func AnyMethod() MethodMatcher {
	return MethodFunc(func(classfile.MethodDescription) bool { return true })
}

// MethodNamed matches a method by exact name.
func MethodNamed(name string) MethodMatcher {
	return MethodFunc(func(md classfile.MethodDescription) bool { return md.Name == name })
}

// IsNative matches native methods.
func IsNative() MethodMatcher {
	return MethodFunc(func(md classfile.MethodDescription) bool { return md.Native })
}

// IsStatic matches static methods.
func IsStatic() MethodMatcher {
	return MethodFunc(func(md classfile.MethodDescription) bool { return md.Static })
}

// Returns matches methods returning the named type.
func Returns(name string) MethodMatcher {
	return MethodFunc(func(md classfile.MethodDescription) bool { return md.Return == name })
}

// AllMethods matches when every method matcher matches.
func AllMethods(ms ...MethodMatcher) MethodMatcher {
	return MethodFunc(func(md classfile.MethodDescription) bool {
		for _, m := range ms {
			if !m.Matches(md) {
				return false
			}
		}
		return true
	})
}
