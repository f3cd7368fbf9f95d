package agent

import (
	"strings"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/dynamic"
	"github.com/chazu/transmute/instrument"
	"github.com/chazu/transmute/matcher"
)

// RawMatcher decides whether a load attempt is a candidate for
// transformation. classBeingRedefined is nil for fresh loads.
type RawMatcher interface {
	Matches(td *classfile.TypeDescription, loader instrument.Loader, classBeingRedefined instrument.Class, pd *instrument.ProtectionDomain) bool
}

// RawMatcherFunc adapts a function to RawMatcher.
type RawMatcherFunc func(td *classfile.TypeDescription, loader instrument.Loader, classBeingRedefined instrument.Class, pd *instrument.ProtectionDomain) bool

func (f RawMatcherFunc) Matches(td *classfile.TypeDescription, loader instrument.Loader, classBeingRedefined instrument.Class, pd *instrument.ProtectionDomain) bool {
	return f(td, loader, classBeingRedefined, pd)
}

// ByType matches on the type description alone.
func ByType(m matcher.ElementMatcher) RawMatcher {
	return RawMatcherFunc(func(td *classfile.TypeDescription, _ instrument.Loader, _ instrument.Class, _ *instrument.ProtectionDomain) bool {
		return m.Matches(td)
	})
}

// ByName matches types whose name starts with prefix.
func ByName(prefix string) RawMatcher {
	return RawMatcherFunc(func(td *classfile.TypeDescription, _ instrument.Loader, _ instrument.Class, _ *instrument.ProtectionDomain) bool {
		return strings.HasPrefix(td.Name(), prefix)
	})
}

// ByLoader matches types defined by loaders accepted by accept.
func ByLoader(accept func(instrument.Loader) bool) RawMatcher {
	return RawMatcherFunc(func(_ *classfile.TypeDescription, l instrument.Loader, _ instrument.Class, _ *instrument.ProtectionDomain) bool {
		return accept(l)
	})
}

// Redefinitions matches retransformation attempts only.
func Redefinitions() RawMatcher {
	return RawMatcherFunc(func(_ *classfile.TypeDescription, _ instrument.Loader, c instrument.Class, _ *instrument.ProtectionDomain) bool {
		return c != nil
	})
}

// ---------------------------------------------------------------------------
// Transformers
// ---------------------------------------------------------------------------

// Transformer rewrites a type through its builder.
type Transformer interface {
	Transform(b dynamic.Builder, td *classfile.TypeDescription) (dynamic.Builder, error)
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(b dynamic.Builder, td *classfile.TypeDescription) (dynamic.Builder, error)

func (f TransformerFunc) Transform(b dynamic.Builder, td *classfile.TypeDescription) (dynamic.Builder, error) {
	return f(b, td)
}

// CompoundTransformer applies transformers in order, stopping at the first
// error.
type CompoundTransformer []Transformer

func (ct CompoundTransformer) Transform(b dynamic.Builder, td *classfile.TypeDescription) (dynamic.Builder, error) {
	var err error
	for _, t := range ct {
		if b, err = t.Transform(b, td); err != nil {
			return b, err
		}
	}
	return b, nil
}

// ---------------------------------------------------------------------------
// Transformation registry
// ---------------------------------------------------------------------------

type transformation struct {
	matcher     RawMatcher
	transformer Transformer
}

// Transformations is an ordered list of matcher/transformer pairs. It is
// never modified once an agent is installed.
type Transformations []transformation

// Resolve returns the transformer of the first pair whose matcher accepts
// the attempt.
func (ts Transformations) Resolve(td *classfile.TypeDescription, loader instrument.Loader, classBeingRedefined instrument.Class, pd *instrument.ProtectionDomain) (Transformer, bool) {
	for _, t := range ts {
		if t.matcher.Matches(td, loader, classBeingRedefined, pd) {
			return t.transformer, true
		}
	}
	return nil, false
}
