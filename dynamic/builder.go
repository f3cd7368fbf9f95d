// Package dynamic builds rewritten class files. A Builder rebases an
// existing type: intercepted methods get generated bodies while their
// originals are kept under new names, and the result is produced as an
// Unloaded type together with any auxiliary types and the loaded-type
// initializers the host must run once the types are defined.
package dynamic

import (
	"fmt"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/locator"
	"github.com/chazu/transmute/matcher"
	"github.com/chazu/transmute/stack"
	"github.com/chazu/transmute/stack/assign"
)

// ByteBuddy creates builders. Its zero value is not usable; call New.
type ByteBuddy struct {
	Assigner assign.Assigner
}

// New returns a factory using the default assigner chain.
func New() *ByteBuddy {
	return &ByteBuddy{Assigner: assign.Default}
}

// Rebase starts a builder for td, reading its class file from loc. Methods
// replaced by the builder keep their original bodies under names chosen by
// names; a nil names uses a random suffix.
func (bb *ByteBuddy) Rebase(td *classfile.TypeDescription, loc locator.ClassFileLocator, names MethodNameTransformer) (Builder, error) {
	binary, err := loc.Locate(td.Name())
	if err != nil {
		return Builder{}, fmt.Errorf("rebasing %s: %w", td.Name(), err)
	}
	cf, err := classfile.Unmarshal(binary)
	if err != nil {
		return Builder{}, fmt.Errorf("rebasing %s: %w", td.Name(), err)
	}
	if names == nil {
		names = NewSuffixing()
	}
	return Builder{
		assigner: bb.Assigner,
		td:       td,
		file:     cf,
		names:    names,
	}, nil
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// Builder accumulates changes to one type. It is a value: every method
// returns a new Builder and leaves the receiver untouched.
type Builder struct {
	assigner assign.Assigner
	td       *classfile.TypeDescription
	file     *classfile.ClassFile
	names    MethodNameTransformer

	interceptions []interception
	fields        []classfile.Field
	typeInit      []stack.Manipulation
	auxTypeInit   []stack.Manipulation
	initializers  []LoadedTypeInitializer
	auxiliaries   []auxiliary
}

type interception struct {
	matcher matcher.MethodMatcher
	impl    Implementation
}

type auxiliary struct {
	file *classfile.ClassFile
	init LoadedTypeInitializer
}

// TypeDescription returns the description of the type being rebased.
func (b Builder) TypeDescription() *classfile.TypeDescription {
	return b.td
}

// MethodDefinition selects methods to intercept.
type MethodDefinition struct {
	b Builder
	m matcher.MethodMatcher
}

// Method selects declared methods. The first interception registered for a
// method wins.
func (b Builder) Method(m matcher.MethodMatcher) MethodDefinition {
	return MethodDefinition{b: b, m: m}
}

// Intercept replaces the body of every selected method.
func (md MethodDefinition) Intercept(impl Implementation) Builder {
	b := md.b
	b.interceptions = appendCopy(b.interceptions, interception{matcher: md.m, impl: impl})
	return b
}

// DefineField adds a static field.
func (b Builder) DefineField(name, typ string) Builder {
	b.fields = appendCopy(b.fields, classfile.Field{Name: name, Type: typ, Static: true})
	return b
}

// InitializeWith adds a loaded-type initializer for the primary type.
func (b Builder) InitializeWith(init LoadedTypeInitializer) Builder {
	b.initializers = appendCopy(b.initializers, init)
	return b
}

// WithTypeInitializer prepends code to the static initializer of the
// primary type and of every auxiliary type. Stages run in the order added.
func (b Builder) WithTypeInitializer(m stack.Manipulation) Builder {
	b.typeInit = appendCopy(b.typeInit, m)
	return b
}

// WithAuxiliaryTypeInitializer is like WithTypeInitializer but leaves the
// primary type alone. Auxiliary stages run after the shared ones.
func (b Builder) WithAuxiliaryTypeInitializer(m stack.Manipulation) Builder {
	b.auxTypeInit = appendCopy(b.auxTypeInit, m)
	return b
}

// WithAuxiliary adds a helper type produced alongside the primary type.
func (b Builder) WithAuxiliary(cf *classfile.ClassFile, init LoadedTypeInitializer) Builder {
	if init == nil {
		init = NoOpInitializer{}
	}
	b.auxiliaries = appendCopy(b.auxiliaries, auxiliary{file: cf.Clone(), init: init})
	return b
}

// Make produces the rewritten type.
func (b Builder) Make() (*Unloaded, error) {
	if b.file == nil {
		return nil, fmt.Errorf("dynamic: builder was not created by Rebase")
	}
	cf := b.file.Clone()
	fields := append(cf.Fields, b.fields...)
	inits := append([]LoadedTypeInitializer(nil), b.initializers...)

	methods := make([]classfile.Method, 0, len(cf.Methods))
	for i := range cf.Methods {
		m := &cf.Methods[i]
		impl, ok := b.implementationFor(m.Describe())
		if !ok {
			methods = append(methods, *m)
			continue
		}

		renamed := m.Clone()
		renamed.Name = b.names.Transform(m.Describe())
		if _, exists := cf.Method(renamed.Name); exists || renamed.Name == m.Name {
			return nil, fmt.Errorf("dynamic: cannot rename %s.%s to %s", cf.Name, m.Name, renamed.Name)
		}

		target := &Target{
			Type:     b.td,
			Method:   m.Describe(),
			Original: renamed.Name,
			Assigner: b.assigner,
			fields:   &fields,
			inits:    &inits,
		}
		manipulation, err := impl.Implement(target)
		if err != nil {
			return nil, fmt.Errorf("dynamic: implementing %s.%s: %w", cf.Name, m.Name, err)
		}
		if !manipulation.IsValid() {
			return nil, fmt.Errorf("dynamic: implementation of %s.%s is not valid", cf.Name, m.Name)
		}

		code := classfile.NewCode()
		size := manipulation.Apply(code)
		generated := classfile.Method{
			Name:   m.Name,
			Params: append([]string(nil), m.Params...),
			Return: m.Return,
			Static: m.Static,
		}
		code.Install(&generated, size.Maximal)
		methods = append(methods, *renamed, generated)
	}
	cf.Methods = methods
	cf.Fields = fields
	cf.TypeInitializer = prependStages(b.typeInit, cf.TypeInitializer)

	binary, err := classfile.Marshal(cf)
	if err != nil {
		return nil, fmt.Errorf("dynamic: encoding %s: %w", cf.Name, err)
	}

	unloaded := &Unloaded{
		Description:  classfile.ForClassFile(cf, b.td.Superclass()),
		Bytes:        binary,
		Initializers: map[string]LoadedTypeInitializer{cf.Name: compound(inits)},
	}
	auxStages := append(append([]stack.Manipulation(nil), b.typeInit...), b.auxTypeInit...)
	for _, aux := range b.auxiliaries {
		acf := aux.file.Clone()
		acf.TypeInitializer = prependStages(auxStages, acf.TypeInitializer)
		abin, err := classfile.Marshal(acf)
		if err != nil {
			return nil, fmt.Errorf("dynamic: encoding auxiliary %s: %w", acf.Name, err)
		}
		if _, dup := unloaded.Initializers[acf.Name]; dup {
			return nil, fmt.Errorf("dynamic: duplicate type %s", acf.Name)
		}
		var super *classfile.TypeDescription
		if acf.Superclass != "" {
			super = classfile.ForName(acf.Superclass)
		}
		unloaded.Auxiliaries = append(unloaded.Auxiliaries, &Unloaded{
			Description: classfile.ForClassFile(acf, super),
			Bytes:       abin,
		})
		unloaded.Initializers[acf.Name] = aux.init
	}
	return unloaded, nil
}

func (b Builder) implementationFor(md classfile.MethodDescription) (Implementation, bool) {
	for _, i := range b.interceptions {
		if i.matcher.Matches(md) {
			return i.impl, true
		}
	}
	return nil, false
}

// prependStages prepends initializer stages to existing.
func prependStages(stages []stack.Manipulation, existing *classfile.Method) *classfile.Method {
	if len(stages) == 0 {
		return existing
	}
	code := classfile.NewCode()
	size := stack.Compound(stages).Apply(code)
	maxStack := size.Maximal

	if existing == nil {
		code.Emit(classfile.OpReturn)
	} else {
		code.Append(classfile.CodeOf(existing))
		maxStack = max(maxStack, size.Impact+int(existing.MaxStack))
	}
	m := &classfile.Method{Name: classfile.TypeInitializerName, Return: "void", Static: true}
	code.Install(m, maxStack)
	return m
}

func appendCopy[T any](s []T, v T) []T {
	out := make([]T, len(s), len(s)+1)
	copy(out, s)
	return append(out, v)
}

// ---------------------------------------------------------------------------
// Unloaded
// ---------------------------------------------------------------------------

// Unloaded is a built type that has not been defined by a host yet.
type Unloaded struct {
	Description *classfile.TypeDescription
	Bytes       []byte
	Auxiliaries []*Unloaded

	// Initializers maps the primary type and every auxiliary type by name to
	// the initializer that must run once it is defined. Only set on the
	// primary result.
	Initializers map[string]LoadedTypeInitializer
}

// Name returns the name of the built type.
func (u *Unloaded) Name() string {
	return u.Description.Name()
}

// Initializer returns the loaded-type initializer for a produced type.
func (u *Unloaded) Initializer(name string) LoadedTypeInitializer {
	if i, ok := u.Initializers[name]; ok && i != nil {
		return i
	}
	return NoOpInitializer{}
}
