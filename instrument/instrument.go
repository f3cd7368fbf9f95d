// Package instrument defines the contracts between a host execution
// environment and agents that rewrite types as they are loaded.
package instrument

// Loader defines types for one namespace. Its identity is the pair used to
// key per-loader state such as pending type initializers.
type Loader interface {
	// ID returns a stable identity for the loader.
	ID() string

	// Locate returns the binary representation of a type visible to the
	// loader, without defining it.
	Locate(name string) ([]byte, bool)

	// Inject defines a type eagerly, bypassing registered transformers.
	// It is used for auxiliary types produced while transforming another.
	Inject(name string, binary []byte, pd *ProtectionDomain) (Class, error)
}

// LoaderID returns the identity of l, treating nil as the bootstrap loader.
func LoaderID(l Loader) string {
	if l == nil {
		return ""
	}
	return l.ID()
}

// ProtectionDomain describes where a type's code came from.
type ProtectionDomain struct {
	CodeSource string
}

// Callable is the runtime form of a function value stored in a static
// field and invoked by generated code.
type Callable func(args []any) (any, error)

// Class is a type that has been defined by a loader.
type Class interface {
	Name() string
	Loader() Loader
	ProtectionDomain() *ProtectionDomain

	// Bytes returns the binary representation the class is currently
	// defined from.
	Bytes() []byte

	GetStatic(field string) (any, error)
	SetStatic(field string, value any) error

	// Invoke calls a static method, initializing the class first.
	Invoke(method string, args ...any) (any, error)
}

// ClassFileTransformer is invoked by the host for every load attempt and
// every retransformation it is registered for. Returning nil leaves the
// binary representation unchanged.
type ClassFileTransformer interface {
	Transform(loader Loader, name string, classBeingRedefined Class, pd *ProtectionDomain, original []byte) []byte
}

// Instrumentation is the host's hook registry.
type Instrumentation interface {
	AddTransformer(t ClassFileTransformer, canRetransform bool)
	RemoveTransformer(t ClassFileTransformer) bool

	IsRetransformClassesSupported() bool
	AllLoadedClasses() []Class
	RetransformClasses(classes ...Class) error

	// SetNativeMethodPrefix registers the prefix t uses when renaming
	// native methods so the host can still bind them.
	SetNativeMethodPrefix(t ClassFileTransformer, prefix string) error
}
