package host

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/instrument"
)

// ErrErroneous marks a class whose initialization failed. Such a class can
// never be used again.
var ErrErroneous = errors.New("host: class is erroneous")

// InitializationError reports the failed static initialization of a class.
type InitializationError struct {
	Class string
	Err   error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("host: initializing %s: %v", e.Class, e.Err)
}

func (e *InitializationError) Unwrap() []error { return []error{ErrErroneous, e.Err} }

// Class is a type defined by a Loader. Its static initializer runs once,
// on first use.
type Class struct {
	name   string
	loader *Loader
	pd     *instrument.ProtectionDomain

	// base is the input to retransformation: the loaded bytes after the
	// transformers that cannot retransform.
	base []byte

	mu      sync.RWMutex
	file    *classfile.ClassFile
	bytes   []byte
	statics map[string]any

	initOnce sync.Once
	initErr  error
}

func newClass(l *Loader, cf *classfile.ClassFile, base, current []byte, pd *instrument.ProtectionDomain) *Class {
	c := &Class{
		name:    cf.Name,
		loader:  l,
		pd:      pd,
		base:    base,
		file:    cf,
		bytes:   current,
		statics: make(map[string]any),
	}
	c.declareStatics(cf)
	return c
}

// declareStatics gives every static field without a value its default.
func (c *Class) declareStatics(cf *classfile.ClassFile) {
	for _, f := range cf.Fields {
		if _, ok := c.statics[f.Name]; !ok && f.Static {
			c.statics[f.Name] = defaultValue(kindOf(f.Type))
		}
	}
}

func (c *Class) Name() string                                   { return c.name }
func (c *Class) Loader() instrument.Loader                      { return c.loader }
func (c *Class) ProtectionDomain() *instrument.ProtectionDomain { return c.pd }

// Bytes returns the binary representation the class is currently defined
// from.
func (c *Class) Bytes() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bytes
}

// ClassFile returns a copy of the current definition.
func (c *Class) ClassFile() *classfile.ClassFile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.file.Clone()
}

// GetStatic reads a static field in host representation.
func (c *Class) GetStatic(field string) (any, error) {
	v, k, err := c.getStatic(field)
	if err != nil {
		return nil, err
	}
	return fromStack(k, v), nil
}

// SetStatic writes a static field. Fields not declared yet are accepted so
// that a class being redefined can be prepared before its new definition
// is installed.
func (c *Class) SetStatic(field string, value any) error {
	k := c.fieldKind(field)
	v, err := toStack(k, value)
	if err != nil {
		return fmt.Errorf("host: setting %s.%s: %w", c.name, field, err)
	}
	c.putStatic(field, v)
	return nil
}

func (c *Class) getStatic(field string) (any, classfile.Kind, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.statics[field]
	if !ok {
		return nil, classfile.Reference, fmt.Errorf("host: %s has no static field %s", c.name, field)
	}
	return v, c.fieldKindLocked(field), nil
}

func (c *Class) putStatic(field string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statics[field] = v
}

func (c *Class) fieldKind(field string) classfile.Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fieldKindLocked(field)
}

func (c *Class) fieldKindLocked(field string) classfile.Kind {
	if f, ok := c.file.Field(field); ok {
		return kindOf(f.Type)
	}
	return classfile.Reference
}

func (c *Class) method(name string) (*classfile.Method, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.file.Method(name)
}

// Invoke calls a static method with arguments in host representation,
// initializing the class first.
func (c *Class) Invoke(method string, args ...any) (any, error) {
	if err := c.Initialize(); err != nil {
		return nil, err
	}
	m, ok := c.method(method)
	if !ok {
		return nil, fmt.Errorf("host: %s has no method %s", c.name, method)
	}
	if len(args) != len(m.Params) {
		return nil, fmt.Errorf("host: %s.%s takes %d arguments, %d given", c.name, method, len(m.Params), len(args))
	}
	stackArgs := make([]any, len(args))
	for i, a := range args {
		v, err := toStack(kindOf(m.Params[i]), a)
		if err != nil {
			return nil, fmt.Errorf("host: %s.%s argument %d: %w", c.name, method, i, err)
		}
		stackArgs[i] = v
	}
	v, err := c.call(m, stackArgs, 0)
	if err != nil {
		return nil, err
	}
	return fromStack(kindOf(m.Return), v), nil
}

// call runs a method with stack-representation arguments.
func (c *Class) call(m *classfile.Method, args []any, depth int) (any, error) {
	if !m.Native {
		return c.execute(m, args, depth)
	}
	fn, err := c.loader.rt.resolveNative(c.name, m.Name)
	if err != nil {
		return nil, err
	}
	hostArgs := make([]any, len(args))
	for i, a := range args {
		hostArgs[i] = fromStack(kindOf(m.Params[i]), a)
	}
	v, err := fn(hostArgs)
	if err != nil {
		return nil, fmt.Errorf("host: native %s.%s: %w", c.name, m.Name, err)
	}
	return toStack(kindOf(m.Return), v)
}

// ---------------------------------------------------------------------------
// Initialization
// ---------------------------------------------------------------------------

// Initialize runs the static initializer of the class and its superclass
// if that has not happened yet. A failed initialization is permanent.
func (c *Class) Initialize() error {
	c.initOnce.Do(func() {
		if err := c.initialize(); err != nil {
			c.initErr = &InitializationError{Class: c.name, Err: err}
			c.loader.rt.log.Error("class is erroneous", "class", c.name, "error", err)
		}
	})
	return c.initErr
}

// IsErroneous reports whether initialization failed.
func (c *Class) IsErroneous() bool {
	return errors.Is(c.Initialize(), ErrErroneous)
}

func (c *Class) initialize() error {
	c.mu.RLock()
	super := c.file.Superclass
	init := c.file.TypeInitializer
	c.mu.RUnlock()

	if super != "" && !isBuiltin(super) {
		sc, err := c.loader.Load(super)
		if err != nil {
			return err
		}
		if err := sc.checkHierarchy(c.name); err != nil {
			return err
		}
		if err := sc.Initialize(); err != nil {
			return err
		}
	}
	if init == nil {
		return nil
	}
	_, err := c.execute(init, nil, 0)
	return err
}

// checkHierarchy fails when name appears among c and its superclasses.
func (c *Class) checkHierarchy(name string) error {
	cur := c
	for range maxHierarchyDepth {
		if cur.name == name {
			return fmt.Errorf("host: circular superclass chain through %s", name)
		}
		cur.mu.RLock()
		super := cur.file.Superclass
		cur.mu.RUnlock()
		if super == "" || isBuiltin(super) {
			return nil
		}
		next, err := cur.loader.Load(super)
		if err != nil {
			return err
		}
		cur = next
	}
	return fmt.Errorf("host: superclass chain of %s exceeds depth %d", name, maxHierarchyDepth)
}

// redefine installs a new definition, keeping static state.
func (c *Class) redefine(binary []byte) error {
	cf, err := classfile.Unmarshal(binary)
	if err != nil {
		return fmt.Errorf("host: redefining %s: %w", c.name, err)
	}
	if cf.Name != c.name {
		return fmt.Errorf("host: redefining %s: class file declares %s", c.name, cf.Name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.file = cf
	c.bytes = binary
	c.declareStatics(cf)
	return nil
}

func (c *Class) String() string {
	return fmt.Sprintf("%s@%s", c.name, c.loader.id)
}

func isBuiltin(name string) bool {
	return name == classfile.ObjectName || name == classfile.StringName
}
