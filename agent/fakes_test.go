package agent

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/dynamic"
	"github.com/chazu/transmute/instrument"
	"github.com/chazu/transmute/locator"
	"github.com/chazu/transmute/nexus"
)

type mockInstrumentation struct {
	mock.Mock
}

func (m *mockInstrumentation) AddTransformer(t instrument.ClassFileTransformer, canRetransform bool) {
	m.Called(t, canRetransform)
}

func (m *mockInstrumentation) RemoveTransformer(t instrument.ClassFileTransformer) bool {
	return m.Called(t).Bool(0)
}

func (m *mockInstrumentation) IsRetransformClassesSupported() bool {
	return m.Called().Bool(0)
}

func (m *mockInstrumentation) AllLoadedClasses() []instrument.Class {
	args := m.Called()
	if classes, ok := args.Get(0).([]instrument.Class); ok {
		return classes
	}
	return nil
}

func (m *mockInstrumentation) RetransformClasses(classes ...instrument.Class) error {
	return m.Called(classes).Error(0)
}

func (m *mockInstrumentation) SetNativeMethodPrefix(t instrument.ClassFileTransformer, prefix string) error {
	return m.Called(t, prefix).Error(0)
}

// hostWithNexus is an instrumentation that provides its own Nexus.
type hostWithNexus struct {
	*mockInstrumentation
	n *nexus.Nexus
}

func (h hostWithNexus) Nexus() *nexus.Nexus { return h.n }

type fakeLoader struct {
	id        string
	injectErr error

	mu       sync.Mutex
	injected []string
}

func (l *fakeLoader) ID() string                   { return l.id }
func (l *fakeLoader) Locate(string) ([]byte, bool) { return nil, false }

func (l *fakeLoader) Injected() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.injected...)
}

func (l *fakeLoader) Inject(name string, binary []byte, pd *instrument.ProtectionDomain) (instrument.Class, error) {
	if l.injectErr != nil {
		return nil, l.injectErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.injected = append(l.injected, name)
	return &fakeClass{name: name, loader: l, bytes: binary}, nil
}

type fakeClass struct {
	name   string
	loader instrument.Loader
	bytes  []byte

	mu      sync.Mutex
	statics map[string]any
}

func (c *fakeClass) Name() string                                   { return c.name }
func (c *fakeClass) Loader() instrument.Loader                      { return c.loader }
func (c *fakeClass) ProtectionDomain() *instrument.ProtectionDomain { return nil }
func (c *fakeClass) Bytes() []byte                                  { return c.bytes }

func (c *fakeClass) GetStatic(field string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.statics[field]
	if !ok {
		return nil, fmt.Errorf("no static %s", field)
	}
	return v, nil
}

func (c *fakeClass) SetStatic(field string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statics == nil {
		c.statics = make(map[string]any)
	}
	c.statics[field] = value
	return nil
}

func (c *fakeClass) Invoke(string, ...any) (any, error) { return nil, nil }

// countingLocator counts the scopes it opens and the Close calls they get.
type countingLocator struct {
	inner locator.BinaryLocator

	opened atomic.Int32
	closed atomic.Int32
}

func (c *countingLocator) Initialize(name string, binary []byte, loader instrument.Loader) (locator.Initialized, error) {
	s, err := c.inner.Initialize(name, binary, loader)
	if err != nil {
		return nil, err
	}
	c.opened.Add(1)
	return &countingScope{Initialized: s, closed: &c.closed}, nil
}

type countingScope struct {
	locator.Initialized
	closed *atomic.Int32
}

func (s *countingScope) Close() error {
	s.closed.Add(1)
	return s.Initialized.Close()
}

// panickingListener panics on every event.
type panickingListener struct{}

func (panickingListener) OnTransformation(*classfile.TypeDescription, *dynamic.Unloaded) {
	panic("listener")
}
func (panickingListener) OnIgnored(string)      { panic("listener") }
func (panickingListener) OnError(string, error) { panic("listener") }
func (panickingListener) OnComplete(string)     { panic("listener") }

// recordingListener records events as "kind:name".
type recordingListener struct {
	mu     sync.Mutex
	events []string
	errs   []error
}

func (r *recordingListener) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingListener) OnTransformation(td *classfile.TypeDescription, _ *dynamic.Unloaded) {
	r.record("transformed:" + td.Name())
}

func (r *recordingListener) OnIgnored(name string) { r.record("ignored:" + name) }

func (r *recordingListener) OnError(name string, err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.record("error:" + name)
}

func (r *recordingListener) OnComplete(name string) { r.record("complete:" + name) }

func (r *recordingListener) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingListener) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

func classBytes(name string) []byte {
	cf := classfile.New(name, "")
	code := classfile.NewCode()
	code.EmitWithOperand(classfile.OpLoadArg, 0)
	code.Emit(classfile.OpReturnValue)
	echo := classfile.Method{Name: "echo", Params: []string{"int"}, Return: "int", Static: true}
	code.Install(&echo, 1)
	cf.Methods = []classfile.Method{echo}
	return classfile.MustMarshal(cf)
}
