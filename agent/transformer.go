package agent

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/dynamic"
	"github.com/chazu/transmute/instrument"
	"github.com/chazu/transmute/locator"
)

// ExecutingTransformer is the hook an installed agent registers with the
// host. Its configuration is frozen; Transform may be called concurrently.
type ExecutingTransformer struct {
	byteBuddy       *dynamic.ByteBuddy
	names           dynamic.MethodNameTransformer
	binaryLocator   locator.BinaryLocator
	listener        Listener
	strategy        InitializationStrategy
	transformations Transformations
}

type outcome int

const (
	transformed outcome = iota
	ignored
	failed
)

// result is the outcome of one attempt before it is reported to the host.
type result struct {
	outcome outcome
	td      *classfile.TypeDescription
	unload  *dynamic.Unloaded
	err     error
}

// Transform implements instrument.ClassFileTransformer. It never panics and
// returns nil unless the type was rewritten. A panicking listener does not
// change the outcome: once the initializers are registered the rewritten
// bytes are returned.
func (t *ExecutingTransformer) Transform(loader instrument.Loader, name string, classBeingRedefined instrument.Class, pd *instrument.ProtectionDomain, original []byte) []byte {
	r := t.transform(loader, name, classBeingRedefined, pd, original)
	defer t.notify(name, func() { t.listener.OnComplete(name) })

	switch r.outcome {
	case transformed:
		t.notify(name, func() { t.listener.OnTransformation(r.td, r.unload) })
		return r.unload.Bytes
	case ignored:
		t.notify(name, func() { t.listener.OnIgnored(name) })
	default:
		t.notify(name, func() { t.listener.OnError(name, r.err) })
	}
	return nil
}

func (t *ExecutingTransformer) notify(name string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			commonlog.GetLogger("transmute.agent").Error("listener panicked", "type", name, "panic", p)
		}
	}()
	fn()
}

func (t *ExecutingTransformer) transform(loader instrument.Loader, name string, classBeingRedefined instrument.Class, pd *instrument.ProtectionDomain, original []byte) (r result) {
	defer func() {
		if p := recover(); p != nil {
			r = result{outcome: failed, err: &TransformationError{Name: name, Err: fmt.Errorf("panic: %v", p)}}
		}
	}()

	scope, err := t.binaryLocator.Initialize(name, original, loader)
	if err != nil {
		return result{outcome: failed, err: &ResolutionError{Name: name, Err: err}}
	}
	defer scope.Close()

	td, err := scope.TypePool().Describe(name).Resolve()
	if err != nil {
		return result{outcome: failed, err: &ResolutionError{Name: name, Err: err}}
	}

	transformer, ok := t.transformations.Resolve(td, loader, classBeingRedefined, pd)
	if !ok {
		return result{outcome: ignored}
	}

	u, err := t.apply(transformer, td, scope.ClassFileLocator(), loader, classBeingRedefined, pd)
	if err != nil {
		return result{outcome: failed, err: &TransformationError{Name: name, Err: err}}
	}
	return result{outcome: transformed, td: td, unload: u}
}

func (t *ExecutingTransformer) apply(transformer Transformer, td *classfile.TypeDescription, loc locator.ClassFileLocator, loader instrument.Loader, classBeingRedefined instrument.Class, pd *instrument.ProtectionDomain) (u *dynamic.Unloaded, err error) {
	dispatcher := t.strategy.Dispatcher(td, loader, classBeingRedefined)
	defer func() {
		if err != nil {
			dispatcher.Release()
		}
	}()
	// Panics below still release the dispatcher's claims.
	defer func() {
		if p := recover(); p != nil {
			dispatcher.Release()
			panic(p)
		}
	}()

	b, err := t.byteBuddy.Rebase(td, loc, t.names)
	if err != nil {
		return nil, err
	}
	if b, err = dispatcher.Apply(b); err != nil {
		return nil, err
	}
	if b, err = transformer.Transform(b, td); err != nil {
		return nil, err
	}
	if u, err = b.Make(); err != nil {
		return nil, err
	}
	if err = dispatcher.Register(u, pd); err != nil {
		return nil, err
	}
	return u, nil
}
