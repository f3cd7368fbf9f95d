package agent

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/dynamic"
)

// Listener observes load attempts. For every attempt exactly one of
// OnTransformation, OnIgnored and OnError is called, followed by
// OnComplete. Calls arrive concurrently from the loading goroutines.
type Listener interface {
	OnTransformation(td *classfile.TypeDescription, u *dynamic.Unloaded)
	OnIgnored(name string)
	OnError(name string, err error)
	OnComplete(name string)
}

// NoOpListener ignores every event.
type NoOpListener struct{}

func (NoOpListener) OnTransformation(*classfile.TypeDescription, *dynamic.Unloaded) {}
func (NoOpListener) OnIgnored(string)                                               {}
func (NoOpListener) OnError(string, error)                                          {}
func (NoOpListener) OnComplete(string)                                              {}

// CompoundListener forwards every event to each listener in order.
type CompoundListener []Listener

func (cl CompoundListener) OnTransformation(td *classfile.TypeDescription, u *dynamic.Unloaded) {
	for _, l := range cl {
		l.OnTransformation(td, u)
	}
}

func (cl CompoundListener) OnIgnored(name string) {
	for _, l := range cl {
		l.OnIgnored(name)
	}
}

func (cl CompoundListener) OnError(name string, err error) {
	for _, l := range cl {
		l.OnError(name, err)
	}
}

func (cl CompoundListener) OnComplete(name string) {
	for _, l := range cl {
		l.OnComplete(name)
	}
}

// ---------------------------------------------------------------------------
// LoggingListener
// ---------------------------------------------------------------------------

// Logger is the subset of commonlog.Logger the logging listener writes to.
type Logger interface {
	Info(message string, keysAndValues ...any)
	Debug(message string, keysAndValues ...any)
	Error(message string, keysAndValues ...any)
}

// LoggingListener logs transformations and errors at info and error level
// and everything else at debug level.
type LoggingListener struct {
	Log Logger
}

// NewLoggingListener logs to log, or to the "transmute.agent" logger when
// log is nil.
func NewLoggingListener(log Logger) *LoggingListener {
	if log == nil {
		log = commonlog.GetLogger("transmute.agent")
	}
	return &LoggingListener{Log: log}
}

func (l *LoggingListener) OnTransformation(td *classfile.TypeDescription, u *dynamic.Unloaded) {
	l.Log.Info("transformed type", "type", td.Name(), "bytes", len(u.Bytes), "auxiliaries", len(u.Auxiliaries))
}

func (l *LoggingListener) OnIgnored(name string) {
	l.Log.Debug("ignored type", "type", name)
}

func (l *LoggingListener) OnError(name string, err error) {
	l.Log.Error("transformation failed", "type", name, "error", err)
}

func (l *LoggingListener) OnComplete(name string) {
	l.Log.Debug("completed type", "type", name)
}
