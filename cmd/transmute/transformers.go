package main

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/transmute/agent"
	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/dynamic"
	"github.com/chazu/transmute/matcher"
)

// builtinTransformers are the transformers [[transformation]] entries can
// name.
func builtinTransformers(log commonlog.Logger) map[string]agent.Transformer {
	return map[string]agent.Transformer{
		"stub":      stubAll(),
		"log-calls": logCalls(log),
	}
}

// stubAll makes every method return the default value of its type.
func stubAll() agent.Transformer {
	return agent.TransformerFunc(func(b dynamic.Builder, _ *classfile.TypeDescription) (dynamic.Builder, error) {
		return b.Method(matcher.AnyMethod()).Intercept(dynamic.StubValue{}), nil
	})
}

// logCalls logs the arguments and result of every call.
func logCalls(log commonlog.Logger) agent.Transformer {
	return agent.TransformerFunc(func(b dynamic.Builder, td *classfile.TypeDescription) (dynamic.Builder, error) {
		return b.Method(matcher.AnyMethod()).Intercept(dynamic.Intercept(func(inv *dynamic.Invocation) (any, error) {
			v, err := inv.Proceed()
			if err != nil {
				log.Error("call failed", "type", td.Name(), "method", inv.Method.Name, "error", err)
				return nil, err
			}
			log.Info("call", "type", td.Name(), "method", inv.Method.Name, "args", inv.Args, "result", v)
			return v, nil
		})), nil
	})
}
