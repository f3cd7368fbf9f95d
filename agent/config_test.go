package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/instrument"
	"github.com/chazu/transmute/locator"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(content), 0o644))
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeConfig(t, `
[agent]
retransformation = true
native-method-prefix = "wrapped_"
listeners = ["logging", "tracing"]

[locator]
class-path = "classes.db"
cache-ttl = "5m"

[metrics]
enabled = true

[[transformation]]
prefix = "app."
transformer = "stub"

[[transformation]]
pattern = "^lib\\..*Service$"
redefinitions-only = true
transformer = "log-calls"
`)

	c, err := Load(dir)
	require.NoError(t, err)

	require.NotNil(t, c.Agent.SelfInitialization)
	assert.True(t, *c.Agent.SelfInitialization, "self-initialization defaults to true")
	assert.True(t, c.Agent.Retransformation)
	assert.Equal(t, "wrapped_", c.Agent.NativeMethodPrefix)
	assert.Equal(t, []string{"logging", "tracing"}, c.Agent.Listeners)
	assert.Equal(t, ":9464", c.Metrics.Listen)
	assert.Equal(t, filepath.Join(c.Dir, "classes.db"), c.ClassPathFile())
	require.Len(t, c.Transformations, 2)
	assert.Equal(t, "log-calls", c.Transformations[1].Transformer)
	assert.True(t, c.Transformations[1].Redefinitions)
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.True(t, *c.Agent.SelfInitialization)
	assert.Equal(t, []string{"logging"}, c.Agent.Listeners)
	assert.Empty(t, c.ClassPathFile())
	assert.Empty(t, c.Metrics.Listen)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.ErrorContains(t, err, "cannot read")

	_, err = Load(writeConfig(t, "[agent\n"))
	assert.ErrorContains(t, err, "parse error")
}

func TestFromConfig(t *testing.T) {
	c, err := Load(writeConfig(t, `
[agent]
self-initialization = false
retransformation = true
native-method-prefix = "wrapped_"
listeners = ["logging"]

[locator]
cache-ttl = "1m"

[metrics]
enabled = true

[[transformation]]
name = "app.Foo"
transformer = "first"

[[transformation]]
prefix = "app."
transformer = "second"

[[transformation]]
pattern = "^app\\.B"
redefinitions-only = true
transformer = "first"
`))
	require.NoError(t, err)

	first, second := namedTransformer("first"), namedTransformer("second")
	b, err := FromConfig(c, Env{
		Transformers: map[string]Transformer{"first": first, "second": second},
		Registerer:   prometheus.NewRegistry(),
		Logger:       &recordingLogger{},
	})
	require.NoError(t, err)

	assert.False(t, b.selfInit)
	assert.True(t, b.retransformation)
	assert.Equal(t, "wrapped_", b.nativePrefix)
	assert.IsType(t, &locator.Cached{}, b.binaryLocator)
	require.IsType(t, CompoundListener{}, b.listener)
	assert.Len(t, b.listener.(CompoundListener), 2)

	tests := []struct {
		name       string
		redefining bool
		want       Transformer
		ok         bool
	}{
		{"app.Foo", false, first, true},
		{"app.Bar", false, second, true},
		{"app.Bar", true, second, true},
		{"lib.Bar", false, nil, false},
	}
	for _, tt := range tests {
		var redefined instrument.Class
		if tt.redefining {
			redefined = &fakeClass{name: tt.name}
		}
		got, ok := b.transformations.Resolve(classfile.ForName(tt.name), nil, redefined, nil)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestFromConfig_RedefinitionsOnly(t *testing.T) {
	c := &Config{Transformations: []TransformationConfig{{Pattern: "^app\\.", Redefinitions: true, Transformer: "t"}}}
	b, err := FromConfig(c, Env{Transformers: map[string]Transformer{"t": namedTransformer("t")}})
	require.NoError(t, err)

	_, ok := b.transformations.Resolve(classfile.ForName("app.Foo"), nil, nil, nil)
	assert.False(t, ok, "fresh loads are not redefinitions")
	_, ok = b.transformations.Resolve(classfile.ForName("app.Foo"), nil, &fakeClass{name: "app.Foo"}, nil)
	assert.True(t, ok)
}

func TestFromConfig_Errors(t *testing.T) {
	env := Env{Transformers: map[string]Transformer{"t": namedTransformer("t")}}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown transformer", Config{Transformations: []TransformationConfig{{Prefix: "a", Transformer: "nope"}}}},
		{"no selector", Config{Transformations: []TransformationConfig{{Transformer: "t"}}}},
		{"two selectors", Config{Transformations: []TransformationConfig{{Name: "a", Prefix: "a", Transformer: "t"}}}},
		{"bad pattern", Config{Transformations: []TransformationConfig{{Pattern: "(", Transformer: "t"}}}},
		{"bad ttl", Config{Locator: LocatorConfig{CacheTTL: "soon"}}},
		{"unknown listener", Config{Agent: AgentConfig{Listeners: []string{"carrier-pigeon"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromConfig(&tt.cfg, env)
			var ce *ConfigurationError
			assert.ErrorAs(t, err, &ce)
		})
	}
}
