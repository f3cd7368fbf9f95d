package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/instrument"
	"github.com/chazu/transmute/locator"
	"github.com/chazu/transmute/matcher"
)

// ConfigFile is the name Load looks for.
const ConfigFile = "transmute.toml"

// Config represents a transmute.toml agent configuration.
type Config struct {
	Agent           AgentConfig            `toml:"agent"`
	Locator         LocatorConfig          `toml:"locator"`
	Metrics         MetricsConfig          `toml:"metrics"`
	Transformations []TransformationConfig `toml:"transformation"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-"`
}

// AgentConfig contains the builder options.
type AgentConfig struct {
	SelfInitialization *bool    `toml:"self-initialization"`
	Retransformation   bool     `toml:"retransformation"`
	NativeMethodPrefix string   `toml:"native-method-prefix"`
	Listeners          []string `toml:"listeners"`
}

// LocatorConfig configures type resolution.
type LocatorConfig struct {
	ClassPath string `toml:"class-path"`
	CacheTTL  string `toml:"cache-ttl"`
}

// MetricsConfig configures the prometheus listener.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// TransformationConfig is one matcher/transformer pair. Exactly one of
// Name, Prefix and Pattern selects types.
type TransformationConfig struct {
	Name          string `toml:"name"`
	Prefix        string `toml:"prefix"`
	Pattern       string `toml:"pattern"`
	Redefinitions bool   `toml:"redefinitions-only"`
	Transformer   string `toml:"transformer"`
}

// Load parses transmute.toml from dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFile))
}

// LoadFile parses a configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	// Defaults
	if c.Agent.SelfInitialization == nil {
		enabled := true
		c.Agent.SelfInitialization = &enabled
	}
	if len(c.Agent.Listeners) == 0 {
		c.Agent.Listeners = []string{"logging"}
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9464"
	}

	return &c, nil
}

// ClassPathFile returns the class path database path relative to the
// configuration directory, or "" when none is configured.
func (c *Config) ClassPathFile() string {
	if c.Locator.ClassPath == "" || filepath.IsAbs(c.Locator.ClassPath) {
		return c.Locator.ClassPath
	}
	return filepath.Join(c.Dir, c.Locator.ClassPath)
}

// Env supplies the runtime pieces a configuration refers to.
type Env struct {
	// Transformers by the name used in [[transformation]] entries.
	Transformers map[string]Transformer

	// ClassPath resolves types not visible to the loading loader.
	ClassPath locator.ClassFileLocator

	Registerer prometheus.Registerer
	Logger     Logger
	Tracer     trace.Tracer
}

// FromConfig builds an agent from a configuration.
func FromConfig(c *Config, env Env) (Builder, error) {
	b := New()

	if c.Agent.SelfInitialization != nil && !*c.Agent.SelfInitialization {
		b = b.DisableSelfInitialization()
	}
	if c.Agent.Retransformation {
		b = b.AllowRetransformation()
	}
	if c.Agent.NativeMethodPrefix != "" {
		var err error
		if b, err = b.WithNativeMethodPrefix(c.Agent.NativeMethodPrefix); err != nil {
			return b, err
		}
	}

	if c.Locator.CacheTTL != "" {
		ttl, err := time.ParseDuration(c.Locator.CacheTTL)
		if err != nil {
			return b, &ConfigurationError{Option: "locator cache-ttl", Reason: err.Error()}
		}
		b = b.WithBinaryLocator(locator.NewCached(env.ClassPath, ttl))
	} else {
		b = b.WithBinaryLocator(locator.Default{ClassPath: env.ClassPath})
	}

	var listeners []Listener
	for _, name := range c.Agent.Listeners {
		switch name {
		case "logging":
			listeners = append(listeners, NewLoggingListener(env.Logger))
		case "tracing":
			listeners = append(listeners, NewTracingListener(env.Tracer))
		case "metrics":
			// Enabled through [metrics].
		default:
			return b, &ConfigurationError{Option: "listener", Reason: fmt.Sprintf("unknown listener %q", name)}
		}
	}
	if c.Metrics.Enabled {
		listeners = append(listeners, NewMetricsListener(env.Registerer))
	}
	if len(listeners) > 0 {
		b = b.WithListeners(listeners...)
	}

	for i, tc := range c.Transformations {
		m, err := tc.matcher()
		if err != nil {
			return b, &ConfigurationError{Option: fmt.Sprintf("transformation %d", i), Reason: err.Error()}
		}
		t, ok := env.Transformers[tc.Transformer]
		if !ok {
			return b, &ConfigurationError{Option: fmt.Sprintf("transformation %d", i), Reason: fmt.Sprintf("unknown transformer %q", tc.Transformer)}
		}
		b = b.Type(m).Transform(t)
	}
	return b, nil
}

func (tc TransformationConfig) matcher() (RawMatcher, error) {
	var selected []RawMatcher
	if tc.Name != "" {
		selected = append(selected, ByType(matcher.Named(tc.Name)))
	}
	if tc.Prefix != "" {
		selected = append(selected, ByName(tc.Prefix))
	}
	if tc.Pattern != "" {
		em, err := matcher.NameMatches(tc.Pattern)
		if err != nil {
			return nil, err
		}
		selected = append(selected, ByType(em))
	}
	if len(selected) != 1 {
		return nil, fmt.Errorf("exactly one of name, prefix and pattern must be set")
	}
	m := selected[0]
	if tc.Redefinitions {
		redef := Redefinitions()
		return RawMatcherFunc(func(td *classfile.TypeDescription, l instrument.Loader, c instrument.Class, pd *instrument.ProtectionDomain) bool {
			return redef.Matches(td, l, c, pd) && m.Matches(td, l, c, pd)
		}), nil
	}
	return m, nil
}
