package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/chazu/transmute/agent"
	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/host"
	"github.com/chazu/transmute/locator"
)

type runOptions struct {
	configPath string
	dbPath     string
	loaderID   string
	dump       bool
	serve      bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <type> <method> [args...]",
		Short: "Invoke a static method with the agent installed",
		Long: `Loads a type from the class path through a host with the configured
agent installed, then invokes one of its static methods. Arguments are
parsed according to the method's parameter types.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args[0], args[1], args[2:])
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "agent configuration (default: ./"+agent.ConfigFile+" if present)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "class path database (overrides [locator] class-path)")
	cmd.Flags().StringVar(&opts.loaderID, "loader", "app", "id of the loader defining the type")
	cmd.Flags().BoolVar(&opts.dump, "dump", false, "dump the result with its Go type")
	cmd.Flags().BoolVar(&opts.serve, "serve", false, "keep serving metrics until interrupted")
	return cmd
}

func loadConfig(path string) (*agent.Config, error) {
	if path != "" {
		return agent.LoadFile(path)
	}
	if _, err := os.Stat(agent.ConfigFile); err == nil {
		return agent.Load(".")
	}
	return &agent.Config{Agent: agent.AgentConfig{Listeners: []string{"logging"}}}, nil
}

func run(cmd *cobra.Command, opts runOptions, typeName, method string, rawArgs []string) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	dbPath := opts.dbPath
	if dbPath == "" {
		dbPath = cfg.ClassPathFile()
	}
	if dbPath == "" {
		return errors.New("no class path: pass --db or set [locator] class-path")
	}
	cp, err := locator.OpenClassPath(dbPath)
	if err != nil {
		return err
	}
	defer cp.Close()

	log := commonlog.GetLogger("transmute")
	reg := prometheus.NewRegistry()
	rt := host.New()

	var tracer trace.Tracer
	if slices.Contains(cfg.Agent.Listeners, "tracing") {
		tp, err := newTracerProvider(cmd)
		if err != nil {
			return err
		}
		defer tp.Shutdown(context.Background())
		tracer = tp.Tracer("transmute/agent")
	}

	b, err := agent.FromConfig(cfg, agent.Env{
		Transformers: builtinTransformers(log),
		ClassPath:    cp,
		Registerer:   reg,
		Tracer:       tracer,
	})
	if err != nil {
		return err
	}
	installation, err := b.Install(rt)
	if err != nil {
		return err
	}
	defer installation.Reset()
	log.Debug("agent installed", "installation", installation.ID.String())

	var server *http.Server
	if cfg.Metrics.Enabled {
		server = serveMetrics(cfg.Metrics.Listen, reg, log)
		defer server.Shutdown(context.Background())
	}

	loader, err := rt.NewLoader(opts.loaderID, cp)
	if err != nil {
		return err
	}
	cls, err := loader.Load(typeName)
	if err != nil {
		return err
	}
	m, ok := cls.ClassFile().Method(method)
	if !ok {
		return fmt.Errorf("%s has no method %s", typeName, method)
	}
	if len(rawArgs) != len(m.Params) {
		return fmt.Errorf("%s.%s takes %d arguments, %d given", typeName, method, len(m.Params), len(rawArgs))
	}
	args := make([]any, len(rawArgs))
	for i, raw := range rawArgs {
		if args[i], err = parseArgument(m.Params[i], raw); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
	}

	v, err := cls.Invoke(method, args...)
	if err != nil {
		return err
	}
	if opts.dump {
		spew.Fdump(cmd.OutOrStdout(), v)
	} else if m.Return != "void" {
		fmt.Fprintln(cmd.OutOrStdout(), v)
	}

	if opts.serve && server != nil {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		<-ctx.Done()
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log commonlog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return server
}

// newTracerProvider writes spans of the tracing listener to stderr.
func newTracerProvider(cmd *cobra.Command) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(cmd.ErrOrStderr()), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}
	res := resource.NewSchemaless(attribute.String("service.name", "transmute"))
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSyncer(exporter),
	), nil
}

// parseArgument converts a command-line value to the host representation
// of typ. "null" is the null reference.
func parseArgument(typ, raw string) (any, error) {
	switch classfile.ForName(typ).Kind() {
	case classfile.Boolean:
		return strconv.ParseBool(raw)
	case classfile.Int:
		n, err := strconv.ParseInt(raw, 10, 32)
		return int32(n), err
	case classfile.Long:
		return strconv.ParseInt(raw, 10, 64)
	case classfile.Float:
		f, err := strconv.ParseFloat(raw, 32)
		return float32(f), err
	case classfile.Double:
		return strconv.ParseFloat(raw, 64)
	case classfile.Void:
		return nil, fmt.Errorf("void parameter")
	}
	if raw == "null" {
		return nil, nil
	}
	return raw, nil
}
