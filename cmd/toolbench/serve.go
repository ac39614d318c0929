package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Paul60209/toolbench/internal/config"
	"github.com/Paul60209/toolbench/internal/health"
	"github.com/Paul60209/toolbench/internal/observe"
	"github.com/Paul60209/toolbench/internal/resilience"
	"github.com/Paul60209/toolbench/internal/supervisor"
	"github.com/Paul60209/toolbench/internal/tools"
	"github.com/Paul60209/toolbench/internal/tools/ppttrans"
	"github.com/Paul60209/toolbench/internal/tools/sqlquery"
	"github.com/Paul60209/toolbench/internal/tools/weather"
	"github.com/Paul60209/toolbench/internal/toolserver"
	"github.com/Paul60209/toolbench/internal/translator"
)

func newServeCmd() *cobra.Command {
	var (
		port  int
		stdio bool
	)
	cmd := &cobra.Command{
		Use:   "serve [server]",
		Short: "Run tool servers",
		Long: `Run tool servers.

Without arguments, every configured tool server is started as a child
process under the supervisor. With a server name (weather, sqlquery,
ppttrans), that single server runs in-process; this is also the mode the
supervisor spawns.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			setupLogging(cfg)

			ctx, stop := signalContext()
			defer stop()

			if len(args) == 0 {
				return runSupervisor(ctx, cfg)
			}
			return runToolServer(ctx, cfg, args[0], port, stdio)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port for a single tool server")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve MCP over stdio instead of HTTP")
	return cmd
}

// runToolServer runs one named tool server in-process until ctx is cancelled.
func runToolServer(ctx context.Context, cfg *config.Config, name string, port int, stdio bool) error {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "toolbench-" + name,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	toolSet, checkers, cleanup, err := buildToolSet(ctx, cfg, name, metrics)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := toolserver.New(name, version,
		toolserver.WithMetrics(metrics),
		toolserver.WithHealthChecks(checkers...),
	)
	if err := srv.Register(toolSet...); err != nil {
		return err
	}
	slog.Info("tool server ready", "server", name, "tools", srv.ToolNames())

	if stdio {
		return srv.RunStdio(ctx)
	}
	if port == 0 {
		port = configuredPort(cfg, name)
	}
	if port == 0 {
		return fmt.Errorf("server %q needs --port or a configured port", name)
	}
	return srv.RunHTTP(ctx, fmt.Sprintf(":%d", port))
}

// buildToolSet constructs the tools and readiness checkers for one server name.
func buildToolSet(ctx context.Context, cfg *config.Config, name string, metrics *observe.Metrics) ([]tools.Tool, []health.Checker, func(), error) {
	nop := func() {}
	switch name {
	case "weather":
		key := envFallback(cfg.Weather.APIKey, "OPENWEATHER_API_KEY")
		var opts []weather.Option
		if cfg.Weather.BaseURL != "" {
			opts = append(opts, weather.WithBaseURL(cfg.Weather.BaseURL))
		}
		client, err := weather.New(key, opts...)
		if err != nil {
			return nil, nil, nil, err
		}
		return weather.Tools(client), nil, nop, nil

	case "sqlquery":
		dsn := envFallback(cfg.Database.DSN, "DATABASE_URL")
		if dsn == "" {
			return nil, nil, nil, errors.New("sqlquery server needs database.dsn or DATABASE_URL")
		}
		exec, err := sqlquery.New(ctx, dsn)
		if err != nil {
			return nil, nil, nil, err
		}
		checker := health.Checker{
			Name: "database",
			Check: func(ctx context.Context) error {
				_, err := exec.Execute(ctx, "SELECT 1")
				return err
			},
		}
		return sqlquery.Tools(exec), []health.Checker{checker}, exec.Close, nil

	case "ppttrans":
		svc, err := buildTranslationService(cfg, metrics)
		if err != nil {
			return nil, nil, nil, err
		}
		pipeline := translator.NewPipeline(svc, translator.WithMetrics(metrics))
		tr := ppttrans.New(pipeline,
			ppttrans.WithOutputDir(cfg.Translator.OutputDir),
			ppttrans.WithTempDir(cfg.Translator.TempDir),
		)
		return ppttrans.Tools(tr), nil, nop, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown tool server %q (valid: weather, sqlquery, ppttrans)", name)
	}
}

// buildTranslationService wraps the configured LLM in a circuit-broken
// translation service. metrics may be nil.
func buildTranslationService(cfg *config.Config, metrics *observe.Metrics) (translator.Service, error) {
	provider, err := buildLLM(cfg)
	if err != nil {
		return nil, err
	}
	svc := translator.NewLLMService(provider, translator.WithServiceMetrics(metrics, llmName(cfg)))
	return resilience.NewTranslationFallback(svc, llmName(cfg), resilience.FallbackConfig{}), nil
}

// configuredPort looks up the port of a named server in the config.
func configuredPort(cfg *config.Config, name string) int {
	for _, srv := range cfg.Tools.Servers {
		if srv.Name == name {
			return srv.Port
		}
	}
	return 0
}

// runSupervisor starts every configured tool server as a child process and
// keeps them running until ctx is cancelled.
func runSupervisor(ctx context.Context, cfg *config.Config) error {
	var specs []supervisor.Spec
	for _, srv := range cfg.Tools.Servers {
		if srv.Command == "" || srv.Transport == "stdio" {
			// stdio servers are spawned on demand by the chat host, and
			// URL-only entries are external.
			continue
		}
		specs = append(specs, supervisor.Spec{
			Name:      srv.Name,
			Command:   strings.Fields(srv.Command),
			Port:      srv.Port,
			Transport: string(srv.Transport),
			Env:       srv.Env,
		})
	}
	if len(specs) == 0 {
		return errors.New("no supervisable tool servers configured (tools.servers entries need a command and a port)")
	}

	stateFile := cfg.Server.StateFile
	if stateFile == "" {
		stateFile = supervisor.DefaultStateFile
	}
	sup, err := supervisor.New(specs, supervisor.WithStateFile(stateFile))
	if err != nil {
		return err
	}

	// Watch the config file so operators get told when a change needs a
	// restart. Log level changes apply immediately.
	if watcher, err := config.NewWatcher(configPath, func(old, updated *config.Config) {
		d := config.Diff(old, updated)
		if d.LogLevelChanged {
			setupLogging(updated)
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		if d.ServersChanged || d.LLMChanged {
			slog.Warn("tool server configuration changed on disk, restart serve to apply",
				"changed_servers", len(d.ServerChanges))
		}
	}); err == nil {
		defer watcher.Stop()
	} else if !errors.Is(err, os.ErrNotExist) {
		slog.Warn("config watcher disabled", "err", err)
	}

	if err := sup.StartAll(ctx); err != nil {
		if len(sup.Running()) == 0 {
			return err
		}
		slog.Warn("some tool servers failed to start", "err", err)
	}
	for _, st := range sup.Running() {
		slog.Info("tool server running", "server", st.Name, "port", st.Port, "transport", st.Transport)
	}
	slog.Info("supervisor ready, press Ctrl+C to stop", "state_file", stateFile)

	<-ctx.Done()
	slog.Info("shutdown signal received, stopping tool servers")
	return sup.StopAll(context.Background())
}
