// Command toolbench runs the Toolbench MCP tool servers and their
// conversational front-end.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/spf13/cobra"

	"github.com/Paul60209/toolbench/internal/config"
	"github.com/Paul60209/toolbench/internal/resilience"
	"github.com/Paul60209/toolbench/pkg/provider/llm"
	"github.com/Paul60209/toolbench/pkg/provider/llm/anyllm"
	oai "github.com/Paul60209/toolbench/pkg/provider/llm/openai"
)

const version = "1.0.0"

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "toolbench: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "toolbench",
		Short: "MCP tool servers and a chat front-end",
		Long: `toolbench: MCP tool servers and a chat front-end.

The tool servers expose weather lookup, read-only SQL querying, and
PowerPoint translation over the Model Context Protocol. The chat commands
connect an LLM to those tools.

Commands:
  serve       Run all configured tool servers under the supervisor,
              or a single tool server in-process
  chat        Interactive REPL with tool calling
  web         Websocket chat gateway for browsers
  translate   One-shot local PowerPoint translation`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "toolbench.yaml", "path to the YAML configuration file")

	root.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newWebCmd(),
		newTranslateCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("toolbench version %s\n", version)
		},
	}
}

// loadConfig reads the config file. A missing file is not an error: every
// setting has a default or an environment fallback.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("config file not found, using defaults and environment variables", "path", configPath)
			return &config.Config{}, nil
		}
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs the default slog logger at the configured level.
func setupLogging(cfg *config.Config) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.Level(),
	}))
	slog.SetDefault(logger)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// registerProviders wires all built-in LLM provider factories into reg.
func registerProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oai.Option
		if entry.BaseURL != "" {
			opts = append(opts, oai.WithBaseURL(entry.BaseURL))
		}
		return oai.New(envFallback(entry.APIKey, "OPENAI_API_KEY"), entry.Model, opts...)
	})

	// anthropic, gemini and mistral share the any-llm pattern:
	// optional APIKey + optional BaseURL.
	for _, providerName := range []string{"anthropic", "gemini", "mistral"} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})
}

// buildLLM instantiates the configured LLM provider, defaulting to OpenAI
// with gpt-4o when the config is silent. When llm.fallbacks is set, the
// providers are stacked behind an [resilience.LLMFallback] so a failing or
// circuit-broken primary hands over to the next one.
func buildLLM(cfg *config.Config) (llm.Provider, error) {
	entry := cfg.LLM
	if entry.Name == "" {
		entry.Name = "openai"
	}
	if entry.Model == "" {
		entry.Model = "gpt-4o"
	}

	reg := config.NewRegistry()
	registerProviders(reg)

	p, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model)

	if len(entry.Fallbacks) == 0 {
		return p, nil
	}
	fb := resilience.NewLLMFallback(p, entry.Name, resilience.FallbackConfig{})
	for _, fallbackEntry := range entry.Fallbacks {
		fp, err := reg.CreateLLM(fallbackEntry)
		if err != nil {
			return nil, fmt.Errorf("create fallback llm provider %q: %w", fallbackEntry.Name, err)
		}
		fb.AddFallback(fallbackEntry.Name, fp)
		slog.Info("provider created", "kind", "llm", "name", fallbackEntry.Name, "model", fallbackEntry.Model, "role", "fallback")
	}
	return fb, nil
}

// llmName returns the configured provider name for log and breaker labels.
func llmName(cfg *config.Config) string {
	if cfg.LLM.Name != "" {
		return cfg.LLM.Name
	}
	return "openai"
}

// envFallback returns value, or the named environment variable when value is
// empty.
func envFallback(value, env string) string {
	if value != "" {
		return value
	}
	return os.Getenv(env)
}
