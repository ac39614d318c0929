package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/Paul60209/toolbench/internal/mcphost"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anyllm", "anthropic", "ollama", "gemini", "mistral", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Unknown provider names are a warning, not an error.
	validateProviderName("llm", cfg.LLM.Name)

	if cfg.LLM.Name == "" {
		slog.Warn("no LLM provider configured; the chat front-end and translation tool will not work")
	}
	for i, fb := range cfg.LLM.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("llm.fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}

	// Tool credential warnings. The servers still start without these, the
	// affected tool just reports failures.
	if cfg.Weather.APIKey == "" && hasServer(cfg, "weather") {
		slog.Warn("weather.api_key is empty; the weather tool will reject lookups")
	}
	if cfg.Database.DSN == "" && hasServer(cfg, "sqlquery") {
		slog.Warn("database.dsn is empty; the SQL query tool will not be available")
	}

	// Chat
	if cfg.Chat.MaxToolRounds < 0 {
		errs = append(errs, fmt.Errorf("chat.max_tool_rounds %d is negative", cfg.Chat.MaxToolRounds))
	}
	if cfg.Chat.Temperature < 0 || cfg.Chat.Temperature > 2 {
		errs = append(errs, fmt.Errorf("chat.temperature %.2f is out of range [0, 2]", cfg.Chat.Temperature))
	}

	// Tool server duplicate name detection
	serverNamesSeen := make(map[string]int, len(cfg.Tools.Servers))

	// Tool servers
	for i, srv := range cfg.Tools.Servers {
		prefix := fmt.Sprintf("tools.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := serverNamesSeen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of tools.servers[%d]", prefix, srv.Name, prev))
			}
			serverNamesSeen[srv.Name] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcphost.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcphost.TransportStreamableHTTP && srv.Command == "" && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s needs a command (supervised) or url (external) when transport is streamable-http", prefix))
		}
		if srv.Command != "" && srv.Transport == mcphost.TransportStreamableHTTP && srv.Port <= 0 {
			errs = append(errs, fmt.Errorf("%s.port is required for a supervised streamable-http server", prefix))
		}
	}

	return errors.Join(errs...)
}

// hasServer reports whether a tool server with the given name is configured.
func hasServer(cfg *Config, name string) bool {
	for _, srv := range cfg.Tools.Servers {
		if srv.Name == name {
			return true
		}
	}
	return false
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
