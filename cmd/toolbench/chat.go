package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Paul60209/toolbench/internal/chat"
	"github.com/Paul60209/toolbench/internal/config"
	"github.com/Paul60209/toolbench/internal/mcphost"
	"github.com/Paul60209/toolbench/internal/supervisor"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat REPL with tool calling",
		Long: `Interactive chat REPL with tool calling.

Connects to the configured MCP tool servers (using the supervisor state
file to find locally supervised ones) and lets the LLM call their tools
while you chat. /tools lists them, /reset clears the conversation,
/quit exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			setupLogging(cfg)

			ctx, stop := signalContext()
			defer stop()

			provider, err := buildLLM(cfg)
			if err != nil {
				return err
			}
			host, err := buildHost(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := host.Close(); err != nil {
					slog.Warn("closing tool host", "err", err)
				}
			}()

			agent := chat.NewAgent(provider, host, agentOptions(cfg)...)
			repl := chat.NewREPL(agent, os.Stdin, os.Stdout)
			return repl.Run(ctx)
		},
	}
}

// agentOptions maps chat config to agent options.
func agentOptions(cfg *config.Config) []chat.Option {
	var opts []chat.Option
	if cfg.Chat.SystemPrompt != "" {
		opts = append(opts, chat.WithSystemPrompt(cfg.Chat.SystemPrompt))
	}
	if cfg.Chat.MaxToolRounds > 0 {
		opts = append(opts, chat.WithMaxToolRounds(cfg.Chat.MaxToolRounds))
	}
	if cfg.Chat.Temperature > 0 {
		opts = append(opts, chat.WithTemperature(cfg.Chat.Temperature))
	}
	return opts
}

// buildHost connects to every configured MCP tool server. Supervised
// streamable-http servers are located through the supervisor state file, so
// the chat front-end finds them on whichever port they actually bound.
func buildHost(ctx context.Context, cfg *config.Config) (*mcphost.Host, error) {
	host := mcphost.New()

	stateFile := cfg.Server.StateFile
	if stateFile == "" {
		stateFile = supervisor.DefaultStateFile
	}
	portByName := make(map[string]int)
	if entries, err := supervisor.ReadStateFile(stateFile); err == nil {
		for _, e := range entries {
			portByName[e.Name] = e.Port
		}
	} else {
		slog.Debug("no supervisor state file, using configured ports", "path", stateFile, "err", err)
	}

	for _, srv := range cfg.Tools.Servers {
		sc := mcphost.ServerConfig{
			Name:      srv.Name,
			Transport: srv.Transport,
			Env:       srv.Env,
		}
		if sc.Transport == "" {
			sc.Transport = mcphost.TransportStreamableHTTP
		}
		switch sc.Transport {
		case mcphost.TransportStdio:
			sc.Command = srv.Command
		case mcphost.TransportStreamableHTTP:
			sc.URL = srv.URL
			if sc.URL == "" {
				port := srv.Port
				if p, ok := portByName[srv.Name]; ok {
					port = p
				}
				sc.URL = fmt.Sprintf("http://127.0.0.1:%d/mcp", port)
			}
		}

		if err := host.RegisterServer(ctx, sc); err != nil {
			// One unreachable server should not take the whole chat down.
			slog.Warn("tool server unavailable", "server", srv.Name, "err", err)
			continue
		}
		slog.Info("tool server connected", "server", srv.Name)
	}

	return host, nil
}
