package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Paul60209/toolbench/internal/chat"
	"github.com/Paul60209/toolbench/internal/health"
	"github.com/Paul60209/toolbench/internal/observe"
)

const defaultWebAddr = ":8080"

func newWebCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "web",
		Short: "Websocket chat gateway for browsers",
		Long: `Websocket chat gateway for browsers.

Serves /ws for chat connections (one conversation per connection),
plus /healthz, /readyz and /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			setupLogging(cfg)

			ctx, stop := signalContext()
			defer stop()

			shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
				ServiceName:    "toolbench-web",
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

			gateway := chat.NewGateway(func() *chat.Agent {
				opts := append(agentOptions(cfg), chat.WithMetrics(metrics, llmName(cfg)))
				return chat.NewAgent(provider, host, opts...)
			},
				chat.WithGatewayMetrics(metrics),
				chat.WithOriginPatterns(cfg.Chat.OriginPatterns...),
			)

			mux := http.NewServeMux()
			mux.Handle("/ws", gateway)
			health.New().Register(mux)
			mux.Handle("GET /metrics", promhttp.Handler())

			addr := cfg.Chat.ListenAddr
			if addr == "" {
				addr = defaultWebAddr
			}
			srv := &http.Server{Addr: addr, Handler: observe.Middleware(metrics)(mux)}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("chat gateway listening", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			slog.Info("shutdown signal received, stopping gateway")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		},
	}
}
