package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/paddockai/paddock/pkg/a2a"
	"github.com/paddockai/paddock/pkg/agent"
	"github.com/paddockai/paddock/pkg/config"
	"github.com/paddockai/paddock/pkg/observability"
	"github.com/paddockai/paddock/pkg/server"
)

// ServeCmd starts the server.
type ServeCmd struct {
	Port  int  `help:"Port to listen on (overrides the config file)."`
	Watch bool `help:"Watch the agents directory and reload on changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, err := loadServiceConfig(cli)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	manager := observability.NewManager(observability.Config{
		Tracing: observability.TracerConfig{
			Enabled:     cfg.Observability.TracingEnabled,
			EndpointURL: cfg.Observability.OTLPEndpoint,
			ServiceName: cfg.Observability.ServiceName,
		},
		Metrics: observability.MetricsConfig{
			Enabled: cfg.Observability.MetricsEnabled,
		},
	})
	if err := manager.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		if err := manager.Shutdown(context.Background()); err != nil {
			slog.Warn("Observability shutdown failed", "error", err)
		}
	}()

	registry := agent.NewRegistry(agent.Dependencies{
		Defaults:    cfg.Defaults,
		Credentials: cfg.Credentials,
		Embedding:   cfg.Embedding,
	})
	if err := registry.LoadAll(cfg.AgentsDir); err != nil {
		return err
	}
	defer registry.ShutdownAll(context.Background())

	executor := a2a.NewExecutor(func(path string) (a2a.Runner, error) {
		return registry.Get(path)
	})

	srv := server.New(server.Options{
		Config:   cfg,
		Registry: registry,
		Executor: executor,
		Version:  resolveVersion(),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(ctx)
	})
	g.Go(func() error {
		executor.RunGC(ctx, cfg.A2A.CleanupInterval, cfg.A2A.MaxTaskAge)
		return nil
	})
	if c.Watch {
		g.Go(func() error {
			err := config.WatchAgentDir(ctx, cfg.AgentsDir, func() {
				if err := registry.Reload(context.Background(), cfg.AgentsDir); err != nil {
					slog.Error("Agent reload failed, keeping previous agents", "error", err)
				}
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

// loadServiceConfig reads the service config, falling back to defaults
// when no file was given, and applies CLI overrides.
func loadServiceConfig(cli *CLI) (*config.Config, error) {
	var cfg *config.Config
	if cli.Config != "" {
		loaded, err := config.LoadServiceConfig(cli.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
		cfg.SetDefaults()
	}

	if cli.AgentsDir != "" {
		cfg.AgentsDir = cli.AgentsDir
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	return cfg, nil
}
