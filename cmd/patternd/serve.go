// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	clientv3 "go.etcd.io/etcd/client/v3"
	"github.com/go-zookeeper/zk"

	"github.com/patterncore/pattern/pkg/auth"
	"github.com/patterncore/pattern/pkg/checkpoint"
	"github.com/patterncore/pattern/pkg/config"
	"github.com/patterncore/pattern/pkg/datasource"
	"github.com/patterncore/pattern/pkg/embedding"
	"github.com/patterncore/pattern/pkg/entity"
	"github.com/patterncore/pattern/pkg/ids"
	"github.com/patterncore/pattern/pkg/llm"
	"github.com/patterncore/pattern/pkg/oauth"
	"github.com/patterncore/pattern/pkg/observability"
	"github.com/patterncore/pattern/pkg/router"
	"github.com/patterncore/pattern/pkg/runtime"
	"github.com/patterncore/pattern/pkg/server"
	"github.com/patterncore/pattern/pkg/session"
	"github.com/patterncore/pattern/pkg/snowflake"
	"github.com/patterncore/pattern/pkg/vectorstore"
)

// ServeCmd starts the admin HTTP surface and everything behind it: the
// entity store connection, model/embedding/vector-store registries,
// the OAuth resolver, the agent runtime, the message router, and the
// data-source coordinator.
type ServeCmd struct {
	Port int `help:"Override the configured listen port." default:"0"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required")
	}

	cfg, loader, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Stop()
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	store, err := entity.Connect(ctx, cfg.EntityStore)
	if err != nil {
		return fmt.Errorf("connecting to entity store: %w", err)
	}
	defer store.Close()

	allocator, releaseMachineID, err := buildMachineIDAllocator(cfg.Snowflake)
	if err != nil {
		return fmt.Errorf("building snowflake machine id allocator: %w", err)
	}
	defer releaseMachineID(ctx)
	machineID, err := allocator.Allocate(ctx)
	if err != nil {
		return fmt.Errorf("allocating snowflake machine id: %w", err)
	}
	positions, err := snowflake.New(machineID)
	if err != nil {
		return fmt.Errorf("building position generator: %w", err)
	}

	models := llm.NewRegistry()
	for name, pcfg := range cfg.Providers {
		pcfg := pcfg
		if _, err := models.CreateFromConfig(name, &pcfg); err != nil {
			return fmt.Errorf("building provider %q: %w", name, err)
		}
	}

	var embedder embedding.Provider
	embeddings := embedding.NewRegistry()
	if cfg.Embedding.Type != "" {
		embedder, err = embeddings.CreateFromConfig("default", &cfg.Embedding)
		if err != nil {
			return fmt.Errorf("building embedding provider: %w", err)
		}
	}

	vectorStores := vectorstore.NewRegistry()
	for name, vcfg := range cfg.VectorStores {
		vcfg := vcfg
		if _, err := vectorStores.CreateFromConfig(name, &vcfg); err != nil {
			return fmt.Errorf("building vector store %q: %w", name, err)
		}
	}

	oauthProviders := make(map[string]*config.OAuthProviderConfig, len(cfg.OAuth))
	for name, ocfg := range cfg.OAuth {
		ocfg := ocfg
		oauthProviders[name] = &ocfg
	}
	oauthResolver := oauth.NewResolver(store, oauthProviders)

	checkpointMgr := checkpoint.NewManager(&cfg.Checkpoint, store)
	if err := checkpointMgr.RecoverOnStartup(ctx); err != nil {
		slog.Error("checkpoint recovery failed", "error", err)
	}
	checkpointHooks := checkpoint.NewHooks(checkpointMgr)

	sessions := session.NewManager(0)

	log := slog.Default()
	msgRouter := router.New(store, log)

	rt := runtime.New(runtime.Config{
		Agents:      store,
		Messages:    store,
		Positions:   positions,
		Models:      models.BaseRegistry,
		Router:      msgRouter,
		OAuth:       oauthResolver,
		Checkpoints: checkpointHooks,
		Sessions:    sessions,
		Log:         log,
	})

	dataSources := datasource.New(rt, log)
	for name, dcfg := range cfg.DataSources {
		src, err := buildDataSource(name, dcfg)
		if err != nil {
			return fmt.Errorf("building data source %q: %w", name, err)
		}
		targets, err := resolveTargetAgents(dcfg.TargetAgents)
		if err != nil {
			return fmt.Errorf("data source %q: %w", name, err)
		}
		bufCfg := datasource.BufferConfig{Capacity: dcfg.BufferCapacity, MaxAge: dcfg.MaxAge}
		if err := dataSources.Register(ctx, src, bufCfg, dcfg.NotifyTemplate, targets); err != nil {
			return fmt.Errorf("registering data source %q: %w", name, err)
		}
	}

	var validator auth.TokenValidator
	if cfg.Auth.IsEnabled() {
		validator, err = auth.NewValidatorFromConfig(&cfg.Auth)
		if err != nil {
			return fmt.Errorf("building auth validator: %w", err)
		}
		defer validator.Close()
	}

	obs, err := observability.NewFromConfig(ctx, &cfg.Observability)
	if err != nil {
		return fmt.Errorf("building observability manager: %w", err)
	}
	defer obs.Shutdown(ctx)

	srv, err := server.New(server.Options{
		Config:        &cfg.Server,
		Runtime:       rt,
		Store:         store,
		Router:        msgRouter,
		DataSources:   dataSources,
		Embeddings:    embedder,
		Auth:          validator,
		Observability: obs,
		Log:           log,
	})
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	printBanner()
	fmt.Printf("\npatternd listening on http://%s\n", cfg.Server.Addr())
	fmt.Printf("   health:  http://%s/health\n", cfg.Server.Addr())
	if obs.MetricsEnabled() {
		fmt.Printf("   metrics: http://%s%s\n", cfg.Server.Addr(), obs.MetricsEndpoint())
	}
	fmt.Println("\nPress Ctrl+C to stop")

	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

// resolveTargetAgents parses the agent IDs a data source's
// notifications should be delivered to.
func resolveTargetAgents(raw []string) ([]ids.ID, error) {
	out := make([]ids.ID, 0, len(raw))
	for _, s := range raw {
		id, err := ids.Parse(ids.KindAgent, s)
		if err != nil {
			return nil, fmt.Errorf("invalid target agent id %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// buildDataSource constructs the concrete DataSource named by dcfg.Type.
func buildDataSource(name string, dcfg config.DataSourceConfig) (datasource.DataSource, error) {
	switch dcfg.Type {
	case "file_tail":
		return datasource.NewFileTail(name, dcfg.Path, nil), nil
	case "http_poll":
		return datasource.NewHTTPPoll(name, dcfg.Path, dcfg.PollInterval, nil), nil
	default:
		return nil, fmt.Errorf("unsupported data source type %q", dcfg.Type)
	}
}

// buildMachineIDAllocator constructs the coordinator client cfg names,
// or a static single-process allocator when none is configured.
func buildMachineIDAllocator(cfg config.SnowflakeConfig) (snowflake.MachineIDAllocator, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	switch cfg.Coordinator {
	case "", "static":
		return snowflake.Static(cfg.MachineID), noop, nil
	case "etcd":
		cli, err := clientv3.New(clientv3.Config{Endpoints: cfg.Endpoints, DialTimeout: 5 * time.Second})
		if err != nil {
			return nil, noop, fmt.Errorf("connecting to etcd: %w", err)
		}
		alloc := snowflake.NewEtcdAllocator(cli)
		return alloc, func(ctx context.Context) error {
			err := alloc.Release(ctx)
			cli.Close()
			return err
		}, nil
	case "consul":
		cli, err := consulapi.NewClient(&consulapi.Config{Address: cfg.Endpoints[0]})
		if err != nil {
			return nil, noop, fmt.Errorf("connecting to consul: %w", err)
		}
		alloc := snowflake.NewConsulAllocator(cli)
		return alloc, alloc.Release, nil
	case "zookeeper":
		conn, _, err := zk.Connect(cfg.Endpoints, 10*time.Second)
		if err != nil {
			return nil, noop, fmt.Errorf("connecting to zookeeper: %w", err)
		}
		alloc := snowflake.NewZKAllocator(conn)
		return alloc, func(ctx context.Context) error {
			err := alloc.Release(ctx)
			conn.Close()
			return err
		}, nil
	default:
		return nil, noop, fmt.Errorf("unknown snowflake coordinator %q", cfg.Coordinator)
	}
}
