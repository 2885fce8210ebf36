// Package server provides the public entry point for initializing the
// agent engine server.
//
// This package exists in pkg/ (not internal/) so that embedding hosts
// can compose the engine with their own transports and custom steps.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/kochi-intel/agent-engine/internal/api"
	"github.com/kochi-intel/agent-engine/internal/api/handlers"
	"github.com/kochi-intel/agent-engine/internal/catalog"
	"github.com/kochi-intel/agent-engine/internal/config"
	"github.com/kochi-intel/agent-engine/internal/llm"
	"github.com/kochi-intel/agent-engine/internal/output"
	"github.com/kochi-intel/agent-engine/internal/pipeline"
	"github.com/kochi-intel/agent-engine/internal/resolver"
	"github.com/kochi-intel/agent-engine/internal/retention"
	"github.com/kochi-intel/agent-engine/internal/runner"
	"github.com/kochi-intel/agent-engine/internal/source"
	"github.com/kochi-intel/agent-engine/internal/store"
	"github.com/kochi-intel/agent-engine/internal/telemetry"
)

// Server holds the initialized agent engine.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the data store (in-memory unless DATABASE_URL is set).
	Store store.Store

	// Runner executes agent definitions; exposed so embedding hosts can
	// run definitions without going through HTTP.
	Runner *runner.Runner

	// Custom lets hosts register custom pipeline step implementations.
	Custom *pipeline.CustomRegistry

	// Dispatcher lets hosts register senders for render-only channels
	// (SMS, email, notifications).
	Dispatcher *output.Dispatcher

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all engine components from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the engine with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var dataStore store.Store
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		dataStore = pg
		log.Info().Msg("PostgreSQL store initialized")
	} else {
		dataStore = store.NewMemoryStore()
		log.Info().Msg("In-memory store initialized")
	}

	// LLM provider drivers
	llm.RegisterDriver("anthropic", llm.NewAnthropicDriver(cfg.LLM.AnthropicAPIKey))
	llm.RegisterDriver("openai", llm.NewOpenAIDriver(cfg.LLM.OpenAIAPIKey))
	client := llm.NewClient()

	// Sources resolve user_source_ref through the store
	sources := source.NewService(resolver.NewResolver(dataStore))

	dispatcher := output.NewDispatcher(cfg.Output.FileDir)
	custom := pipeline.NewCustomRegistry()

	run := runner.New(sources, client, dispatcher, custom, dataStore)

	h := handlers.New(dataStore, run, catalog.New(dispatcher))
	router := api.NewRouter(cfg, h)

	// Run-history retention
	retainCtx, stopRetention := context.WithCancel(context.Background())
	if cfg.Retention.RunTTL > 0 {
		janitor := retention.NewJanitor(dataStore, cfg.Retention.Interval, cfg.Retention.RunTTL, retention.Mode(cfg.Retention.Mode))
		janitor.RegisterArchiver(retention.NewLocalFileArchiver(cfg.Retention.ArchiveDir, cfg.Retention.Compress))
		go janitor.Start(retainCtx)
	}

	return &Server{
		Handler:    router,
		Store:      dataStore,
		Runner:     run,
		Custom:     custom,
		Dispatcher: dispatcher,
		Port:       cfg.Port,
		ShutdownFunc: func(ctx context.Context) error {
			stopRetention()
			return shutdown(ctx)
		},
	}, nil
}
