// Package server provides the public entry point for initializing the
// Artloom server.
//
// It exists in pkg/ (not internal/) so embedders can compose the full
// server and wrap its handler:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/artloom/artloom/internal/api"
	"github.com/artloom/artloom/internal/api/handlers"
	"github.com/artloom/artloom/internal/config"
	"github.com/artloom/artloom/internal/events"
	"github.com/artloom/artloom/internal/intent"
	"github.com/artloom/artloom/internal/orchestrator"
	"github.com/artloom/artloom/internal/provider"
	"github.com/artloom/artloom/internal/retention"
	"github.com/artloom/artloom/internal/storage"
	"github.com/artloom/artloom/internal/store"
	"github.com/artloom/artloom/internal/telemetry"
	"github.com/artloom/artloom/pkg/models"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized Artloom components.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the data store backing the canvas state.
	Store store.Store

	// Orchestrator is exposed so main can drain detached generation
	// jobs on shutdown.
	Orchestrator *orchestrator.Orchestrator

	// Janitor sweeps orphaned media files. Nil when retention is
	// disabled; main starts it when present.
	Janitor *retention.Janitor

	// Config is the loaded server configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all components from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the server with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	bus := events.NewBus()

	dataStore, err := openStore(cfg, bus)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	media, err := storage.NewMediaStore(cfg.Media.Dir, cfg.BaseURL, cfg.Media.PublicHosts)
	if err != nil {
		return nil, fmt.Errorf("init media store: %w", err)
	}

	gateway := provider.NewGateway(dataStore, media, cfg.BaseURL+"/api/v1")
	registerProviders(gateway, cfg.Providers)

	resolver := buildIntentChain(cfg.Intent)
	orch := orchestrator.New(dataStore, media, resolver, gateway)

	h := handlers.New(dataStore, media, orch, gateway, bus)
	router := api.NewRouter(cfg, h)

	var janitor *retention.Janitor
	if cfg.Retention.Enabled {
		janitor = retention.NewJanitor(dataStore, media, retention.Options{
			Interval:       cfg.Retention.Interval,
			MinAge:         cfg.Retention.MinAge,
			TrashRetention: cfg.Retention.TrashRetention,
		})
	}

	return &Server{
		Handler:      router,
		Store:        dataStore,
		Orchestrator: orch,
		Janitor:      janitor,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

func openStore(cfg *config.Config, bus *events.Bus) (store.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		s, err := store.OpenSQLite(cfg.Store.SQLitePath, bus)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.Store.SQLitePath).Msg("SQLite store initialized")
		return s, nil
	default:
		s := store.NewMemoryStore(cfg.Store.DataDir, bus)
		log.Info().Str("dir", cfg.Store.DataDir).Msg("Memory store initialized")
		return s, nil
	}
}

// registerProviders wires each configured provider endpoint. A kind
// without an endpoint stays unregistered and requests for it fail with
// a clear error instead of a connection refused.
func registerProviders(gw *provider.Gateway, cfg config.ProvidersConfig) {
	if cfg.ImageBaseURL != "" {
		imageCfg := provider.ImageConfig{BaseURL: cfg.ImageBaseURL, APIKey: cfg.ImageAPIKey}
		gw.Register(provider.NewImageProvider(models.KindImageGenerate, imageCfg))
		gw.Register(provider.NewImageProvider(models.KindImageEdit, imageCfg))
	}
	if cfg.VoiceBaseURL != "" {
		gw.Register(provider.NewVoiceProvider(provider.VoiceConfig{
			BaseURL: cfg.VoiceBaseURL,
			APIKey:  cfg.VoiceAPIKey,
		}))
	}
	if cfg.VideoBaseURL != "" {
		gw.Register(provider.NewVideoProvider(provider.VideoConfig{
			BaseURL: cfg.VideoBaseURL,
			APIKey:  cfg.VideoAPIKey,
		}))
	}
}

// buildIntentChain assembles the resolution tiers that have
// credentials, with the rule tier always last so resolution never
// fails outright.
func buildIntentChain(cfg config.IntentConfig) *intent.Chain {
	var tiers []intent.Resolver
	if cfg.OpenAIAPIKey != "" {
		tiers = append(tiers, intent.NewOpenAIResolver(intent.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		}))
	}
	if cfg.AnthropicAPIKey != "" {
		tiers = append(tiers, intent.NewAnthropicResolver(intent.AnthropicConfig{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
		}))
	}
	tiers = append(tiers, intent.NewRulesResolver())
	log.Info().Int("tiers", len(tiers)).Msg("Intent chain assembled")
	return intent.NewChain(tiers...)
}
