// Package server wires every component into a runnable HTTP handler: the
// KV gateway, provider drivers, routers, worker registry, ticket
// classifier, and auxiliary endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"

	apimw "github.com/llmgate/llmgate/internal/api/middleware"

	"github.com/llmgate/llmgate/internal/api"
	"github.com/llmgate/llmgate/internal/audio"
	"github.com/llmgate/llmgate/internal/classifier"
	"github.com/llmgate/llmgate/internal/config"
	"github.com/llmgate/llmgate/internal/kv"
	"github.com/llmgate/llmgate/internal/ocr"
	"github.com/llmgate/llmgate/internal/providers"
	"github.com/llmgate/llmgate/internal/router"
	"github.com/llmgate/llmgate/internal/telemetry"
	"github.com/llmgate/llmgate/internal/ticketstore"
	"github.com/llmgate/llmgate/internal/worker"
)

const version = "0.1.0"

// Server bundles the built HTTP handler with everything that needs an
// orderly shutdown.
type Server struct {
	Handler      http.Handler
	Gateway      *kv.Gateway
	Port         int
	ShutdownFunc func(context.Context) error
}

// New loads configuration from the environment and wires the full gateway.
func New(ctx context.Context) (*Server, error) {
	cfg := config.Load()
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig builds the gateway from an explicit configuration; New
// calls it with the configuration loaded from the environment.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	gw := kv.New(cfg.Redis.Addr())
	if err := gw.Ping(ctx); err != nil {
		return nil, fmt.Errorf("server: connecting to redis at %s: %w", cfg.Redis.Addr(), err)
	}
	gw.LogConnection(cfg.Redis.Addr())

	openai := providers.NewOpenAIDriver(cfg.Providers.OpenAIAPIKey)
	gemini := providers.NewGeminiDriver(cfg.Providers.GeminiAPIKey)

	chatRouter := router.NewChatRouter(cfg.Providers.PrimaryProvider, cfg.Providers.AllowProviderOverride, openai, gemini)
	embedRouter := router.NewEmbeddingRouter(cfg.Providers.EmbeddingProvider, openai)

	registry := worker.NewRegistry()

	var ticketStore ticketstore.Store
	if cfg.Database.DSN != "" {
		pg, err := ticketstore.NewPostgresStore(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("server: connecting to ticket store: %w", err)
		}
		ticketStore = pg
	} else {
		ticketStore = ticketstore.NewNoopStore()
	}

	cls := classifier.New(chatRouter, ticketStore, cfg.Webhook.BaseURL, cfg.Webhook.Secret)

	handlers := &api.Handlers{
		Gateway:         gw,
		ChatRouter:      chatRouter,
		EmbeddingRouter: embedRouter,
		Registry:        registry,
		Classifier:      cls,
		Transcriber:     audio.NewTranscriber(cfg.Providers.OpenAIAPIKey),
		Recognizer:      ocr.NewRecognizer(cfg.Providers.OpenAIAPIKey),
	}

	auth := apimw.NewServiceKeyAuth(cfg.Auth.ServiceAPIKey)
	handler := api.NewRouter(handlers, auth, version)

	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("server: initializing telemetry: %w", err)
	}

	return &Server{
		Handler: handler,
		Gateway: gw,
		Port:    cfg.Port,
		ShutdownFunc: func(ctx context.Context) error {
			ticketStore.Close()
			if err := shutdownTelemetry(ctx); err != nil {
				return err
			}
			return gw.Close()
		},
	}, nil
}
