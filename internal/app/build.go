package app

import (
	"context"
	"fmt"

	"github.com/emarinelli/mirror/internal/config"
	"github.com/emarinelli/mirror/internal/dialogue"
	"github.com/emarinelli/mirror/internal/gateway"
	"github.com/emarinelli/mirror/internal/httpapi"
	"github.com/emarinelli/mirror/internal/memory"
	"github.com/emarinelli/mirror/internal/observability"
	"github.com/emarinelli/mirror/internal/session"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Engine   *dialogue.Engine
	Memory   *memory.Memory
	Metrics  *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	mem := memory.New(store, cfg.CacheCapacity, metrics)

	generator, err := gateway.New(gateway.Config{
		Mode:           cfg.Generation.Mode,
		RemoteURL:      cfg.Generation.RemoteURL,
		RemoteAPIKey:   cfg.Generation.RemoteAPIKey,
		RemoteModel:    cfg.Generation.RemoteModel,
		LocalCLIPath:   cfg.Generation.LocalCLIPath,
		LocalModelPath: cfg.Generation.LocalModelPath,
		MaxTokens:      cfg.Generation.MaxTokens,
		Temperature:    cfg.Generation.Temperature,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("generator init failed: %w", err)
	}

	engine := dialogue.NewEngine(mem, generator, metrics, cfg.Generation.Timeout, cfg.HistoryLimit)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	api := httpapi.New(cfg, sessions, engine, mem, metrics)

	cleanup := func() error {
		return store.Close()
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Engine:   engine,
		Memory:   mem,
		Metrics:  metrics,
		Cleanup:  cleanup,
	}, nil
}
