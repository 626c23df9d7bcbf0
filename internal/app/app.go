// Package app wires configuration, the backend, the adapters and the proxy
// server, and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/switchboard/internal/adapter"
	"github.com/florianilch/switchboard/internal/anthropicadapter"
	"github.com/florianilch/switchboard/internal/backend"
	"github.com/florianilch/switchboard/internal/backend/claude"
	"github.com/florianilch/switchboard/internal/backend/lorem"
	"github.com/florianilch/switchboard/internal/catalog"
	"github.com/florianilch/switchboard/internal/openaiadapter"
	"github.com/florianilch/switchboard/internal/proxy"
	"github.com/florianilch/switchboard/internal/tokenizer"
	"github.com/florianilch/switchboard/internal/tokensource"
)

// App orchestrates the lifecycle of the proxy server and related services.
type App struct {
	cfg    *Config
	model  backend.Model
	proxy  *proxy.Proxy
	health *Health
}

// New creates a new App instance from cfg.
func New(cfg *Config) (*App, error) {
	model, err := NewBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}
	return newWithBackend(cfg, model)
}

func newWithBackend(cfg *Config, model backend.Model) (*App, error) {
	models, err := catalog.Default()
	if err != nil {
		return nil, err
	}
	models = models.With(catalog.Model{ID: cfg.Backend.Model})

	logger := slog.Default()
	adapterOpts := []adapter.Option{adapter.WithLogger(logger)}
	anthropic := anthropicadapter.New(model, adapterOpts...)

	health := NewHealth()
	proxyServer, err := proxy.New(proxy.Adapters{
		OpenAI:    openaiadapter.New(model, adapterOpts...),
		Anthropic: anthropic,
		Counter:   anthropic,
	}, health,
		proxy.WithAPIKeys(cfg.Server.APIKeys...),
		proxy.WithMaxRequestBytes(cfg.Server.MaxRequestBytes),
		proxy.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
		proxy.WithCatalog(models),
		proxy.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		cfg:    cfg,
		model:  model,
		proxy:  proxyServer,
		health: health,
	}, nil
}

// NewBackend builds the configured backend model.
func NewBackend(cfg *Config) (backend.Model, error) {
	switch cfg.Backend.Kind {
	case BackendKindLorem:
		return lorem.New(cfg.Backend.Model,
			lorem.WithDelay(cfg.Backend.Lorem.Delay),
			lorem.WithCounter(newCounter(cfg.Backend.Lorem.Tokenizer)),
		), nil

	case BackendKindClaude:
		store, err := cfg.Auth.NewTokenStore()
		if err != nil {
			return nil, err
		}
		source := tokensource.NewTokenSource(store, tokensource.WithRefreshInterval(cfg.Auth.RefreshInterval))

		opts := []claude.Option{claude.WithMaxTokens(cfg.Backend.MaxTokens)}
		if cfg.Backend.BaseURL != "" {
			opts = append(opts, claude.WithBaseURL(cfg.Backend.BaseURL))
		}
		return claude.New(cfg.Backend.Model, source, opts...)

	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend.Kind)
	}
}

func newCounter(encoding string) *tokenizer.Counter {
	if encoding == TokenizerEstimate {
		return tokenizer.NewEstimator()
	}
	return tokenizer.New(encoding)
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server", "backend", a.model.Name())
	proxyErrCh, err := a.proxy.Start(gCtx, a.cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	a.health.SetReady(true)
	shutdownFuncs = append(shutdownFuncs, func(context.Context) error {
		a.health.SetReady(false)
		return nil
	})

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.InfoContext(shutdownCtx, "application stopped")
	return nil
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 5 * time.Second
}

// Ready reports whether the app is serving traffic.
func (a *App) Ready() bool {
	return a.health.IsReady()
}
