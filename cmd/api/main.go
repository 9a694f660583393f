package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"storyboard/internal/batch"
	"storyboard/internal/cloneflow"
	"storyboard/internal/domain"
	"storyboard/internal/generation"
	"storyboard/internal/http/handlers"
	"storyboard/internal/http/httpapi"
	"storyboard/internal/infra"
	"storyboard/internal/mediaconfig"
	"storyboard/internal/providers"
	"storyboard/internal/providers/dashscope"
	"storyboard/internal/providers/gemini"
	"storyboard/internal/providers/kling"
	"storyboard/internal/providers/openai"
	"storyboard/internal/storage"
	"storyboard/internal/taskpoll"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stores: Postgres when DATABASE_URL is set, in-memory otherwise.
	var configStore mediaconfig.Store
	var batchStore batch.SnapshotStore
	if cfg.DatabaseURL != "" {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()
		runner := infra.NewSQLRunner(dbpool, logger)
		configStore = mediaconfig.NewPGStore(runner)
		batchStore = batch.NewPGSnapshotStore(runner)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory stores")
		configStore = mediaconfig.NewMemoryStore()
		batchStore = batch.NewMemorySnapshotStore()
	}

	manager := mediaconfig.NewManager(mediaconfig.Options{
		Store:    configStore,
		CacheTTL: cfg.ConfigCacheTTL,
		Logger:   &logger,
	})
	seedProviders(ctx, cfg, manager, logger)

	httpClient := &http.Client{Timeout: cfg.HTTPWriteTimeout}
	registry := generation.NewRegistry()
	registry.Register("gemini", func(pc domain.ProviderConfig) providers.Adapter {
		return gemini.New(gemini.Options{
			APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: pc.Model,
			HTTPClient: httpClient, Logger: &logger,
		})
	})
	registry.Register("openai", func(pc domain.ProviderConfig) providers.Adapter {
		return openai.New(openai.Options{
			APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: pc.Model,
			Organization: cfg.OpenAIOrg, HTTPClient: httpClient, Logger: &logger,
		})
	})
	registry.Register("dashscope", func(pc domain.ProviderConfig) providers.Adapter {
		return dashscope.New(dashscope.Options{
			APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: pc.Model,
			HTTPClient: httpClient, Logger: &logger,
		})
	})
	registry.Register("kling", func(pc domain.ProviderConfig) providers.Adapter {
		return kling.New(kling.Options{
			Credential: pc.APIKey, BaseURL: pc.BaseURL, Model: pc.Model,
			HTTPClient: httpClient, Logger: &logger,
		})
	})

	gen := generation.NewService(generation.Options{
		Config:        manager,
		Registry:      registry,
		Logger:        &logger,
		MaxAttempts:   cfg.RetryMaxAttempts,
		BaseDelay:     cfg.RetryBaseDelay,
		RatePerMinute: cfg.ProviderRatePerMin,
	})

	poller := taskpoll.NewPoller(taskpoll.Options{
		Querier:  gen,
		Interval: cfg.TaskPollInterval,
		Logger:   &logger,
	})

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	downloader, err := storage.NewDownloader(storage.DownloaderOptions{
		Store:  fileStore,
		Logger: &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize downloader")
	}

	scheduler := batch.NewScheduler(batch.Options{
		Generator:  gen,
		Poller:     poller,
		Store:      batchStore,
		Downloader: downloader.Fetch,
		Logger:     &logger,
		Config: batch.Config{
			Interval:    cfg.BatchInterval,
			MaxRetries:  cfg.BatchMaxRetries,
			RetryDelay:  cfg.BatchRetryDelay,
			AspectRatio: cfg.BatchAspectRatio,
			Duration:    cfg.BatchDuration,
			Notify:      cfg.BatchNotify,
		},
	})

	var clone *cloneflow.Workflow
	if cfg.CaptureBaseURL != "" {
		capture, err := cloneflow.NewHTTPCapture(cloneflow.HTTPCaptureOptions{
			BaseURL:    cfg.CaptureBaseURL,
			HTTPClient: httpClient,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize capture source")
		}
		clone = cloneflow.New(cloneflow.Options{
			Capture:        capture,
			Analyzer:       gen,
			CaptureTimeout: cfg.CloneCaptureTimeout,
			MaxRetries:     cfg.CloneMaxRetries,
			Logger:         &logger,
		})
	}

	app := handlers.NewApp(&handlers.App{
		Config:      manager,
		Gen:         gen,
		Poller:      poller,
		Scheduler:   scheduler,
		BatchStore:  batchStore,
		Clone:       clone,
		Store:       fileStore,
		Logger:      &logger,
		BaseContext: ctx,
	})

	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		Logger:         logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit:      cfg.HTTPRateLimit,
		RateWindow:     cfg.HTTPRateWindow,
		DefaultLocale:  cfg.DefaultLocale,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// seedProviders registers any provider whose credentials arrived via the
// environment and is not yet in the store. Existing store entries win.
func seedProviders(ctx context.Context, cfg *infra.Config, manager *mediaconfig.Manager, logger infra.Logger) {
	config, err := manager.GetConfig(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load configuration for seeding")
		return
	}

	type seed struct {
		id      string
		kind    string
		apiKey  string
		baseURL string
		model   string
	}
	seeds := []seed{
		{id: "gemini", kind: "gemini", apiKey: cfg.GeminiAPIKey, baseURL: cfg.GeminiBaseURL, model: cfg.GeminiModel},
		{id: "openai", kind: "openai", apiKey: cfg.OpenAIAPIKey, baseURL: cfg.OpenAIBaseURL, model: cfg.OpenAIModel},
		{id: "dashscope", kind: "dashscope", apiKey: cfg.DashScopeAPIKey, baseURL: cfg.DashScopeBaseURL, model: cfg.DashScopeModel},
	}
	if cfg.KlingAccessKey != "" && cfg.KlingSecretKey != "" {
		seeds = append(seeds, seed{
			id: "kling", kind: "kling",
			apiKey:  cfg.KlingAccessKey + "|" + cfg.KlingSecretKey,
			baseURL: cfg.KlingBaseURL,
		})
	}

	for _, s := range seeds {
		if s.apiKey == "" {
			continue
		}
		if _, exists := config.Providers[s.id]; exists {
			continue
		}
		err := manager.AddProviderConfig(ctx, s.id, domain.ProviderConfig{
			Kind:    s.kind,
			APIKey:  s.apiKey,
			BaseURL: s.baseURL,
			Model:   s.model,
		})
		if err != nil {
			logger.Error().Err(err).Str("provider", s.id).Msg("failed to seed provider")
			continue
		}
		if err := manager.SyncConfig(ctx, s.id); err != nil {
			logger.Error().Err(err).Str("provider", s.id).Msg("failed to sync provider")
			continue
		}
		logger.Info().Str("provider", s.id).Msg("provider seeded from environment")
	}
}
