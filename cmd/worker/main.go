// The worker resumes interrupted batches. It scans the snapshot store on an
// interval and drives any batch with pending or processing jobs back to a
// terminal state. Run it alongside the API when batches must survive restarts.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"storyboard/internal/batch"
	"storyboard/internal/domain"
	"storyboard/internal/generation"
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

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("worker requires DATABASE_URL, in-memory batches cannot be resumed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	manager := mediaconfig.NewManager(mediaconfig.Options{
		Store:    mediaconfig.NewPGStore(runner),
		CacheTTL: cfg.ConfigCacheTTL,
		Logger:   &logger,
	})

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

	batchStore := batch.NewPGSnapshotStore(runner)
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

	logger.Info().Msg("batch worker started")

	ticker := time.NewTicker(cfg.BatchInterval)
	defer ticker.Stop()
	for {
		resumePending(ctx, batchStore, scheduler, cfg.BatchResumeAfter, logger)
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// resumePending picks up batches whose snapshots have gone quiet. Each batch
// is claimed atomically before resuming, so a scheduler already driving it
// (the API's, or another worker's) keeps exclusive ownership.
func resumePending(ctx context.Context, store batch.SnapshotStore, scheduler *batch.Scheduler, staleFor time.Duration, logger infra.Logger) {
	batchIDs, err := store.PendingBatches(ctx, staleFor)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list pending batches")
		return
	}
	for _, batchID := range batchIDs {
		claimed, err := store.ClaimBatch(ctx, batchID, staleFor)
		if err != nil {
			logger.Error().Err(err).Str("batch_id", batchID).Msg("batch claim failed")
			continue
		}
		if !claimed {
			logger.Debug().Str("batch_id", batchID).Msg("batch claimed elsewhere, skipping")
			continue
		}
		logger.Info().Str("batch_id", batchID).Msg("resuming batch")
		if err := scheduler.Resume(ctx, batchID); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Str("batch_id", batchID).Msg("batch resume failed")
		}
	}
}
