// Package generation is the façade in front of the provider adapters. It
// resolves which provider serves a function from the routing configuration,
// applies per-provider rate limiting, and retries transient failures with
// exponential backoff. Callers never see vendor types or vendor errors.
package generation

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"storyboard/internal/domain"
	"storyboard/internal/infra"
	"storyboard/internal/mediaconfig"
	"storyboard/internal/providers"
)

// Factory builds an adapter from a saved provider configuration.
type Factory func(cfg domain.ProviderConfig) providers.Adapter

// Registry maps provider kinds to adapter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register installs the factory for a provider kind, replacing any previous
// registration.
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Build constructs an adapter for the config's kind, or nil when the kind
// has no registered factory.
func (r *Registry) Build(cfg domain.ProviderConfig) providers.Adapter {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return factory(cfg)
}

// Options configures the service.
type Options struct {
	Config   *mediaconfig.Manager
	Registry *Registry
	Logger   *infra.Logger

	// MaxAttempts bounds retries per call, including the first attempt.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff between attempts.
	BaseDelay time.Duration
	// RatePerMinute caps calls per provider. Zero disables limiting.
	RatePerMinute int
}

// Service routes generation requests to the assigned provider adapter.
type Service struct {
	config      *mediaconfig.Manager
	registry    *Registry
	logger      *infra.Logger
	maxAttempts int
	baseDelay   time.Duration
	ratePerMin  int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewService constructs the façade with sane defaults.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		config:      opts.Config,
		registry:    registry,
		logger:      logger,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		ratePerMin:  opts.RatePerMinute,
		limiters:    map[string]*rate.Limiter{},
	}
}

// GenerateImage creates images from a text prompt via the assigned provider.
func (s *Service) GenerateImage(ctx context.Context, req domain.ImageRequest) (*domain.ImageResponse, error) {
	adapter, cfg, err := s.resolve(ctx, domain.FunctionTextToImage)
	if err != nil {
		return nil, err
	}
	return invoke(ctx, s, cfg.ID, domain.FunctionTextToImage, func() (*domain.ImageResponse, error) {
		return adapter.GenerateImage(ctx, req)
	})
}

// EditImage reworks an existing image via the assigned provider.
func (s *Service) EditImage(ctx context.Context, req domain.ImageEditRequest) (*domain.ImageResponse, error) {
	adapter, cfg, err := s.resolve(ctx, domain.FunctionImageEdit)
	if err != nil {
		return nil, err
	}
	return invoke(ctx, s, cfg.ID, domain.FunctionImageEdit, func() (*domain.ImageResponse, error) {
		return adapter.EditImage(ctx, req)
	})
}

// GenerateText runs a text completion via the assigned provider.
func (s *Service) GenerateText(ctx context.Context, req domain.TextRequest) (*domain.TextResponse, error) {
	adapter, cfg, err := s.resolve(ctx, domain.FunctionTextGeneration)
	if err != nil {
		return nil, err
	}
	return invoke(ctx, s, cfg.ID, domain.FunctionTextGeneration, func() (*domain.TextResponse, error) {
		return adapter.GenerateText(ctx, req)
	})
}

// AnalyzeImage describes an image via the assigned provider.
func (s *Service) AnalyzeImage(ctx context.Context, req domain.ImageAnalysisRequest) (*domain.AnalysisResponse, error) {
	adapter, cfg, err := s.resolve(ctx, domain.FunctionImageAnalysis)
	if err != nil {
		return nil, err
	}
	return invoke(ctx, s, cfg.ID, domain.FunctionImageAnalysis, func() (*domain.AnalysisResponse, error) {
		return adapter.AnalyzeImage(ctx, req)
	})
}

// GenerateVideo submits a video generation job via the assigned provider.
// Asynchronous providers return a task id to poll; the request payload is
// forwarded as given, prompts are never rewritten here.
func (s *Service) GenerateVideo(ctx context.Context, req domain.VideoRequest) (*domain.VideoResponse, error) {
	adapter, cfg, err := s.resolve(ctx, domain.FunctionVideoGeneration)
	if err != nil {
		return nil, err
	}
	return invoke(ctx, s, cfg.ID, domain.FunctionVideoGeneration, func() (*domain.VideoResponse, error) {
		return adapter.GenerateVideo(ctx, req)
	})
}

// AnalyzeVideo describes video content via the assigned provider.
func (s *Service) AnalyzeVideo(ctx context.Context, req domain.VideoAnalysisRequest) (*domain.AnalysisResponse, error) {
	adapter, cfg, err := s.resolve(ctx, domain.FunctionVideoAnalysis)
	if err != nil {
		return nil, err
	}
	return invoke(ctx, s, cfg.ID, domain.FunctionVideoAnalysis, func() (*domain.AnalysisResponse, error) {
		return adapter.AnalyzeVideo(ctx, req)
	})
}

// QueryVideoTask asks the video provider for the current status of a task.
// There is no retry here: the poller owns the retry cadence and needs to see
// transient errors as-is.
func (s *Service) QueryVideoTask(ctx context.Context, taskID string) (*domain.TaskStatus, error) {
	adapter, _, err := s.resolve(ctx, domain.FunctionVideoGeneration)
	if err != nil {
		return nil, err
	}
	return adapter.QueryVideoTask(ctx, taskID)
}

// resolve maps a function to its assigned provider's adapter. Routing
// problems surface as typed errors before any network call happens.
func (s *Service) resolve(ctx context.Context, fn domain.Function) (providers.Adapter, domain.ProviderConfig, error) {
	config, err := s.config.GetConfig(ctx)
	if err != nil {
		return nil, domain.ProviderConfig{}, err
	}
	providerID, ok := config.Assignments[fn]
	if !ok || providerID == "" {
		return nil, domain.ProviderConfig{}, domain.NewError(domain.ErrCodeProviderNotConfigured, "",
			"no provider assigned for "+string(fn), nil)
	}
	cfg, ok := config.Providers[providerID]
	if !ok {
		return nil, domain.ProviderConfig{}, domain.NewError(domain.ErrCodeProviderNotConfigured, providerID,
			"assigned provider is not configured", nil)
	}
	if !cfg.Supports(fn) {
		return nil, domain.ProviderConfig{}, domain.NewError(domain.ErrCodeUnsupportedFunction, providerID,
			"provider does not support "+string(fn), nil)
	}
	adapter := s.registry.Build(cfg)
	if adapter == nil {
		return nil, domain.ProviderConfig{}, domain.NewError(domain.ErrCodeConfiguration, providerID,
			"no adapter registered for kind "+cfg.Kind, nil)
	}
	return adapter, cfg, nil
}

func (s *Service) limiter(providerID string) *rate.Limiter {
	if s.ratePerMin <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[providerID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(s.ratePerMin)/60.0), s.ratePerMin)
		s.limiters[providerID] = limiter
	}
	return limiter
}

// invoke runs one adapter call under the provider's rate limit, retrying
// transient failures with exponential backoff. Non-retryable errors stop the
// loop immediately.
func invoke[T any](ctx context.Context, s *Service, providerID string, fn domain.Function, call func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.baseDelay
	strategy := backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(s.maxAttempts-1)), ctx)

	attempt := 0
	return backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		if limiter := s.limiter(providerID); limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				var zero T
				return zero, backoff.Permanent(err)
			}
		}
		out, err := call()
		if err != nil {
			if !domain.Retryable(err) {
				return out, backoff.Permanent(err)
			}
			return out, err
		}
		return out, nil
	}, strategy, func(err error, wait time.Duration) {
		s.logger.Warn().
			Err(err).
			Str("provider", providerID).
			Str("function", string(fn)).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("generation: transient provider failure")
	})
}
