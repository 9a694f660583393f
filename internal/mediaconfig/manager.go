package mediaconfig

import (
	"context"
	"io"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"storyboard/internal/capability"
	"storyboard/internal/domain"
	"storyboard/internal/infra"
)

const cacheKey = "multimedia-config"

// Options configures the manager.
type Options struct {
	Store    Store
	CacheTTL time.Duration
	Logger   *infra.Logger
}

// Manager owns the multimedia configuration: it loads from the store, caches
// with a TTL, validates mutations, and invalidates the cache on every write.
// It is the single entry point for configuration state; nothing else touches
// the store.
type Manager struct {
	store  Store
	cache  *gocache.Cache
	logger *infra.Logger
}

// NewManager constructs a manager with sane defaults.
func NewManager(opts Options) *Manager {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	return &Manager{
		store:  store,
		cache:  gocache.New(ttl, 2*ttl),
		logger: logger,
	}
}

// GetConfig returns the current configuration, loading from the store when
// the cache is cold or expired. Callers get a private copy.
func (m *Manager) GetConfig(ctx context.Context) (*domain.MultiMediaConfig, error) {
	if cached, ok := m.cache.Get(cacheKey); ok {
		if config, ok := cached.(*domain.MultiMediaConfig); ok {
			return config.Clone(), nil
		}
	}
	config, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	m.cache.Set(cacheKey, config.Clone(), gocache.DefaultExpiration)
	return config, nil
}

// ValidateConfig checks a candidate configuration without persisting it.
// Shape problems come back as messages, never as errors.
func (m *Manager) ValidateConfig(candidate *domain.MultiMediaConfig) domain.ValidationResult {
	if candidate == nil {
		return domain.ValidationResult{Valid: false, Errors: []string{"configuration is required"}}
	}
	return candidate.Validate()
}

// AddProviderConfig validates and persists one provider's settings. The
// capability flags are clamped to what the provider kind actually implements.
func (m *Manager) AddProviderConfig(ctx context.Context, providerID string, cfg domain.ProviderConfig) error {
	if providerID == "" {
		return domain.NewError(domain.ErrCodeConfiguration, "", "provider id is required", nil)
	}
	if err := domain.ValidateCredential(cfg.APIKey); err != nil {
		return domain.NewError(domain.ErrCodeConfiguration, providerID, err.Error(), nil)
	}
	kind := cfg.Kind
	if kind == "" {
		kind = providerID
	}
	if !capability.Known(kind) {
		return domain.NewError(domain.ErrCodeConfiguration, providerID, "unknown provider kind "+kind, nil)
	}
	cfg.ID = providerID
	cfg.Kind = kind
	if cfg.Capabilities == nil {
		cfg.Capabilities = capability.Defaults(kind)
	} else {
		for fn := range cfg.Capabilities {
			if !capability.Supports(kind, fn) {
				delete(cfg.Capabilities, fn)
			}
		}
	}
	if err := m.store.SaveProvider(ctx, cfg); err != nil {
		return err
	}
	m.invalidate()
	m.logger.Info().Str("provider", providerID).Str("kind", kind).Msg("mediaconfig: provider saved")
	return nil
}

// SyncConfig assigns the provider to every function its capability flags
// support, leaving other assignments untouched.
func (m *Manager) SyncConfig(ctx context.Context, providerID string) error {
	config, err := m.GetConfig(ctx)
	if err != nil {
		return err
	}
	cfg, ok := config.Providers[providerID]
	if !ok {
		return domain.NewError(domain.ErrCodeProviderNotConfigured, providerID, "provider is not configured", nil)
	}
	for _, fn := range cfg.EnabledFunctions() {
		config.Assignments[fn] = providerID
	}
	if err := m.store.SaveAssignments(ctx, config.Assignments); err != nil {
		return err
	}
	m.invalidate()
	m.logger.Info().Str("provider", providerID).Msg("mediaconfig: provider synced to all supported functions")
	return nil
}

// SetProviderForFunction routes one function to an already-configured,
// capability-compatible provider.
func (m *Manager) SetProviderForFunction(ctx context.Context, fn domain.Function, providerID string) error {
	if !fn.Valid() {
		return domain.NewError(domain.ErrCodeConfiguration, providerID, "unknown function "+string(fn), nil)
	}
	config, err := m.GetConfig(ctx)
	if err != nil {
		return err
	}
	cfg, ok := config.Providers[providerID]
	if !ok {
		return domain.NewError(domain.ErrCodeProviderNotConfigured, providerID, "provider is not configured", nil)
	}
	if !cfg.Supports(fn) {
		return domain.NewError(domain.ErrCodeConfiguration, providerID, "provider does not support "+string(fn), nil)
	}
	config.Assignments[fn] = providerID
	if err := m.store.SaveAssignments(ctx, config.Assignments); err != nil {
		return err
	}
	m.invalidate()
	return nil
}

// RemoveProviderConfig deletes a provider's settings. It refuses while any
// function is still assigned to the provider.
func (m *Manager) RemoveProviderConfig(ctx context.Context, providerID string) error {
	config, err := m.GetConfig(ctx)
	if err != nil {
		return err
	}
	if assigned := config.AssignedFunctions(providerID); len(assigned) > 0 {
		return domain.NewError(domain.ErrCodeConfiguration, providerID,
			"provider is still assigned to "+joinFunctions(assigned), nil)
	}
	if err := m.store.DeleteProvider(ctx, providerID); err != nil {
		return err
	}
	m.invalidate()
	m.logger.Info().Str("provider", providerID).Msg("mediaconfig: provider removed")
	return nil
}

// ClearCache forces the next GetConfig to reload from the store.
func (m *Manager) ClearCache() {
	m.invalidate()
}

func (m *Manager) invalidate() {
	m.cache.Delete(cacheKey)
}

func joinFunctions(fns []domain.Function) string {
	out := ""
	for i, fn := range fns {
		if i > 0 {
			out += ", "
		}
		out += string(fn)
	}
	return out
}
