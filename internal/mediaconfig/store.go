package mediaconfig

import (
	"context"
	"sync"

	"storyboard/internal/domain"
)

// Store is the persistent home of the multimedia configuration. The manager
// treats it as a key-value collaborator: one record per provider plus one
// record for the function assignment map.
type Store interface {
	Load(ctx context.Context) (*domain.MultiMediaConfig, error)
	SaveProvider(ctx context.Context, cfg domain.ProviderConfig) error
	DeleteProvider(ctx context.Context, providerID string) error
	SaveAssignments(ctx context.Context, assignments map[domain.Function]string) error
}

// MemoryStore keeps the configuration in process memory. Used by tests and
// by deployments that have not wired Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	config *domain.MultiMediaConfig
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{config: domain.NewMultiMediaConfig()}
}

func (s *MemoryStore) Load(ctx context.Context) (*domain.MultiMediaConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Clone(), nil
}

func (s *MemoryStore) SaveProvider(ctx context.Context, cfg domain.ProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.Providers[cfg.ID] = cfg
	return nil
}

func (s *MemoryStore) DeleteProvider(ctx context.Context, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.config.Providers, providerID)
	return nil
}

func (s *MemoryStore) SaveAssignments(ctx context.Context, assignments map[domain.Function]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := map[domain.Function]string{}
	for fn, id := range assignments {
		next[fn] = id
	}
	s.config.Assignments = next
	return nil
}

var _ Store = (*MemoryStore)(nil)
