package mediaconfig

import (
	"context"
	"encoding/json"
	"fmt"

	"storyboard/internal/domain"
	"storyboard/internal/infra"
	"storyboard/internal/sqlinline"
)

// PGStore persists provider configs and function assignments as JSON records
// in Postgres. A missing or empty table degrades to an empty configuration,
// which surfaces downstream as "provider not configured" rather than a crash.
type PGStore struct {
	sql infra.SQLExecutor
}

func NewPGStore(sql infra.SQLExecutor) *PGStore {
	return &PGStore{sql: sql}
}

func (s *PGStore) Load(ctx context.Context) (*domain.MultiMediaConfig, error) {
	config := domain.NewMultiMediaConfig()

	rows, err := s.sql.Query(ctx, sqlinline.QSelectProviderConfigs)
	if err != nil {
		return nil, fmt.Errorf("mediaconfig: load providers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var providerID string
		var raw []byte
		if err := rows.Scan(&providerID, &raw); err != nil {
			return nil, fmt.Errorf("mediaconfig: scan provider: %w", err)
		}
		var cfg domain.ProviderConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("mediaconfig: decode provider %s: %w", providerID, err)
		}
		cfg.ID = providerID
		config.Providers[providerID] = cfg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mediaconfig: iterate providers: %w", err)
	}

	row := s.sql.QueryRow(ctx, sqlinline.QSelectFunctionAssignments)
	var rawAssignments []byte
	if err := row.Scan(&rawAssignments); err != nil {
		if infra.IsNoRows(err) {
			return config, nil
		}
		return nil, fmt.Errorf("mediaconfig: load assignments: %w", err)
	}
	if len(rawAssignments) > 0 {
		if err := json.Unmarshal(rawAssignments, &config.Assignments); err != nil {
			return nil, fmt.Errorf("mediaconfig: decode assignments: %w", err)
		}
	}
	return config, nil
}

func (s *PGStore) SaveProvider(ctx context.Context, cfg domain.ProviderConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("mediaconfig: encode provider %s: %w", cfg.ID, err)
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertProviderConfig, cfg.ID, raw); err != nil {
		return fmt.Errorf("mediaconfig: save provider %s: %w", cfg.ID, err)
	}
	return nil
}

func (s *PGStore) DeleteProvider(ctx context.Context, providerID string) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QDeleteProviderConfig, providerID); err != nil {
		return fmt.Errorf("mediaconfig: delete provider %s: %w", providerID, err)
	}
	return nil
}

func (s *PGStore) SaveAssignments(ctx context.Context, assignments map[domain.Function]string) error {
	raw, err := json.Marshal(assignments)
	if err != nil {
		return fmt.Errorf("mediaconfig: encode assignments: %w", err)
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertFunctionAssignments, raw); err != nil {
		return fmt.Errorf("mediaconfig: save assignments: %w", err)
	}
	return nil
}

var _ Store = (*PGStore)(nil)
