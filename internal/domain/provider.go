package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ProviderConfig holds the per-provider settings saved by the user. It is
// owned by the configuration manager and mutated only through explicit
// re-saves.
type ProviderConfig struct {
	ID           string            `json:"id"`
	Kind         string            `json:"kind"`
	APIKey       string            `json:"api_key"`
	BaseURL      string            `json:"base_url,omitempty"`
	Model        string            `json:"model,omitempty"`
	Capabilities map[Function]bool `json:"capabilities"`
}

// Supports reports whether the config enables the given function.
func (c ProviderConfig) Supports(fn Function) bool {
	return c.Capabilities[fn]
}

// EnabledFunctions lists the functions this provider is flagged for, in the
// canonical function order.
func (c ProviderConfig) EnabledFunctions() []Function {
	var fns []Function
	for _, fn := range AllFunctions() {
		if c.Capabilities[fn] {
			fns = append(fns, fn)
		}
	}
	return fns
}

// MultiMediaConfig is the full routing picture: which provider serves each
// function, plus the settings of every configured provider.
type MultiMediaConfig struct {
	Assignments map[Function]string       `json:"assignments"`
	Providers   map[string]ProviderConfig `json:"providers"`
}

// NewMultiMediaConfig returns an empty, non-nil configuration.
func NewMultiMediaConfig() *MultiMediaConfig {
	return &MultiMediaConfig{
		Assignments: map[Function]string{},
		Providers:   map[string]ProviderConfig{},
	}
}

// Clone returns a deep copy so cached values can be handed out without
// exposing the manager's internal maps.
func (m *MultiMediaConfig) Clone() *MultiMediaConfig {
	out := NewMultiMediaConfig()
	for fn, id := range m.Assignments {
		out.Assignments[fn] = id
	}
	for id, cfg := range m.Providers {
		caps := make(map[Function]bool, len(cfg.Capabilities))
		for fn, ok := range cfg.Capabilities {
			caps[fn] = ok
		}
		cfg.Capabilities = caps
		out.Providers[id] = cfg
	}
	return out
}

// AssignedFunctions lists the functions currently routed to the provider.
func (m *MultiMediaConfig) AssignedFunctions(providerID string) []Function {
	var fns []Function
	for fn, id := range m.Assignments {
		if id == providerID {
			fns = append(fns, fn)
		}
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i] < fns[j] })
	return fns
}

// ValidationResult captures the outcome of a configuration validation pass.
// Shape errors are reported as messages, never as panics or typed failures.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Validate checks every function assignment against the configured providers
// and their capability flags.
func (m *MultiMediaConfig) Validate() ValidationResult {
	var problems []string
	for fn, providerID := range m.Assignments {
		if !fn.Valid() {
			problems = append(problems, fmt.Sprintf("unknown function %q", string(fn)))
			continue
		}
		cfg, ok := m.Providers[providerID]
		if !ok {
			problems = append(problems, fmt.Sprintf("function %s assigned to unconfigured provider %q", fn, providerID))
			continue
		}
		if !cfg.Supports(fn) {
			problems = append(problems, fmt.Sprintf("provider %q does not support %s", providerID, fn))
		}
	}
	sort.Strings(problems)
	return ValidationResult{Valid: len(problems) == 0, Errors: problems}
}

// ValidateCredential applies the plausibility rules for stored API keys.
func ValidateCredential(apiKey string) error {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return fmt.Errorf("api key is required")
	}
	if len(key) < 8 {
		return fmt.Errorf("api key is too short")
	}
	if len(key) > 512 {
		return fmt.Errorf("api key is too long")
	}
	return nil
}
