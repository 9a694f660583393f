package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"storyboard/internal/domain"
)

type providerView struct {
	ID           string                 `json:"id"`
	Kind         string                 `json:"kind"`
	APIKey       string                 `json:"api_key"`
	BaseURL      string                 `json:"base_url,omitempty"`
	Model        string                 `json:"model,omitempty"`
	Capabilities map[domain.Function]bool `json:"capabilities"`
}

type configView struct {
	Assignments map[domain.Function]string `json:"assignments"`
	Providers   map[string]providerView    `json:"providers"`
}

// GetConfig returns the active configuration with credentials masked.
func (a *App) GetConfig(w http.ResponseWriter, r *http.Request) {
	config, err := a.Config.GetConfig(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	view := configView{
		Assignments: config.Assignments,
		Providers:   make(map[string]providerView, len(config.Providers)),
	}
	for id, p := range config.Providers {
		view.Providers[id] = providerView{
			ID:           p.ID,
			Kind:         p.Kind,
			APIKey:       maskKey(p.APIKey),
			BaseURL:      p.BaseURL,
			Model:        p.Model,
			Capabilities: p.Capabilities,
		}
	}
	a.json(w, http.StatusOK, view)
}

// ValidateConfig checks the submitted configuration without persisting it.
func (a *App) ValidateConfig(w http.ResponseWriter, r *http.Request) {
	var candidate domain.MultiMediaConfig
	if !a.decode(w, r, &candidate) {
		return
	}
	a.json(w, http.StatusOK, a.Config.ValidateConfig(&candidate))
}

type providerRequest struct {
	Kind         string                   `json:"kind"`
	APIKey       string                   `json:"api_key"`
	BaseURL      string                   `json:"base_url"`
	Model        string                   `json:"model"`
	Capabilities map[domain.Function]bool `json:"capabilities"`
}

// PutProvider creates or replaces one provider's settings.
func (a *App) PutProvider(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "id")
	var req providerRequest
	if !a.decode(w, r, &req) {
		return
	}
	cfg := domain.ProviderConfig{
		Kind:         req.Kind,
		APIKey:       req.APIKey,
		BaseURL:      req.BaseURL,
		Model:        req.Model,
		Capabilities: req.Capabilities,
	}
	if err := a.Config.AddProviderConfig(r.Context(), providerID, cfg); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"provider": providerID, "status": "saved"})
}

// DeleteProvider removes a provider. Refused while functions still route to it.
func (a *App) DeleteProvider(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "id")
	if err := a.Config.RemoveProviderConfig(r.Context(), providerID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"provider": providerID, "status": "removed"})
}

// SyncProvider assigns the provider to every function it supports.
func (a *App) SyncProvider(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "id")
	if err := a.Config.SyncConfig(r.Context(), providerID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"provider": providerID, "status": "synced"})
}

type assignRequest struct {
	Provider string `json:"provider"`
}

// AssignFunction routes one generation function to a configured provider.
func (a *App) AssignFunction(w http.ResponseWriter, r *http.Request) {
	fn := domain.Function(chi.URLParam(r, "function"))
	var req assignRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.Config.SetProviderForFunction(r.Context(), fn, req.Provider); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"function": string(fn), "provider": req.Provider})
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
