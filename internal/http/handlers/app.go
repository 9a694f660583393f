// Package handlers exposes the orchestration layer over HTTP: provider
// configuration, synchronous generation, async video tasks, batch runs, and
// the clone workflow.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"storyboard/internal/batch"
	"storyboard/internal/cloneflow"
	"storyboard/internal/domain"
	"storyboard/internal/generation"
	"storyboard/internal/i18n"
	"storyboard/internal/infra"
	"storyboard/internal/mediaconfig"
	"storyboard/internal/middleware"
	"storyboard/internal/storage"
	"storyboard/internal/taskpoll"
)

// App carries the wired services behind the HTTP surface.
type App struct {
	Config     *mediaconfig.Manager
	Gen        *generation.Service
	Poller     *taskpoll.Poller
	Scheduler  *batch.Scheduler
	BatchStore batch.SnapshotStore
	Clone      *cloneflow.Workflow
	Store      *storage.FileStore
	Logger     *infra.Logger

	// BaseContext parents background work outliving the request: task
	// tracking and batch runs. Defaults to context.Background().
	BaseContext context.Context

	mu      sync.Mutex
	batches map[string]context.CancelFunc
}

// NewApp wires the handler set. Clone and Store may be nil; the corresponding
// endpoints then answer with a configuration error.
func NewApp(app *App) *App {
	if app.Logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		app.Logger = &l
	}
	if app.BaseContext == nil {
		app.BaseContext = context.Background()
	}
	app.batches = make(map[string]context.CancelFunc)
	return app
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// fail renders a generation error with its localized message and the HTTP
// status implied by its code.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	locale := middleware.LocaleFromContext(r.Context())
	a.json(w, statusForCode(code), errorBody{
		Error:   err.Error(),
		Code:    string(code),
		Message: i18n.ReasonForError(locale, err),
	})
}

func (a *App) badRequest(w http.ResponseWriter, r *http.Request, reason string) {
	a.fail(w, r, domain.NewError(domain.ErrCodeConfiguration, "", reason, nil))
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.badRequest(w, r, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func statusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.ErrCodeConfiguration, domain.ErrCodeUnsupportedFunction:
		return http.StatusBadRequest
	case domain.ErrCodeAPIKey:
		return http.StatusUnauthorized
	case domain.ErrCodeProviderNotConfigured:
		return http.StatusConflict
	case domain.ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case domain.ErrCodeQuotaExceeded:
		return http.StatusPaymentRequired
	case domain.ErrCodeContentPolicy:
		return http.StatusUnprocessableEntity
	case domain.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (a *App) notFound(w http.ResponseWriter, what string) {
	a.json(w, http.StatusNotFound, errorBody{
		Error:   what + " not found",
		Code:    "not_found",
		Message: what + " not found",
	})
}
