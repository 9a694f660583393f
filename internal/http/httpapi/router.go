// Package httpapi assembles the chi router for the orchestration API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"storyboard/internal/http/handlers"
	"storyboard/internal/infra"
	mw "storyboard/internal/middleware"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	Logger         infra.Logger
	AllowedOrigins []string
	RateLimit      int
	RateWindow     time.Duration // zero disables rate limiting
	DefaultLocale  string
}

// NewRouter wires the full route table.
func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		mw.Logger(opts.Logger),
		mw.CORS(opts.AllowedOrigins),
		mw.I18N(opts.DefaultLocale),
	)
	if opts.RateLimit > 0 && opts.RateWindow > 0 {
		r.Use(mw.RateLimit(opts.RateLimit, opts.RateWindow))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/config", func(r chi.Router) {
		r.Get("/", app.GetConfig)
		r.Post("/validate", app.ValidateConfig)
	})

	r.Route("/v1/providers", func(r chi.Router) {
		r.Put("/{id}", app.PutProvider)
		r.Delete("/{id}", app.DeleteProvider)
		r.Post("/{id}/sync", app.SyncProvider)
	})

	r.Put("/v1/functions/{function}", app.AssignFunction)

	r.Route("/v1/generate", func(r chi.Router) {
		r.Post("/image", app.GenerateImage)
		r.Post("/image/edit", app.EditImage)
		r.Post("/text", app.GenerateText)
		r.Post("/video", app.GenerateVideo)
	})

	r.Route("/v1/analyze", func(r chi.Router) {
		r.Post("/image", app.AnalyzeImage)
		r.Post("/video", app.AnalyzeVideo)
	})

	r.Route("/v1/tasks", func(r chi.Router) {
		r.Get("/", app.ListTasks)
		r.Get("/{id}", app.GetTask)
		r.Delete("/{id}", app.DeleteTask)
	})

	r.Route("/v1/batches", func(r chi.Router) {
		r.Post("/", app.CreateBatch)
		r.Get("/{id}", app.GetBatch)
		r.Delete("/{id}", app.CancelBatch)
		r.Get("/{id}/export", app.ExportBatch)
	})

	r.Route("/v1/clone", func(r chi.Router) {
		r.Get("/", app.GetClone)
		r.Post("/", app.StartClone)
		r.Post("/retry", app.RetryClone)
		r.Delete("/", app.CancelClone)
	})

	return r
}
