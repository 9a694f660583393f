package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"storyboard/internal/domain"
	"storyboard/internal/infra"
	"storyboard/internal/taskpoll"
)

// taskCallbacks logs task transitions; state itself lives in the poller's
// registry.
func taskCallbacks(logger *infra.Logger) taskpoll.Callbacks {
	return taskpoll.Callbacks{
		OnSuccess: func(task domain.Task) {
			logger.Info().Str("task_id", task.ID).Str("result_url", task.ResultURL).Msg("video task succeeded")
		},
		OnFailure: func(task domain.Task) {
			logger.Warn().Str("task_id", task.ID).Str("reason", task.FailureReason).Msg("video task failed")
		},
	}
}

// ListTasks returns all tracked video tasks, newest first.
func (a *App) ListTasks(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"tasks": a.Poller.Registry().List()})
}

// GetTask returns one tracked task.
func (a *App) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, ok := a.Poller.Registry().Get(id)
	if !ok {
		a.notFound(w, "task")
		return
	}
	a.json(w, http.StatusOK, task)
}

// DeleteTask drops a task from the registry. Polling already in flight keeps
// running; only the visible record goes away.
func (a *App) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := a.Poller.Registry().Get(id); !ok {
		a.notFound(w, "task")
		return
	}
	a.Poller.Registry().Remove(id)
	a.json(w, http.StatusOK, map[string]string{"task": id, "status": "removed"})
}
