package taskpoll

import (
	"sort"
	"sync"

	"storyboard/internal/domain"
)

// Registry holds the in-flight and recently finished tasks. The poller is
// the only writer; consumers read a task's snapshot and remove it when the
// result has been consumed.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]domain.Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: map[string]domain.Task{}}
}

// Get returns a snapshot of the task, if tracked.
func (r *Registry) Get(id string) (domain.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[id]
	return task, ok
}

// List returns snapshots of all tracked tasks, newest first.
func (r *Registry) List() []domain.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Remove drops a task from tracking. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
}

func (r *Registry) put(task domain.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = task
}
