// Package taskpoll drives asynchronous video generation jobs to a terminal
// state. Submission returns a job handle; the poller queries the provider on
// a fixed cadence, maps the answers onto the canonical task states, and
// synthesizes a monotonic progress percentage for consumers.
package taskpoll

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"storyboard/internal/domain"
	"storyboard/internal/infra"
)

// Querier resolves the provider-side status of a submitted task. It is
// satisfied by the generation service.
type Querier interface {
	QueryVideoTask(ctx context.Context, taskID string) (*domain.TaskStatus, error)
}

// Callbacks is the consumer contract. All callbacks are optional and are
// invoked from the polling goroutine; OnSuccess and OnFailure fire at most
// once per task.
type Callbacks struct {
	OnProgress func(task domain.Task)
	OnSuccess  func(task domain.Task)
	OnFailure  func(task domain.Task)
}

// Options configures the poller.
type Options struct {
	Querier  Querier
	Registry *Registry
	Interval time.Duration
	Logger   *infra.Logger
}

// Poller walks tasks through SUBMITTED, QUEUED, and IN_PROGRESS until the
// provider reports SUCCESS or FAILURE.
type Poller struct {
	querier  Querier
	registry *Registry
	interval time.Duration
	logger   *infra.Logger
}

// NewPoller constructs a poller with sane defaults.
func NewPoller(opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Poller{
		querier:  opts.Querier,
		registry: registry,
		interval: interval,
		logger:   logger,
	}
}

// Registry exposes the task registry for read access.
func (p *Poller) Registry() *Registry { return p.registry }

// Track starts polling in a background goroutine. The final state lands in
// the registry and in the callbacks; cancellation stops the loop without
// touching the provider-side job.
func (p *Poller) Track(ctx context.Context, taskID, provider string, cb Callbacks) {
	go func() {
		if _, err := p.Poll(ctx, taskID, provider, cb); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Warn().Err(err).Str("task", taskID).Msg("taskpoll: polling ended with error")
		}
	}()
}

// Poll blocks until the task reaches a terminal state or the context is
// cancelled. Transient query failures never transition the task; it stays in
// its last known state and polling continues. A missing job handle is a
// terminal failure with reason "task not found".
func (p *Poller) Poll(ctx context.Context, taskID, provider string, cb Callbacks) (domain.Task, error) {
	now := time.Now()
	task := domain.Task{
		ID:        taskID,
		Provider:  provider,
		State:     domain.TaskSubmitted,
		Progress:  5,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.publish(task, cb)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}

		status, err := p.querier.QueryVideoTask(ctx, taskID)
		if err != nil {
			if errors.Is(err, domain.ErrTaskNotFound) {
				task = p.fail(task, "task not found", cb)
				return task, nil
			}
			if !domain.Retryable(err) {
				task = p.fail(task, domain.ReasonOf(err), cb)
				return task, nil
			}
			p.logger.Debug().Err(err).Str("task", taskID).Msg("taskpoll: transient query failure")
			continue
		}

		task.Progress = synthesizeProgress(task.Progress, status)
		task.State = status.State
		task.UpdatedAt = time.Now()
		switch status.State {
		case domain.TaskSucceeded:
			task.ResultURL = status.ResultURL
			task.Progress = 100
			p.registry.put(task)
			if cb.OnSuccess != nil {
				cb.OnSuccess(task)
			}
			return task, nil
		case domain.TaskFailed:
			reason := status.Reason
			if reason == "" {
				reason = "generation failed"
			}
			task = p.fail(task, reason, cb)
			return task, nil
		default:
			p.publish(task, cb)
		}
	}
}

func (p *Poller) publish(task domain.Task, cb Callbacks) {
	p.registry.put(task)
	if cb.OnProgress != nil {
		cb.OnProgress(task)
	}
}

func (p *Poller) fail(task domain.Task, reason string, cb Callbacks) domain.Task {
	task.State = domain.TaskFailed
	task.FailureReason = reason
	task.UpdatedAt = time.Now()
	p.registry.put(task)
	if cb.OnFailure != nil {
		cb.OnFailure(task)
	}
	return task
}

// synthesizeProgress keeps the percentage monotonically non-decreasing.
// Providers that report a usable number win when they are ahead of the ramp;
// otherwise in-progress tasks creep toward 95 and only SUCCESS reaches 100.
func synthesizeProgress(prev int, status *domain.TaskStatus) int {
	next := prev
	switch status.State {
	case domain.TaskSubmitted:
		next = 5
	case domain.TaskQueued:
		next = 10
	case domain.TaskInProgress:
		next = prev + 5
		if next < 15 {
			next = 15
		}
		if status.Progress > next && status.Progress <= 95 {
			next = status.Progress
		}
		if next > 95 {
			next = 95
		}
	case domain.TaskSucceeded:
		next = 100
	}
	if next < prev {
		return prev
	}
	return next
}
