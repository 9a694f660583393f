// Package batch drives an ordered queue of independent video generation jobs
// unattended. One job runs at a time; the spacing between jobs and the
// per-job retry budget respect provider rate limits. A snapshot is persisted
// after every status change so an interrupted batch can be inspected or
// resumed.
package batch

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"storyboard/internal/domain"
	"storyboard/internal/infra"
	"storyboard/internal/taskpoll"
)

// Generator submits video generation jobs. Satisfied by the generation
// service.
type Generator interface {
	GenerateVideo(ctx context.Context, req domain.VideoRequest) (*domain.VideoResponse, error)
}

// Poller drives a submitted task to a terminal state. Satisfied by the task
// poller.
type Poller interface {
	Poll(ctx context.Context, taskID, provider string, cb taskpoll.Callbacks) (domain.Task, error)
}

// Downloader persists a finished result URL locally and returns the stored
// location. Nil downloaders leave the provider URL on the job.
type Downloader func(ctx context.Context, resultURL string) (string, error)

// EventKind enumerates scheduler notifications.
type EventKind string

const (
	EventJobStarted    EventKind = "job_started"
	EventJobCompleted  EventKind = "job_completed"
	EventJobRetrying   EventKind = "job_retrying"
	EventJobFailed     EventKind = "job_failed"
	EventBatchComplete EventKind = "batch_complete"
)

// Event is one scheduler notification. Job is nil for batch-level events.
type Event struct {
	Kind    EventKind
	BatchID string
	Job     *domain.BatchJob
}

// Config tunes the scheduler.
type Config struct {
	// Interval is the timer tick between job pickups.
	Interval time.Duration
	// MaxRetries bounds re-queues per job; a job failing with an empty
	// budget goes to failed.
	MaxRetries int
	// RetryDelay defers a re-queued job's next attempt.
	RetryDelay time.Duration
	// AspectRatio and Duration are the defaults applied to every job.
	AspectRatio string
	Duration    int
	// Notify enables event emission.
	Notify bool
}

// Options wires the scheduler's collaborators.
type Options struct {
	Generator  Generator
	Poller     Poller
	Store      SnapshotStore
	Downloader Downloader
	Config     Config
	Logger     *infra.Logger
	OnEvent    func(Event)
}

// Scheduler processes one batch at a time, strictly one job in processing.
type Scheduler struct {
	generator  Generator
	poller     Poller
	store      SnapshotStore
	downloader Downloader
	cfg        Config
	logger     *infra.Logger
	onEvent    func(Event)
}

// NewScheduler constructs a scheduler with sane defaults.
func NewScheduler(opts Options) *Scheduler {
	cfg := opts.Config
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = "16:9"
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 5
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	store := opts.Store
	if store == nil {
		store = NewMemorySnapshotStore()
	}
	return &Scheduler{
		generator:  opts.Generator,
		poller:     opts.Poller,
		store:      store,
		downloader: opts.Downloader,
		cfg:        cfg,
		logger:     logger,
		onEvent:    opts.OnEvent,
	}
}

// Run processes the jobs in order until every one is completed or failed,
// then emits the completion event exactly once. It blocks; cancellation via
// ctx stops mid-batch with the current snapshots persisted.
func (s *Scheduler) Run(ctx context.Context, batchID string, jobs []*domain.BatchJob) error {
	retryAt := map[string]time.Time{}
	for i, job := range jobs {
		job.BatchID = batchID
		if job.Position == 0 {
			job.Position = i + 1
		}
		if job.Status == "" || job.Status == domain.BatchJobProcessing {
			job.Status = domain.BatchJobPending
		}
		if err := s.snapshot(ctx, job); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		job := nextPending(jobs, retryAt)
		if job == nil {
			if domain.BatchComplete(jobs) {
				s.emit(Event{Kind: EventBatchComplete, BatchID: batchID})
				s.logger.Info().Str("batch", batchID).Msg("batch: complete")
				return nil
			}
			// Remaining pending jobs are deferred by a retry delay.
			continue
		}
		if err := s.process(ctx, job, retryAt); err != nil {
			return err
		}
	}
}

// Resume reloads a batch from its snapshots and continues it. Jobs caught in
// processing by an interruption go back to pending.
func (s *Scheduler) Resume(ctx context.Context, batchID string) error {
	jobs, err := s.store.LoadBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}
	return s.Run(ctx, batchID, jobs)
}

func (s *Scheduler) process(ctx context.Context, job *domain.BatchJob, retryAt map[string]time.Time) error {
	job.Status = domain.BatchJobProcessing
	job.Progress = 0
	if err := s.snapshot(ctx, job); err != nil {
		return err
	}
	s.emit(Event{Kind: EventJobStarted, BatchID: job.BatchID, Job: job})
	s.logger.Info().
		Str("batch", job.BatchID).
		Str("job", job.ID).
		Int("retry", job.RetryCount).
		Msg("batch: job started")

	resp, err := s.generator.GenerateVideo(ctx, domain.VideoRequest{
		Prompt:      job.Content,
		AspectRatio: s.cfg.AspectRatio,
		Duration:    s.cfg.Duration,
		RequestID:   job.ID,
	})
	if err != nil {
		// Configuration, credential, policy, and quota failures cannot be
		// fixed by another attempt; they skip the retry budget entirely.
		return s.fail(ctx, job, domain.ReasonOf(err), domain.Retryable(err), retryAt)
	}

	resultURL := resp.URL
	if resultURL == "" {
		task, pollErr := s.poller.Poll(ctx, resp.TaskID, resp.Provider, taskpoll.Callbacks{
			OnProgress: func(t domain.Task) {
				job.Progress = t.Progress
				if err := s.snapshot(ctx, job); err != nil {
					s.logger.Warn().Err(err).Str("job", job.ID).Msg("batch: snapshot failed")
				}
			},
		})
		if pollErr != nil {
			return pollErr
		}
		if task.State != domain.TaskSucceeded {
			return s.fail(ctx, job, task.FailureReason, true, retryAt)
		}
		resultURL = task.ResultURL
	}

	if s.downloader != nil {
		stored, err := s.downloader(ctx, resultURL)
		if err != nil {
			s.logger.Warn().Err(err).Str("job", job.ID).Msg("batch: result download failed, keeping provider url")
		} else {
			resultURL = stored
		}
	}

	job.Status = domain.BatchJobCompleted
	job.Progress = 100
	job.ResultURL = resultURL
	job.ErrorMessage = ""
	if err := s.snapshot(ctx, job); err != nil {
		return err
	}
	s.emit(Event{Kind: EventJobCompleted, BatchID: job.BatchID, Job: job})
	s.logger.Info().Str("batch", job.BatchID).Str("job", job.ID).Msg("batch: job completed")
	return nil
}

func (s *Scheduler) fail(ctx context.Context, job *domain.BatchJob, reason string, retryable bool, retryAt map[string]time.Time) error {
	if reason == "" {
		reason = "generation failed"
	}
	if retryable && job.RetryCount < s.cfg.MaxRetries {
		job.RetryCount++
		job.Status = domain.BatchJobPending
		job.ErrorMessage = reason
		retryAt[job.ID] = time.Now().Add(s.cfg.RetryDelay)
		if err := s.snapshot(ctx, job); err != nil {
			return err
		}
		s.emit(Event{Kind: EventJobRetrying, BatchID: job.BatchID, Job: job})
		s.logger.Warn().
			Str("batch", job.BatchID).
			Str("job", job.ID).
			Int("retry", job.RetryCount).
			Str("reason", reason).
			Msg("batch: job re-queued")
		return nil
	}

	job.Status = domain.BatchJobFailed
	job.ErrorMessage = reason
	if err := s.snapshot(ctx, job); err != nil {
		return err
	}
	s.emit(Event{Kind: EventJobFailed, BatchID: job.BatchID, Job: job})
	s.logger.Error().
		Str("batch", job.BatchID).
		Str("job", job.ID).
		Str("reason", reason).
		Msg("batch: job failed permanently")
	return nil
}

func (s *Scheduler) snapshot(ctx context.Context, job *domain.BatchJob) error {
	job.UpdatedAt = time.Now()
	return s.store.SaveSnapshot(ctx, job)
}

func (s *Scheduler) emit(event Event) {
	if !s.cfg.Notify || s.onEvent == nil {
		return
	}
	s.onEvent(event)
}

// nextPending returns the first pending job whose retry delay, if any, has
// elapsed.
func nextPending(jobs []*domain.BatchJob, retryAt map[string]time.Time) *domain.BatchJob {
	now := time.Now()
	for _, job := range jobs {
		if job.Status != domain.BatchJobPending {
			continue
		}
		if deferred, ok := retryAt[job.ID]; ok && now.Before(deferred) {
			continue
		}
		return job
	}
	return nil
}
