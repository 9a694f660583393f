package handlers

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"storyboard/internal/domain"
	"storyboard/pkg/zip"
)

type batchJobRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type createBatchRequest struct {
	Jobs []batchJobRequest `json:"jobs"`
}

// CreateBatch queues a batch of video generation jobs and starts the
// scheduler in the background. Jobs run strictly one at a time.
func (a *App) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if !a.decode(w, r, &req) {
		return
	}
	if len(req.Jobs) == 0 {
		a.badRequest(w, r, "at least one job is required")
		return
	}
	batchID := uuid.NewString()
	jobs := make([]*domain.BatchJob, 0, len(req.Jobs))
	for i, j := range req.Jobs {
		if strings.TrimSpace(j.Content) == "" {
			a.badRequest(w, r, "every job needs content")
			return
		}
		jobs = append(jobs, &domain.BatchJob{
			ID:       uuid.NewString(),
			BatchID:  batchID,
			Position: i + 1,
			Title:    j.Title,
			Content:  j.Content,
			Status:   domain.BatchJobPending,
		})
	}

	// The scheduler goroutine owns the jobs from here on; the response
	// encodes value copies taken before it starts.
	accepted := make([]domain.BatchJob, len(jobs))
	for i, job := range jobs {
		accepted[i] = *job
	}

	ctx, cancel := context.WithCancel(a.BaseContext)
	a.mu.Lock()
	a.batches[batchID] = cancel
	a.mu.Unlock()

	go func() {
		defer func() {
			a.mu.Lock()
			delete(a.batches, batchID)
			a.mu.Unlock()
			cancel()
		}()
		if err := a.Scheduler.Run(ctx, batchID, jobs); err != nil {
			a.Logger.Error().Err(err).Str("batch_id", batchID).Msg("batch run stopped")
		}
	}()

	a.json(w, http.StatusAccepted, map[string]any{
		"batch_id": batchID,
		"jobs":     accepted,
	})
}

// GetBatch returns the persisted snapshots for a batch.
func (a *App) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")
	jobs, err := a.BatchStore.LoadBatch(r.Context(), batchID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if len(jobs) == 0 {
		a.notFound(w, "batch")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"batch_id": batchID,
		"complete": domain.BatchComplete(jobs),
		"jobs":     jobs,
	})
}

// CancelBatch stops a running batch. Persisted snapshots stay; the batch can
// be resumed later by the worker.
func (a *App) CancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")
	a.mu.Lock()
	cancel, ok := a.batches[batchID]
	a.mu.Unlock()
	if !ok {
		a.notFound(w, "batch")
		return
	}
	cancel()
	a.json(w, http.StatusOK, map[string]string{"batch_id": batchID, "status": "cancelled"})
}

// ExportBatch streams a zip archive of the batch's locally stored results.
// Jobs whose results were never downloaded are listed in a manifest instead.
func (a *App) ExportBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")
	jobs, err := a.BatchStore.LoadBatch(r.Context(), batchID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if len(jobs) == 0 {
		a.notFound(w, "batch")
		return
	}

	var assets []zip.Asset
	var manifest strings.Builder
	for _, job := range jobs {
		manifest.WriteString(job.ID + "\t" + string(job.Status) + "\t" + job.ResultURL + "\n")
		if job.Status != domain.BatchJobCompleted || job.ResultURL == "" {
			continue
		}
		data, err := a.Store.Read(r.Context(), job.ResultURL)
		if err != nil {
			// Result still lives at the provider URL; the manifest points there.
			continue
		}
		name := path.Base(job.ResultURL)
		if name == "" || name == "." {
			name = job.ID + ".mp4"
		}
		assets = append(assets, zip.Asset{Filename: name, MIME: "video/mp4", Data: data})
	}
	assets = append(assets, zip.Asset{
		Filename: "manifest.tsv",
		MIME:     "text/tab-separated-values",
		Data:     []byte(manifest.String()),
	})

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="batch-`+batchID+`.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(zip.ArchiveAssets(assets))
}
