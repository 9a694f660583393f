package batch

import (
	"context"
	"sort"
	"sync"
	"time"

	"storyboard/internal/domain"
	"storyboard/internal/infra"
	"storyboard/internal/sqlinline"
)

// SnapshotStore persists a batch job record after every status change. The
// snapshots exist for external inspection and resume, never for in-process
// control flow.
//
// PendingBatches and ClaimBatch cooperate to hand abandoned batches to a
// resuming worker: a batch is abandoned when it still has non-terminal jobs
// but no snapshot was written within staleFor. An active scheduler writes a
// snapshot on every status change, so its batches never look stale.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, job *domain.BatchJob) error
	LoadBatch(ctx context.Context, batchID string) ([]*domain.BatchJob, error)
	PendingBatches(ctx context.Context, staleFor time.Duration) ([]string, error)
	// ClaimBatch atomically takes ownership of a stale batch by touching its
	// non-terminal snapshots. It returns false when another scheduler is
	// already driving the batch.
	ClaimBatch(ctx context.Context, batchID string, staleFor time.Duration) (bool, error)
}

// MemorySnapshotStore keeps snapshots in process memory. It backs tests and
// database-less deployments.
type MemorySnapshotStore struct {
	mu   sync.RWMutex
	jobs map[string]map[string]domain.BatchJob
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{jobs: map[string]map[string]domain.BatchJob{}}
}

func (s *MemorySnapshotStore) SaveSnapshot(ctx context.Context, job *domain.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byJob, ok := s.jobs[job.BatchID]
	if !ok {
		byJob = map[string]domain.BatchJob{}
		s.jobs[job.BatchID] = byJob
	}
	byJob[job.ID] = *job
	return nil
}

func (s *MemorySnapshotStore) LoadBatch(ctx context.Context, batchID string) ([]*domain.BatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byJob := s.jobs[batchID]
	out := make([]*domain.BatchJob, 0, len(byJob))
	for _, job := range byJob {
		copied := job
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemorySnapshotStore) PendingBatches(ctx context.Context, staleFor time.Duration) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := time.Now().Add(-staleFor)
	var ids []string
	for batchID, byJob := range s.jobs {
		pending, active := false, false
		for _, job := range byJob {
			if !job.Status.Done() {
				pending = true
			}
			if job.UpdatedAt.After(cutoff) {
				active = true
			}
		}
		if pending && !active {
			ids = append(ids, batchID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemorySnapshotStore) ClaimBatch(ctx context.Context, batchID string, staleFor time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-staleFor)
	claimed := false
	for id, job := range s.jobs[batchID] {
		if job.Status.Done() || job.UpdatedAt.After(cutoff) {
			continue
		}
		job.UpdatedAt = time.Now()
		s.jobs[batchID][id] = job
		claimed = true
	}
	return claimed, nil
}

// PGSnapshotStore persists snapshots to Postgres.
type PGSnapshotStore struct {
	db infra.SQLExecutor
}

func NewPGSnapshotStore(db infra.SQLExecutor) *PGSnapshotStore {
	return &PGSnapshotStore{db: db}
}

func (s *PGSnapshotStore) SaveSnapshot(ctx context.Context, job *domain.BatchJob) error {
	_, err := s.db.Exec(ctx, sqlinline.QUpsertBatchJobSnapshot,
		job.ID, job.BatchID, job.Position, job.Title, job.Content, string(job.Status),
		job.Progress, job.RetryCount, job.ResultURL, job.ErrorMessage)
	return err
}

func (s *PGSnapshotStore) LoadBatch(ctx context.Context, batchID string) ([]*domain.BatchJob, error) {
	rows, err := s.db.Query(ctx, sqlinline.QSelectBatchJobSnapshots, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.BatchJob
	for rows.Next() {
		var job domain.BatchJob
		var status string
		if err := rows.Scan(&job.ID, &job.BatchID, &job.Position, &job.Title, &job.Content, &status,
			&job.Progress, &job.RetryCount, &job.ResultURL, &job.ErrorMessage, &job.UpdatedAt); err != nil {
			return nil, err
		}
		job.Status = domain.BatchJobStatus(status)
		out = append(out, &job)
	}
	return out, rows.Err()
}

func (s *PGSnapshotStore) PendingBatches(ctx context.Context, staleFor time.Duration) ([]string, error) {
	rows, err := s.db.Query(ctx, sqlinline.QSelectStaleBatches, int(staleFor.Seconds()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PGSnapshotStore) ClaimBatch(ctx context.Context, batchID string, staleFor time.Duration) (bool, error) {
	var claimed int
	row := s.db.QueryRow(ctx, sqlinline.QClaimStaleBatchJobs, batchID, int(staleFor.Seconds()))
	if err := row.Scan(&claimed); err != nil {
		return false, err
	}
	return claimed > 0, nil
}

var (
	_ SnapshotStore = (*MemorySnapshotStore)(nil)
	_ SnapshotStore = (*PGSnapshotStore)(nil)
)
