package domain

import "time"

// BatchJobStatus enumerates batch job lifecycle states.
type BatchJobStatus string

const (
	BatchJobPending    BatchJobStatus = "pending"
	BatchJobProcessing BatchJobStatus = "processing"
	BatchJobCompleted  BatchJobStatus = "completed"
	BatchJobFailed     BatchJobStatus = "failed"
)

// Done reports whether the job has reached a terminal status.
func (s BatchJobStatus) Done() bool {
	return s == BatchJobCompleted || s == BatchJobFailed
}

// BatchJob is one scene's video generation job inside an unattended batch.
// The scheduler owns all mutations; a snapshot is persisted after every
// status change so an interrupted batch can be audited or resumed.
type BatchJob struct {
	ID           string         `json:"id"`
	BatchID      string         `json:"batch_id,omitempty"`
	Position     int            `json:"position"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	Status       BatchJobStatus `json:"status"`
	Progress     int            `json:"progress"`
	RetryCount   int            `json:"retry_count"`
	ResultURL    string         `json:"result_url,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// BatchComplete reports the aggregate completion rule: a batch is complete
// exactly when every job is completed or failed.
func BatchComplete(jobs []*BatchJob) bool {
	for _, job := range jobs {
		if !job.Status.Done() {
			return false
		}
	}
	return true
}
