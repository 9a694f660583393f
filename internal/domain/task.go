package domain

import (
	"errors"
	"time"
)

// ErrTaskNotFound marks a missing or expired job handle. Pollers treat it as
// a terminal failure, never as a transient condition.
var ErrTaskNotFound = errors.New("task not found")

// TaskState enumerates the lifecycle of a long-running video generation job.
type TaskState string

const (
	TaskNotStart   TaskState = "NOT_START"
	TaskSubmitted  TaskState = "SUBMITTED"
	TaskQueued     TaskState = "QUEUED"
	TaskInProgress TaskState = "IN_PROGRESS"
	TaskSucceeded  TaskState = "SUCCESS"
	TaskFailed     TaskState = "FAILURE"
)

// Terminal reports whether the state ends the polling loop.
func (s TaskState) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// TaskStatus is the normalized answer to a single provider status query.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Progress  int       `json:"progress"`
	ResultURL string    `json:"result_url,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Task tracks one video generation job from submission to a terminal state.
// Only the poller mutates a task; consumers remove it when done with it.
type Task struct {
	ID            string    `json:"id"`
	Provider      string    `json:"provider,omitempty"`
	State         TaskState `json:"state"`
	Progress      int       `json:"progress"`
	ResultURL     string    `json:"result_url,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	RetryCount    int       `json:"retry_count"`
	MaxRetries    int       `json:"max_retries"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
