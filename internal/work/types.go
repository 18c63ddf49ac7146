// Package work runs settlement jobs in the background and delivers exactly one outcome per job.
package work

import (
	"context"
	"errors"
	"time"
)

// WorkTimeout is the maximum duration a job can run before being cancelled.
const WorkTimeout = 10 * time.Minute

// ErrStopped is returned when submitting to a stopped processor.
var ErrStopped = errors.New("work processor is stopped")

// Status is the lifecycle state of a job.
type Status string

const (
	// StatusQueued - accepted, waiting for the running job to finish
	StatusQueued Status = "queued"
	// StatusRunning - executing
	StatusRunning Status = "running"
	// StatusSucceeded - finished with a value
	StatusSucceeded Status = "succeeded"
	// StatusFailed - finished with an error
	StatusFailed Status = "failed"
	// StatusCancelled - stopped by shutdown or timeout before finishing
	StatusCancelled Status = "cancelled"
)

// Done reports whether the status is final.
func (s Status) Done() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Outcome is the single value a background run delivers: a result or an error.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Func is the body of a job. It receives the job ID so the run can be recorded under it.
type Func[T any] func(ctx context.Context, id string) (T, error)

// Job is a snapshot of a submitted job.
type Job[T any] struct {
	ID          string    `json:"id"`
	Status      Status    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	Value       T         `json:"value,omitempty"`
	Err         error     `json:"-"`
}
