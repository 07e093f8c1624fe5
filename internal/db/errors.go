// Package db provides error types for database operations.
package db

import (
	"errors"
	"fmt"

	"github.com/raphaelgruber/kbase-go/internal/models"
)

// Sentinel errors for job-store operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrJobNotFound indicates the requested job row does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateJob indicates an insert collided with an existing job_id.
	ErrDuplicateJob = errors.New("job already exists")

	// ErrStatusConflict indicates a job status transition that the state
	// machine forbids, e.g. cancelling a job that already finished.
	ErrStatusConflict = errors.New("job status conflict")
)

// statusConflict wraps ErrStatusConflict with the job's current status so
// callers can report why the transition was rejected.
func statusConflict(current, requested models.JobStatus) error {
	return fmt.Errorf("%w: job is %s, cannot transition to %s", ErrStatusConflict, current, requested)
}
