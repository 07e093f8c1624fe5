// Package service provides business logic for knowledge base operations.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/kbase-go/internal/db"
	"github.com/raphaelgruber/kbase-go/internal/models"
)

// JobStore is the persistence surface the job service needs. *db.Client
// implements it; tests substitute an in-memory fake.
type JobStore interface {
	CreateJob(ctx context.Context, job models.Job) (*models.Job, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus, finish bool) (*models.Job, error)
	LatestJobsByAssetIDs(ctx context.Context, assetIDs []uuid.UUID) (map[uuid.UUID]models.Job, error)
	JobsByFlowID(ctx context.Context, flowID uuid.UUID, page, size int) ([]models.Job, error)
}

// JobService wraps the job store with lifecycle management.
type JobService struct {
	store  JobStore
	logger *slog.Logger
}

// NewJobService creates a job service.
func NewJobService(store JobStore, logger *slog.Logger) *JobService {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{store: store, logger: logger}
}

// Create persists a new queued job.
func (s *JobService) Create(ctx context.Context, job models.Job) (*models.Job, error) {
	if job.JobID == uuid.Nil {
		job.JobID = uuid.New()
	}
	if job.FlowID == uuid.Nil {
		job.FlowID = job.JobID
	}
	return s.store.CreateJob(ctx, job)
}

// Get fetches a job by id.
func (s *JobService) Get(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return s.store.GetJob(ctx, jobID)
}

// UpdateStatus transitions a job, optionally stamping the finished
// timestamp.
func (s *JobService) UpdateStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus, finish bool) (*models.Job, error) {
	return s.store.UpdateJobStatus(ctx, jobID, status, finish)
}

// LatestForAssets returns the most recent job per asset.
func (s *JobService) LatestForAssets(ctx context.Context, assetIDs []uuid.UUID) (map[uuid.UUID]models.Job, error) {
	return s.store.LatestJobsByAssetIDs(ctx, assetIDs)
}

// ByFlow returns a page of jobs for a flow, newest first.
func (s *JobService) ByFlow(ctx context.Context, flowID uuid.UUID, page, size int) ([]models.Job, error) {
	return s.store.JobsByFlowID(ctx, flowID, page, size)
}

// IsCancelled reports whether the job has been moved to cancelled.
// Lookup failures count as not cancelled; the pipeline keeps running
// and a real cancellation is observed on the next check.
func (s *JobService) IsCancelled(ctx context.Context, jobID uuid.UUID) bool {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		s.logger.Warn("cancellation check failed", "job_id", jobID, "error", err)
		return false
	}
	return job.Status == models.JobStatusCancelled
}

// RunWithLifecycle executes fn under the job's lifecycle: the job moves
// to in_progress first, then to a terminal status derived from fn's
// outcome. A timeout of 0 disables the deadline.
//
// Outcome classification: nil completes the job; ErrIngestionCancelled
// marks it cancelled (user-initiated); a deadline hit marks it
// timed_out; anything else, including a plain context cancellation,
// marks it failed.
func (s *JobService) RunWithLifecycle(ctx context.Context, jobID uuid.UUID, timeout time.Duration, fn func(context.Context) error) error {
	if _, err := s.store.UpdateJobStatus(ctx, jobID, models.JobStatusInProgress, false); err != nil {
		return err
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := fn(runCtx)

	status := models.JobStatusCompleted
	switch {
	case err == nil:
	case errors.Is(err, ErrIngestionCancelled):
		status = models.JobStatusCancelled
	case errors.Is(err, context.DeadlineExceeded):
		status = models.JobStatusTimedOut
	default:
		status = models.JobStatusFailed
	}

	// The terminal update runs on a fresh context: the job outcome must
	// be recorded even when the work context is already dead.
	if _, updateErr := s.store.UpdateJobStatus(context.WithoutCancel(ctx), jobID, status, true); updateErr != nil {
		if errors.Is(updateErr, db.ErrStatusConflict) {
			// Another actor finished the job first, e.g. a concurrent
			// cancel request; its terminal status stands.
			s.logger.Warn("terminal status update rejected", "job_id", jobID, "status", status, "error", updateErr)
		} else {
			// Anything else leaves the row stuck in_progress; the
			// caller must see it.
			s.logger.Error("terminal status update failed", "job_id", jobID, "status", status, "error", updateErr)
			return errors.Join(err, updateErr)
		}
	}

	if err != nil {
		s.logger.Warn("job finished with error", "job_id", jobID, "status", status, "error", err)
	} else {
		s.logger.Info("job completed", "job_id", jobID)
	}
	return err
}
