package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/kbase-go/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateJob inserts a new job row in QUEUED state.
// Returns ErrDuplicateJob if a row with the same job_id already exists.
func (c *Client) CreateJob(ctx context.Context, job models.Job) (*models.Job, error) {
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	if job.CreatedTimestamp.IsZero() {
		job.CreatedTimestamp = time.Now().UTC()
	}

	if err := c.db.WithContext(ctx).Create(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, job.JobID)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	c.logger.Info("job created", "job_id", job.JobID, "type", job.Type, "asset_id", job.AssetID)
	return &job, nil
}

// GetJob fetches a single job by id. Returns ErrJobNotFound if absent.
func (c *Client) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	var job models.Job
	err := c.db.WithContext(ctx).First(&job, "job_id = ?", jobID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// UpdateJobStatus is the single mutation entry point for job rows. It
// performs the read-then-write inside one transaction under a row lock,
// enforcing the state machine: terminal states absorb, repeating the
// current status is idempotent, and any other transition out of a
// terminal state fails with ErrStatusConflict.
//
// If finish is true the finished_timestamp is stamped with the current
// time (kept if already set, so repeated terminal updates observe the
// same row).
func (c *Client) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus, finish bool) (*models.Job, error) {
	var job models.Job
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&job, "job_id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
			}
			return fmt.Errorf("lock job: %w", err)
		}

		if !job.Status.CanTransition(status) {
			return statusConflict(job.Status, status)
		}

		job.Status = status
		if finish && job.FinishedTimestamp == nil {
			now := time.Now().UTC()
			job.FinishedTimestamp = &now
		}

		if err := tx.Save(&job).Error; err != nil {
			return fmt.Errorf("save job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("job status updated", "job_id", jobID, "status", status, "finished", finish)
	return &job, nil
}

// LatestJobsByAssetIDs returns, for each asset with at least one job, the
// job with the greatest created_timestamp. One query regardless of input
// size: all matching rows are fetched ordered newest-first, then grouped
// first-wins in memory.
func (c *Client) LatestJobsByAssetIDs(ctx context.Context, assetIDs []uuid.UUID) (map[uuid.UUID]models.Job, error) {
	latest := make(map[uuid.UUID]models.Job, len(assetIDs))
	if len(assetIDs) == 0 {
		return latest, nil
	}

	var jobs []models.Job
	err := c.db.WithContext(ctx).
		Where("asset_id IN ?", assetIDs).
		Order("created_timestamp DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("latest jobs by asset: %w", err)
	}

	for _, job := range jobs {
		if job.AssetID == nil {
			continue
		}
		if _, seen := latest[*job.AssetID]; !seen {
			latest[*job.AssetID] = job
		}
	}
	return latest, nil
}

// JobsByFlowID returns jobs for a flow, newest first, paginated.
// page is 1-indexed.
func (c *Client) JobsByFlowID(ctx context.Context, flowID uuid.UUID, page, size int) ([]models.Job, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}

	var jobs []models.Job
	err := c.db.WithContext(ctx).
		Where("flow_id = ?", flowID).
		Order("created_timestamp DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("jobs by flow: %w", err)
	}
	return jobs, nil
}
