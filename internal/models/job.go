// Package models defines data structures for the kbase ingestion service.
package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of a background job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusTimedOut   JobStatus = "timed_out"
)

// JobType identifies what kind of work a job tracks.
type JobType string

const (
	JobTypeWorkflow   JobType = "workflow"
	JobTypeIngestion  JobType = "ingestion"
	JobTypeEvaluation JobType = "evaluation"
)

// Job is a persisted record of one long-running operation.
type Job struct {
	JobID             uuid.UUID  `gorm:"type:char(36);primaryKey" json:"job_id"`
	FlowID            uuid.UUID  `gorm:"type:char(36);index;not null" json:"flow_id"`
	Type              JobType    `gorm:"type:varchar(32);index" json:"type"`
	Status            JobStatus  `gorm:"type:varchar(32);not null" json:"status"`
	AssetID           *uuid.UUID `gorm:"type:char(36);index" json:"asset_id,omitempty"`
	AssetType         *string    `gorm:"type:varchar(64)" json:"asset_type,omitempty"`
	UserID            *uuid.UUID `gorm:"type:char(36);index" json:"user_id,omitempty"`
	CreatedTimestamp  time.Time  `gorm:"not null" json:"created_timestamp"`
	FinishedTimestamp *time.Time `json:"finished_timestamp,omitempty"`
}

// TableName overrides gorm's default pluralized name.
func (Job) TableName() string { return "job" }

// IsTerminal reports whether s permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusTimedOut:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal
// state-machine step. Repeating the current status is always legal so
// that terminal updates stay idempotent.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s == next {
		return true
	}
	return !s.IsTerminal()
}
