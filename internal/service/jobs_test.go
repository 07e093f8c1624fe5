package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/kbase-go/internal/db"
	"github.com/raphaelgruber/kbase-go/internal/models"
)

// fakeJobStore is an in-memory JobStore enforcing the same transition
// rules as the database-backed client.
type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]models.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]models.Job)}
}

func (f *fakeJobStore) CreateJob(_ context.Context, job models.Job) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[job.JobID]; ok {
		return nil, db.ErrDuplicateJob
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	if job.CreatedTimestamp.IsZero() {
		job.CreatedTimestamp = time.Now().UTC()
	}
	f.jobs[job.JobID] = job
	return &job, nil
}

func (f *fakeJobStore) GetJob(_ context.Context, jobID uuid.UUID) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, db.ErrJobNotFound
	}
	return &job, nil
}

func (f *fakeJobStore) UpdateJobStatus(_ context.Context, jobID uuid.UUID, status models.JobStatus, finish bool) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, db.ErrJobNotFound
	}
	if !job.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s -> %s", db.ErrStatusConflict, job.Status, status)
	}
	job.Status = status
	if finish && job.FinishedTimestamp == nil {
		now := time.Now().UTC()
		job.FinishedTimestamp = &now
	}
	f.jobs[jobID] = job
	return &job, nil
}

func (f *fakeJobStore) LatestJobsByAssetIDs(_ context.Context, assetIDs []uuid.UUID) (map[uuid.UUID]models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	wanted := make(map[uuid.UUID]bool, len(assetIDs))
	for _, id := range assetIDs {
		wanted[id] = true
	}

	latest := make(map[uuid.UUID]models.Job)
	for _, job := range f.jobs {
		if job.AssetID == nil || !wanted[*job.AssetID] {
			continue
		}
		if cur, ok := latest[*job.AssetID]; !ok || job.CreatedTimestamp.After(cur.CreatedTimestamp) {
			latest[*job.AssetID] = job
		}
	}
	return latest, nil
}

func (f *fakeJobStore) JobsByFlowID(_ context.Context, flowID uuid.UUID, page, size int) ([]models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var jobs []models.Job
	for _, job := range f.jobs {
		if job.FlowID == flowID {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedTimestamp.After(jobs[j].CreatedTimestamp)
	})

	start := (page - 1) * size
	if start >= len(jobs) {
		return nil, nil
	}
	return jobs[start:min(start+size, len(jobs))], nil
}

func createTestJob(t *testing.T, jobs *JobService) *models.Job {
	t.Helper()
	job, err := jobs.Create(context.Background(), models.Job{Type: models.JobTypeIngestion})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return job
}

func TestRunWithLifecycle_Completed(t *testing.T) {
	store := newFakeJobStore()
	jobs := NewJobService(store, nil)
	job := createTestJob(t, jobs)

	var observed models.JobStatus
	err := jobs.RunWithLifecycle(context.Background(), job.JobID, 0, func(ctx context.Context) error {
		current, getErr := jobs.Get(ctx, job.JobID)
		if getErr != nil {
			return getErr
		}
		observed = current.Status
		return nil
	})
	if err != nil {
		t.Fatalf("RunWithLifecycle() error = %v", err)
	}

	if observed != models.JobStatusInProgress {
		t.Errorf("status during run = %q, want in_progress", observed)
	}

	final, _ := jobs.Get(context.Background(), job.JobID)
	if final.Status != models.JobStatusCompleted {
		t.Errorf("final status = %q, want completed", final.Status)
	}
	if final.FinishedTimestamp == nil {
		t.Error("FinishedTimestamp not stamped")
	}
}

func TestRunWithLifecycle_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.JobStatus
	}{
		{"user cancellation", ErrIngestionCancelled, models.JobStatusCancelled},
		{"wrapped user cancellation", fmt.Errorf("pipeline: %w", ErrIngestionCancelled), models.JobStatusCancelled},
		{"deadline", context.DeadlineExceeded, models.JobStatusTimedOut},
		{"system cancellation", context.Canceled, models.JobStatusFailed},
		{"other error", errors.New("disk full"), models.JobStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeJobStore()
			jobs := NewJobService(store, nil)
			job := createTestJob(t, jobs)

			err := jobs.RunWithLifecycle(context.Background(), job.JobID, 0, func(context.Context) error {
				return tt.err
			})
			if !errors.Is(err, tt.err) && err.Error() != tt.err.Error() {
				t.Errorf("returned error = %v, want %v", err, tt.err)
			}

			final, _ := jobs.Get(context.Background(), job.JobID)
			if final.Status != tt.want {
				t.Errorf("final status = %q, want %q", final.Status, tt.want)
			}
			if final.FinishedTimestamp == nil {
				t.Error("FinishedTimestamp not stamped on terminal status")
			}
		})
	}
}

func TestRunWithLifecycle_TimeoutApplied(t *testing.T) {
	store := newFakeJobStore()
	jobs := NewJobService(store, nil)
	job := createTestJob(t, jobs)

	err := jobs.RunWithLifecycle(context.Background(), job.JobID, 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}

	final, _ := jobs.Get(context.Background(), job.JobID)
	if final.Status != models.JobStatusTimedOut {
		t.Errorf("final status = %q, want timed_out", final.Status)
	}
}

// brokenTerminalStore fails every finishing status update with a
// non-conflict error, as a store outage after the work ran would.
type brokenTerminalStore struct {
	*fakeJobStore
	updateErr error
}

func (f *brokenTerminalStore) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus, finish bool) (*models.Job, error) {
	if finish {
		return nil, f.updateErr
	}
	return f.fakeJobStore.UpdateJobStatus(ctx, jobID, status, finish)
}

func TestRunWithLifecycle_TerminalUpdateFailure(t *testing.T) {
	storeErr := errors.New("job store unreachable")
	store := &brokenTerminalStore{fakeJobStore: newFakeJobStore(), updateErr: storeErr}
	jobs := NewJobService(store, nil)
	job := createTestJob(t, jobs)

	// The work succeeds but the completion cannot be recorded; the
	// caller must not be told the lifecycle ran cleanly.
	err := jobs.RunWithLifecycle(context.Background(), job.JobID, 0, func(context.Context) error {
		return nil
	})
	if !errors.Is(err, storeErr) {
		t.Fatalf("RunWithLifecycle() error = %v, want the store error", err)
	}

	current, _ := jobs.Get(context.Background(), job.JobID)
	if current.Status != models.JobStatusInProgress {
		t.Errorf("status = %q, want in_progress (terminal update failed)", current.Status)
	}
}

func TestRunWithLifecycle_TerminalUpdateFailureKeepsRunError(t *testing.T) {
	storeErr := errors.New("job store unreachable")
	runErr := errors.New("disk full")
	store := &brokenTerminalStore{fakeJobStore: newFakeJobStore(), updateErr: storeErr}
	jobs := NewJobService(store, nil)
	job := createTestJob(t, jobs)

	err := jobs.RunWithLifecycle(context.Background(), job.JobID, 0, func(context.Context) error {
		return runErr
	})
	if !errors.Is(err, runErr) {
		t.Errorf("returned error = %v, does not carry the run error", err)
	}
	if !errors.Is(err, storeErr) {
		t.Errorf("returned error = %v, does not carry the store error", err)
	}
}

func TestRunWithLifecycle_ConcurrentCancelKeepsCancelled(t *testing.T) {
	store := newFakeJobStore()
	jobs := NewJobService(store, nil)
	job := createTestJob(t, jobs)

	// A cancel request lands while the pipeline runs; the pipeline then
	// fails, but the cancelled status must not be overwritten.
	err := jobs.RunWithLifecycle(context.Background(), job.JobID, 0, func(ctx context.Context) error {
		if _, err := jobs.UpdateStatus(ctx, job.JobID, models.JobStatusCancelled, true); err != nil {
			return err
		}
		return errors.New("write failed mid-batch")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	final, _ := jobs.Get(context.Background(), job.JobID)
	if final.Status != models.JobStatusCancelled {
		t.Errorf("final status = %q, want cancelled (terminal absorbs)", final.Status)
	}
}

func TestIsCancelled(t *testing.T) {
	store := newFakeJobStore()
	jobs := NewJobService(store, nil)
	job := createTestJob(t, jobs)
	ctx := context.Background()

	if jobs.IsCancelled(ctx, job.JobID) {
		t.Error("queued job reported cancelled")
	}
	if jobs.IsCancelled(ctx, uuid.New()) {
		t.Error("unknown job reported cancelled")
	}

	if _, err := jobs.UpdateStatus(ctx, job.JobID, models.JobStatusCancelled, true); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if !jobs.IsCancelled(ctx, job.JobID) {
		t.Error("cancelled job not reported cancelled")
	}
}
