package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/raphaelgruber/kbase-go/internal/embedding"
	"github.com/raphaelgruber/kbase-go/internal/kb"
	"github.com/raphaelgruber/kbase-go/internal/metrics"
	"github.com/raphaelgruber/kbase-go/internal/models"
	"github.com/raphaelgruber/kbase-go/internal/parser"
	"github.com/raphaelgruber/kbase-go/internal/vectorstore"
	"github.com/tmc/langchaingo/embeddings"
)

// CollectionOpener opens the vector collection for a knowledge base.
// The registry-backed implementation is DirectoryOpener; tests inject
// failure-wrapping collections through this seam.
type CollectionOpener interface {
	Open(name string, embedder embeddings.Embedder) (vectorstore.Collection, error)
	Release(name string)
}

// DirectoryOpener acquires per-knowledge-base stores through a
// registry, rooted at the knowledge base root directory.
type DirectoryOpener struct {
	Root     string
	Registry *vectorstore.Registry
}

func (o *DirectoryOpener) Open(name string, embedder embeddings.Embedder) (vectorstore.Collection, error) {
	return o.Registry.Acquire(name, filepath.Join(o.Root, name), embedder)
}

func (o *DirectoryOpener) Release(name string) {
	o.Registry.Evict(name)
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	// BatchSize is the number of chunks per vector write.
	BatchSize int
	// MaxAttempts is the retry ceiling per batch write.
	MaxAttempts int
	// BackoffMultiplier scales the linear retry backoff: the wait
	// before attempt n+1 is (n+1) * BackoffMultiplier.
	BackoffMultiplier time.Duration
	// InterFileDelay is a small pause between files so long ingestions
	// yield to concurrent readers.
	InterFileDelay time.Duration
	// JobTimeout bounds one async ingestion; 0 disables it.
	JobTimeout time.Duration
}

func (c *IngestConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffMultiplier <= 0 {
		c.BackoffMultiplier = 2 * time.Second
	}
}

// FileData is one file handed to the pipeline.
type FileData struct {
	Name    string
	Content []byte
}

// IngestOptions configures one ingestion run.
type IngestOptions struct {
	ChunkSize    int
	ChunkOverlap int
	Separator    string
	// SourceName overrides the per-chunk source field; empty falls
	// back to each file's name.
	SourceName string
	Provider   string
	Model      string
	UserID     *uuid.UUID
}

// IngestResult summarizes a completed run.
type IngestResult struct {
	FilesProcessed int
	ChunksCreated  int
}

// IngestService runs the batched ingestion pipeline.
type IngestService struct {
	root      string
	opener    CollectionOpener
	resolver  *embedding.Resolver
	jobs      *JobService
	cfg       IngestConfig
	collector *metrics.Collector
	logger    *slog.Logger
}

// NewIngestService creates the pipeline service.
func NewIngestService(root string, opener CollectionOpener, resolver *embedding.Resolver, jobs *JobService, cfg IngestConfig, logger *slog.Logger) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &IngestService{
		root:      root,
		opener:    opener,
		resolver:  resolver,
		jobs:      jobs,
		cfg:       cfg,
		collector: metrics.NewCollector(),
		logger:    logger,
	}
}

// Metrics returns a snapshot of the pipeline's runtime statistics.
func (s *IngestService) Metrics() metrics.Snapshot {
	return s.collector.Snapshot()
}

// Ingest runs the pipeline synchronously under jobID. The embedder is
// resolved once up front. On any error, chunks already written by this
// job are rolled back before returning; ErrIngestionCancelled is
// surfaced when the job was cancelled mid-flight.
func (s *IngestService) Ingest(ctx context.Context, kbName string, jobID uuid.UUID, files []FileData, opts IngestOptions) (*IngestResult, error) {
	embedder, err := s.resolver.Resolve(opts.Provider, opts.Model, opts.UserID)
	if err != nil {
		return nil, err
	}

	collection, err := s.opener.Open(kbName, embedder)
	if err != nil {
		return nil, err
	}
	defer s.opener.Release(kbName)

	result, err := s.run(ctx, collection, kbName, jobID, files, opts)
	if err != nil {
		s.rollback(context.WithoutCancel(ctx), collection, kbName, jobID)
		return nil, err
	}
	return result, nil
}

func (s *IngestService) run(ctx context.Context, collection vectorstore.Collection, kbName string, jobID uuid.UUID, files []FileData, opts IngestOptions) (*IngestResult, error) {
	jobIDStr := jobID.String()
	result := &IngestResult{}
	var processedNames []string

	for _, file := range files {
		s.logger.Info("ingesting file", "kb", kbName, "file", file.Name, "job_id", jobIDStr)

		// Lossy decode: invalid byte sequences are dropped.
		content := strings.ToValidUTF8(string(file.Content), "")
		if strings.TrimSpace(content) == "" {
			continue
		}

		splitStart := time.Now()
		chunks, err := parser.Split(content, opts.ChunkSize, opts.ChunkOverlap, opts.Separator)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", file.Name, err)
		}
		s.collector.Record(metrics.OpSplit, time.Since(splitStart), int64(len(chunks)))

		source := opts.SourceName
		if source == "" {
			source = file.Name
		}

		for start := 0; start < len(chunks); start += s.cfg.BatchSize {
			if s.jobs.IsCancelled(ctx, jobID) {
				return nil, ErrIngestionCancelled
			}

			end := min(start+s.cfg.BatchSize, len(chunks))
			docs := make([]vectorstore.Document, 0, end-start)
			for j, chunk := range chunks[start:end] {
				docs = append(docs, vectorstore.Document{
					Text: chunk,
					Metadata: map[string]string{
						"source":       source,
						"file_name":    file.Name,
						"chunk_index":  strconv.Itoa(start + j),
						"total_chunks": strconv.Itoa(len(chunks)),
						"ingested_at":  time.Now().UTC().Format(time.RFC3339),
						"job_id":       jobIDStr,
					},
				})
			}

			if err := s.writeBatch(ctx, collection, jobID, docs); err != nil {
				return nil, err
			}
		}

		if err := sleepCtx(ctx, s.cfg.InterFileDelay); err != nil {
			return nil, err
		}

		result.ChunksCreated += len(chunks)
		result.FilesProcessed++
		processedNames = append(processedNames, file.Name)
	}

	if err := s.finalizeMetadata(ctx, collection, kbName, processedNames, opts); err != nil {
		return nil, err
	}

	s.logger.Info("ingestion complete", "kb", kbName, "job_id", jobIDStr,
		"files", result.FilesProcessed, "chunks", result.ChunksCreated)
	if snap := s.collector.Snapshot().BatchWrite; snap != nil {
		s.logger.Debug("batch write stats", "kb", kbName, "batches", snap.Count,
			"avg_ms", snap.AvgTimeMs, "max_ms", snap.MaxTimeMs)
	}
	return result, nil
}

// writeBatch writes one batch with linear backoff. Cancellation is
// rechecked at the start of every attempt, so a job cancelled while a
// batch waits out its backoff does not get written again.
func (s *IngestService) writeBatch(ctx context.Context, collection vectorstore.Collection, jobID uuid.UUID, docs []vectorstore.Document) error {
	start := time.Now()
	defer func() {
		s.collector.Record(metrics.OpBatchWrite, time.Since(start), int64(len(docs)))
	}()
	return retry.Do(
		func() error {
			if s.jobs.IsCancelled(ctx, jobID) {
				return retry.Unrecoverable(ErrIngestionCancelled)
			}
			return collection.Add(ctx, docs)
		},
		retry.Attempts(uint(s.cfg.MaxAttempts)),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(n+1) * s.cfg.BackoffMultiplier
		}),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("batch write failed, retrying", "attempt", n+1, "job_id", jobID, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}

// finalizeMetadata recomputes counts from the committed collection and
// records the split settings used by this run.
func (s *IngestService) finalizeMetadata(ctx context.Context, collection vectorstore.Collection, kbName string, processedNames []string, opts IngestOptions) error {
	dir := filepath.Join(s.root, kbName)
	meta := kb.ReadMetadata(dir, true, s.logger)

	// The chunks are already committed; a failed recompute must not
	// fail the run. Counts refresh on the next successful one.
	if err := kb.UpdateTextMetrics(ctx, collection, &meta); err != nil {
		s.logger.Warn("text metrics update failed", "kb", kbName, "error", err)
	}
	meta.Size = kb.DirSize(dir)
	meta.ChunkSize = &opts.ChunkSize
	meta.ChunkOverlap = &opts.ChunkOverlap
	if opts.Separator != "" {
		sep := opts.Separator
		meta.Separator = &sep
	} else {
		meta.Separator = nil
	}
	meta.SourceTypes = mergeSourceTypes(meta.SourceTypes, processedNames)

	return kb.WriteMetadata(dir, meta)
}

// rollback removes everything this job wrote. Best effort: a rollback
// failure is logged, not returned, so it never masks the original
// pipeline error.
func (s *IngestService) rollback(ctx context.Context, collection vectorstore.Collection, kbName string, jobID uuid.UUID) {
	start := time.Now()
	deleted, err := collection.DeleteWhere(ctx, map[string]string{"job_id": jobID.String()})
	if err != nil {
		s.logger.Error("rollback failed", "kb", kbName, "job_id", jobID, "error", err)
		return
	}
	s.collector.Record(metrics.OpRollback, time.Since(start), int64(deleted))
	s.logger.Info("rolled back partial ingestion", "kb", kbName, "job_id", jobID, "chunks", deleted)
}

// IngestAsync creates an ingestion job and runs the pipeline in the
// background under the job lifecycle. The returned job is in queued
// state; callers poll it for the outcome.
func (s *IngestService) IngestAsync(ctx context.Context, kbName string, files []FileData, opts IngestOptions) (*models.Job, error) {
	dir := filepath.Join(s.root, kbName)
	if !dirExists(dir) {
		return nil, fmt.Errorf("%w: %s", ErrKnowledgeBaseNotFound, kbName)
	}

	meta := kb.ReadMetadata(dir, true, s.logger)
	assetID, err := uuid.Parse(meta.ID)
	if err != nil {
		return nil, fmt.Errorf("knowledge base %s has invalid asset id %q: %w", kbName, meta.ID, err)
	}

	assetType := "knowledge_base"
	job, err := s.jobs.Create(ctx, models.Job{
		Type:      models.JobTypeIngestion,
		AssetID:   &assetID,
		AssetType: &assetType,
		UserID:    opts.UserID,
	})
	if err != nil {
		return nil, err
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("ingestion goroutine panicked", "job_id", job.JobID, "panic", r)
				if _, err := s.jobs.UpdateStatus(context.Background(), job.JobID, models.JobStatusFailed, true); err != nil {
					s.logger.Error("failed to mark panicked job", "job_id", job.JobID, "error", err)
				}
			}
		}()

		// The request context dies with the caller; the background run
		// gets its own.
		err := s.jobs.RunWithLifecycle(context.Background(), job.JobID, s.cfg.JobTimeout, func(runCtx context.Context) error {
			_, runErr := s.Ingest(runCtx, kbName, job.JobID, files, opts)
			return runErr
		})
		if err != nil {
			s.logger.Warn("background ingestion finished with error", "job_id", job.JobID, "error", err)
		}
	}()

	return job, nil
}

// mergeSourceTypes unions existing source types with the lowercased
// extensions of the processed file names.
func mergeSourceTypes(existing []string, fileNames []string) []string {
	seen := make(map[string]struct{}, len(existing))
	merged := make([]string, 0, len(existing))
	for _, t := range existing {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			merged = append(merged, t)
		}
	}
	for _, name := range fileNames {
		idx := strings.LastIndex(name, ".")
		if idx < 0 || idx == len(name)-1 {
			continue
		}
		ext := strings.ToLower(name[idx+1:])
		if _, ok := seen[ext]; !ok {
			seen[ext] = struct{}{}
			merged = append(merged, ext)
		}
	}
	return merged
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
