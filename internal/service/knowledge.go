package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/kbase-go/internal/kb"
	"github.com/raphaelgruber/kbase-go/internal/models"
	"github.com/raphaelgruber/kbase-go/internal/parser"
)

const minKBNameLength = 3

// chunkPreviewMultiplier bounds how much text PreviewChunks splits:
// enough to fill the requested chunks with headroom for overlap,
// without splitting a whole large file.
const chunkPreviewMultiplier = 3

// KnowledgeService manages knowledge base directories: creation,
// listing, deletion, cancellation, and chunk previews.
type KnowledgeService struct {
	root   string
	jobs   *JobService
	opener CollectionOpener
	logger *slog.Logger
}

// NewKnowledgeService creates the knowledge base service.
func NewKnowledgeService(root string, jobs *JobService, opener CollectionOpener, logger *slog.Logger) *KnowledgeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &KnowledgeService{root: root, jobs: jobs, opener: opener, logger: logger}
}

// SanitizeName normalizes a user-supplied knowledge base name into a
// directory name.
func SanitizeName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

// Create sets up a new knowledge base directory with its metadata
// document and an initialized vector store, so later reads do not
// trip over a never-opened engine directory.
func (s *KnowledgeService) Create(ctx context.Context, name, provider, model string, columnConfig []models.ColumnConfig) (*models.KnowledgeBaseInfo, error) {
	kbName := SanitizeName(name)
	if len(kbName) < minKBNameLength {
		return nil, ErrInvalidName
	}

	dir := filepath.Join(s.root, kbName)
	if dirExists(dir) {
		return nil, fmt.Errorf("%w: %s", ErrKnowledgeBaseExists, kbName)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create knowledge base dir: %w", err)
	}

	// Initialize the engine immediately and release the handle.
	if _, err := s.opener.Open(kbName, nil); err != nil {
		s.logger.Warn("initial store setup failed", "kb", kbName, "error", err)
	} else {
		s.opener.Release(kbName)
	}

	meta := models.Metadata{
		ID:                uuid.NewString(),
		EmbeddingProvider: provider,
		EmbeddingModel:    model,
		SourceTypes:       []string{},
		ColumnConfig:      columnConfig,
		CreatedAt:         time.Now().UTC().Format(time.RFC3339),
	}
	if err := kb.WriteMetadata(dir, meta); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	if err := kb.WriteSchema(dir, columnConfig); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	s.logger.Info("knowledge base created", "kb", kbName, "provider", provider, "model", model)
	return s.infoFromMetadata(kbName, meta, "empty"), nil
}

// Get returns details for one knowledge base, running a full metadata
// read so legacy directories get migrated on access.
func (s *KnowledgeService) Get(ctx context.Context, name string) (*models.KnowledgeBaseInfo, error) {
	dir := filepath.Join(s.root, name)
	if !dirExists(dir) {
		return nil, fmt.Errorf("%w: %s", ErrKnowledgeBaseNotFound, name)
	}

	meta := kb.ReadMetadata(dir, false, s.logger)
	meta.Size = kb.DirSize(dir)

	status := "empty"
	if meta.Chunks > 0 {
		status = "ready"
	}
	return s.infoFromMetadata(name, meta, status), nil
}

// jobStatusOverlay maps a job status to the knowledge base status shown
// to callers. Completed jobs keep the content-derived status.
var jobStatusOverlay = map[models.JobStatus]string{
	models.JobStatusQueued:     "ingesting",
	models.JobStatusInProgress: "ingesting",
	models.JobStatusFailed:     "failed",
	models.JobStatusCancelled:  "failed",
	models.JobStatusTimedOut:   "failed",
}

// List returns all knowledge bases sorted by name, each overlaid with
// its latest job status. The job lookup is one query for all assets.
func (s *KnowledgeService) List(ctx context.Context) ([]models.KnowledgeBaseInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.KnowledgeBaseInfo{}, nil
		}
		return nil, fmt.Errorf("read knowledge base root: %w", err)
	}

	infos := make([]models.KnowledgeBaseInfo, 0, len(entries))
	assetIDs := make([]uuid.UUID, 0, len(entries))
	assetToIndex := make(map[uuid.UUID]int)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		dir := filepath.Join(s.root, name)

		meta := kb.ReadMetadata(dir, false, s.logger)
		meta.Size = kb.DirSize(dir)

		status := "empty"
		if meta.Chunks > 0 {
			status = "ready"
		}
		infos = append(infos, *s.infoFromMetadata(name, meta, status))

		if assetID, err := uuid.Parse(meta.ID); err == nil {
			assetToIndex[assetID] = len(infos) - 1
			assetIDs = append(assetIDs, assetID)
		}
	}

	latest, err := s.jobs.LatestForAssets(ctx, assetIDs)
	if err != nil {
		// Listing still works without job status; log and keep the
		// content-derived statuses.
		s.logger.Warn("latest job lookup failed", "error", err)
	} else {
		for assetID, job := range latest {
			idx, ok := assetToIndex[assetID]
			if !ok {
				continue
			}
			if overlay, ok := jobStatusOverlay[job.Status]; ok {
				infos[idx].Status = overlay
			}
			infos[idx].LastJobID = job.JobID.String()
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].DirName < infos[j].DirName })
	return infos, nil
}

// Delete tears down the store handle and removes the directory.
func (s *KnowledgeService) Delete(ctx context.Context, name string) error {
	dir := filepath.Join(s.root, name)
	if !dirExists(dir) {
		return fmt.Errorf("%w: %s", ErrKnowledgeBaseNotFound, name)
	}

	s.opener.Release(name)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove knowledge base dir: %w", err)
	}
	s.logger.Info("knowledge base deleted", "kb", name)
	return nil
}

// BulkDeleteResult reports the outcome of a bulk delete.
type BulkDeleteResult struct {
	DeletedCount int
	NotFound     []string
}

// BulkDelete removes multiple knowledge bases, continuing past
// individual failures. It errors only when nothing was deleted and at
// least one name was unknown.
func (s *KnowledgeService) BulkDelete(ctx context.Context, names []string) (*BulkDeleteResult, error) {
	result := &BulkDeleteResult{}

	for _, name := range names {
		dir := filepath.Join(s.root, name)
		if !dirExists(dir) {
			result.NotFound = append(result.NotFound, name)
			continue
		}
		s.opener.Release(name)
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Error("bulk delete failed for knowledge base", "kb", name, "error", err)
			continue
		}
		result.DeletedCount++
	}

	if len(result.NotFound) > 0 && result.DeletedCount == 0 {
		return nil, fmt.Errorf("%w: %s", ErrKnowledgeBaseNotFound, strings.Join(result.NotFound, ", "))
	}
	return result, nil
}

// CancelIngestion cancels the latest ingestion job for a knowledge
// base: the job row moves to cancelled first so the running pipeline
// observes it, then chunks already written by that job are removed.
func (s *KnowledgeService) CancelIngestion(ctx context.Context, name string) (*models.Job, error) {
	dir := filepath.Join(s.root, name)
	if !dirExists(dir) {
		return nil, fmt.Errorf("%w: %s", ErrKnowledgeBaseNotFound, name)
	}

	meta := kb.ReadMetadata(dir, true, s.logger)
	assetID, err := uuid.Parse(meta.ID)
	if err != nil {
		return nil, fmt.Errorf("knowledge base %s has invalid asset id %q: %w", name, meta.ID, err)
	}

	latest, err := s.jobs.LatestForAssets(ctx, []uuid.UUID{assetID})
	if err != nil {
		return nil, err
	}
	job, ok := latest[assetID]
	if !ok {
		return nil, fmt.Errorf("%w for knowledge base %s", ErrNoIngestionJob, name)
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: status is %s", ErrJobNotCancellable, job.Status)
	}

	updated, err := s.jobs.UpdateStatus(ctx, job.JobID, models.JobStatusCancelled, true)
	if err != nil {
		return nil, err
	}

	// Remove whatever the cancelled job already committed. The pipeline
	// also rolls back when it notices the cancellation; DeleteWhere is
	// idempotent so the overlap is harmless.
	if collection, err := s.opener.Open(name, nil); err != nil {
		s.logger.Error("cleanup open failed after cancel", "kb", name, "job_id", job.JobID, "error", err)
	} else {
		if _, err := collection.DeleteWhere(ctx, map[string]string{"job_id": job.JobID.String()}); err != nil {
			s.logger.Error("cleanup failed after cancel", "kb", name, "job_id", job.JobID, "error", err)
		}
		s.opener.Release(name)
	}

	s.logger.Info("ingestion cancelled", "kb", name, "job_id", job.JobID)
	return updated, nil
}

// ChunkPreview is one previewed chunk with its position in the source
// text.
type ChunkPreview struct {
	Content   string `json:"content"`
	Index     int    `json:"index"`
	CharCount int    `json:"char_count"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
}

// FilePreview is the chunking preview for one file.
type FilePreview struct {
	FileName      string         `json:"file_name"`
	TotalChunks   int            `json:"total_chunks"`
	PreviewChunks []ChunkPreview `json:"preview_chunks"`
}

// PreviewChunks shows how files would be chunked without storing
// anything, using the same splitter as ingestion. Only enough text to
// fill maxChunks is split; the total is estimated from the full length.
func (s *KnowledgeService) PreviewChunks(files []FileData, chunkSize, chunkOverlap int, separator string, maxChunks int) []FilePreview {
	previews := make([]FilePreview, 0, len(files))

	for _, file := range files {
		preview := FilePreview{FileName: file.Name, PreviewChunks: []ChunkPreview{}}

		text := strings.ToValidUTF8(string(file.Content), "")
		if strings.TrimSpace(text) == "" {
			previews = append(previews, preview)
			continue
		}

		limit := maxChunks * chunkSize * chunkPreviewMultiplier
		previewText := text
		if limit > 0 && len(previewText) > limit {
			previewText = previewText[:limit]
		}

		chunks, err := parser.Split(previewText, chunkSize, chunkOverlap, separator)
		if err != nil {
			s.logger.Warn("preview split failed", "file", file.Name, "error", err)
			previews = append(previews, preview)
			continue
		}

		effectiveStep := max(chunkSize-chunkOverlap, 1)
		preview.TotalChunks = max(len(chunks), (len(text)-chunkOverlap)/effectiveStep)

		position := 0
		for i, chunk := range chunks {
			if i >= maxChunks {
				break
			}
			start := strings.Index(text[position:], chunk)
			if start == -1 {
				start = position
			} else {
				start += position
			}
			preview.PreviewChunks = append(preview.PreviewChunks, ChunkPreview{
				Content:   chunk,
				Index:     i,
				CharCount: len(chunk),
				Start:     start,
				End:       start + len(chunk),
			})
			position = start + 1
		}

		previews = append(previews, preview)
	}

	return previews
}

func (s *KnowledgeService) infoFromMetadata(dirName string, meta models.Metadata, status string) *models.KnowledgeBaseInfo {
	return &models.KnowledgeBaseInfo{
		ID:                meta.ID,
		DirName:           dirName,
		Name:              strings.ReplaceAll(dirName, "_", " "),
		EmbeddingProvider: meta.EmbeddingProvider,
		EmbeddingModel:    meta.EmbeddingModel,
		Size:              meta.Size,
		Words:             meta.Words,
		Characters:        meta.Characters,
		Chunks:            meta.Chunks,
		AvgChunkSize:      meta.AvgChunkSize,
		ChunkSize:         meta.ChunkSize,
		ChunkOverlap:      meta.ChunkOverlap,
		Separator:         meta.Separator,
		Status:            status,
		SourceTypes:       meta.SourceTypes,
		ColumnConfig:      meta.ColumnConfig,
	}
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
