package service

import "errors"

var (
	// ErrIngestionCancelled signals a user-initiated cancellation
	// observed mid-pipeline. It maps to the cancelled job status,
	// unlike a plain context cancellation which counts as a failure.
	ErrIngestionCancelled = errors.New("ingestion cancelled")

	// ErrKnowledgeBaseNotFound is returned when the named knowledge
	// base directory does not exist.
	ErrKnowledgeBaseNotFound = errors.New("knowledge base not found")

	// ErrKnowledgeBaseExists is returned when creating a knowledge
	// base whose directory already exists.
	ErrKnowledgeBaseExists = errors.New("knowledge base already exists")

	// ErrInvalidName is returned for knowledge base names below the
	// minimum length after sanitization.
	ErrInvalidName = errors.New("knowledge base name must be at least 3 characters")

	// ErrNoIngestionJob is returned when cancelling a knowledge base
	// that has no recorded ingestion job.
	ErrNoIngestionJob = errors.New("no ingestion job found")

	// ErrJobNotCancellable is returned when the latest job is already
	// in a terminal state.
	ErrJobNotCancellable = errors.New("job is not cancellable")
)
