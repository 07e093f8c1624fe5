// Package vectorstore provides the embedded vector engine backing each
// knowledge base directory.
package vectorstore

import (
	"context"
	"errors"
)

// ErrStoreLocked is returned when a knowledge base directory is already
// held open by another handle. The engine allows a single writer per
// directory; a second open degrades instead of corrupting data.
var ErrStoreLocked = errors.New("knowledge base store is locked by another handle")

// Document is one chunk stored in a collection.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// GetOptions filters and pages a Get call.
type GetOptions struct {
	// Where requires exact metadata matches (all pairs must match).
	Where map[string]string
	// ContainsText keeps only documents whose text contains the value,
	// case-insensitive.
	ContainsText string
	// Limit caps the number of returned documents; 0 means no cap.
	Limit int
	// Offset skips that many matching documents first.
	Offset int
}

// GetResult carries one page of documents plus the total match count
// before paging.
type GetResult struct {
	Documents []Document
	Total     int
}

// Collection is the write/read surface of one knowledge base's vectors.
type Collection interface {
	// Add embeds and stores documents. All-or-nothing per call.
	Add(ctx context.Context, docs []Document) error

	// Get returns documents matching the options, in insertion order.
	Get(ctx context.Context, opts GetOptions) (GetResult, error)

	// DeleteWhere removes every document whose metadata matches all
	// pairs in filter, returning the number removed.
	DeleteWhere(ctx context.Context, filter map[string]string) (int, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}
