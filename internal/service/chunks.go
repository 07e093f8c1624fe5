package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/kbase-go/internal/models"
	"github.com/raphaelgruber/kbase-go/internal/vectorstore"
)

// ListChunks returns one page of stored chunks, optionally filtered by
// a case-insensitive substring search. A knowledge base whose directory
// holds no engine data returns an empty page without opening the store,
// since opening would create files as a side effect.
func (s *KnowledgeService) ListChunks(ctx context.Context, name string, page, limit int, search string) (*models.PaginatedChunks, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	dir := filepath.Join(s.root, name)
	if !dirExists(dir) {
		return nil, fmt.Errorf("%w: %s", ErrKnowledgeBaseNotFound, name)
	}

	if !vectorstore.HasVectorData(dir) {
		return &models.PaginatedChunks{
			Chunks: []models.ChunkInfo{},
			Page:   page,
			Limit:  limit,
		}, nil
	}

	collection, err := s.opener.Open(name, nil)
	if err != nil {
		return nil, err
	}
	defer s.opener.Release(name)

	result, err := collection.Get(ctx, vectorstore.GetOptions{
		ContainsText: strings.TrimSpace(search),
		Limit:        limit,
		Offset:       (page - 1) * limit,
	})
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}

	chunks := make([]models.ChunkInfo, 0, len(result.Documents))
	for _, doc := range result.Documents {
		chunks = append(chunks, models.ChunkInfo{
			ID:        doc.ID,
			Content:   doc.Text,
			CharCount: len(doc.Text),
			Metadata:  doc.Metadata,
		})
	}

	totalPages := 0
	if result.Total > 0 {
		totalPages = (result.Total + limit - 1) / limit
	}

	return &models.PaginatedChunks{
		Chunks:     chunks,
		Total:      result.Total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}
