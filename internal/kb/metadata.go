// Package kb manages on-disk knowledge base directories and their
// metadata documents.
package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/raphaelgruber/kbase-go/internal/models"
	"github.com/raphaelgruber/kbase-go/internal/vectorstore"
)

// MetadataFileName is the per-knowledge-base metadata document.
const MetadataFileName = "embedding_metadata.json"

// metadataKeys are the keys a complete document must carry. A document
// missing any of them triggers a backfill even on fast reads.
var metadataKeys = []string{
	"chunks", "words", "characters", "avg_chunk_size",
	"embedding_provider", "embedding_model", "id", "size",
	"source_types", "chunk_size", "chunk_overlap", "separator",
}

// ReadMetadata loads the metadata document for the knowledge base at
// dir. A fast read trusts a complete document as-is. A full read also
// re-runs provider/model detection for fields still carrying the
// Unknown sentinel and refreshes the directory size, persisting
// whatever it filled in. Unreadable or corrupt documents fall back to
// defaults rather than failing the caller.
func ReadMetadata(dir string, fast bool, logger *slog.Logger) models.Metadata {
	if logger == nil {
		logger = slog.Default()
	}
	metadataPath := filepath.Join(dir, MetadataFileName)

	var meta models.Metadata
	var raw map[string]json.RawMessage
	exists := false

	if data, err := os.ReadFile(metadataPath); err == nil {
		exists = true
		if err := json.Unmarshal(data, &raw); err != nil {
			logger.Warn("failed to parse metadata file, resetting to defaults", "dir", dir, "error", err)
			raw = nil
		} else if err := json.Unmarshal(data, &meta); err != nil {
			logger.Warn("failed to decode metadata file, resetting to defaults", "dir", dir, "error", err)
			raw = nil
			meta = models.Metadata{}
		}
	}

	missingKeys := false
	for _, key := range metadataKeys {
		if _, ok := raw[key]; !ok {
			missingKeys = true
			break
		}
	}
	hasUnknowns := meta.EmbeddingProvider == models.UnknownValue || meta.EmbeddingModel == models.UnknownValue

	if fast && !missingKeys {
		return meta
	}

	if !exists || missingKeys || (!fast && hasUnknowns) {
		applyDefaults(&meta, raw)
		meta.Size = DirSize(dir)
		if meta.EmbeddingProvider == models.UnknownValue {
			meta.EmbeddingProvider = DetectProvider(dir)
		}
		if meta.EmbeddingModel == models.UnknownValue {
			meta.EmbeddingModel = DetectModel(dir)
		}

		if err := WriteMetadata(dir, meta); err != nil {
			logger.Debug("metadata backfill failed", "dir", dir, "error", err)
		}
	}

	return meta
}

// applyDefaults fills fields whose keys were absent from the stored
// document. Present keys keep their stored value even when zero.
func applyDefaults(meta *models.Metadata, raw map[string]json.RawMessage) {
	if _, ok := raw["id"]; !ok || meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if _, ok := raw["embedding_provider"]; !ok {
		meta.EmbeddingProvider = models.UnknownValue
	}
	if _, ok := raw["embedding_model"]; !ok {
		meta.EmbeddingModel = models.UnknownValue
	}
	if _, ok := raw["source_types"]; !ok || meta.SourceTypes == nil {
		meta.SourceTypes = []string{}
	}
}

// WriteMetadata persists the metadata document atomically: write to a
// temp file in the same directory, then rename over the target.
func WriteMetadata(dir string, meta models.Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tmp, err := os.CreateTemp(dir, MetadataFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp metadata: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp metadata: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(dir, MetadataFileName)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename metadata: %w", err)
	}
	return nil
}

// SchemaFileName mirrors the column configuration of tabular sources.
const SchemaFileName = "schema.json"

// WriteSchema persists the column configuration next to the metadata
// document. An empty configuration writes nothing.
func WriteSchema(dir string, columns []models.ColumnConfig) error {
	if len(columns) == 0 {
		return nil
	}
	data, err := json.MarshalIndent(columns, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SchemaFileName), data, 0644); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	return nil
}

// DirSize returns the total size in bytes of all files under dir.
// Unreadable entries are skipped.
func DirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// UpdateTextMetrics recomputes chunk, word, and character counts from
// the collection's committed content. AvgChunkSize is rounded to one
// decimal place.
func UpdateTextMetrics(ctx context.Context, collection vectorstore.Collection, meta *models.Metadata) error {
	count, err := collection.Count(ctx)
	if err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}
	meta.Chunks = count
	if count == 0 {
		meta.Words = 0
		meta.Characters = 0
		meta.AvgChunkSize = 0
		return nil
	}

	result, err := collection.Get(ctx, vectorstore.GetOptions{})
	if err != nil {
		return fmt.Errorf("read chunks: %w", err)
	}

	words, characters := 0, 0
	for _, doc := range result.Documents {
		characters += len(doc.Text)
		words += len(strings.Fields(doc.Text))
	}
	meta.Words = words
	meta.Characters = characters
	meta.AvgChunkSize = math.Round(float64(characters)/float64(count)*10) / 10
	return nil
}
