package models

// UnknownValue is the sentinel stored for embedding provider/model fields
// when detection found no signal. FULL metadata reads retry detection for
// fields still carrying it.
const UnknownValue = "Unknown"

// ColumnConfig describes one column of a structured (tabular) source.
type ColumnConfig struct {
	Name       string `json:"name"`
	Vectorize  bool   `json:"vectorize"`
	Identifier bool   `json:"identifier"`
	DataType   string `json:"data_type,omitempty"`
}

// Metadata is the per-knowledge-base JSON document stored alongside the
// vector data (embedding_metadata.json). Counts are eventually consistent
// with the collection's committed content: they are recomputed on FULL
// reads and after every successful ingestion, and may be stale in between.
type Metadata struct {
	ID                string         `json:"id"`
	EmbeddingProvider string         `json:"embedding_provider"`
	EmbeddingModel    string         `json:"embedding_model"`
	Chunks            int            `json:"chunks"`
	Words             int            `json:"words"`
	Characters        int            `json:"characters"`
	AvgChunkSize      float64        `json:"avg_chunk_size"`
	Size              int64          `json:"size"`
	SourceTypes       []string       `json:"source_types"`
	ChunkSize         *int           `json:"chunk_size"`
	ChunkOverlap      *int           `json:"chunk_overlap"`
	Separator         *string        `json:"separator"`
	ColumnConfig      []ColumnConfig `json:"column_config,omitempty"`
	CreatedAt         string         `json:"created_at,omitempty"`
}

// KnowledgeBaseInfo is the caller-facing summary of one knowledge base,
// combining the metadata document with the latest job status.
type KnowledgeBaseInfo struct {
	ID                string         `json:"id"`
	DirName           string         `json:"dir_name"`
	Name              string         `json:"name"`
	EmbeddingProvider string         `json:"embedding_provider"`
	EmbeddingModel    string         `json:"embedding_model"`
	Size              int64          `json:"size"`
	Words             int            `json:"words"`
	Characters        int            `json:"characters"`
	Chunks            int            `json:"chunks"`
	AvgChunkSize      float64        `json:"avg_chunk_size"`
	ChunkSize         *int           `json:"chunk_size,omitempty"`
	ChunkOverlap      *int           `json:"chunk_overlap,omitempty"`
	Separator         *string        `json:"separator,omitempty"`
	Status            string         `json:"status"`
	LastJobID         string         `json:"last_job_id,omitempty"`
	SourceTypes       []string       `json:"source_types"`
	ColumnConfig      []ColumnConfig `json:"column_config,omitempty"`
}
