package models

// ChunkInfo is one stored chunk as returned to callers of the chunk
// query layer.
type ChunkInfo struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	CharCount int               `json:"char_count"`
	Metadata  map[string]string `json:"metadata"`
}

// PaginatedChunks is a single page of chunks plus pagination totals.
// TotalPages is ceil(Total/Limit), or 0 when Total is 0.
type PaginatedChunks struct {
	Chunks     []ChunkInfo `json:"chunks"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}
