package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/raphaelgruber/kbase-go/internal/vectorstore"
)

func seedChunks(t *testing.T, root, name string, n int) {
	t.Helper()
	store, err := vectorstore.Open(filepath.Join(root, name), testEmbedder{}, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	docs := make([]vectorstore.Document, n)
	for i := range docs {
		docs[i] = vectorstore.Document{
			Text:     fmt.Sprintf("stored chunk number %d", i),
			Metadata: map[string]string{"chunk_index": fmt.Sprintf("%d", i)},
		}
	}
	if err := store.Add(context.Background(), docs); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestListChunks_NotFound(t *testing.T) {
	_, ks := newKnowledgeEnv(t)

	_, err := ks.ListChunks(context.Background(), "missing", 1, 50, "")
	if !errors.Is(err, ErrKnowledgeBaseNotFound) {
		t.Errorf("ListChunks() error = %v, want ErrKnowledgeBaseNotFound", err)
	}
}

func TestListChunks_NoVectorDataGuard(t *testing.T) {
	env, ks := newKnowledgeEnv(t)

	// A directory with only the metadata document, never opened by the
	// engine.
	makeKB(t, env.root, "legacy")

	page, err := ks.ListChunks(context.Background(), "legacy", 1, 50, "")
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}
	if page.Total != 0 || len(page.Chunks) != 0 || page.TotalPages != 0 {
		t.Errorf("expected empty page, got %+v", page)
	}

	// The guard must not have created engine files as a side effect.
	if vectorstore.HasVectorData(filepath.Join(env.root, "legacy")) {
		t.Error("listing chunks created engine files in an untouched directory")
	}
}

func TestListChunks_Pagination(t *testing.T) {
	env, ks := newKnowledgeEnv(t)
	makeKB(t, env.root, "docs")
	seedChunks(t, env.root, "docs", 25)

	page, err := ks.ListChunks(context.Background(), "docs", 3, 10, "")
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}

	if page.Total != 25 {
		t.Errorf("Total = %d, want 25", page.Total)
	}
	if len(page.Chunks) != 5 {
		t.Errorf("page size = %d, want 5", len(page.Chunks))
	}
	if page.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", page.TotalPages)
	}
	if len(page.Chunks) > 0 && page.Chunks[0].Metadata["chunk_index"] != "20" {
		t.Errorf("first chunk index = %q, want 20", page.Chunks[0].Metadata["chunk_index"])
	}
	for i, chunk := range page.Chunks {
		if chunk.CharCount != len(chunk.Content) {
			t.Errorf("chunk[%d] char_count = %d, want %d", i, chunk.CharCount, len(chunk.Content))
		}
	}
}

func TestListChunks_PageBeyondEnd(t *testing.T) {
	env, ks := newKnowledgeEnv(t)
	makeKB(t, env.root, "docs")
	seedChunks(t, env.root, "docs", 5)

	page, err := ks.ListChunks(context.Background(), "docs", 4, 10, "")
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}
	if len(page.Chunks) != 0 {
		t.Errorf("page size = %d, want 0", len(page.Chunks))
	}
	if page.Total != 5 {
		t.Errorf("Total = %d, want 5", page.Total)
	}
	if page.TotalPages != 1 {
		t.Errorf("TotalPages = %d, want 1", page.TotalPages)
	}
}

func TestListChunks_Search(t *testing.T) {
	env, ks := newKnowledgeEnv(t)
	makeKB(t, env.root, "docs")

	store, err := vectorstore.Open(filepath.Join(env.root, "docs"), testEmbedder{}, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	docs := []vectorstore.Document{
		{Text: "Kubernetes deployment guide"},
		{Text: "database migration notes"},
		{Text: "kubernetes networking"},
	}
	if err := store.Add(context.Background(), docs); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	page, err := ks.ListChunks(context.Background(), "docs", 1, 50, "kubernetes")
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}
	if page.Total != 2 {
		t.Errorf("Total = %d, want 2 (case-insensitive search)", page.Total)
	}
	if page.TotalPages != 1 {
		t.Errorf("TotalPages = %d, want 1", page.TotalPages)
	}
}

func TestListChunks_DefaultsInvalidPaging(t *testing.T) {
	env, ks := newKnowledgeEnv(t)
	makeKB(t, env.root, "docs")
	seedChunks(t, env.root, "docs", 3)

	page, err := ks.ListChunks(context.Background(), "docs", 0, 0, "")
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}
	if page.Page != 1 || page.Limit != 50 {
		t.Errorf("page/limit = %d/%d, want 1/50", page.Page, page.Limit)
	}
	if len(page.Chunks) != 3 {
		t.Errorf("chunks = %d, want 3", len(page.Chunks))
	}
}
