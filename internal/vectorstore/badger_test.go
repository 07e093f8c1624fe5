package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type stubEmbedder struct {
	calls int
	fail  bool
}

func (s *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.fail {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1, 0}
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 0}, nil
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), &stubEmbedder{}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func addDocs(t *testing.T, store *Store, jobID string, n int) {
	t.Helper()
	docs := make([]Document, n)
	for i := range docs {
		docs[i] = Document{
			Text: fmt.Sprintf("chunk %d of job %s", i, jobID),
			Metadata: map[string]string{
				"job_id":      jobID,
				"chunk_index": fmt.Sprintf("%d", i),
			},
		}
	}
	if err := store.Add(context.Background(), docs); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
}

func TestStore_AddAndCount(t *testing.T) {
	store := openTestStore(t)
	addDocs(t, store, "job-a", 5)

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 5 {
		t.Errorf("Count() = %d, want 5", count)
	}
}

func TestStore_AddEmbeddingFailure(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, &stubEmbedder{fail: true}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	err = store.Add(context.Background(), []Document{{Text: "hello"}})
	if err == nil {
		t.Fatal("Add() succeeded with failing embedder")
	}

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() = %d after failed Add, want 0", count)
	}
}

func TestStore_GetInsertionOrder(t *testing.T) {
	store := openTestStore(t)
	addDocs(t, store, "job-a", 10)

	result, err := store.Get(context.Background(), GetOptions{})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if result.Total != 10 {
		t.Fatalf("Total = %d, want 10", result.Total)
	}
	for i, doc := range result.Documents {
		want := fmt.Sprintf("%d", i)
		if doc.Metadata["chunk_index"] != want {
			t.Errorf("doc[%d] chunk_index = %q, want %q", i, doc.Metadata["chunk_index"], want)
		}
	}
}

func TestStore_GetPagination(t *testing.T) {
	store := openTestStore(t)
	addDocs(t, store, "job-a", 25)

	page, err := store.Get(context.Background(), GetOptions{Limit: 10, Offset: 20})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if page.Total != 25 {
		t.Errorf("Total = %d, want 25", page.Total)
	}
	if len(page.Documents) != 5 {
		t.Errorf("page size = %d, want 5", len(page.Documents))
	}
	if len(page.Documents) > 0 && page.Documents[0].Metadata["chunk_index"] != "20" {
		t.Errorf("first doc chunk_index = %q, want 20", page.Documents[0].Metadata["chunk_index"])
	}
}

func TestStore_GetContainsText(t *testing.T) {
	store := openTestStore(t)
	docs := []Document{
		{Text: "The Quick Brown Fox", Metadata: map[string]string{"job_id": "a"}},
		{Text: "lazy dog", Metadata: map[string]string{"job_id": "a"}},
		{Text: "quick silver", Metadata: map[string]string{"job_id": "a"}},
	}
	if err := store.Add(context.Background(), docs); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	result, err := store.Get(context.Background(), GetOptions{ContainsText: "quick"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if result.Total != 2 {
		t.Errorf("Total = %d, want 2 (case-insensitive match)", result.Total)
	}
}

func TestStore_DeleteWhere(t *testing.T) {
	store := openTestStore(t)
	addDocs(t, store, "job-a", 3)
	addDocs(t, store, "job-b", 4)

	deleted, err := store.DeleteWhere(context.Background(), map[string]string{"job_id": "job-b"})
	if err != nil {
		t.Fatalf("DeleteWhere() error = %v", err)
	}
	if deleted != 4 {
		t.Errorf("deleted = %d, want 4", deleted)
	}

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d after delete, want 3", count)
	}

	remaining, err := store.Get(context.Background(), GetOptions{Where: map[string]string{"job_id": "job-a"}})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if remaining.Total != 3 {
		t.Errorf("remaining job-a docs = %d, want 3", remaining.Total)
	}
}

func TestStore_DeleteWhereNoMatch(t *testing.T) {
	store := openTestStore(t)
	addDocs(t, store, "job-a", 2)

	deleted, err := store.DeleteWhere(context.Background(), map[string]string{"job_id": "missing"})
	if err != nil {
		t.Fatalf("DeleteWhere() error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
}

func TestOpen_DirectoryLockContention(t *testing.T) {
	dir := t.TempDir()
	first, err := Open(dir, &stubEmbedder{}, nil)
	if err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	defer first.Close()

	_, err = Open(dir, &stubEmbedder{}, nil)
	if !errors.Is(err, ErrStoreLocked) {
		t.Errorf("second Open() error = %v, want ErrStoreLocked", err)
	}
}
