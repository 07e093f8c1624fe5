package vectorstore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
)

// Registry tracks the live store handle per knowledge base. Because the
// engine holds a directory lock, a stale handle left open by an earlier
// operation would fail every later open; Acquire therefore evicts any
// cached handle and opens a fresh one with a new session id.
type Registry struct {
	mu     sync.Mutex
	open   map[string]*Store
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		open:   make(map[string]*Store),
		logger: logger,
	}
}

// Acquire returns a fresh handle for the knowledge base at dir, closing
// any handle the registry already holds for name.
func (r *Registry) Acquire(name, dir string, embedder embeddings.Embedder) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictLocked(name)

	store, err := Open(dir, embedder, r.logger)
	if err != nil {
		return nil, fmt.Errorf("acquire %q: %w", name, err)
	}
	r.open[name] = store
	return store, nil
}

// Evict closes and forgets the handle for name, if any. Safe to call
// for names with no open handle.
func (r *Registry) Evict(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked(name)
}

func (r *Registry) evictLocked(name string) {
	store, ok := r.open[name]
	if !ok {
		return
	}
	if err := store.Close(); err != nil {
		r.logger.Warn("closing evicted store", "kb", name, "session", store.session, "error", err)
	}
	delete(r.open, name)
}

// Close evicts every open handle.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.open {
		r.evictLocked(name)
	}
}

// HasVectorData reports whether dir contains engine files. A directory
// holding only the metadata document means the engine was never opened
// there; opening it just to read would create files as a side effect.
func HasVectorData(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == "MANIFEST" || name == "KEYREGISTRY" {
			return true
		}
		switch filepath.Ext(name) {
		case ".sst", ".vlog", ".mem":
			return true
		}
	}
	return false
}
