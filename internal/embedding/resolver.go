// Package embedding resolves (provider, model) pairs to langchaingo embedders.
package embedding

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
)

// ErrNoMatchingModel is returned when no registered option matches the
// requested provider and model for the requesting user.
var ErrNoMatchingModel = errors.New("no matching embedding model")

// Builder constructs an embedder. Construction is deferred to resolve
// time so a catalog can list models whose backends are not reachable
// until they are actually used.
type Builder func() (embeddings.Embedder, error)

// Option is one (provider, model) choice in the catalog. A nil UserID
// makes the option global; otherwise it is visible only to that user.
type Option struct {
	Provider string
	Model    string
	UserID   *uuid.UUID
	Build    Builder
}

// Resolver holds the catalog of embedding options and resolves requests
// against it. Safe for concurrent use.
type Resolver struct {
	mu      sync.RWMutex
	options []Option
}

// NewResolver creates a resolver seeded with the given options.
func NewResolver(options ...Option) *Resolver {
	return &Resolver{options: options}
}

// Register adds an option to the catalog.
func (r *Resolver) Register(opt Option) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.options = append(r.options, opt)
}

// Resolve finds the option matching provider and model and builds its
// embedder. User-scoped options win over global ones. Returns
// ErrNoMatchingModel when nothing matches; this is a configuration
// error, not a transient one.
func (r *Resolver) Resolve(provider, model string, userID *uuid.UUID) (embeddings.Embedder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var global *Option
	for i := range r.options {
		opt := &r.options[i]
		if opt.Provider != provider || opt.Model != model {
			continue
		}
		if opt.UserID == nil {
			if global == nil {
				global = opt
			}
			continue
		}
		if userID != nil && *opt.UserID == *userID {
			return opt.Build()
		}
	}
	if global != nil {
		return global.Build()
	}
	return nil, fmt.Errorf("%w: provider=%q model=%q", ErrNoMatchingModel, provider, model)
}

// Options returns a snapshot of the catalog visible to userID: all
// global options plus that user's own.
func (r *Resolver) Options(userID *uuid.UUID) []Option {
	r.mu.RLock()
	defer r.mu.RUnlock()

	visible := make([]Option, 0, len(r.options))
	for _, opt := range r.options {
		if opt.UserID == nil || (userID != nil && *opt.UserID == *userID) {
			visible = append(visible, opt)
		}
	}
	return visible
}
