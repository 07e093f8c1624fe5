package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
)

type stubEmbedder struct {
	name string
}

func (s *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1}, nil
}

func stubBuilder(name string, built *string) Builder {
	return func() (embeddings.Embedder, error) {
		*built = name
		return &stubEmbedder{name: name}, nil
	}
}

func TestResolve_GlobalOption(t *testing.T) {
	var built string
	r := NewResolver(Option{
		Provider: ProviderOllama,
		Model:    "all-minilm:l6-v2",
		Build:    stubBuilder("global", &built),
	})

	embedder, err := r.Resolve(ProviderOllama, "all-minilm:l6-v2", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if embedder == nil {
		t.Fatal("Resolve() returned nil embedder")
	}
	if built != "global" {
		t.Errorf("built = %q, want global", built)
	}
}

func TestResolve_UserScopedWinsOverGlobal(t *testing.T) {
	userID := uuid.New()
	var built string
	r := NewResolver(
		Option{Provider: ProviderOpenAI, Model: "text-embedding-3-small", Build: stubBuilder("global", &built)},
		Option{Provider: ProviderOpenAI, Model: "text-embedding-3-small", UserID: &userID, Build: stubBuilder("user", &built)},
	)

	if _, err := r.Resolve(ProviderOpenAI, "text-embedding-3-small", &userID); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if built != "user" {
		t.Errorf("built = %q, want user", built)
	}
}

func TestResolve_OtherUsersOptionInvisible(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()
	var built string
	r := NewResolver(Option{
		Provider: ProviderOllama,
		Model:    "nomic-embed-text",
		UserID:   &owner,
		Build:    stubBuilder("owner", &built),
	})

	_, err := r.Resolve(ProviderOllama, "nomic-embed-text", &other)
	if !errors.Is(err, ErrNoMatchingModel) {
		t.Errorf("Resolve() error = %v, want ErrNoMatchingModel", err)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	r := NewResolver()

	_, err := r.Resolve(ProviderOllama, "missing", nil)
	if !errors.Is(err, ErrNoMatchingModel) {
		t.Errorf("Resolve() error = %v, want ErrNoMatchingModel", err)
	}
}

func TestOptions_Visibility(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()
	r := NewResolver(
		Option{Provider: ProviderOllama, Model: "a"},
		Option{Provider: ProviderOllama, Model: "b", UserID: &owner},
	)

	if got := len(r.Options(&owner)); got != 2 {
		t.Errorf("owner sees %d options, want 2", got)
	}
	if got := len(r.Options(&other)); got != 1 {
		t.Errorf("other user sees %d options, want 1", got)
	}
	if got := len(r.Options(nil)); got != 1 {
		t.Errorf("anonymous sees %d options, want 1", got)
	}
}
