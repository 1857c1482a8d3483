// Package retriever turns a question plus a loose facet selection into a
// ranked list of matching abstracts.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/thawn/neurips-abstracts-sub001/internal/llm"
	"github.com/thawn/neurips-abstracts-sub001/internal/store"
)

var (
	// ErrEmptyInput is returned when the text to embed is empty or whitespace.
	ErrEmptyInput = fmt.Errorf("empty input text")

	// ErrEmbeddingUnavailable wraps any failure of the embedding backend.
	ErrEmbeddingUnavailable = fmt.Errorf("embedding backend unavailable")
)

// Selections arrive from presentation layers under loose names; each
// recognized facet accepts its UI plural and the canonical singular.
var facetAliases = map[string]string{
	"session":    store.FacetSession,
	"sessions":   store.FacetSession,
	"topic":      store.FacetTopic,
	"topics":     store.FacetTopic,
	"eventtype":  store.FacetEventType,
	"eventtypes": store.FacetEventType,
	"event_type": store.FacetEventType,
}

type Retriever struct {
	Embedder llm.EmbedderClient
	Store    *store.Store
}

func NewRetriever(embedder llm.EmbedderClient, s *store.Store) *Retriever {
	return &Retriever{
		Embedder: embedder,
		Store:    s,
	}
}

// Embed delegates to the embedding backend.
func (r *Retriever) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	vec, err := r.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	return vec, nil
}

// BuildFilter normalizes a loose selection into a typed facet filter.
// Unrecognized facet names are dropped. A facet that is absent, or present
// with no values, imposes no constraint: an empty selection means the full
// corpus, not an empty one.
func BuildFilter(selection map[string][]string) store.FacetFilter {
	filter := make(store.FacetFilter)
	for name, values := range selection {
		facet, ok := facetAliases[strings.ToLower(name)]
		if !ok || len(values) == 0 {
			continue
		}
		filter[facet] = append(filter[facet], values...)
	}
	return filter
}

// Retrieve embeds the question, builds the filter, and searches the store.
func (r *Retriever) Retrieve(ctx context.Context, question string, selection map[string][]string, nResults int) ([]store.ScoredRecord, error) {
	vec, err := r.Embed(ctx, question)
	if err != nil {
		return nil, err
	}
	results, err := r.Store.Search(ctx, vec, BuildFilter(selection), nResults)
	if err != nil {
		return nil, fmt.Errorf("failed to search store: %w", err)
	}
	return results, nil
}
