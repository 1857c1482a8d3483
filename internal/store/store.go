// Package store holds abstract records in memory and answers
// nearest-neighbor queries constrained by facet metadata.
package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// dimensionality established by the first record upserted into the store.
var ErrDimensionMismatch = fmt.Errorf("embedding dimension mismatch")

// Store is a brute-force cosine-similarity index over abstract records.
// Search is read-only and safe for concurrent use; Upsert takes the write
// lock and belongs to the ingestion path, not the request-serving hot path.
type Store struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]AbstractRecord
}

func NewStore() *Store {
	return &Store{
		records: make(map[string]AbstractRecord),
	}
}

// Dimension returns the established embedding dimensionality, or 0 if the
// store is empty.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Count returns the number of records currently held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Upsert inserts records, replacing any existing record with the same id.
// The first record fixes the store's dimensionality; a record whose
// embedding length differs fails with ErrDimensionMismatch and is not
// stored. Records preceding the failing one remain inserted.
func (s *Store) Upsert(ctx context.Context, records []AbstractRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.dimension == 0 {
			if len(rec.Embedding) == 0 {
				return fmt.Errorf("record %s has empty embedding: %w", rec.ID, ErrDimensionMismatch)
			}
			s.dimension = len(rec.Embedding)
		}
		if len(rec.Embedding) != s.dimension {
			return fmt.Errorf("record %s has dimension %d, store has %d: %w",
				rec.ID, len(rec.Embedding), s.dimension, ErrDimensionMismatch)
		}
		s.records[rec.ID] = rec
	}
	return nil
}

// Search returns up to nResults records satisfying filter, ranked by cosine
// similarity to queryEmbedding in descending order. Ties are broken by
// ascending record id so repeated calls yield identical orderings. Fewer
// matching candidates than nResults is not an error; neither is zero.
func (s *Store) Search(ctx context.Context, queryEmbedding []float32, filter FacetFilter, nResults int) ([]ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, nil
	}
	if len(queryEmbedding) != s.dimension {
		return nil, fmt.Errorf("query has dimension %d, store has %d: %w",
			len(queryEmbedding), s.dimension, ErrDimensionMismatch)
	}
	if nResults <= 0 {
		return nil, nil
	}

	var hits []ScoredRecord
	for _, rec := range s.records {
		if !filter.Matches(rec) {
			continue
		}
		hits = append(hits, ScoredRecord{
			Record: rec,
			Score:  cosineSimilarity(queryEmbedding, rec.Embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Record.ID < hits[j].Record.ID
	})

	if len(hits) > nResults {
		hits = hits[:nResults]
	}
	return hits, nil
}

// FacetValues returns the distinct values present for each recognized
// facet, sorted ascending, for populating selection UIs.
func (s *Store) FacetValues() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]map[string]bool, len(Facets))
	for _, facet := range Facets {
		seen[facet] = make(map[string]bool)
	}
	for _, rec := range s.records {
		for _, facet := range Facets {
			if v, ok := rec.Metadata[facet]; ok && v != "" {
				seen[facet][v] = true
			}
		}
	}

	vocab := make(map[string][]string, len(Facets))
	for _, facet := range Facets {
		values := make([]string, 0, len(seen[facet]))
		for v := range seen[facet] {
			values = append(values, v)
		}
		sort.Strings(values)
		vocab[facet] = values
	}
	return vocab
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
