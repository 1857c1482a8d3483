package store

// Recognized metadata facets of an abstract. Values are drawn from the
// corpus vocabulary at ingestion time.
const (
	FacetSession   = "session"
	FacetTopic     = "topic"
	FacetEventType = "eventtype"
)

// Facets lists the recognized facet names in a stable order.
var Facets = []string{FacetSession, FacetTopic, FacetEventType}

// AbstractRecord is one conference paper abstract with its embedding and
// facet metadata. Records are created during ingestion and read-only after.
type AbstractRecord struct {
	ID        string
	Title     string
	Text      string
	Embedding []float32
	Metadata  map[string]string
}

// ScoredRecord is one search hit: a record and its similarity to the query.
type ScoredRecord struct {
	Record AbstractRecord
	Score  float64
}

// FacetFilter maps a facet name to the set of accepted values. Facets
// combine with AND, values within a facet with OR. A missing facet or an
// empty value set imposes no constraint.
type FacetFilter map[string][]string

// Matches reports whether the record satisfies every constrained facet.
func (f FacetFilter) Matches(rec AbstractRecord) bool {
	for facet, values := range f {
		if len(values) == 0 {
			continue
		}
		got := rec.Metadata[facet]
		ok := false
		for _, v := range values {
			if v == got {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
