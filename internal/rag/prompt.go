package rag

import (
	"fmt"
	"strings"

	"github.com/thawn/neurips-abstracts-sub001/internal/store"
)

const systemPreamble = `You are a helpful assistant answering questions about conference paper abstracts.
Base your answer only on the abstracts provided below. Cite papers by their title when you use them.
If the abstracts do not contain the answer, say so instead of guessing.`

// noMatchMarker tells the model explicitly that retrieval found nothing, so
// it reports that instead of hallucinating sources.
const noMatchMarker = `No matching papers were found for this question under the current facet selection.
Tell the user that no matching papers were found; do not invent any.`

// composeSystemPrompt renders the retrieved abstracts, each tagged with its
// facet metadata, into the system message of the generation request.
func composeSystemPrompt(results []store.ScoredRecord) string {
	var sb strings.Builder
	sb.WriteString(systemPreamble)
	sb.WriteString("\n\n")

	if len(results) == 0 {
		sb.WriteString(noMatchMarker)
		return sb.String()
	}

	sb.WriteString("Retrieved abstracts:\n")
	for i, r := range results {
		rec := r.Record
		sb.WriteString(fmt.Sprintf("\n[%d] %s\n", i+1, rec.Title))
		var tags []string
		for _, facet := range store.Facets {
			if v := rec.Metadata[facet]; v != "" {
				tags = append(tags, fmt.Sprintf("%s: %s", facet, v))
			}
		}
		if len(tags) > 0 {
			sb.WriteString("(" + strings.Join(tags, " | ") + ")\n")
		}
		sb.WriteString(rec.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
