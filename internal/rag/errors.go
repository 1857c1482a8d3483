package rag

import "fmt"

// Error kinds surfaced by Ask. Callers pick retry behavior with errors.Is:
// ErrInvalidRequest is a caller mistake, the rest are transient
// infrastructure failures eligible for caller-driven retry. The orchestrator
// never retries on its own; a retried generation call could duplicate turns.
var (
	ErrInvalidRequest        = fmt.Errorf("invalid request")
	ErrRetrievalUnavailable  = fmt.Errorf("retrieval unavailable")
	ErrGenerationUnavailable = fmt.Errorf("generation backend unavailable")
	ErrGenerationTimeout     = fmt.Errorf("generation timed out")
)
