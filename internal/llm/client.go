package llm

import (
	"context"
)

// Message roles mirror the chat-completion conventions of every supported
// provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a generation request: an instruction, a prior
// conversation turn, or the current question.
type Message struct {
	Role    string
	Content string
}

// GenerationClient produces a text answer from an ordered message sequence.
type GenerationClient interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// EmbedderClient produces a fixed-dimensionality vector for a text.
type EmbedderClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
