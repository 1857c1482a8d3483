package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thawn/neurips-abstracts-sub001/internal/config"
)

func TestNewClient_UnsupportedProvider(t *testing.T) {
	_, _, err := NewClient(context.Background(), config.LLMConfig{Provider: "bard"})
	assert.Error(t, err)
}

func TestNewClient_ClaudeHasNoEmbedder(t *testing.T) {
	gen, emb, err := NewClient(context.Background(), config.LLMConfig{
		Provider: "claude",
		Model:    "claude-sonnet-4-20250514",
		APIKey:   "test-key",
	})
	require.NoError(t, err)
	assert.NotNil(t, gen)
	assert.Nil(t, emb)
}

func TestNewClient_OllamaUsesOpenAICompatibleBaseURL(t *testing.T) {
	gen, emb, err := NewClient(context.Background(), config.LLMConfig{
		Provider: "ollama",
		Model:    "llama3.2",
		BaseURL:  "http://localhost:11434",
	})
	require.NoError(t, err)
	assert.NotNil(t, gen)
	assert.NotNil(t, emb)
	assert.Same(t, gen, emb.(*OpenAIClient))
}
