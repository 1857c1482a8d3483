package rag

import (
	"context"
	"sync"

	"github.com/thawn/neurips-abstracts-sub001/internal/llm"
)

type MockEmbedder struct {
	Vector []float32
	Err    error
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Vector, nil
}

type MockGenerator struct {
	Response   string
	Err        error
	BlockOnCtx bool // wait for ctx cancellation instead of answering

	mu           sync.Mutex
	LastMessages []llm.Message
	Calls        int
}

func (m *MockGenerator) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	m.mu.Lock()
	m.Calls++
	m.LastMessages = messages
	m.mu.Unlock()
	if m.BlockOnCtx {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}
