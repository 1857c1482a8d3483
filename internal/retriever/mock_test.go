package retriever

import (
	"context"
)

type MockEmbedder struct {
	Vector   []float32
	Err      error
	LastText string
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.LastText = text
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Vector, nil
}
