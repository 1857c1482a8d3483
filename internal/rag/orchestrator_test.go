package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thawn/neurips-abstracts-sub001/internal/conversation"
	"github.com/thawn/neurips-abstracts-sub001/internal/llm"
	"github.com/thawn/neurips-abstracts-sub001/internal/retriever"
	"github.com/thawn/neurips-abstracts-sub001/internal/store"
)

func newTestOrchestrator(t *testing.T, embedder *MockEmbedder, generator *MockGenerator, records []store.AbstractRecord) *Orchestrator {
	t.Helper()
	s := store.NewStore()
	if len(records) > 0 {
		require.NoError(t, s.Upsert(context.Background(), records))
	}
	return NewOrchestrator(
		retriever.NewRetriever(embedder, s),
		generator,
		conversation.NewManager(50),
		s,
		Options{NResults: 5, MaxHistoryTurns: 10, GenerationTimeout: time.Second},
		nil,
	)
}

func nlpRecords() []store.AbstractRecord {
	return []store.AbstractRecord{
		{
			ID:        "rec-1",
			Title:     "Attention Is All You Need",
			Text:      "We propose the Transformer.",
			Embedding: []float32{1, 0},
			Metadata:  map[string]string{store.FacetTopic: "NLP", store.FacetEventType: "Oral"},
		},
		{
			ID:        "rec-2",
			Title:     "Detecting Objects",
			Text:      "A detector for images.",
			Embedding: []float32{0, 1},
			Metadata:  map[string]string{store.FacetTopic: "Vision", store.FacetEventType: "Poster"},
		},
	}
}

func TestAsk_HappyPath(t *testing.T) {
	embedder := &MockEmbedder{Vector: []float32{1, 0}}
	generator := &MockGenerator{Response: "The Transformer uses attention."}
	o := newTestOrchestrator(t, embedder, generator, nlpRecords())

	answer, err := o.Ask(context.Background(), "s1", "What is attention?", nil, 5)
	require.NoError(t, err)

	assert.Equal(t, "The Transformer uses attention.", answer.Text)
	assert.Equal(t, []string{"rec-1", "rec-2"}, answer.GroundingIDs)

	// Exactly one user and one assistant turn were appended.
	turns := o.Export("s1")
	require.Len(t, turns, 2)
	assert.Equal(t, conversation.RoleUser, turns[0].Role)
	assert.Equal(t, "What is attention?", turns[0].Content)
	assert.Equal(t, conversation.RoleAssistant, turns[1].Role)
	assert.Equal(t, answer.GroundingIDs, turns[1].RetrievedIDs)

	// The system prompt carries the abstracts tagged with their facets.
	require.NotEmpty(t, generator.LastMessages)
	system := generator.LastMessages[0]
	assert.Equal(t, llm.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "Attention Is All You Need")
	assert.Contains(t, system.Content, "topic: NLP")
}

func TestAsk_EmptyStoreStillGenerates(t *testing.T) {
	embedder := &MockEmbedder{Vector: []float32{1, 0}}
	generator := &MockGenerator{Response: "I found no matching papers."}
	o := newTestOrchestrator(t, embedder, generator, nil)

	answer, err := o.Ask(context.Background(), "s1", "What is attention?", map[string][]string{}, 5)
	require.NoError(t, err)

	assert.Empty(t, answer.GroundingIDs)
	assert.Equal(t, 1, generator.Calls)
	assert.Contains(t, generator.LastMessages[0].Content, "No matching papers were found")
	assert.Len(t, o.Export("s1"), 2)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	o := newTestOrchestrator(t, &MockEmbedder{}, &MockGenerator{}, nil)

	_, err := o.Ask(context.Background(), "s1", "   ", nil, 5)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, o.Export("s1"))
}

func TestAsk_EmbeddingFailureSurfacesAsRetrievalUnavailable(t *testing.T) {
	embedder := &MockEmbedder{Err: fmt.Errorf("connection refused")}
	generator := &MockGenerator{Response: "unreachable"}
	o := newTestOrchestrator(t, embedder, generator, nlpRecords())

	_, err := o.Ask(context.Background(), "s1", "What is attention?", nil, 5)
	assert.ErrorIs(t, err, ErrRetrievalUnavailable)

	// Generation is never attempted without an embedding backend.
	assert.Equal(t, 0, generator.Calls)
	assert.Empty(t, o.Export("s1"))
}

func TestAsk_GenerationFailureLeavesConversationUnchanged(t *testing.T) {
	embedder := &MockEmbedder{Vector: []float32{1, 0}}
	generator := &MockGenerator{Response: "first answer"}
	o := newTestOrchestrator(t, embedder, generator, nlpRecords())

	_, err := o.Ask(context.Background(), "s1", "first question", nil, 5)
	require.NoError(t, err)
	before := len(o.Export("s1"))

	generator.Err = fmt.Errorf("backend down")
	_, err = o.Ask(context.Background(), "s1", "second question", nil, 5)
	assert.ErrorIs(t, err, ErrGenerationUnavailable)

	assert.Equal(t, before, len(o.Export("s1")))
}

func TestAsk_GenerationTimeout(t *testing.T) {
	embedder := &MockEmbedder{Vector: []float32{1, 0}}
	generator := &MockGenerator{BlockOnCtx: true}
	s := store.NewStore()
	require.NoError(t, s.Upsert(context.Background(), nlpRecords()))
	o := NewOrchestrator(
		retriever.NewRetriever(embedder, s),
		generator,
		conversation.NewManager(50),
		s,
		Options{NResults: 5, MaxHistoryTurns: 10, GenerationTimeout: 10 * time.Millisecond},
		nil,
	)

	_, err := o.Ask(context.Background(), "s1", "What is attention?", nil, 5)
	assert.ErrorIs(t, err, ErrGenerationTimeout)
	assert.Empty(t, o.Export("s1"))
}

func TestAsk_CallerCancellation(t *testing.T) {
	embedder := &MockEmbedder{Vector: []float32{1, 0}}
	generator := &MockGenerator{BlockOnCtx: true}
	o := newTestOrchestrator(t, embedder, generator, nlpRecords())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := o.Ask(ctx, "s1", "What is attention?", nil, 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, o.Export("s1"))
}

func TestAsk_SequentialCallsAppendInOrder(t *testing.T) {
	embedder := &MockEmbedder{Vector: []float32{1, 0}}
	generator := &MockGenerator{Response: "answer"}
	o := newTestOrchestrator(t, embedder, generator, nlpRecords())

	_, err := o.Ask(context.Background(), "s1", "first", nil, 5)
	require.NoError(t, err)
	_, err = o.Ask(context.Background(), "s1", "second", nil, 5)
	require.NoError(t, err)

	turns := o.Export("s1")
	require.Len(t, turns, 4)
	assert.Equal(t, []string{"user", "assistant", "user", "assistant"},
		[]string{turns[0].Role, turns[1].Role, turns[2].Role, turns[3].Role})
	assert.Equal(t, "first", turns[0].Content)
	assert.Equal(t, "second", turns[2].Content)
}

func TestAsk_ConcurrentCallsOnOneSessionNeverInterleaveTurns(t *testing.T) {
	embedder := &MockEmbedder{Vector: []float32{1, 0}}
	generator := &MockGenerator{Response: "answer"}
	o := newTestOrchestrator(t, embedder, generator, nlpRecords())

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := o.Ask(context.Background(), "s1", fmt.Sprintf("question %d", i), nil, 5)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Each exchange appended atomically: 2n turns in strict
	// user/assistant alternation, whatever order the calls won the lock.
	turns := o.Export("s1")
	require.Len(t, turns, 2*n)
	questions := make(map[string]bool)
	for i, turn := range turns {
		if i%2 == 0 {
			assert.Equal(t, conversation.RoleUser, turn.Role, "turn %d", i)
			questions[turn.Content] = true
		} else {
			assert.Equal(t, conversation.RoleAssistant, turn.Role, "turn %d", i)
		}
	}
	assert.Len(t, questions, n)
}

func TestAsk_HistoryFlowsIntoPrompt(t *testing.T) {
	embedder := &MockEmbedder{Vector: []float32{1, 0}}
	generator := &MockGenerator{Response: "answer"}
	o := newTestOrchestrator(t, embedder, generator, nlpRecords())

	_, err := o.Ask(context.Background(), "s1", "first question", nil, 5)
	require.NoError(t, err)
	_, err = o.Ask(context.Background(), "s1", "followup", nil, 5)
	require.NoError(t, err)

	// system + prior user + prior assistant + current question
	require.Len(t, generator.LastMessages, 4)
	assert.Equal(t, "first question", generator.LastMessages[1].Content)
	assert.Equal(t, llm.RoleAssistant, generator.LastMessages[2].Role)
	assert.Equal(t, "followup", generator.LastMessages[3].Content)
}

func TestAsk_SessionsDoNotShareHistory(t *testing.T) {
	embedder := &MockEmbedder{Vector: []float32{1, 0}}
	generator := &MockGenerator{Response: "answer"}
	o := newTestOrchestrator(t, embedder, generator, nlpRecords())

	_, err := o.Ask(context.Background(), "s1", "question", nil, 5)
	require.NoError(t, err)

	assert.Len(t, o.Export("s1"), 2)
	assert.Empty(t, o.Export("s2"))
}

func TestReset(t *testing.T) {
	embedder := &MockEmbedder{Vector: []float32{1, 0}}
	generator := &MockGenerator{Response: "answer"}
	o := newTestOrchestrator(t, embedder, generator, nlpRecords())

	_, err := o.Ask(context.Background(), "s1", "question", nil, 5)
	require.NoError(t, err)

	o.Reset("s1")
	assert.Empty(t, o.Export("s1"))
}

func TestComposeSystemPrompt_TagsMetadata(t *testing.T) {
	results := []store.ScoredRecord{{
		Record: store.AbstractRecord{
			ID:    "rec-1",
			Title: "A Paper",
			Text:  "The abstract.",
			Metadata: map[string]string{
				store.FacetSession:   "Poster Session 1",
				store.FacetTopic:     "NLP",
				store.FacetEventType: "Poster",
			},
		},
		Score: 0.9,
	}}

	prompt := composeSystemPrompt(results)
	assert.Contains(t, prompt, "A Paper")
	assert.Contains(t, prompt, "session: Poster Session 1 | topic: NLP | eventtype: Poster")
	assert.Contains(t, prompt, "The abstract.")
	assert.False(t, strings.Contains(prompt, "No matching papers"))
}
