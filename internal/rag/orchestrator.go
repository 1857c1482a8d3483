// Package rag composes retrieval results and conversation history into
// generation requests and folds answers back into the conversation.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thawn/neurips-abstracts-sub001/internal/conversation"
	"github.com/thawn/neurips-abstracts-sub001/internal/llm"
	"github.com/thawn/neurips-abstracts-sub001/internal/retriever"
	"github.com/thawn/neurips-abstracts-sub001/internal/store"
)

// State names the phases one Ask request moves through. Failed is terminal
// and reachable from every non-terminal state.
type State string

const (
	StateReceived        State = "received"
	StateEmbedding       State = "embedding"
	StateRetrieving      State = "retrieving"
	StateComposingPrompt State = "composing_prompt"
	StateGenerating      State = "generating"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

// Answer is the result of one successful Ask: the generated text and the
// ids of the abstracts that grounded it.
type Answer struct {
	Text         string
	GroundingIDs []string
}

// Options bound an orchestrator's per-request behavior.
type Options struct {
	NResults          int           // default result count when the caller passes none
	MaxHistoryTurns   int           // prompt window passed to the conversation manager
	GenerationTimeout time.Duration // deadline for one generation call
}

// Orchestrator answers one question within one session. Requests for
// different sessions run fully in parallel; requests for the same session
// are serialized by a per-session lock so turn ordering cannot interleave.
type Orchestrator struct {
	retriever     *retriever.Retriever
	generator     llm.GenerationClient
	conversations *conversation.Manager
	store         *store.Store
	opts          Options
	log           *zap.Logger

	mu           sync.Mutex
	sessionLocks map[string]*sync.Mutex
}

func NewOrchestrator(r *retriever.Retriever, g llm.GenerationClient, c *conversation.Manager, s *store.Store, opts Options, log *zap.Logger) *Orchestrator {
	if opts.NResults <= 0 {
		opts.NResults = 5
	}
	if opts.MaxHistoryTurns <= 0 {
		opts.MaxHistoryTurns = 10
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 2 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		retriever:     r,
		generator:     g,
		conversations: c,
		store:         s,
		opts:          opts,
		log:           log,
		sessionLocks:  make(map[string]*sync.Mutex),
	}
}

// Ask answers question within the session, narrowing retrieval by the
// facet selection. On success the conversation gains exactly two turns:
// the question and the answer annotated with its grounding ids. On any
// failure the conversation is left untouched.
func (o *Orchestrator) Ask(ctx context.Context, sessionID, question string, selection map[string][]string, nResults int) (*Answer, error) {
	log := o.log.With(zap.String("session_id", sessionID))

	// Received
	if strings.TrimSpace(question) == "" {
		log.Warn("rejected request", zap.String("state", string(StateReceived)))
		return nil, fmt.Errorf("question must not be empty: %w", ErrInvalidRequest)
	}
	if nResults <= 0 {
		nResults = o.opts.NResults
	}

	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	// Embedding / Retrieving
	results, err := o.retriever.Retrieve(ctx, question, selection, nResults)
	if err != nil {
		log.Warn("retrieval failed", zap.String("state", string(StateRetrieving)), zap.Error(err))
		switch {
		case errors.Is(err, retriever.ErrEmptyInput):
			return nil, fmt.Errorf("%v: %w", err, ErrInvalidRequest)
		case errors.Is(err, retriever.ErrEmbeddingUnavailable):
			return nil, fmt.Errorf("%v: %w", err, ErrRetrievalUnavailable)
		default:
			return nil, err
		}
	}

	// ComposingPrompt
	messages := []llm.Message{{Role: llm.RoleSystem, Content: composeSystemPrompt(results)}}
	for turn := range o.conversations.History(sessionID, o.opts.MaxHistoryTurns) {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})

	// Generating
	genCtx, cancel := context.WithTimeout(ctx, o.opts.GenerationTimeout)
	defer cancel()

	answer, err := o.generator.Generate(genCtx, messages)
	if err != nil {
		log.Warn("generation failed", zap.String("state", string(StateGenerating)), zap.Error(err))
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The caller abandoned the request; no turns were recorded.
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%v: %w", err, ErrGenerationTimeout)
		}
		return nil, fmt.Errorf("%v: %w", err, ErrGenerationUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Completed: the single mutation of the conversation for this exchange.
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Record.ID)
	}
	o.conversations.Append(sessionID, conversation.RoleUser, question, nil)
	o.conversations.Append(sessionID, conversation.RoleAssistant, answer, ids)

	log.Info("answered question",
		zap.String("state", string(StateCompleted)),
		zap.Int("grounding_records", len(ids)),
	)
	return &Answer{Text: answer, GroundingIDs: ids}, nil
}

// Reset clears the session's conversation.
func (o *Orchestrator) Reset(sessionID string) {
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	o.conversations.Reset(sessionID)
}

// Export returns the session's full turn sequence for download.
func (o *Orchestrator) Export(sessionID string) []conversation.Turn {
	return o.conversations.Export(sessionID)
}

// Facets returns the distinct values present for each recognized facet.
func (o *Orchestrator) Facets() map[string][]string {
	return o.store.FacetValues()
}

// sessionLock returns the one mutex guarding the session, creating it on
// first use. Locks are retained for the process lifetime: pruning on Reset
// could hand two in-flight Ask calls different mutexes for the same session
// and let their appends interleave. Growth is bounded by distinct session
// ids, which live no longer than the process anyway.
func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.sessionLocks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		o.sessionLocks[sessionID] = lock
	}
	return lock
}
