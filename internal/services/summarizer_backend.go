package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/yungbote/ideaforge-backend/internal/clients/metacognition"
	"github.com/yungbote/ideaforge-backend/internal/clients/openai"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

// SummarizerBackend is the contract the coordination layer drives: given N
// new messages at a known starting index, return (or eventually yield) an
// updated summary and a cursor for how much has been incorporated.
//
// The remote backend incorporates messages asynchronously, so callers poll it
// with empty probes until the processed index catches up. The local backend
// folds messages into the summary inside the Advance call itself; Blocking
// tells the coordinator which mode it is dealing with.
type SummarizerBackend interface {
	Advance(ctx context.Context, handle *int64, firstNewIndex int, newMessages []metacognition.Message) (metacognition.AdvanceResult, error)
	Blocking() bool
}

// -------------------- Remote (polling) backend --------------------

type remoteBackend struct {
	client metacognition.Client
}

func NewRemoteSummarizerBackend(client metacognition.Client) (SummarizerBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("metacognition client required")
	}
	return &remoteBackend{client: client}, nil
}

func (b *remoteBackend) Advance(ctx context.Context, handle *int64, firstNewIndex int, newMessages []metacognition.Message) (metacognition.AdvanceResult, error) {
	return b.client.Advance(ctx, handle, firstNewIndex, newMessages)
}

func (b *remoteBackend) Blocking() bool { return false }

// -------------------- Local (blocking) backend --------------------

const localSummarySystemPrompt = `You maintain a rolling summary of a conversation between a user and an assistant.
Fold the new messages into the existing summary. Keep decisions, goals, named
entities, and open questions. Stay under 400 words. Output only the summary.`

type localSummaryState struct {
	summary        string
	processedCount int
}

// localBackend keeps summary state in memory keyed by handle and produces the
// updated summary synchronously with one model call per Advance. No poll phase
// exists; callers see the final cursor immediately.
type localBackend struct {
	log *logger.Logger
	ai  openai.Client

	mu         sync.Mutex
	states     map[int64]*localSummaryState
	nextHandle atomic.Int64
}

func NewLocalSummarizerBackend(log *logger.Logger, ai openai.Client) (SummarizerBackend, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	return &localBackend{
		log:    log.With("service", "LocalSummarizerBackend"),
		ai:     ai,
		states: make(map[int64]*localSummaryState),
	}, nil
}

func (b *localBackend) Blocking() bool { return true }

func (b *localBackend) Advance(ctx context.Context, handle *int64, firstNewIndex int, newMessages []metacognition.Message) (metacognition.AdvanceResult, error) {
	b.mu.Lock()
	var id int64
	if handle != nil {
		id = *handle
	} else {
		id = b.nextHandle.Add(1)
	}
	st, ok := b.states[id]
	if !ok {
		st = &localSummaryState{}
		b.states[id] = st
	}
	processed := st.processedCount
	b.mu.Unlock()

	// Empty batch is a status probe.
	if len(newMessages) == 0 {
		b.mu.Lock()
		out := b.result(id, st)
		b.mu.Unlock()
		return out, nil
	}

	if firstNewIndex != processed {
		return metacognition.AdvanceResult{}, &metacognition.IndexMismatchError{
			Expected: processed,
			Got:      firstNewIndex,
			Message:  fmt.Sprintf("Expected index %d for conversation, got %d", processed, firstNewIndex),
		}
	}

	var batch strings.Builder
	for _, m := range newMessages {
		batch.WriteString(m.Role)
		batch.WriteString(": ")
		batch.WriteString(m.Content)
		batch.WriteString("\n")
	}

	user := fmt.Sprintf("Existing summary:\n%s\n\nNew messages:\n%s", st.summary, batch.String())
	updated, err := b.ai.GenerateText(ctx, localSummarySystemPrompt, user)
	if err != nil {
		return metacognition.AdvanceResult{}, fmt.Errorf("local summarize: %w", err)
	}

	b.mu.Lock()
	st.summary = strings.TrimSpace(updated)
	st.processedCount += len(newMessages)
	out := b.result(id, st)
	b.mu.Unlock()

	b.log.Debug("Folded messages into local summary", "handle", id, "added", len(newMessages))
	return out, nil
}

func (b *localBackend) result(id int64, st *localSummaryState) metacognition.AdvanceResult {
	out := metacognition.AdvanceResult{
		SummaryID:     id,
		LatestSummary: st.summary,
	}
	if st.processedCount > 0 {
		idx := st.processedCount - 1
		out.LatestProcessedIndex = &idx
	}
	return out
}
