package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/ideaforge-backend/internal/clients/metacognition"
	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

const (
	// No summary is created for conversations shorter than this.
	MinMessagesForSummary = 20
	// Batches smaller than this are deferred so single-message dribbles
	// never reach the summarizer.
	MinBacklogToSend = 10
)

// SummaryCoordinator serializes "what have we told the summarizer so far"
// per conversation, independent of how many callers trigger it concurrently.
type SummaryCoordinator interface {
	// AddMessagesToChatSummary advances the rolling chat summary with any
	// backlog the conversation has accumulated, subject to the gating
	// floors. Safe to fire after every exchange; most calls are no-ops.
	AddMessagesToChatSummary(dbc dbctx.Context, conversationID uuid.UUID) error

	// SummarizeImportedConversation builds the one-shot summary of an
	// imported transcript, bypassing both gating floors. onComplete runs
	// once the summary text is available (immediately for a blocking
	// backend, from the polling task otherwise).
	SummarizeImportedConversation(dbc dbctx.Context, conversationID uuid.UUID, onComplete func(ctx context.Context, summary string)) error

	// DropConversation cancels any polling tasks and forgets in-memory
	// coordination state. Called before a re-import replaces the
	// transcript.
	DropConversation(conversationID uuid.UUID)

	// WaitBudgetResets exposes the poller's reset counter.
	WaitBudgetResets() int64

	Close()
}

// convEntry is the per-conversation coordination state. messagesSent counts
// ordinals handed to the summarizer; ordinals maps each ordinal back to its
// durable message. pollTarget stays strictly below messagesSent.
type convEntry struct {
	mu sync.Mutex

	initialized  bool
	messagesSent int
	ordinals     []OrdinalRef
	pollTarget   int
}

type summaryCoordinator struct {
	db        *gorm.DB
	log       *logger.Logger
	messages  repos.ChatMessageRepo
	summaries repos.ConversationSummaryRepo
	backend   SummarizerBackend
	poller    *SummaryPoller

	mu      sync.Mutex
	entries map[uuid.UUID]*convEntry
}

func NewSummaryCoordinator(
	db *gorm.DB,
	baseLog *logger.Logger,
	messageRepo repos.ChatMessageRepo,
	summaryRepo repos.ConversationSummaryRepo,
	backend SummarizerBackend,
) SummaryCoordinator {
	return &summaryCoordinator{
		db:        db,
		log:       baseLog.With("service", "SummaryCoordinator"),
		messages:  messageRepo,
		summaries: summaryRepo,
		backend:   backend,
		poller:    NewSummaryPoller(db, baseLog, summaryRepo, backend),
		entries:   make(map[uuid.UUID]*convEntry),
	}
}

func (s *summaryCoordinator) entry(conversationID uuid.UUID) *convEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[conversationID]
	if !ok {
		e = &convEntry{}
		s.entries[conversationID] = e
	}
	return e
}

func (s *summaryCoordinator) WaitBudgetResets() int64 {
	return s.poller.WaitBudgetResets()
}

func (s *summaryCoordinator) DropConversation(conversationID uuid.UUID) {
	s.poller.Drop(conversationID)
	s.mu.Lock()
	delete(s.entries, conversationID)
	s.mu.Unlock()
	s.log.Info("Dropped summary coordination state", "conversation_id", conversationID)
}

func (s *summaryCoordinator) Close() {
	s.poller.Close()
}

func (s *summaryCoordinator) AddMessagesToChatSummary(dbc dbctx.Context, conversationID uuid.UUID) error {
	if conversationID == uuid.Nil {
		return fmt.Errorf("missing conversation_id")
	}
	log := s.log.With("conversation_id", conversationID)

	e := s.entry(conversationID)
	e.mu.Lock()
	defer e.mu.Unlock()

	msgs, err := s.messages.ListForSummary(dbc, conversationID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	total := len(msgs)
	if total < MinMessagesForSummary {
		log.Debug("Below summary size floor; skipping", "total", total)
		return nil
	}
	ordinals, payload := ordinalsAndPayload(msgs)

	row, err := s.summaries.GetByConversationAndKind(dbc, conversationID, types.SummaryKindChat)
	if err != nil {
		return fmt.Errorf("load summary: %w", err)
	}

	if row == nil {
		return s.coldStart(dbc, log, conversationID, e, ordinals, payload)
	}

	currentSent := e.messagesSent
	if !e.initialized {
		currentSent = derivedSentCount(row.LatestMessageID, ordinals)
		log.Info("Re-derived coordination state from persisted cursor", "current_sent", currentSent)
	}
	if currentSent > total {
		currentSent = total
	}

	newMsgs := payload[currentSent:]
	if len(newMsgs) == 0 {
		return nil
	}
	if len(newMsgs) < MinBacklogToSend {
		log.Debug("Below backlog floor; deferring", "backlog", len(newMsgs))
		return nil
	}

	res, sentFrom, sentLen, err := s.advanceWithRetry(dbc.Ctx, log, row.ExternalID, currentSent, payload)
	if err != nil {
		log.Error("Summarizer advance failed", "error", err, "first_new_index", currentSent)
		return err
	}

	e.initialized = true
	e.messagesSent = sentFrom + sentLen
	e.ordinals = ordinals
	e.pollTarget = e.messagesSent - 1

	return s.finishAdvance(dbc, log, conversationID, e, row, res)
}

// coldStart sends the entire filtered history in one call and creates the
// summary row.
func (s *summaryCoordinator) coldStart(dbc dbctx.Context, log *logger.Logger, conversationID uuid.UUID, e *convEntry, ordinals []OrdinalRef, payload []metacognition.Message) error {
	res, _, sentLen, err := s.advanceWithRetry(dbc.Ctx, log, nil, 0, payload)
	if err != nil {
		log.Error("Cold-start summarizer advance failed", "error", err)
		return err
	}

	e.initialized = true
	e.messagesSent = sentLen
	e.ordinals = ordinals
	e.pollTarget = e.messagesSent - 1

	row := &types.ConversationSummary{
		ConversationID: conversationID,
		Kind:           types.SummaryKindChat,
		ExternalID:     &res.SummaryID,
	}
	if _, err := s.summaries.Create(dbc, row); err != nil {
		return fmt.Errorf("create summary row: %w", err)
	}
	log.Info("Started conversation summary", "summary_id", res.SummaryID, "messages", sentLen)

	return s.finishAdvance(dbc, log, conversationID, e, row, res)
}

// finishAdvance persists what a blocking backend already produced, or hands
// off to the polling supervisor for an async one. Caller holds e.mu.
func (s *summaryCoordinator) finishAdvance(dbc dbctx.Context, log *logger.Logger, conversationID uuid.UUID, e *convEntry, row *types.ConversationSummary, res metacognition.AdvanceResult) error {
	handle := res.SummaryID
	if row.ExternalID == nil || *row.ExternalID != handle {
		row.ExternalID = &handle
	}

	if s.backend.Blocking() {
		idx := e.messagesSent - 1
		if res.LatestProcessedIndex != nil {
			idx = *res.LatestProcessedIndex
		}
		ref := ordinalAt(e.ordinals, idx)
		var latestID *uuid.UUID
		if ref.ID != uuid.Nil {
			latestID = &ref.ID
		}
		if _, err := s.summaries.AdvanceCursor(dbc, conversationID, types.SummaryKindChat, &handle, res.LatestSummary, latestID, ref.Seq); err != nil {
			return fmt.Errorf("persist summary: %w", err)
		}
		log.Info("Summary updated synchronously", "processed_idx", idx)
		return nil
	}

	target := e.pollTarget
	s.poller.EnsureChatTask(conversationID, handle, func() (int, []OrdinalRef) {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.pollTarget, e.ordinals
	})
	log.Info("Summarizer advanced; polling for completion", "summary_id", handle, "poll_target", target)
	return nil
}

// advanceWithRetry performs one advance call with a single corrective retry
// on an index mismatch: the service tells us which index it expects next and
// the batch is re-sliced from there. A second failure aborts without touching
// coordination state.
func (s *summaryCoordinator) advanceWithRetry(ctx context.Context, log *logger.Logger, handle *int64, firstNewIndex int, payload []metacognition.Message) (metacognition.AdvanceResult, int, int, error) {
	batch := payload[firstNewIndex:]
	res, err := s.backend.Advance(ctx, handle, firstNewIndex, batch)
	if err == nil {
		return res, firstNewIndex, len(batch), nil
	}

	mismatch, ok := metacognition.AsIndexMismatch(err)
	if !ok {
		return metacognition.AdvanceResult{}, 0, 0, err
	}

	expected := mismatch.Expected
	if expected < 0 || expected > len(payload) {
		return metacognition.AdvanceResult{}, 0, 0, fmt.Errorf("index mismatch beyond known messages: %w", mismatch)
	}

	log.Warn("Index mismatch from summarizer; retrying once with corrected index",
		"sent_index", firstNewIndex,
		"expected_index", expected,
	)

	batch = payload[expected:]
	res, err = s.backend.Advance(ctx, handle, expected, batch)
	if err != nil {
		return metacognition.AdvanceResult{}, 0, 0, fmt.Errorf("retry after index mismatch: %w", err)
	}
	return res, expected, len(batch), nil
}

func (s *summaryCoordinator) SummarizeImportedConversation(dbc dbctx.Context, conversationID uuid.UUID, onComplete func(ctx context.Context, summary string)) error {
	if conversationID == uuid.Nil {
		return fmt.Errorf("missing conversation_id")
	}
	log := s.log.With("conversation_id", conversationID, "kind", types.SummaryKindImported)

	e := s.entry(conversationID)
	e.mu.Lock()
	defer e.mu.Unlock()

	msgs, err := s.messages.ListForSummary(dbc, conversationID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if len(msgs) == 0 {
		return fmt.Errorf("no messages to summarize")
	}
	ordinals, payload := ordinalsAndPayload(msgs)

	// Re-import replaces any prior one-shot summary wholesale.
	if err := s.summaries.DeleteByConversationAndKind(dbc, conversationID, types.SummaryKindImported); err != nil {
		return fmt.Errorf("clear prior imported summary: %w", err)
	}

	res, _, sentLen, err := s.advanceWithRetry(dbc.Ctx, log, nil, 0, payload)
	if err != nil {
		log.Error("Imported-transcript advance failed", "error", err)
		return err
	}

	row := &types.ConversationSummary{
		ConversationID: conversationID,
		Kind:           types.SummaryKindImported,
		ExternalID:     &res.SummaryID,
	}
	if _, err := s.summaries.Create(dbc, row); err != nil {
		return fmt.Errorf("create summary row: %w", err)
	}
	log.Info("Imported transcript sent to summarizer", "summary_id", res.SummaryID, "messages", sentLen)

	if s.backend.Blocking() {
		idx := sentLen - 1
		if res.LatestProcessedIndex != nil {
			idx = *res.LatestProcessedIndex
		}
		ref := ordinalAt(ordinals, idx)
		var latestID *uuid.UUID
		if ref.ID != uuid.Nil {
			latestID = &ref.ID
		}
		if _, err := s.summaries.AdvanceCursor(dbc, conversationID, types.SummaryKindImported, &res.SummaryID, res.LatestSummary, latestID, ref.Seq); err != nil {
			return fmt.Errorf("persist imported summary: %w", err)
		}
		if onComplete != nil {
			onComplete(dbc.Ctx, res.LatestSummary)
		}
		return nil
	}

	s.poller.EnsureImportedTask(conversationID, res.SummaryID, ordinals, onComplete)
	return nil
}

// -------------------- helpers --------------------

func ordinalsAndPayload(msgs []*types.ChatMessage) ([]OrdinalRef, []metacognition.Message) {
	ordinals := make([]OrdinalRef, len(msgs))
	payload := make([]metacognition.Message, len(msgs))
	for i, m := range msgs {
		ordinals[i] = OrdinalRef{ID: m.ID, Seq: m.Seq}
		payload[i] = metacognition.Message{Role: m.Role, Content: m.Content}
	}
	return ordinals, payload
}

// derivedSentCount recovers the sent-count from the persisted cursor: the
// position of latest_message_id in the fresh list, plus one. Unknown or
// missing cursors derive to zero.
func derivedSentCount(latestMessageID *uuid.UUID, ordinals []OrdinalRef) int {
	if latestMessageID == nil || *latestMessageID == uuid.Nil {
		return 0
	}
	for i, ref := range ordinals {
		if ref.ID == *latestMessageID {
			return i + 1
		}
	}
	return 0
}

func ordinalAt(ordinals []OrdinalRef, idx int) OrdinalRef {
	if idx >= 0 && idx < len(ordinals) {
		return ordinals[idx]
	}
	if len(ordinals) > 0 {
		return ordinals[0]
	}
	return OrdinalRef{}
}
