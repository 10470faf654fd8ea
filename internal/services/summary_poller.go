package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/envutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

// OrdinalRef ties a summarizer ordinal back to the durable message it came
// from so poll results can be persisted against real rows.
type OrdinalRef struct {
	ID  uuid.UUID
	Seq int64
}

// PollTargetFunc reports the current target ordinal and the ordinal-to-message
// translation table. Read fresh on every poll iteration: the target moves
// whenever new batches are handed to the summarizer while a task is running.
type PollTargetFunc func() (target int, ordinals []OrdinalRef)

type pollTaskKey struct {
	ConversationID uuid.UUID
	Kind           string
}

type pollTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// SummaryPoller owns at most one background polling task per (conversation,
// kind). Each task probes the summarizer backend until the persisted summary
// catches up with its target, then terminates.
type SummaryPoller struct {
	db        *gorm.DB
	log       *logger.Logger
	summaries repos.ConversationSummaryRepo
	backend   SummarizerBackend

	interval time.Duration
	maxWait  time.Duration

	mu    sync.Mutex
	tasks map[pollTaskKey]*pollTask

	// Incremented each time a task exhausts its no-progress budget and
	// resets instead of giving up. Exposed for tests and health reporting.
	waitBudgetResets atomic.Int64
}

func NewSummaryPoller(db *gorm.DB, baseLog *logger.Logger, summaries repos.ConversationSummaryRepo, backend SummarizerBackend) *SummaryPoller {
	return &SummaryPoller{
		db:        db,
		log:       baseLog.With("service", "SummaryPoller"),
		summaries: summaries,
		backend:   backend,
		interval:  envutil.DurationSeconds("SUMMARY_POLL_INTERVAL_SECONDS", 5*time.Second),
		maxWait:   envutil.DurationSeconds("SUMMARY_POLL_MAX_WAIT_SECONDS", 6000*time.Second),
		tasks:     make(map[pollTaskKey]*pollTask),
	}
}

func (p *SummaryPoller) WaitBudgetResets() int64 {
	return p.waitBudgetResets.Load()
}

// EnsureChatTask guarantees exactly one live polling task for the rolling
// chat summary of a conversation. If one is already running it is reused;
// the running loop notices an advanced target through targetFn.
func (p *SummaryPoller) EnsureChatTask(conversationID uuid.UUID, handle int64, targetFn PollTargetFunc) {
	p.ensure(pollTaskKey{ConversationID: conversationID, Kind: types.SummaryKindChat}, func(ctx context.Context) {
		p.runChatLoop(ctx, conversationID, handle, targetFn)
	})
}

// EnsureImportedTask polls for the one-shot imported-transcript summary. The
// loop terminates on the first non-empty summary and invokes onComplete with
// its text, off the polling goroutine's own context.
func (p *SummaryPoller) EnsureImportedTask(conversationID uuid.UUID, handle int64, ordinals []OrdinalRef, onComplete func(ctx context.Context, summary string)) {
	p.ensure(pollTaskKey{ConversationID: conversationID, Kind: types.SummaryKindImported}, func(ctx context.Context) {
		p.runImportedLoop(ctx, conversationID, handle, ordinals, onComplete)
	})
}

func (p *SummaryPoller) ensure(key pollTaskKey, run func(ctx context.Context)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.tasks[key]; ok {
		select {
		case <-t.done:
			// finished; fall through and replace
		default:
			return
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &pollTask{cancel: cancel, done: make(chan struct{})}
	p.tasks[key] = t

	go func() {
		defer close(t.done)
		defer cancel()
		run(ctx)
	}()
}

// Drop cancels and awaits all tasks for a conversation. Safe to call when
// none is running. Used on re-import so stale summary state cannot leak into
// the replacement transcript.
func (p *SummaryPoller) Drop(conversationID uuid.UUID) {
	p.mu.Lock()
	var dropped []*pollTask
	for key, t := range p.tasks {
		if key.ConversationID == conversationID {
			t.cancel()
			dropped = append(dropped, t)
			delete(p.tasks, key)
		}
	}
	p.mu.Unlock()

	for _, t := range dropped {
		<-t.done
	}
}

// Close cancels and awaits every task. Called on shutdown.
func (p *SummaryPoller) Close() {
	p.mu.Lock()
	var all []*pollTask
	for key, t := range p.tasks {
		t.cancel()
		all = append(all, t)
		delete(p.tasks, key)
	}
	p.mu.Unlock()

	for _, t := range all {
		<-t.done
	}
}

func (p *SummaryPoller) runChatLoop(ctx context.Context, conversationID uuid.UUID, handle int64, targetFn PollTargetFunc) {
	log := p.log.With("conversation_id", conversationID, "summary_id", handle, "kind", types.SummaryKindChat)
	log.Info("Summary polling task started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	lastProgress := time.Now()
	lastIdx := -1

	for {
		select {
		case <-ctx.Done():
			log.Info("Summary polling task cancelled")
			return
		case <-ticker.C:
		}

		res, err := p.backend.Advance(ctx, &handle, 0, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("Summary status probe failed", "error", err)
			lastProgress = p.checkWaitBudget(log, lastProgress)
			continue
		}

		if res.LatestProcessedIndex != nil && *res.LatestProcessedIndex != lastIdx && res.LatestSummary != "" {
			idx := *res.LatestProcessedIndex
			target, ordinals := targetFn()

			if err := p.persist(ctx, conversationID, types.SummaryKindChat, handle, res.LatestSummary, idx, ordinals); err != nil {
				log.Error("Failed to persist summary progress", "error", err, "processed_idx", idx)
				lastProgress = p.checkWaitBudget(log, lastProgress)
				continue
			}

			lastIdx = idx
			lastProgress = time.Now()
			log.Info("Summary advanced", "processed_idx", idx, "target", target)

			if idx >= target {
				log.Info("Summary polling task reached target", "processed_idx", idx)
				return
			}
			continue
		}

		lastProgress = p.checkWaitBudget(log, lastProgress)
	}
}

func (p *SummaryPoller) runImportedLoop(ctx context.Context, conversationID uuid.UUID, handle int64, ordinals []OrdinalRef, onComplete func(ctx context.Context, summary string)) {
	log := p.log.With("conversation_id", conversationID, "summary_id", handle, "kind", types.SummaryKindImported)
	log.Info("Imported-summary polling task started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	lastProgress := time.Now()

	for {
		select {
		case <-ctx.Done():
			log.Info("Imported-summary polling task cancelled")
			return
		case <-ticker.C:
		}

		res, err := p.backend.Advance(ctx, &handle, 0, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("Summary status probe failed", "error", err)
			lastProgress = p.checkWaitBudget(log, lastProgress)
			continue
		}

		if res.LatestProcessedIndex != nil && res.LatestSummary != "" {
			idx := *res.LatestProcessedIndex
			if err := p.persist(ctx, conversationID, types.SummaryKindImported, handle, res.LatestSummary, idx, ordinals); err != nil {
				log.Error("Failed to persist imported summary", "error", err, "processed_idx", idx)
				lastProgress = p.checkWaitBudget(log, lastProgress)
				continue
			}

			log.Info("Imported summary ready", "processed_idx", idx)
			if onComplete != nil {
				onComplete(ctx, res.LatestSummary)
			}
			return
		}

		lastProgress = p.checkWaitBudget(log, lastProgress)
	}
}

// checkWaitBudget resets the no-progress timer once it exceeds maxWait. The
// task never gives up on its own; it logs and keeps polling.
func (p *SummaryPoller) checkWaitBudget(log *logger.Logger, lastProgress time.Time) time.Time {
	if time.Since(lastProgress) <= p.maxWait {
		return lastProgress
	}
	p.waitBudgetResets.Add(1)
	log.Warn("Summary polling made no progress within wait budget; resetting",
		"max_wait", p.maxWait.String(),
		"resets", p.waitBudgetResets.Load(),
	)
	return time.Now()
}

func (p *SummaryPoller) persist(ctx context.Context, conversationID uuid.UUID, kind string, handle int64, summary string, processedIdx int, ordinals []OrdinalRef) error {
	ref := OrdinalRef{}
	if processedIdx >= 0 && processedIdx < len(ordinals) {
		ref = ordinals[processedIdx]
	} else if len(ordinals) > 0 {
		// Out-of-range index from the service; fall back to the first slot.
		ref = ordinals[0]
	}

	var latestID *uuid.UUID
	if ref.ID != uuid.Nil {
		latestID = &ref.ID
	}

	dbc := dbctx.Context{Ctx: ctx}
	_, err := p.summaries.AdvanceCursor(dbc, conversationID, kind, &handle, summary, latestID, ref.Seq)
	return err
}
