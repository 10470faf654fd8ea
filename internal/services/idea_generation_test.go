package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/ideaforge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/realtime"
)

type ideaTestEnv struct {
	svc     IdeaGenerationService
	convs   *fakeConversationRepo
	msgs    *fakeMessageRepo
	ideas   *fakeIdeaRepo
	ai      *fakeAIClient
	backend *fakeBackend
	notify  *recordingNotifier
	userID  uuid.UUID
}

func newIdeaTestEnv(t *testing.T, backend *fakeBackend) *ideaTestEnv {
	t.Helper()
	log := testutil.Logger(t)

	env := &ideaTestEnv{
		convs:   newFakeConversationRepo(),
		msgs:    &fakeMessageRepo{},
		ideas:   newFakeIdeaRepo(),
		ai:      &fakeAIClient{},
		backend: backend,
		notify:  &recordingNotifier{},
		userID:  uuid.New(),
	}

	catalog, err := LoadModelCatalog(log)
	if err != nil {
		t.Fatalf("LoadModelCatalog: %v", err)
	}

	coord := NewSummaryCoordinator(nil, log, env.msgs, newFakeSummaryRepo(), backend)
	t.Cleanup(coord.Close)

	env.svc = NewIdeaGenerationService(
		nil, log,
		env.convs, env.msgs, env.ideas, newFakePromptRepo(), &fakeMemoryRepo{},
		env.ai, nil, catalog, coord, env.notify,
	)
	return env
}

func (env *ideaTestEnv) authedDbc() dbctx.Context {
	ctx := ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: env.userID, TokenID: uuid.New()})
	return dbctx.Context{Ctx: ctx}
}

func (env *ideaTestEnv) seedConversation(t *testing.T, messages int, contentSize int) uuid.UUID {
	t.Helper()
	convID := uuid.New()
	_, err := env.convs.Create(dbctx.Context{Ctx: context.Background()}, []*types.Conversation{{
		ID:     convID,
		UserID: env.userID,
		Title:  "Imported chat",
		Source: "chatgpt",
	}})
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	body := strings.Repeat("x", contentSize)
	rows := make([]*types.ChatMessage, 0, messages)
	for i := 0; i < messages; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		rows = append(rows, &types.ChatMessage{
			ID:             uuid.New(),
			ConversationID: convID,
			UserID:         env.userID,
			Seq:            int64(i + 1),
			Role:           role,
			Status:         "complete",
			Content:        body,
		})
	}
	_, _ = env.msgs.Create(dbctx.Context{Ctx: context.Background()}, rows)
	return convID
}

func TestGenerateDirectWhenTranscriptFits(t *testing.T) {
	backend := &fakeBackend{blocking: true, script: blockingScript(1, "s")}
	env := newIdeaTestEnv(t, backend)
	convID := env.seedConversation(t, 6, 200)

	env.ai.response = "# Trail Mapper\n\nAn app for mapping local trails."

	idea, err := env.svc.GenerateFromConversation(env.authedDbc(), convID, "gpt-4o", false)
	if err != nil {
		t.Fatalf("GenerateFromConversation: %v", err)
	}
	if idea.Status != types.IdeaStatusReady {
		t.Fatalf("idea status = %q, want ready", idea.Status)
	}
	if idea.Title != "Trail Mapper" {
		t.Fatalf("idea title = %q", idea.Title)
	}
	if env.ai.generateCount() != 1 {
		t.Fatalf("generation calls = %d, want 1", env.ai.generateCount())
	}
	if !env.notify.seen(realtime.EventIdeaReady) {
		t.Fatal("IdeaReady event not published")
	}
}

func TestModelLimitConflictWithoutOptIn(t *testing.T) {
	backend := &fakeBackend{blocking: true, script: blockingScript(1, "s")}
	env := newIdeaTestEnv(t, backend)
	// ~600k chars ≈ 150k tokens: over gpt-4o's window.
	convID := env.seedConversation(t, 6, 100000)

	_, err := env.svc.GenerateFromConversation(env.authedDbc(), convID, "gpt-4o", false)
	if !errors.Is(err, ErrModelLimitConflict) {
		t.Fatalf("err = %v, want ErrModelLimitConflict", err)
	}

	// Conflict means stop: no model call, no idea record, no summarization.
	if env.ai.generateCount() != 0 {
		t.Fatalf("generation calls = %d, want 0", env.ai.generateCount())
	}
	ideas, _ := env.ideas.ListByUser(env.authedDbc(), env.userID, 10)
	if len(ideas) != 0 {
		t.Fatalf("ideas created = %d, want 0", len(ideas))
	}
	if got := backend.callCount(); got != 0 {
		t.Fatalf("summarizer calls = %d, want 0", got)
	}
}

func TestOverBudgetWithOptInGeneratesFromSummary(t *testing.T) {
	backend := &fakeBackend{blocking: true, script: blockingScript(2, "condensed transcript")}
	env := newIdeaTestEnv(t, backend)
	convID := env.seedConversation(t, 6, 100000)

	env.ai.response = "# Summarized Idea\n\nBuilt from the summary."

	idea, err := env.svc.GenerateFromConversation(env.authedDbc(), convID, "gpt-4o", true)
	if err != nil {
		t.Fatalf("GenerateFromConversation: %v", err)
	}

	// Blocking backend: the completion callback ran inline.
	stored, _ := env.ideas.GetByID(env.authedDbc(), idea.ID)
	if stored.Status != types.IdeaStatusReady {
		t.Fatalf("idea status = %q, want ready", stored.Status)
	}
	if stored.Title != "Summarized Idea" {
		t.Fatalf("idea title = %q", stored.Title)
	}
	if env.ai.generateCount() != 1 {
		t.Fatalf("generation calls = %d, want 1", env.ai.generateCount())
	}
	if len(backend.advanceCalls()) != 1 {
		t.Fatalf("summarizer advances = %d, want 1", len(backend.advanceCalls()))
	}
}

func TestGenerationFailurePersistsPlaceholder(t *testing.T) {
	backend := &fakeBackend{blocking: true, script: blockingScript(1, "s")}
	env := newIdeaTestEnv(t, backend)
	convID := env.seedConversation(t, 6, 200)

	env.ai.fail = true

	idea, err := env.svc.GenerateFromConversation(env.authedDbc(), convID, "gpt-4o", false)
	if err == nil {
		t.Fatal("expected generation error")
	}
	if idea == nil {
		t.Fatal("failed generation must still return the placeholder idea")
	}

	stored, _ := env.ideas.GetByID(env.authedDbc(), idea.ID)
	if stored == nil {
		t.Fatal("idea record missing after failure")
	}
	if stored.Status != types.IdeaStatusFailed {
		t.Fatalf("idea status = %q, want failed", stored.Status)
	}
	if stored.Title != types.FailedPlaceholderTitle {
		t.Fatalf("idea title = %q, want %q", stored.Title, types.FailedPlaceholderTitle)
	}
	if !env.notify.seen(realtime.EventIdeaFailed) {
		t.Fatal("IdeaFailed event not published")
	}
}

func TestRetryReusesFailedIdeaRow(t *testing.T) {
	backend := &fakeBackend{blocking: true, script: blockingScript(1, "s")}
	env := newIdeaTestEnv(t, backend)
	convID := env.seedConversation(t, 6, 200)

	env.ai.fail = true
	failed, err := env.svc.GenerateFromConversation(env.authedDbc(), convID, "gpt-4o", false)
	if err == nil {
		t.Fatal("expected generation error")
	}

	env.ai.fail = false
	env.ai.response = "# Second Attempt\n\nWorked this time."

	retried, err := env.svc.RetryIdea(env.authedDbc(), failed.ID)
	if err != nil {
		t.Fatalf("RetryIdea: %v", err)
	}
	if retried.ID != failed.ID {
		t.Fatalf("retry produced idea %s, want the original %s reused", retried.ID, failed.ID)
	}

	// Exactly one row: the failed record was recycled, not duplicated.
	ideas, _ := env.ideas.ListByUser(env.authedDbc(), env.userID, 10)
	if len(ideas) != 1 {
		t.Fatalf("idea rows after retry = %d, want 1", len(ideas))
	}
	stored, _ := env.ideas.GetByID(env.authedDbc(), failed.ID)
	if stored.Status != types.IdeaStatusReady {
		t.Fatalf("idea status after retry = %q, want ready", stored.Status)
	}
	if stored.Title != "Second Attempt" {
		t.Fatalf("idea title after retry = %q", stored.Title)
	}
}

func TestDirectGenerationKicksWarmSummary(t *testing.T) {
	backend := &fakeBackend{blocking: true, script: blockingScript(1, "warm")}
	env := newIdeaTestEnv(t, backend)
	// Enough messages to clear the size floor so the warm summary actually runs.
	convID := env.seedConversation(t, 25, 200)

	if _, err := env.svc.GenerateFromConversation(env.authedDbc(), convID, "gpt-4o", false); err != nil {
		t.Fatalf("GenerateFromConversation: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(backend.advanceCalls()) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	calls := backend.advanceCalls()
	if len(calls) != 1 || calls[0].Count != 25 {
		t.Fatalf("warm summary advances = %+v, want one cold-start batch of 25", calls)
	}
}
