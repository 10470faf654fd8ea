package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/ideaforge-backend/internal/clients/linear"
	"github.com/yungbote/ideaforge-backend/internal/clients/openai"
	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
	"github.com/yungbote/ideaforge-backend/internal/realtime"
)

// ErrModelLimitConflict signals that the transcript does not fit the target
// model's context window and the caller has not opted in to summarization.
var ErrModelLimitConflict = errors.New("transcript exceeds model context window")

const ideaPromptName = "idea_generation"

const defaultIdeaSystemPrompt = `You turn a conversation about a potential project into a concrete project draft.
Start with a single markdown H1 line holding a short project title. Then describe
the problem, the proposed approach, key features, and open risks. Be specific;
draw only on the conversation content provided.`

// IdeaGenerationService decides how a project draft gets generated from a
// conversation: directly from the full transcript when it fits the model, or
// from a one-shot summary once the caller accepts summarization.
type IdeaGenerationService interface {
	GenerateFromConversation(dbc dbctx.Context, conversationID uuid.UUID, model string, acceptSummarization bool) (*types.Idea, error)
	RetryIdea(dbc dbctx.Context, ideaID uuid.UUID) (*types.Idea, error)
	PushToLinear(dbc dbctx.Context, ideaID uuid.UUID) (*types.Idea, error)
}

type ideaGenerationService struct {
	db  *gorm.DB
	log *logger.Logger

	conversations repos.ConversationRepo
	messages      repos.ChatMessageRepo
	ideas         repos.IdeaRepo
	prompts       repos.PromptRepo
	memories      repos.MemoryItemRepo

	ai          openai.Client
	linear      linear.Client
	catalog     *ModelCatalog
	coordinator SummaryCoordinator
	notify      Notifier
}

func NewIdeaGenerationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	conversationRepo repos.ConversationRepo,
	messageRepo repos.ChatMessageRepo,
	ideaRepo repos.IdeaRepo,
	promptRepo repos.PromptRepo,
	memoryRepo repos.MemoryItemRepo,
	ai openai.Client,
	linearClient linear.Client,
	catalog *ModelCatalog,
	coordinator SummaryCoordinator,
	notify Notifier,
) IdeaGenerationService {
	return &ideaGenerationService{
		db:            db,
		log:           baseLog.With("service", "IdeaGenerationService"),
		conversations: conversationRepo,
		messages:      messageRepo,
		ideas:         ideaRepo,
		prompts:       promptRepo,
		memories:      memoryRepo,
		ai:            ai,
		linear:        linearClient,
		catalog:       catalog,
		coordinator:   coordinator,
		notify:        notify,
	}
}

func (s *ideaGenerationService) GenerateFromConversation(dbc dbctx.Context, conversationID uuid.UUID, model string, acceptSummarization bool) (*types.Idea, error) {
	return s.generate(dbc, conversationID, model, acceptSummarization, nil)
}

// generate drives one generation round. existing is non-nil on retry, in which
// case the row is reused instead of creating a fresh one.
func (s *ideaGenerationService) generate(dbc dbctx.Context, conversationID uuid.UUID, model string, acceptSummarization bool, existing *types.Idea) (*types.Idea, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("not authenticated")
	}
	log := s.log.With("conversation_id", conversationID, "user_id", rd.UserID)

	conv, err := s.conversations.GetByID(dbc, conversationID)
	if err != nil || conv == nil || conv.UserID != rd.UserID {
		return nil, fmt.Errorf("conversation not found")
	}

	msgs, err := s.messages.ListForSummary(dbc, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("conversation has no messages")
	}

	system := s.systemPrompt(dbc)
	transcript := renderTranscript(msgs)
	memCtx := s.memoryContext(dbc, rd.UserID, conv.Title)

	spec := s.catalog.Resolve(model)
	estimated := EstimateTokens(system, transcript, memCtx) + spec.MaxCompletionTokens

	if estimated <= spec.ContextWindow {
		return s.generateDirect(dbc, log, conv, rd.UserID, spec, system, transcript, memCtx, existing)
	}

	if !acceptSummarization {
		log.Info("Transcript over model budget; summarization not accepted",
			"estimated_tokens", estimated,
			"context_window", spec.ContextWindow,
			"model", spec.Name,
		)
		return nil, ErrModelLimitConflict
	}

	return s.generateViaSummary(dbc, log, conv, rd.UserID, spec, system, memCtx, existing)
}

// generateDirect runs the model on the full transcript and, separately, kicks
// the rolling summary so later chat on this conversation starts warm.
func (s *ideaGenerationService) generateDirect(dbc dbctx.Context, log *logger.Logger, conv *types.Conversation, userID uuid.UUID, spec ModelSpec, system, transcript, memCtx string, existing *types.Idea) (*types.Idea, error) {
	idea, err := s.ensureGenerating(dbc, conv.ID, userID, spec.Name, existing)
	if err != nil {
		return nil, err
	}
	s.notify.Publish(dbc.Ctx, userID, realtime.EventIdeaGenerating, map[string]any{"idea_id": idea.ID})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.coordinator.AddMessagesToChatSummary(dbctx.Context{Ctx: ctx}, conv.ID); err != nil {
			log.Warn("Warm summary kickoff failed", "error", err)
		}
	}()

	user := buildIdeaUserPrompt(transcript, memCtx, false)
	content, err := s.ai.GenerateTextWithModel(dbc.Ctx, spec.Name, system, user)
	if err != nil {
		return s.markFailed(dbc, log, idea, err)
	}

	return s.markReady(dbc, log, idea, content)
}

// generateViaSummary creates a placeholder idea, starts a one-shot summary,
// and lets its completion callback run the generation off the summary text.
func (s *ideaGenerationService) generateViaSummary(dbc dbctx.Context, log *logger.Logger, conv *types.Conversation, userID uuid.UUID, spec ModelSpec, system, memCtx string, existing *types.Idea) (*types.Idea, error) {
	idea, err := s.ensureGenerating(dbc, conv.ID, userID, spec.Name, existing)
	if err != nil {
		return nil, err
	}
	s.notify.Publish(dbc.Ctx, userID, realtime.EventIdeaGenerating, map[string]any{"idea_id": idea.ID, "summarizing": true})

	ideaID := idea.ID
	err = s.coordinator.SummarizeImportedConversation(dbc, conv.ID, func(ctx context.Context, summary string) {
		cbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Minute)
		defer cancel()
		cbDbc := dbctx.Context{Ctx: cbCtx}

		row, err := s.ideas.GetByID(cbDbc, ideaID)
		if err != nil || row == nil {
			log.Error("Idea vanished before summary completion", "idea_id", ideaID, "error", err)
			return
		}

		user := buildIdeaUserPrompt(summary, memCtx, true)
		content, err := s.ai.GenerateTextWithModel(cbCtx, spec.Name, system, user)
		if err != nil {
			_, _ = s.markFailed(cbDbc, log, row, err)
			return
		}
		_, _ = s.markReady(cbDbc, log, row, content)
	})
	if err != nil {
		return s.markFailed(dbc, log, idea, err)
	}

	return idea, nil
}

func (s *ideaGenerationService) RetryIdea(dbc dbctx.Context, ideaID uuid.UUID) (*types.Idea, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("not authenticated")
	}

	idea, err := s.ideas.GetByID(dbc, ideaID)
	if err != nil || idea == nil || idea.UserID != rd.UserID {
		return nil, fmt.Errorf("idea not found")
	}
	if idea.Status != types.IdeaStatusFailed {
		return nil, fmt.Errorf("only failed ideas can be retried")
	}

	if err := s.ideas.UpdateFields(dbc, idea.ID, map[string]interface{}{
		"status": types.IdeaStatusGenerating,
		"title":  "",
	}); err != nil {
		return nil, err
	}
	idea.Status = types.IdeaStatusGenerating
	idea.Title = ""

	return s.generate(dbc, idea.ConversationID, idea.Model, true, idea)
}

func (s *ideaGenerationService) PushToLinear(dbc dbctx.Context, ideaID uuid.UUID) (*types.Idea, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("not authenticated")
	}
	if s.linear == nil {
		return nil, fmt.Errorf("linear integration not configured")
	}

	idea, err := s.ideas.GetByID(dbc, ideaID)
	if err != nil || idea == nil || idea.UserID != rd.UserID {
		return nil, fmt.Errorf("idea not found")
	}
	if idea.Status != types.IdeaStatusReady {
		return nil, fmt.Errorf("idea is not ready to push")
	}

	issue, err := s.linear.CreateIssue(dbc.Ctx, idea.Title, idea.Content)
	if err != nil {
		return nil, fmt.Errorf("push to linear: %w", err)
	}

	updates := map[string]interface{}{
		"status":           types.IdeaStatusPushed,
		"linear_issue_id":  issue.ID,
		"linear_issue_url": issue.URL,
	}
	if err := s.ideas.UpdateFields(dbc, idea.ID, updates); err != nil {
		return nil, err
	}
	idea.Status = types.IdeaStatusPushed
	idea.LinearIssueID = issue.ID
	idea.LinearIssueURL = issue.URL

	s.notify.Publish(dbc.Ctx, rd.UserID, realtime.EventIdeaPushed, map[string]any{
		"idea_id":    idea.ID,
		"identifier": issue.Identifier,
		"url":        issue.URL,
	})
	return idea, nil
}

// -------------------- helpers --------------------

// ensureGenerating reuses the retried row when one is supplied, otherwise
// creates a fresh one in "generating".
func (s *ideaGenerationService) ensureGenerating(dbc dbctx.Context, conversationID, userID uuid.UUID, model string, existing *types.Idea) (*types.Idea, error) {
	if existing != nil {
		return existing, nil
	}
	return s.createGenerating(dbc, conversationID, userID, model)
}

func (s *ideaGenerationService) createGenerating(dbc dbctx.Context, conversationID, userID uuid.UUID, model string) (*types.Idea, error) {
	idea := &types.Idea{
		ID:             uuid.New(),
		UserID:         userID,
		ConversationID: conversationID,
		Status:         types.IdeaStatusGenerating,
		Model:          model,
	}
	rows, err := s.ideas.Create(dbc, []*types.Idea{idea})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

func (s *ideaGenerationService) markReady(dbc dbctx.Context, log *logger.Logger, idea *types.Idea, content string) (*types.Idea, error) {
	title := titleFromContent(content)
	updates := map[string]interface{}{
		"status":  types.IdeaStatusReady,
		"title":   title,
		"content": content,
	}
	if err := s.ideas.UpdateFields(dbc, idea.ID, updates); err != nil {
		return nil, err
	}
	idea.Status = types.IdeaStatusReady
	idea.Title = title
	idea.Content = content

	log.Info("Idea generated", "idea_id", idea.ID, "title", title)
	s.notify.Publish(dbc.Ctx, idea.UserID, realtime.EventIdeaReady, map[string]any{"idea_id": idea.ID, "title": title})
	return idea, nil
}

// markFailed persists the failure placeholder so the record is never left
// idea-less, then reports the original error upward.
func (s *ideaGenerationService) markFailed(dbc dbctx.Context, log *logger.Logger, idea *types.Idea, cause error) (*types.Idea, error) {
	log.Error("Idea generation failed", "idea_id", idea.ID, "error", cause)

	updates := map[string]interface{}{
		"status": types.IdeaStatusFailed,
		"title":  types.FailedPlaceholderTitle,
	}
	if err := s.ideas.UpdateFields(dbc, idea.ID, updates); err != nil {
		log.Error("Failed to persist idea failure state", "idea_id", idea.ID, "error", err)
	}
	idea.Status = types.IdeaStatusFailed
	idea.Title = types.FailedPlaceholderTitle

	s.notify.Publish(dbc.Ctx, idea.UserID, realtime.EventIdeaFailed, map[string]any{"idea_id": idea.ID})
	return idea, cause
}

func (s *ideaGenerationService) systemPrompt(dbc dbctx.Context) string {
	if s.prompts != nil {
		if p, err := s.prompts.GetByName(dbc, ideaPromptName); err == nil && p != nil && strings.TrimSpace(p.Content) != "" {
			return p.Content
		}
	}
	return defaultIdeaSystemPrompt
}

func (s *ideaGenerationService) memoryContext(dbc dbctx.Context, userID uuid.UUID, query string) string {
	if s.memories == nil || strings.TrimSpace(query) == "" {
		return ""
	}
	hits, err := s.memories.LexicalSearch(dbc, userID, query, 10)
	if err != nil || len(hits) == 0 {
		return ""
	}
	var b strings.Builder
	for _, h := range hits {
		b.WriteString("- ")
		b.WriteString(h.Key)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\n")
	}
	return b.String()
}

func renderTranscript(msgs []*types.ChatMessage) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func buildIdeaUserPrompt(body, memCtx string, summarized bool) string {
	var b strings.Builder
	if summarized {
		b.WriteString("Conversation summary:\n")
	} else {
		b.WriteString("Conversation transcript:\n")
	}
	b.WriteString(body)
	if strings.TrimSpace(memCtx) != "" {
		b.WriteString("\n\nWhat we know about this user:\n")
		b.WriteString(memCtx)
	}
	return b.String()
}

func titleFromContent(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "#"))
		if line == "" {
			continue
		}
		if len(line) > 160 {
			line = strings.TrimSpace(line[:160])
		}
		return line
	}
	return "Untitled Idea"
}
