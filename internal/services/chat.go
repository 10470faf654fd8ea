package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/ideaforge-backend/internal/clients/openai"
	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
	"github.com/yungbote/ideaforge-backend/internal/realtime"
)

const chatPromptName = "chat_refinement"

const defaultChatSystemPrompt = `You help a user refine a project idea through conversation.
Ask sharp questions, challenge weak assumptions, and keep the discussion
anchored on turning the idea into something buildable.`

// chatContextMessages bounds how much raw history goes into each reply; the
// rolling summary carries everything older.
const chatContextMessages = 30

type ChatService interface {
	CreateConversation(dbc dbctx.Context, title string) (*types.Conversation, error)
	ListConversations(dbc dbctx.Context, limit int) ([]*types.Conversation, error)
	GetConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) (*types.Conversation, []*types.ChatMessage, error)
	DeleteConversation(dbc dbctx.Context, conversationID uuid.UUID) error

	// SendMessage persists the user message plus an assistant placeholder and
	// streams the reply in the background; deltas arrive over the user's SSE
	// channel. Returns both rows immediately.
	SendMessage(dbc dbctx.Context, conversationID uuid.UUID, content string) (*types.ChatMessage, *types.ChatMessage, error)

	GetSummary(dbc dbctx.Context, conversationID uuid.UUID, kind string) (*types.ConversationSummary, error)
	// UpdateSummaryText is the manual-edit path: it overwrites text without
	// touching the summarizer cursor.
	UpdateSummaryText(dbc dbctx.Context, conversationID uuid.UUID, kind string, text string) error
}

type chatService struct {
	db  *gorm.DB
	log *logger.Logger

	conversations repos.ConversationRepo
	messages      repos.ChatMessageRepo
	summaries     repos.ConversationSummaryRepo
	prompts       repos.PromptRepo

	ai          openai.Client
	coordinator SummaryCoordinator
	notify      Notifier
}

func NewChatService(
	db *gorm.DB,
	baseLog *logger.Logger,
	conversationRepo repos.ConversationRepo,
	messageRepo repos.ChatMessageRepo,
	summaryRepo repos.ConversationSummaryRepo,
	promptRepo repos.PromptRepo,
	ai openai.Client,
	coordinator SummaryCoordinator,
	notify Notifier,
) ChatService {
	return &chatService{
		db:            db,
		log:           baseLog.With("service", "ChatService"),
		conversations: conversationRepo,
		messages:      messageRepo,
		summaries:     summaryRepo,
		prompts:       promptRepo,
		ai:            ai,
		coordinator:   coordinator,
		notify:        notify,
	}
}

func (s *chatService) CreateConversation(dbc dbctx.Context, title string) (*types.Conversation, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("not authenticated")
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = "New chat"
	}

	rows, err := s.conversations.Create(dbc, []*types.Conversation{{
		ID:            uuid.New(),
		UserID:        rd.UserID,
		Title:         title,
		Source:        "native",
		Status:        "active",
		NextSeq:       1,
		LastMessageAt: time.Now().UTC(),
	}})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return rows[0], nil
}

func (s *chatService) ListConversations(dbc dbctx.Context, limit int) ([]*types.Conversation, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("not authenticated")
	}
	return s.conversations.ListByUser(dbc, rd.UserID, limit)
}

func (s *chatService) GetConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) (*types.Conversation, []*types.ChatMessage, error) {
	conv, err := s.ownedConversation(dbc, conversationID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.ListByConversation(dbc, conversationID, limit)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

func (s *chatService) DeleteConversation(dbc dbctx.Context, conversationID uuid.UUID) error {
	if _, err := s.ownedConversation(dbc, conversationID); err != nil {
		return err
	}

	s.coordinator.DropConversation(conversationID)

	return s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		if err := s.messages.SoftDeleteByConversation(txc, conversationID); err != nil {
			return err
		}
		if err := s.summaries.DeleteByConversation(txc, conversationID); err != nil {
			return err
		}
		return s.conversations.SoftDelete(txc, conversationID)
	})
}

func (s *chatService) SendMessage(dbc dbctx.Context, conversationID uuid.UUID, content string) (*types.ChatMessage, *types.ChatMessage, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, nil, fmt.Errorf("not authenticated")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, fmt.Errorf("message content required")
	}

	conv, err := s.ownedConversation(dbc, conversationID)
	if err != nil {
		return nil, nil, err
	}

	maxSeq, err := s.messages.GetMaxSeq(dbc, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("allocate seq: %w", err)
	}

	userMsg := &types.ChatMessage{
		ID:             uuid.New(),
		ConversationID: conversationID,
		UserID:         rd.UserID,
		Seq:            maxSeq + 1,
		Role:           types.RoleUser,
		Status:         "complete",
		Content:        content,
	}
	assistantMsg := &types.ChatMessage{
		ID:             uuid.New(),
		ConversationID: conversationID,
		UserID:         rd.UserID,
		Seq:            maxSeq + 2,
		Role:           types.RoleAssistant,
		Status:         "streaming",
	}
	if _, err := s.messages.Create(dbc, []*types.ChatMessage{userMsg, assistantMsg}); err != nil {
		return nil, nil, fmt.Errorf("create messages: %w", err)
	}

	now := time.Now().UTC()
	_ = s.conversations.UpdateFields(dbc, conversationID, map[string]interface{}{
		"next_seq":        maxSeq + 3,
		"last_message_at": now,
	})

	go s.streamReply(conv, rd.UserID, assistantMsg)

	return userMsg, assistantMsg, nil
}

func (s *chatService) streamReply(conv *types.Conversation, userID uuid.UUID, assistantMsg *types.ChatMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	dbc := dbctx.Context{Ctx: ctx}
	log := s.log.With("conversation_id", conv.ID, "message_id", assistantMsg.ID)

	system, user, err := s.buildReplyPrompt(dbc, conv)
	if err != nil {
		log.Error("Failed to build reply prompt", "error", err)
		s.failAssistant(dbc, log, userID, assistantMsg)
		return
	}

	full, err := s.ai.StreamText(ctx, system, user, func(delta string) {
		s.notify.Publish(ctx, userID, realtime.EventChatDelta, map[string]any{
			"conversation_id": conv.ID,
			"message_id":      assistantMsg.ID,
			"delta":           delta,
		})
	})
	if err != nil {
		log.Error("Assistant reply stream failed", "error", err)
		s.failAssistant(dbc, log, userID, assistantMsg)
		return
	}

	if err := s.messages.UpdateFields(dbc, assistantMsg.ID, map[string]interface{}{
		"content": full,
		"status":  "complete",
	}); err != nil {
		log.Error("Failed to persist assistant reply", "error", err)
		return
	}

	s.notify.Publish(ctx, userID, realtime.EventChatCompleted, map[string]any{
		"conversation_id": conv.ID,
		"message_id":      assistantMsg.ID,
	})

	// The rolling summary trails the conversation; the coordinator's gates
	// decide whether this exchange actually triggers a summarizer call.
	if err := s.coordinator.AddMessagesToChatSummary(dbc, conv.ID); err != nil {
		log.Warn("Summary advance after reply failed", "error", err)
	}
}

func (s *chatService) failAssistant(dbc dbctx.Context, log *logger.Logger, userID uuid.UUID, assistantMsg *types.ChatMessage) {
	if err := s.messages.UpdateFields(dbc, assistantMsg.ID, map[string]interface{}{
		"status": "failed",
	}); err != nil {
		log.Error("Failed to mark assistant message failed", "error", err)
	}
	s.notify.Publish(dbc.Ctx, userID, realtime.EventChatCompleted, map[string]any{
		"conversation_id": assistantMsg.ConversationID,
		"message_id":      assistantMsg.ID,
		"failed":          true,
	})
}

func (s *chatService) buildReplyPrompt(dbc dbctx.Context, conv *types.Conversation) (string, string, error) {
	system := defaultChatSystemPrompt
	if s.prompts != nil {
		if p, err := s.prompts.GetByName(dbc, chatPromptName); err == nil && p != nil && strings.TrimSpace(p.Content) != "" {
			system = p.Content
		}
	}

	var b strings.Builder

	if summary, err := s.summaries.GetByConversationAndKind(dbc, conv.ID, types.SummaryKindChat); err == nil && summary != nil && strings.TrimSpace(summary.Summary) != "" {
		b.WriteString("Summary of the conversation so far:\n")
		b.WriteString(summary.Summary)
		b.WriteString("\n\n")
	}

	msgs, err := s.messages.ListByConversation(dbc, conv.ID, chatContextMessages)
	if err != nil {
		return "", "", err
	}

	b.WriteString("Recent messages:\n")
	for _, m := range msgs {
		if m.Status != "complete" || strings.TrimSpace(m.Content) == "" {
			continue
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nReply as the assistant.")

	return system, b.String(), nil
}

func (s *chatService) GetSummary(dbc dbctx.Context, conversationID uuid.UUID, kind string) (*types.ConversationSummary, error) {
	if _, err := s.ownedConversation(dbc, conversationID); err != nil {
		return nil, err
	}
	row, err := s.summaries.GetByConversationAndKind(dbc, conversationID, kind)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("summary not found")
	}
	return row, nil
}

func (s *chatService) UpdateSummaryText(dbc dbctx.Context, conversationID uuid.UUID, kind string, text string) error {
	if _, err := s.ownedConversation(dbc, conversationID); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("summary text required")
	}
	return s.summaries.SetSummaryText(dbc, conversationID, kind, text)
}

func (s *chatService) ownedConversation(dbc dbctx.Context, conversationID uuid.UUID) (*types.Conversation, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("not authenticated")
	}
	conv, err := s.conversations.GetByID(dbc, conversationID)
	if err != nil || conv == nil || conv.UserID != rd.UserID {
		return nil, fmt.Errorf("conversation not found")
	}
	return conv, nil
}
