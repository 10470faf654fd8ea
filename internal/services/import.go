package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
	"github.com/yungbote/ideaforge-backend/internal/realtime"
)

// ImportService turns provider transcript exports into conversations. Re-import
// replaces the transcript wholesale: prior messages, summaries, and any live
// summarization state of the conversation are dropped first.
type ImportService interface {
	ImportTranscript(dbc dbctx.Context, provider string, sourceURL string, raw []byte) (*types.Conversation, error)
	ReimportTranscript(dbc dbctx.Context, conversationID uuid.UUID, raw []byte) (*types.Conversation, error)
	Providers() []string
}

type importService struct {
	db  *gorm.DB
	log *logger.Logger

	conversations repos.ConversationRepo
	messages      repos.ChatMessageRepo
	summaries     repos.ConversationSummaryRepo

	parsers     map[string]TranscriptParser
	coordinator SummaryCoordinator
	notify      Notifier
}

func NewImportService(
	db *gorm.DB,
	baseLog *logger.Logger,
	conversationRepo repos.ConversationRepo,
	messageRepo repos.ChatMessageRepo,
	summaryRepo repos.ConversationSummaryRepo,
	parsers []TranscriptParser,
	coordinator SummaryCoordinator,
	notify Notifier,
) ImportService {
	byProvider := make(map[string]TranscriptParser, len(parsers))
	for _, p := range parsers {
		byProvider[p.Provider()] = p
	}
	return &importService{
		db:            db,
		log:           baseLog.With("service", "ImportService"),
		conversations: conversationRepo,
		messages:      messageRepo,
		summaries:     summaryRepo,
		parsers:       byProvider,
		coordinator:   coordinator,
		notify:        notify,
	}
}

func (s *importService) Providers() []string {
	out := make([]string, 0, len(s.parsers))
	for name := range s.parsers {
		out = append(out, name)
	}
	return out
}

func (s *importService) ImportTranscript(dbc dbctx.Context, provider string, sourceURL string, raw []byte) (*types.Conversation, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("not authenticated")
	}

	parser, ok := s.parsers[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return nil, fmt.Errorf("unknown transcript provider %q", provider)
	}

	parsed, err := parser.Parse(raw)
	if err != nil {
		return nil, err
	}

	title := parsed.Title
	if title == "" {
		title = "Imported conversation"
	}

	s.notify.Publish(dbc.Ctx, rd.UserID, realtime.EventImportStarted, map[string]any{"provider": parser.Provider()})

	var conv *types.Conversation
	err = s.transact(dbc, func(txc dbctx.Context) error {
		now := time.Now().UTC()
		rows, err := s.conversations.Create(txc, []*types.Conversation{{
			ID:            uuid.New(),
			UserID:        rd.UserID,
			Title:         title,
			Source:        parser.Provider(),
			SourceURL:     strings.TrimSpace(sourceURL),
			Status:        "imported",
			NextSeq:       int64(len(parsed.Messages)) + 1,
			LastMessageAt: now,
		}})
		if err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		conv = rows[0]
		return s.insertMessages(txc, conv, rd.UserID, parsed.Messages, 1)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Imported transcript",
		"conversation_id", conv.ID,
		"provider", parser.Provider(),
		"messages", len(parsed.Messages),
	)
	s.notify.Publish(dbc.Ctx, rd.UserID, realtime.EventImportFinished, map[string]any{
		"conversation_id": conv.ID,
		"messages":        len(parsed.Messages),
	})
	return conv, nil
}

func (s *importService) ReimportTranscript(dbc dbctx.Context, conversationID uuid.UUID, raw []byte) (*types.Conversation, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("not authenticated")
	}

	conv, err := s.conversations.GetByID(dbc, conversationID)
	if err != nil || conv == nil || conv.UserID != rd.UserID {
		return nil, fmt.Errorf("conversation not found")
	}

	parser, ok := s.parsers[conv.Source]
	if !ok {
		return nil, fmt.Errorf("conversation source %q has no parser", conv.Source)
	}

	parsed, err := parser.Parse(raw)
	if err != nil {
		return nil, err
	}

	// Stop any in-flight summarization before the transcript changes under it.
	s.coordinator.DropConversation(conversationID)

	s.notify.Publish(dbc.Ctx, rd.UserID, realtime.EventImportStarted, map[string]any{
		"conversation_id": conversationID,
		"provider":        parser.Provider(),
	})

	err = s.transact(dbc, func(txc dbctx.Context) error {
		if err := s.messages.SoftDeleteByConversation(txc, conversationID); err != nil {
			return fmt.Errorf("clear messages: %w", err)
		}
		if err := s.summaries.DeleteByConversation(txc, conversationID); err != nil {
			return fmt.Errorf("clear summaries: %w", err)
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"next_seq":        int64(len(parsed.Messages)) + 1,
			"last_message_at": now,
		}
		if parsed.Title != "" {
			updates["title"] = parsed.Title
		}
		if err := s.conversations.UpdateFields(txc, conversationID, updates); err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}

		return s.insertMessages(txc, conv, rd.UserID, parsed.Messages, 1)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Re-imported transcript", "conversation_id", conversationID, "messages", len(parsed.Messages))
	s.notify.Publish(dbc.Ctx, rd.UserID, realtime.EventImportFinished, map[string]any{
		"conversation_id": conversationID,
		"messages":        len(parsed.Messages),
	})
	return conv, nil
}

func (s *importService) insertMessages(txc dbctx.Context, conv *types.Conversation, userID uuid.UUID, parsed []ParsedMessage, firstSeq int64) error {
	rows := make([]*types.ChatMessage, 0, len(parsed))
	for i, m := range parsed {
		rows = append(rows, &types.ChatMessage{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			UserID:         userID,
			Seq:            firstSeq + int64(i),
			Role:           m.Role,
			Status:         "complete",
			Content:        m.Content,
		})
	}
	if _, err := s.messages.Create(txc, rows); err != nil {
		return fmt.Errorf("create messages: %w", err)
	}
	return nil
}

func (s *importService) transact(dbc dbctx.Context, fn func(txc dbctx.Context) error) error {
	if dbc.Tx != nil {
		return fn(dbc)
	}
	return s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
	})
}
