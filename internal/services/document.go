package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/ideaforge-backend/internal/clients/metacognition"
	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

// maxDocumentUploadChars bounds what goes to the summarizer verbatim; longer
// documents are map-reduced down to a summary first.
const maxDocumentUploadChars = 60000

// DocumentService attaches supporting documents to a conversation's summary
// context: the document is uploaded to the summarizer service and linked to
// the conversation's summary handle so later summarization rounds can draw
// on it.
type DocumentService interface {
	AttachDocument(dbc dbctx.Context, conversationID uuid.UUID, content, description, documentType string) (int64, error)
}

type documentService struct {
	db  *gorm.DB
	log *logger.Logger

	conversations repos.ConversationRepo
	summaries     repos.ConversationSummaryRepo

	meta      metacognition.Client
	reduction TextReductionService
}

func NewDocumentService(
	db *gorm.DB,
	baseLog *logger.Logger,
	conversationRepo repos.ConversationRepo,
	summaryRepo repos.ConversationSummaryRepo,
	meta metacognition.Client,
	reduction TextReductionService,
) DocumentService {
	return &documentService{
		db:            db,
		log:           baseLog.With("service", "DocumentService"),
		conversations: conversationRepo,
		summaries:     summaryRepo,
		meta:          meta,
		reduction:     reduction,
	}
}

func (s *documentService) AttachDocument(dbc dbctx.Context, conversationID uuid.UUID, content, description, documentType string) (int64, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return 0, fmt.Errorf("not authenticated")
	}
	if s.meta == nil {
		return 0, fmt.Errorf("summarizer service not configured")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return 0, fmt.Errorf("document content required")
	}
	if documentType == "" {
		documentType = "text"
	}

	conv, err := s.conversations.GetByID(dbc, conversationID)
	if err != nil || conv == nil || conv.UserID != rd.UserID {
		return 0, fmt.Errorf("conversation not found")
	}

	if len(content) > maxDocumentUploadChars {
		s.log.Info("Document over upload budget; summarizing first",
			"conversation_id", conversationID,
			"chars", len(content),
		)
		reduced, err := s.reduction.SummarizeDocument(dbc.Ctx, content)
		if err != nil {
			return 0, fmt.Errorf("summarize document: %w", err)
		}
		content = reduced
	}

	docID, err := s.meta.UploadDocument(dbc.Ctx, content, strings.TrimSpace(description), documentType, nil)
	if err != nil {
		return 0, fmt.Errorf("upload document: %w", err)
	}

	// Linking requires the conversation to already have a summarizer handle.
	row, err := s.summaries.GetByConversationAndKind(dbc, conversationID, types.SummaryKindChat)
	if err != nil {
		return 0, err
	}
	if row != nil && row.ExternalID != nil {
		if err := s.meta.LinkDocument(dbc.Ctx, *row.ExternalID, docID); err != nil {
			return 0, fmt.Errorf("link document: %w", err)
		}
	} else {
		s.log.Info("Conversation has no summary handle yet; document will link on next summary start",
			"conversation_id", conversationID,
			"document_id", docID,
		)
	}

	if err := s.recordDocument(dbc, conv, docID); err != nil {
		s.log.Warn("Failed to record document on conversation metadata", "error", err)
	}
	return docID, nil
}

// recordDocument appends the uploaded document id to the conversation's
// metadata so pending links can be replayed when a summary handle appears.
func (s *documentService) recordDocument(dbc dbctx.Context, conv *types.Conversation, docID int64) error {
	meta := map[string]any{}
	if len(conv.Metadata) > 0 {
		_ = json.Unmarshal(conv.Metadata, &meta)
	}

	var ids []int64
	if raw, ok := meta["document_ids"].([]any); ok {
		for _, v := range raw {
			if f, ok := v.(float64); ok {
				ids = append(ids, int64(f))
			}
		}
	}
	ids = append(ids, docID)
	meta["document_ids"] = ids

	b, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.conversations.UpdateFields(dbc, conv.ID, map[string]interface{}{
		"metadata": datatypes.JSON(b),
	})
}
