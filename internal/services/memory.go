package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

// MemoryService stores durable facts about a user gleaned from conversations
// and retrieves the relevant ones at generation time.
type MemoryService interface {
	Remember(dbc dbctx.Context, conversationID *uuid.UUID, kind, key, value string, confidence float64) (*types.MemoryItem, error)
	Search(dbc dbctx.Context, query string, limit int) ([]*types.MemoryItem, error)
	List(dbc dbctx.Context, limit int) ([]*types.MemoryItem, error)
}

type memoryService struct {
	db       *gorm.DB
	log      *logger.Logger
	memories repos.MemoryItemRepo
}

func NewMemoryService(db *gorm.DB, baseLog *logger.Logger, memoryRepo repos.MemoryItemRepo) MemoryService {
	return &memoryService{
		db:       db,
		log:      baseLog.With("service", "MemoryService"),
		memories: memoryRepo,
	}
}

func (s *memoryService) Remember(dbc dbctx.Context, conversationID *uuid.UUID, kind, key, value string, confidence float64) (*types.MemoryItem, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("not authenticated")
	}

	kind = strings.TrimSpace(kind)
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return nil, fmt.Errorf("memory key and value required")
	}
	if kind == "" {
		kind = "fact"
	}
	if confidence <= 0 || confidence > 1 {
		confidence = 0.5
	}

	rows, err := s.memories.Create(dbc, []*types.MemoryItem{{
		ID:             uuid.New(),
		UserID:         rd.UserID,
		ConversationID: conversationID,
		Kind:           kind,
		Key:            key,
		Value:          value,
		Confidence:     confidence,
	}})
	if err != nil {
		return nil, fmt.Errorf("create memory: %w", err)
	}
	return rows[0], nil
}

func (s *memoryService) Search(dbc dbctx.Context, query string, limit int) ([]*types.MemoryItem, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("not authenticated")
	}
	if strings.TrimSpace(query) == "" {
		return s.memories.ListByUser(dbc, rd.UserID, limit)
	}
	return s.memories.LexicalSearch(dbc, rd.UserID, query, limit)
}

func (s *memoryService) List(dbc dbctx.Context, limit int) ([]*types.MemoryItem, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, fmt.Errorf("not authenticated")
	}
	return s.memories.ListByUser(dbc, rd.UserID, limit)
}
