package chat

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

type MemoryItemRepo interface {
	Create(dbc dbctx.Context, rows []*types.MemoryItem) ([]*types.MemoryItem, error)
	// LexicalSearch is a Postgres full-text lookup over memory values, ranked by
	// ts_rank. Used to pull relevant memories into the generation context.
	LexicalSearch(dbc dbctx.Context, userID uuid.UUID, query string, limit int) ([]*types.MemoryItem, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.MemoryItem, error)
}

type memoryItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMemoryItemRepo(db *gorm.DB, log *logger.Logger) MemoryItemRepo {
	return &memoryItemRepo{db: db, log: log.With("repo", "MemoryItemRepo")}
}

func (r *memoryItemRepo) Create(dbc dbctx.Context, rows []*types.MemoryItem) ([]*types.MemoryItem, error) {
	if len(rows) == 0 {
		return []*types.MemoryItem{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *memoryItemRepo) LexicalSearch(dbc dbctx.Context, userID uuid.UUID, query string, limit int) ([]*types.MemoryItem, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if strings.TrimSpace(query) == "" {
		return []*types.MemoryItem{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}

	sql := fmt.Sprintf(`
		SELECT memory_item.*
		FROM memory_item
		WHERE memory_item.user_id = ?
		  AND memory_item.deleted_at IS NULL
		  AND to_tsvector('english', memory_item.key || ' ' || memory_item.value) @@ plainto_tsquery('english', ?)
		ORDER BY ts_rank(to_tsvector('english', memory_item.key || ' ' || memory_item.value), plainto_tsquery('english', ?)) DESC,
		         memory_item.updated_at DESC
		LIMIT %d;
	`, limit)

	var out []*types.MemoryItem
	if err := txx.WithContext(dbc.Ctx).Raw(sql, userID, query, query).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *memoryItemRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.MemoryItem, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.MemoryItem
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.MemoryItem{}).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
