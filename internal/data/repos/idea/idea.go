package idea

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

type IdeaRepo interface {
	Create(dbc dbctx.Context, rows []*types.Idea) ([]*types.Idea, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Idea, error)
	GetByConversation(dbc dbctx.Context, conversationID uuid.UUID) (*types.Idea, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Idea, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	SoftDelete(dbc dbctx.Context, id uuid.UUID) error
}

type ideaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIdeaRepo(db *gorm.DB, log *logger.Logger) IdeaRepo {
	return &ideaRepo{db: db, log: log.With("repo", "IdeaRepo")}
}

func (r *ideaRepo) Create(dbc dbctx.Context, rows []*types.Idea) ([]*types.Idea, error) {
	if len(rows) == 0 {
		return []*types.Idea{}, nil
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

func (r *ideaRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Idea, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing idea_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Idea
	err := txx.WithContext(dbc.Ctx).
		Model(&types.Idea{}).
		Where("id = ?", id).
		First(&out).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *ideaRepo) GetByConversation(dbc dbctx.Context, conversationID uuid.UUID) (*types.Idea, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Idea
	err := txx.WithContext(dbc.Ctx).
		Model(&types.Idea{}).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		First(&out).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *ideaRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Idea, error) {
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
	var out []*types.Idea
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Idea{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ideaRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing idea_id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.Idea{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *ideaRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing idea_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Idea{}).Error
}
