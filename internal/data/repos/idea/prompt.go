package idea

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

type PromptRepo interface {
	Upsert(dbc dbctx.Context, row *types.Prompt) error
	GetByName(dbc dbctx.Context, name string) (*types.Prompt, error)
	List(dbc dbctx.Context) ([]*types.Prompt, error)
	DeleteByName(dbc dbctx.Context, name string) error
}

type promptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPromptRepo(db *gorm.DB, log *logger.Logger) PromptRepo {
	return &promptRepo{db: db, log: log.With("repo", "PromptRepo")}
}

func (r *promptRepo) Upsert(dbc dbctx.Context, row *types.Prompt) error {
	if row == nil || strings.TrimSpace(row.Name) == "" {
		return fmt.Errorf("missing prompt name")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	return txx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "description", "updated_at"}),
		}).
		Create(row).Error
}

func (r *promptRepo) GetByName(dbc dbctx.Context, name string) (*types.Prompt, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("missing prompt name")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Prompt
	err := txx.WithContext(dbc.Ctx).
		Model(&types.Prompt{}).
		Where("name = ?", name).
		First(&out).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *promptRepo) List(dbc dbctx.Context) ([]*types.Prompt, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Prompt
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Prompt{}).
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *promptRepo) DeleteByName(dbc dbctx.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("missing prompt name")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("name = ?", name).
		Delete(&types.Prompt{}).Error
}
