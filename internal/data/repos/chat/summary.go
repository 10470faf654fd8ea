package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

type ConversationSummaryRepo interface {
	GetByConversationAndKind(dbc dbctx.Context, conversationID uuid.UUID, kind string) (*types.ConversationSummary, error)
	Create(dbc dbctx.Context, row *types.ConversationSummary) (*types.ConversationSummary, error)
	// AdvanceCursor overwrites the summary text together with a forward move of
	// the cursor. The update is guarded so latest_seq never goes backwards, even
	// when a stale poller reports late. Returns false when the guard rejected
	// the write.
	AdvanceCursor(dbc dbctx.Context, conversationID uuid.UUID, kind string, externalID *int64, summary string, latestMessageID *uuid.UUID, latestSeq int64) (bool, error)
	// SetSummaryText is the explicit manual-edit path: text only, cursor untouched.
	SetSummaryText(dbc dbctx.Context, conversationID uuid.UUID, kind string, summary string) error
	DeleteByConversationAndKind(dbc dbctx.Context, conversationID uuid.UUID, kind string) error
	DeleteByConversation(dbc dbctx.Context, conversationID uuid.UUID) error
}

type conversationSummaryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationSummaryRepo(db *gorm.DB, log *logger.Logger) ConversationSummaryRepo {
	return &conversationSummaryRepo{db: db, log: log.With("repo", "ConversationSummaryRepo")}
}

func (r *conversationSummaryRepo) GetByConversationAndKind(dbc dbctx.Context, conversationID uuid.UUID, kind string) (*types.ConversationSummary, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.ConversationSummary
	err := txx.WithContext(dbc.Ctx).
		Model(&types.ConversationSummary{}).
		Where("conversation_id = ? AND kind = ?", conversationID, kind).
		First(&out).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *conversationSummaryRepo) Create(dbc dbctx.Context, row *types.ConversationSummary) (*types.ConversationSummary, error) {
	if row == nil || row.ConversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	if row.Kind == "" {
		return nil, fmt.Errorf("missing summary kind")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	now := time.Now().UTC()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	if err := txx.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *conversationSummaryRepo) AdvanceCursor(dbc dbctx.Context, conversationID uuid.UUID, kind string, externalID *int64, summary string, latestMessageID *uuid.UUID, latestSeq int64) (bool, error) {
	if conversationID == uuid.Nil {
		return false, fmt.Errorf("missing conversation_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	updates := map[string]interface{}{
		"summary":           summary,
		"latest_message_id": latestMessageID,
		"latest_seq":        latestSeq,
		"updated_at":        time.Now().UTC(),
	}
	if externalID != nil {
		updates["external_id"] = *externalID
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&types.ConversationSummary{}).
		Where("conversation_id = ? AND kind = ? AND latest_seq <= ?", conversationID, kind, latestSeq).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *conversationSummaryRepo) SetSummaryText(dbc dbctx.Context, conversationID uuid.UUID, kind string, summary string) error {
	if conversationID == uuid.Nil {
		return fmt.Errorf("missing conversation_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.ConversationSummary{}).
		Where("conversation_id = ? AND kind = ?", conversationID, kind).
		Updates(map[string]interface{}{
			"summary":    summary,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *conversationSummaryRepo) DeleteByConversationAndKind(dbc dbctx.Context, conversationID uuid.UUID, kind string) error {
	if conversationID == uuid.Nil {
		return fmt.Errorf("missing conversation_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("conversation_id = ? AND kind = ?", conversationID, kind).
		Delete(&types.ConversationSummary{}).Error
}

func (r *conversationSummaryRepo) DeleteByConversation(dbc dbctx.Context, conversationID uuid.UUID) error {
	if conversationID == uuid.Nil {
		return fmt.Errorf("missing conversation_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("conversation_id = ?", conversationID).
		Delete(&types.ConversationSummary{}).Error
}
