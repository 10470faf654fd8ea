package chat

import (
	"time"

	"github.com/google/uuid"
)

// Summary kinds: one row per conversation per kind.
const (
	SummaryKindChat     = "chat"     // rolling live-chat summary
	SummaryKindImported = "imported" // one-shot imported-transcript summary
)

// ConversationSummary is the persisted source of truth for how much of a
// conversation the summarizer has incorporated. LatestSeq only moves forward;
// the summary text is only overwritten together with a cursor advance (or via
// an explicit manual edit).
type ConversationSummary struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index:idx_conversation_summary_kind,unique,priority:1" json:"conversation_id"`
	Kind           string    `gorm:"column:kind;not null;index:idx_conversation_summary_kind,unique,priority:2" json:"kind"`

	// ExternalID is the summarizer-side conversation handle (remote backend).
	ExternalID *int64 `gorm:"column:external_id" json:"external_id,omitempty"`

	Summary string `gorm:"column:summary;type:text;not null;default:''" json:"summary"`

	// LatestMessageID is the durable ID of the last message the summary text
	// accounts for; LatestSeq is its ordinal and carries the monotonic guard.
	LatestMessageID *uuid.UUID `gorm:"type:uuid;column:latest_message_id" json:"latest_message_id,omitempty"`
	LatestSeq       int64      `gorm:"column:latest_seq;not null;default:0" json:"latest_seq"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (ConversationSummary) TableName() string { return "conversation_summary" }
