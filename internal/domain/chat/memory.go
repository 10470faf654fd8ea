package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MemoryItem is a durable fact/preference extracted from prior conversations,
// retrieved by keyword during idea generation to ground new drafts.
type MemoryItem struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	ConversationID *uuid.UUID `gorm:"type:uuid;index" json:"conversation_id,omitempty"`

	Kind       string  `gorm:"type:text;not null;index" json:"kind"` // fact|preference|decision
	Key        string  `gorm:"type:text;not null" json:"key"`
	Value      string  `gorm:"type:text;not null" json:"value"`
	Confidence float64 `gorm:"not null;default:0.0" json:"confidence"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (MemoryItem) TableName() string { return "memory_item" }
