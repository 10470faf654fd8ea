package idea

import (
	"time"

	"github.com/google/uuid"
)

// Prompt is a named system-prompt template, editable at runtime.
type Prompt struct {
	ID   uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name string    `gorm:"column:name;not null;uniqueIndex" json:"name"`

	Content     string `gorm:"column:content;type:text;not null;default:''" json:"content"`
	Description string `gorm:"column:description;not null;default:''" json:"description,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Prompt) TableName() string { return "prompt" }
