package idea

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusGenerating = "generating"
	StatusReady      = "ready"
	StatusFailed     = "failed"
	StatusPushed     = "pushed"
)

// FailedPlaceholderTitle is persisted when generation fails so the record is
// never left idea-less; the user can retry manually.
const FailedPlaceholderTitle = "Failed to Generate Idea"

// Idea is a project draft generated from an imported conversation.
type Idea struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index" json:"conversation_id"`

	Title   string `gorm:"column:title;not null;default:''" json:"title"`
	Content string `gorm:"column:content;type:text;not null;default:''" json:"content"`
	Status  string `gorm:"column:status;not null;default:'generating';index" json:"status"`
	Model   string `gorm:"column:model;not null;default:''" json:"model,omitempty"`

	LinearIssueID  string `gorm:"column:linear_issue_id;not null;default:''" json:"linear_issue_id,omitempty"`
	LinearIssueURL string `gorm:"column:linear_issue_url;not null;default:''" json:"linear_issue_url,omitempty"`

	Metadata datatypes.JSON `gorm:"type:jsonb;column:metadata;not null;default:'{}'" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Idea) TableName() string { return "idea" }
