package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/ideaforge-backend/internal/data/repos/chat"
	"github.com/yungbote/ideaforge-backend/internal/data/repos/idea"
	"github.com/yungbote/ideaforge-backend/internal/data/repos/user"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

type UserRepo = user.UserRepo
type UserTokenRepo = user.UserTokenRepo

type ConversationRepo = chat.ConversationRepo
type ChatMessageRepo = chat.ChatMessageRepo
type ConversationSummaryRepo = chat.ConversationSummaryRepo
type MemoryItemRepo = chat.MemoryItemRepo

type IdeaRepo = idea.IdeaRepo
type PromptRepo = idea.PromptRepo

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo { return user.NewUserRepo(db, baseLog) }
func NewUserTokenRepo(db *gorm.DB, baseLog *logger.Logger) UserTokenRepo {
	return user.NewUserTokenRepo(db, baseLog)
}

func NewConversationRepo(db *gorm.DB, baseLog *logger.Logger) ConversationRepo {
	return chat.NewConversationRepo(db, baseLog)
}
func NewChatMessageRepo(db *gorm.DB, baseLog *logger.Logger) ChatMessageRepo {
	return chat.NewChatMessageRepo(db, baseLog)
}
func NewConversationSummaryRepo(db *gorm.DB, baseLog *logger.Logger) ConversationSummaryRepo {
	return chat.NewConversationSummaryRepo(db, baseLog)
}
func NewMemoryItemRepo(db *gorm.DB, baseLog *logger.Logger) MemoryItemRepo {
	return chat.NewMemoryItemRepo(db, baseLog)
}

func NewIdeaRepo(db *gorm.DB, baseLog *logger.Logger) IdeaRepo { return idea.NewIdeaRepo(db, baseLog) }
func NewPromptRepo(db *gorm.DB, baseLog *logger.Logger) PromptRepo {
	return idea.NewPromptRepo(db, baseLog)
}
