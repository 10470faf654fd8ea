// Package domain re-exports the persisted model types so callers can import a
// single `types` package instead of each area package.
package domain

import (
	"github.com/yungbote/ideaforge-backend/internal/domain/chat"
	"github.com/yungbote/ideaforge-backend/internal/domain/idea"
	"github.com/yungbote/ideaforge-backend/internal/domain/user"
)

type User = user.User
type UserToken = user.UserToken

type Conversation = chat.Conversation
type ChatMessage = chat.ChatMessage
type ConversationSummary = chat.ConversationSummary
type MemoryItem = chat.MemoryItem

type Idea = idea.Idea
type Prompt = idea.Prompt

const (
	RoleUser      = chat.RoleUser
	RoleAssistant = chat.RoleAssistant
	RoleSystem    = chat.RoleSystem

	SummaryKindChat     = chat.SummaryKindChat
	SummaryKindImported = chat.SummaryKindImported

	IdeaStatusGenerating = idea.StatusGenerating
	IdeaStatusReady      = idea.StatusReady
	IdeaStatusFailed     = idea.StatusFailed
	IdeaStatusPushed     = idea.StatusPushed

	FailedPlaceholderTitle = idea.FailedPlaceholderTitle
)

func SummarizableRole(role string) bool { return chat.SummarizableRole(role) }
