package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/services"
)

type ConversationHandler struct {
	chatService services.ChatService
}

func NewConversationHandler(chatService services.ChatService) *ConversationHandler {
	return &ConversationHandler{chatService: chatService}
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func queryLimit(c *gin.Context, def int) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func (ch *ConversationHandler) Create(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	conv, err := ch.chatService.CreateConversation(dbc, req.Title)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "create_failed", err)
		return
	}
	RespondOK(c, gin.H{"conversation": conv})
}

func (ch *ConversationHandler) List(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	convs, err := ch.chatService.ListConversations(dbc, queryLimit(c, 50))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"conversations": convs})
}

func (ch *ConversationHandler) Get(c *gin.Context) {
	id, err := pathUUID(c, "conversation_id")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	conv, msgs, err := ch.chatService.GetConversation(dbc, id, queryLimit(c, 200))
	if err != nil {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	RespondOK(c, gin.H{"conversation": conv, "messages": msgs})
}

func (ch *ConversationHandler) Delete(c *gin.Context) {
	id, err := pathUUID(c, "conversation_id")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	if err := ch.chatService.DeleteConversation(dbc, id); err != nil {
		RespondError(c, http.StatusBadRequest, "delete_failed", err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

func (ch *ConversationHandler) SendMessage(c *gin.Context) {
	id, err := pathUUID(c, "conversation_id")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	userMsg, assistantMsg, err := ch.chatService.SendMessage(dbc, id, req.Content)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "send_failed", err)
		return
	}
	RespondOK(c, gin.H{"user_message": userMsg, "assistant_message": assistantMsg})
}

func (ch *ConversationHandler) GetSummary(c *gin.Context) {
	id, err := pathUUID(c, "conversation_id")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	kind := c.DefaultQuery("kind", types.SummaryKindChat)

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	summary, err := ch.chatService.GetSummary(dbc, id, kind)
	if err != nil {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	RespondOK(c, gin.H{"summary": summary})
}

func (ch *ConversationHandler) UpdateSummary(c *gin.Context) {
	id, err := pathUUID(c, "conversation_id")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	var req struct {
		Kind string `json:"kind"`
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if req.Kind == "" {
		req.Kind = types.SummaryKindChat
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	if err := ch.chatService.UpdateSummaryText(dbc, id, req.Kind, req.Text); err != nil {
		RespondError(c, http.StatusBadRequest, "update_failed", err)
		return
	}
	RespondOK(c, gin.H{"updated": true})
}
