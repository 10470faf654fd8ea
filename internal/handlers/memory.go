package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/services"
)

type MemoryHandler struct {
	memoryService services.MemoryService
}

func NewMemoryHandler(memoryService services.MemoryService) *MemoryHandler {
	return &MemoryHandler{memoryService: memoryService}
}

func (mh *MemoryHandler) Remember(c *gin.Context) {
	var req struct {
		ConversationID *uuid.UUID `json:"conversation_id"`
		Kind           string     `json:"kind"`
		Key            string     `json:"key"`
		Value          string     `json:"value"`
		Confidence     float64    `json:"confidence"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	item, err := mh.memoryService.Remember(dbc, req.ConversationID, req.Kind, req.Key, req.Value, req.Confidence)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "remember_failed", err)
		return
	}
	RespondOK(c, gin.H{"memory": item})
}

func (mh *MemoryHandler) Search(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	items, err := mh.memoryService.Search(dbc, c.Query("q"), queryLimit(c, 20))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "search_failed", err)
		return
	}
	RespondOK(c, gin.H{"memories": items})
}

func (mh *MemoryHandler) List(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	items, err := mh.memoryService.List(dbc, queryLimit(c, 50))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"memories": items})
}
