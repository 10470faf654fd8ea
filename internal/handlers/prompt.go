package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/services"
)

type PromptHandler struct {
	promptService services.PromptService
}

func NewPromptHandler(promptService services.PromptService) *PromptHandler {
	return &PromptHandler{promptService: promptService}
}

func (ph *PromptHandler) List(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	prompts, err := ph.promptService.List(dbc)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"prompts": prompts})
}

func (ph *PromptHandler) Get(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	prompt, err := ph.promptService.Get(dbc, c.Param("name"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "get_failed", err)
		return
	}
	if prompt == nil {
		RespondError(c, http.StatusNotFound, "not_found", errors.New("prompt not found"))
		return
	}
	RespondOK(c, gin.H{"prompt": prompt})
}

func (ph *PromptHandler) Upsert(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Content     string `json:"content"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	if err := ph.promptService.Upsert(dbc, req.Name, req.Content, req.Description); err != nil {
		RespondError(c, http.StatusBadRequest, "upsert_failed", err)
		return
	}
	RespondOK(c, gin.H{"saved": true})
}

func (ph *PromptHandler) Delete(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	if err := ph.promptService.Delete(dbc, c.Param("name")); err != nil {
		RespondError(c, http.StatusBadRequest, "delete_failed", err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}
