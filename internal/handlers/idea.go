package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	"github.com/yungbote/ideaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/services"
)

type IdeaHandler struct {
	ideaService services.IdeaGenerationService
	ideaRepo    repos.IdeaRepo
}

func NewIdeaHandler(ideaService services.IdeaGenerationService, ideaRepo repos.IdeaRepo) *IdeaHandler {
	return &IdeaHandler{ideaService: ideaService, ideaRepo: ideaRepo}
}

func (ih *IdeaHandler) Generate(c *gin.Context) {
	var req struct {
		ConversationID      uuid.UUID `json:"conversation_id"`
		Model               string    `json:"model"`
		AcceptSummarization bool      `json:"accept_summarization"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	idea, err := ih.ideaService.GenerateFromConversation(dbc, req.ConversationID, req.Model, req.AcceptSummarization)
	if err != nil {
		if errors.Is(err, services.ErrModelLimitConflict) {
			// 409 carries a stable code so the client can re-offer with
			// accept_summarization set.
			RespondError(c, http.StatusConflict, "model_limit_conflict", err)
			return
		}
		RespondError(c, http.StatusBadRequest, "generate_failed", err)
		return
	}
	RespondOK(c, gin.H{"idea": idea})
}

func (ih *IdeaHandler) Get(c *gin.Context) {
	id, err := pathUUID(c, "idea_id")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	rd := ctxutil.GetRequestData(dbc.Ctx)
	idea, err := ih.ideaRepo.GetByID(dbc, id)
	if err != nil || idea == nil || rd == nil || idea.UserID != rd.UserID {
		RespondError(c, http.StatusNotFound, "not_found", errors.New("idea not found"))
		return
	}
	RespondOK(c, gin.H{"idea": idea})
}

func (ih *IdeaHandler) List(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return
	}
	ideas, err := ih.ideaRepo.ListByUser(dbc, rd.UserID, queryLimit(c, 50))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"ideas": ideas})
}

func (ih *IdeaHandler) Retry(c *gin.Context) {
	id, err := pathUUID(c, "idea_id")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	idea, err := ih.ideaService.RetryIdea(dbc, id)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "retry_failed", err)
		return
	}
	RespondOK(c, gin.H{"idea": idea})
}

func (ih *IdeaHandler) PushToLinear(c *gin.Context) {
	id, err := pathUUID(c, "idea_id")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	idea, err := ih.ideaService.PushToLinear(dbc, id)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "push_failed", err)
		return
	}
	RespondOK(c, gin.H{"idea": idea})
}
