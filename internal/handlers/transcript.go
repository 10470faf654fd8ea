package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/services"
)

type TranscriptHandler struct {
	importService services.ImportService
}

func NewTranscriptHandler(importService services.ImportService) *TranscriptHandler {
	return &TranscriptHandler{importService: importService}
}

func (th *TranscriptHandler) Providers(c *gin.Context) {
	RespondOK(c, gin.H{"providers": th.importService.Providers()})
}

func (th *TranscriptHandler) Import(c *gin.Context) {
	var req struct {
		Provider   string `json:"provider"`
		SourceURL  string `json:"source_url"`
		Transcript string `json:"transcript"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	conv, err := th.importService.ImportTranscript(dbc, req.Provider, req.SourceURL, []byte(req.Transcript))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "import_failed", err)
		return
	}
	RespondOK(c, gin.H{"conversation": conv})
}

func (th *TranscriptHandler) Reimport(c *gin.Context) {
	id, err := pathUUID(c, "conversation_id")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	var req struct {
		Transcript string `json:"transcript"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	conv, err := th.importService.ReimportTranscript(dbc, id, []byte(req.Transcript))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "reimport_failed", err)
		return
	}
	RespondOK(c, gin.H{"conversation": conv})
}
