package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/services"
)

type DocumentHandler struct {
	documentService services.DocumentService
}

func NewDocumentHandler(documentService services.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

func (dh *DocumentHandler) Attach(c *gin.Context) {
	if dh.documentService == nil {
		RespondError(c, http.StatusServiceUnavailable, "documents_disabled", errors.New("document attachments are not configured"))
		return
	}
	id, err := pathUUID(c, "conversation_id")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	var req struct {
		Content      string `json:"content"`
		Description  string `json:"description"`
		DocumentType string `json:"document_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	docID, err := dh.documentService.AttachDocument(dbc, id, req.Content, req.Description, req.DocumentType)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "attach_failed", err)
		return
	}
	RespondOK(c, gin.H{"document_id": docID})
}
