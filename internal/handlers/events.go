package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/ideaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
	"github.com/yungbote/ideaforge-backend/internal/realtime"
)

// EventsHandler serves the per-user SSE stream. Every backend event for the
// authenticated user flows over this single connection.
type EventsHandler struct {
	log *logger.Logger
	hub *realtime.Hub
}

func NewEventsHandler(log *logger.Logger, hub *realtime.Hub) *EventsHandler {
	return &EventsHandler{log: log.With("handler", "EventsHandler"), hub: hub}
}

func (eh *EventsHandler) Stream(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return
	}

	client := eh.hub.NewClient(rd.UserID)
	eh.hub.AddChannel(client, realtime.UserChannel(rd.UserID))
	defer eh.hub.CloseClient(client)

	eh.log.Debug("SSE stream opened", "user_id", rd.UserID, "client_id", client.ID)
	eh.hub.ServeHTTP(c.Writer, c.Request, client)
}
