package services

import (
	"context"

	"github.com/google/uuid"

	redisclient "github.com/yungbote/ideaforge-backend/internal/clients/redis"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
	"github.com/yungbote/ideaforge-backend/internal/realtime"
)

// Notifier pushes realtime events to a user's SSE channel. When a Redis bus
// is configured events go through pub/sub so every replica's hub sees them;
// otherwise they go straight to the local hub.
type Notifier interface {
	Publish(ctx context.Context, userID uuid.UUID, event realtime.Event, data any)
}

type sseNotifier struct {
	log *logger.Logger
	hub *realtime.Hub
	bus redisclient.SSEBus
}

func NewNotifier(baseLog *logger.Logger, hub *realtime.Hub, bus redisclient.SSEBus) Notifier {
	return &sseNotifier{
		log: baseLog.With("service", "Notifier"),
		hub: hub,
		bus: bus,
	}
}

func (n *sseNotifier) Publish(ctx context.Context, userID uuid.UUID, event realtime.Event, data any) {
	if userID == uuid.Nil {
		return
	}
	msg := realtime.Message{
		Channel: realtime.UserChannel(userID),
		Event:   event,
		Data:    data,
	}
	if n.bus != nil {
		if err := n.bus.Publish(ctx, msg); err != nil {
			n.log.Warn("SSE publish via redis failed; falling back to local hub", "error", err)
			n.hub.Broadcast(msg)
		}
		return
	}
	n.hub.Broadcast(msg)
}
