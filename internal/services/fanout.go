package services

import (
	"context"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"
)

// FanoutNotifier delivers state-change notifications to affected users:
// an in-app inbox row, a websocket push when the user is connected, and
// an engine event for out-of-process consumers (email worker). Delivery
// is best-effort; failures are logged and never surface to the caller,
// which has already committed its state.
type FanoutNotifier struct {
	notifications domain.NotificationRepository
	connManager   domain.ConnectionManager
	eventPub      domain.EventPublisher
	log           logger.Logger
}

func NewFanoutNotifier(
	notifications domain.NotificationRepository,
	connManager domain.ConnectionManager,
	eventPub domain.EventPublisher,
	log logger.Logger,
) *FanoutNotifier {
	return &FanoutNotifier{
		notifications: notifications,
		connManager:   connManager,
		eventPub:      eventPub,
		log:           log,
	}
}

func (f *FanoutNotifier) Notify(ctx context.Context, recipientID string, kind domain.NotificationKind, message, relatedID string) {
	n := &domain.Notification{
		ID:          utils.GenerateID("notif"),
		RecipientID: recipientID,
		Kind:        kind,
		Message:     message,
		RelatedID:   relatedID,
		CreatedAt:   time.Now(),
	}

	if err := f.notifications.SaveNotification(ctx, n); err != nil {
		f.log.Error("Failed to persist notification",
			"recipient_id", recipientID, "kind", kind, "error", err)
	}

	if err := f.connManager.NotifyUser(recipientID, map[string]interface{}{
		"type":       string(kind),
		"message":    message,
		"related_id": relatedID,
	}); err != nil {
		f.log.Error("Failed to push notification",
			"recipient_id", recipientID, "kind", kind, "error", err)
	}

	if err := f.eventPub.PublishEngineEvent(ctx, &domain.EngineEvent{
		Type:      domain.EventNotification,
		AuctionID: relatedID,
		UserID:    recipientID,
		Timestamp: time.Now(),
	}); err != nil {
		f.log.Error("Failed to publish notification event",
			"recipient_id", recipientID, "kind", kind, "error", err)
	}
}
