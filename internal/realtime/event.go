// Package realtime delivers events to users' live websocket channels, on
// this instance through a Hub and across instances through a RedisBus.
package realtime

import (
	"context"

	"github.com/google/uuid"
	"github.com/lalith-99/campusconnect/internal/models"
)

const EventMessageDelivered = "message.delivered"

// Event is what a live channel receives. RecipientID is the user the event
// was addressed to, so a client holding several chats can route it.
type Event struct {
	Type         string         `json:"type"`
	ChatID       uuid.UUID      `json:"chat_id"`
	Participants [2]uuid.UUID   `json:"participants"`
	RecipientID  uuid.UUID      `json:"recipient_id"`
	Message      models.Message `json:"message"`
}

// Publisher hands an event to every live channel of userID. Delivery is
// best effort: an offline user is not an error, and implementations never
// block on a slow client.
type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, event Event) error
}
