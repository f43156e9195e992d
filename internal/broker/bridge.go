package broker

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zradj/geets-backend/internal/models"
	"github.com/zradj/geets-backend/internal/repositories"
)

// Deliverer is the bridge's view of the connection registry.
type Deliverer interface {
	Deliver(userID uuid.UUID, event models.Event)
}

// Bridge re-delivers consumed broker events to locally connected participants.
// The acting user is excluded: they already received a synchronous echo on
// their own connection.
type Bridge struct {
	registry      Deliverer
	conversations repositories.ConversationRepository
}

// NewBridge constructs a Bridge.
func NewBridge(registry Deliverer, conversations repositories.ConversationRepository) *Bridge {
	return &Bridge{registry: registry, conversations: conversations}
}

// eventMeta is the subset of any event payload the bridge needs. Extra
// fields are tolerated and ignored.
type eventMeta struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	UserID         uuid.UUID `json:"user_id"`
	Message        *struct {
		ConversationID uuid.UUID `json:"conversation_id"`
	} `json:"message"`
}

func (m eventMeta) conversation() uuid.UUID {
	if m.ConversationID != uuid.Nil {
		return m.ConversationID
	}
	if m.Message != nil {
		return m.Message.ConversationID
	}
	return uuid.Nil
}

func (m eventMeta) actor() uuid.UUID {
	if m.SenderID != uuid.Nil {
		return m.SenderID
	}
	return m.UserID
}

// HandleEvent fans one consumed event out to every locally connected
// participant except the actor. Malformed events are dropped with a warning:
// without a trusted actor id, broadcasting would duplicate the echo, so the
// bridge fails closed.
func (b *Bridge) HandleEvent(ctx context.Context, body []byte) error {
	var frame models.Frame
	if err := json.Unmarshal(body, &frame); err != nil || frame.Type == "" || len(frame.Payload) == 0 {
		log.Warn().Msg("bad broker message format, dropping")
		return nil
	}

	var meta eventMeta
	if err := json.Unmarshal(frame.Payload, &meta); err != nil {
		log.Warn().Str("type", frame.Type).Msg("unparseable event payload, dropping")
		return nil
	}

	conversationID := meta.conversation()
	if conversationID == uuid.Nil {
		log.Warn().Str("type", frame.Type).Msg("no conversation_id in event payload, dropping")
		return nil
	}

	actorID := meta.actor()
	if actorID == uuid.Nil {
		log.Warn().Str("type", frame.Type).Str("conversation_id", conversationID.String()).Msg("no actor id in event payload, dropping")
		return nil
	}

	// Fresh lookup every time: membership may have changed since publish.
	participants, err := b.conversations.Participants(ctx, conversationID)
	if err != nil {
		return err
	}

	event := models.Event{Type: frame.Type, Payload: frame.Payload}
	for _, userID := range participants {
		if userID == actorID {
			continue
		}
		b.registry.Deliver(userID, event)
	}
	return nil
}
