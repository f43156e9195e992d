package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/zradj/geets-backend/internal/services"
)

// operation binds a frame type to its payload decoder, pipeline call and
// routing-key kind. The table is fixed; ValidateOperations is run at startup
// so an unregistered kind is a boot-time error, not a runtime surprise.
type operation struct {
	kind string
	run  func(ctx context.Context, svc *services.Messaging, userID uuid.UUID, payload json.RawMessage) (result any, conversationID uuid.UUID, err error)
}

var operations = map[string]operation{
	"message.create":    {kind: "created", run: runCreate},
	"message.edit":      {kind: "edited", run: runEdit},
	"message.delete":    {kind: "deleted", run: runDelete},
	"message.seen":      {kind: "seen", run: runSeen},
	"message.delivered": {kind: "delivered", run: runDelivered},
}

// EventKinds lists the routing-key suffixes the operation table can emit.
// Broker consumers bind one wildcard pattern per kind.
func EventKinds() []string {
	kinds := make([]string, 0, len(operations))
	for _, op := range operations {
		kinds = append(kinds, op.kind)
	}
	return kinds
}

// ValidateOperations checks the dispatch table is complete.
func ValidateOperations() error {
	expected := []string{"message.create", "message.edit", "message.delete", "message.seen", "message.delivered"}
	for _, name := range expected {
		op, ok := operations[name]
		if !ok {
			return fmt.Errorf("operation %q is not registered", name)
		}
		if op.run == nil || op.kind == "" {
			return fmt.Errorf("operation %q is incomplete", name)
		}
	}
	return nil
}

type createPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Body           string    `json:"body"`
}

type editPayload struct {
	ID      uuid.UUID `json:"id"`
	NewBody string    `json:"new_body"`
}

type deletePayload struct {
	ID uuid.UUID `json:"id"`
}

type deliveredPayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

type seenPayload struct {
	ConversationID    uuid.UUID `json:"conversation_id"`
	LastSeenMessageID uuid.UUID `json:"last_seen_message_id"`
}

func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, fmt.Errorf("%w: missing payload", services.ErrBadRequest)
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("%w: %v", services.ErrBadRequest, err)
	}
	return v, nil
}

func runCreate(ctx context.Context, svc *services.Messaging, userID uuid.UUID, payload json.RawMessage) (any, uuid.UUID, error) {
	p, err := decode[createPayload](payload)
	if err != nil {
		return nil, uuid.Nil, err
	}
	msg, err := svc.CreateMessage(ctx, userID, p.ConversationID, p.Body)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return msg, msg.ConversationID, nil
}

func runEdit(ctx context.Context, svc *services.Messaging, userID uuid.UUID, payload json.RawMessage) (any, uuid.UUID, error) {
	p, err := decode[editPayload](payload)
	if err != nil {
		return nil, uuid.Nil, err
	}
	msg, err := svc.EditMessage(ctx, userID, p.ID, p.NewBody)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return msg, msg.ConversationID, nil
}

func runDelete(ctx context.Context, svc *services.Messaging, userID uuid.UUID, payload json.RawMessage) (any, uuid.UUID, error) {
	p, err := decode[deletePayload](payload)
	if err != nil {
		return nil, uuid.Nil, err
	}
	res, err := svc.DeleteMessage(ctx, userID, p.ID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return res, res.ConversationID, nil
}

func runDelivered(ctx context.Context, svc *services.Messaging, userID uuid.UUID, payload json.RawMessage) (any, uuid.UUID, error) {
	p, err := decode[deliveredPayload](payload)
	if err != nil {
		return nil, uuid.Nil, err
	}
	res, err := svc.MarkDelivered(ctx, userID, p.MessageID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return res, res.ConversationID, nil
}

func runSeen(ctx context.Context, svc *services.Messaging, userID uuid.UUID, payload json.RawMessage) (any, uuid.UUID, error) {
	p, err := decode[seenPayload](payload)
	if err != nil {
		return nil, uuid.Nil, err
	}
	res, err := svc.MarkSeen(ctx, userID, p.ConversationID, p.LastSeenMessageID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return res, res.ConversationID, nil
}
