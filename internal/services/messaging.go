package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zradj/geets-backend/internal/models"
	"github.com/zradj/geets-backend/internal/repositories"
)

// MaxBodyLength caps the length of a message body.
const MaxBodyLength = 10000

// Messaging is the event pipeline for message and receipt operations. Every
// operation validates, authorizes, persists and returns a canonical result;
// echo and fan-out belong to the transport layers.
type Messaging struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	receipts      repositories.ReceiptRepository
	now           func() time.Time
}

// NewMessaging builds the pipeline.
func NewMessaging(conversations repositories.ConversationRepository, messages repositories.MessageRepository, receipts repositories.ReceiptRepository) *Messaging {
	return &Messaging{
		conversations: conversations,
		messages:      messages,
		receipts:      receipts,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateMessage persists a message and one receipt per other participant.
// Receipts start at DELIVERED with delivered_at equal to the creation time:
// local persistence counts as delivery.
func (s *Messaging) CreateMessage(ctx context.Context, senderID uuid.UUID, conversationID uuid.UUID, body string) (models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return models.Message{}, fmt.Errorf("%w: body is empty", ErrBadRequest)
	}
	if len(body) > MaxBodyLength {
		return models.Message{}, fmt.Errorf("%w: body exceeds %d characters", ErrBadRequest, MaxBodyLength)
	}

	exists, err := s.conversations.Exists(ctx, conversationID)
	if err != nil {
		return models.Message{}, err
	}
	if !exists {
		return models.Message{}, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}

	member, err := s.conversations.IsParticipant(ctx, conversationID, senderID)
	if err != nil {
		return models.Message{}, err
	}
	if !member {
		return models.Message{}, fmt.Errorf("%w: not a participant of %s", ErrPermissionDenied, conversationID)
	}

	participants, err := s.conversations.Participants(ctx, conversationID)
	if err != nil {
		return models.Message{}, err
	}

	createdAt := s.now()
	msg := models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      createdAt,
	}

	deliveredAt := createdAt
	receipts := make([]models.MessageReceipt, 0, len(participants))
	for _, userID := range participants {
		if userID == senderID {
			continue
		}
		receipts = append(receipts, models.MessageReceipt{
			MessageID:   msg.ID,
			UserID:      userID,
			Status:      models.ReceiptDelivered,
			DeliveredAt: &deliveredAt,
		})
	}

	if err := s.messages.CreateWithReceipts(ctx, msg, receipts); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// EditMessage replaces the body of a message. Only the original sender may
// edit, and only while the message is not deleted.
func (s *Messaging) EditMessage(ctx context.Context, userID uuid.UUID, messageID uuid.UUID, newBody string) (models.Message, error) {
	if strings.TrimSpace(newBody) == "" {
		return models.Message{}, fmt.Errorf("%w: new_body is empty", ErrBadRequest)
	}
	if len(newBody) > MaxBodyLength {
		return models.Message{}, fmt.Errorf("%w: new_body exceeds %d characters", ErrBadRequest, MaxBodyLength)
	}

	msg, err := s.loadEditable(ctx, userID, messageID)
	if err != nil {
		return models.Message{}, err
	}

	if err := s.messages.UpdateBody(ctx, messageID, newBody); err != nil {
		return models.Message{}, err
	}
	msg.Body = newBody
	msg.Edited = true
	return msg, nil
}

// DeleteMessage soft-deletes a message. Deleting an already-deleted message
// is NOT_FOUND, not a silent success.
func (s *Messaging) DeleteMessage(ctx context.Context, userID uuid.UUID, messageID uuid.UUID) (models.DeleteResult, error) {
	msg, err := s.loadEditable(ctx, userID, messageID)
	if err != nil {
		return models.DeleteResult{}, err
	}

	if err := s.messages.SoftDelete(ctx, messageID); err != nil {
		return models.DeleteResult{}, err
	}
	return models.DeleteResult{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Deleted:        true,
	}, nil
}

// MarkDelivered advances the caller's receipt for a message to DELIVERED.
// Re-invocation returns the current state unchanged.
func (s *Messaging) MarkDelivered(ctx context.Context, userID uuid.UUID, messageID uuid.UUID) (models.ReceiptResult, error) {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return models.ReceiptResult{}, translateMessageErr(err)
	}
	if msg.Deleted {
		return models.ReceiptResult{}, fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}

	member, err := s.conversations.IsParticipant(ctx, msg.ConversationID, userID)
	if err != nil {
		return models.ReceiptResult{}, err
	}
	if !member {
		return models.ReceiptResult{}, fmt.Errorf("%w: not a participant of %s", ErrPermissionDenied, msg.ConversationID)
	}
	if msg.SenderID == userID {
		return models.ReceiptResult{}, fmt.Errorf("%w: sender cannot receive own message", ErrPermissionDenied)
	}

	receipt, err := s.receipts.MarkDelivered(ctx, messageID, userID, s.now())
	if err != nil {
		return models.ReceiptResult{}, err
	}
	return models.ReceiptResult{MessageReceipt: receipt, ConversationID: msg.ConversationID}, nil
}

// MarkSeen advances the caller's receipts to SEEN for every other-authored,
// non-deleted message at or before the referenced frontier message. When the
// frontier was authored by the caller, the cutoff is pulled back to the most
// recent other-authored message at or before it.
func (s *Messaging) MarkSeen(ctx context.Context, userID uuid.UUID, conversationID uuid.UUID, lastSeenMessageID uuid.UUID) (models.SeenResult, error) {
	if conversationID == uuid.Nil || lastSeenMessageID == uuid.Nil {
		return models.SeenResult{}, fmt.Errorf("%w: missing identifier", ErrBadRequest)
	}

	exists, err := s.conversations.Exists(ctx, conversationID)
	if err != nil {
		return models.SeenResult{}, err
	}
	if !exists {
		return models.SeenResult{}, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}

	member, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return models.SeenResult{}, err
	}
	if !member {
		return models.SeenResult{}, fmt.Errorf("%w: not a participant of %s", ErrPermissionDenied, conversationID)
	}

	cutoff, err := s.messages.Get(ctx, lastSeenMessageID)
	if err != nil {
		return models.SeenResult{}, translateMessageErr(err)
	}
	if cutoff.Deleted || cutoff.ConversationID != conversationID {
		return models.SeenResult{}, fmt.Errorf("%w: message %s", ErrNotFound, lastSeenMessageID)
	}

	result := models.SeenResult{
		ConversationID:     conversationID,
		LastSeenMessageID:  lastSeenMessageID,
		EffectiveMessageID: cutoff.ID,
		UserID:             userID,
	}

	if cutoff.SenderID == userID {
		// A user cannot hold a receipt for their own message; fall back to
		// the newest other-authored message at or before the frontier.
		cutoff, err = s.messages.LatestOtherAuthored(ctx, conversationID, userID, cutoff.CreatedAt, cutoff.ID)
		if err != nil {
			if isNotFound(err) {
				// Nothing from others yet; succeed with zero progress.
				return result, nil
			}
			return models.SeenResult{}, err
		}
		result.EffectiveMessageID = cutoff.ID
	}

	count, err := s.receipts.MarkSeenThrough(ctx, conversationID, userID, cutoff.CreatedAt, cutoff.ID, s.now())
	if err != nil {
		return models.SeenResult{}, err
	}
	result.UpdatedCount = count
	return result, nil
}

// GetMessages returns non-deleted conversation history for a participant,
// newest first.
func (s *Messaging) GetMessages(ctx context.Context, userID uuid.UUID, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	member, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, fmt.Errorf("%w: not a participant of %s", ErrPermissionDenied, conversationID)
	}

	return s.messages.ListForConversation(ctx, conversationID, limit)
}

// loadEditable fetches a message and checks the sender-only mutation rules
// shared by edit and delete.
func (s *Messaging) loadEditable(ctx context.Context, userID uuid.UUID, messageID uuid.UUID) (models.Message, error) {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return models.Message{}, translateMessageErr(err)
	}
	if msg.Deleted {
		return models.Message{}, fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}

	member, err := s.conversations.IsParticipant(ctx, msg.ConversationID, userID)
	if err != nil {
		return models.Message{}, err
	}
	if !member {
		return models.Message{}, fmt.Errorf("%w: not a participant of %s", ErrPermissionDenied, msg.ConversationID)
	}
	if msg.SenderID != userID {
		return models.Message{}, fmt.Errorf("%w: only the sender can modify a message", ErrPermissionDenied)
	}
	return msg, nil
}

func translateMessageErr(err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: message", ErrNotFound)
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, repositories.ErrMessageNotFound) ||
		errors.Is(err, repositories.ErrReceiptNotFound) ||
		errors.Is(err, repositories.ErrConversationNotFound)
}
