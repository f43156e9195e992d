package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a chat message. Bodies are stored encrypted at rest;
// repositories hand out plaintext.
type Message struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ConversationID uuid.UUID `db:"conversation_id" json:"conversation_id"`
	SenderID       uuid.UUID `db:"sender_id" json:"sender_id"`
	Body           string    `db:"body" json:"body"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	Edited         bool      `db:"edited" json:"edited"`
	Deleted        bool      `db:"deleted" json:"deleted"`
}

// ReceiptStatus is the delivery state of a message for one recipient.
// Transitions are monotone: SENT -> DELIVERED -> SEEN.
type ReceiptStatus string

const (
	ReceiptSent      ReceiptStatus = "SENT"
	ReceiptDelivered ReceiptStatus = "DELIVERED"
	ReceiptSeen      ReceiptStatus = "SEEN"
)

// MessageReceipt tracks per-recipient delivery/read progress. The sender of a
// message never has a receipt for it.
type MessageReceipt struct {
	MessageID   uuid.UUID     `db:"message_id" json:"message_id"`
	UserID      uuid.UUID     `db:"user_id" json:"user_id"`
	Status      ReceiptStatus `db:"status" json:"status"`
	DeliveredAt *time.Time    `db:"delivered_at" json:"delivered_at"`
	SeenAt      *time.Time    `db:"seen_at" json:"seen_at"`
}

// ReceiptResult is a receipt plus the conversation it belongs to, as returned
// by the mark-delivered operation.
type ReceiptResult struct {
	MessageReceipt
	ConversationID uuid.UUID `json:"conversation_id"`
}

// SeenResult is returned by the mark-seen operation.
type SeenResult struct {
	ConversationID     uuid.UUID `json:"conversation_id"`
	LastSeenMessageID  uuid.UUID `json:"last_seen_message_id"`
	EffectiveMessageID uuid.UUID `json:"effective_message_id"`
	UpdatedCount       int       `json:"updated_count"`
	UserID             uuid.UUID `json:"user_id"`
}

// DeleteResult is returned by the delete operation. The body is retained in
// storage but no longer surfaced.
type DeleteResult struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Deleted        bool      `json:"deleted"`
}
