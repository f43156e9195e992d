package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantRole is the role a user holds inside a conversation.
type ParticipantRole string

const (
	RoleMember ParticipantRole = "MEMBER"
	RoleAdmin  ParticipantRole = "ADMIN"
)

// Conversation represents a direct or group conversation.
type Conversation struct {
	ID      uuid.UUID `db:"id" json:"id"`
	Title   *string   `db:"title" json:"title"`
	IsGroup bool      `db:"is_group" json:"is_group"`
	Deleted bool      `db:"deleted" json:"deleted"`
}

// ConversationParticipant links a user to a conversation with a role.
type ConversationParticipant struct {
	ConversationID uuid.UUID       `db:"conversation_id" json:"conversation_id"`
	UserID         uuid.UUID       `db:"user_id" json:"user_id"`
	Role           ParticipantRole `db:"role" json:"role"`
	JoinedAt       time.Time       `db:"joined_at" json:"joined_at"`
}
