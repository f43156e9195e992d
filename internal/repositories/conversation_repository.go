package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/zradj/geets-backend/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository is the membership store the event pipeline uses as
// its authorization oracle.
type ConversationRepository interface {
	Create(ctx context.Context, conversation models.Conversation, participants []models.ConversationParticipant) (models.Conversation, error)
	Exists(ctx context.Context, conversationID uuid.UUID) (bool, error)
	IsParticipant(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID) (bool, error)
	Participants(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
}

// ConversationRepo is a sqlx-backed repository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Create stores a conversation and its initial participants in one transaction.
func (r *ConversationRepo) Create(ctx context.Context, conversation models.Conversation, participants []models.ConversationParticipant) (models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, title, is_group, deleted) VALUES ($1, $2, $3, FALSE)`,
		conversation.ID, conversation.Title, conversation.IsGroup,
	); err != nil {
		return models.Conversation{}, err
	}

	for _, p := range participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id, role, joined_at)
             VALUES ($1, $2, $3, $4)
             ON CONFLICT (conversation_id, user_id) DO NOTHING`,
			p.ConversationID, p.UserID, p.Role, p.JoinedAt,
		); err != nil {
			return models.Conversation{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

// Exists reports whether the conversation exists and is not soft-deleted.
func (r *ConversationRepo) Exists(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM conversations WHERE id=$1 AND deleted=FALSE)`, conversationID)
	return exists, err
}

// IsParticipant reports whether the user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (
            SELECT 1 FROM conversation_participants cp
            JOIN conversations c ON c.id = cp.conversation_id
            WHERE cp.conversation_id=$1 AND cp.user_id=$2 AND c.deleted=FALSE
        )`, conversationID, userID)
	return exists, err
}

// Participants returns the user ids of every current participant.
func (r *ConversationRepo) Participants(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM conversation_participants WHERE conversation_id=$1`, conversationID)
	return ids, err
}

// ListForUser returns the active conversations the user participates in.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := r.db.SelectContext(ctx, &conversations,
		`SELECT c.id, c.title, c.is_group, c.deleted
         FROM conversations c
         JOIN conversation_participants cp ON cp.conversation_id = c.id
         WHERE cp.user_id=$1 AND c.deleted=FALSE`, userID)
	return conversations, err
}
