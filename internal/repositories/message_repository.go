package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/zradj/geets-backend/internal/crypto"
	"github.com/zradj/geets-backend/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for messages. Implementations store
// bodies encrypted and return them decrypted.
type MessageRepository interface {
	// CreateWithReceipts persists the message and one receipt per recipient
	// atomically.
	CreateWithReceipts(ctx context.Context, msg models.Message, receipts []models.MessageReceipt) error
	Get(ctx context.Context, messageID uuid.UUID) (models.Message, error)
	UpdateBody(ctx context.Context, messageID uuid.UUID, newBody string) error
	SoftDelete(ctx context.Context, messageID uuid.UUID) error
	ListForConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error)
	// LatestOtherAuthored returns the most recent non-deleted message in the
	// conversation not authored by excludeSender, at or before the
	// (cutoffAt, cutoffID) position.
	LatestOtherAuthored(ctx context.Context, conversationID uuid.UUID, excludeSender uuid.UUID, cutoffAt time.Time, cutoffID uuid.UUID) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db  *sqlx.DB
	box *crypto.Box
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB, box *crypto.Box) *MessageRepo {
	return &MessageRepo{db: db, box: box}
}

// CreateWithReceipts stores a message and its fan-out receipts in a single
// transaction so a crash cannot leave a message with partial receipts.
func (r *MessageRepo) CreateWithReceipts(ctx context.Context, msg models.Message, receipts []models.MessageReceipt) error {
	sealed, err := r.box.Encrypt(msg.Body)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, body, created_at, edited, deleted)
         VALUES ($1, $2, $3, $4, $5, FALSE, FALSE)`,
		msg.ID, msg.ConversationID, msg.SenderID, sealed, msg.CreatedAt,
	); err != nil {
		return err
	}

	for _, receipt := range receipts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO message_receipts (message_id, user_id, status, delivered_at, seen_at)
             VALUES ($1, $2, $3, $4, $5)`,
			receipt.MessageID, receipt.UserID, receipt.Status, receipt.DeliveredAt, receipt.SeenAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Get retrieves a single message, deleted or not. Callers decide how deleted
// messages surface.
func (r *MessageRepo) Get(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT id, conversation_id, sender_id, body, created_at, edited, deleted
         FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return r.open(msg)
}

// UpdateBody replaces the body and marks the message edited.
func (r *MessageRepo) UpdateBody(ctx context.Context, messageID uuid.UUID, newBody string) error {
	sealed, err := r.box.Encrypt(newBody)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET body=$2, edited=TRUE WHERE id=$1 AND deleted=FALSE`, messageID, sealed)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SoftDelete marks a message deleted. Deleting an already-deleted message
// reports ErrMessageNotFound.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET deleted=TRUE WHERE id=$1 AND deleted=FALSE`, messageID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListForConversation returns non-deleted messages newest first, id as the
// tie-break for equal timestamps.
func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, conversation_id, sender_id, body, created_at, edited, deleted
         FROM messages
         WHERE conversation_id=$1 AND deleted=FALSE
         ORDER BY created_at DESC, id DESC
         LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i], err = r.open(msgs[i])
		if err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

// LatestOtherAuthored finds the seen-frontier message when the referenced
// cutoff was authored by the caller.
func (r *MessageRepo) LatestOtherAuthored(ctx context.Context, conversationID uuid.UUID, excludeSender uuid.UUID, cutoffAt time.Time, cutoffID uuid.UUID) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT id, conversation_id, sender_id, body, created_at, edited, deleted
         FROM messages
         WHERE conversation_id=$1 AND sender_id<>$2 AND deleted=FALSE
           AND (created_at, id) <= ($3, $4)
         ORDER BY created_at DESC, id DESC
         LIMIT 1`, conversationID, excludeSender, cutoffAt, cutoffID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return r.open(msg)
}

func (r *MessageRepo) open(msg models.Message) (models.Message, error) {
	plain, err := r.box.Decrypt(msg.Body)
	if err != nil {
		return models.Message{}, err
	}
	msg.Body = plain
	return msg, nil
}

func requireRow(res sql.Result) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
