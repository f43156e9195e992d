package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/zradj/geets-backend/internal/models"
)

var ErrReceiptNotFound = errors.New("receipt not found")

// ReceiptRepository manages per-recipient delivery state. All writes are
// monotone: a receipt's status never moves backward.
type ReceiptRepository interface {
	// MarkDelivered advances the receipt to DELIVERED, creating it if absent.
	// A receipt already at DELIVERED or SEEN is returned unchanged.
	MarkDelivered(ctx context.Context, messageID uuid.UUID, userID uuid.UUID, at time.Time) (models.MessageReceipt, error)
	// MarkSeenThrough advances to SEEN every receipt the user holds for
	// non-deleted, other-authored messages at or before the cutoff position,
	// creating missing receipts and backfilling delivered_at. Returns the
	// number of receipts actually advanced.
	MarkSeenThrough(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID, cutoffAt time.Time, cutoffID uuid.UUID, at time.Time) (int, error)
}

// ReceiptRepo is a sqlx-backed repository.
type ReceiptRepo struct {
	db *sqlx.DB
}

// NewReceiptRepo constructs ReceiptRepo.
func NewReceiptRepo(db *sqlx.DB) *ReceiptRepo {
	return &ReceiptRepo{db: db}
}

// Get retrieves a single receipt.
func (r *ReceiptRepo) Get(ctx context.Context, messageID uuid.UUID, userID uuid.UUID) (models.MessageReceipt, error) {
	var receipt models.MessageReceipt
	err := r.db.GetContext(ctx, &receipt,
		`SELECT message_id, user_id, status, delivered_at, seen_at
         FROM message_receipts WHERE message_id=$1 AND user_id=$2`, messageID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MessageReceipt{}, ErrReceiptNotFound
	}
	return receipt, err
}

// MarkDelivered upserts the receipt forward. The guarded update only fires
// from SENT, so DELIVERED and SEEN rows are never regressed.
func (r *ReceiptRepo) MarkDelivered(ctx context.Context, messageID uuid.UUID, userID uuid.UUID, at time.Time) (models.MessageReceipt, error) {
	var receipt models.MessageReceipt
	err := r.db.GetContext(ctx, &receipt,
		`INSERT INTO message_receipts (message_id, user_id, status, delivered_at)
         VALUES ($1, $2, 'DELIVERED', $3)
         ON CONFLICT (message_id, user_id) DO UPDATE
             SET status='DELIVERED',
                 delivered_at=COALESCE(message_receipts.delivered_at, EXCLUDED.delivered_at)
             WHERE message_receipts.status='SENT'
         RETURNING message_id, user_id, status, delivered_at, seen_at`,
		messageID, userID, at)
	if errors.Is(err, sql.ErrNoRows) {
		// Already DELIVERED or SEEN; the terminal state is the answer.
		return r.Get(ctx, messageID, userID)
	}
	return receipt, err
}

// MarkSeenThrough performs the seen sweep as one statement. Receipts already
// at SEEN are untouched and not counted.
func (r *ReceiptRepo) MarkSeenThrough(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID, cutoffAt time.Time, cutoffID uuid.UUID, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO message_receipts (message_id, user_id, status, delivered_at, seen_at)
         SELECT m.id, $2, 'SEEN', $5, $5
         FROM messages m
         WHERE m.conversation_id=$1 AND m.sender_id<>$2 AND m.deleted=FALSE
           AND (m.created_at, m.id) <= ($3, $4)
         ON CONFLICT (message_id, user_id) DO UPDATE
             SET status='SEEN',
                 seen_at=EXCLUDED.seen_at,
                 delivered_at=COALESCE(message_receipts.delivered_at, EXCLUDED.delivered_at)
             WHERE message_receipts.status<>'SEEN'`,
		conversationID, userID, cutoffAt, cutoffID, at)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	return int(count), err
}
