package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zradj/geets-backend/internal/models"
)

var receiptColumns = []string{"message_id", "user_id", "status", "delivered_at", "seen_at"}

// The upsert must only fire from SENT; DELIVERED and SEEN rows fall through
// to the RETURNING-empty path.
var deliveredUpsert = regexp.QuoteMeta(`ON CONFLICT (message_id, user_id) DO UPDATE`) +
	".*" + regexp.QuoteMeta(`WHERE message_receipts.status='SENT'`) +
	".*" + regexp.QuoteMeta(`RETURNING`)

// The seen sweep must skip own-authored and deleted messages, stop at the
// (created_at, id) tuple cutoff and leave SEEN rows untouched.
var seenSweep = regexp.QuoteMeta(`m.sender_id<>$2 AND m.deleted=FALSE`) +
	".*" + regexp.QuoteMeta(`(m.created_at, m.id) <= ($3, $4)`) +
	".*" + regexp.QuoteMeta(`WHERE message_receipts.status<>'SEEN'`)

func newReceiptRepo(t *testing.T) (*ReceiptRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewReceiptRepo(sqlx.NewDb(db, "sqlmock")), mock
}

func TestMarkDeliveredAdvancesSentRow(t *testing.T) {
	repo, mock := newReceiptRepo(t)
	msgID, userID := uuid.New(), uuid.New()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(deliveredUpsert).
		WithArgs(msgID, userID, at).
		WillReturnRows(sqlmock.NewRows(receiptColumns).
			AddRow(msgID.String(), userID.String(), "DELIVERED", at, nil))

	receipt, err := repo.MarkDelivered(context.Background(), msgID, userID, at)
	require.NoError(t, err)
	assert.Equal(t, models.ReceiptDelivered, receipt.Status)
	require.NotNil(t, receipt.DeliveredAt)
	assert.True(t, at.Equal(*receipt.DeliveredAt))
	assert.Nil(t, receipt.SeenAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDeliveredLeavesSeenRowUnchanged(t *testing.T) {
	repo, mock := newReceiptRepo(t)
	msgID, userID := uuid.New(), uuid.New()
	deliveredAt := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	seenAt := time.Date(2025, 6, 1, 11, 30, 0, 0, time.UTC)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Guard did not fire: no row comes back from the upsert.
	mock.ExpectQuery(deliveredUpsert).
		WithArgs(msgID, userID, at).
		WillReturnRows(sqlmock.NewRows(receiptColumns))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT message_id, user_id, status, delivered_at, seen_at`)).
		WithArgs(msgID, userID).
		WillReturnRows(sqlmock.NewRows(receiptColumns).
			AddRow(msgID.String(), userID.String(), "SEEN", deliveredAt, seenAt))

	receipt, err := repo.MarkDelivered(context.Background(), msgID, userID, at)
	require.NoError(t, err)
	assert.Equal(t, models.ReceiptSeen, receipt.Status)
	require.NotNil(t, receipt.SeenAt)
	assert.True(t, seenAt.Equal(*receipt.SeenAt))
	require.NotNil(t, receipt.DeliveredAt)
	assert.True(t, deliveredAt.Equal(*receipt.DeliveredAt), "a late delivery must not touch timestamps")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSeenThroughCountsOnlyAdvancedRows(t *testing.T) {
	repo, mock := newReceiptRepo(t)
	convID, userID := uuid.New(), uuid.New()
	cutoffID := uuid.New()
	cutoffAt := time.Date(2025, 6, 1, 11, 59, 0, 0, time.UTC)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Three messages at or before the cutoff, one receipt already SEEN:
	// the statement touches two rows and that is the reported count.
	mock.ExpectExec(seenSweep).
		WithArgs(convID, userID, cutoffAt, cutoffID, at).
		WillReturnResult(sqlmock.NewResult(0, 2))

	count, err := repo.MarkSeenThrough(context.Background(), convID, userID, cutoffAt, cutoffID, at)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSeenThroughBindsCutoffTuple(t *testing.T) {
	repo, mock := newReceiptRepo(t)
	convID, userID := uuid.New(), uuid.New()
	cutoffID := uuid.New()
	cutoffAt := time.Date(2025, 6, 1, 11, 59, 0, 0, time.UTC)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// A sweep whose frontier matches nothing advances zero rows.
	mock.ExpectExec(seenSweep).
		WithArgs(convID, userID, cutoffAt, cutoffID, at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	count, err := repo.MarkSeenThrough(context.Background(), convID, userID, cutoffAt, cutoffID, at)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingReceipt(t *testing.T) {
	repo, mock := newReceiptRepo(t)
	msgID, userID := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT message_id, user_id, status, delivered_at, seen_at`)).
		WithArgs(msgID, userID).
		WillReturnRows(sqlmock.NewRows(receiptColumns))

	_, err := repo.Get(context.Background(), msgID, userID)
	require.ErrorIs(t, err, ErrReceiptNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
