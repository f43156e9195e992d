package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zradj/geets-backend/internal/mocks"
	"github.com/zradj/geets-backend/internal/models"
	"github.com/zradj/geets-backend/internal/services"
)

func TestValidateOperations(t *testing.T) {
	require.NoError(t, ValidateOperations())
}

func TestEventKindsCoverEveryOperation(t *testing.T) {
	kinds := EventKinds()
	assert.ElementsMatch(t, []string{"created", "edited", "deleted", "seen", "delivered"}, kinds)
}

func newDispatchPipeline() (*services.Messaging, *mocks.ConversationRepositoryMock, *mocks.MessageRepositoryMock, *mocks.ReceiptRepositoryMock) {
	conversations := new(mocks.ConversationRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	receipts := new(mocks.ReceiptRepositoryMock)
	return services.NewMessaging(conversations, messages, receipts), conversations, messages, receipts
}

func TestRunCreateRoutesByConversation(t *testing.T) {
	svc, conversations, messages, _ := newDispatchPipeline()
	userID := uuid.New()
	convID := uuid.New()

	conversations.On("Exists", mock.Anything, convID).Return(true, nil)
	conversations.On("IsParticipant", mock.Anything, convID, userID).Return(true, nil)
	conversations.On("Participants", mock.Anything, convID).Return([]uuid.UUID{userID}, nil)
	messages.On("CreateWithReceipts", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	payload := json.RawMessage(fmt.Sprintf(`{"conversation_id":%q,"body":"hi"}`, convID))
	result, routedTo, err := operations["message.create"].run(context.Background(), svc, userID, payload)
	require.NoError(t, err)
	assert.Equal(t, convID, routedTo)

	msg, ok := result.(models.Message)
	require.True(t, ok)
	assert.Equal(t, "hi", msg.Body)
}

func TestRunDeliveredRoutesByConversation(t *testing.T) {
	svc, conversations, messages, receipts := newDispatchPipeline()
	userID := uuid.New()
	convID := uuid.New()
	msgID := uuid.New()

	messages.On("Get", mock.Anything, msgID).Return(models.Message{
		ID: msgID, ConversationID: convID, SenderID: uuid.New(),
	}, nil)
	conversations.On("IsParticipant", mock.Anything, convID, userID).Return(true, nil)
	receipts.On("MarkDelivered", mock.Anything, msgID, userID, mock.Anything).Return(models.MessageReceipt{
		MessageID: msgID, UserID: userID, Status: models.ReceiptDelivered,
	}, nil)

	payload := json.RawMessage(fmt.Sprintf(`{"message_id":%q}`, msgID))
	result, routedTo, err := operations["message.delivered"].run(context.Background(), svc, userID, payload)
	require.NoError(t, err)
	assert.Equal(t, convID, routedTo)

	receipt, ok := result.(models.ReceiptResult)
	require.True(t, ok)
	assert.Equal(t, convID, receipt.ConversationID)
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	svc, _, _, _ := newDispatchPipeline()
	userID := uuid.New()

	for name, op := range operations {
		t.Run(name, func(t *testing.T) {
			_, _, err := op.run(context.Background(), svc, userID, nil)
			assert.ErrorIs(t, err, services.ErrBadRequest, "empty payload")

			_, _, err = op.run(context.Background(), svc, userID, json.RawMessage(`[1,2,3]`))
			assert.ErrorIs(t, err, services.ErrBadRequest, "non-object payload")
		})
	}
}
