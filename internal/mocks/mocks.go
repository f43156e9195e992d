package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/zradj/geets-backend/internal/models"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) Create(ctx context.Context, conversation models.Conversation, participants []models.ConversationParticipant) (models.Conversation, error) {
	args := m.Called(ctx, conversation, participants)
	var created models.Conversation
	if val := args.Get(0); val != nil {
		created = val.(models.Conversation)
	}
	return created, args.Error(1)
}

func (m *ConversationRepositoryMock) Exists(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	args := m.Called(ctx, conversationID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) Participants(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, conversationID)
	var ids []uuid.UUID
	if val := args.Get(0); val != nil {
		ids = val.([]uuid.UUID)
	}
	return ids, args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateWithReceipts(ctx context.Context, msg models.Message, receipts []models.MessageReceipt) error {
	args := m.Called(ctx, msg, receipts)
	return args.Error(0)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateBody(ctx context.Context, messageID uuid.UUID, newBody string) error {
	args := m.Called(ctx, messageID, newBody)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID uuid.UUID) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) ListForConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) LatestOtherAuthored(ctx context.Context, conversationID uuid.UUID, excludeSender uuid.UUID, cutoffAt time.Time, cutoffID uuid.UUID) (models.Message, error) {
	args := m.Called(ctx, conversationID, excludeSender, cutoffAt, cutoffID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type ReceiptRepositoryMock struct {
	mock.Mock
}

func (m *ReceiptRepositoryMock) MarkDelivered(ctx context.Context, messageID uuid.UUID, userID uuid.UUID, at time.Time) (models.MessageReceipt, error) {
	args := m.Called(ctx, messageID, userID, at)
	var receipt models.MessageReceipt
	if val := args.Get(0); val != nil {
		receipt = val.(models.MessageReceipt)
	}
	return receipt, args.Error(1)
}

func (m *ReceiptRepositoryMock) MarkSeenThrough(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID, cutoffAt time.Time, cutoffID uuid.UUID, at time.Time) (int, error) {
	args := m.Called(ctx, conversationID, userID, cutoffAt, cutoffID, at)
	return args.Int(0), args.Error(1)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, token string) (uuid.UUID, error) {
	args := m.Called(ctx, token)
	var id uuid.UUID
	if val := args.Get(0); val != nil {
		id = val.(uuid.UUID)
	}
	return id, args.Error(1)
}
