package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zradj/geets-backend/internal/middleware"
	"github.com/zradj/geets-backend/internal/mocks"
	"github.com/zradj/geets-backend/internal/models"
	"github.com/zradj/geets-backend/internal/services"
)

func setupRouter(userID uuid.UUID, conversations *mocks.ConversationRepositoryMock, messages *mocks.MessageRepositoryMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	pipeline := services.NewMessaging(conversations, messages, new(mocks.ReceiptRepositoryMock))
	h := NewConversationHandler(conversations, pipeline)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	})
	r.POST("/conversations", h.CreateConversation)
	r.POST("/groups", h.CreateGroup)
	r.GET("/conversations", h.ListConversations)
	r.GET("/conversations/:conversation_id/messages", h.GetMessages)
	return r
}

func TestCreateConversation(t *testing.T) {
	userID := uuid.New()
	conversations := new(mocks.ConversationRepositoryMock)
	r := setupRouter(userID, conversations, new(mocks.MessageRepositoryMock))

	title := "daily standup"
	conversations.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			participants := args.Get(2).([]models.ConversationParticipant)
			require.Len(t, participants, 1)
			assert.Equal(t, userID, participants[0].UserID)
			assert.Equal(t, models.RoleMember, participants[0].Role)
		}).
		Return(models.Conversation{ID: uuid.New(), Title: &title}, nil).Once()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/conversations", bytes.NewBufferString(`{"title":"daily standup"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var created models.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotNil(t, created.Title)
	assert.Equal(t, "daily standup", *created.Title)
	assert.False(t, created.IsGroup)
	conversations.AssertExpectations(t)
}

func TestCreateConversationMissingTitle(t *testing.T) {
	conversations := new(mocks.ConversationRepositoryMock)
	r := setupRouter(uuid.New(), conversations, new(mocks.MessageRepositoryMock))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/conversations", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	conversations.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateGroupRolesAndDedup(t *testing.T) {
	creator := uuid.New()
	member := uuid.New()
	conversations := new(mocks.ConversationRepositoryMock)
	r := setupRouter(creator, conversations, new(mocks.MessageRepositoryMock))

	groupTitle := "team"
	conversations.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			group := args.Get(1).(models.Conversation)
			assert.True(t, group.IsGroup)

			participants := args.Get(2).([]models.ConversationParticipant)
			require.Len(t, participants, 2, "creator listed in participant_ids must not be duplicated")
			assert.Equal(t, creator, participants[0].UserID)
			assert.Equal(t, models.RoleAdmin, participants[0].Role)
			assert.Equal(t, member, participants[1].UserID)
			assert.Equal(t, models.RoleMember, participants[1].Role)
		}).
		Return(models.Conversation{ID: uuid.New(), Title: &groupTitle, IsGroup: true}, nil).Once()

	body := fmt.Sprintf(`{"title":"team","participant_ids":[%q,%q]}`, creator, member)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	conversations.AssertExpectations(t)
}

func TestListConversations(t *testing.T) {
	userID := uuid.New()
	conversations := new(mocks.ConversationRepositoryMock)
	r := setupRouter(userID, conversations, new(mocks.MessageRepositoryMock))

	title := "standup"
	conversations.On("ListForUser", mock.Anything, userID).Return([]models.Conversation{
		{ID: uuid.New(), Title: &title},
	}, nil).Once()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Conversations, 1)
	conversations.AssertExpectations(t)
}

func TestGetMessages(t *testing.T) {
	userID := uuid.New()
	convID := uuid.New()
	conversations := new(mocks.ConversationRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	r := setupRouter(userID, conversations, messages)

	conversations.On("IsParticipant", mock.Anything, convID, userID).Return(true, nil).Once()
	messages.On("ListForConversation", mock.Anything, convID, 10).Return([]models.Message{
		{ID: uuid.New(), ConversationID: convID, Body: "hi"},
	}, nil).Once()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations/"+convID.String()+"/messages?limit=10", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Messages, 1)
	conversations.AssertExpectations(t)
	messages.AssertExpectations(t)
}

func TestGetMessagesForbiddenForNonParticipant(t *testing.T) {
	userID := uuid.New()
	convID := uuid.New()
	conversations := new(mocks.ConversationRepositoryMock)
	r := setupRouter(userID, conversations, new(mocks.MessageRepositoryMock))

	conversations.On("IsParticipant", mock.Anything, convID, userID).Return(false, nil).Once()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations/"+convID.String()+"/messages", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	conversations.AssertExpectations(t)
}

func TestGetMessagesBadConversationID(t *testing.T) {
	r := setupRouter(uuid.New(), new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations/not-a-uuid/messages", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
