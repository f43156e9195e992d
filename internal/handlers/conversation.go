package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zradj/geets-backend/internal/middleware"
	"github.com/zradj/geets-backend/internal/models"
	"github.com/zradj/geets-backend/internal/repositories"
	"github.com/zradj/geets-backend/internal/services"
)

// ConversationHandler manages the thin conversation endpoints around the
// websocket core: creation, listing and history.
type ConversationHandler struct {
	conversations repositories.ConversationRepository
	pipeline      *services.Messaging
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(conversations repositories.ConversationRepository, pipeline *services.Messaging) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, pipeline: pipeline}
}

// CreateConversation creates a direct conversation with the caller as its
// first participant.
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req struct {
		Title string `json:"title" binding:"required,max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.UserID(c)
	conversation := models.Conversation{ID: uuid.New(), Title: &req.Title}
	participants := []models.ConversationParticipant{{
		ConversationID: conversation.ID,
		UserID:         userID,
		Role:           models.RoleMember,
		JoinedAt:       time.Now().UTC(),
	}}

	created, err := h.conversations.Create(c.Request.Context(), conversation, participants)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}
	c.JSON(http.StatusOK, created)
}

// CreateGroup creates a group conversation. The creator becomes ADMIN, every
// listed participant joins as MEMBER.
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Title          string      `json:"title" binding:"required,max=100"`
		ParticipantIDs []uuid.UUID `json:"participant_ids" binding:"max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.UserID(c)
	now := time.Now().UTC()
	group := models.Conversation{ID: uuid.New(), Title: &req.Title, IsGroup: true}

	participants := []models.ConversationParticipant{{
		ConversationID: group.ID,
		UserID:         userID,
		Role:           models.RoleAdmin,
		JoinedAt:       now,
	}}
	for _, participantID := range req.ParticipantIDs {
		if participantID == userID {
			continue
		}
		participants = append(participants, models.ConversationParticipant{
			ConversationID: group.ID,
			UserID:         participantID,
			Role:           models.RoleMember,
			JoinedAt:       now,
		})
	}

	created, err := h.conversations.Create(c.Request.Context(), group, participants)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}
	c.JSON(http.StatusOK, created)
}

// ListConversations returns the conversations visible to the caller.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := middleware.UserID(c)

	conversations, err := h.conversations.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// GetMessages returns conversation history for a participant, newest first,
// soft-deleted messages excluded.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	userID := middleware.UserID(c)
	msgs, err := h.pipeline.GetMessages(c.Request.Context(), userID, conversationID, limit)
	if err != nil {
		if errors.Is(err, services.ErrPermissionDenied) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
