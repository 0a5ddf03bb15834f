package api

import (
	"log/slog"
	"net/http"
	"pet-chat/auth"
	"pet-chat/contract"
	"pet-chat/errors"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service contract.IChatService
	log     *slog.Logger
}

func NewHandler(service contract.IChatService, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

type openConversationRequest struct {
	SenderID   string `json:"senderId" binding:"required"`
	ReceiverID string `json:"receiverId" binding:"required"`
}

type sendMessageRequest struct {
	ChatID string `json:"chatId" binding:"required"`
	Text   string `json:"text" binding:"required"`
}

type readResponse struct {
	UpdatedCount int `json:"updatedCount"`
}

type presenceResponse struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

func (h *Handler) OpenConversation(c *gin.Context) {
	var body openConversationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "senderId and receiverId are required"})
		return
	}
	conv, err := h.service.OpenConversation(c.Request.Context(), auth.CallerID(c), body.SenderID, body.ReceiverID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) Conversations(c *gin.Context) {
	conversations, err := h.service.Conversations(c.Request.Context(), auth.CallerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conversations)
}

// SendMessage stores a message authored by the caller.
func (h *Handler) SendMessage(c *gin.Context) {
	var body sendMessageRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "chatId and text are required"})
		return
	}
	msg, err := h.service.SendMessage(c.Request.Context(), body.ChatID, auth.CallerID(c), body.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) Messages(c *gin.Context) {
	messages, err := h.service.Messages(c.Request.Context(), c.Param("chatId"), auth.CallerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *Handler) MarkRead(c *gin.Context) {
	updated, err := h.service.MarkRead(c.Request.Context(), c.Param("chatId"), auth.CallerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, readResponse{UpdatedCount: updated})
}

func (h *Handler) UnreadCounts(c *gin.Context) {
	counts, err := h.service.UnreadCounts(c.Request.Context(), auth.CallerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *Handler) Presence(c *gin.Context) {
	userID := c.Param("userId")
	online, err := h.service.IsOnline(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, presenceResponse{UserID: userID, Online: online})
}

// fail maps a service error to its status code. Store failures are logged and hidden.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.Is(err, errors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"message": err.Error()})
	case errors.Is(err, errors.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"message": "Not a participant of this chat"})
	case errors.Is(err, errors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Chat not found"})
	default:
		h.log.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
	}
}
