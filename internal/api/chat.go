package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/campusconnect/internal/chat"
	"github.com/lalith-99/campusconnect/internal/middleware"
	"go.uber.org/zap"
)

type ChatHandler struct {
	relay  *chat.Relay
	logger *zap.Logger
}

func NewChatHandler(relay *chat.Relay, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{relay: relay, logger: logger}
}

type accessChatRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// Access handles POST /v1/chats
//
// Returns the chat with user_id, creating it on first access. Calling it
// again, from either side, returns the same chat.
func (h *ChatHandler) Access(c *gin.Context) {
	var req accessChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	view, err := h.relay.AccessChat(c.Request.Context(), middleware.GetUserID(c), uuid.MustParse(req.UserID))
	if err != nil {
		respondError(c, h.logger, "access chat", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// List handles GET /v1/chats
func (h *ChatHandler) List(c *gin.Context) {
	views, err := h.relay.ListChats(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "list chats", err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// SendMessage handles POST /v1/chats/:chatId/messages
func (h *ChatHandler) SendMessage(c *gin.Context) {
	chatID, ok := uuidParam(c, "chatId")
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	view, err := h.relay.SendMessage(c.Request.Context(), chatID, middleware.GetUserID(c), req.Content)
	if err != nil {
		respondError(c, h.logger, "send message", err)
		return
	}
	c.JSON(http.StatusCreated, view)
}
