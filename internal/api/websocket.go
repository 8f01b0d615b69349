package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/campusconnect/internal/auth"
	"github.com/lalith-99/campusconnect/internal/realtime"
	"go.uber.org/zap"
)

const (
	wsReadTimeout = 60 * time.Second
	wsReadLimit   = 4 << 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// inboundFrame is the only thing a client may send on the socket. Messages
// go through POST /v1/chats/:chatId/messages.
type inboundFrame struct {
	Type string `json:"type" validate:"required,oneof=ping"`
}

type controlFrame struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

// WebSocketHandler attaches live channels to the Hub.
type WebSocketHandler struct {
	hub      *realtime.Hub
	secret   string
	validate *validator.Validate
	logger   *zap.Logger
}

func NewWebSocketHandler(hub *realtime.Hub, secret string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		secret:   secret,
		validate: validator.New(),
		logger:   logger.Named("ws"),
	}
}

// Handle serves GET /v1/ws?token=...
//
// Browsers cannot set headers on a websocket handshake, so the token comes
// from the query string; an Authorization header is accepted too.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer"))
	}
	userID, err := auth.ResolveCaller(token, h.secret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the response.
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	conn := realtime.NewConnection(userID, ws)
	h.hub.Attach(conn)
	defer func() {
		h.hub.Detach(conn)
		conn.Close(websocket.CloseNormalClosure, "session closed")
	}()

	ws.SetReadLimit(wsReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	h.reply(conn, controlFrame{Type: "connected"})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				h.logger.Debug("read failed", zap.String("user_id", userID.String()), zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.reply(conn, controlFrame{Type: "error", Error: "invalid payload"})
			continue
		}
		if err := h.validate.Struct(frame); err != nil {
			h.reply(conn, controlFrame{Type: "error", Error: "unsupported frame type"})
			continue
		}
		h.reply(conn, controlFrame{Type: "pong"})
	}
}

func (h *WebSocketHandler) reply(conn *realtime.Connection, frame controlFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	_ = conn.Send(payload)
}
