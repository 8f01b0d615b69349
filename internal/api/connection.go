package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/campusconnect/internal/connection"
	"github.com/lalith-99/campusconnect/internal/middleware"
	"go.uber.org/zap"
)

type ConnectionHandler struct {
	svc    *connection.Service
	logger *zap.Logger
}

func NewConnectionHandler(svc *connection.Service, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{svc: svc, logger: logger}
}

// SendRequest handles POST /v1/connections/requests/:userId
func (h *ConnectionHandler) SendRequest(c *gin.Context) {
	receiverID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}

	req, err := h.svc.SendRequest(c.Request.Context(), middleware.GetUserID(c), receiverID)
	if err != nil {
		respondError(c, h.logger, "send connection request", err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// Accept handles PUT /v1/connections/requests/:requestId/accept
func (h *ConnectionHandler) Accept(c *gin.Context) {
	requestID, ok := uuidParam(c, "requestId")
	if !ok {
		return
	}

	req, err := h.svc.AcceptRequest(c.Request.Context(), requestID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "accept connection request", err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// Reject handles PUT /v1/connections/requests/:requestId/reject
func (h *ConnectionHandler) Reject(c *gin.Context) {
	requestID, ok := uuidParam(c, "requestId")
	if !ok {
		return
	}

	req, err := h.svc.RejectRequest(c.Request.Context(), requestID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "reject connection request", err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// List handles GET /v1/connections
func (h *ConnectionHandler) List(c *gin.Context) {
	users, err := h.svc.ListConnections(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "list connections", err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// ListIncoming handles GET /v1/connections/requests
func (h *ConnectionHandler) ListIncoming(c *gin.Context) {
	reqs, err := h.svc.ListPendingIncoming(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "list pending requests", err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

// ListOutgoing handles GET /v1/connections/requests/sent
func (h *ConnectionHandler) ListOutgoing(c *gin.Context) {
	reqs, err := h.svc.ListPendingOutgoing(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "list sent requests", err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}
