package api

import (
	"github.com/gin-gonic/gin"
	"github.com/lalith-99/campusconnect/internal/chat"
	"github.com/lalith-99/campusconnect/internal/connection"
	"github.com/lalith-99/campusconnect/internal/middleware"
	"github.com/lalith-99/campusconnect/internal/realtime"
	"github.com/lalith-99/campusconnect/internal/recommend"
	"github.com/lalith-99/campusconnect/internal/repository"
	"go.uber.org/zap"
)

// Deps is everything the HTTP surface is built from.
type Deps struct {
	Connections *connection.Service
	Recommender *recommend.Engine
	Chats       *chat.Relay
	Users       repository.UserRepository
	Store       repository.Pinger
	Hub         *realtime.Hub
	JWTSecret   string
	Logger      *zap.Logger
}

// NewRouter registers every route on a fresh gin engine.
//
// /v1/health and /v1/ws are public: the first is for load balancers, the
// second authenticates from its own query string. Everything else needs a
// bearer token.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(d.Logger), gin.Recovery())

	health := NewHealthHandler(d.Store, d.Logger)
	ws := NewWebSocketHandler(d.Hub, d.JWTSecret, d.Logger)
	r.GET("/v1/health", health.Check)
	r.GET("/v1/ws", ws.Handle)

	conns := NewConnectionHandler(d.Connections, d.Logger)
	recs := NewRecommendationHandler(d.Recommender, d.Logger)
	chats := NewChatHandler(d.Chats, d.Logger)
	users := NewUserHandler(d.Users, d.Logger)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(d.JWTSecret))

	v1.GET("/users/me", users.GetMe)

	v1.GET("/connections", conns.List)
	v1.GET("/connections/requests", conns.ListIncoming)
	v1.GET("/connections/requests/sent", conns.ListOutgoing)
	v1.POST("/connections/requests/:userId", conns.SendRequest)
	v1.PUT("/connections/requests/:requestId/accept", conns.Accept)
	v1.PUT("/connections/requests/:requestId/reject", conns.Reject)

	v1.GET("/recommendations", recs.List)

	v1.GET("/chats", chats.List)
	v1.POST("/chats", chats.Access)
	v1.POST("/chats/:chatId/messages", chats.SendMessage)

	return r
}
