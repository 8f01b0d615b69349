package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/campusconnect/internal/apperr"
	"github.com/lalith-99/campusconnect/internal/middleware"
	"github.com/lalith-99/campusconnect/internal/repository"
	"go.uber.org/zap"
)

// UserHandler handles user-related operations.
type UserHandler struct {
	repo   repository.UserRepository
	logger *zap.Logger
}

func NewUserHandler(repo repository.UserRepository, logger *zap.Logger) *UserHandler {
	return &UserHandler{repo: repo, logger: logger}
}

// GetMe handles GET /v1/users/me
//
// Returns the caller's profile, including the ids of connected peers.
func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.repo.GetByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		// A valid token for a user the profile store does not know is a
		// 404, not a 500.
		if errors.Is(err, repository.ErrNotFound) {
			err = apperr.NotFound("user")
		}
		respondError(c, h.logger, "get user", err)
		return
	}
	c.JSON(http.StatusOK, user)
}
