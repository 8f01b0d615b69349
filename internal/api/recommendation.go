package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/campusconnect/internal/apperr"
	"github.com/lalith-99/campusconnect/internal/middleware"
	"github.com/lalith-99/campusconnect/internal/recommend"
	"go.uber.org/zap"
)

type RecommendationHandler struct {
	engine *recommend.Engine
	logger *zap.Logger
}

func NewRecommendationHandler(engine *recommend.Engine, logger *zap.Logger) *RecommendationHandler {
	return &RecommendationHandler{engine: engine, logger: logger}
}

// List handles GET /v1/recommendations?limit=20
//
// limit is a top-N cut, not a page size. Without it every candidate is
// returned.
func (h *RecommendationHandler) List(c *gin.Context) {
	limit := 0
	if l := c.Query("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter", "kind": apperr.KindValidation})
			return
		}
	}

	ranking, err := h.engine.Recommend(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, "recommend", err)
		return
	}
	c.JSON(http.StatusOK, ranking.Collect(limit))
}
