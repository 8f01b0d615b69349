package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/campusconnect/internal/apperr"
	"go.uber.org/zap"
)

// respondError writes err as {"error", "kind"} with the status its kind maps
// to. Internal failures are logged and their detail is not sent to the
// client.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	message := "internal error"
	var e *apperr.Error
	if kind != apperr.KindInternal && errors.As(err, &e) {
		message = e.Message
	}

	if status >= 500 {
		logger.Error(op+" failed", zap.String("kind", string(kind)), zap.Error(err))
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": message, "kind": kind})
}

// uuidParam parses the named path parameter. On failure it writes a 400 and
// returns false.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name, "kind": apperr.KindValidation})
		return uuid.Nil, false
	}
	return id, true
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": apperr.KindValidation})
}
