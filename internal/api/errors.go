package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/talentpipe/sourcing/internal/domain"
	"github.com/talentpipe/sourcing/internal/logger"
)

// respondError maps domain errors onto HTTP statuses. Unrecognized errors
// become 500s with the detail kept out of the response body.
func respondError(c *gin.Context, log logger.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domain.ErrModelNotComputed):
		c.JSON(http.StatusConflict, gin.H{"error": "missing cached scoring model"})
	case errors.Is(err, domain.ErrInsufficientCredits):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient credits"})
	case domain.IsUpstreamError(err):
		log.Error("upstream failure", logger.Error(err),
			logger.String("path", c.Request.URL.Path))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream service failure"})
	default:
		log.Error("request failed", logger.Error(err),
			logger.String("path", c.Request.URL.Path),
			logger.String("method", c.Request.Method))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
