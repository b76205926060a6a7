package middleware

import (
	"net/http"

	"github.com/damoang/angple-market/internal/common"
	"github.com/damoang/angple-market/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Recovery converts panics into a generic 500 envelope and logs the cause
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.GetLogger().Error().
			Str("request_id", c.GetString(ctxRequestID)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Interface("panic", recovered).
			Msg("panic recovered")
		common.ErrorResponse(c, http.StatusInternalServerError, "Internal server error", nil)
		c.Abort()
	})
}
