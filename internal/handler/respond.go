package handler

import (
	"net/http"

	"github.com/damoang/angple-market/internal/common"
	"github.com/damoang/angple-market/internal/middleware"
	"github.com/damoang/angple-market/pkg/ginutil"
	"github.com/damoang/angple-market/pkg/logger"
	"github.com/gin-gonic/gin"
)

// respondError writes the error envelope for a service error.
// Internal errors are logged and reported with a generic message.
func respondError(c *gin.Context, err error) {
	status := common.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logger.GetLogger().Error().Err(err).
			Str("request_id", middleware.GetRequestID(c)).
			Str("path", c.FullPath()).
			Msg("request failed")
		common.ErrorResponse(c, status, "Internal server error", nil)
		return
	}
	common.ErrorResponse(c, status, err.Error(), nil)
}

// badRequest reports a body/parameter binding failure
func badRequest(c *gin.Context, message string, err error) {
	common.ErrorResponse(c, http.StatusBadRequest, message, err)
}

// pathID parses a positive numeric path parameter
func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := ginutil.ParamUint64(c, name)
	if err != nil || id == 0 {
		badRequest(c, "Invalid "+name, nil)
		return 0, false
	}
	return id, true
}

// queryInt returns 0 for a missing or non-numeric parameter so the service default applies
func queryInt(c *gin.Context, name string) int {
	return ginutil.QueryInt(c, name, 0)
}
