package ginutil

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// QueryInt extracts an integer from query parameters with default value
func QueryInt(c *gin.Context, key string, defaultValue int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return defaultValue
	}
	return n
}

// QueryUint64 extracts an optional unsigned id from query parameters.
// A missing parameter yields (0, nil).
func QueryUint64(c *gin.Context, key string) (uint64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

// ParamUint64 extracts an unsigned id from path parameters
func ParamUint64(c *gin.Context, key string) (uint64, error) {
	return strconv.ParseUint(c.Param(key), 10, 64)
}
