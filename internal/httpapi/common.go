package httpapi

import "github.com/gin-gonic/gin"

// contextUserIDKey is the gin context key holding the authenticated user ID.
const contextUserIDKey = "userID"

// getUserID extracts the user ID from gin context.
func getUserID(c *gin.Context) uint64 {
	val, exists := c.Get(contextUserIDKey)
	if !exists {
		return 0
	}
	switch v := val.(type) {
	case uint64:
		return v
	case int64:
		return uint64(v)
	case uint:
		return uint64(v)
	case int:
		return uint64(v)
	default:
		return 0
	}
}
