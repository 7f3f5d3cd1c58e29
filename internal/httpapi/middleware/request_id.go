package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/syllabi/chat-platform/internal/common"
)

const RequestIDKey = "request_id"

// RequestID attaches a request id to the context and response, reusing
// the caller's X-Request-ID when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = common.NewUUID()
		}
		c.Set(RequestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
