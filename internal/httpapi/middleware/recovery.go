package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/syllabi/chat-platform/internal/common"
)

// Recovery converts panics into the standard error envelope instead of
// leaking internals to the caller.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Recovery] panic: %v\n%s", r, debug.Stack())
				if !c.Writer.Written() {
					common.Fail(c, http.StatusInternalServerError, 50000, "an error occurred")
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
