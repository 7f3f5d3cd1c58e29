package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/syllabi/chat-platform/internal/auth"
	"github.com/syllabi/chat-platform/internal/chat"
	"github.com/syllabi/chat-platform/internal/common"
	"github.com/syllabi/chat-platform/internal/ratelimit"
)

// ExternalChat handles one chat turn from any channel and streams the
// answer back in the line protocol. A bearer token is optional: present
// and valid, it identifies the caller for the authenticated rate limit
// class.
func (h *Handler) ExternalChat(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		if uid, err := auth.ParseUserToken(strings.TrimPrefix(header, "Bearer "), h.Cfg.JWTSecret); err == nil {
			req.UserID = uid
		}
	}

	chunks, errs, err := h.ChatSvc.StreamChat(c.Request.Context(), req)
	if err != nil {
		var rle *chat.RateLimitError
		switch {
		case errors.As(err, &rle):
			writeRateLimited(c, rle.Decision)
		case errors.Is(err, chat.ErrChatbotNotFound):
			common.Fail(c, http.StatusNotFound, 40401, "chatbot not found")
		case errors.Is(err, chat.ErrNoMessages):
			common.Fail(c, http.StatusBadRequest, 10002, "messages required")
		default:
			common.Fail(c, http.StatusInternalServerError, 50001, "an error occurred")
		}
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	for chunk := range chunks {
		if _, err := io.WriteString(c.Writer, chat.EncodeChunk(chunk)); err != nil {
			// Client went away; the service still persists the reply.
			for range chunks {
			}
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	<-errs
}

func writeRateLimited(c *gin.Context, d ratelimit.Decision) {
	retryAfter := "3600"
	if d.LimitType == ratelimit.LimitDay {
		retryAfter = "86400"
	}
	message := d.CustomMessage
	if message == "" {
		message = "You have reached your message limit. Please try again later."
	}
	c.Header("Retry-After", retryAfter)
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":          "RATE_LIMIT_EXCEEDED",
		"message":        message,
		"limit_type":     d.LimitType,
		"remaining_hour": d.RemainingHour,
		"remaining_day":  d.RemainingDay,
	})
}
