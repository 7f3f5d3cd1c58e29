package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/syllabi/chat-platform/internal/auth"
	"github.com/syllabi/chat-platform/internal/channel/alexa"
	"github.com/syllabi/chat-platform/internal/chatbot"
	"github.com/syllabi/chat-platform/internal/common"
	"github.com/syllabi/chat-platform/internal/httpapi/middleware"
)

// AlexaSkill is the endpoint Amazon invokes for every voice request.
// It always answers 200 with a spoken response; errors have no meaning
// on this channel.
func (h *Handler) AlexaSkill(c *gin.Context) {
	var req alexa.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, alexa.Response{
			Version: "1.0",
			Response: alexa.ResponseBody{
				OutputSpeech:     &alexa.OutputSpeech{Type: "PlainText", Text: "Sorry, an error occurred. Please try again."},
				ShouldEndSession: true,
			},
		})
		return
	}
	c.JSON(http.StatusOK, h.Alexa.Handle(c.Request.Context(), req))
}

// LinkAlexaAccount creates (or reuses) the caller's Alexa integration and
// issues the long-lived channel token the account-linking flow hands to
// Amazon.
func (h *Handler) LinkAlexaAccount(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)
	if userID == "" {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	ci := &chatbot.ConnectedIntegration{
		ID:              common.NewUUID(),
		UserID:          userID,
		IntegrationType: "alexa",
		Metadata:        map[string]any{},
	}
	if err := h.Chatbots.CreateIntegration(c.Request.Context(), ci); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create integration")
		return
	}

	token, err := auth.SignChannelToken(userID, ci.ID, h.Cfg.JWTSecret, 365*24*time.Hour)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to sign token")
		return
	}

	common.OK(c, gin.H{
		"integration_id": ci.ID,
		"access_token":   token,
	})
}
