package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/syllabi/chat-platform/internal/chatbot"
	"github.com/syllabi/chat-platform/internal/common"
	"github.com/syllabi/chat-platform/internal/httpapi/middleware"
	"github.com/syllabi/chat-platform/internal/models"
)

type createChatbotReq struct {
	Name                string         `json:"name" binding:"required"`
	Slug                string         `json:"slug" binding:"required"`
	SystemPrompt        string         `json:"system_prompt"`
	ModelIdentifier     string         `json:"model_identifier"`
	Temperature         *float64       `json:"temperature"`
	ToolSelectionMethod string         `json:"tool_selection_method"`
	RateLimitConfig     map[string]any `json:"rate_limit_config"`
}

func (h *Handler) CreateChatbot(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)

	var req createChatbotReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	bot := &chatbot.Chatbot{
		ID:                  common.NewUUID(),
		UserID:              userID,
		Name:                req.Name,
		Slug:                req.Slug,
		SystemPrompt:        req.SystemPrompt,
		ModelIdentifier:     req.ModelIdentifier,
		Temperature:         req.Temperature,
		ToolSelectionMethod: req.ToolSelectionMethod,
		RateLimitJSON:       models.JSONMap(req.RateLimitConfig),
	}
	if err := h.Chatbots.Create(c.Request.Context(), bot); err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "failed to create chatbot (slug may already exist)")
		return
	}
	common.OK(c, bot)
}

func (h *Handler) GetChatbot(c *gin.Context) {
	bot, err := h.Chatbots.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			common.Fail(c, http.StatusNotFound, 40403, "chatbot not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		return
	}
	if bot.UserID != c.GetString(middleware.UserIDKey) {
		common.Fail(c, http.StatusNotFound, 40403, "chatbot not found")
		return
	}
	common.OK(c, bot)
}

func (h *Handler) ListChannelLinks(c *gin.Context) {
	integration, ok := h.ownedIntegration(c)
	if !ok {
		return
	}
	links, err := h.Chatbots.ListChannelLinks(c.Request.Context(), integration.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to list channel links")
		return
	}
	common.OK(c, gin.H{"links": links})
}

type createChannelLinkReq struct {
	ChatbotID    string `json:"chatbot_id" binding:"required"`
	Trigger      string `json:"trigger"`
	SlashCommand string `json:"slash_command"`
	IsDefault    bool   `json:"is_default"`
}

func (h *Handler) CreateChannelLink(c *gin.Context) {
	integration, ok := h.ownedIntegration(c)
	if !ok {
		return
	}

	var req createChannelLinkReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	cfg := models.JSONMap{}
	if req.Trigger != "" {
		cfg["trigger"] = req.Trigger
	}
	if req.SlashCommand != "" {
		cfg["slash_command"] = req.SlashCommand
	}
	if req.IsDefault {
		cfg["is_default"] = true
	}

	link := &chatbot.ChannelLink{
		ID:            common.NewUUID(),
		IntegrationID: integration.ID,
		ChatbotID:     req.ChatbotID,
		Config:        cfg,
	}
	if err := h.Chatbots.CreateChannelLink(c.Request.Context(), link); err != nil {
		if err == chatbot.ErrTriggerTaken {
			common.Fail(c, http.StatusConflict, 10005, "trigger phrase already in use")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create channel link")
		return
	}
	common.OK(c, link)
}

func (h *Handler) DeleteChannelLink(c *gin.Context) {
	integration, ok := h.ownedIntegration(c)
	if !ok {
		return
	}

	linkID := c.Param("link_id")
	links, err := h.Chatbots.ListChannelLinks(c.Request.Context(), integration.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		return
	}
	found := false
	for _, l := range links {
		if l.ID == linkID {
			found = true
			break
		}
	}
	if !found {
		common.Fail(c, http.StatusNotFound, 40404, "channel link not found")
		return
	}

	if err := h.Chatbots.DeleteChannelLink(c.Request.Context(), linkID); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to delete channel link")
		return
	}
	common.OK(c, gin.H{"deleted": true})
}

func (h *Handler) ownedIntegration(c *gin.Context) (*chatbot.ConnectedIntegration, bool) {
	ci, err := h.Chatbots.GetIntegration(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			common.Fail(c, http.StatusNotFound, 40405, "integration not found")
		} else {
			common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		}
		return nil, false
	}
	if ci.UserID != c.GetString(middleware.UserIDKey) {
		common.Fail(c, http.StatusNotFound, 40405, "integration not found")
		return nil, false
	}
	return ci, true
}
