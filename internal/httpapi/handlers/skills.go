package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/syllabi/chat-platform/internal/common"
	"github.com/syllabi/chat-platform/internal/httpapi/middleware"
	"github.com/syllabi/chat-platform/internal/models"
	"github.com/syllabi/chat-platform/internal/skill"
)

type createSkillReq struct {
	Name           string         `json:"name" binding:"required"`
	DisplayName    string         `json:"display_name"`
	Description    string         `json:"description" binding:"required"`
	Category       string         `json:"category"`
	FunctionSchema map[string]any `json:"function_schema"`
	Configuration  map[string]any `json:"configuration"`
}

func (h *Handler) CreateSkill(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)

	var req createSkillReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Name
	}

	s := &skill.Skill{
		ID:             common.NewUUID(),
		UserID:         userID,
		Name:           req.Name,
		DisplayName:    req.DisplayName,
		Description:    req.Description,
		Category:       req.Category,
		Type:           skill.TypeCustom,
		FunctionSchema: models.JSONMap(req.FunctionSchema),
		Configuration:  models.JSONMap(req.Configuration),
		IsActive:       true,
	}
	if err := h.Skills.Create(c.Request.Context(), s); err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "failed to create skill (name may already exist)")
		return
	}

	h.enqueueEmbedding(c, s.ID)
	common.OK(c, s)
}

func (h *Handler) ListSkills(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)
	skills, err := h.Skills.ListByUser(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to list skills")
		return
	}
	common.OK(c, gin.H{"skills": skills})
}

func (h *Handler) GetSkill(c *gin.Context) {
	s, ok := h.ownedSkill(c)
	if !ok {
		return
	}
	common.OK(c, s)
}

type updateSkillReq struct {
	DisplayName    *string        `json:"display_name"`
	Description    *string        `json:"description"`
	Category       *string        `json:"category"`
	FunctionSchema map[string]any `json:"function_schema"`
	Configuration  map[string]any `json:"configuration"`
	IsActive       *bool          `json:"is_active"`
}

func (h *Handler) UpdateSkill(c *gin.Context) {
	s, ok := h.ownedSkill(c)
	if !ok {
		return
	}

	var req updateSkillReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	updates := map[string]any{}
	if req.DisplayName != nil {
		updates["display_name"] = *req.DisplayName
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if req.FunctionSchema != nil {
		updates["function_schema"] = models.JSONMap(req.FunctionSchema)
	}
	if req.Configuration != nil {
		updates["configuration"] = models.JSONMap(req.Configuration)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		common.OK(c, s)
		return
	}

	if err := h.Skills.Update(c.Request.Context(), s.ID, updates); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to update skill")
		return
	}

	// Description changes invalidate the stored embedding.
	if req.Description != nil {
		h.enqueueEmbedding(c, s.ID)
	}

	updated, err := h.Skills.GetByID(c.Request.Context(), s.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to reload skill")
		return
	}
	common.OK(c, updated)
}

func (h *Handler) DeleteSkill(c *gin.Context) {
	s, ok := h.ownedSkill(c)
	if !ok {
		return
	}
	if err := h.Skills.Delete(c.Request.Context(), s.ID); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to delete skill")
		return
	}
	common.OK(c, gin.H{"deleted": true})
}

type executeSkillReq struct {
	Parameters map[string]any `json:"parameters"`
	TestMode   bool           `json:"test_mode"`
}

// ExecuteSkill runs a skill directly, outside any chat turn. Used by the
// dashboard's "test skill" button with test_mode on.
func (h *Handler) ExecuteSkill(c *gin.Context) {
	s, ok := h.ownedSkill(c)
	if !ok {
		return
	}

	var req executeSkillReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	result := h.Executor.Execute(c.Request.Context(), skill.WithAssociation{Skill: *s}, req.Parameters, skill.ExecutionContext{
		SkillID:  s.ID,
		UserID:   c.GetString(middleware.UserIDKey),
		Channel:  skill.ChannelAPI,
		TestMode: req.TestMode,
	})
	common.OK(c, result)
}

func (h *Handler) ListSkillExecutions(c *gin.Context) {
	s, ok := h.ownedSkill(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	execs, err := h.Skills.ListExecutions(c.Request.Context(), s.ID, limit)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to list executions")
		return
	}
	common.OK(c, gin.H{"executions": execs})
}

func (h *Handler) GetSkillStats(c *gin.Context) {
	s, ok := h.ownedSkill(c)
	if !ok {
		return
	}
	days, _ := strconv.Atoi(c.Query("days"))
	stats, err := h.Skills.Stats(c.Request.Context(), s.ID, days)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to compute stats")
		return
	}
	common.OK(c, stats)
}

type attachSkillReq struct {
	ChatbotID    string         `json:"chatbot_id" binding:"required"`
	CustomConfig map[string]any `json:"custom_config"`
}

// AttachSkill links a skill to a chatbot.
func (h *Handler) AttachSkill(c *gin.Context) {
	s, ok := h.ownedSkill(c)
	if !ok {
		return
	}

	var req attachSkillReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	a := &skill.Association{
		ID:           common.NewUUID(),
		ChatbotID:    req.ChatbotID,
		SkillID:      s.ID,
		IsActive:     true,
		CustomConfig: models.JSONMap(req.CustomConfig),
	}
	if err := h.Skills.CreateAssociation(c.Request.Context(), a); err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "failed to attach skill (may already be attached)")
		return
	}
	common.OK(c, a)
}

// DetachSkill removes the skill's association with a chatbot.
func (h *Handler) DetachSkill(c *gin.Context) {
	s, ok := h.ownedSkill(c)
	if !ok {
		return
	}
	if err := h.Skills.DetachFromChatbot(c.Request.Context(), c.Param("chatbot_id"), s.ID); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to detach skill")
		return
	}
	common.OK(c, gin.H{"detached": true})
}

// ListChatbotSkills returns the active skills attached to a chatbot.
func (h *Handler) ListChatbotSkills(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)
	bot, err := h.Chatbots.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil || bot.UserID != userID {
		common.Fail(c, http.StatusNotFound, 40401, "chatbot not found")
		return
	}

	attached, err := h.Skills.ActiveForChatbot(c.Request.Context(), bot.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		return
	}
	common.OK(c, attached)
}

// ownedSkill loads the :id skill and checks it belongs to the caller.
// Foreign skills are reported as not found.
func (h *Handler) ownedSkill(c *gin.Context) (*skill.Skill, bool) {
	userID := c.GetString(middleware.UserIDKey)
	s, err := h.Skills.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			common.Fail(c, http.StatusNotFound, 40402, "skill not found")
		} else {
			common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		}
		return nil, false
	}
	if s.UserID != "" && s.UserID != userID {
		common.Fail(c, http.StatusNotFound, 40402, "skill not found")
		return nil, false
	}
	return s, true
}

func (h *Handler) enqueueEmbedding(c *gin.Context, skillID string) {
	if h.Rabbit == nil {
		return
	}
	jobID, err := common.NewULID()
	if err != nil {
		log.Printf("[Skills] ulid generation failed: %v", err)
		return
	}
	if err := h.Rabbit.PublishEmbeddingJob(c.Request.Context(), jobID, skillID); err != nil {
		log.Printf("[Skills] failed to enqueue embedding job for skill %s: %v", skillID, err)
	}
}
