package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/syllabi/chat-platform/internal/ai"
	"github.com/syllabi/chat-platform/internal/common"
	"github.com/syllabi/chat-platform/internal/config"
	"github.com/syllabi/chat-platform/internal/httpapi/handlers"
	"github.com/syllabi/chat-platform/internal/httpapi/middleware"
	"github.com/syllabi/chat-platform/internal/ratelimit"
	"github.com/syllabi/chat-platform/internal/store/rabbitmq"
)

func NewRouter(db *gorm.DB, cfg config.Config, limitStore ratelimit.Store, registry *ai.Registry, rabbit *rabbitmq.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(db, cfg, limitStore, registry, rabbit)

	r.GET("/ping", h.Ping)

	// CRUD users register
	r.POST("/users", h.CreateUser)

	// auth
	r.POST("/login", h.Login)

	// channel-facing endpoints (channels authenticate in-band)
	r.POST("/api/chat/external", h.ExternalChat)
	r.POST("/api/integrations/alexa/skill", h.AlexaSkill)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	// chatbots
	authGroup.POST("/api/chatbots", h.CreateChatbot)
	authGroup.GET("/api/chatbots/:id", h.GetChatbot)

	// skills
	authGroup.POST("/api/skills", h.CreateSkill)
	authGroup.GET("/api/skills", h.ListSkills)
	authGroup.GET("/api/skills/:id", h.GetSkill)
	authGroup.PUT("/api/skills/:id", h.UpdateSkill)
	authGroup.DELETE("/api/skills/:id", h.DeleteSkill)
	authGroup.POST("/api/skills/:id/execute", h.ExecuteSkill)
	authGroup.POST("/api/skills/:id/attach", h.AttachSkill)
	authGroup.DELETE("/api/skills/:id/attach/:chatbot_id", h.DetachSkill)
	authGroup.GET("/api/chatbots/:id/skills", h.ListChatbotSkills)
	authGroup.GET("/api/skills/:id/executions", h.ListSkillExecutions)
	authGroup.GET("/api/skills/:id/stats", h.GetSkillStats)

	// channel integrations
	authGroup.POST("/api/integrations/alexa/link", h.LinkAlexaAccount)
	authGroup.GET("/api/channels/:id", h.ListChannelLinks)
	authGroup.POST("/api/channels/:id", h.CreateChannelLink)
	authGroup.DELETE("/api/channels/:id/:link_id", h.DeleteChannelLink)

	return r
}
