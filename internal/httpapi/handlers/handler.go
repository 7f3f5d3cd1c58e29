package handlers

import (
	"context"
	"log"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/syllabi/chat-platform/internal/ai"
	"github.com/syllabi/chat-platform/internal/channel/alexa"
	"github.com/syllabi/chat-platform/internal/chat"
	"github.com/syllabi/chat-platform/internal/chatbot"
	"github.com/syllabi/chat-platform/internal/common"
	"github.com/syllabi/chat-platform/internal/config"
	"github.com/syllabi/chat-platform/internal/kb"
	"github.com/syllabi/chat-platform/internal/ratelimit"
	"github.com/syllabi/chat-platform/internal/skill"
	"github.com/syllabi/chat-platform/internal/store/rabbitmq"
)

type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	Skills   *skill.Repo
	Chatbots *chatbot.Repo
	Sessions *chat.Repo
	Executor *skill.Executor
	ChatSvc  *chat.Service
	Alexa    *alexa.Handler
	Rabbit   *rabbitmq.Publisher // nil when no broker is configured
}

func NewHandler(db *gorm.DB, cfg config.Config, limitStore ratelimit.Store, registry *ai.Registry, rabbit *rabbitmq.Publisher) *Handler {
	skills := skill.NewRepo(db)
	chatbots := chatbot.NewRepo(db)
	sessions := chat.NewRepo(db)
	kbRepo := kb.NewRepo(db)

	defaultModel := cfg.OpenAIModel
	if strings.ToLower(cfg.AIProvider) == "ollama" {
		defaultModel = cfg.OllamaModel
	}

	// The default provider doubles as the embedder for semantic skill
	// selection and the classifier for voice routing, when it has those
	// capabilities.
	var embedder ai.Embedder
	var classifier ai.ObjectGenerator
	if p, err := registry.Get(context.Background(), cfg.AIProvider, defaultModel); err == nil {
		embedder, _ = p.(ai.Embedder)
		classifier, _ = p.(ai.ObjectGenerator)
	} else {
		log.Printf("[Handler] default provider %q unavailable: %v", cfg.AIProvider, err)
	}

	selector := skill.NewSelector(skills, embedder)
	executor := skill.NewExecutor(skills)
	tools := skill.NewToolBuilder(selector, executor)
	limiter := ratelimit.NewLimiter(limitStore)

	chatSvc := chat.NewService(sessions, chatbots, limiter, selector, tools, kbRepo, registry, cfg.AIProvider, defaultModel, cfg.ChatMaxToolSteps)

	// Voice requests normally run the chat pipeline in-process. With
	// APP_BASE_URL set the gateway calls a remote chat API over the line
	// protocol instead (split deployments).
	var chatClient alexa.ChatClient = &alexa.ServiceClient{Service: chatSvc}
	if cfg.AppBaseURL != "" {
		chatClient = alexa.NewHTTPClient(cfg.AppBaseURL)
	}

	alexaHandler := alexa.NewHandler(
		chatbots, sessions,
		chatClient,
		alexa.NewRouter(classifier),
		cfg.JWTSecret,
	)

	return &Handler{
		DB:       db,
		Cfg:      cfg,
		Skills:   skills,
		Chatbots: chatbots,
		Sessions: sessions,
		Executor: executor,
		ChatSvc:  chatSvc,
		Alexa:    alexaHandler,
		Rabbit:   rabbit,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}
