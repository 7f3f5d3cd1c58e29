package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/syllabi/chat-platform/internal/ai"
	"github.com/syllabi/chat-platform/internal/chatbot"
	"github.com/syllabi/chat-platform/internal/common"
	"github.com/syllabi/chat-platform/internal/kb"
	"github.com/syllabi/chat-platform/internal/models"
	"github.com/syllabi/chat-platform/internal/ratelimit"
	"github.com/syllabi/chat-platform/internal/skill"
)

var (
	ErrChatbotNotFound = errors.New("chatbot not found")
	ErrNoMessages      = errors.New("no messages in request")
)

// RateLimitError carries the full decision so the transport layer can
// render the limit type, remaining quota and retry window.
type RateLimitError struct {
	Decision ratelimit.Decision
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s", e.Decision.LimitType)
}

// Request is one inbound chat turn from any channel.
type Request struct {
	SessionID      string       `json:"id"`
	Messages       []ai.Message `json:"messages"`
	ChatbotID      string       `json:"chatbotId"`
	ChatbotSlug    string       `json:"chatbotSlug"`
	Channel        string       `json:"channel"`
	WorkspaceID    string       `json:"workspaceId"`
	ExternalUserID string       `json:"externalUserId"`

	// UserID is set by auth middleware for authenticated callers, never
	// taken from the request body.
	UserID string `json:"-"`
}

type Service struct {
	repo     *Repo
	chatbots *chatbot.Repo
	limiter  *ratelimit.Limiter
	tools    *skill.ToolBuilder
	selector *skill.Selector
	kbRepo   *kb.Repo
	registry *ai.Registry

	defaultProvider string
	defaultModel    string
	maxToolSteps    int
}

func NewService(repo *Repo, chatbots *chatbot.Repo, limiter *ratelimit.Limiter, selector *skill.Selector, tools *skill.ToolBuilder, kbRepo *kb.Repo, registry *ai.Registry, defaultProvider, defaultModel string, maxToolSteps int) *Service {
	if maxToolSteps <= 0 {
		maxToolSteps = 5
	}
	return &Service{
		repo:            repo,
		chatbots:        chatbots,
		limiter:         limiter,
		selector:        selector,
		tools:           tools,
		kbRepo:          kbRepo,
		registry:        registry,
		defaultProvider: defaultProvider,
		defaultModel:    defaultModel,
		maxToolSteps:    maxToolSteps,
	}
}

// StreamChat runs the full pipeline for one turn: resolve chatbot, rate
// limit, resolve session, persist the user message, assemble tools and
// stream the model response. The synchronous error covers everything up
// to the first token (validation, unknown chatbot, rate limit); stream
// failures arrive on the error channel. The assistant message is
// persisted only after the stream completes, so an aborted stream leaves
// no partial assistant row.
func (s *Service) StreamChat(ctx context.Context, req Request) (<-chan string, <-chan error, error) {
	if len(req.Messages) == 0 {
		return nil, nil, ErrNoMessages
	}
	channel := req.Channel
	if channel == "" {
		channel = "web"
	}

	bot, err := s.resolveChatbot(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	if req.SessionID == "" {
		// Assign the session id up front so a sessionless anonymous
		// caller gets its own rate-limit bucket.
		req.SessionID = common.NewUUID()
	}

	identifier, identifierType := callerIdentity(req)
	decision := s.limiter.CheckAndIncrement(ctx, bot.ID, identifier, identifierType, bot.RateLimits())
	if !decision.Allowed {
		return nil, nil, &RateLimitError{Decision: decision}
	}

	session, err := s.resolveSession(ctx, req, bot, channel)
	if err != nil {
		return nil, nil, err
	}

	userText := lastUserText(req.Messages)
	if userText != "" {
		msg := &Message{
			ChatSessionID: session.ID,
			Role:          "user",
			Content:       userText,
			TokenCount:    EstimateTokens(userText),
		}
		if err := s.repo.InsertMessage(ctx, msg); err != nil {
			log.Printf("[ChatService] failed to persist user message for session %s: %v", session.ID, err)
		}
	}

	model := bot.ModelIdentifier
	if model == "" {
		model = s.defaultModel
	}
	provider, err := s.providerFor(ctx, model)
	if err != nil {
		return nil, nil, err
	}

	toolList := s.assembleTools(ctx, bot, session, req, userText, provider)

	temperature := 0.7
	if bot.Temperature != nil {
		temperature = *bot.Temperature
	}
	toolReq := ai.ToolChatRequest{
		Model:       model,
		System:      buildSystemPrompt(bot.SystemPrompt, channel),
		Messages:    req.Messages,
		Tools:       toolList,
		Temperature: temperature,
		MaxSteps:    s.maxToolSteps,
	}

	out := make(chan string, 16)
	errs := make(chan error, 1)
	go s.run(provider, toolReq, session, model, out, errs)
	return out, errs, nil
}

// run drives the provider stream on a background context so persistence
// survives the caller disconnecting mid-stream.
func (s *Service) run(provider ai.Provider, req ai.ToolChatRequest, session *Session, model string, out chan<- string, errs chan<- error) {
	defer close(out)
	defer close(errs)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var full strings.Builder
	var usage ai.Usage

	switch p := provider.(type) {
	case ai.ToolStreamProvider:
		chunks, usageCh, streamErrs := p.StreamChatWithTools(ctx, req)
		for chunk := range chunks {
			full.WriteString(chunk)
			out <- chunk
		}
		if u, ok := <-usageCh; ok {
			usage = u
		}
		if err := <-streamErrs; err != nil {
			errs <- err
			return
		}
	case ai.StreamProvider:
		msgs := req.Messages
		if req.System != "" {
			msgs = append([]ai.Message{{Role: "system", Content: req.System}}, msgs...)
		}
		chunks, streamErrs := p.StreamChat(ctx, msgs)
		for chunk := range chunks {
			full.WriteString(chunk)
			out <- chunk
		}
		if err := <-streamErrs; err != nil {
			errs <- err
			return
		}
	default:
		msgs := req.Messages
		if req.System != "" {
			msgs = append([]ai.Message{{Role: "system", Content: req.System}}, msgs...)
		}
		text, err := provider.Chat(ctx, msgs)
		if err != nil {
			errs <- err
			return
		}
		full.WriteString(text)
		out <- text
	}

	text := full.String()
	if usage.TotalTokens == 0 {
		usage.CompletionTokens = EstimateTokens(text)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	msg := &Message{
		ChatSessionID: session.ID,
		Role:          "assistant",
		Content:       text,
		TokenCount:    usage.CompletionTokens,
		Metadata: models.JSONMap{
			"model":             model,
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"total_tokens":      usage.TotalTokens,
			"cost_usd":          CalculateCost(usage, model),
		},
	}
	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		log.Printf("[ChatService] failed to persist assistant message for session %s: %v", session.ID, err)
	}
}

func (s *Service) resolveChatbot(ctx context.Context, req Request) (*chatbot.Chatbot, error) {
	var (
		bot *chatbot.Chatbot
		err error
	)
	switch {
	case req.ChatbotID != "":
		bot, err = s.chatbots.GetByID(ctx, req.ChatbotID)
	case req.ChatbotSlug != "":
		bot, err = s.chatbots.GetBySlug(ctx, req.ChatbotSlug)
	default:
		return nil, ErrChatbotNotFound
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatbotNotFound
		}
		return nil, err
	}
	return bot, nil
}

func (s *Service) resolveSession(ctx context.Context, req Request, bot *chatbot.Chatbot, channel string) (*Session, error) {
	if channel != "web" {
		// Channel-native session ids are opaque strings owned by the
		// channel; map them to one internal session per chatbot.
		return s.repo.FindOrCreateByExternalID(ctx, req.SessionID, bot.ID, bot.Slug, channel)
	}
	return s.repo.EnsureSession(ctx, req.SessionID, bot.ID, bot.Slug, channel)
}

func (s *Service) providerFor(ctx context.Context, model string) (ai.Provider, error) {
	name := ai.ProviderForModel(model)
	if name == "unknown" {
		name = s.defaultProvider
	}
	provider, err := s.registry.Get(ctx, name, model)
	if err != nil && name != s.defaultProvider {
		log.Printf("[ChatService] provider %s unavailable for model %s, using default: %v", name, model, err)
		provider, err = s.registry.Get(ctx, s.defaultProvider, model)
	}
	return provider, err
}

func (s *Service) assembleTools(ctx context.Context, bot *chatbot.Chatbot, session *Session, req Request, userText string, provider ai.Provider) []ai.Tool {
	cfg, err := s.selector.OptimalConfig(ctx, bot.ID, bot.ToolSelectionMethod, userText)
	if err != nil {
		log.Printf("[ChatService] tool selection config failed for chatbot %s: %v", bot.ID, err)
		cfg = skill.SelectionConfig{Method: skill.MethodDirect, MaxTools: 10}
	}

	userID := req.UserID
	if userID == "" {
		userID = req.ExternalUserID
	}
	ec := skill.ExecutionContext{
		ChatSessionID: session.ID,
		UserID:        userID,
		Channel:       session.Channel,
	}

	byName := s.tools.SkillsAsTools(ctx, bot.ID, ec, cfg)
	if embedder, ok := provider.(ai.Embedder); ok && s.kbRepo != nil {
		for name, t := range kb.Tools(s.kbRepo, embedder, bot.ID) {
			byName[name] = t
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	list := make([]ai.Tool, 0, len(names))
	for _, name := range names {
		list = append(list, byName[name])
	}
	return list
}

func callerIdentity(req Request) (identifier, identifierType string) {
	switch {
	case req.UserID != "":
		return req.UserID, ratelimit.IdentifierUser
	case req.ExternalUserID != "":
		return req.ExternalUserID, ratelimit.IdentifierUser
	default:
		return req.SessionID, ratelimit.IdentifierSession
	}
}

func lastUserText(messages []ai.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
