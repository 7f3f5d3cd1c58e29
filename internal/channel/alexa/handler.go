package alexa

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/syllabi/chat-platform/internal/ai"
	"github.com/syllabi/chat-platform/internal/auth"
	"github.com/syllabi/chat-platform/internal/chat"
	"github.com/syllabi/chat-platform/internal/chatbot"
)

// Handler processes Alexa skill requests end to end: account resolution,
// trigger routing, session resolution, chat invocation and SSML output.
type Handler struct {
	chatbots  *chatbot.Repo
	sessions  *chat.Repo
	client    ChatClient
	router    *Router
	jwtSecret string
}

func NewHandler(chatbots *chatbot.Repo, sessions *chat.Repo, client ChatClient, router *Router, jwtSecret string) *Handler {
	return &Handler{
		chatbots:  chatbots,
		sessions:  sessions,
		client:    client,
		router:    router,
		jwtSecret: jwtSecret,
	}
}

// Handle never returns an error: every failure is translated into a
// spoken response since the channel has no notion of HTTP status.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	userID, integrationID, ok := h.resolveAccount(ctx, req)
	if !ok {
		return linkAccountResponse()
	}

	switch req.Request.Type {
	case "LaunchRequest":
		return speakPlain(
			"Welcome. Ask your chatbot a question.",
			"What would you like to ask?",
			false,
		)
	case "SessionEndedRequest":
		return Response{Version: "1.0"}
	case "IntentRequest":
		return h.handleIntent(ctx, req, userID, integrationID)
	default:
		return speakPlain(
			"Sorry, I didn't understand that. Try asking a question.",
			"What would you like to ask?",
			false,
		)
	}
}

func (h *Handler) handleIntent(ctx context.Context, req Request, userID, integrationID string) Response {
	switch req.Request.Intent.Name {
	case "AMAZON.StopIntent", "AMAZON.CancelIntent":
		return speakPlain("Goodbye.", "", true)
	case "AMAZON.HelpIntent":
		return speakPlain(
			"You can ask any question and your chatbot will answer. If you have several chatbots, start with a trigger word to pick one.",
			"What would you like to ask?",
			false,
		)
	}

	utterance := req.Utterance()
	if utterance == "" {
		return speakPlain(
			"I didn't catch that. What would you like to ask?",
			"What would you like to ask?",
			false,
		)
	}

	bots, err := h.linkedBots(ctx, integrationID)
	if err != nil {
		log.Printf("[AlexaHandler] failed to load channel links for integration %s: %v", integrationID, err)
		return speakPlain("Sorry, an error occurred. Please try again.", "", true)
	}

	bot, question, switched := h.router.Route(ctx, utterance, bots)
	if bot == nil {
		return speakPlain(
			"I couldn't find a chatbot to answer that. Please configure a chatbot for Alexa in your dashboard.",
			"", true,
		)
	}

	target, err := h.chatbots.GetByID(ctx, bot.ID)
	if err != nil {
		log.Printf("[AlexaHandler] linked chatbot %s not found: %v", bot.ID, err)
		return speakPlain("Sorry, that chatbot is no longer available.", "", true)
	}

	if switched {
		// The user only picked a chatbot; acknowledge without running a
		// chat turn.
		return speakPlain(
			fmt.Sprintf("Switched to %s. What would you like to know?", target.Name),
			"What would you like to know?",
			false,
		)
	}

	session, err := h.sessions.FindOrCreateByExternalID(ctx, req.Session.SessionID, target.ID, target.Slug, "alexa")
	if err != nil {
		log.Printf("[AlexaHandler] session resolution failed: %v", err)
		return speakPlain("Sorry, an error occurred. Please try again.", "", true)
	}

	messages, err := h.conversation(ctx, session.ID, question)
	if err != nil {
		log.Printf("[AlexaHandler] failed to load history for session %s: %v", session.ID, err)
		messages = []ai.Message{{Role: "user", Content: question}}
	}

	answer, err := h.client.Complete(ctx, chat.Request{
		SessionID:      req.Session.SessionID,
		Messages:       messages,
		ChatbotID:      target.ID,
		Channel:        "alexa",
		ExternalUserID: req.Session.User.UserID,
		UserID:         userID,
	})
	if err != nil {
		var rle *chat.RateLimitError
		if errors.As(err, &rle) {
			msg := rle.Decision.CustomMessage
			if msg == "" {
				msg = "You have reached your message limit. Please try again later."
			}
			return speakPlain(msg, "", true)
		}
		log.Printf("[AlexaHandler] chat invocation failed: %v", err)
		return speakPlain("Sorry, an error occurred. Please try again.", "", true)
	}

	return speakSSML(ToSSML(answer), false)
}

// resolveAccount recovers the platform account from the access token,
// falling back to the persisted Amazon user id when token verification
// fails. Returns ok=false when no account resolves (account linking
// needed).
func (h *Handler) resolveAccount(ctx context.Context, req Request) (userID, integrationID string, ok bool) {
	token := req.Session.User.AccessToken
	if token != "" {
		uid, iid, err := auth.ParseChannelToken(token, h.jwtSecret)
		if err == nil {
			if req.Session.User.UserID != "" {
				if rerr := h.chatbots.RememberExternalUserID(ctx, iid, req.Session.User.UserID); rerr != nil {
					log.Printf("[AlexaHandler] could not store amazon user id: %v", rerr)
				}
			}
			return uid, iid, true
		}
		log.Printf("[AlexaHandler] token verification failed, trying amazon user id lookup: %v", err)
	}

	if req.Session.User.UserID != "" {
		ci, err := h.chatbots.FindIntegrationByExternalUserID(ctx, "alexa", req.Session.User.UserID)
		if err == nil {
			return ci.UserID, ci.ID, true
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[AlexaHandler] integration lookup failed: %v", err)
		}
	}
	return "", "", false
}

// linkedBots builds the routing view of the account's channel links,
// resolving chatbot names for the classifier vocabulary. Links whose
// chatbot was deleted are skipped.
func (h *Handler) linkedBots(ctx context.Context, integrationID string) ([]LinkedBot, error) {
	links, err := h.chatbots.ListChannelLinks(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	bots := make([]LinkedBot, 0, len(links))
	for _, link := range links {
		cfg := link.ParsedConfig()
		bot, err := h.chatbots.GetByID(ctx, link.ChatbotID)
		if err != nil {
			log.Printf("[AlexaHandler] skipping link %s, chatbot lookup failed: %v", link.ID, err)
			continue
		}
		bots = append(bots, LinkedBot{
			ID:        bot.ID,
			Name:      bot.Name,
			Trigger:   cfg.Trigger,
			IsDefault: cfg.IsDefault,
		})
	}
	return bots, nil
}

func (h *Handler) conversation(ctx context.Context, sessionID, question string) ([]ai.Message, error) {
	history, err := h.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	messages := make([]ai.Message, 0, len(history)+1)
	for _, m := range history {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		messages = append(messages, ai.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, ai.Message{Role: "user", Content: question})
	return messages, nil
}
