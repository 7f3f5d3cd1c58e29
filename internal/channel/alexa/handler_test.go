package alexa

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/syllabi/chat-platform/internal/auth"
	"github.com/syllabi/chat-platform/internal/chat"
	"github.com/syllabi/chat-platform/internal/chatbot"
	"github.com/syllabi/chat-platform/internal/models"
	"github.com/syllabi/chat-platform/internal/ratelimit"
)

const testSecret = "alexa-test-secret"

type fakeChatClient struct {
	answer  string
	err     error
	lastReq chat.Request
	calls   int
}

func (f *fakeChatClient) Complete(ctx context.Context, req chat.Request) (string, error) {
	f.calls++
	f.lastReq = req
	return f.answer, f.err
}

type testEnv struct {
	handler  *Handler
	chatbots *chatbot.Repo
	sessions *chat.Repo
	client   *fakeChatClient
	db       *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&chatbot.Chatbot{}, &chatbot.ConnectedIntegration{}, &chatbot.ChannelLink{},
		&chat.Session{}, &chat.Message{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	bots := chatbot.NewRepo(db)
	sessions := chat.NewRepo(db)
	client := &fakeChatClient{answer: "Hello from the bot."}
	h := NewHandler(bots, sessions, client, NewRouter(nil), testSecret)
	return &testEnv{handler: h, chatbots: bots, sessions: sessions, client: client, db: db}
}

// seedAccount creates a user integration with one linked chatbot and
// returns a valid channel access token for the account.
func (e *testEnv) seedAccount(t *testing.T, trigger string, isDefault bool) (token, chatbotID string) {
	t.Helper()
	ctx := context.Background()

	bot := &chatbot.Chatbot{ID: "bot-1", UserID: "user-1", Name: "Support Bot", Slug: "support-bot"}
	if err := e.chatbots.Create(ctx, bot); err != nil {
		t.Fatalf("create chatbot: %v", err)
	}
	ci := &chatbot.ConnectedIntegration{ID: "integ-1", UserID: "user-1", IntegrationType: "alexa"}
	if err := e.chatbots.CreateIntegration(ctx, ci); err != nil {
		t.Fatalf("create integration: %v", err)
	}
	cfg := models.JSONMap{}
	if trigger != "" {
		cfg["trigger"] = trigger
	}
	if isDefault {
		cfg["is_default"] = true
	}
	link := &chatbot.ChannelLink{ID: "link-1", IntegrationID: ci.ID, ChatbotID: bot.ID, Config: cfg}
	if err := e.chatbots.CreateChannelLink(ctx, link); err != nil {
		t.Fatalf("create link: %v", err)
	}

	token, err := auth.SignChannelToken("user-1", ci.ID, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token, bot.ID
}

func intentRequest(token, utterance string) Request {
	var req Request
	req.Version = "1.0"
	req.Session.SessionID = "amzn1.echo-api.session.abc"
	req.Session.User = SessionUser{UserID: "amzn1.ask.account.xyz", AccessToken: token}
	req.Request.Type = "IntentRequest"
	req.Request.Intent = Intent{
		Name:  "AskIntent",
		Slots: map[string]Slot{"question": {Name: "question", Value: utterance}},
	}
	return req
}

func TestHandle_UnlinkedAccountGetsLinkCard(t *testing.T) {
	env := newTestEnv(t)

	resp := env.handler.Handle(context.Background(), intentRequest("", "hello"))
	if resp.Response.Card == nil || resp.Response.Card.Type != "LinkAccount" {
		t.Fatalf("card = %+v, want LinkAccount", resp.Response.Card)
	}
	if !resp.Response.ShouldEndSession {
		t.Fatal("session should end when account linking is needed")
	}
	if env.client.calls != 0 {
		t.Fatalf("chat invoked %d times for unlinked account", env.client.calls)
	}
}

func TestHandle_AmazonUserIDFallback(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "", true)

	// Persist the amazon user id as if a prior tokened request stored it,
	// then come back with no token at all.
	if err := env.chatbots.RememberExternalUserID(context.Background(), "integ-1", "amzn1.ask.account.xyz"); err != nil {
		t.Fatalf("remember external user id: %v", err)
	}

	resp := env.handler.Handle(context.Background(), intentRequest("", "what are your hours"))
	if resp.Response.Card != nil {
		t.Fatalf("got card %+v, want resolved account", resp.Response.Card)
	}
	if env.client.calls != 1 {
		t.Fatalf("chat calls = %d, want 1", env.client.calls)
	}
	if env.client.lastReq.UserID != "user-1" {
		t.Fatalf("user id = %q", env.client.lastReq.UserID)
	}
}

func TestHandle_StopIntentEndsSession(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.seedAccount(t, "", true)

	req := intentRequest(token, "")
	req.Request.Intent = Intent{Name: "AMAZON.StopIntent"}

	resp := env.handler.Handle(context.Background(), req)
	if !resp.Response.ShouldEndSession {
		t.Fatal("stop intent should end the session")
	}
	if resp.Response.OutputSpeech == nil || resp.Response.OutputSpeech.Text != "Goodbye." {
		t.Fatalf("speech = %+v", resp.Response.OutputSpeech)
	}
}

func TestHandle_LaunchRequestWelcomes(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.seedAccount(t, "", true)

	req := intentRequest(token, "")
	req.Request.Type = "LaunchRequest"

	resp := env.handler.Handle(context.Background(), req)
	if resp.Response.ShouldEndSession {
		t.Fatal("launch should keep the session open")
	}
	if resp.Response.Reprompt == nil {
		t.Fatal("launch response should reprompt")
	}
}

func TestHandle_EmptyUtteranceReprompts(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.seedAccount(t, "", true)

	resp := env.handler.Handle(context.Background(), intentRequest(token, ""))
	if resp.Response.ShouldEndSession {
		t.Fatal("empty utterance should keep the session open")
	}
	if resp.Response.Reprompt == nil {
		t.Fatal("empty utterance should reprompt")
	}
	if env.client.calls != 0 {
		t.Fatalf("chat invoked %d times on empty utterance", env.client.calls)
	}
}

func TestHandle_FullQuestionFlow(t *testing.T) {
	env := newTestEnv(t)
	token, botID := env.seedAccount(t, "support", true)
	env.client.answer = "# Hours\nWe are **open** from 9 to 5."

	resp := env.handler.Handle(context.Background(), intentRequest(token, "support what are your hours"))

	if resp.Response.OutputSpeech == nil || resp.Response.OutputSpeech.Type != "SSML" {
		t.Fatalf("speech = %+v, want SSML", resp.Response.OutputSpeech)
	}
	ssml := resp.Response.OutputSpeech.SSML
	if !strings.HasPrefix(ssml, "<speak>") || !strings.HasSuffix(ssml, "</speak>") {
		t.Fatalf("ssml not wrapped: %q", ssml)
	}
	if strings.Contains(ssml, "**") || strings.Contains(ssml, "#") {
		t.Fatalf("markdown leaked into ssml: %q", ssml)
	}
	if resp.Response.ShouldEndSession {
		t.Fatal("answer should keep the session open for followups")
	}

	if env.client.lastReq.ChatbotID != botID {
		t.Fatalf("chatbot id = %q, want %q", env.client.lastReq.ChatbotID, botID)
	}
	if env.client.lastReq.Channel != "alexa" {
		t.Fatalf("channel = %q", env.client.lastReq.Channel)
	}
	last := env.client.lastReq.Messages[len(env.client.lastReq.Messages)-1]
	if last.Content != "what are your hours" {
		t.Fatalf("question = %q, want trigger stripped", last.Content)
	}

	var sess chat.Session
	if err := env.db.First(&sess, "external_session_id = ?", "amzn1.echo-api.session.abc").Error; err != nil {
		t.Fatalf("session not created: %v", err)
	}
	if sess.Channel != "alexa" || sess.ChatbotSlug != "support-bot" {
		t.Fatalf("session = %+v", sess)
	}
}

func TestHandle_SwitchIntentAcknowledges(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.seedAccount(t, "support", true)

	resp := env.handler.Handle(context.Background(), intentRequest(token, "support"))
	if resp.Response.OutputSpeech == nil || resp.Response.OutputSpeech.Text != "Switched to Support Bot. What would you like to know?" {
		t.Fatalf("speech = %+v", resp.Response.OutputSpeech)
	}
	if resp.Response.ShouldEndSession {
		t.Fatal("switching should keep the session open")
	}
	if env.client.calls != 0 {
		t.Fatalf("chat invoked %d times for a switch-only utterance", env.client.calls)
	}
}

func TestHandle_SecondTurnCarriesHistory(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.seedAccount(t, "", true)

	env.handler.Handle(context.Background(), intentRequest(token, "first question"))

	var sess chat.Session
	if err := env.db.First(&sess, "external_session_id = ?", "amzn1.echo-api.session.abc").Error; err != nil {
		t.Fatalf("session not created: %v", err)
	}
	for _, m := range []chat.Message{
		{ChatSessionID: sess.ID, Role: "user", Content: "first question"},
		{ChatSessionID: sess.ID, Role: "assistant", Content: "first answer"},
	} {
		if err := env.sessions.InsertMessage(context.Background(), &m); err != nil {
			t.Fatalf("insert message: %v", err)
		}
	}

	env.handler.Handle(context.Background(), intentRequest(token, "second question"))
	msgs := env.client.lastReq.Messages
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want history plus new question", len(msgs))
	}
	if msgs[0].Content != "first question" || msgs[1].Role != "assistant" {
		t.Fatalf("history order wrong: %+v", msgs)
	}
	if msgs[2].Content != "second question" {
		t.Fatalf("last message = %+v", msgs[2])
	}
}

func TestHandle_NoResolvableChatbot(t *testing.T) {
	env := newTestEnv(t)
	// Trigger-only link, no default: an unrelated utterance resolves nothing.
	token, _ := env.seedAccount(t, "finance", false)

	resp := env.handler.Handle(context.Background(), intentRequest(token, "what is the meaning of life"))
	if !resp.Response.ShouldEndSession {
		t.Fatal("unresolvable routing should end the session")
	}
	if !strings.Contains(resp.Response.OutputSpeech.Text, "configure") {
		t.Fatalf("speech = %q, want configuration prompt", resp.Response.OutputSpeech.Text)
	}
	if env.client.calls != 0 {
		t.Fatalf("chat invoked %d times with no resolved bot", env.client.calls)
	}
}

func TestHandle_RateLimitSpeaksCustomMessage(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.seedAccount(t, "", true)
	env.client.err = &chat.RateLimitError{Decision: ratelimit.Decision{
		Allowed:       false,
		LimitType:     ratelimit.LimitHour,
		CustomMessage: "Easy there, try again in an hour.",
	}}

	resp := env.handler.Handle(context.Background(), intentRequest(token, "hello"))
	if !resp.Response.ShouldEndSession {
		t.Fatal("rate limited response should end the session")
	}
	if resp.Response.OutputSpeech.Text != "Easy there, try again in an hour." {
		t.Fatalf("speech = %q", resp.Response.OutputSpeech.Text)
	}
}
