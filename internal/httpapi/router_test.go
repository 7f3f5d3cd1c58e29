package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/syllabi/chat-platform/internal/ai"
	"github.com/syllabi/chat-platform/internal/chat"
	"github.com/syllabi/chat-platform/internal/chatbot"
	"github.com/syllabi/chat-platform/internal/config"
	"github.com/syllabi/chat-platform/internal/kb"
	"github.com/syllabi/chat-platform/internal/models"
	"github.com/syllabi/chat-platform/internal/ratelimit"
	"github.com/syllabi/chat-platform/internal/skill"
)

// fakeProvider streams a canned answer regardless of the prompt.
type fakeProvider struct {
	answer string
}

func (f fakeProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	return f.answer, nil
}

func (f fakeProvider) StreamChat(ctx context.Context, messages []ai.Message) (<-chan string, <-chan error) {
	out := make(chan string, 8)
	errs := make(chan error, 1)
	for _, word := range strings.SplitAfter(f.answer, " ") {
		out <- word
	}
	close(out)
	close(errs)
	return out, errs
}

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&chatbot.Chatbot{}, &chatbot.ConnectedIntegration{}, &chatbot.ChannelLink{},
		&chat.Session{}, &chat.Message{},
		&skill.Skill{}, &skill.Association{}, &skill.Execution{},
		&kb.ContentSource{}, &kb.Chunk{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	registry := ai.NewRegistry()
	registry.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) {
		return fakeProvider{answer: "The store opens at nine."}, nil
	})

	cfg := config.Config{
		JWTSecret:        "router-test-secret",
		AIProvider:       "fake",
		OpenAIModel:      "fake-model",
		ChatMaxToolSteps: 3,
	}
	return NewRouter(db, cfg, ratelimit.NewMemoryStore(), registry, nil), db
}

func seedBot(t *testing.T, db *gorm.DB, rateLimits models.JSONMap) *chatbot.Chatbot {
	t.Helper()
	bot := &chatbot.Chatbot{
		ID:            "bot-1",
		UserID:        "user-1",
		Name:          "Support",
		Slug:          "support",
		SystemPrompt:  "You answer store questions.",
		RateLimitJSON: rateLimits,
	}
	if err := db.Create(bot).Error; err != nil {
		t.Fatalf("seed chatbot: %v", err)
	}
	return bot
}

func postJSON(r *gin.Engine, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(b)))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func waitBriefly() { time.Sleep(10 * time.Millisecond) }

func chatPayload(sessionID, chatbotID, text string) map[string]any {
	return map[string]any{
		"id":        sessionID,
		"chatbotId": chatbotID,
		"messages":  []map[string]string{{"role": "user", "content": text}},
	}
}

func TestPing(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestExternalChat_StreamsLineProtocol(t *testing.T) {
	r, db := newTestRouter(t)
	seedBot(t, db, nil)

	w := postJSON(r, "/api/chat/external", chatPayload("sess-1", "bot-1", "when do you open"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
	for _, line := range strings.Split(strings.TrimSuffix(w.Body.String(), "\n"), "\n") {
		if !strings.HasPrefix(line, "0:") {
			t.Fatalf("unexpected stream line %q", line)
		}
	}

	text, err := chat.DecodeStream(w.Body)
	if err != nil {
		t.Fatalf("decode stream: %v", err)
	}
	if text != "The store opens at nine." {
		t.Fatalf("decoded text = %q", text)
	}
}

func TestExternalChat_PersistsConversation(t *testing.T) {
	r, db := newTestRouter(t)
	seedBot(t, db, nil)

	w := postJSON(r, "/api/chat/external", chatPayload("sess-1", "bot-1", "when do you open"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	// Assistant persistence happens after the stream is fully delivered.
	var count int64
	for i := 0; i < 50; i++ {
		db.Model(&chat.Message{}).Count(&count)
		if count == 2 {
			break
		}
		waitBriefly()
	}
	if count != 2 {
		t.Fatalf("messages = %d, want user and assistant", count)
	}
}

func TestExternalChat_UnknownChatbot(t *testing.T) {
	r, _ := newTestRouter(t)

	w := postJSON(r, "/api/chat/external", chatPayload("sess-1", "missing", "hello"), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Code != 40401 {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestExternalChat_MissingMessages(t *testing.T) {
	r, db := newTestRouter(t)
	seedBot(t, db, nil)

	w := postJSON(r, "/api/chat/external", map[string]any{"chatbotId": "bot-1"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestExternalChat_RateLimited(t *testing.T) {
	r, db := newTestRouter(t)
	seedBot(t, db, models.JSONMap{
		"enabled": true,
		"anonymous_visitors": map[string]any{
			"messages_per_hour": float64(1),
			"messages_per_day":  float64(10),
		},
		"custom_message": "Limit reached, come back later.",
	})

	if w := postJSON(r, "/api/chat/external", chatPayload("sess-1", "bot-1", "first"), nil); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}

	w := postJSON(r, "/api/chat/external", chatPayload("sess-1", "bot-1", "second"), nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Retry-After"); got != "3600" {
		t.Fatalf("Retry-After = %q", got)
	}

	var body struct {
		Error         string `json:"error"`
		Message       string `json:"message"`
		LimitType     string `json:"limit_type"`
		RemainingHour int    `json:"remaining_hour"`
		RemainingDay  int    `json:"remaining_day"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "RATE_LIMIT_EXCEEDED" || body.LimitType != ratelimit.LimitHour {
		t.Fatalf("body = %+v", body)
	}
	if body.Message != "Limit reached, come back later." {
		t.Fatalf("message = %q", body.Message)
	}
	if body.RemainingHour != 0 {
		t.Fatalf("remaining_hour = %d", body.RemainingHour)
	}
}

func TestAuthFlow_RegisterLoginMe(t *testing.T) {
	r, _ := newTestRouter(t)

	w := postJSON(r, "/users", map[string]string{"email": "a@b.co", "password": "hunter22"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("register status = %d, body %s", w.Code, w.Body.String())
	}

	w = postJSON(r, "/login", map[string]string{"email": "a@b.co", "password": "hunter22"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}
	var login struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil || login.Data.Token == "" {
		t.Fatalf("login body = %s", w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Data.Token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "a@b.co") {
		t.Fatalf("me body = %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated /me status = %d", rec.Code)
	}
}

func TestAlexaSkill_AlwaysRespondsOK(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/integrations/alexa/skill", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, the voice channel has no error surface", w.Code)
	}
	var resp struct {
		Response struct {
			ShouldEndSession bool `json:"shouldEndSession"`
		} `json:"response"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Response.ShouldEndSession {
		t.Fatal("malformed envelope should end the session")
	}
}
