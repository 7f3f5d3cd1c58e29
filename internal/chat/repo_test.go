package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/syllabi/chat-platform/internal/chatbot"
	"github.com/syllabi/chat-platform/internal/kb"
	"github.com/syllabi/chat-platform/internal/skill"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&Session{}, &Message{},
		&chatbot.Chatbot{}, &chatbot.ConnectedIntegration{}, &chatbot.ChannelLink{},
		&skill.Skill{}, &skill.Association{}, &skill.Execution{},
		&kb.ContentSource{}, &kb.Chunk{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return db
}

func TestFindOrCreateByExternalID_CreatesOnce(t *testing.T) {
	repo := NewRepo(openTestDB(t))

	s1, err := repo.FindOrCreateByExternalID(context.Background(), "amzn-sess-1", "bot1", "support-bot", "alexa")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if s1.ChatbotSlug != "support-bot" {
		t.Fatalf("slug = %q, want denormalized slug", s1.ChatbotSlug)
	}
	if s1.Channel != "alexa" {
		t.Fatalf("channel = %q", s1.Channel)
	}

	s2, err := repo.FindOrCreateByExternalID(context.Background(), "amzn-sess-1", "bot1", "support-bot", "alexa")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if s2.ID != s1.ID {
		t.Fatalf("resolution created a second session: %s vs %s", s1.ID, s2.ID)
	}

	var count int64
	repo.db.Model(&Session{}).Count(&count)
	if count != 1 {
		t.Fatalf("session rows = %d, want 1", count)
	}
}

func TestFindOrCreateByExternalID_ScopedPerChatbot(t *testing.T) {
	repo := NewRepo(openTestDB(t))

	s1, err := repo.FindOrCreateByExternalID(context.Background(), "amzn-sess-1", "botA", "a", "alexa")
	if err != nil {
		t.Fatalf("resolve A: %v", err)
	}
	s2, err := repo.FindOrCreateByExternalID(context.Background(), "amzn-sess-1", "botB", "b", "alexa")
	if err != nil {
		t.Fatalf("resolve B: %v", err)
	}
	if s1.ID == s2.ID {
		t.Fatal("same external id on different chatbots must map to distinct sessions")
	}
}

func TestFindOrCreateByExternalID_Concurrent(t *testing.T) {
	repo := NewRepo(openTestDB(t))

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := repo.FindOrCreateByExternalID(context.Background(), "amzn-race", "bot1", "slug", "alexa")
			if err != nil {
				t.Errorf("resolve %d: %v", i, err)
				return
			}
			ids[i] = s.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(ids); i++ {
		if ids[i] != ids[0] {
			t.Fatalf("concurrent resolution returned distinct sessions: %v", ids)
		}
	}
}

func TestHistory_ChronologicalOrder(t *testing.T) {
	repo := NewRepo(openTestDB(t))

	sess, err := repo.FindOrCreateByExternalID(context.Background(), "s1", "bot1", "slug", "alexa")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for i, content := range []string{"first", "second", "third"} {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if err := repo.InsertMessage(context.Background(), &Message{
			ChatSessionID: sess.ID,
			Role:          role,
			Content:       content,
		}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	msgs, err := repo.History(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Content != "first" || msgs[2].Content != "third" {
		t.Fatalf("wrong order: %q, %q, %q", msgs[0].Content, msgs[1].Content, msgs[2].Content)
	}
}

func TestEnsureSession_Idempotent(t *testing.T) {
	repo := NewRepo(openTestDB(t))

	s1, err := repo.EnsureSession(context.Background(), "web-sess-1", "bot1", "slug", "web")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	s2, err := repo.EnsureSession(context.Background(), "web-sess-1", "bot1", "slug", "web")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if s1.ID != s2.ID {
		t.Fatal("ensure created a second session")
	}
}
