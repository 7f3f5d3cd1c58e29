package chatbot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/syllabi/chat-platform/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Chatbot{}, &ConnectedIntegration{}, &ChannelLink{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedIntegration(t *testing.T, repo *Repo, id string) {
	t.Helper()
	ci := &ConnectedIntegration{ID: id, UserID: "user-1", IntegrationType: "alexa"}
	if err := repo.CreateIntegration(context.Background(), ci); err != nil {
		t.Fatalf("create integration: %v", err)
	}
}

func link(id, integrationID, chatbotID string, cfg models.JSONMap) *ChannelLink {
	return &ChannelLink{ID: id, IntegrationID: integrationID, ChatbotID: chatbotID, Config: cfg}
}

func TestCreateChannelLink_TriggerUniquePerIntegration(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	seedIntegration(t, repo, "integ-1")
	seedIntegration(t, repo, "integ-2")

	if err := repo.CreateChannelLink(ctx, link("l1", "integ-1", "bot-1", models.JSONMap{"trigger": "Finance"})); err != nil {
		t.Fatalf("first link: %v", err)
	}

	// Same trigger, different case, same account.
	err := repo.CreateChannelLink(ctx, link("l2", "integ-1", "bot-2", models.JSONMap{"trigger": "finance"}))
	if !errors.Is(err, ErrTriggerTaken) {
		t.Fatalf("err = %v, want ErrTriggerTaken", err)
	}

	// Same trigger is fine on another account.
	if err := repo.CreateChannelLink(ctx, link("l3", "integ-2", "bot-2", models.JSONMap{"trigger": "finance"})); err != nil {
		t.Fatalf("other integration: %v", err)
	}
}

func TestCreateChannelLink_DemotesPreviousDefault(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	seedIntegration(t, repo, "integ-1")

	if err := repo.CreateChannelLink(ctx, link("l1", "integ-1", "bot-1", models.JSONMap{"trigger": "finance", "is_default": true})); err != nil {
		t.Fatalf("first link: %v", err)
	}
	if err := repo.CreateChannelLink(ctx, link("l2", "integ-1", "bot-2", models.JSONMap{"trigger": "hr", "is_default": true})); err != nil {
		t.Fatalf("second link: %v", err)
	}

	links, err := repo.ListChannelLinks(ctx, "integ-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defaults := 0
	for _, l := range links {
		if l.ParsedConfig().IsDefault {
			defaults++
			if l.ID != "l2" {
				t.Fatalf("default stayed on %s, want l2", l.ID)
			}
		}
	}
	if defaults != 1 {
		t.Fatalf("defaults = %d, want exactly one", defaults)
	}
}

func TestFindIntegrationByExternalUserID(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	seedIntegration(t, repo, "integ-1")
	seedIntegration(t, repo, "integ-2")

	if _, err := repo.FindIntegrationByExternalUserID(ctx, "alexa", "amzn-user-1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("err = %v, want record not found before linking", err)
	}

	if err := repo.RememberExternalUserID(ctx, "integ-1", "amzn-user-1"); err != nil {
		t.Fatalf("remember: %v", err)
	}

	ci, err := repo.FindIntegrationByExternalUserID(ctx, "alexa", "amzn-user-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if ci.ID != "integ-1" {
		t.Fatalf("integration = %s", ci.ID)
	}

	// Wrong channel type finds nothing.
	if _, err := repo.FindIntegrationByExternalUserID(ctx, "slack", "amzn-user-1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("err = %v, want record not found for other type", err)
	}
}

func TestRememberExternalUserID_FirstWriteWins(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	seedIntegration(t, repo, "integ-1")

	if err := repo.RememberExternalUserID(ctx, "integ-1", "amzn-user-1"); err != nil {
		t.Fatalf("first remember: %v", err)
	}
	if err := repo.RememberExternalUserID(ctx, "integ-1", "amzn-user-2"); err != nil {
		t.Fatalf("second remember: %v", err)
	}

	ci, err := repo.GetIntegration(ctx, "integ-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := ci.Metadata["amazon_user_id"]; got != "amzn-user-1" {
		t.Fatalf("amazon_user_id = %v, want first write kept", got)
	}
}
