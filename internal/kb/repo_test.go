package kb

import (
	"context"
	"fmt"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/syllabi/chat-platform/internal/models"
)

func openTestDB(t *testing.T) *Repo {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&ContentSource{}, &Chunk{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return NewRepo(db)
}

func seedChunk(t *testing.T, repo *Repo, id, chatbotID, contentType, text string, embedding []float64) {
	t.Helper()
	c := &Chunk{
		ID:          id,
		ReferenceID: "src-1",
		ChatbotID:   chatbotID,
		ContentType: contentType,
		Text:        text,
		Embedding:   models.Vector(embedding),
	}
	if err := repo.CreateChunk(context.Background(), c); err != nil {
		t.Fatalf("seed chunk: %v", err)
	}
}

func TestMatchChunks_RanksAndThresholds(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()

	seedChunk(t, repo, "c1", "bot-1", "document", "close match", []float64{1, 0, 0})
	seedChunk(t, repo, "c2", "bot-1", "document", "partial match", []float64{0.7, 0.7, 0})
	seedChunk(t, repo, "c3", "bot-1", "document", "orthogonal", []float64{0, 0, 1})
	seedChunk(t, repo, "c4", "bot-2", "document", "other bot", []float64{1, 0, 0})

	matches, err := repo.MatchChunks(ctx, "bot-1", []float64{1, 0, 0}, 0.2, 10, nil)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want threshold to drop the orthogonal chunk", len(matches))
	}
	if matches[0].ID != "c1" || matches[1].ID != "c2" {
		t.Fatalf("order = %s, %s", matches[0].ID, matches[1].ID)
	}
	if matches[0].Similarity <= matches[1].Similarity {
		t.Fatalf("similarities not descending: %v vs %v", matches[0].Similarity, matches[1].Similarity)
	}
}

func TestMatchChunks_ContentTypeFilterAndLimit(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()

	seedChunk(t, repo, "c1", "bot-1", "document", "doc", []float64{1, 0})
	seedChunk(t, repo, "c2", "bot-1", "url", "page", []float64{1, 0})
	seedChunk(t, repo, "c3", "bot-1", "video", "clip", []float64{1, 0})

	matches, err := repo.MatchChunks(ctx, "bot-1", []float64{1, 0}, 0.2, 10, []string{"url", "video"})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want content type filter applied", len(matches))
	}
	for _, m := range matches {
		if m.ContentType == "document" {
			t.Fatalf("document chunk leaked through filter: %s", m.ID)
		}
	}

	matches, err = repo.MatchChunks(ctx, "bot-1", []float64{1, 0}, 0.2, 1, nil)
	if err != nil {
		t.Fatalf("match with limit: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want limit applied", len(matches))
	}
}

func TestMatchChunks_SkipsUnembedded(t *testing.T) {
	repo := openTestDB(t)

	seedChunk(t, repo, "c1", "bot-1", "document", "pending embedding", nil)

	matches, err := repo.MatchChunks(context.Background(), "bot-1", []float64{1, 0}, 0.0, 10, nil)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("matches = %d, want chunks without embeddings skipped", len(matches))
	}
}
