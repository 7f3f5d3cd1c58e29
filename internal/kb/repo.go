package kb

import (
	"context"
	"math"
	"sort"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateSource(ctx context.Context, s *ContentSource) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) CreateChunk(ctx context.Context, c *Chunk) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) ListSources(ctx context.Context, chatbotID string) ([]ContentSource, error) {
	var sources []ContentSource
	if err := r.db.WithContext(ctx).
		Where("chatbot_id = ?", chatbotID).
		Order("uploaded_at DESC").
		Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

// MatchChunks ranks a chatbot's chunks by cosine similarity against the
// query embedding, optionally restricted to certain content types.
func (r *Repo) MatchChunks(ctx context.Context, chatbotID string, queryEmbedding []float64, threshold float64, limit int, contentTypes []string) ([]Match, error) {
	q := r.db.WithContext(ctx).Where("chatbot_id = ?", chatbotID)
	if len(contentTypes) > 0 {
		q = q.Where("content_type IN ?", contentTypes)
	}

	var chunks []Chunk
	if err := q.Find(&chunks).Error; err != nil {
		return nil, err
	}

	var matches []Match
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		sim := cosine(queryEmbedding, c.Embedding)
		if sim >= threshold {
			matches = append(matches, Match{Chunk: c, Similarity: sim})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
