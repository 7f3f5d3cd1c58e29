package skill

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, s *Skill) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Skill, error) {
	var s Skill
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) Update(ctx context.Context, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now()
	return r.db.WithContext(ctx).Model(&Skill{}).Where("id = ?", id).Updates(updates).Error
}

// Delete hard-deletes a skill and its association rows.
func (r *Repo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Association{}, "skill_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&Skill{}, "id = ?", id).Error
	})
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Skill, error) {
	var skills []Skill
	if err := r.db.WithContext(ctx).
		Where("user_id = ? OR type = ?", userID, TypeBuiltin).
		Order("created_at DESC").
		Find(&skills).Error; err != nil {
		return nil, err
	}
	return skills, nil
}

func (r *Repo) CreateAssociation(ctx context.Context, a *Association) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *Repo) DeleteAssociation(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&Association{}, "id = ?", id).Error
}

// DetachFromChatbot removes the association between a chatbot and a skill.
func (r *Repo) DetachFromChatbot(ctx context.Context, chatbotID, skillID string) error {
	return r.db.WithContext(ctx).
		Delete(&Association{}, "chatbot_id = ? AND skill_id = ?", chatbotID, skillID).Error
}

// ActiveForChatbot returns the skills attached to a chatbot where both the
// skill and the association are active.
func (r *Repo) ActiveForChatbot(ctx context.Context, chatbotID string) ([]WithAssociation, error) {
	var assocs []Association
	if err := r.db.WithContext(ctx).
		Where("chatbot_id = ? AND is_active = ?", chatbotID, true).
		Find(&assocs).Error; err != nil {
		return nil, err
	}
	if len(assocs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(assocs))
	bySkill := make(map[string]Association, len(assocs))
	for _, a := range assocs {
		ids = append(ids, a.SkillID)
		bySkill[a.SkillID] = a
	}

	var skills []Skill
	if err := r.db.WithContext(ctx).
		Where("id IN ? AND is_active = ?", ids, true).
		Find(&skills).Error; err != nil {
		return nil, err
	}

	out := make([]WithAssociation, 0, len(skills))
	for _, s := range skills {
		out = append(out, WithAssociation{Skill: s, Association: bySkill[s.ID]})
	}
	return out, nil
}

// RecordExecution appends one audit row and bumps the skill's usage
// counters.
func (r *Repo) RecordExecution(ctx context.Context, e *Execution) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(e).Error; err != nil {
			return err
		}
		now := time.Now()
		return tx.Model(&Skill{}).Where("id = ?", e.SkillID).Updates(map[string]any{
			"execution_count":  gorm.Expr("execution_count + 1"),
			"last_executed_at": now,
		}).Error
	})
}

func (r *Repo) ListExecutions(ctx context.Context, skillID string, limit int) ([]Execution, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var execs []Execution
	if err := r.db.WithContext(ctx).
		Where("skill_id = ?", skillID).
		Order("created_at DESC").
		Limit(limit).
		Find(&execs).Error; err != nil {
		return nil, err
	}
	return execs, nil
}

// ExecutionStats aggregates success rate and latency for one skill over
// the trailing window.
type ExecutionStats struct {
	Total       int64   `json:"total"`
	Succeeded   int64   `json:"succeeded"`
	SuccessRate float64 `json:"success_rate"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
}

func (r *Repo) Stats(ctx context.Context, skillID string, days int) (*ExecutionStats, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days)

	var execs []Execution
	if err := r.db.WithContext(ctx).
		Where("skill_id = ? AND created_at >= ?", skillID, since).
		Find(&execs).Error; err != nil {
		return nil, err
	}

	stats := &ExecutionStats{}
	var totalMs int64
	for _, e := range execs {
		stats.Total++
		if e.ExecutionStatus == StatusSuccess {
			stats.Succeeded++
		}
		totalMs += e.ExecutionTimeMs
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
		stats.AvgTimeMs = float64(totalMs) / float64(stats.Total)
	}
	return stats, nil
}

// SearchBySimilarity ranks the chatbot's active skills by cosine
// similarity between the query embedding and each stored skill embedding.
// Skills without an embedding are skipped.
func (r *Repo) SearchBySimilarity(ctx context.Context, chatbotID string, queryEmbedding []float64, threshold float64, limit int) ([]WithAssociation, error) {
	skills, err := r.ActiveForChatbot(ctx, chatbotID)
	if err != nil {
		return nil, err
	}

	type scored struct {
		skill WithAssociation
		sim   float64
	}
	var matches []scored
	for _, s := range skills {
		if len(s.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(queryEmbedding, s.Embedding)
		if sim >= threshold {
			matches = append(matches, scored{skill: s, sim: sim})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].sim > matches[j].sim })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]WithAssociation, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.skill)
	}
	return out, nil
}

// SearchByText is the degraded-mode search: case-insensitive substring
// match on name, display name and description.
func (r *Repo) SearchByText(ctx context.Context, chatbotID, query string, limit int) ([]WithAssociation, error) {
	skills, err := r.ActiveForChatbot(ctx, chatbotID)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []WithAssociation
	for _, s := range skills {
		if strings.Contains(strings.ToLower(s.Description), q) ||
			strings.Contains(strings.ToLower(s.DisplayName), q) ||
			strings.Contains(strings.ToLower(s.Name), q) {
			out = append(out, s)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func cosineSimilarity(a, b []float64) float64 {
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
