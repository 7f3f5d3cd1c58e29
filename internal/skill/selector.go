package skill

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/syllabi/chat-platform/internal/ai"
)

// Selection methods.
const (
	MethodDirect   = "direct"
	MethodSemantic = "semantic_retrieval"
)

// SelectionConfig decides which configured skills are exposed as tools
// for one turn.
type SelectionConfig struct {
	Method        string `json:"method"`
	MaxTools      int    `json:"max_tools,omitempty"`
	SemanticQuery string `json:"semantic_query,omitempty"`
}

// Selector implements the tool selection policy: exposing every skill on
// every turn degrades tool choice and inflates token cost, so large skill
// libraries are narrowed by usage ranking or semantic relevance.
type Selector struct {
	repo     *Repo
	embedder ai.Embedder
}

func NewSelector(repo *Repo, embedder ai.Embedder) *Selector {
	return &Selector{repo: repo, embedder: embedder}
}

// OptimalConfig picks the selection method for one inbound message. An
// explicitly configured method wins; otherwise the method is derived
// deterministically from the skill count.
func (s *Selector) OptimalConfig(ctx context.Context, chatbotID, configuredMethod, userQuery string) (SelectionConfig, error) {
	if configuredMethod != "" {
		cfg := SelectionConfig{Method: configuredMethod}
		if configuredMethod == MethodDirect {
			cfg.MaxTools = 100
		} else {
			cfg.MaxTools = 10
			cfg.SemanticQuery = userQuery
		}
		return cfg, nil
	}

	skills, err := s.repo.ActiveForChatbot(ctx, chatbotID)
	if err != nil {
		return SelectionConfig{}, err
	}

	switch n := len(skills); {
	case n <= 5:
		return SelectionConfig{Method: MethodDirect, MaxTools: n}, nil
	case n <= 15:
		return SelectionConfig{Method: MethodDirect, MaxTools: 10}, nil
	default:
		if strings.TrimSpace(userQuery) != "" {
			return SelectionConfig{Method: MethodSemantic, MaxTools: 10, SemanticQuery: userQuery}, nil
		}
		return SelectionConfig{Method: MethodDirect, MaxTools: 10}, nil
	}
}

// Select resolves the config to a concrete skill list.
func (s *Selector) Select(ctx context.Context, chatbotID string, cfg SelectionConfig) ([]WithAssociation, error) {
	switch cfg.Method {
	case MethodDirect, "":
		return s.direct(ctx, chatbotID, cfg.MaxTools)
	case MethodSemantic:
		return s.semantic(ctx, chatbotID, cfg)
	default:
		log.Printf("[ToolsBuilder] unknown tool selection method %q", cfg.Method)
		return nil, nil
	}
}

// direct returns all active skills; when over the cap, the most used and
// most recently used skills win.
func (s *Selector) direct(ctx context.Context, chatbotID string, maxTools int) ([]WithAssociation, error) {
	skills, err := s.repo.ActiveForChatbot(ctx, chatbotID)
	if err != nil {
		return nil, err
	}
	if maxTools <= 0 || len(skills) <= maxTools {
		return skills, nil
	}

	sort.Slice(skills, func(i, j int) bool {
		a, b := skills[i], skills[j]
		if a.ExecutionCount != b.ExecutionCount {
			return a.ExecutionCount > b.ExecutionCount
		}
		if a.LastExecutedAt != nil && b.LastExecutedAt != nil && !a.LastExecutedAt.Equal(*b.LastExecutedAt) {
			return a.LastExecutedAt.After(*b.LastExecutedAt)
		}
		if (a.LastExecutedAt != nil) != (b.LastExecutedAt != nil) {
			return a.LastExecutedAt != nil
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return skills[:maxTools], nil
}

// semantic embeds the query and ranks skills by similarity; on embedding
// failure or empty results it degrades to text search, then to direct.
func (s *Selector) semantic(ctx context.Context, chatbotID string, cfg SelectionConfig) ([]WithAssociation, error) {
	if strings.TrimSpace(cfg.SemanticQuery) == "" {
		log.Printf("[ToolsBuilder] semantic query not provided, falling back to direct method")
		return s.direct(ctx, chatbotID, cfg.MaxTools)
	}

	if s.embedder != nil {
		embedding, err := s.embedder.Embed(ctx, cfg.SemanticQuery)
		if err != nil {
			log.Printf("[ToolsBuilder] query embedding failed, falling back to text search: %v", err)
		} else {
			matches, err := s.repo.SearchBySimilarity(ctx, chatbotID, embedding, 0.3, cfg.MaxTools)
			if err != nil {
				return nil, err
			}
			if len(matches) > 0 {
				return matches, nil
			}
			log.Printf("[ToolsBuilder] vector search returned no results, falling back to text search")
		}
	}

	matches, err := s.repo.SearchByText(ctx, chatbotID, cfg.SemanticQuery, cfg.MaxTools)
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		return matches, nil
	}
	return s.direct(ctx, chatbotID, cfg.MaxTools)
}
