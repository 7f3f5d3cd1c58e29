package kb

import (
	"context"
	"fmt"
	"log"

	"github.com/syllabi/chat-platform/internal/ai"
)

// Tools builds the knowledge-base tools exposed on every chat turn.
// Retrieval failures are returned as {error} tool results so the
// conversation can continue.
func Tools(repo *Repo, embedder ai.Embedder, chatbotID string) map[string]ai.Tool {
	return map[string]ai.Tool{
		"getRelevantDocuments": {
			Name:        "getRelevantDocuments",
			Description: "Get information from the chatbot's knowledge base to answer the user's question.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "A good search query to find relevant documents.",
					},
					"contentTypes": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string", "enum": []any{"document", "url", "video", "audio"}},
						"description": "Specific content types to search. Defaults to all types.",
					},
				},
				"required": []any{"query"},
			},
			Execute: func(ctx context.Context, args map[string]any) any {
				query, _ := args["query"].(string)
				var contentTypes []string
				if raw, ok := args["contentTypes"].([]any); ok {
					for _, v := range raw {
						if s, ok := v.(string); ok {
							contentTypes = append(contentTypes, s)
						}
					}
				}

				if embedder == nil {
					return map[string]any{"error": "failed to create embedding for the query"}
				}
				embedding, err := embedder.Embed(ctx, query)
				if err != nil {
					log.Printf("[KB] embedding error: %v", err)
					return map[string]any{"error": "failed to create embedding for the query"}
				}

				matches, err := repo.MatchChunks(ctx, chatbotID, embedding, 0.2, 10, contentTypes)
				if err != nil {
					return map[string]any{"error": fmt.Sprintf("failed to retrieve documents: %v", err)}
				}

				docs := make([]map[string]any, 0, len(matches))
				for _, m := range matches {
					docs = append(docs, map[string]any{
						"chunk_id":     m.ID,
						"reference_id": m.ReferenceID,
						"page_number":  m.PageNumber,
						"content":      m.Text,
						"token_count":  m.TokenCount,
						"similarity":   m.Similarity,
						"content_type": m.ContentType,
					})
				}
				return map[string]any{"documents": docs}
			},
		},
		"listAvailableDocuments": {
			Name:        "listAvailableDocuments",
			Description: "List all documents available in the chatbot's knowledge base.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Execute: func(ctx context.Context, args map[string]any) any {
				sources, err := repo.ListSources(ctx, chatbotID)
				if err != nil {
					return map[string]any{"error": fmt.Sprintf("failed to retrieve document list: %v", err)}
				}
				docs := make([]map[string]any, 0, len(sources))
				for _, s := range sources {
					docs = append(docs, map[string]any{
						"file_name":       s.FileName,
						"uploaded_at":     s.UploadedAt,
						"indexing_status": s.IndexingStatus,
					})
				}
				return map[string]any{"documents": docs}
			},
		},
	}
}
