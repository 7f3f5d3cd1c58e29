package main

import (
	"context"
	"log"
	"strings"

	"github.com/syllabi/chat-platform/internal/ai"
	"github.com/syllabi/chat-platform/internal/config"
	"github.com/syllabi/chat-platform/internal/db"
	"github.com/syllabi/chat-platform/internal/httpapi"
	"github.com/syllabi/chat-platform/internal/store/rabbitmq"
	"github.com/syllabi/chat-platform/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := rds.Ping(context.Background()); err != nil {
		log.Printf("[Server] redis unreachable, rate limiting will fail open: %v", err)
	}

	reg := ai.NewRegistry()
	reg.Register("openai", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenAIModel
		}
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, m, cfg.EmbeddingModel), nil
	})
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})

	var rabbit *rabbitmq.Publisher
	if cfg.RabbitURL != "" {
		p, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Printf("[Server] rabbitmq unavailable, skill embeddings will not be computed: %v", err)
		} else {
			rabbit = p
			defer rabbit.Close()
		}
	}

	r := httpapi.NewRouter(gdb, cfg, rds, reg, rabbit)

	addr := cfg.HTTPAddr
	log.Printf("[Server] listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
