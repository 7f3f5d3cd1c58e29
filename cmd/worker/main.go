package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/syllabi/chat-platform/internal/ai"
	"github.com/syllabi/chat-platform/internal/config"
	"github.com/syllabi/chat-platform/internal/db"
	"github.com/syllabi/chat-platform/internal/models"
	"github.com/syllabi/chat-platform/internal/skill"
	"github.com/syllabi/chat-platform/internal/store/rabbitmq"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	skills := skill.NewRepo(gdb)

	reg := ai.NewRegistry()
	reg.Register("openai", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenAIModel
		}
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, m, cfg.EmbeddingModel), nil
	})

	provider, err := reg.Get(context.Background(), "openai", cfg.OpenAIModel)
	if err != nil {
		log.Fatalf("provider: %v", err)
	}
	embedder, ok := provider.(ai.Embedder)
	if !ok {
		log.Fatalf("provider %q has no embedding endpoint", cfg.AIProvider)
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(cfg.RabbitQueue, true, false, false, false, nil)
	if err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := workerConcurrency()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m rabbitmq.EmbeddingJob
				if err := json.Unmarshal(d.Body, &m); err != nil || m.SkillID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, skills, embedder, m.SkillID); err != nil {
					log.Printf("worker=%d job %s failed cost=%s err=%v", workerID, m.JobID, time.Since(start), err)
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed job=%s err=%v", workerID, m.JobID, err)
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

// handleJob computes the skill's description embedding and stores it.
// A deleted skill is not an error: the job is simply obsolete.
func handleJob(ctx context.Context, skills *skill.Repo, embedder ai.Embedder, skillID string) error {
	s, err := skills.GetByID(ctx, skillID)
	if err != nil {
		log.Printf("skill %s gone, dropping embedding job", skillID)
		return nil
	}

	text := s.Description
	if s.DisplayName != "" {
		text = s.DisplayName + ". " + text
	}

	ectx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	vec, err := embedder.Embed(ectx, text)
	if err != nil {
		return fmt.Errorf("embed skill %s: %w", skillID, err)
	}

	return skills.Update(ctx, skillID, map[string]any{
		"embedding": models.Vector(vec),
	})
}
