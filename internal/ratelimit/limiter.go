// Package ratelimit implements the per-chatbot hour/day message quota
// check. The check-then-increment is a single atomic operation in the
// counter store, never read-then-write in application code.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/syllabi/chat-platform/internal/chatbot"
)

const (
	IdentifierUser    = "user"
	IdentifierSession = "session"

	LimitHour = "hour"
	LimitDay  = "day"
)

// StoreResult is the raw outcome of one atomic counter operation.
type StoreResult struct {
	Allowed   bool
	LimitType string // set when Allowed is false
	HourCount int    // count after the operation
	DayCount  int
}

// Store atomically increments both window counters unless either is at
// its cap, in which case nothing is incremented. The hour cap is checked
// before the day cap.
type Store interface {
	CheckAndIncr(ctx context.Context, hourKey, dayKey string, hourLimit, dayLimit int, hourTTL, dayTTL time.Duration) (StoreResult, error)
}

// Decision is the outcome returned to the chat pipeline.
type Decision struct {
	Allowed       bool   `json:"allowed"`
	LimitType     string `json:"limit_type,omitempty"`
	RemainingHour int    `json:"remaining_hour"`
	RemainingDay  int    `json:"remaining_day"`
	CustomMessage string `json:"custom_message,omitempty"`
}

type Limiter struct {
	store Store
	now   func() time.Time
}

func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// CheckAndIncrement applies the chatbot's configured caps to one inbound
// message. A nil or disabled config allows immediately. Store failures
// fail open with a logged warning: losing a counter beat is preferred
// over refusing every conversation while redis is down.
func (l *Limiter) CheckAndIncrement(ctx context.Context, chatbotID, identifier, identifierType string, cfg *chatbot.RateLimitConfig) Decision {
	if cfg == nil || !cfg.Enabled {
		return Decision{Allowed: true}
	}

	caps := cfg.AnonymousVisitors
	if identifierType == IdentifierUser {
		caps = cfg.AuthenticatedUsers
	}
	if caps.MessagesPerHour <= 0 && caps.MessagesPerDay <= 0 {
		log.Printf("[RateLimiter] no limits configured for identifier type %s, allowing", identifierType)
		return Decision{Allowed: true}
	}

	now := l.now()
	hourStart := now.Truncate(time.Hour)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	hourKey := fmt.Sprintf("rl:%s:%s:%s:hour:%s", chatbotID, identifierType, identifier, hourStart.Format("2006010215"))
	dayKey := fmt.Sprintf("rl:%s:%s:%s:day:%s", chatbotID, identifierType, identifier, dayStart.Format("20060102"))

	res, err := l.store.CheckAndIncr(ctx,
		hourKey, dayKey,
		caps.MessagesPerHour, caps.MessagesPerDay,
		time.Until(hourStart.Add(time.Hour)),
		time.Until(dayStart.Add(24*time.Hour)),
	)
	if err != nil {
		log.Printf("[RateLimiter] counter store unavailable, failing open: %v", err)
		return Decision{Allowed: true}
	}

	d := Decision{
		Allowed:       res.Allowed,
		LimitType:     res.LimitType,
		RemainingHour: clampZero(caps.MessagesPerHour - res.HourCount),
		RemainingDay:  clampZero(caps.MessagesPerDay - res.DayCount),
		CustomMessage: cfg.CustomMessage,
	}
	if !d.Allowed {
		log.Printf("[RateLimiter] %s limit exceeded for %s %s on chatbot %s", d.LimitType, identifierType, identifier, chatbotID)
	}
	return d
}

func clampZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
