package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryStore is an in-process Store for tests and single-instance dev
// runs. The mutex gives it the same atomicity the redis Lua script gives
// the shared store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memEntry), now: time.Now}
}

func (s *MemoryStore) get(key string) *memEntry {
	e, ok := s.entries[key]
	if !ok || s.now().After(e.expiresAt) {
		e = &memEntry{}
		s.entries[key] = e
	}
	return e
}

func (s *MemoryStore) CheckAndIncr(ctx context.Context, hourKey, dayKey string, hourLimit, dayLimit int, hourTTL, dayTTL time.Duration) (StoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hour := s.get(hourKey)
	day := s.get(dayKey)

	if hourLimit > 0 && hour.count >= hourLimit {
		return StoreResult{Allowed: false, LimitType: LimitHour, HourCount: hour.count, DayCount: day.count}, nil
	}
	if dayLimit > 0 && day.count >= dayLimit {
		return StoreResult{Allowed: false, LimitType: LimitDay, HourCount: hour.count, DayCount: day.count}, nil
	}

	if hour.count == 0 {
		hour.expiresAt = s.now().Add(hourTTL)
	}
	if day.count == 0 {
		day.expiresAt = s.now().Add(dayTTL)
	}
	hour.count++
	day.count++

	return StoreResult{Allowed: true, HourCount: hour.count, DayCount: day.count}, nil
}
