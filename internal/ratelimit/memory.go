package ratelimit

import (
	"context"
	"sync"
	"time"
)

// memoryCounterStore is a process-local CounterStore for tests and
// single-instance deployments.
type memoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*memCounter
}

type memCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryCounterStore builds an in-process counter store.
func NewMemoryCounterStore() CounterStore {
	return &memoryCounterStore{counters: make(map[string]*memCounter)}
}

func (s *memoryCounterStore) Consume(_ context.Context, dailyKey string, dailyCap int, burstKey string, burstCap int, dailyTTL, burstTTL time.Duration) (ConsumeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	daily := s.counter(dailyKey, now)
	burst := s.counter(burstKey, now)

	if daily.count >= int64(dailyCap) || burst.count >= int64(burstCap) {
		return ConsumeResult{
			Allowed:        false,
			RemainingDaily: int64(dailyCap) - daily.count,
			RemainingBurst: int64(burstCap) - burst.count,
		}, nil
	}

	if daily.count == 0 {
		daily.expiresAt = now.Add(dailyTTL)
	}
	if burst.count == 0 {
		burst.expiresAt = now.Add(burstTTL)
	}
	daily.count++
	burst.count++

	return ConsumeResult{
		Allowed:        true,
		RemainingDaily: int64(dailyCap) - daily.count,
		RemainingBurst: int64(burstCap) - burst.count,
	}, nil
}

func (s *memoryCounterStore) Remaining(_ context.Context, dailyKey string, dailyCap int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	daily := s.counter(dailyKey, time.Now())
	remaining := int64(dailyCap) - daily.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (s *memoryCounterStore) counter(key string, now time.Time) *memCounter {
	c, ok := s.counters[key]
	if !ok || (!c.expiresAt.IsZero() && now.After(c.expiresAt) && c.count > 0) {
		c = &memCounter{}
		s.counters[key] = c
	}
	return c
}
