package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter names, one per external service
const (
	LimiterLLM       = "llm"
	LimiterPost      = "post"
	LimiterSearch    = "search"
	LimiterSheets    = "sheets"
	LimiterFirestore = "firestore"
	LimiterDiscord   = "discord"
	LimiterRSS       = "rss"
)

// MultiLimiter holds one token-bucket limiter per named service
type MultiLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates an empty multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// NewDefaultLimiter creates a limiter tuned to each service's quota
func NewDefaultLimiter() *MultiLimiter {
	m := NewMultiLimiter()

	// Anthropic: 10 requests per minute
	m.AddLimiter(LimiterLLM, 10.0/60, 2)

	// Tweet creation: 200 requests per 15 min app-wide
	m.AddLimiter(LimiterPost, 200.0/(15*60), 5)

	// Recent search: 60 requests per 15 min
	m.AddLimiter(LimiterSearch, 60.0/(15*60), 10)

	// Sheets: 60 write requests per minute per user
	m.AddLimiter(LimiterSheets, 1, 10)

	// Firestore has generous quotas, keep it polite
	m.AddLimiter(LimiterFirestore, 10, 20)

	// Discord webhooks: 30 per minute
	m.AddLimiter(LimiterDiscord, 30.0/60, 5)

	// RSS fetches, politeness only
	m.AddLimiter(LimiterRSS, 1, 10)

	return m
}

// AddLimiter registers a limiter with the given sustained rate and burst
func (m *MultiLimiter) AddLimiter(name string, requestsPerSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

func (m *MultiLimiter) get(name string) (*rate.Limiter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limiter, ok := m.limiters[name]
	return limiter, ok
}

// Wait blocks until the named limiter allows an event
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	limiter, ok := m.get(name)
	if !ok {
		return fmt.Errorf("limiter %s not found", name)
	}
	return limiter.Wait(ctx)
}

// Allow reports whether an event may happen now
func (m *MultiLimiter) Allow(name string) bool {
	limiter, ok := m.get(name)
	if !ok {
		return false
	}
	return limiter.Allow()
}

// Reserve returns a reservation for a future event
func (m *MultiLimiter) Reserve(name string) (*rate.Reservation, error) {
	limiter, ok := m.get(name)
	if !ok {
		return nil, fmt.Errorf("limiter %s not found", name)
	}
	return limiter.Reserve(), nil
}
