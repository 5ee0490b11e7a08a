// Package ratelimit throttles model requests per user with a one minute
// window. The in-memory backend serves a single instance; the Redis backend
// shares the window across instances.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const window = time.Minute

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter admits at most a fixed number of requests per user per window.
type Limiter interface {
	Allow(ctx context.Context, userID string) (Decision, error)
}

type InMemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	windows map[string]*userWindow
	now     func() time.Time
}

type userWindow struct {
	count   int
	resetAt time.Time
}

func NewInMemoryLimiter(limit int) *InMemoryLimiter {
	return &InMemoryLimiter{
		limit:   limit,
		windows: make(map[string]*userWindow),
		now:     time.Now,
	}
}

func (l *InMemoryLimiter) Allow(ctx context.Context, userID string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, ok := l.windows[userID]
	if !ok || !now.Before(w.resetAt) {
		w = &userWindow{resetAt: now.Add(window)}
		l.windows[userID] = w
	}

	if w.count >= l.limit {
		return Decision{Allowed: false, Remaining: 0, ResetAt: w.resetAt}, nil
	}

	w.count++
	return Decision{Allowed: true, Remaining: l.limit - w.count, ResetAt: w.resetAt}, nil
}
