package hub

import (
	"sync"
	"time"
)

// RateLimiter caps inbound events per connection with a minute-granular
// window. 100 events a minute is far above any honest classroom client.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimit
}

type clientLimit struct {
	eventCount  int
	windowStart time.Time
}

const (
	rateLimitPerMinute = 100
	rateLimitStaleAge  = 5 * time.Minute
)

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{clients: make(map[string]*clientLimit)}
}

// Allow reports whether the connection may send another event.
func (rl *RateLimiter) Allow(connID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	limit, exists := rl.clients[connID]
	if !exists {
		rl.clients[connID] = &clientLimit{eventCount: 1, windowStart: now}
		return true
	}

	if now.Sub(limit.windowStart) >= time.Minute {
		limit.eventCount = 1
		limit.windowStart = now
		return true
	}

	if limit.eventCount >= rateLimitPerMinute {
		return false
	}

	limit.eventCount++
	return true
}

// Cleanup drops entries idle for longer than the stale age. Called
// periodically from the hub loop.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for connID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > rateLimitStaleAge {
			delete(rl.clients, connID)
		}
	}
}
