package signal

import (
	"sync"
	"time"
)

// RateLimiter is a sliding window limiter keyed by client token.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	// 1. Берем историю клиента
	attempts := rl.history[key]

	// 2. Убираем старые попытки
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	// 3. Если свежих попыток >= лимита → блок
	if len(fresh) >= rl.limit {
		rl.history[key] = fresh
		return false
	}

	// 4. Иначе добавить текущую попытку
	fresh = append(fresh, now)
	rl.history[key] = fresh

	return true
}

// Prune drops keys without attempts inside the window.
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	windowStart := rl.now().Add(-rl.interval)
	var n int
	for key, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, key)
			n++
		}
	}
	return n
}
