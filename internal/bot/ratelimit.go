package bot

import (
	"sync"
	"time"
)

const (
	// MaxRequestsPerMinute: лимит сообщений в минуту на пользователя
	MaxRequestsPerMinute = 20
	RateLimitWindow      = time.Minute
)

// RateLimiter простой rate limiter для пользователей
type RateLimiter struct {
	requests map[int64][]time.Time
	mutex    sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewRateLimiter создает новый rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = MaxRequestsPerMinute
	}
	if window <= 0 {
		window = RateLimitWindow
	}
	return &RateLimiter{
		requests: make(map[int64][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// IsAllowed проверяет, разрешен ли запрос для пользователя
func (rl *RateLimiter) IsAllowed(userID int64) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	valid := rl.requests[userID][:0]
	for _, t := range rl.requests[userID] {
		if now.Sub(t) < rl.window {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[userID] = valid
		return false
	}

	rl.requests[userID] = append(valid, now)
	return true
}

// Cleanup удаляет пользователей без запросов в текущем окне
func (rl *RateLimiter) Cleanup() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	removed := 0
	for userID, times := range rl.requests {
		if len(times) == 0 || now.Sub(times[len(times)-1]) >= rl.window {
			delete(rl.requests, userID)
			removed++
		}
	}
	return removed
}
