package ratelimit

import (
	"sync"
	"time"
)

// window tracks request counts for one key within the current window
type window struct {
	Count   int
	ResetAt time.Time
}

// Limiter is a fixed-window request budget per logical key (for example
// "quote-fetch" or a client IP). Denial is immediate: there is no
// queueing, the caller decides whether to skip, error or fall back to
// cache. State is process-local and lost on restart, which is
// acceptable because the limiter only throttles.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	budget  int
	period  time.Duration

	// test hook
	now func() time.Time
}

// NewLimiter creates a limiter allowing budget requests per period for
// each key.
func NewLimiter(budget int, period time.Duration) *Limiter {
	l := &Limiter{
		windows: make(map[string]*window),
		budget:  budget,
		period:  period,
		now:     time.Now,
	}
	go l.startCleanup()
	return l
}

// Allow reports whether another request is permitted for key, counting
// it against the current window when it is. First use of a key, or any
// use after its window elapsed, resets the count to 1.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, exists := l.windows[key]
	if !exists || now.After(w.ResetAt) {
		l.windows[key] = &window{Count: 1, ResetAt: now.Add(l.period)}
		return true
	}

	if w.Count >= l.budget {
		return false
	}
	w.Count++
	return true
}

// Remaining returns how many requests are left for key in the current
// window without consuming any.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, exists := l.windows[key]
	if !exists || l.now().After(w.ResetAt) {
		return l.budget
	}
	remaining := l.budget - w.Count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// startCleanup periodically evicts expired windows
func (l *Limiter) startCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	for range ticker.C {
		l.cleanup()
	}
}

// cleanup removes windows whose reset time has passed
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.windows {
		if now.After(w.ResetAt) {
			delete(l.windows, key)
		}
	}
}
