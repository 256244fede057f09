package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_BudgetExhaustion(t *testing.T) {
	l := NewLimiter(2, time.Minute)

	assert.True(t, l.Allow("k"))
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"), "third call in the same window must be denied")

	// Denial must not consume budget or extend the window
	assert.False(t, l.Allow("k"))
	assert.Equal(t, 0, l.Remaining("k"))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := NewLimiter(1, time.Minute)

	assert.True(t, l.Allow("quote-fetch"))
	assert.False(t, l.Allow("quote-fetch"))
	assert.True(t, l.Allow("symbol-search"), "a saturated key must not affect others")
}

func TestLimiter_WindowReset(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	current := time.Now()
	l.now = func() time.Time { return current }

	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))

	// Advance past the window: count resets to 1 and the call is allowed
	current = current.Add(61 * time.Second)
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
}

func TestLimiter_Remaining(t *testing.T) {
	l := NewLimiter(3, time.Minute)

	assert.Equal(t, 3, l.Remaining("k"))
	l.Allow("k")
	assert.Equal(t, 2, l.Remaining("k"))
	l.Allow("k")
	l.Allow("k")
	assert.Equal(t, 0, l.Remaining("k"))
}

func TestLimiter_Cleanup(t *testing.T) {
	l := NewLimiter(5, time.Minute)
	current := time.Now()
	l.now = func() time.Time { return current }

	l.Allow("old")
	current = current.Add(2 * time.Minute)
	l.Allow("fresh")
	l.cleanup()

	l.mu.Lock()
	_, oldExists := l.windows["old"]
	_, freshExists := l.windows["fresh"]
	l.mu.Unlock()

	assert.False(t, oldExists)
	assert.True(t, freshExists)
}

func TestLimiter_ConcurrentCallers(t *testing.T) {
	l := NewLimiter(100, time.Minute)

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow("k")
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	assert.Equal(t, 100, count, "exactly the budget must be admitted under contention")
}
