package pricecache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pricewatch_backend/apperrors"
	"pricewatch_backend/models"
	"pricewatch_backend/services/quotes"
)

// fakeSource returns canned quotes and counts upstream calls
type fakeSource struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  int32
	err    error
	delay  time.Duration
}

func (f *fakeSource) Fetch(ctx context.Context, symbol string) (quotes.Quote, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return quotes.Quote{}, fmt.Errorf("%w: %s", apperrors.ErrUpstreamTimeout, symbol)
		}
	}
	if f.err != nil {
		return quotes.Quote{}, f.err
	}
	f.mu.Lock()
	price, ok := f.prices[symbol]
	f.mu.Unlock()
	if !ok {
		return quotes.Quote{}, fmt.Errorf("%w: %s", apperrors.ErrSymbolNotFound, symbol)
	}
	return quotes.Quote{Symbol: symbol, Price: decimal.NewFromFloat(price), AsOf: time.Now()}, nil
}

func (f *fakeSource) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

// allowAll is a limiter that never denies
type allowAll struct{}

func (allowAll) Allow(string) bool { return true }

// denyAll is a limiter that always denies
type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigratePriceModels(db))
	return db
}

func TestCache_FreshHitIsUnmetered(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"AAPL": 187.45}}
	cache := NewCache(testDB(t), src, allowAll{}, time.Minute, 20, false)

	first, err := cache.GetPrice(context.Background(), "aapl ", true)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", first.Symbol)
	assert.Equal(t, "187.45", first.Price.String())

	// Second call within TTL must come from cache
	second, err := cache.GetPrice(context.Background(), "AAPL", true)
	require.NoError(t, err)
	assert.Equal(t, first.Price, second.Price)
	assert.Equal(t, 1, src.callCount())
}

func TestCache_RefetchAfterTTLExpiry(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"AAPL": 187.45}}
	cache := NewCache(testDB(t), src, allowAll{}, time.Minute, 20, false)

	current := time.Now()
	cache.now = func() time.Time { return current }

	_, err := cache.GetPrice(context.Background(), "AAPL", true)
	require.NoError(t, err)
	_, err = cache.GetPrice(context.Background(), "AAPL", true)
	require.NoError(t, err)
	assert.Equal(t, 1, src.callCount())

	// Past TTL the provider must be consulted again
	current = current.Add(2 * time.Minute)
	_, err = cache.GetPrice(context.Background(), "AAPL", true)
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount())
}

func TestCache_BypassCache(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"AAPL": 187.45}}
	cache := NewCache(testDB(t), src, allowAll{}, time.Minute, 20, false)

	_, err := cache.GetPrice(context.Background(), "AAPL", true)
	require.NoError(t, err)
	_, err = cache.GetPrice(context.Background(), "AAPL", false)
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount())
}

func TestCache_InvalidSymbol(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{}}
	cache := NewCache(testDB(t), src, allowAll{}, time.Minute, 20, false)

	for _, bad := range []string{"", "TOOLONG", "AB1", "no-pe"} {
		_, err := cache.GetPrice(context.Background(), bad, true)
		assert.ErrorIs(t, err, apperrors.ErrInvalidSymbol, "symbol %q", bad)
	}
	assert.Equal(t, 0, src.callCount(), "invalid symbols must never reach the provider")
}

func TestCache_RateLimitedWithoutStale(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"AAPL": 187.45}}
	cache := NewCache(testDB(t), src, denyAll{}, time.Minute, 20, false)

	_, err := cache.GetPrice(context.Background(), "AAPL", true)
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)
	assert.Equal(t, 0, src.callCount())
}

func TestCache_RateLimitedServesStale(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"AAPL": 187.45}}
	cache := NewCache(testDB(t), src, allowAll{}, time.Minute, 20, true)

	current := time.Now()
	cache.now = func() time.Time { return current }

	_, err := cache.GetPrice(context.Background(), "AAPL", true)
	require.NoError(t, err)

	// Expire the entry, then exhaust the budget
	current = current.Add(2 * time.Minute)
	cache.limiter = denyAll{}

	stale, err := cache.GetPrice(context.Background(), "AAPL", true)
	require.NoError(t, err)
	assert.True(t, stale.Stale)
	assert.Equal(t, "187.45", stale.Price.String())
	assert.Equal(t, 1, src.callCount())
}

func TestCache_GetManyPricesPartialFailure(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"AAPL": 187.45, "MSFT": 415.10}}
	cache := NewCache(testDB(t), src, allowAll{}, time.Minute, 20, false)

	results, err := cache.GetManyPrices(context.Background(), []string{"AAPL", "ZZZZZZ", "MSFT"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results["AAPL"].Err)
	assert.Equal(t, "187.45", results["AAPL"].Price.Price.String())
	assert.NoError(t, results["MSFT"].Err)
	assert.Equal(t, "415.1", results["MSFT"].Price.Price.String())
	assert.ErrorIs(t, results["ZZZZZZ"].Err, apperrors.ErrInvalidSymbol)
}

func TestCache_GetManyPricesTooMany(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{}}
	cache := NewCache(testDB(t), src, allowAll{}, time.Minute, 2, false)

	_, err := cache.GetManyPrices(context.Background(), []string{"AAPL", "MSFT", "GOOG"})
	assert.ErrorIs(t, err, apperrors.ErrTooManySymbols)
	assert.Equal(t, 0, src.callCount(), "oversized batches fail before any fetch")
}

func TestCache_SingleFlightCollapsesConcurrentFetches(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"AAPL": 187.45}, delay: 50 * time.Millisecond}
	cache := NewCache(testDB(t), src, allowAll{}, time.Minute, 20, false)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.GetPrice(context.Background(), "AAPL", true)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, src.callCount(), "concurrent identical requests must share one upstream call")
}

func TestCache_PersistsThroughToDB(t *testing.T) {
	db := testDB(t)
	src := &fakeSource{prices: map[string]float64{"AAPL": 187.45}}
	cache := NewCache(db, src, allowAll{}, time.Minute, 20, false)

	_, err := cache.GetPrice(context.Background(), "AAPL", true)
	require.NoError(t, err)

	var row models.CachedPrice
	require.NoError(t, db.Where("symbol = ?", "AAPL").First(&row).Error)
	assert.Equal(t, "187.45", row.Price.String())

	// Second fetch past TTL rewrites the same row, not a new one
	cache.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	src.mu.Lock()
	src.prices["AAPL"] = 190.00
	src.mu.Unlock()
	_, err = cache.GetPrice(context.Background(), "AAPL", true)
	require.NoError(t, err)

	var count int64
	db.Model(&models.CachedPrice{}).Where("symbol = ?", "AAPL").Count(&count)
	assert.Equal(t, int64(1), count)

	require.NoError(t, db.Where("symbol = ?", "AAPL").First(&row).Error)
	assert.Equal(t, "190", row.Price.String())
}

func TestCache_PeekNeverFetches(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"AAPL": 187.45}}
	cache := NewCache(testDB(t), src, allowAll{}, time.Millisecond, 20, false)

	_, ok := cache.Peek("AAPL")
	assert.False(t, ok, "empty cache peeks nothing")

	_, err := cache.GetPrice(context.Background(), "AAPL", true)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond) // expire the entry

	price, ok := cache.Peek("aapl ")
	assert.True(t, ok, "stale entries are still visible to Peek")
	assert.Equal(t, "187.45", price.Price.String())
	assert.Equal(t, 1, src.callCount())
}

func TestCache_WarmFromDB(t *testing.T) {
	db := testDB(t)
	require.NoError(t, models.UpsertCachedPrice(db, "AAPL", decimal.NewFromFloat(187.45), time.Now()))

	src := &fakeSource{prices: map[string]float64{}}
	cache := NewCache(db, src, allowAll{}, time.Minute, 20, false)
	require.NoError(t, cache.WarmFromDB())

	price, err := cache.GetPrice(context.Background(), "AAPL", true)
	require.NoError(t, err)
	assert.Equal(t, "187.45", price.Price.String())
	assert.Equal(t, 0, src.callCount())
}
