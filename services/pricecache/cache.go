package pricecache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"pricewatch_backend/apperrors"
	"pricewatch_backend/models"
	"pricewatch_backend/services/quotes"
)

// Cache configuration defaults
const (
	QuoteFetchKey   = "quote-fetch"
	DefaultTTL      = 5 * time.Minute
	DefaultMaxBatch = 20
)

// Price is a cached quote handed to callers. Stale marks an entry
// served past its TTL because the fetch budget was exhausted.
type Price struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	FetchedAt time.Time       `json:"fetched_at"`
	Stale     bool            `json:"stale,omitempty"`
}

// BatchEntry is one symbol's outcome in a bulk lookup
type BatchEntry struct {
	Price *Price `json:"price,omitempty"`
	Err   error  `json:"-"`
}

// Limiter is the request-budget gate consulted before upstream fetches
type Limiter interface {
	Allow(key string) bool
}

// Cache resolves symbol prices, serving fresh cache entries unmetered
// and fetching from the quote source under the rate budget otherwise.
// Concurrent fetches for the same symbol are collapsed into a single
// upstream call so they count against the budget once.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Price

	db      *gorm.DB
	source  quotes.Source
	limiter Limiter
	group   singleflight.Group

	ttl        time.Duration
	maxBatch   int
	serveStale bool

	// test hook
	now func() time.Time
}

// NewCache creates a price cache backed by db and the given quote
// source. Non-positive ttl/maxBatch fall back to the defaults.
// serveStale controls whether an expired entry is handed out when the
// fetch budget is exhausted instead of failing with ErrRateLimited.
func NewCache(db *gorm.DB, source quotes.Source, limiter Limiter, ttl time.Duration, maxBatch int, serveStale bool) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Cache{
		entries:    make(map[string]Price),
		db:         db,
		source:     source,
		limiter:    limiter,
		ttl:        ttl,
		maxBatch:   maxBatch,
		serveStale: serveStale,
		now:        time.Now,
	}
}

// WarmFromDB preloads the in-memory cache from persisted rows so a
// restart does not start cold. Entries past TTL still load; they are
// only eligible for stale serving.
func (c *Cache) WarmFromDB() error {
	var rows []models.CachedPrice
	if err := c.db.Find(&rows).Error; err != nil {
		return fmt.Errorf("%w: load cached prices: %v", apperrors.ErrPersistence, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range rows {
		c.entries[row.Symbol] = Price{
			Symbol:    row.Symbol,
			Price:     row.Price,
			FetchedAt: row.FetchedAt,
		}
	}
	log.Printf("Price cache warmed with %d entries", len(rows))
	return nil
}

// GetPrice resolves the current price for a symbol. With useCache, an
// entry younger than TTL is returned without touching the rate limiter
// or the provider. Otherwise the fetch is metered under the
// "quote-fetch" key; when denied, a stale entry is served if the cache
// is configured for it, else the call fails with ErrRateLimited.
func (c *Cache) GetPrice(ctx context.Context, symbol string, useCache bool) (Price, error) {
	symbol = models.NormalizeSymbol(symbol)
	if err := models.ValidateSymbol(symbol); err != nil {
		return Price{}, err
	}

	if useCache {
		if entry, ok := c.lookup(symbol); ok && c.fresh(entry) {
			return entry, nil
		}
	}

	v, err, _ := c.group.Do(symbol, func() (interface{}, error) {
		// Another collapsed caller may have refreshed the entry while
		// this one waited for the flight slot.
		if useCache {
			if entry, ok := c.lookup(symbol); ok && c.fresh(entry) {
				return entry, nil
			}
		}

		if !c.limiter.Allow(QuoteFetchKey) {
			if c.serveStale {
				if entry, ok := c.lookup(symbol); ok {
					entry.Stale = true
					return entry, nil
				}
			}
			return Price{}, fmt.Errorf("%w: %s", apperrors.ErrRateLimited, QuoteFetchKey)
		}

		quote, err := c.source.Fetch(ctx, symbol)
		if err != nil {
			return Price{}, err
		}

		entry := Price{
			Symbol:    symbol,
			Price:     quote.Price,
			FetchedAt: c.now(),
		}
		c.store(entry)
		return entry, nil
	})
	if err != nil {
		return Price{}, err
	}
	return v.(Price), nil
}

// GetManyPrices resolves a batch of symbols. Each symbol succeeds or
// fails independently; one bad symbol never aborts the rest. Batches
// larger than the configured limit are rejected up front with
// ErrTooManySymbols before any fetch is attempted.
func (c *Cache) GetManyPrices(ctx context.Context, symbols []string) (map[string]BatchEntry, error) {
	if len(symbols) > c.maxBatch {
		return nil, fmt.Errorf("%w: %d symbols exceeds limit of %d", apperrors.ErrTooManySymbols, len(symbols), c.maxBatch)
	}

	results := make(map[string]BatchEntry, len(symbols))
	for _, raw := range symbols {
		symbol := models.NormalizeSymbol(raw)
		price, err := c.GetPrice(ctx, symbol, true)
		if err != nil {
			results[symbol] = BatchEntry{Err: err}
			continue
		}
		results[symbol] = BatchEntry{Price: &price}
	}
	return results, nil
}

// Peek returns the cached entry for a symbol without fetching,
// regardless of freshness.
func (c *Cache) Peek(symbol string) (Price, bool) {
	return c.lookup(models.NormalizeSymbol(symbol))
}

// Snapshot returns a copy of all cached entries, for price-display
// endpoints and the realtime broadcast.
func (c *Cache) Snapshot() []Price {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Price, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry)
	}
	return out
}

// TTL returns the configured freshness window
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

func (c *Cache) lookup(symbol string) (Price, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[symbol]
	return entry, ok
}

func (c *Cache) fresh(entry Price) bool {
	return c.now().Sub(entry.FetchedAt) < c.ttl
}

// store writes the entry to memory and through to the database. A
// failed DB write downgrades to a log line: the in-memory entry still
// serves this process and the row is rewritten on the next fetch.
func (c *Cache) store(entry Price) {
	c.mu.Lock()
	c.entries[entry.Symbol] = entry
	c.mu.Unlock()

	if err := models.UpsertCachedPrice(c.db, entry.Symbol, entry.Price, entry.FetchedAt); err != nil {
		log.Printf("Warning: failed to persist cached price for %s: %v", entry.Symbol, err)
	}
}
