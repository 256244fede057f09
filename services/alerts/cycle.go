package alerts

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"pricewatch_backend/apperrors"
	"pricewatch_backend/models"
	"pricewatch_backend/services/pricecache"
	"pricewatch_backend/services/push"
)

// DefaultWorkers bounds concurrent symbol resolution within one cycle
const DefaultWorkers = 5

// Notifier fans a recorded trigger out to devices
type Notifier interface {
	Dispatch(ctx context.Context, trigger models.TriggeredAlert, recipients []models.DeviceToken) push.DeliveryReport
}

// ReportSink receives delivery reports for logging or metrics
type ReportSink interface {
	Record(ctx context.Context, report push.DeliveryReport) error
}

// Broadcaster pushes cycle outputs to connected realtime clients
type Broadcaster interface {
	BroadcastPrices(prices []pricecache.Price)
	BroadcastTrigger(trigger models.TriggeredAlert)
}

// Summary describes what one evaluation cycle did
type Summary struct {
	StartedAt         time.Time             `json:"started_at"`
	Duration          time.Duration         `json:"duration"`
	AlertsEvaluated   int                   `json:"alerts_evaluated"`
	SymbolsResolved   int                   `json:"symbols_resolved"`
	SymbolsFailed     int                   `json:"symbols_failed"`
	SymbolsSkipped    int                   `json:"symbols_skipped"`
	Crossings         int                   `json:"crossings"`
	TriggersRecorded  int                   `json:"triggers_recorded"`
	TriggersSuppressed int                  `json:"triggers_suppressed"`
	RecordFailures    int                   `json:"record_failures"`
	Reports           []push.DeliveryReport `json:"reports,omitempty"`
}

// Cycle orchestrates one evaluation pass: pull active alerts, resolve
// their symbols through the price cache, match crossings, record
// triggers and fan out notifications. Price resolution runs on a
// bounded worker pool since symbols are independent; recording stays
// sequential per alert to preserve the one-unread-trigger guarantee.
type Cycle struct {
	db       *gorm.DB
	cache    *pricecache.Cache
	recorder *Recorder
	notifier Notifier    // optional
	sink     ReportSink  // optional
	hub      Broadcaster // optional
	workers  int
}

// NewCycle creates the evaluation cycle. notifier, sink and hub may be
// nil; the cycle then only records triggers.
func NewCycle(db *gorm.DB, cache *pricecache.Cache, recorder *Recorder, notifier Notifier, workers int) *Cycle {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Cycle{
		db:       db,
		cache:    cache,
		recorder: recorder,
		notifier: notifier,
		workers:  workers,
	}
}

// SetReportSink wires an optional delivery-report sink
func (c *Cycle) SetReportSink(sink ReportSink) { c.sink = sink }

// SetBroadcaster wires an optional realtime broadcaster
func (c *Cycle) SetBroadcaster(hub Broadcaster) { c.hub = hub }

// Run executes one evaluation pass. A ctx deadline stops new upstream
// fetches; crossings already resolved are still recorded and
// dispatched. Per-symbol failures never abort the cycle.
func (c *Cycle) Run(ctx context.Context) (Summary, error) {
	summary := Summary{StartedAt: time.Now()}
	defer func() { summary.Duration = time.Since(summary.StartedAt) }()

	var activeAlerts []models.Alert
	if err := c.db.WithContext(ctx).Where("is_active = ?", true).Find(&activeAlerts).Error; err != nil {
		return summary, fmt.Errorf("%w: loading active alerts: %v", apperrors.ErrPersistence, err)
	}
	summary.AlertsEvaluated = len(activeAlerts)
	if len(activeAlerts) == 0 {
		return summary, nil
	}

	prices := c.resolvePrices(ctx, distinctSymbols(activeAlerts), &summary)

	events := Evaluate(activeAlerts, func(symbol string) (decimal.Decimal, bool) {
		price, ok := prices[symbol]
		return price, ok
	})
	summary.Crossings = len(events)

	// Deterministic recording order across runs
	sort.Slice(events, func(i, j int) bool { return events[i].Alert.ID < events[j].Alert.ID })

	var recipients []models.DeviceToken
	if c.notifier != nil && len(events) > 0 {
		var err error
		recipients, err = models.ActiveDeviceTokens(c.db)
		if err != nil {
			log.Printf("Error loading device tokens, skipping notifications: %v", err)
			recipients = nil
		}
	}

	// The deadline only bounds upstream fetches. Crossings already
	// resolved must still be recorded and dispatched even if it has
	// passed by now.
	recordCtx := context.WithoutCancel(ctx)

	for _, event := range events {
		trigger, err := c.recorder.Record(recordCtx, event)
		if err != nil {
			// Losing one trigger write is preferable to halting the cycle
			log.Printf("Error recording trigger for alert %d: %v", event.Alert.ID, err)
			summary.RecordFailures++
			continue
		}
		if trigger == nil {
			summary.TriggersSuppressed++
			continue
		}
		summary.TriggersRecorded++

		if c.hub != nil {
			c.hub.BroadcastTrigger(*trigger)
		}

		if c.notifier != nil {
			report := c.notifier.Dispatch(recordCtx, *trigger, recipients)
			summary.Reports = append(summary.Reports, report)
			if c.sink != nil {
				if err := c.sink.Record(recordCtx, report); err != nil {
					log.Printf("Warning: failed to log delivery report: %v", err)
				}
			}
		}
	}

	if c.hub != nil {
		c.hub.BroadcastPrices(c.cache.Snapshot())
	}

	log.Printf("Evaluation cycle: %d alerts, %d/%d symbols, %d crossings, %d recorded, %d suppressed",
		summary.AlertsEvaluated, summary.SymbolsResolved,
		summary.SymbolsResolved+summary.SymbolsFailed+summary.SymbolsSkipped,
		summary.Crossings, summary.TriggersRecorded, summary.TriggersSuppressed)
	return summary, nil
}

// resolvePrices fetches each distinct symbol through the cache on a
// bounded worker pool. Once ctx is done no new fetches start; symbols
// not yet attempted are skipped for this cycle.
func (c *Cycle) resolvePrices(ctx context.Context, symbols []string, summary *Summary) map[string]decimal.Decimal {
	jobs := make(chan string)
	prices := make(map[string]decimal.Decimal, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(c.workers)
	for i := 0; i < c.workers; i++ {
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				if ctx.Err() != nil {
					mu.Lock()
					summary.SymbolsSkipped++
					mu.Unlock()
					continue
				}
				price, err := c.cache.GetPrice(ctx, symbol, true)
				mu.Lock()
				if err != nil {
					summary.SymbolsFailed++
					mu.Unlock()
					log.Printf("Error resolving price for %s: %v", symbol, err)
					continue
				}
				prices[symbol] = price.Price
				summary.SymbolsResolved++
				mu.Unlock()
			}
		}()
	}

	for _, symbol := range symbols {
		jobs <- symbol
	}
	close(jobs)
	wg.Wait()

	return prices
}

// distinctSymbols lists each alerted symbol once
func distinctSymbols(alerts []models.Alert) []string {
	seen := make(map[string]bool, len(alerts))
	var symbols []string
	for _, alert := range alerts {
		if !seen[alert.Symbol] {
			seen[alert.Symbol] = true
			symbols = append(symbols, alert.Symbol)
		}
	}
	return symbols
}
