package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch_backend/apperrors"
	"pricewatch_backend/models"
	"pricewatch_backend/services/pricecache"
	"pricewatch_backend/services/push"
	"pricewatch_backend/services/quotes"
)

// cycleSource serves canned quotes for cycle tests
type cycleSource struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  int
	delay  time.Duration
}

func (s *cycleSource) Fetch(ctx context.Context, symbol string) (quotes.Quote, error) {
	s.mu.Lock()
	s.calls++
	price, ok := s.prices[symbol]
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if !ok {
		return quotes.Quote{}, apperrors.ErrSymbolNotFound
	}
	return quotes.Quote{Symbol: symbol, Price: decimal.NewFromFloat(price), AsOf: time.Now()}, nil
}

// recordingNotifier captures dispatches without a real gateway
type recordingNotifier struct {
	mu         sync.Mutex
	dispatched []models.TriggeredAlert
}

func (n *recordingNotifier) Dispatch(ctx context.Context, trigger models.TriggeredAlert, recipients []models.DeviceToken) push.DeliveryReport {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dispatched = append(n.dispatched, trigger)
	return push.DeliveryReport{
		TriggerID: trigger.ID,
		AlertID:   trigger.AlertID,
		Symbol:    trigger.Symbol,
		Attempted: len(recipients),
		Delivered: len(recipients),
		SentAt:    time.Now(),
	}
}

type openLimiter struct{}

func (openLimiter) Allow(string) bool { return true }

func TestCycle_RecordsAndDispatchesCrossings(t *testing.T) {
	db := testDB(t)
	src := &cycleSource{prices: map[string]float64{"AAPL": 190, "MSFT": 380}}
	cache := pricecache.NewCache(db, src, openLimiter{}, time.Minute, 20, false)
	recorder := NewRecorder(db, false)
	notifier := &recordingNotifier{}
	cycle := NewCycle(db, cache, recorder, notifier, 3)

	createAlert(t, db, "AAPL", models.ConditionAbove, 180) // crosses
	createAlert(t, db, "MSFT", models.ConditionBelow, 350) // does not
	_, err := models.UpsertDeviceToken(db, "token-1", "user-1")
	require.NoError(t, err)

	summary, err := cycle.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.AlertsEvaluated)
	assert.Equal(t, 2, summary.SymbolsResolved)
	assert.Equal(t, 1, summary.Crossings)
	assert.Equal(t, 1, summary.TriggersRecorded)
	require.Len(t, notifier.dispatched, 1)
	assert.Equal(t, "AAPL", notifier.dispatched[0].Symbol)
	require.Len(t, summary.Reports, 1)
	assert.Equal(t, 1, summary.Reports[0].Delivered)
}

func TestCycle_SustainedCrossingSuppressed(t *testing.T) {
	db := testDB(t)
	src := &cycleSource{prices: map[string]float64{"AAPL": 190}}
	cache := pricecache.NewCache(db, src, openLimiter{}, time.Millisecond, 20, false)
	recorder := NewRecorder(db, false)
	cycle := NewCycle(db, cache, recorder, nil, 3)

	createAlert(t, db, "AAPL", models.ConditionAbove, 180)

	first, err := cycle.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.TriggersRecorded)

	time.Sleep(5 * time.Millisecond) // let the cache entry expire

	second, err := cycle.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Crossings)
	assert.Equal(t, 0, second.TriggersRecorded)
	assert.Equal(t, 1, second.TriggersSuppressed)
}

func TestCycle_FailedSymbolSkippedNotCrossed(t *testing.T) {
	db := testDB(t)
	src := &cycleSource{prices: map[string]float64{"AAPL": 190}} // GOOG unknown upstream
	cache := pricecache.NewCache(db, src, openLimiter{}, time.Minute, 20, false)
	recorder := NewRecorder(db, false)
	cycle := NewCycle(db, cache, recorder, nil, 3)

	createAlert(t, db, "AAPL", models.ConditionAbove, 180)
	createAlert(t, db, "GOOG", models.ConditionAbove, 1)

	summary, err := cycle.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SymbolsResolved)
	assert.Equal(t, 1, summary.SymbolsFailed)
	assert.Equal(t, 1, summary.Crossings, "only the resolvable symbol can cross")
	assert.Equal(t, 1, summary.TriggersRecorded)
}

func TestCycle_DeadlineStopsNewFetches(t *testing.T) {
	db := testDB(t)
	src := &cycleSource{
		prices: map[string]float64{"AAAA": 10, "BBBB": 10, "CCCC": 10, "DDDD": 10, "EEEE": 10, "FFFF": 10},
		delay:  40 * time.Millisecond,
	}
	cache := pricecache.NewCache(db, src, openLimiter{}, time.Minute, 20, false)
	recorder := NewRecorder(db, false)
	cycle := NewCycle(db, cache, recorder, nil, 1) // one worker, serial fetches

	for _, symbol := range []string{"AAAA", "BBBB", "CCCC", "DDDD", "EEEE", "FFFF"} {
		createAlert(t, db, symbol, models.ConditionAbove, 5)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	summary, err := cycle.Run(ctx)
	require.NoError(t, err)

	assert.Greater(t, summary.SymbolsSkipped, 0, "fetches past the deadline must be skipped")
	assert.Less(t, summary.SymbolsResolved, 6)
	// The deadline has long expired by the time recording starts;
	// crossings already resolved are still recorded
	assert.Equal(t, 0, summary.RecordFailures)
	assert.Equal(t, summary.SymbolsResolved, summary.TriggersRecorded)

	var recorded int64
	db.Model(&models.TriggeredAlert{}).Count(&recorded)
	assert.Equal(t, int64(summary.TriggersRecorded), recorded)
}

func TestCycle_NoActiveAlerts(t *testing.T) {
	db := testDB(t)
	src := &cycleSource{prices: map[string]float64{}}
	cache := pricecache.NewCache(db, src, openLimiter{}, time.Minute, 20, false)
	cycle := NewCycle(db, cache, NewRecorder(db, false), nil, 3)

	summary, err := cycle.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.AlertsEvaluated)
	assert.Equal(t, 0, src.calls)
}

func TestCycle_InactiveAlertsIgnored(t *testing.T) {
	db := testDB(t)
	src := &cycleSource{prices: map[string]float64{"AAPL": 190}}
	cache := pricecache.NewCache(db, src, openLimiter{}, time.Minute, 20, false)
	cycle := NewCycle(db, cache, NewRecorder(db, false), nil, 3)

	a := createAlert(t, db, "AAPL", models.ConditionAbove, 180)
	require.NoError(t, db.Model(&models.Alert{}).Where("id = ?", a.ID).Update("is_active", false).Error)

	summary, err := cycle.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.AlertsEvaluated)
}
