package alerts

import (
	"github.com/shopspring/decimal"

	"pricewatch_backend/models"
)

// CrossingEvent is one alert found crossed against the current price
// snapshot. Deduplication across cycles is the recorder's concern; the
// matcher only sees the snapshot in front of it.
type CrossingEvent struct {
	Alert       models.Alert
	ActualPrice decimal.Decimal
}

// PriceLookup resolves the current price for a symbol. The second
// return is false when the price could not be resolved this cycle.
type PriceLookup func(symbol string) (decimal.Decimal, bool)

// Evaluate decides which of the active alerts just crossed. Alerts on
// symbols without a resolvable price are skipped for the cycle, not
// treated as crossed and not treated as an error. A price landing
// exactly on target counts as crossed in both directions.
func Evaluate(activeAlerts []models.Alert, lookup PriceLookup) []CrossingEvent {
	bySymbol := make(map[string][]models.Alert)
	for _, alert := range activeAlerts {
		bySymbol[alert.Symbol] = append(bySymbol[alert.Symbol], alert)
	}

	var events []CrossingEvent
	for symbol, group := range bySymbol {
		price, ok := lookup(symbol)
		if !ok {
			continue
		}
		for _, alert := range group {
			if crossed(alert, price) {
				events = append(events, CrossingEvent{Alert: alert, ActualPrice: price})
			}
		}
	}
	return events
}

// crossed applies the closed-boundary comparison for one alert
func crossed(alert models.Alert, price decimal.Decimal) bool {
	switch alert.Condition {
	case models.ConditionAbove:
		return price.GreaterThanOrEqual(alert.TargetPrice)
	case models.ConditionBelow:
		return price.LessThanOrEqual(alert.TargetPrice)
	}
	return false
}
