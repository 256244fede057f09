package push

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"pricewatch_backend/models"
)

// DeliveryReport summarizes one fan-out: how many deliveries were
// attempted, how many landed, and which tokens failed in which way.
// Partial failure is normal operation, never an error.
type DeliveryReport struct {
	TriggerID         uint      `json:"trigger_id"`
	AlertID           uint      `json:"alert_id"`
	Symbol            string    `json:"symbol"`
	Attempted         int       `json:"attempted"`
	Delivered         int       `json:"delivered"`
	InvalidTokens     []string  `json:"invalid_tokens,omitempty"`
	TransientFailures []string  `json:"transient_failures,omitempty"`
	SentAt            time.Time `json:"sent_at"`
}

// Fanout delivers one triggered alert to all registered devices,
// pruning tokens the gateway reports as dead.
type Fanout struct {
	db      *gorm.DB
	gateway Gateway
}

// NewFanout creates the notification fan-out
func NewFanout(db *gorm.DB, gateway Gateway) *Fanout {
	return &Fanout{db: db, gateway: gateway}
}

// BuildPayload derives the notification content from a trigger snapshot
func BuildPayload(trigger models.TriggeredAlert) Payload {
	direction := "rose above"
	if trigger.Condition == models.ConditionBelow {
		direction = "fell below"
	}
	return Payload{
		Title: fmt.Sprintf("%s price alert", trigger.Symbol),
		Body: fmt.Sprintf("%s %s your target of %s (now %s)",
			trigger.Symbol, direction, trigger.TargetPrice.StringFixed(2), trigger.ActualPrice.StringFixed(2)),
		Data: map[string]string{
			"alert_id":   fmt.Sprintf("%d", trigger.AlertID),
			"trigger_id": fmt.Sprintf("%d", trigger.ID),
			"symbol":     trigger.Symbol,
		},
	}
}

// Dispatch sends the trigger's notification to every recipient token.
// Each delivery is independent: one bad token never blocks the rest.
// Tokens the gateway reports invalid are deactivated so future cycles
// stop targeting them; transient failures leave the token active for
// retry on a future trigger.
func (f *Fanout) Dispatch(ctx context.Context, trigger models.TriggeredAlert, recipients []models.DeviceToken) DeliveryReport {
	report := DeliveryReport{
		TriggerID: trigger.ID,
		AlertID:   trigger.AlertID,
		Symbol:    trigger.Symbol,
		Attempted: len(recipients),
		SentAt:    time.Now(),
	}
	if len(recipients) == 0 {
		return report
	}

	payload := BuildPayload(trigger)

	var results []Result
	if len(recipients) == 1 {
		results = []Result{f.gateway.SendOne(ctx, recipients[0].Token, payload)}
	} else {
		tokens := make([]string, len(recipients))
		for i, device := range recipients {
			tokens[i] = device.Token
		}
		results = f.gateway.SendMany(ctx, tokens, payload)
	}

	for _, result := range results {
		switch result.Status {
		case StatusOK:
			report.Delivered++
		case StatusInvalidToken:
			report.InvalidTokens = append(report.InvalidTokens, result.Token)
			f.deactivateToken(ctx, result.Token, result.Detail)
		default:
			report.TransientFailures = append(report.TransientFailures, result.Token)
		}
	}

	log.Printf("Dispatched trigger %d (%s): %d/%d delivered, %d invalid, %d transient",
		trigger.ID, trigger.Symbol, report.Delivered, report.Attempted,
		len(report.InvalidTokens), len(report.TransientFailures))
	return report
}

// deactivateToken marks a dead token inactive
func (f *Fanout) deactivateToken(ctx context.Context, token, reason string) {
	err := f.db.WithContext(ctx).Model(&models.DeviceToken{}).
		Where("token = ?", token).
		Update("is_active", false).Error
	if err != nil {
		log.Printf("Warning: failed to deactivate token: %v", err)
		return
	}
	log.Printf("Deactivated device token (%s)", reason)
}
