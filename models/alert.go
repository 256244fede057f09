package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"pricewatch_backend/apperrors"
)

// Alert condition constants
const (
	ConditionAbove = "ABOVE"
	ConditionBelow = "BELOW"
)

var symbolPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

// Alert represents a user-configured price alert on a tracked symbol
type Alert struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Symbol      string          `gorm:"index;not null" json:"symbol"`
	TargetPrice decimal.Decimal `gorm:"type:decimal(15,4)" json:"target_price"`
	Condition   string          `gorm:"not null" json:"condition"` // ABOVE, BELOW
	IsActive    bool            `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	// Triggers are owned by the alert: deleting the alert removes them.
	Triggers []TriggeredAlert `gorm:"foreignKey:AlertID;constraint:OnDelete:CASCADE" json:"triggers,omitempty"`
}

// TriggeredAlert records one crossing event. Symbol, target price and
// condition are copied from the alert at trigger time so later edits to
// the alert do not rewrite history. Only IsRead is ever mutated.
type TriggeredAlert struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	AlertID     uint            `gorm:"index;not null" json:"alert_id"`
	Symbol      string          `gorm:"index" json:"symbol"`
	TargetPrice decimal.Decimal `gorm:"type:decimal(15,4)" json:"target_price"`
	Condition   string          `json:"condition"`
	ActualPrice decimal.Decimal `gorm:"type:decimal(15,4)" json:"actual_price"`
	TriggeredAt time.Time       `gorm:"index" json:"triggered_at"`
	IsRead      bool            `gorm:"default:false;index" json:"is_read"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NormalizeSymbol trims and uppercases a raw ticker
func NormalizeSymbol(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidateSymbol checks the normalized ticker format (1-5 uppercase letters)
func ValidateSymbol(symbol string) error {
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidSymbol, symbol)
	}
	return nil
}

// ValidCondition reports whether the condition string is recognized
func ValidCondition(condition string) bool {
	return condition == ConditionAbove || condition == ConditionBelow
}

// Validate checks alert invariants before persisting
func (a *Alert) Validate() error {
	a.Symbol = NormalizeSymbol(a.Symbol)
	if err := ValidateSymbol(a.Symbol); err != nil {
		return err
	}
	if !ValidCondition(a.Condition) {
		return fmt.Errorf("invalid condition %q: must be %s or %s", a.Condition, ConditionAbove, ConditionBelow)
	}
	if !a.TargetPrice.IsPositive() {
		return fmt.Errorf("target price must be positive, got %s", a.TargetPrice)
	}
	return nil
}

// MigrateAlertModels runs database migrations for alert-related models
func MigrateAlertModels(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Alert{},
		&TriggeredAlert{},
	); err != nil {
		return err
	}
	// At most one unread trigger per alert. The partial index backs the
	// recorder's race-safe insert; both postgres and sqlite support it.
	return db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_triggered_alerts_one_unread ON triggered_alerts (alert_id) WHERE is_read = false",
	).Error
}
