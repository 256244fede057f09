package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pricewatch_backend/apperrors"
	"pricewatch_backend/models"
)

// Recorder persists crossing events as triggered-alert rows. It
// guarantees at most one unread trigger per alert at any time: while
// the user has not acknowledged the previous trigger, a sustained
// crossing records nothing.
type Recorder struct {
	db             *gorm.DB
	autoDeactivate bool

	// test hook
	now func() time.Time
}

// NewRecorder creates a trigger recorder. autoDeactivate selects the
// deactivation policy: false leaves the alert active so it can
// re-trigger after the previous trigger is marked read, true disables
// the alert the first time it fires.
func NewRecorder(db *gorm.DB, autoDeactivate bool) *Recorder {
	return &Recorder{
		db:             db,
		autoDeactivate: autoDeactivate,
		now:            time.Now,
	}
}

// Record persists one crossing. Returns (nil, nil) when an unread
// trigger already exists for the alert: the no-op that suppresses
// trigger storms. The inserted row snapshots symbol, target and
// condition from the alert at trigger time.
func (r *Recorder) Record(ctx context.Context, event CrossingEvent) (*models.TriggeredAlert, error) {
	var existing models.TriggeredAlert
	err := r.db.WithContext(ctx).
		Where("alert_id = ? AND is_read = ?", event.Alert.ID, false).
		First(&existing).Error
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: checking unread triggers for alert %d: %v", apperrors.ErrPersistence, event.Alert.ID, err)
	}

	trigger := models.TriggeredAlert{
		AlertID:     event.Alert.ID,
		Symbol:      event.Alert.Symbol,
		TargetPrice: event.Alert.TargetPrice,
		Condition:   event.Alert.Condition,
		ActualPrice: event.ActualPrice,
		TriggeredAt: r.now(),
		IsRead:      false,
	}
	// Overlapping cycles can both pass the check above. The insert
	// targets the partial unique index on (alert_id) WHERE is_read =
	// false, so the loser inserts nothing and the winner's unread
	// trigger stands.
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:     []clause.Column{{Name: "alert_id"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "is_read = false"}}},
		DoNothing:   true,
	}).Create(&trigger)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: inserting trigger for alert %d: %v", apperrors.ErrPersistence, event.Alert.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	if r.autoDeactivate {
		err := r.db.WithContext(ctx).Model(&models.Alert{}).
			Where("id = ?", event.Alert.ID).
			Update("is_active", false).Error
		if err != nil {
			return nil, fmt.Errorf("%w: deactivating alert %d: %v", apperrors.ErrPersistence, event.Alert.ID, err)
		}
	}

	return &trigger, nil
}

// MarkRead acknowledges a trigger so the alert becomes eligible to fire
// again on a future crossing.
func (r *Recorder) MarkRead(ctx context.Context, triggerID uint) error {
	result := r.db.WithContext(ctx).Model(&models.TriggeredAlert{}).
		Where("id = ?", triggerID).
		Update("is_read", true)
	if result.Error != nil {
		return fmt.Errorf("%w: marking trigger %d read: %v", apperrors.ErrPersistence, triggerID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
