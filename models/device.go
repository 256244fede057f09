package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceToken represents a device registered for push notifications.
// Written by the registration endpoint; deactivated by the notification
// fan-out when the push gateway reports the token as invalid.
type DeviceToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Token     string    `gorm:"uniqueIndex;not null" json:"token"`
	UserID    string    `gorm:"index" json:"user_id,omitempty"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpsertDeviceToken registers a token, reactivating it if it already
// exists. The unique index on token makes the race safe under
// concurrent registrations.
func UpsertDeviceToken(db *gorm.DB, token, userID string) (*DeviceToken, error) {
	device := DeviceToken{
		Token:    token,
		UserID:   userID,
		IsActive: true,
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "is_active", "updated_at"}),
	}).Create(&device).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// ActiveDeviceTokens returns all tokens currently eligible for delivery
func ActiveDeviceTokens(db *gorm.DB) ([]DeviceToken, error) {
	var tokens []DeviceToken
	if err := db.Where("is_active = ?", true).Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

// MigrateDeviceModels runs database migrations for device models
func MigrateDeviceModels(db *gorm.DB) error {
	return db.AutoMigrate(&DeviceToken{})
}
