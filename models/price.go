package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CachedPrice is the persisted snapshot of the last known quote for a
// symbol. It is a soft cache: the quote source remains the source of
// truth and the row is always reconstructible from it.
type CachedPrice struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Symbol    string          `gorm:"uniqueIndex;not null" json:"symbol"`
	Price     decimal.Decimal `gorm:"type:decimal(15,4)" json:"price"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// UpsertCachedPrice writes the latest quote for a symbol, replacing any
// previous row. Guarded by the unique index on symbol.
func UpsertCachedPrice(db *gorm.DB, symbol string, price decimal.Decimal, fetchedAt time.Time) error {
	entry := CachedPrice{
		Symbol:    symbol,
		Price:     price,
		FetchedAt: fetchedAt,
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"price", "fetched_at"}),
	}).Create(&entry).Error
}

// MigratePriceModels runs database migrations for price models
func MigratePriceModels(db *gorm.DB) error {
	return db.AutoMigrate(&CachedPrice{})
}
