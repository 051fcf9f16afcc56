package models

import "time"

// Well-known setting keys.
const (
	SettingCentralExchangeRate  = "USD_ETB_RATE"
	SettingAllowNegativeBalance = "ALLOW_NEGATIVE_BALANCE"

	SettingCategoryFinancial = "financial"
)

// Setting stores one admin-configurable scalar value per key.
type Setting struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"size:100;uniqueIndex;not null"`
	Value     string `gorm:"size:255;not null"`
	Category  string `gorm:"size:50;index;not null"`
	UpdatedAt time.Time
	CreatedAt time.Time
}
