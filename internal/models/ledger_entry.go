package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryTypeIn      EntryType = "in"
	EntryTypeOut     EntryType = "out"
	EntryTypeOpening EntryType = "opening"
	EntryTypeReverse EntryType = "reverse"
	EntryTypeReclass EntryType = "reclass"
)

// BaseCurrency is the currency all normalized balances are stored in.
const BaseCurrency = "USD"

// LedgerEntry is an immutable record of a monetary movement. Rows are created
// once and never updated; an entry with a reference is offset by a later
// reverse entry, one without a reference may be deleted outright.
type LedgerEntry struct {
	ID     uint      `gorm:"primaryKey" json:"id"`
	Number string    `gorm:"size:20;uniqueIndex;not null" json:"number"`
	Type   EntryType `gorm:"size:20;index;not null" json:"type"`

	// AmountBase is the normalized amount in BaseCurrency. For reverse
	// entries it is stored signed so the balance stays one SUM.
	AmountBase       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount_base"`
	OriginalAmount   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"original_amount"`
	OriginalCurrency string          `gorm:"size:10;not null" json:"original_currency"`
	ExchangeRateUsed decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"exchange_rate_used"`

	Reference   string `gorm:"size:100;index" json:"reference"`
	Description string `gorm:"size:500" json:"description"`

	CreatedBy uint      `gorm:"index;not null" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
