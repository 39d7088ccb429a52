package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServiceFee records the fee charged for a walk-in or member service.
// Amounts are exact decimals; billing aggregation happens downstream.
type ServiceFee struct {
	ID         string          `gorm:"primaryKey;size:36"`
	DocumentID string          `gorm:"size:36;not null;index"`
	Amount     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency   string          `gorm:"size:3;default:ZAR"`
	RecordedBy string          `gorm:"size:36"`
	RecordedAt time.Time
}
