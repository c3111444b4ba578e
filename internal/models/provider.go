package models

import "time"

type RetryPattern string

const (
	RetryExponential RetryPattern = "exponential"
	RetryDaily       RetryPattern = "daily"
	RetryFibonacci   RetryPattern = "fibonacci"
)

const DefaultMaxAutomaticRetries = 5

// Provider is the billing entity a document is issued under. It owns the
// automatic-retry configuration applied to its failed transactions.
type Provider struct {
	ID                  uint         `gorm:"primaryKey"`
	Name                string       `gorm:"size:128;not null"`
	Company             string       `gorm:"size:128"`
	InvoiceSeries       string       `gorm:"size:20"`
	ProformaSeries      string       `gorm:"size:20"`
	RetryPattern        RetryPattern `gorm:"size:16;not null;default:'exponential'"`
	MaxAutomaticRetries int          `gorm:"not null;default:5"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// MaxRetries guards against zero-valued rows created before the column default
// existed.
func (p *Provider) MaxRetries() int {
	if p.MaxAutomaticRetries <= 0 {
		return DefaultMaxAutomaticRetries
	}
	return p.MaxAutomaticRetries
}
