package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Document kinds. A proforma is a pre-invoice issued before payment; both go
// through the same lifecycle and both can own transactions.
const (
	KindInvoice  = "invoice"
	KindProforma = "proforma"
)

type DocumentState string

const (
	DocumentDraft    DocumentState = "draft"
	DocumentIssued   DocumentState = "issued"
	DocumentPaid     DocumentState = "paid"
	DocumentCanceled DocumentState = "canceled"
)

// Document is an invoice or proforma. Only issued documents are eligible for
// automatic charge retries; canceled or superseded ones are not.
type Document struct {
	ID         uint   `gorm:"primaryKey"`
	Kind       string `gorm:"size:10;not null;index"`
	Series     string `gorm:"size:20"`
	Number     *int
	State      DocumentState `gorm:"size:10;not null;index"`
	CustomerID uint          `gorm:"not null;index"`
	Customer   Customer
	ProviderID uint `gorm:"not null"`
	Provider   Provider
	Currency   string          `gorm:"size:4;not null"`
	Total      decimal.Decimal `gorm:"type:numeric(19,2)"`
	DueDate    *time.Time
	IssueDate  *time.Time
	PaidDate   *time.Time
	CancelDate *time.Time
	// PDFDirty marks the rendered copy stale; the regeneration sweep picks
	// these up.
	PDFDirty  bool `gorm:"index"`
	PDFPath   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d *Document) IsIssued() bool { return d.State == DocumentIssued }
