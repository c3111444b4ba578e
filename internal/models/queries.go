package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrStaleTransaction is returned when a guarded save loses a write race: some
// other process advanced the row's lock version first. The caller re-reads and
// re-derives instead of overwriting.
var ErrStaleTransaction = errors.New("stale transaction")

// All lists every model for AutoMigrate, dependency order.
func All() []interface{} {
	return []interface{}{
		&Provider{}, &Customer{}, &PaymentMethod{}, &Document{}, &Transaction{},
	}
}

// SaveTransaction persists a transaction under optimistic locking. Lifecycle
// writes outside the sweep lease (API-driven staff retries, webhook handlers)
// can race the sweep, so every save is version-guarded.
func SaveTransaction(db *gorm.DB, t *Transaction) error {
	if t.ID == 0 {
		return db.Create(t).Error
	}
	version := t.LockVersion
	res := db.Model(&Transaction{}).
		Where("id = ? AND lock_version = ?", t.ID, version).
		Updates(map[string]interface{}{
			"state":              t.State,
			"external_reference": t.ExternalReference,
			"retrial_type":       t.RetrialType,
			"payment_method_id":  t.PaymentMethodID,
			"fail_reason":        t.FailReason,
			"cancel_reason":      t.CancelReason,
			"lock_version":       version + 1,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransaction
	}
	t.LockVersion = version + 1
	return nil
}

// RetryCandidates selects the retry sweep's working set: failed transactions
// nobody has retried yet, owned by a document still in issued state.
func RetryCandidates(db *gorm.DB) ([]Transaction, error) {
	var out []Transaction
	err := db.
		Joins("JOIN documents ON documents.id = transactions.document_id").
		Where("transactions.state = ?", TransactionFailed).
		Where("documents.state = ?", DocumentIssued).
		Where("NOT EXISTS (SELECT 1 FROM transactions r WHERE r.retried_transaction_id = transactions.id)").
		Order("transactions.id").
		Find(&out).Error
	return out, err
}

// RetriedBy returns the successor retrying t, if any.
func RetriedBy(db *gorm.DB, t *Transaction) (*Transaction, error) {
	var succ Transaction
	err := db.Where("retried_transaction_id = ?", t.ID).First(&succ).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &succ, nil
}

// UsableMethods returns the customer's verified, non-canceled payment methods
// in creation order, so retry attempts walk them in a stable sequence.
func UsableMethods(db *gorm.DB, customerID uint) ([]PaymentMethod, error) {
	var out []PaymentMethod
	err := db.Where("customer_id = ? AND verified = ? AND canceled = ?", customerID, true, false).
		Order("id").
		Find(&out).Error
	return out, err
}

// InFlightWithReference selects transactions the gateway already knows about
// whose lifecycle is still open; the sweep reconciles their current gateway
// status before considering fresh retries.
func InFlightWithReference(db *gorm.DB) ([]Transaction, error) {
	var out []Transaction
	states := []TransactionState{TransactionInitial, TransactionPending}
	err := db.Where("state IN ? AND external_reference <> ''", states).
		Order("id").Find(&out).Error
	return out, err
}

// DirtyDocuments selects documents whose rendered PDF is stale.
func DirtyDocuments(db *gorm.DB) ([]Document, error) {
	var out []Document
	err := db.Where("pdf_dirty = ?", true).Order("id").Find(&out).Error
	return out, err
}
