package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/diewo77/billing-engine/internal/gateway"
	"github.com/diewo77/billing-engine/internal/models"
	"github.com/diewo77/billing-engine/internal/secrets"
)

// Processor drives one transaction against the gateway: look up an existing
// gateway-side record when we already hold an external reference, otherwise
// charge the stored payment method. Either path feeds the result through the
// Reconciler.
type Processor struct {
	DB         *gorm.DB
	Client     gateway.Client
	Secrets    *secrets.Box
	Reconciler *Reconciler
}

// PersistError marks a failure that happened after the gateway produced an
// answer. The money side is already decided gateway-side; only recording the
// outcome failed. Callers must treat the attempt as real, never as one that
// did not happen.
type PersistError struct {
	ExternalReference string
	Err               error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist gateway outcome %q: %v", e.ExternalReference, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Manage advances one Initial or Pending transaction. A returned error means
// the attempt did not happen (transport failure, reference not yet visible)
// and the next sweep retries naturally, unless it is a PersistError: then the
// gateway answered and only our record of the outcome is behind.
func (p *Processor) Manage(ctx context.Context, tx *models.Transaction) error {
	if tx.State != models.TransactionInitial && tx.State != models.TransactionPending {
		return fmt.Errorf("transaction %d in state %s is not manageable", tx.ID, tx.State)
	}
	if tx.ExternalReference != "" {
		res, err := p.Client.Find(ctx, tx.ExternalReference)
		if err != nil {
			return fmt.Errorf("find transaction %d: %w", tx.ID, err)
		}
		if err := p.Reconciler.Apply(tx, res); err != nil {
			return &PersistError{ExternalReference: res.ExternalReference, Err: err}
		}
		return nil
	}
	return p.charge(ctx, tx)
}

func (p *Processor) charge(ctx context.Context, tx *models.Transaction) error {
	var method models.PaymentMethod
	if err := p.DB.First(&method, tx.PaymentMethodID).Error; err != nil {
		return fmt.Errorf("load payment method for transaction %d: %w", tx.ID, err)
	}
	if !method.Usable() {
		return fmt.Errorf("payment method %d is not usable", method.ID)
	}

	amount := tx.Amount
	if amount.IsZero() {
		var doc models.Document
		if err := p.DB.First(&doc, tx.DocumentID).Error; err != nil {
			return fmt.Errorf("load document for transaction %d: %w", tx.ID, err)
		}
		amount = doc.Total
	}

	req := gateway.ChargeRequest{
		Amount:                amount,
		Currency:              tx.Currency,
		StoreInVaultOnSuccess: method.Recurring,
	}
	var err error
	if len(method.TokenCipher) > 0 {
		req.Token, err = p.Secrets.Open(method.TokenCipher)
	} else {
		req.Nonce, err = p.Secrets.Open(method.NonceCipher)
	}
	if err != nil {
		return fmt.Errorf("unseal secret for method %d: %w", method.ID, err)
	}

	res, err := p.Client.Charge(ctx, req)
	if err != nil {
		// Transport, auth or maintenance failure: the attempt did not happen.
		return fmt.Errorf("charge transaction %d: %w", tx.ID, err)
	}
	if err := p.Reconciler.Apply(tx, res); err != nil {
		return &PersistError{ExternalReference: res.ExternalReference, Err: err}
	}
	return nil
}
