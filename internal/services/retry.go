package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/diewo77/billing-engine/internal/metrics"
	"github.com/diewo77/billing-engine/internal/models"
)

// NextBackoff returns the wait before retry attempt n (n >= 1) under the
// provider's pattern. All three patterns are non-decreasing in n.
func NextBackoff(pattern models.RetryPattern, attempt int, baseUnit time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch pattern {
	case models.RetryDaily:
		return time.Duration(attempt) * 24 * time.Hour
	case models.RetryFibonacci:
		return time.Duration(fib(attempt)) * baseUnit
	default:
		return baseUnit << uint(attempt-1)
	}
}

// fib(1) = fib(2) = 1.
func fib(n int) int64 {
	a, b := int64(1), int64(1)
	for i := 3; i <= n; i++ {
		a, b = b, a+b
	}
	return b
}

// Retrier decides whether a failed transaction gets another automatic charge
// attempt and performs it. Eligibility is always re-derived at call time:
// nothing here caches a snapshot that a racing sweep could act on.
type Retrier struct {
	DB        *gorm.DB
	Processor *Processor
	BaseUnit  time.Duration
	Metrics   *metrics.Counters

	now func() time.Time
}

func (r *Retrier) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// chainLinks counts the retry edges behind tx, walking retried_transaction
// back to the chain's root. The visited set makes a corrupt cyclic chain
// terminate instead of spinning.
func (r *Retrier) chainLinks(tx *models.Transaction) (int, error) {
	links := 0
	visited := map[uint]bool{tx.ID: true}
	cur := tx
	for cur.RetriedTransactionID != nil {
		var prev models.Transaction
		if err := r.DB.First(&prev, *cur.RetriedTransactionID).Error; err != nil {
			return 0, fmt.Errorf("walk retry chain of transaction %d: %w", tx.ID, err)
		}
		if visited[prev.ID] {
			return 0, fmt.Errorf("retry chain of transaction %d contains a cycle at %d", tx.ID, prev.ID)
		}
		visited[prev.ID] = true
		links++
		cur = &prev
	}
	return links, nil
}

// ShouldBeRetried reports whether tx is due for an automatic retry: failed,
// not already retried, its document still issued, the chain below the
// provider's cap, and the pattern's backoff elapsed since the last attempt.
func (r *Retrier) ShouldBeRetried(tx *models.Transaction) (bool, error) {
	if tx.State != models.TransactionFailed {
		return false, nil
	}
	succ, err := models.RetriedBy(r.DB, tx)
	if err != nil {
		return false, err
	}
	if succ != nil {
		return false, nil
	}
	var doc models.Document
	if err := r.DB.First(&doc, tx.DocumentID).Error; err != nil {
		return false, err
	}
	if !doc.IsIssued() {
		return false, nil
	}
	var provider models.Provider
	if err := r.DB.First(&provider, doc.ProviderID).Error; err != nil {
		return false, err
	}
	links, err := r.chainLinks(tx)
	if err != nil {
		return false, err
	}
	if links >= provider.MaxRetries() {
		return false, nil
	}
	wait := NextBackoff(provider.RetryPattern, links+1, r.BaseUnit)
	if r.clock().Sub(tx.UpdatedAt) < wait {
		return false, nil
	}
	return true, nil
}

// Retry performs one automatic retry of tx. Eligibility and the charge happen
// inside this single unit of work, so two sweeps racing on the same
// transaction cannot both charge it: the loser either fails ShouldBeRetried on
// re-read or loses the unique successor constraint.
//
// Each attempt creates a brand-new transaction linked to tx; tx itself is
// never mutated into the retry. A pre-charge failure rolls the attempt record
// back and the next stored method is tried; once the gateway has answered
// (settled, declined, or answered but not yet saved) the cycle ends, leaving
// any declined successor as the chain's new failed tail for the next sweep.
func (r *Retrier) Retry(ctx context.Context, tx *models.Transaction) error {
	ok, err := r.ShouldBeRetried(tx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	methods, err := models.UsableMethods(r.DB, tx.CustomerID)
	if err != nil {
		return err
	}
	for i := range methods {
		method := &methods[i]
		if !method.Usable() {
			continue
		}
		attempt := r.newAttempt(tx, method)
		if err := r.DB.Create(attempt).Error; err != nil {
			// Unique successor constraint: some other worker got here first.
			log.Printf("[Retry] transaction %d: already retried elsewhere: %v", tx.ID, err)
			return nil
		}
		if r.Metrics != nil {
			r.Metrics.IncRetriesAttempted()
		}
		if err := r.Processor.Manage(ctx, attempt); err != nil {
			var perr *PersistError
			if errors.As(err, &perr) {
				// The gateway answered, so the customer was charged (or
				// declined): the attempt is real and must never be rolled
				// back or repeated on another method. Try the save once
				// more; if it still fails the successor row blocks further
				// charges until the outcome is reconciled.
				if serr := models.SaveTransaction(r.DB, attempt); serr != nil {
					log.Printf("[Retry] transaction %d: attempt %d outcome %q unsaved, successor kept: %v",
						tx.ID, attempt.ID, attempt.ExternalReference, serr)
					return err
				}
				if attempt.State != models.TransactionFailed && r.Metrics != nil {
					r.Metrics.IncRetriesSucceeded()
				}
				return nil
			}
			// The attempt did not happen; unlink it and try the next method.
			log.Printf("[Retry] transaction %d: attempt %d with method %d did not happen: %v",
				tx.ID, attempt.ID, method.ID, err)
			if derr := r.DB.Delete(attempt).Error; derr != nil {
				return fmt.Errorf("roll back attempt %d: %v (after %w)", attempt.ID, derr, err)
			}
			continue
		}
		if attempt.State != models.TransactionFailed && r.Metrics != nil {
			r.Metrics.IncRetriesSucceeded()
		}
		return nil
	}
	// No method produced a gateway answer; tx stays failed and unlinked for
	// the next cycle to reconsider.
	return nil
}

func (r *Retrier) newAttempt(orig *models.Transaction, method *models.PaymentMethod) *models.Transaction {
	origID := orig.ID
	return &models.Transaction{
		UUID:                 uuid.NewString(),
		Amount:               orig.Amount,
		Currency:             orig.Currency,
		State:                models.TransactionInitial,
		RetrialType:          models.RetrialAutomatic,
		RetriedTransactionID: &origID,
		DocumentID:           orig.DocumentID,
		CustomerID:           orig.CustomerID,
		PaymentMethodID:      method.ID,
		ProviderID:           orig.ProviderID,
	}
}
