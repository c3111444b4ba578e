package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionState string

const (
	TransactionInitial  TransactionState = "initial"
	TransactionPending  TransactionState = "pending"
	TransactionSettled  TransactionState = "settled"
	TransactionFailed   TransactionState = "failed"
	TransactionCanceled TransactionState = "canceled"
)

// Who (or what) initiated a retry of a failed transaction.
const (
	RetrialCustomer         = "customer"
	RetrialPaymentProcessor = "payment_processor"
	RetrialAutomatic        = "automatic"
	RetrialStaff            = "staff"
)

type Transaction struct {
	ID                uint             `gorm:"primaryKey"`
	UUID              string           `gorm:"size:36;uniqueIndex;not null"`
	Amount            decimal.Decimal  `gorm:"type:numeric(19,2)"`
	Currency          string           `gorm:"size:4;not null"`
	State             TransactionState `gorm:"size:10;not null;index"`
	ExternalReference string           `gorm:"size:128;index"`
	RetrialType       string           `gorm:"size:20"`
	// Back-reference to the transaction this one retries. The unique index
	// enforces that a transaction is retried by at most one successor.
	RetriedTransactionID *uint `gorm:"uniqueIndex"`
	DocumentID           uint  `gorm:"not null;index"`
	Document             Document
	CustomerID           uint `gorm:"not null;index"`
	PaymentMethodID      uint
	PaymentMethod        PaymentMethod
	ProviderID           uint
	Provider             Provider
	FailReason           string
	CancelReason         string
	LockVersion          int `gorm:"not null;default:0"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Transition triggers.
const (
	TriggerProcess = "process"
	TriggerFail    = "fail"
	TriggerCancel  = "cancel"
	TriggerSettle  = "settle"
)

var ErrIllegalTransition = errors.New("illegal transition")

// IllegalTransitionError is expected under concurrent reconciliation: a second
// worker applying a status that already landed gets one of these and treats it
// as "already reconciled".
type IllegalTransitionError struct {
	From    TransactionState
	Trigger string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s from state %s", e.Trigger, e.From)
}

func (e *IllegalTransitionError) Unwrap() error { return ErrIllegalTransition }

type transitionKey struct {
	from    TransactionState
	trigger string
}

// The full lifecycle. No edge leaves settled or canceled, and no trigger maps
// a state onto itself except process, which stays a safe no-op while the
// gateway keeps reporting in-flight statuses.
var transitionTable = map[transitionKey]TransactionState{
	{TransactionInitial, TriggerProcess}: TransactionPending,
	{TransactionInitial, TriggerFail}:    TransactionFailed,
	{TransactionPending, TriggerProcess}: TransactionPending,
	{TransactionPending, TriggerFail}:    TransactionFailed,
	{TransactionPending, TriggerCancel}:  TransactionCanceled,
	{TransactionPending, TriggerSettle}:  TransactionSettled,
}

func (t *Transaction) apply(trigger string) error {
	target, ok := transitionTable[transitionKey{t.State, trigger}]
	if !ok {
		return &IllegalTransitionError{From: t.State, Trigger: trigger}
	}
	t.State = target
	return nil
}

// Process moves a fresh transaction into pending. Applying it again while
// already pending is a no-op.
func (t *Transaction) Process() error { return t.apply(TriggerProcess) }

func (t *Transaction) Fail(reason string) error {
	if err := t.apply(TriggerFail); err != nil {
		return err
	}
	t.FailReason = reason
	return nil
}

func (t *Transaction) Cancel(reason string) error {
	if err := t.apply(TriggerCancel); err != nil {
		return err
	}
	t.CancelReason = reason
	return nil
}

func (t *Transaction) Settle() error { return t.apply(TriggerSettle) }

// Terminal reports whether the transaction reached a final state. Terminal
// transactions are never mutated again; late gateway statuses bounce off the
// transition table.
func (t *Transaction) Terminal() bool {
	return t.State == TransactionSettled || t.State == TransactionCanceled
}
