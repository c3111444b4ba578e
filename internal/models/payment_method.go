package models

import (
	"time"
)

type PaymentMethodState string

const (
	MethodUnverified PaymentMethodState = "unverified"
	MethodEnabled    PaymentMethodState = "enabled"
	MethodDisabled   PaymentMethodState = "disabled"
)

// PaymentMethod display types reported by the gateway fingerprint.
const (
	MethodTypeCreditCard = "CreditCard"
	MethodTypePayPal     = "PayPal"
)

// PaymentMethod holds a customer's stored means of payment. Token and nonce
// are sealed at rest and write-only from the engine's perspective: the model
// never exposes plaintext and nothing here may be logged.
type PaymentMethod struct {
	ID          uint               `gorm:"primaryKey"`
	CustomerID  uint               `gorm:"not null;index"`
	State       PaymentMethodState `gorm:"size:10;not null"`
	Verified    bool
	Canceled    bool
	Recurring   bool
	TokenCipher []byte
	NonceCipher []byte
	// Display metadata recorded from the gateway fingerprint.
	MethodType string `gorm:"size:20"`
	LastDigits string `gorm:"size:64"`
	AddedAt    *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasSecret reports whether a vault token or one-shot nonce is stored.
func (m *PaymentMethod) HasSecret() bool {
	return len(m.TokenCipher) > 0 || len(m.NonceCipher) > 0
}

// Usable is the charge precondition: some secret to charge with, and not
// canceled by the customer.
func (m *PaymentMethod) Usable() bool {
	return m.HasSecret() && !m.Canceled
}

// Enable moves a freshly provisioned method into service.
func (m *PaymentMethod) Enable() error {
	if m.State != MethodUnverified {
		return &IllegalTransitionError{From: TransactionState(m.State), Trigger: "enable"}
	}
	m.State = MethodEnabled
	return nil
}

// Verify records a verification callback: the method becomes enabled and the
// sealed vault token replaces whatever secret it carried.
func (m *PaymentMethod) Verify(tokenCipher []byte) error {
	if m.State != MethodUnverified {
		return &IllegalTransitionError{From: TransactionState(m.State), Trigger: "verify"}
	}
	m.State = MethodEnabled
	m.Verified = true
	if len(tokenCipher) > 0 {
		m.TokenCipher = tokenCipher
	}
	return nil
}

// Disable takes a method out of rotation, e.g. a one-shot nonce that must not
// be reused for recurring charges.
func (m *PaymentMethod) Disable() error {
	if m.State == MethodDisabled {
		return &IllegalTransitionError{From: TransactionState(m.State), Trigger: "disable"}
	}
	m.State = MethodDisabled
	return nil
}
