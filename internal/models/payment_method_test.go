package models

import (
	"errors"
	"testing"
)

func TestPaymentMethodUsable(t *testing.T) {
	m := &PaymentMethod{}
	if m.Usable() {
		t.Fatalf("method without secret should not be usable")
	}
	m.NonceCipher = []byte("sealed")
	if !m.Usable() {
		t.Fatalf("method with nonce should be usable")
	}
	m.Canceled = true
	if m.Usable() {
		t.Fatalf("canceled method should not be usable")
	}
}

func TestPaymentMethodVerify(t *testing.T) {
	m := &PaymentMethod{State: MethodUnverified, Recurring: true}
	if err := m.Verify([]byte("sealed-token")); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if m.State != MethodEnabled || !m.Verified {
		t.Fatalf("expected enabled+verified, got %s verified=%v", m.State, m.Verified)
	}
	if err := m.Verify([]byte("other")); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("second verify: expected illegal, got %v", err)
	}
}

func TestPaymentMethodDisable(t *testing.T) {
	m := &PaymentMethod{State: MethodEnabled}
	if err := m.Disable(); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := m.Disable(); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("second disable: expected illegal, got %v", err)
	}
}
