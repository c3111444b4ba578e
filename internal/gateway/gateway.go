// Package gateway defines the payment gateway boundary. The engine only ever
// sees the Client interface and the Result type; the concrete wire protocol
// is provider-specific and lives behind it.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Gateway-native transaction statuses. The internal model does not consume
// these directly; the reconciliation layer buckets them onto lifecycle
// triggers, so a gateway adding vocabulary only ever touches the bucket map.
const (
	StatusAuthorizing            = "authorizing"
	StatusAuthorized             = "authorized"
	StatusSubmittedForSettlement = "submitted_for_settlement"
	StatusSettlementConfirmed    = "settlement_confirmed"
	StatusSettling               = "settling"
	StatusSettlementPending      = "settlement_pending"
	StatusSettled                = "settled"
	StatusSettlementDeclined     = "settlement_declined"
	StatusAuthorizationExpired   = "authorization_expired"
	StatusProcessorDeclined      = "processor_declined"
	StatusGatewayRejected        = "gateway_rejected"
	StatusFailed                 = "failed"
	StatusVoided                 = "voided"
)

// ErrNotFound: the external reference is stale or not yet visible gateway-side.
var ErrNotFound = errors.New("gateway: transaction not found")

// TransportError covers everything below the business level: network, auth,
// gateway maintenance. An attempt that dies here did not happen.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MethodFingerprint is the card/wallet identity the gateway reports alongside
// a result. VaultToken is only present when the charge was stored in vault.
type MethodFingerprint struct {
	Type       string // CreditCard, PayPal
	LastDigits string // last 4 for cards, account email for wallets
	VaultToken string
}

type Result struct {
	Status            string
	ExternalReference string
	Method            *MethodFingerprint
}

type ChargeRequest struct {
	Amount   decimal.Decimal
	Currency string
	// Exactly one of Token (vault) or Nonce (one-shot) is set.
	Token string
	Nonce string
	// StoreInVaultOnSuccess mirrors the payment method's recurring flag: a
	// recurring method wants a reusable vault token back.
	StoreInVaultOnSuccess bool
}

type Client interface {
	Charge(ctx context.Context, req ChargeRequest) (*Result, error)
	Find(ctx context.Context, externalReference string) (*Result, error)
}
