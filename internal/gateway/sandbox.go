package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Sandbox is an in-process gateway for local runs and tests. Charges with a
// token or nonce prefixed "decline" are declined; everything else settles
// after one in-flight hop, so a Find on the reference observes progress.
type Sandbox struct {
	mu      sync.Mutex
	results map[string]*Result
}

func NewSandbox() *Sandbox {
	return &Sandbox{results: make(map[string]*Result)}
}

func (s *Sandbox) Charge(_ context.Context, req ChargeRequest) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := uuid.NewString()
	secret := req.Token
	if secret == "" {
		secret = req.Nonce
	}
	res := &Result{ExternalReference: ref}
	if strings.HasPrefix(secret, "decline") {
		res.Status = StatusProcessorDeclined
	} else {
		res.Status = StatusSubmittedForSettlement
		res.Method = &MethodFingerprint{Type: "CreditCard", LastDigits: "4242"}
		if req.StoreInVaultOnSuccess {
			res.Method.VaultToken = "vault-" + ref
		}
	}
	s.results[ref] = res
	return res, nil
}

func (s *Sandbox) Find(_ context.Context, externalReference string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[externalReference]
	if !ok {
		return nil, ErrNotFound
	}
	// In-flight charges settle by the time anyone asks again.
	if res.Status == StatusSubmittedForSettlement {
		res.Status = StatusSettled
	}
	return res, nil
}
