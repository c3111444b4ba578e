package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/billing-engine/internal/gateway"
	"github.com/diewo77/billing-engine/internal/metrics"
	"github.com/diewo77/billing-engine/internal/models"
	"github.com/diewo77/billing-engine/internal/secrets"
)

func setupTestDB(t *testing.T, name string) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testBox(t *testing.T) *secrets.Box {
	box, err := secrets.NewBox(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("box: %v", err)
	}
	return box
}

// stubGateway scripts charge/find responses and records every charge request.
type stubGateway struct {
	mu         sync.Mutex
	chargeReqs []gateway.ChargeRequest
	chargeRes  *gateway.Result
	chargeErr  error
	findRes    map[string]*gateway.Result
	findErr    error
}

func (s *stubGateway) Charge(_ context.Context, req gateway.ChargeRequest) (*gateway.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chargeReqs = append(s.chargeReqs, req)
	if s.chargeErr != nil {
		return nil, s.chargeErr
	}
	return s.chargeRes, nil
}

func (s *stubGateway) Find(_ context.Context, ref string) (*gateway.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	res, ok := s.findRes[ref]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return res, nil
}

func (s *stubGateway) charges() []gateway.ChargeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gateway.ChargeRequest, len(s.chargeReqs))
	copy(out, s.chargeReqs)
	return out
}

// scenario seeds one provider, one issued invoice, one customer with a
// verified payment method holding a sealed vault token, and one failed
// transaction whose last attempt is two days old.
type scenario struct {
	db       *gorm.DB
	box      *secrets.Box
	provider models.Provider
	document models.Document
	customer models.Customer
	method   models.PaymentMethod
	failed   models.Transaction
}

func seedScenario(t *testing.T, db *gorm.DB, box *secrets.Box) *scenario {
	sc := &scenario{db: db, box: box}
	sc.provider = models.Provider{Name: "Acme Billing", RetryPattern: models.RetryExponential, MaxAutomaticRetries: 5}
	if err := db.Create(&sc.provider).Error; err != nil {
		t.Fatalf("seed provider: %v", err)
	}
	sc.customer = models.Customer{Name: "Jo Doe", Currency: "USD"}
	if err := db.Create(&sc.customer).Error; err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	issued := time.Now().Add(-30 * 24 * time.Hour)
	sc.document = models.Document{
		Kind: models.KindInvoice, State: models.DocumentIssued,
		CustomerID: sc.customer.ID, ProviderID: sc.provider.ID,
		Currency: "USD", IssueDate: &issued,
	}
	if err := db.Create(&sc.document).Error; err != nil {
		t.Fatalf("seed document: %v", err)
	}
	sc.method = models.PaymentMethod{
		CustomerID: sc.customer.ID, State: models.MethodEnabled,
		Verified: true, Recurring: true,
		TokenCipher: box.Seal("tok-visa"),
	}
	if err := db.Create(&sc.method).Error; err != nil {
		t.Fatalf("seed method: %v", err)
	}
	past := time.Now().Add(-48 * time.Hour)
	sc.failed = models.Transaction{
		UUID: "orig-1", Currency: "USD", State: models.TransactionFailed,
		DocumentID: sc.document.ID, CustomerID: sc.customer.ID,
		PaymentMethodID: sc.method.ID, ProviderID: sc.provider.ID,
		CreatedAt: past, UpdatedAt: past,
	}
	if err := db.Create(&sc.failed).Error; err != nil {
		t.Fatalf("seed failed tx: %v", err)
	}
	return sc
}

func newRetrier(db *gorm.DB, box *secrets.Box, gw gateway.Client) (*Retrier, *metrics.Counters) {
	counters := &metrics.Counters{}
	rec := &Reconciler{DB: db, Secrets: box, Metrics: counters}
	proc := &Processor{DB: db, Client: gw, Secrets: box, Reconciler: rec}
	return &Retrier{DB: db, Processor: proc, BaseUnit: time.Hour, Metrics: counters}, counters
}
