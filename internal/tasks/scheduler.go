// Package tasks drives the periodic, lease-guarded batch sweeps: PDF
// regeneration over dirty documents and the automatic retry sweep over failed
// transactions.
package tasks

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/diewo77/billing-engine/internal/lease"
	"github.com/diewo77/billing-engine/internal/metrics"
	"github.com/diewo77/billing-engine/internal/models"
	"github.com/diewo77/billing-engine/internal/services"
)

// Lease keys. One holder fleet-wide per sweep kind; a missed cycle is skipped,
// never queued.
const (
	LeaseGeneratePDFs      = "generate_pdfs"
	LeaseRetryTransactions = "retry_transactions"
)

const defaultWorkers = 4

// DocumentRenderer regenerates a document's PDF. Rendering itself lives
// outside the engine.
type DocumentRenderer interface {
	Render(ctx context.Context, doc *models.Document) error
}

type Scheduler struct {
	DB        *gorm.DB
	Leases    lease.Store
	Processor *services.Processor
	Retrier   *services.Retrier
	Renderer  DocumentRenderer
	Metrics   *metrics.Counters

	Workers        int
	PDFTimeLimit   time.Duration
	RetryTimeLimit time.Duration
}

func (s *Scheduler) workers() int {
	if s.Workers <= 0 {
		return defaultWorkers
	}
	return s.Workers
}

// GeneratePDFs re-renders every document whose PDF is stale. The lease TTL
// equals the sweep's time limit, so a crashed runner self-heals after at most
// one TTL; for that reason the lease is not released on error paths, since
// an early takeover could duplicate in-flight work.
func (s *Scheduler) GeneratePDFs(ctx context.Context) error {
	if !s.Leases.Acquire(LeaseGeneratePDFs, s.PDFTimeLimit) {
		if s.Metrics != nil {
			s.Metrics.IncSweepsSkipped()
		}
		return nil
	}
	if s.Metrics != nil {
		s.Metrics.IncSweepsRun()
	}
	docs, err := models.DirtyDocuments(s.DB)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(s.workers())
	for i := range docs {
		doc := docs[i]
		g.Go(func() error {
			if err := s.renderOne(ctx, &doc); err != nil {
				log.Printf("[Tasks] document %d: pdf generation failed: %v", doc.ID, err)
			}
			return nil
		})
	}
	g.Wait()

	s.Leases.Release(LeaseGeneratePDFs)
	return nil
}

func (s *Scheduler) renderOne(ctx context.Context, doc *models.Document) error {
	if err := s.Renderer.Render(ctx, doc); err != nil {
		return err
	}
	if s.Metrics != nil {
		s.Metrics.IncRendered()
	}
	return s.DB.Model(&models.Document{}).Where("id = ?", doc.ID).
		Update("pdf_dirty", false).Error
}

// RetryTransactions first reconciles open transactions the gateway already
// has a record for, then sweeps failed, unretried transactions of issued
// documents and retries the eligible ones. Per-item failures are isolated:
// one bad transaction never aborts its siblings. Eligibility is re-derived
// inside each unit of work, not here.
func (s *Scheduler) RetryTransactions(ctx context.Context) error {
	if !s.Leases.Acquire(LeaseRetryTransactions, s.RetryTimeLimit) {
		if s.Metrics != nil {
			s.Metrics.IncSweepsSkipped()
		}
		return nil
	}
	if s.Metrics != nil {
		s.Metrics.IncSweepsRun()
	}

	if err := s.reconcileInFlight(ctx); err != nil {
		return err
	}

	candidates, err := models.RetryCandidates(s.DB)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(s.workers())
	for i := range candidates {
		tx := candidates[i]
		g.Go(func() error {
			if err := s.Retrier.Retry(ctx, &tx); err != nil {
				log.Printf("[Tasks] transaction %d: retry failed: %v", tx.ID, err)
			}
			return nil
		})
	}
	g.Wait()

	s.Leases.Release(LeaseRetryTransactions)
	if s.Metrics != nil {
		log.Printf("[Tasks] retry sweep done: %v", s.Metrics.Snapshot())
	}
	return nil
}

// reconcileInFlight pulls the gateway's current status for every open
// transaction with an external reference. A missing gateway record just means
// the item waits for the next cycle.
func (s *Scheduler) reconcileInFlight(ctx context.Context) error {
	open, err := models.InFlightWithReference(s.DB)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(s.workers())
	for i := range open {
		tx := open[i]
		g.Go(func() error {
			if err := s.Processor.Manage(ctx, &tx); err != nil {
				log.Printf("[Tasks] transaction %d: reconcile failed: %v", tx.ID, err)
			}
			return nil
		})
	}
	g.Wait()
	return nil
}

// Run triggers both sweeps on their intervals until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context, pdfEvery, retryEvery time.Duration) {
	pdfTick := time.NewTicker(pdfEvery)
	retryTick := time.NewTicker(retryEvery)
	defer pdfTick.Stop()
	defer retryTick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-pdfTick.C:
			if err := s.GeneratePDFs(ctx); err != nil {
				log.Printf("[Tasks] pdf sweep: %v", err)
			}
		case <-retryTick.C:
			if err := s.RetryTransactions(ctx); err != nil {
				log.Printf("[Tasks] retry sweep: %v", err)
			}
		}
	}
}
