package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/diewo77/billing-engine/internal/config"
	"github.com/diewo77/billing-engine/internal/db"
	"github.com/diewo77/billing-engine/internal/gateway"
	"github.com/diewo77/billing-engine/internal/lease"
	"github.com/diewo77/billing-engine/internal/metrics"
	"github.com/diewo77/billing-engine/internal/models"
	"github.com/diewo77/billing-engine/internal/secrets"
	"github.com/diewo77/billing-engine/internal/services"
	"github.com/diewo77/billing-engine/internal/tasks"
)

var migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")

func main() {
	flag.Parse()
	_ = godotenv.Load()
	if *migrateOnlyFlag {
		if _, err := db.ConnectAndMigrate(); err != nil {
			log.Fatalf("migrate-only failed: %v", err)
		}
		log.Println("migrations completed; exiting as requested")
		return
	}

	cfg := config.Load()
	dbConn, err := db.ConnectAndMigrate()
	if err != nil {
		log.Fatalf("DB connection error: %v", err)
	}

	box, err := secretBox(cfg)
	if err != nil {
		log.Fatalf("secret key: %v", err)
	}

	client := gatewayClient(cfg)
	counters := &metrics.Counters{}
	reconciler := &services.Reconciler{DB: dbConn, Secrets: box, Metrics: counters, Debug: cfg.Debug}
	processor := &services.Processor{DB: dbConn, Client: client, Secrets: box, Reconciler: reconciler}
	retrier := &services.Retrier{DB: dbConn, Processor: processor, BaseUnit: cfg.RetryBaseUnit, Metrics: counters}

	scheduler := &tasks.Scheduler{
		DB:             dbConn,
		Leases:         lease.NewDBStore(dbConn),
		Processor:      processor,
		Retrier:        retrier,
		Renderer:       stubRenderer{},
		Metrics:        counters,
		Workers:        cfg.SweepWorkers,
		PDFTimeLimit:   cfg.PDFTimeLimit,
		RetryTimeLimit: cfg.RetryTimeLimit,
	}

	log.Printf("Starting billing engine env=%s gateway=%s workers=%d", cfg.Env, cfg.Gateway, cfg.SweepWorkers)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx, cfg.PDFInterval, cfg.RetryInterval)
		close(done)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received")
	cancel()
	<-done
	log.Println("Engine gracefully stopped")
}

func secretBox(cfg config.Config) (*secrets.Box, error) {
	key := cfg.SecretKey
	if key == "" && cfg.Env == "development" {
		// Ephemeral dev key: sealed secrets do not survive a restart.
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
		key = hex.EncodeToString(raw)
		log.Println("[Secrets] BILLING_SECRET_KEY not set, using ephemeral development key")
	}
	return secrets.NewBox(key)
}

func gatewayClient(cfg config.Config) gateway.Client {
	switch cfg.Gateway {
	case "sandbox":
		return gateway.NewSandbox()
	default:
		log.Fatalf("unknown payment gateway %q", cfg.Gateway)
		return nil
	}
}

// stubRenderer stands in for the document service's renderer; the engine only
// schedules regeneration.
type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, doc *models.Document) error {
	log.Printf("[PDF] document %d (%s) marked regenerated", doc.ID, doc.Kind)
	return nil
}
