package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledgerbase/billing/internal/billing"
	"github.com/ledgerbase/billing/internal/config"
	"github.com/ledgerbase/billing/internal/logger"
	"github.com/ledgerbase/billing/internal/outbox"
	"github.com/ledgerbase/billing/internal/postgres"
	"github.com/ledgerbase/billing/internal/slotledger"
	"github.com/ledgerbase/billing/internal/subscription"
	"github.com/ledgerbase/billing/internal/tax"
	"github.com/ledgerbase/billing/internal/types"
	"github.com/ledgerbase/billing/internal/usage"
)

// worker runs the three recurring sweeps the core never triggers
// synchronously: cycle transitions, due-event housekeeping, and outbox
// dispatch, each on its own ticker so a slow sweep never blocks the
// others (grounded on the teacher's payment-retry worker idiom,
// cmd/worker/main.go in bugielektrik-library).
type worker struct {
	log      *logger.Logger
	cfg      *config.Configuration
	engine   *subscription.Engine
	dispatch *outbox.Dispatcher
}

func main() {
	cfg, err := config.New()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.New(logger.Config{Debug: cfg.Logging.Debug})
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := postgres.Open(ctx, cfg.Postgres.DSN())
	cancel()
	if err != nil {
		log.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	meters := postgres.NewMeterRepository(db)
	subs := postgres.NewSubscriptionRepository(db)
	plans := postgres.NewPlanRepository(db)
	customers := postgres.NewCustomerRepository(db)
	checkouts := postgres.NewCheckoutRepository(db)
	invoices := postgres.NewInvoiceRepository(db)
	coupons := postgres.NewCouponRepository(db)
	taxRates := postgres.NewTaxRepository(db)
	slots := postgres.NewSlotRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	usageClient := usage.NewHTTPClient(cfg.Usage.BaseURL, "", log)
	slotLedger := slotledger.New(slots)
	taxEngine := tax.Select(types.TaxEngineKind(cfg.Tax.Engine), tax.NewManualEngine(taxRates), tax.NewAutomaticEngine())
	composer := billing.NewComposer(meters, usageClient, slotLedger, taxEngine, cfg.Tax.SellerCountry)
	numberer := postgres.NewNumberer(db)
	outboxWriter := outbox.NewWriter(outboxRepo)
	finalizer := billing.NewFinalizer(composer, invoices, customers, numberer, coupons, outboxWriter, cfg.Tax.SellerName)

	engine := subscription.New(composer, finalizer, subs, plans, customers, checkouts, outboxWriter, slotLedger, log)

	dispatch := outbox.NewDispatcher(outboxRepo, outbox.NewChannelQueueBackend(256,
		outbox.QueueInvoicePdfRequest, outbox.QueueSendEmailRequest, outbox.QueueCreditNotePdfRequest),
		outbox.DefaultRouter, outbox.NoopWebhookSink{}, cfg.Worker.MaxConcurrency, cfg.Worker.MaxDeliveryAttempts, log)

	w := &worker{log: log, cfg: cfg, engine: engine, dispatch: dispatch}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go w.processCycleTransitions(runCtx)
	go w.processDueEvents(runCtx)
	go w.dispatch.Run(runCtx, 5*time.Second, cfg.Worker.OutboxBatchLimit)

	log.Info("worker service started")

	sig := <-quit
	log.Infow("received shutdown signal", "signal", sig.String())
	runCancel()
	time.Sleep(2 * time.Second)
	log.Info("worker service stopped")
}

func (w *worker) processCycleTransitions(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	w.log.Info("cycle transition sweep started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("cycle transition sweep stopping")
			return
		case <-ticker.C:
			w.runCycleTransitionJob(ctx)
		}
	}
}

func (w *worker) runCycleTransitionJob(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	for _, tenantID := range w.cfg.Worker.TenantIDs {
		result, err := w.engine.ProcessCycleTransitions(jobCtx, tenantID, time.Now(), w.cfg.Worker.CycleBatchLimit)
		if err != nil {
			w.log.Errorw("cycle transition sweep failed", "tenant_id", tenantID, "error", err)
			continue
		}
		if result != nil && (result.TotalSuccess > 0 || result.TotalFailed > 0) {
			w.log.Infow("cycle transition sweep completed",
				"tenant_id", tenantID, "succeeded", result.TotalSuccess, "failed", result.TotalFailed)
		}
	}
}

func (w *worker) processDueEvents(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	w.log.Info("due event sweep started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("due event sweep stopping")
			return
		case <-ticker.C:
			w.runDueEventJob(ctx)
		}
	}
}

func (w *worker) runDueEventJob(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, 1*time.Minute)
	defer cancel()

	for _, tenantID := range w.cfg.Worker.TenantIDs {
		processed, err := w.engine.ProcessDueEvents(jobCtx, tenantID, time.Now(), w.cfg.Worker.DueEventBatchLimit)
		if err != nil {
			w.log.Errorw("due event sweep failed", "tenant_id", tenantID, "error", err)
			continue
		}
		if processed > 0 {
			w.log.Infow("due event sweep completed", "tenant_id", tenantID, "processed", processed)
		}
	}
}
