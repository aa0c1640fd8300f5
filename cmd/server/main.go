package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledgerbase/billing/internal/api"
	"github.com/ledgerbase/billing/internal/auth"
	"github.com/ledgerbase/billing/internal/billing"
	"github.com/ledgerbase/billing/internal/checkout"
	"github.com/ledgerbase/billing/internal/config"
	"github.com/ledgerbase/billing/internal/logger"
	"github.com/ledgerbase/billing/internal/outbox"
	"github.com/ledgerbase/billing/internal/payment"
	"github.com/ledgerbase/billing/internal/postgres"
	"github.com/ledgerbase/billing/internal/provider"
	"github.com/ledgerbase/billing/internal/slotledger"
	"github.com/ledgerbase/billing/internal/subscription"
	"github.com/ledgerbase/billing/internal/tax"
	"github.com/ledgerbase/billing/internal/types"
	"github.com/ledgerbase/billing/internal/usage"
)

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
	invoices := postgres.NewInvoiceRepository(db)
	subs := postgres.NewSubscriptionRepository(db)
	plans := postgres.NewPlanRepository(db)
	customers := postgres.NewCustomerRepository(db)
	checkouts := postgres.NewCheckoutRepository(db)
	coupons := postgres.NewCouponRepository(db)
	taxRates := postgres.NewTaxRepository(db)
	paymentTxs := postgres.NewPaymentRepository(db)
	slots := postgres.NewSlotRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)
	outboxWriter := outbox.NewWriter(outboxRepo)

	providers := map[string]provider.PaymentProvider{}
	if cfg.Providers.Stripe.SecretKey != "" {
		providers["stripe"] = provider.NewStripeProvider(cfg.Providers.Stripe.SecretKey)
	}
	if cfg.Providers.Razorpay.KeyID != "" {
		providers["razorpay"] = provider.NewRazorpayProvider(cfg.Providers.Razorpay.KeyID, cfg.Providers.Razorpay.KeySecret)
	}

	slotLedger := slotledger.New(slots)
	orchestrator := payment.New(providers, invoices, subs, paymentTxs, slotLedger, outboxWriter)

	taxEngine := tax.Select(types.TaxEngineKind(cfg.Tax.Engine), tax.NewManualEngine(taxRates), tax.NewAutomaticEngine())
	composer := billing.NewComposer(meters, usage.NewHTTPClient(cfg.Usage.BaseURL, "", log), slotLedger, taxEngine, cfg.Tax.SellerCountry)
	finalizer := billing.NewFinalizer(composer, invoices, customers, postgres.NewNumberer(db), coupons, outboxWriter, cfg.Tax.SellerName)
	engine := subscription.New(composer, finalizer, subs, plans, customers, checkouts, outboxWriter, slotLedger, log)
	checkoutService := checkout.New(checkouts, subs, plans, customers, engine, orchestrator, log)

	signer := auth.NewWebhookTokenSigner(cfg.Webhook.TokenSecret, cfg.Webhook.Issuer)

	router := api.NewRouter(api.Handlers{
		Health:   api.NewHealthHandler(),
		Webhook:  api.NewWebhookHandler(orchestrator, signer, log),
		Checkout: api.NewCheckoutHandler(checkoutService, log),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server starting", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalw("server failed", "error", err)
	case sig := <-quit:
		log.Infow("received shutdown signal", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("graceful shutdown failed", "error", err)
	}
	log.Info("server stopped")
}
