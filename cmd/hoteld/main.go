package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"hotel-core-backend/config"
	"hotel-core-backend/internal/api"
	"hotel-core-backend/internal/availability"
	"hotel-core-backend/internal/booking"
	"hotel-core-backend/internal/db"
	"hotel-core-backend/internal/folio"
	"hotel-core-backend/internal/frontdesk"
	"hotel-core-backend/internal/housekeeping"
	"hotel-core-backend/internal/inventory"
	"hotel-core-backend/internal/reservation"
)

func main() {
	logger := log.New(os.Stdout, "hoteld ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Housekeeping push is optional; without VAPID keys checkouts notify nobody.
	var webpushOptions *webpush.Options
	var notifier frontdesk.RoomNotifier = housekeeping.NopNotifier{}
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := housekeeping.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		pool.Start(ctx)
		notifier = pool
	} else {
		logger.Println("VAPID keys are not configured; housekeeping notifications are disabled")
	}

	inv := inventory.NewGormStore(gormDB)
	checker := availability.NewChecker(gormDB)
	reservations := reservation.NewGormStore(gormDB)
	ledger := folio.NewGormLedger(gormDB, cfg.Property.RoomTaxRate)

	reconciler := booking.NewReconciler(cfg.Reconciliation, reservations, ledger)
	go func() {
		if err := reconciler.Run(ctx); err != nil {
			logger.Printf("reconciliation stopped: %v", err)
		}
	}()

	router := api.NewRouter(api.Services{
		DB:                gormDB,
		Inventory:         inv,
		Availability:      checker,
		Reservations:      reservations,
		Booking:           booking.NewOrchestrator(inv, checker, reservations, ledger),
		FrontDesk:         frontdesk.NewCoordinator(reservations, ledger, notifier),
		Ledger:            ledger,
		TaxRate:           cfg.Property.DefaultTaxRate,
		ServiceChargeRate: cfg.Property.DefaultServiceChargeRate,
		Location:          cfg.Property.Location,
	}, cfg.Server, webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
