package booking

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"hotel-core-backend/config"
	"hotel-core-backend/internal/apperr"
	"hotel-core-backend/internal/model"
)

// OrphanFinder lists reservations that have no folio.
type OrphanFinder interface {
	Orphans(ctx context.Context, limit int) ([]model.Reservation, error)
}

// Reconciler opens the folios that CreateReservation could not.
type Reconciler struct {
	cfg          config.ReconciliationConfig
	reservations OrphanFinder
	folios       FolioOpener
}

// NewReconciler creates a Reconciler.
func NewReconciler(cfg config.ReconciliationConfig, reservations OrphanFinder, folios FolioOpener) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Reconciler{cfg: cfg, reservations: reservations, folios: folios}
}

// Run sweeps once at startup and then on the configured cron schedule until
// ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	if !r.cfg.Enabled {
		log.Println("Reconciliation is disabled. Not starting.")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(r.cfg.Schedule, func() { r.sweep(ctx) }); err != nil {
		return fmt.Errorf("invalid reconciliation schedule %q: %w", r.cfg.Schedule, err)
	}
	log.Printf("Starting reconciliation on schedule %q...", r.cfg.Schedule)

	r.sweep(ctx)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	log.Println("Reconciliation shutting down.")
	return nil
}

func (r *Reconciler) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	repaired, err := r.RunOnce(ctx)
	if err != nil {
		log.Printf("Error during reconciliation: %v", err)
	}
	if repaired > 0 {
		log.Printf("Reconciliation opened %d missing folio(s)", repaired)
	}
}

// RunOnce opens a folio for up to one batch of reservations lacking one and
// returns how many it repaired. A failure on one reservation does not stop
// the others.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	orphans, err := r.reservations.Orphans(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	repaired := 0
	var errs []error
	for i := range orphans {
		res := &orphans[i]
		log.Printf("%v", apperr.Consistency("booking.Reconcile", nil, "reservation %s has no folio; opening one", res.ConfirmationNumber))
		if _, err := r.folios.Open(ctx, OpenRequestFor(res)); err != nil {
			errs = append(errs, fmt.Errorf("reservation %s: %w", res.ConfirmationNumber, err))
			continue
		}
		repaired++
	}
	return repaired, errors.Join(errs...)
}
