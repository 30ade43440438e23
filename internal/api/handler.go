package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"hotel-core-backend/internal/availability"
	"hotel-core-backend/internal/booking"
	"hotel-core-backend/internal/folio"
	"hotel-core-backend/internal/frontdesk"
	"hotel-core-backend/internal/inventory"
	"hotel-core-backend/internal/reservation"
)

// Services are the core components the handlers call into.
type Services struct {
	DB           *gorm.DB
	Inventory    inventory.Store
	Availability *availability.Checker
	Reservations reservation.Store
	Booking      *booking.Orchestrator
	FrontDesk    *frontdesk.Coordinator
	Ledger       folio.Ledger
	// TaxRate and ServiceChargeRate apply to charges posted without rates.
	TaxRate           decimal.Decimal
	ServiceChargeRate decimal.Decimal
	// Location is the property's timezone, used to decide what "today" is.
	Location *time.Location
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	svc     Services
	webpush *webpush.Options
	now     func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(svc Services, webpushOptions *webpush.Options) *Handler {
	if svc.Location == nil {
		svc.Location = time.UTC
	}
	return &Handler{
		svc:     svc,
		webpush: webpushOptions,
		now:     time.Now,
	}
}

func (h *Handler) today() time.Time {
	return h.now().In(h.svc.Location)
}
