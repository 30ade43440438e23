// Package folio keeps the financial ledger of each reservation.
//
// Items and payments are an append-only log and the only source of truth.
// The amount columns on the folio row are a projection of that log,
// rewritten in the same transaction as every posting while the folio row
// is locked.
package folio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hotel-core-backend/internal/apperr"
	"hotel-core-backend/internal/keylock"
	"hotel-core-backend/internal/model"
)

// Item types posted by the core itself.
const (
	ItemRoom       = "room"
	ItemAdjustment = "adjustment"
)

// OpenRequest describes the folio of a new reservation.
type OpenRequest struct {
	PropertyID    int64
	ReservationID int64
	GuestID       int64
	RoomCharge    decimal.Decimal
	Stay          model.DateRange
}

// ChargeRequest is a charge to post on an open folio.
type ChargeRequest struct {
	ItemType          string          `json:"item_type" binding:"required"`
	Description       string          `json:"description"`
	Quantity          int             `json:"quantity" binding:"required"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	TaxRate           decimal.Decimal `json:"tax_rate"`
	ServiceChargeRate decimal.Decimal `json:"service_charge_rate"`
	ServiceDate       *time.Time      `json:"service_date"`
}

// PaymentRequest is a settlement against an open folio.
type PaymentRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	Method          string          `json:"method" binding:"required"`
	ReferenceNumber string          `json:"reference_number"`
	Notes           string          `json:"notes"`
}

// Posting is the result of a ledger mutation: the folio after the change
// and the row that was appended or flipped.
type Posting struct {
	Folio   *model.Folio     `json:"folio"`
	Item    *model.FolioItem `json:"item,omitempty"`
	Payment *model.Payment   `json:"payment,omitempty"`
	// Replayed is set when a payment reference matched an earlier payment
	// and nothing new was written.
	Replayed bool `json:"replayed"`
}

// Stats are the dashboard figures for folios of one property.
type Stats struct {
	Open               int64           `json:"open"`
	Closed             int64           `json:"closed"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	RevenueToday       decimal.Decimal `json:"revenue_today"`
}

// Ledger defines the folio operations.
type Ledger interface {
	Open(ctx context.Context, req OpenRequest) (*model.Folio, error)
	PostCharge(ctx context.Context, propertyID, folioID int64, req ChargeRequest) (*Posting, error)
	RecordPayment(ctx context.Context, propertyID, folioID int64, req PaymentRequest) (*Posting, error)
	VoidItem(ctx context.Context, propertyID, itemID int64, reason string) (*Posting, error)
	Adjust(ctx context.Context, propertyID, folioID int64, amount decimal.Decimal, description string) (*Posting, error)
	AdjustStay(tx *gorm.DB, propertyID, reservationID int64, delta decimal.Decimal, description string) (*model.Folio, error)
	Close(ctx context.Context, propertyID, folioID int64, closedBy string) (*model.Folio, error)
	Get(ctx context.Context, propertyID, folioID int64) (*model.Folio, error)
	GetByReservation(ctx context.Context, propertyID, reservationID int64) (*model.Folio, error)
	Stats(ctx context.Context, propertyID int64, today time.Time) (Stats, error)
}

// gormLedger implements Ledger using GORM. Postings on one folio are
// serialized in-process by a keyed mutex and across processes by the
// folio row lock.
type gormLedger struct {
	db          *gorm.DB
	roomTaxRate decimal.Decimal
	folios      *keylock.Locker
	opens       *keylock.Locker
	now         func() time.Time
}

// NewGormLedger creates a ledger. roomTaxRate applies to the room charge
// seeded when a folio is opened.
func NewGormLedger(db *gorm.DB, roomTaxRate decimal.Decimal) Ledger {
	return &gormLedger{
		db:          db,
		roomTaxRate: roomTaxRate,
		folios:      keylock.New(),
		opens:       keylock.New(),
		now:         time.Now,
	}
}

func newFolioNumber() string {
	return "F-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func checkRate(op, name string, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return apperr.Validation(op, "%s must be between 0 and 1, got %s", name, rate)
	}
	return nil
}

// Open creates the folio of a reservation, seeded with the room charge.
// The folio subtotal equals the reservation total; room tax, when the
// property charges one, comes on top. It is idempotent on the reservation
// id: a second call returns the folio created by the first.
func (l *gormLedger) Open(ctx context.Context, req OpenRequest) (*model.Folio, error) {
	const op = "folio.Open"
	if req.PropertyID <= 0 || req.ReservationID <= 0 {
		return nil, apperr.Validation(op, "property and reservation are required")
	}
	if req.RoomCharge.IsNegative() {
		return nil, apperr.Validation(op, "room charge cannot be negative")
	}

	unlock := l.opens.Lock(req.ReservationID)
	defer unlock()

	var out *model.Folio
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Folio
		err := tx.Where("reservation_id = ?", req.ReservationID).First(&existing).Error
		if err == nil {
			if existing.PropertyID != req.PropertyID {
				return apperr.NotFound(op, "reservation %d not found", req.ReservationID)
			}
			out = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up folio of reservation %d: %w", req.ReservationID, err)
		}

		now := l.now().UTC()
		f := model.Folio{
			PropertyID:    req.PropertyID,
			ReservationID: req.ReservationID,
			GuestID:       req.GuestID,
			FolioNumber:   newFolioNumber(),
			Status:        model.FolioOpen,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if req.RoomCharge.IsPositive() {
			f.Items = []model.FolioItem{{
				ItemType:    ItemRoom,
				Description: fmt.Sprintf("Room charges %s", req.Stay),
				Quantity:    1,
				UnitPrice:   req.RoomCharge,
				TotalPrice:  req.RoomCharge,
				TaxAmount:   round2(req.RoomCharge.Mul(l.roomTaxRate)),
				ServiceDate: model.Day(req.Stay.CheckIn),
				CreatedAt:   now,
			}}
		}
		Project(f.Items, nil).Apply(&f)
		if err := tx.Create(&f).Error; err != nil {
			return fmt.Errorf("failed to create folio for reservation %d: %w", req.ReservationID, err)
		}
		out = &f
		return nil
	})
	if err != nil {
		// Another process may have won the unique index on reservation_id.
		if apperr.KindOf(err) == "" {
			if f, lookupErr := l.GetByReservation(ctx, req.PropertyID, req.ReservationID); lookupErr == nil {
				return f, nil
			}
		}
		return nil, err
	}
	return out, nil
}

// lockFolio loads the folio with a row lock. A folio of another property
// is reported as not found.
func lockFolio(tx *gorm.DB, op string, propertyID, folioID int64) (*model.Folio, error) {
	var f model.Folio
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND property_id = ?", folioID, propertyID).
		First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(op, "folio %d not found", folioID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock folio %d: %w", folioID, err)
	}
	return &f, nil
}

// refresh reloads the log of f and rewrites the cached aggregate columns
// from its projection, along with any extra column updates.
func refresh(tx *gorm.DB, f *model.Folio, extra map[string]any) error {
	var items []model.FolioItem
	if err := tx.Where("folio_id = ?", f.ID).Order("id").Find(&items).Error; err != nil {
		return fmt.Errorf("failed to load items of folio %d: %w", f.ID, err)
	}
	var payments []model.Payment
	if err := tx.Where("folio_id = ?", f.ID).Order("id").Find(&payments).Error; err != nil {
		return fmt.Errorf("failed to load payments of folio %d: %w", f.ID, err)
	}

	totals := Project(items, payments)
	columns := totals.columns()
	for k, v := range extra {
		columns[k] = v
	}
	if err := tx.Model(&model.Folio{}).Where("id = ?", f.ID).Updates(columns).Error; err != nil {
		return fmt.Errorf("failed to update totals of folio %d: %w", f.ID, err)
	}
	totals.Apply(f)
	f.Items, f.Payments = items, payments
	return nil
}

// mutate runs fn on the locked, open folio and re-projects it in the same
// transaction. fn returns extra column updates for the folio row.
func (l *gormLedger) mutate(ctx context.Context, op string, propertyID, folioID int64, fn func(tx *gorm.DB, f *model.Folio) (map[string]any, error)) (*model.Folio, error) {
	unlock := l.folios.Lock(folioID)
	defer unlock()

	var out *model.Folio
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := lockFolio(tx, op, propertyID, folioID)
		if err != nil {
			return err
		}
		if f.Status == model.FolioClosed {
			return apperr.Conflict(op, apperr.ErrFolioClosed, "folio %s is closed", f.FolioNumber)
		}
		extra, err := fn(tx, f)
		if err != nil {
			return err
		}
		if extra == nil {
			extra = map[string]any{}
		}
		extra["updated_at"] = l.now().UTC()
		if err := refresh(tx, f, extra); err != nil {
			return err
		}
		out = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PostCharge appends a charge. Tax and service charge are computed from the
// rates given here and rounded per item; they are never recomputed later.
func (l *gormLedger) PostCharge(ctx context.Context, propertyID, folioID int64, req ChargeRequest) (*Posting, error) {
	const op = "folio.PostCharge"
	req.ItemType = strings.TrimSpace(req.ItemType)
	if req.ItemType == "" {
		return nil, apperr.Validation(op, "item type is required")
	}
	if req.Quantity <= 0 {
		return nil, apperr.Validation(op, "quantity must be positive, got %d", req.Quantity)
	}
	if req.UnitPrice.IsNegative() {
		return nil, apperr.Validation(op, "unit price cannot be negative")
	}
	if err := checkRate(op, "tax rate", req.TaxRate); err != nil {
		return nil, err
	}
	if err := checkRate(op, "service charge rate", req.ServiceChargeRate); err != nil {
		return nil, err
	}

	var item model.FolioItem
	f, err := l.mutate(ctx, op, propertyID, folioID, func(tx *gorm.DB, f *model.Folio) (map[string]any, error) {
		now := l.now().UTC()
		serviceDate := model.Day(now)
		if req.ServiceDate != nil {
			serviceDate = model.Day(*req.ServiceDate)
		}
		total := req.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))
		item = model.FolioItem{
			FolioID:       f.ID,
			ItemType:      req.ItemType,
			Description:   strings.TrimSpace(req.Description),
			Quantity:      req.Quantity,
			UnitPrice:     req.UnitPrice,
			TotalPrice:    total,
			TaxAmount:     round2(total.Mul(req.TaxRate)),
			ServiceCharge: round2(total.Mul(req.ServiceChargeRate)),
			ServiceDate:   serviceDate,
			CreatedAt:     now,
		}
		if err := tx.Create(&item).Error; err != nil {
			return nil, fmt.Errorf("failed to post charge on folio %d: %w", f.ID, err)
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return &Posting{Folio: f, Item: &item}, nil
}

// RecordPayment appends a payment. A reference number already used on the
// folio replays the original payment when the amount matches and is a
// conflict otherwise.
func (l *gormLedger) RecordPayment(ctx context.Context, propertyID, folioID int64, req PaymentRequest) (*Posting, error) {
	const op = "folio.RecordPayment"
	if !req.Amount.IsPositive() {
		return nil, apperr.Validation(op, "payment amount must be positive")
	}
	req.Method = strings.TrimSpace(req.Method)
	if req.Method == "" {
		return nil, apperr.Validation(op, "payment method is required")
	}
	ref := strings.TrimSpace(req.ReferenceNumber)

	var payment model.Payment
	replayed := false
	f, err := l.mutate(ctx, op, propertyID, folioID, func(tx *gorm.DB, f *model.Folio) (map[string]any, error) {
		if ref != "" {
			err := tx.Where("folio_id = ? AND reference_number = ?", f.ID, ref).First(&payment).Error
			if err == nil {
				if !payment.Amount.Equal(req.Amount) {
					return nil, apperr.Conflict(op, apperr.ErrDuplicatePayment,
						"reference %s was already used for a payment of %s", ref, payment.Amount.StringFixed(2))
				}
				replayed = true
				return nil, nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("failed to look up payment reference: %w", err)
			}
		}

		payment = model.Payment{
			FolioID:   f.ID,
			Amount:    req.Amount,
			Method:    req.Method,
			Notes:     strings.TrimSpace(req.Notes),
			CreatedAt: l.now().UTC(),
		}
		if ref != "" {
			payment.ReferenceNumber = &ref
		}
		if err := tx.Create(&payment).Error; err != nil {
			return nil, fmt.Errorf("failed to record payment on folio %d: %w", f.ID, err)
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return &Posting{Folio: f, Payment: &payment, Replayed: replayed}, nil
}

// VoidItem flags an item as voided. The row stays in the log.
func (l *gormLedger) VoidItem(ctx context.Context, propertyID, itemID int64, reason string) (*Posting, error) {
	const op = "folio.VoidItem"
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation(op, "a reason is required to void an item")
	}

	var owner model.FolioItem
	err := l.db.WithContext(ctx).
		Joins("JOIN folios ON folios.id = folio_items.folio_id").
		Where("folio_items.id = ? AND folios.property_id = ?", itemID, propertyID).
		First(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(op, "folio item %d not found", itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load folio item %d: %w", itemID, err)
	}

	var item model.FolioItem
	f, err := l.mutate(ctx, op, propertyID, owner.FolioID, func(tx *gorm.DB, f *model.Folio) (map[string]any, error) {
		if err := tx.Where("id = ?", itemID).First(&item).Error; err != nil {
			return nil, fmt.Errorf("failed to reload folio item %d: %w", itemID, err)
		}
		if item.Voided {
			return nil, apperr.Conflict(op, apperr.ErrAlreadyVoided, "item %d is already voided", itemID)
		}
		now := l.now().UTC()
		if err := tx.Model(&model.FolioItem{}).Where("id = ?", itemID).Updates(map[string]any{
			"voided":      true,
			"void_reason": reason,
			"voided_at":   now,
		}).Error; err != nil {
			return nil, fmt.Errorf("failed to void item %d: %w", itemID, err)
		}
		item.Voided, item.VoidReason, item.VoidedAt = true, reason, &now
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return &Posting{Folio: f, Item: &item}, nil
}

// Adjust posts an untaxed room-rate adjustment, which may be negative.
func (l *gormLedger) Adjust(ctx context.Context, propertyID, folioID int64, amount decimal.Decimal, description string) (*Posting, error) {
	const op = "folio.Adjust"
	if amount.IsZero() {
		return nil, apperr.Validation(op, "adjustment amount cannot be zero")
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, apperr.Validation(op, "adjustment description is required")
	}

	var item model.FolioItem
	f, err := l.mutate(ctx, op, propertyID, folioID, func(tx *gorm.DB, f *model.Folio) (map[string]any, error) {
		now := l.now().UTC()
		item = model.FolioItem{
			FolioID:     f.ID,
			ItemType:    ItemAdjustment,
			Description: description,
			Quantity:    1,
			UnitPrice:   amount,
			TotalPrice:  amount,
			ServiceDate: model.Day(now),
			CreatedAt:   now,
		}
		if err := tx.Create(&item).Error; err != nil {
			return nil, fmt.Errorf("failed to post adjustment on folio %d: %w", f.ID, err)
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return &Posting{Folio: f, Item: &item}, nil
}

// AdjustStay posts the price change of an amended stay on the reservation's
// folio, inside tx, the transaction that amends the reservation. The change
// is taxed at the room tax rate like the room charge it corrects. A closed
// folio is a conflict and rolls the amendment back. A reservation without a
// folio yet is skipped; Open will seed the amended total.
//
// The in-process folio lock is not taken: tx already holds a connection,
// and the folio row lock orders this write against every other posting.
func (l *gormLedger) AdjustStay(tx *gorm.DB, propertyID, reservationID int64, delta decimal.Decimal, description string) (*model.Folio, error) {
	const op = "folio.AdjustStay"
	var f model.Folio
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reservation_id = ? AND property_id = ?", reservationID, propertyID).
		First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock folio of reservation %d: %w", reservationID, err)
	}
	if f.Status == model.FolioClosed {
		return nil, apperr.Conflict(op, apperr.ErrFolioClosed, "folio %s is closed", f.FolioNumber)
	}
	if delta.IsZero() {
		return &f, nil
	}

	now := l.now().UTC()
	item := model.FolioItem{
		FolioID:     f.ID,
		ItemType:    ItemAdjustment,
		Description: strings.TrimSpace(description),
		Quantity:    1,
		UnitPrice:   delta,
		TotalPrice:  delta,
		TaxAmount:   round2(delta.Mul(l.roomTaxRate)),
		ServiceDate: model.Day(now),
		CreatedAt:   now,
	}
	if err := tx.Create(&item).Error; err != nil {
		return nil, fmt.Errorf("failed to post stay adjustment on folio %d: %w", f.ID, err)
	}
	if err := refresh(tx, &f, map[string]any{"updated_at": now}); err != nil {
		return nil, err
	}
	return &f, nil
}

// Close stops the folio from accepting postings. A nonzero balance does not
// block closing; the returned folio is marked Unsettled instead.
func (l *gormLedger) Close(ctx context.Context, propertyID, folioID int64, closedBy string) (*model.Folio, error) {
	closedBy = strings.TrimSpace(closedBy)
	if closedBy == "" {
		closedBy = "system"
	}
	now := l.now().UTC()
	f, err := l.mutate(ctx, "folio.Close", propertyID, folioID, func(tx *gorm.DB, f *model.Folio) (map[string]any, error) {
		f.Status = model.FolioClosed
		f.ClosedAt = &now
		f.ClosedBy = closedBy
		return map[string]any{"status": model.FolioClosed, "closed_at": now, "closed_by": closedBy}, nil
	})
	if err != nil {
		return nil, err
	}
	f.Unsettled = !f.Balance.IsZero()
	if f.Unsettled {
		log.Printf("Folio %s closed by %s with balance %s", f.FolioNumber, closedBy, f.Balance.StringFixed(2))
	}
	return f, nil
}

func (l *gormLedger) load(ctx context.Context, op string, query string, args ...any) (*model.Folio, error) {
	var f model.Folio
	err := l.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where(query, args...).
		First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(op, "folio not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load folio: %w", err)
	}
	Project(f.Items, f.Payments).Apply(&f)
	f.Unsettled = f.Status == model.FolioClosed && !f.Balance.IsZero()
	return &f, nil
}

// Get returns the folio with its log; the totals are projected from the log.
func (l *gormLedger) Get(ctx context.Context, propertyID, folioID int64) (*model.Folio, error) {
	return l.load(ctx, "folio.Get", "id = ? AND property_id = ?", folioID, propertyID)
}

func (l *gormLedger) GetByReservation(ctx context.Context, propertyID, reservationID int64) (*model.Folio, error) {
	return l.load(ctx, "folio.GetByReservation", "reservation_id = ? AND property_id = ?", reservationID, propertyID)
}

// Stats counts folios by status, sums open balances and the payments taken
// on the calendar day of today, in today's location.
func (l *gormLedger) Stats(ctx context.Context, propertyID int64, today time.Time) (Stats, error) {
	stats := Stats{OutstandingBalance: decimal.Zero, RevenueToday: decimal.Zero}
	db := l.db.WithContext(ctx)

	if err := db.Model(&model.Folio{}).Where("property_id = ? AND status = ?", propertyID, model.FolioOpen).Count(&stats.Open).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to count open folios: %w", err)
	}
	if err := db.Model(&model.Folio{}).Where("property_id = ? AND status = ?", propertyID, model.FolioClosed).Count(&stats.Closed).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to count closed folios: %w", err)
	}

	var open []model.Folio
	if err := db.Select("id", "balance").Where("property_id = ? AND status = ?", propertyID, model.FolioOpen).Find(&open).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to load open balances: %w", err)
	}
	for _, f := range open {
		stats.OutstandingBalance = stats.OutstandingBalance.Add(f.Balance)
	}

	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	end := start.AddDate(0, 0, 1)
	var payments []model.Payment
	if err := db.Select("payments.id", "payments.amount").
		Joins("JOIN folios ON folios.id = payments.folio_id").
		Where("folios.property_id = ? AND payments.created_at >= ? AND payments.created_at < ?", propertyID, start.UTC(), end.UTC()).
		Find(&payments).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to load today's payments: %w", err)
	}
	for _, p := range payments {
		stats.RevenueToday = stats.RevenueToday.Add(p.Amount)
	}
	return stats, nil
}
