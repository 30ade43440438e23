package internal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"hotel-core-backend/internal/apperr"
	"hotel-core-backend/internal/availability"
	"hotel-core-backend/internal/booking"
	"hotel-core-backend/internal/db/dbtest"
	"hotel-core-backend/internal/folio"
	"hotel-core-backend/internal/frontdesk"
	"hotel-core-backend/internal/housekeeping"
	"hotel-core-backend/internal/inventory"
	"hotel-core-backend/internal/model"
	"hotel-core-backend/internal/reservation"
)

type hotel struct {
	db           *gorm.DB
	std          model.RoomType
	rooms        map[string]int64
	reservations reservation.Store
	ledger       folio.Ledger
	booking      *booking.Orchestrator
	frontDesk    *frontdesk.Coordinator
}

// newHotel wires the whole core on a fresh database with a STD type
// (100/night) and rooms 101 and 102.
func newHotel(t *testing.T) *hotel {
	t.Helper()
	gormDB := dbtest.Open(t)
	inv := inventory.NewGormStore(gormDB)
	h := &hotel{db: gormDB, rooms: map[string]int64{}}

	h.std = model.RoomType{PropertyID: 1, Name: "Standard", Code: "STD", BaseRate: decimal.NewFromInt(100), MaxOccupancy: 2, Active: true}
	require.NoError(t, inv.CreateRoomType(context.Background(), &h.std))
	for _, number := range []string{"101", "102"} {
		room := model.Room{PropertyID: 1, RoomTypeID: h.std.ID, RoomNumber: number, Active: true}
		require.NoError(t, inv.CreateRoom(context.Background(), &room))
		h.rooms[number] = room.ID
	}

	h.reservations = reservation.NewGormStore(gormDB)
	h.ledger = folio.NewGormLedger(gormDB, decimal.Zero)
	h.booking = booking.NewOrchestrator(inv, availability.NewChecker(gormDB), h.reservations, h.ledger)
	h.frontDesk = frontdesk.NewCoordinator(h.reservations, h.ledger, housekeeping.NopNotifier{})
	return h
}

func (h *hotel) book(ctx context.Context, guestID int64, in, out, room string) (*booking.Result, error) {
	id := h.rooms[room]
	return h.booking.CreateReservation(ctx, booking.Request{
		PropertyID: 1, GuestID: guestID, CheckIn: in, CheckOut: out,
		Lines: []booking.LineRequest{{RoomTypeID: h.std.ID, RoomID: &id, Adults: 1}},
	})
}

func (h *hotel) roomStatus(t *testing.T, number string) model.RoomStatus {
	t.Helper()
	var room model.Room
	require.NoError(t, h.db.First(&room, h.rooms[number]).Error)
	return room.Status
}

// assertFolioInvariant checks the stored aggregates of every folio.
func assertFolioInvariant(t *testing.T, gormDB *gorm.DB) {
	t.Helper()
	var folios []model.Folio
	require.NoError(t, gormDB.Find(&folios).Error)
	for _, f := range folios {
		assert.True(t, f.TotalAmount.Equal(f.Subtotal.Add(f.TaxAmount).Add(f.ServiceCharge)), "folio %s total", f.FolioNumber)
		assert.True(t, f.Balance.Equal(f.TotalAmount.Sub(f.PaidAmount)), "folio %s balance", f.FolioNumber)
	}
}

// TestStayLifecycle books a three-night stay, runs it through the front
// desk and settles the folio, checking the ledger after every step.
func TestStayLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHotel(t)

	booked, err := h.book(ctx, 7, "2024-05-01", "2024-05-04", "101")
	require.NoError(t, err)
	require.NotNil(t, booked.Folio)
	assert.Equal(t, "300.00", booked.Reservation.TotalAmount.StringFixed(2))
	assert.Equal(t, "300.00", booked.Folio.Balance.StringFixed(2))

	_, err = h.frontDesk.CheckIn(ctx, 1, booked.Reservation.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.RoomOccupied, h.roomStatus(t, "101"))

	charge, err := h.ledger.PostCharge(ctx, 1, booked.Folio.ID, folio.ChargeRequest{
		ItemType: "minibar", Description: "Snacks", Quantity: 1,
		UnitPrice: decimal.NewFromInt(20), TaxRate: decimal.RequireFromString("0.1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "320.00", charge.Folio.Subtotal.StringFixed(2))
	assert.Equal(t, "2.00", charge.Folio.TaxAmount.StringFixed(2))
	assert.Equal(t, "322.00", charge.Folio.Balance.StringFixed(2))

	paid, err := h.ledger.RecordPayment(ctx, 1, booked.Folio.ID, folio.PaymentRequest{Amount: decimal.NewFromInt(322), Method: "cash"})
	require.NoError(t, err)
	assert.True(t, paid.Folio.Balance.IsZero())

	voided, err := h.ledger.VoidItem(ctx, 1, charge.Item.ID, "guest complaint")
	require.NoError(t, err)
	assert.Equal(t, "300.00", voided.Folio.Subtotal.StringFixed(2))
	assert.Equal(t, "-22.00", voided.Folio.Balance.StringFixed(2), "refund owed")

	_, err = h.ledger.VoidItem(ctx, 1, charge.Item.ID, "again")
	assert.True(t, errors.Is(err, apperr.ErrAlreadyVoided))

	_, err = h.frontDesk.CheckOut(ctx, 1, booked.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomDirty, h.roomStatus(t, "101"))

	f, err := h.ledger.GetByReservation(ctx, 1, booked.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FolioOpen, f.Status, "the folio outlives checkout")

	closed, err := h.ledger.Close(ctx, 1, f.ID, "cashier")
	require.NoError(t, err)
	assert.True(t, closed.Unsettled)
	assertFolioInvariant(t, h.db)
}

func TestSameDayTurnover(t *testing.T) {
	ctx := context.Background()
	h := newHotel(t)

	first, err := h.book(ctx, 7, "2024-05-01", "2024-05-04", "101")
	require.NoError(t, err)
	second, err := h.book(ctx, 8, "2024-05-04", "2024-05-06", "101")
	require.NoError(t, err, "a stay may start on the day the previous one ends")

	_, err = h.book(ctx, 9, "2024-05-03", "2024-05-05", "101")
	assert.True(t, errors.Is(err, apperr.ErrRoomUnavailable))

	_, err = h.frontDesk.CheckIn(ctx, 1, first.Reservation.ID, nil)
	require.NoError(t, err)
	_, err = h.frontDesk.CheckIn(ctx, 1, second.Reservation.ID, nil)
	assert.True(t, errors.Is(err, apperr.ErrRoomUnavailable), "room 101 is still occupied")

	_, err = h.frontDesk.CheckOut(ctx, 1, first.Reservation.ID)
	require.NoError(t, err)
	_, err = h.frontDesk.CheckIn(ctx, 1, second.Reservation.ID, nil)
	require.NoError(t, err, "a dirty room may be handed to the next guest")
	assert.Equal(t, model.RoomOccupied, h.roomStatus(t, "101"))
}

func TestConcurrentBookingsNeverDoubleBook(t *testing.T) {
	ctx := context.Background()
	h := newHotel(t)

	checkOuts := []string{"2024-06-03", "2024-06-04", "2024-06-05"}
	const callers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(guest int64) {
			defer wg.Done()
			// Overlapping stays, all for room 101.
			_, err := h.book(ctx, guest, "2024-06-01", checkOuts[guest%3], "101")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, apperr.ErrRoomUnavailable), "guest %d: %v", guest, err)
		}(int64(i + 1))
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)

	var claims int64
	require.NoError(t, h.db.Table("reservation_room_lines").
		Joins("JOIN reservations ON reservations.id = reservation_room_lines.reservation_id").
		Where("reservation_room_lines.room_id = ? AND reservations.status IN ?", h.rooms["101"], model.ActiveReservationStatuses).
		Count(&claims).Error)
	assert.Equal(t, int64(1), claims)

	var folios int64
	require.NoError(t, h.db.Model(&model.Folio{}).Count(&folios).Error)
	assert.Equal(t, int64(1), folios)
}

func TestConcurrentPostingsKeepLedgerBalanced(t *testing.T) {
	ctx := context.Background()
	h := newHotel(t)
	booked, err := h.book(ctx, 7, "2024-05-01", "2024-05-02", "102")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := h.ledger.PostCharge(ctx, 1, booked.Folio.ID, folio.ChargeRequest{
				ItemType: "restaurant", Quantity: 1, UnitPrice: decimal.RequireFromString("12.35"),
				TaxRate: decimal.RequireFromString("0.07"), ServiceChargeRate: decimal.RequireFromString("0.1"),
			})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := h.ledger.RecordPayment(ctx, 1, booked.Folio.ID, folio.PaymentRequest{Amount: decimal.NewFromInt(5), Method: "card"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	f, err := h.ledger.Get(ctx, 1, booked.Folio.ID)
	require.NoError(t, err)
	assert.Len(t, f.Items, 11)
	assert.Len(t, f.Payments, 10)
	assert.Equal(t, "50.00", f.PaidAmount.StringFixed(2))
	assertFolioInvariant(t, h.db)
}
