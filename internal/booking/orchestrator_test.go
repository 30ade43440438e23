package booking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"hotel-core-backend/config"
	"hotel-core-backend/internal/apperr"
	"hotel-core-backend/internal/availability"
	"hotel-core-backend/internal/db/dbtest"
	"hotel-core-backend/internal/folio"
	"hotel-core-backend/internal/inventory"
	"hotel-core-backend/internal/model"
	"hotel-core-backend/internal/reservation"
)

// flakyOpener fails the first n Open calls, then delegates.
type flakyOpener struct {
	mu       sync.Mutex
	failures int
	next     FolioOpener
}

func (f *flakyOpener) Open(ctx context.Context, req folio.OpenRequest) (*model.Folio, error) {
	f.mu.Lock()
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset by peer")
	}
	return f.next.Open(ctx, req)
}

type fixture struct {
	db           *gorm.DB
	rooms        map[string]model.Room
	std          model.RoomType
	reservations reservation.Store
	ledger       folio.Ledger
	opener       *flakyOpener
	orchestrator *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gormDB := dbtest.Open(t)
	inv := inventory.NewGormStore(gormDB)

	f := &fixture{db: gormDB, rooms: map[string]model.Room{}}
	f.std = model.RoomType{PropertyID: 1, Name: "Standard", Code: "STD", BaseRate: decimal.NewFromInt(100), MaxOccupancy: 2, Active: true}
	require.NoError(t, inv.CreateRoomType(context.Background(), &f.std))
	for _, number := range []string{"101", "102"} {
		room := model.Room{PropertyID: 1, RoomTypeID: f.std.ID, RoomNumber: number, Status: model.RoomVacant, Active: true}
		require.NoError(t, inv.CreateRoom(context.Background(), &room))
		f.rooms[number] = room
	}

	f.reservations = reservation.NewGormStore(gormDB)
	f.ledger = folio.NewGormLedger(gormDB, decimal.Zero)
	f.opener = &flakyOpener{next: f.ledger}
	f.orchestrator = NewOrchestrator(inv, availability.NewChecker(gormDB), f.reservations, f.opener)
	return f
}

func (f *fixture) roomID(number string) *int64 {
	id := f.rooms[number].ID
	return &id
}

func (f *fixture) count(t *testing.T, m any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(m).Count(&n).Error)
	return n
}

func TestCreateReservation_PairsFolio(t *testing.T) {
	f := newFixture(t)

	result, err := f.orchestrator.CreateReservation(context.Background(), Request{
		PropertyID: 1, GuestID: 11, CheckIn: "2024-05-01", CheckOut: "2024-05-04",
		Lines: []LineRequest{{RoomTypeID: f.std.ID, RoomID: f.roomID("101"), Adults: 2}},
	})
	require.NoError(t, err)

	assert.False(t, result.FolioPending)
	assert.Equal(t, "300.00", result.Reservation.TotalAmount.StringFixed(2), "rate defaults to the base rate")
	require.NotNil(t, result.Folio)
	assert.Equal(t, result.Reservation.ID, result.Folio.ReservationID)
	assert.Equal(t, "300.00", result.Folio.TotalAmount.StringFixed(2))
	assert.Equal(t, "300.00", result.Folio.Balance.StringFixed(2))
}

func TestCreateReservation_ExplicitRate(t *testing.T) {
	f := newFixture(t)
	rate := decimal.RequireFromString("85.50")

	result, err := f.orchestrator.CreateReservation(context.Background(), Request{
		PropertyID: 1, GuestID: 11, CheckIn: "2024-05-01", CheckOut: "2024-05-03",
		Lines: []LineRequest{{RoomTypeID: f.std.ID, RatePerNight: &rate, Adults: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "171.00", result.Reservation.TotalAmount.StringFixed(2))
	assert.Nil(t, result.Reservation.Lines[0].RoomID)
}

func TestCreateReservation_Validation(t *testing.T) {
	f := newFixture(t)
	zero := decimal.Zero

	testCases := []struct {
		name    string
		req     Request
		message string
	}{
		{"missing guest", Request{PropertyID: 1, CheckIn: "2024-05-01", CheckOut: "2024-05-02", Lines: []LineRequest{{RoomTypeID: f.std.ID, Adults: 1}}}, "guest_id"},
		{"bad date", Request{PropertyID: 1, GuestID: 1, CheckIn: "05/01/2024", CheckOut: "2024-05-02", Lines: []LineRequest{{RoomTypeID: f.std.ID, Adults: 1}}}, "check_in"},
		{"no lines", Request{PropertyID: 1, GuestID: 1, CheckIn: "2024-05-01", CheckOut: "2024-05-02"}, "lines"},
		{"no adults", Request{PropertyID: 1, GuestID: 1, CheckIn: "2024-05-01", CheckOut: "2024-05-02", Lines: []LineRequest{{RoomTypeID: f.std.ID}}}, "lines[0].adults"},
		{"checkout before checkin", Request{PropertyID: 1, GuestID: 1, CheckIn: "2024-05-03", CheckOut: "2024-05-02", Lines: []LineRequest{{RoomTypeID: f.std.ID, Adults: 1}}}, ""},
		{"zero rate", Request{PropertyID: 1, GuestID: 1, CheckIn: "2024-05-01", CheckOut: "2024-05-02", Lines: []LineRequest{{RoomTypeID: f.std.ID, RatePerNight: &zero, Adults: 1}}}, "line 1: rate per night"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.orchestrator.CreateReservation(context.Background(), tc.req)
			assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
	assert.Zero(t, f.count(t, &model.Reservation{}))
}

func TestCreateReservation_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.orchestrator.CreateReservation(context.Background(), Request{
		PropertyID: 1, GuestID: 11, CheckIn: "2024-05-02", CheckOut: "2024-05-05",
		Lines: []LineRequest{{RoomTypeID: f.std.ID, RoomID: f.roomID("102"), Adults: 1}},
	})
	require.NoError(t, err)
	reservationsBefore := f.count(t, &model.Reservation{})
	foliosBefore := f.count(t, &model.Folio{})

	_, err = f.orchestrator.CreateReservation(context.Background(), Request{
		PropertyID: 1, GuestID: 12, CheckIn: "2024-05-01", CheckOut: "2024-05-04",
		Lines: []LineRequest{
			{RoomTypeID: f.std.ID, RoomID: f.roomID("101"), Adults: 1},
			{RoomTypeID: f.std.ID, RoomID: f.roomID("102"), Adults: 1},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrRoomUnavailable))
	assert.Contains(t, err.Error(), "line 2")
	assert.Contains(t, err.Error(), "room 102")

	assert.Equal(t, reservationsBefore, f.count(t, &model.Reservation{}))
	assert.Equal(t, foliosBefore, f.count(t, &model.Folio{}))
}

func TestCreateReservation_NoRoomOfType(t *testing.T) {
	f := newFixture(t)
	for _, number := range []string{"101", "102"} {
		_, err := f.orchestrator.CreateReservation(context.Background(), Request{
			PropertyID: 1, GuestID: 11, CheckIn: "2024-05-01", CheckOut: "2024-05-03",
			Lines: []LineRequest{{RoomTypeID: f.std.ID, RoomID: f.roomID(number), Adults: 1}},
		})
		require.NoError(t, err)
	}

	_, err := f.orchestrator.CreateReservation(context.Background(), Request{
		PropertyID: 1, GuestID: 13, CheckIn: "2024-05-02", CheckOut: "2024-05-03",
		Lines: []LineRequest{{RoomTypeID: f.std.ID, Adults: 1}},
	})
	assert.True(t, errors.Is(err, apperr.ErrRoomUnavailable))
	assert.Contains(t, err.Error(), "line 1: no STD room is available")

	_, err = f.orchestrator.CreateReservation(context.Background(), Request{
		PropertyID: 2, GuestID: 13, CheckIn: "2024-05-05", CheckOut: "2024-05-06",
		Lines: []LineRequest{{RoomTypeID: f.std.ID, Adults: 1}},
	})
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "room types of another property are invisible")
}

func TestCreateReservation_FolioFailureIsReconciled(t *testing.T) {
	f := newFixture(t)
	f.opener.failures = 1

	result, err := f.orchestrator.CreateReservation(context.Background(), Request{
		PropertyID: 1, GuestID: 11, CheckIn: "2024-05-01", CheckOut: "2024-05-04",
		Lines: []LineRequest{{RoomTypeID: f.std.ID, RoomID: f.roomID("101"), Adults: 1}},
	})
	require.NoError(t, err)
	assert.True(t, result.FolioPending)
	assert.Nil(t, result.Folio)
	assert.Zero(t, f.count(t, &model.Folio{}))

	reconciler := NewReconciler(config.ReconciliationConfig{Enabled: true, BatchSize: 10}, f.reservations, f.ledger)
	repaired, err := reconciler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	got, err := f.ledger.GetByReservation(context.Background(), 1, result.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, "300.00", got.TotalAmount.StringFixed(2))

	repaired, err = reconciler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, repaired, "a second sweep finds nothing to do")
	assert.Equal(t, int64(1), f.count(t, &model.Folio{}))
}

func TestReconciler_ReportsFailuresAndContinues(t *testing.T) {
	f := newFixture(t)
	f.opener.failures = 2
	for _, number := range []string{"101", "102"} {
		_, err := f.orchestrator.CreateReservation(context.Background(), Request{
			PropertyID: 1, GuestID: 11, CheckIn: "2024-05-01", CheckOut: "2024-05-02",
			Lines: []LineRequest{{RoomTypeID: f.std.ID, RoomID: f.roomID(number), Adults: 1}},
		})
		require.NoError(t, err)
	}

	f.opener.failures = 1
	reconciler := NewReconciler(config.ReconciliationConfig{Enabled: true}, f.reservations, f.opener)
	repaired, err := reconciler.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, repaired)

	repaired, err = reconciler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
}

func TestReconciler_RunDisabledReturns(t *testing.T) {
	f := newFixture(t)
	reconciler := NewReconciler(config.ReconciliationConfig{Enabled: false}, f.reservations, f.ledger)
	assert.NoError(t, reconciler.Run(context.Background()))
}

func TestReconciler_RunRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	reconciler := NewReconciler(config.ReconciliationConfig{Enabled: true, Schedule: "every tuesday"}, f.reservations, f.ledger)
	assert.Error(t, reconciler.Run(context.Background()))
}
