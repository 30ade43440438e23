package folio

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hotel-core-backend/internal/apperr"
	"hotel-core-backend/internal/db/dbtest"
	"hotel-core-backend/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func stay(t *testing.T) model.DateRange {
	t.Helper()
	r, err := model.ParseDateRange("2024-05-01", "2024-05-04")
	require.NoError(t, err)
	return r
}

func openFolio(t *testing.T, l Ledger, reservationID int64, roomCharge string) *model.Folio {
	t.Helper()
	f, err := l.Open(context.Background(), OpenRequest{
		PropertyID: 1, ReservationID: reservationID, GuestID: 7, RoomCharge: dec(roomCharge), Stay: stay(t),
	})
	require.NoError(t, err)
	return f
}

func assertInvariant(t *testing.T, f *model.Folio) {
	t.Helper()
	assert.True(t, f.TotalAmount.Equal(f.Subtotal.Add(f.TaxAmount).Add(f.ServiceCharge)),
		"total %s != subtotal %s + tax %s + service %s", f.TotalAmount, f.Subtotal, f.TaxAmount, f.ServiceCharge)
	assert.True(t, f.Balance.Equal(f.TotalAmount.Sub(f.PaidAmount)),
		"balance %s != total %s - paid %s", f.Balance, f.TotalAmount, f.PaidAmount)
}

func TestLedger_StayWalkthrough(t *testing.T) {
	ledger := NewGormLedger(dbtest.Open(t), decimal.Zero)
	ctx := context.Background()

	f := openFolio(t, ledger, 1, "300")
	assert.Equal(t, "300.00", f.TotalAmount.StringFixed(2))
	assert.Equal(t, "300.00", f.Balance.StringFixed(2))
	assertInvariant(t, f)

	posted, err := ledger.PostCharge(ctx, 1, f.ID, ChargeRequest{ItemType: "minibar", Quantity: 1, UnitPrice: dec("20"), TaxRate: dec("0.1")})
	require.NoError(t, err)
	assert.Equal(t, "320.00", posted.Folio.Subtotal.StringFixed(2))
	assert.Equal(t, "2.00", posted.Folio.TaxAmount.StringFixed(2))
	assert.Equal(t, "322.00", posted.Folio.TotalAmount.StringFixed(2))
	assertInvariant(t, posted.Folio)

	paid, err := ledger.RecordPayment(ctx, 1, f.ID, PaymentRequest{Amount: dec("322"), Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, "322.00", paid.Folio.PaidAmount.StringFixed(2))
	assert.True(t, paid.Folio.Balance.IsZero())

	voided, err := ledger.VoidItem(ctx, 1, posted.Item.ID, "guest complaint")
	require.NoError(t, err)
	assert.True(t, voided.Item.Voided)
	assert.Equal(t, "300.00", voided.Folio.Subtotal.StringFixed(2))
	assert.True(t, voided.Folio.TaxAmount.IsZero())
	assert.Equal(t, "-22.00", voided.Folio.Balance.StringFixed(2), "refund owed")
	assertInvariant(t, voided.Folio)

	got, err := ledger.Get(ctx, 1, f.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2, "voided items stay in the log")
	assert.Equal(t, "-22.00", got.Balance.StringFixed(2))
}

func TestLedger_OpenIsIdempotent(t *testing.T) {
	gormDB := dbtest.Open(t)
	ledger := NewGormLedger(gormDB, dec("0.07"))

	first := openFolio(t, ledger, 5, "200")
	second := openFolio(t, ledger, 5, "999")

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.FolioNumber, second.FolioNumber)
	assert.Regexp(t, `^F-[0-9A-F]{10}$`, first.FolioNumber)
	assert.Equal(t, "14.00", first.TaxAmount.StringFixed(2))
	assert.Equal(t, "214.00", second.TotalAmount.StringFixed(2))

	var count int64
	require.NoError(t, gormDB.Model(&model.Folio{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err := ledger.Open(context.Background(), OpenRequest{PropertyID: 2, ReservationID: 5, RoomCharge: dec("1")})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestLedger_ServiceChargeAndRounding(t *testing.T) {
	ledger := NewGormLedger(dbtest.Open(t), decimal.Zero)
	f := openFolio(t, ledger, 1, "0")

	posted, err := ledger.PostCharge(context.Background(), 1, f.ID, ChargeRequest{
		ItemType: "restaurant", Quantity: 3, UnitPrice: dec("12.35"), TaxRate: dec("0.07"), ServiceChargeRate: dec("0.1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "37.05", posted.Item.TotalPrice.StringFixed(2))
	assert.Equal(t, "2.59", posted.Item.TaxAmount.StringFixed(2))
	assert.Equal(t, "3.71", posted.Item.ServiceCharge.StringFixed(2))
	assert.Equal(t, "43.35", posted.Folio.TotalAmount.StringFixed(2))
	assertInvariant(t, posted.Folio)
}

func TestLedger_Rejections(t *testing.T) {
	ledger := NewGormLedger(dbtest.Open(t), decimal.Zero)
	ctx := context.Background()
	f := openFolio(t, ledger, 1, "100")
	charge, err := ledger.PostCharge(ctx, 1, f.ID, ChargeRequest{ItemType: "spa", Quantity: 1, UnitPrice: dec("50")})
	require.NoError(t, err)

	testCases := []struct {
		name string
		call func() error
		kind error
	}{
		{"zero quantity", func() error {
			_, err := ledger.PostCharge(ctx, 1, f.ID, ChargeRequest{ItemType: "spa", Quantity: 0, UnitPrice: dec("1")})
			return err
		}, apperr.ErrValidation},
		{"negative unit price", func() error {
			_, err := ledger.PostCharge(ctx, 1, f.ID, ChargeRequest{ItemType: "spa", Quantity: 1, UnitPrice: dec("-1")})
			return err
		}, apperr.ErrValidation},
		{"tax rate above one", func() error {
			_, err := ledger.PostCharge(ctx, 1, f.ID, ChargeRequest{ItemType: "spa", Quantity: 1, UnitPrice: dec("1"), TaxRate: dec("1.2")})
			return err
		}, apperr.ErrValidation},
		{"zero payment", func() error {
			_, err := ledger.RecordPayment(ctx, 1, f.ID, PaymentRequest{Amount: decimal.Zero, Method: "cash"})
			return err
		}, apperr.ErrValidation},
		{"void without reason", func() error {
			_, err := ledger.VoidItem(ctx, 1, charge.Item.ID, "  ")
			return err
		}, apperr.ErrValidation},
		{"folio of another property", func() error {
			_, err := ledger.PostCharge(ctx, 2, f.ID, ChargeRequest{ItemType: "spa", Quantity: 1, UnitPrice: dec("1")})
			return err
		}, apperr.ErrNotFound},
		{"item of another property", func() error {
			_, err := ledger.VoidItem(ctx, 2, charge.Item.ID, "typo")
			return err
		}, apperr.ErrNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)
		})
	}

	got, err := ledger.Get(ctx, 1, f.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)
	assert.Empty(t, got.Payments)
}

func TestLedger_DoubleVoid(t *testing.T) {
	ledger := NewGormLedger(dbtest.Open(t), decimal.Zero)
	ctx := context.Background()
	f := openFolio(t, ledger, 1, "100")

	_, err := ledger.VoidItem(ctx, 1, mustItemID(t, ledger, f.ID), "rate correction")
	require.NoError(t, err)

	_, err = ledger.VoidItem(ctx, 1, mustItemID(t, ledger, f.ID), "again")
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.True(t, errors.Is(err, apperr.ErrAlreadyVoided))
}

func mustItemID(t *testing.T, l Ledger, folioID int64) int64 {
	t.Helper()
	f, err := l.Get(context.Background(), 1, folioID)
	require.NoError(t, err)
	require.NotEmpty(t, f.Items)
	return f.Items[0].ID
}

func TestLedger_PaymentReferenceReplay(t *testing.T) {
	ledger := NewGormLedger(dbtest.Open(t), decimal.Zero)
	ctx := context.Background()
	f := openFolio(t, ledger, 1, "100")

	first, err := ledger.RecordPayment(ctx, 1, f.ID, PaymentRequest{Amount: dec("60"), Method: "card", ReferenceNumber: "TX-1"})
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := ledger.RecordPayment(ctx, 1, f.ID, PaymentRequest{Amount: dec("60"), Method: "card", ReferenceNumber: "TX-1"})
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Payment.ID, again.Payment.ID)
	assert.Equal(t, "40.00", again.Folio.Balance.StringFixed(2))

	_, err = ledger.RecordPayment(ctx, 1, f.ID, PaymentRequest{Amount: dec("61"), Method: "card", ReferenceNumber: "TX-1"})
	assert.True(t, errors.Is(err, apperr.ErrDuplicatePayment))
}

func TestLedger_ClosedFolioRejectsPostings(t *testing.T) {
	ledger := NewGormLedger(dbtest.Open(t), decimal.Zero)
	ctx := context.Background()
	f := openFolio(t, ledger, 1, "100")
	itemID := mustItemID(t, ledger, f.ID)

	closed, err := ledger.Close(ctx, 1, f.ID, "night audit")
	require.NoError(t, err)
	assert.Equal(t, model.FolioClosed, closed.Status)
	assert.Equal(t, "night audit", closed.ClosedBy)
	assert.NotNil(t, closed.ClosedAt)
	assert.True(t, closed.Unsettled, "closing with a balance is allowed but reported")

	_, err = ledger.PostCharge(ctx, 1, f.ID, ChargeRequest{ItemType: "spa", Quantity: 1, UnitPrice: dec("1")})
	assert.True(t, errors.Is(err, apperr.ErrFolioClosed))
	assert.Contains(t, err.Error(), "is closed")

	_, err = ledger.RecordPayment(ctx, 1, f.ID, PaymentRequest{Amount: dec("1"), Method: "cash"})
	assert.True(t, errors.Is(err, apperr.ErrFolioClosed))

	_, err = ledger.VoidItem(ctx, 1, itemID, "late")
	assert.True(t, errors.Is(err, apperr.ErrFolioClosed))

	_, err = ledger.Close(ctx, 1, f.ID, "night audit")
	assert.True(t, errors.Is(err, apperr.ErrFolioClosed))
}

func TestLedger_Adjust(t *testing.T) {
	ledger := NewGormLedger(dbtest.Open(t), decimal.Zero)
	f := openFolio(t, ledger, 1, "300")

	posted, err := ledger.Adjust(context.Background(), 1, f.ID, dec("-100"), "stay shortened by one night")
	require.NoError(t, err)
	assert.Equal(t, ItemAdjustment, posted.Item.ItemType)
	assert.Equal(t, "200.00", posted.Folio.TotalAmount.StringFixed(2))

	_, err = ledger.Adjust(context.Background(), 1, f.ID, decimal.Zero, "nothing")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestLedger_AdjustStayKeepsRoomSubtotalPaired(t *testing.T) {
	gormDB := dbtest.Open(t)
	ledger := NewGormLedger(gormDB, dec("0.07"))
	f := openFolio(t, ledger, 5, "200")
	assert.Equal(t, "200.00", f.Subtotal.StringFixed(2), "subtotal is the reservation total")
	assert.Equal(t, "214.00", f.TotalAmount.StringFixed(2), "room tax comes on top")

	var adjusted *model.Folio
	require.NoError(t, gormDB.Transaction(func(tx *gorm.DB) error {
		var err error
		adjusted, err = ledger.AdjustStay(tx, 1, 5, dec("100"), "Stay changed")
		return err
	}))
	require.NotNil(t, adjusted)
	assert.Equal(t, "300.00", adjusted.Subtotal.StringFixed(2))
	assert.Equal(t, "21.00", adjusted.TaxAmount.StringFixed(2))
	assertInvariant(t, adjusted)

	got, err := ledger.Get(context.Background(), 1, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "321.00", got.TotalAmount.StringFixed(2))

	err = gormDB.Transaction(func(tx *gorm.DB) error {
		missing, err := ledger.AdjustStay(tx, 1, 99, dec("50"), "Stay changed")
		assert.Nil(t, missing, "no folio yet")
		return err
	})
	require.NoError(t, err)

	_, err = ledger.Close(context.Background(), 1, f.ID, "audit")
	require.NoError(t, err)
	err = gormDB.Transaction(func(tx *gorm.DB) error {
		_, err := ledger.AdjustStay(tx, 1, 5, decimal.Zero, "Stay changed")
		return err
	})
	assert.True(t, errors.Is(err, apperr.ErrFolioClosed), "a closed folio refuses even a zero change")
}

func TestLedger_ConcurrentPostingsKeepInvariant(t *testing.T) {
	gormDB := dbtest.Open(t)
	ledger := NewGormLedger(gormDB, decimal.Zero)
	ctx := context.Background()
	f := openFolio(t, ledger, 1, "0")

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := ledger.PostCharge(ctx, 1, f.ID, ChargeRequest{ItemType: "minibar", Quantity: 1, UnitPrice: dec("10"), TaxRate: dec("0.1")})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := ledger.RecordPayment(ctx, 1, f.ID, PaymentRequest{Amount: dec("5"), Method: "cash"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := ledger.Get(ctx, 1, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "110.00", got.TotalAmount.StringFixed(2))
	assert.Equal(t, "50.00", got.PaidAmount.StringFixed(2))
	assert.Equal(t, "60.00", got.Balance.StringFixed(2))

	var stored model.Folio
	require.NoError(t, gormDB.First(&stored, f.ID).Error)
	assert.Equal(t, "60.00", stored.Balance.StringFixed(2), "cached columns match the log")
	assertInvariant(t, &stored)
}

func TestLedger_Stats(t *testing.T) {
	ledger := NewGormLedger(dbtest.Open(t), decimal.Zero).(*gormLedger)
	ctx := context.Background()
	now := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return now }

	a := openFolio(t, ledger, 1, "300")
	b := openFolio(t, ledger, 2, "150")
	openFolio(t, ledger, 3, "80")

	_, err := ledger.RecordPayment(ctx, 1, a.ID, PaymentRequest{Amount: dec("100"), Method: "cash"})
	require.NoError(t, err)
	_, err = ledger.RecordPayment(ctx, 1, b.ID, PaymentRequest{Amount: dec("150"), Method: "card"})
	require.NoError(t, err)
	_, err = ledger.Close(ctx, 1, b.ID, "front desk")
	require.NoError(t, err)

	now = now.AddDate(0, 0, -1)
	_, err = ledger.RecordPayment(ctx, 1, a.ID, PaymentRequest{Amount: dec("20"), Method: "cash"})
	require.NoError(t, err)

	stats, err := ledger.Stats(ctx, 1, time.Date(2024, 5, 2, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Open)
	assert.Equal(t, int64(1), stats.Closed)
	assert.Equal(t, "260.00", stats.OutstandingBalance.StringFixed(2))
	assert.Equal(t, "250.00", stats.RevenueToday.StringFixed(2))
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return gormDB, mock
}

func TestLedger_PostChargeLocksFolioRow(t *testing.T) {
	gormDB, mock := newMockDB(t)
	ledger := NewGormLedger(gormDB, decimal.Zero)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "folios" WHERE id = $1 AND property_id = $2`) + `.*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "property_id", "folio_number", "status"}).
			AddRow(9, 1, "F-ABC", "closed"))
	mock.ExpectRollback()

	_, err := ledger.PostCharge(context.Background(), 1, 9, ChargeRequest{ItemType: "minibar", Quantity: 1, UnitPrice: dec("20")})

	assert.True(t, errors.Is(err, apperr.ErrFolioClosed))
	assert.Contains(t, err.Error(), "folio F-ABC is closed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
