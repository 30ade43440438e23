// Package reservation owns reservations, their room lines and their status machine.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hotel-core-backend/internal/apperr"
	"hotel-core-backend/internal/availability"
	"hotel-core-backend/internal/inventory"
	"hotel-core-backend/internal/keylock"
	"hotel-core-backend/internal/model"
)

// Assignment puts a room on a reservation line.
type Assignment struct {
	LineID int64 `json:"line_id" binding:"required"`
	RoomID int64 `json:"room_id" binding:"required"`
}

// TransitionOptions carries the inputs some transitions need.
type TransitionOptions struct {
	Assignments []Assignment
	Reason      string
}

// Amendment is the outcome of a date change.
type Amendment struct {
	Reservation   *model.Reservation `json:"reservation"`
	PreviousTotal decimal.Decimal    `json:"previous_total"`
	Delta         decimal.Decimal    `json:"delta"`
}

// AmendHook runs inside the amendment's transaction, after the new dates
// and total are written. An error rolls the amendment back. The hook must
// use tx for every statement.
type AmendHook func(tx *gorm.DB, a *Amendment) error

// Stats are the front-desk counters for one day.
type Stats struct {
	Arrivals   int64 `json:"arrivals"`
	Departures int64 `json:"departures"`
	InHouse    int64 `json:"in_house"`
	Upcoming   int64 `json:"upcoming"`
}

// Store defines the reservation operations.
type Store interface {
	Create(ctx context.Context, res *model.Reservation) error
	Get(ctx context.Context, propertyID, id int64) (*model.Reservation, error)
	GetByConfirmation(ctx context.Context, propertyID int64, number string) (*model.Reservation, error)
	List(ctx context.Context, propertyID int64, status model.ReservationStatus) ([]model.Reservation, error)
	Transition(ctx context.Context, propertyID, id int64, to model.ReservationStatus, opts TransitionOptions) (*model.Reservation, error)
	Cancel(ctx context.Context, propertyID, id int64, reason string) (*model.Reservation, error)
	MarkNoShow(ctx context.Context, propertyID, id int64) (*model.Reservation, error)
	Amend(ctx context.Context, propertyID, id int64, r model.DateRange, within AmendHook) (*Amendment, error)
	Stats(ctx context.Context, propertyID int64, today time.Time) (Stats, error)
	Orphans(ctx context.Context, limit int) ([]model.Reservation, error)
}

// gormStore implements the Store interface using GORM. Room and room type
// claims are serialized in-process by key and across processes by row locks.
type gormStore struct {
	db    *gorm.DB
	rooms *keylock.Locker
	types *keylock.Locker
	now   func() time.Time
}

// NewGormStore creates a new GORM-backed reservation store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{
		db:    db,
		rooms: keylock.New(),
		types: keylock.New(),
		now:   time.Now,
	}
}

// Total is the sum over lines of rate per night times nights.
func Total(lines []model.ReservationRoomLine, nights int) decimal.Decimal {
	total := decimal.Zero
	n := decimal.NewFromInt(int64(nights))
	for _, l := range lines {
		total = total.Add(l.RatePerNight.Mul(n))
	}
	return total
}

func newConfirmationNumber() string {
	return "RSV-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func validateNew(res *model.Reservation) error {
	const op = "reservation.Create"
	if res.PropertyID <= 0 {
		return apperr.Validation(op, "property id is required")
	}
	if res.GuestID <= 0 {
		return apperr.Validation(op, "guest id is required")
	}
	if err := res.Range().Validate(); err != nil {
		return err
	}
	if len(res.Lines) == 0 {
		return apperr.Validation(op, "at least one room line is required")
	}
	for i, l := range res.Lines {
		if l.RoomTypeID <= 0 {
			return apperr.Validation(op, "line %d: room type is required", i+1)
		}
		if !l.RatePerNight.IsPositive() {
			return apperr.Validation(op, "line %d: rate per night must be positive", i+1)
		}
		if l.Adults < 1 || l.Children < 0 {
			return apperr.Validation(op, "line %d: at least one adult is required", i+1)
		}
	}
	return nil
}

func lineKeys(lines []model.ReservationRoomLine) (roomIDs, typeIDs []int64) {
	for _, l := range lines {
		typeIDs = append(typeIDs, l.RoomTypeID)
		if l.RoomID != nil {
			roomIDs = append(roomIDs, *l.RoomID)
		}
	}
	return roomIDs, typeIDs
}

// lock takes type keys before room keys; every caller uses that order.
func (s *gormStore) lock(roomIDs, typeIDs []int64) func() {
	unlockTypes := s.types.Lock(typeIDs...)
	unlockRooms := s.rooms.Lock(roomIDs...)
	return func() {
		unlockRooms()
		unlockTypes()
	}
}

// Create validates the reservation and inserts it with its lines. Every
// pre-assigned room is re-checked inside the transaction; on any failure
// nothing is written and the error names the offending line.
func (s *gormStore) Create(ctx context.Context, res *model.Reservation) error {
	const op = "reservation.Create"
	if err := validateNew(res); err != nil {
		return err
	}
	r := res.Range()
	res.ID = 0
	res.CheckInDate, res.CheckOutDate = r.CheckIn, r.CheckOut
	res.Status = model.ReservationConfirmed
	res.TotalAmount = Total(res.Lines, r.Nights())
	for i := range res.Lines {
		res.Lines[i].ID = 0
		res.Lines[i].ReservationID = 0
	}

	unlock := s.lock(lineKeys(res.Lines))
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkLines(tx, op, res.PropertyID, res.Lines, r, 0, false); err != nil {
			return err
		}
		res.ConfirmationNumber = newConfirmationNumber()
		if err := tx.Create(res).Error; err != nil {
			return fmt.Errorf("failed to insert reservation: %w", err)
		}
		return nil
	})
}

// checkLines validates lines against inventory and current claims inside
// tx, then checks that the request leaves enough rooms for every unassigned
// stay of the same types.
func checkLines(tx *gorm.DB, op string, propertyID int64, lines []model.ReservationRoomLine, r model.DateRange, excludeReservationID int64, skipStatus bool) error {
	types, err := checkRooms(tx, op, propertyID, lines, r, excludeReservationID, skipStatus)
	if err != nil {
		return err
	}
	return checkCapacity(tx, op, propertyID, lines, types, r, excludeReservationID)
}

// checkRooms validates each line on its own. Rooms and room types are
// row-locked first, in id order.
func checkRooms(tx *gorm.DB, op string, propertyID int64, lines []model.ReservationRoomLine, r model.DateRange, excludeReservationID int64, skipStatus bool) (map[int64]*model.RoomType, error) {
	roomIDs, typeIDs := lineKeys(lines)
	if err := inventory.LockRoomTypes(tx, propertyID, typeIDs); err != nil {
		return nil, err
	}
	rooms, err := inventory.LockRooms(tx, propertyID, roomIDs)
	if err != nil {
		return nil, err
	}

	types := make(map[int64]*model.RoomType)
	roomLine := make(map[int64]int)
	for i, l := range lines {
		rt, ok := types[l.RoomTypeID]
		if !ok {
			rt, err = inventory.FindRoomType(tx, propertyID, l.RoomTypeID)
			if err != nil {
				return nil, lineError(op, i, err)
			}
			types[l.RoomTypeID] = rt
		}
		if !rt.Active {
			return nil, apperr.Validation(op, "line %d: room type %s is not sold", i+1, rt.Code)
		}
		if guests := l.Adults + l.Children; guests > rt.MaxOccupancy {
			return nil, apperr.Validation(op, "line %d: %d guests exceed the %s maximum of %d", i+1, guests, rt.Code, rt.MaxOccupancy)
		}
		if l.RoomID == nil {
			continue
		}

		room := rooms[*l.RoomID]
		if room == nil {
			return nil, apperr.Validation(op, "line %d: room %d does not belong to this property", i+1, *l.RoomID)
		}
		if prev, dup := roomLine[room.ID]; dup {
			return nil, apperr.Validation(op, "lines %d and %d both request room %s", prev+1, i+1, room.RoomNumber)
		}
		roomLine[room.ID] = i
		if room.RoomTypeID != l.RoomTypeID {
			return nil, apperr.Validation(op, "line %d: room %s is not a %s room", i+1, room.RoomNumber, rt.Code)
		}
		if err := availability.CheckRoom(tx, room, r, excludeReservationID, skipStatus); err != nil {
			return nil, lineError(op, i, err)
		}
	}
	return types, nil
}

// checkCapacity counts, per room type, the free rooms left once the
// request's own assigned rooms and the unassigned stays of other
// reservations are taken out. That count must cover the request's
// unassigned lines.
func checkCapacity(tx *gorm.DB, op string, propertyID int64, lines []model.ReservationRoomLine, types map[int64]*model.RoomType, r model.DateRange, excludeReservationID int64) error {
	wanted := make(map[int64]int)
	requested := make(map[int64]bool)
	for _, l := range lines {
		if l.RoomID == nil {
			wanted[l.RoomTypeID]++
		} else {
			requested[*l.RoomID] = true
		}
	}

	for typeID, rt := range types {
		free, err := availability.FindAvailable(tx, propertyID, typeID, r)
		if err != nil {
			return err
		}
		left, consumed := 0, false
		for _, room := range free {
			if requested[room.ID] {
				consumed = true
				continue
			}
			left++
		}
		if wanted[typeID] == 0 && !consumed {
			continue
		}

		pending, err := availability.UnassignedDemand(tx, propertyID, typeID, r, excludeReservationID)
		if err != nil {
			return err
		}
		left -= pending
		if left >= wanted[typeID] {
			continue
		}
		if wanted[typeID] == 0 {
			return apperr.Conflict(op, apperr.ErrRoomUnavailable,
				"the remaining %s rooms for %s are held for stays without a room yet", rt.Code, r)
		}
		if left < 0 {
			left = 0
		}
		return apperr.Conflict(op, apperr.ErrRoomUnavailable,
			"only %d %s room(s) left for %s, %d requested", left, rt.Code, r, wanted[typeID])
	}
	return nil
}

// lineError prefixes err's message with the 1-based line number.
func lineError(op string, idx int, err error) error {
	return apperr.Annotate(op, err, "line %d", idx+1)
}

func (s *gormStore) Get(ctx context.Context, propertyID, id int64) (*model.Reservation, error) {
	var res model.Reservation
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("id = ? AND property_id = ?", id, propertyID).
		First(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("reservation.Get", "reservation %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reservation %d: %w", id, err)
	}
	return &res, nil
}

func (s *gormStore) GetByConfirmation(ctx context.Context, propertyID int64, number string) (*model.Reservation, error) {
	var res model.Reservation
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("confirmation_number = ? AND property_id = ?", number, propertyID).
		First(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("reservation.GetByConfirmation", "reservation %s not found", number)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reservation %s: %w", number, err)
	}
	return &res, nil
}

func (s *gormStore) List(ctx context.Context, propertyID int64, status model.ReservationStatus) ([]model.Reservation, error) {
	q := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("property_id = ?", propertyID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var list []model.Reservation
	if err := q.Order("check_in_date, id").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return list, nil
}

// lockReservation loads the reservation with a row lock, then its lines.
func lockReservation(tx *gorm.DB, propertyID, id int64) (*model.Reservation, error) {
	var res model.Reservation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND property_id = ?", id, propertyID).
		First(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("reservation.lock", "reservation %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock reservation %d: %w", id, err)
	}
	if err := tx.Where("reservation_id = ?", id).Order("id").Find(&res.Lines).Error; err != nil {
		return nil, fmt.Errorf("failed to load lines of reservation %d: %w", id, err)
	}
	return &res, nil
}

// Transition moves the reservation through its status machine. Moving to
// checked_in applies the assignments, re-validates every room at this point
// of commitment and marks the rooms occupied; moving to checked_out marks
// them dirty. A rejected transition writes nothing.
func (s *gormStore) Transition(ctx context.Context, propertyID, id int64, to model.ReservationStatus, opts TransitionOptions) (*model.Reservation, error) {
	const op = "reservation.Transition"
	current, err := s.Get(ctx, propertyID, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(op, current, to); err != nil {
		return nil, err
	}

	roomIDs, typeIDs := lineKeys(current.Lines)
	for _, a := range opts.Assignments {
		roomIDs = append(roomIDs, a.RoomID)
	}
	unlock := s.lock(roomIDs, typeIDs)
	defer unlock()

	var out *model.Reservation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := lockReservation(tx, propertyID, id)
		if err != nil {
			return err
		}
		if err := checkTransition(op, res, to); err != nil {
			return err
		}

		now := s.now().UTC()
		updates := map[string]any{"status": to, "updated_at": now}
		switch to {
		case model.ReservationCheckedIn:
			if err := applyCheckIn(tx, op, res, opts.Assignments); err != nil {
				return err
			}
			updates["checked_in_at"] = now
			res.CheckedInAt = &now
		case model.ReservationCheckedOut:
			if err := inventory.SetStatus(tx, res.AssignedRoomIDs(), model.RoomDirty); err != nil {
				return err
			}
			updates["checked_out_at"] = now
			res.CheckedOutAt = &now
		case model.ReservationCancelled:
			updates["cancelled_at"] = now
			updates["cancel_reason"] = strings.TrimSpace(opts.Reason)
			res.CancelledAt = &now
			res.CancelReason = strings.TrimSpace(opts.Reason)
		}

		if err := tx.Model(&model.Reservation{}).Where("id = ?", res.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update reservation %d: %w", res.ID, err)
		}
		res.Status = to
		res.UpdatedAt = now
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel records the reason and releases the reservation's rooms.
func (s *gormStore) Cancel(ctx context.Context, propertyID, id int64, reason string) (*model.Reservation, error) {
	return s.Transition(ctx, propertyID, id, model.ReservationCancelled, TransitionOptions{Reason: reason})
}

func (s *gormStore) MarkNoShow(ctx context.Context, propertyID, id int64) (*model.Reservation, error) {
	return s.Transition(ctx, propertyID, id, model.ReservationNoShow, TransitionOptions{})
}

// applyCheckIn sets room_id on unassigned lines from the assignments,
// re-validates every room and marks them occupied.
func applyCheckIn(tx *gorm.DB, op string, res *model.Reservation, assignments []Assignment) error {
	byLine := make(map[int64]int64, len(assignments))
	for _, a := range assignments {
		if a.LineID <= 0 || a.RoomID <= 0 {
			return apperr.Validation(op, "assignments need both a line id and a room id")
		}
		if _, dup := byLine[a.LineID]; dup {
			return apperr.Validation(op, "line %d is assigned more than once", a.LineID)
		}
		byLine[a.LineID] = a.RoomID
	}
	known := make(map[int64]bool, len(res.Lines))
	for _, l := range res.Lines {
		known[l.ID] = true
	}
	for lineID := range byLine {
		if !known[lineID] {
			return apperr.Validation(op, "line %d does not belong to reservation %s", lineID, res.ConfirmationNumber)
		}
	}

	var newlyAssigned []int
	for i := range res.Lines {
		l := &res.Lines[i]
		roomID, given := byLine[l.ID]
		if l.RoomID != nil {
			if given && roomID != *l.RoomID {
				return apperr.Validation(op, "line %d already holds room %d", i+1, *l.RoomID)
			}
			continue
		}
		if !given {
			return apperr.Validation(op, "line %d has no room; assign one before check-in", i+1)
		}
		l.RoomID = &roomID
		newlyAssigned = append(newlyAssigned, i)
	}

	if _, err := checkRooms(tx, op, res.PropertyID, res.Lines, res.Range(), res.ID, false); err != nil {
		return err
	}

	for _, i := range newlyAssigned {
		l := res.Lines[i]
		if err := tx.Model(&model.ReservationRoomLine{}).Where("id = ?", l.ID).Update("room_id", *l.RoomID).Error; err != nil {
			return fmt.Errorf("failed to assign room to line %d: %w", l.ID, err)
		}
	}
	return inventory.SetStatus(tx, res.AssignedRoomIDs(), model.RoomOccupied)
}

// Amend changes the stay dates of a confirmed or checked-in reservation.
// Assigned rooms are re-validated against every other reservation and the
// total is recomputed from the line rates. within, when set, commits or
// rolls back together with the new dates.
func (s *gormStore) Amend(ctx context.Context, propertyID, id int64, r model.DateRange, within AmendHook) (*Amendment, error) {
	const op = "reservation.Amend"
	r = model.NewDateRange(r.CheckIn, r.CheckOut)
	if err := r.Validate(); err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, propertyID, id)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(lineKeys(current.Lines))
	defer unlock()

	var out *Amendment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := lockReservation(tx, propertyID, id)
		if err != nil {
			return err
		}
		if !res.Status.Active() {
			return apperr.Conflict(op, apperr.ErrInvalidStateTransition,
				"reservation %s is %s and can no longer be amended", res.ConfirmationNumber, res.Status)
		}
		checkedIn := res.Status == model.ReservationCheckedIn
		if checkedIn && !r.CheckIn.Equal(model.Day(res.CheckInDate)) {
			return apperr.Validation(op, "the arrival date of a checked-in stay cannot change")
		}
		if err := checkLines(tx, op, propertyID, res.Lines, r, res.ID, checkedIn); err != nil {
			return err
		}

		previous := res.TotalAmount
		total := Total(res.Lines, r.Nights())
		now := s.now().UTC()
		if err := tx.Model(&model.Reservation{}).Where("id = ?", res.ID).Updates(map[string]any{
			"check_in_date":  r.CheckIn,
			"check_out_date": r.CheckOut,
			"total_amount":   total,
			"updated_at":     now,
		}).Error; err != nil {
			return fmt.Errorf("failed to amend reservation %d: %w", res.ID, err)
		}
		res.CheckInDate, res.CheckOutDate = r.CheckIn, r.CheckOut
		res.TotalAmount = total
		res.UpdatedAt = now
		amendment := &Amendment{Reservation: res, PreviousTotal: previous, Delta: total.Sub(previous)}
		if within != nil {
			if err := within(tx, amendment); err != nil {
				return err
			}
		}
		out = amendment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) Stats(ctx context.Context, propertyID int64, today time.Time) (Stats, error) {
	day := model.Day(today)
	var stats Stats
	counters := []struct {
		dst   *int64
		query string
		args  []any
	}{
		{&stats.Arrivals, "status = ? AND check_in_date = ?", []any{model.ReservationConfirmed, day}},
		{&stats.Departures, "status = ? AND check_out_date = ?", []any{model.ReservationCheckedIn, day}},
		{&stats.InHouse, "status = ?", []any{model.ReservationCheckedIn}},
		{&stats.Upcoming, "status = ? AND check_in_date > ?", []any{model.ReservationConfirmed, day}},
	}
	for _, c := range counters {
		if err := s.db.WithContext(ctx).Model(&model.Reservation{}).
			Where("property_id = ?", propertyID).
			Where(c.query, c.args...).
			Count(c.dst).Error; err != nil {
			return Stats{}, fmt.Errorf("failed to count reservations: %w", err)
		}
	}
	return stats, nil
}

// Orphans returns reservations that have no folio, oldest first.
func (s *gormStore) Orphans(ctx context.Context, limit int) ([]model.Reservation, error) {
	var list []model.Reservation
	if err := s.db.WithContext(ctx).
		Where("NOT EXISTS (SELECT 1 FROM folios WHERE folios.reservation_id = reservations.id)").
		Order("id").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to find reservations without folio: %w", err)
	}
	return list, nil
}
