// Package availability answers which rooms can take a stay over a date range.
package availability

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"hotel-core-backend/internal/apperr"
	"hotel-core-backend/internal/inventory"
	"hotel-core-backend/internal/model"
)

// Checker finds rooms with no overlapping active assignment.
type Checker struct {
	db *gorm.DB
}

// NewChecker creates a Checker reading through db.
func NewChecker(db *gorm.DB) *Checker {
	return &Checker{db: db}
}

// FindAvailableRooms returns the active rooms of the type whose status is
// vacant or dirty and which no confirmed or checked-in stay claims for an
// overlapping range. Zero availability is an empty slice, not an error.
func (c *Checker) FindAvailableRooms(ctx context.Context, propertyID, roomTypeID int64, r model.DateRange) ([]model.Room, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return FindAvailable(c.db.WithContext(ctx), propertyID, roomTypeID, r)
}

// FindAvailable is FindAvailableRooms on an explicit handle, so it can run
// inside a caller's transaction.
func FindAvailable(db *gorm.DB, propertyID, roomTypeID int64, r model.DateRange) ([]model.Room, error) {
	var candidates []model.Room
	if err := db.Where("property_id = ? AND room_type_id = ? AND active = ? AND status IN ?",
		propertyID, roomTypeID, true, model.AssignableRoomStatuses).
		Order("room_number").
		Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to load candidate rooms: %w", err)
	}
	if len(candidates) == 0 {
		return []model.Room{}, nil
	}

	claimed, err := ClaimedRoomIDs(db, propertyID, r, 0)
	if err != nil {
		return nil, err
	}

	rooms := make([]model.Room, 0, len(candidates))
	for _, room := range candidates {
		if !claimed[room.ID] {
			rooms = append(rooms, room)
		}
	}
	return rooms, nil
}

// ClaimedRoomIDs returns the rooms referenced by lines of active
// reservations whose range intersects r under half-open semantics
// (check_in < r.CheckOut AND r.CheckIn < check_out). A non-zero
// excludeReservationID leaves that reservation's own claims out.
func ClaimedRoomIDs(db *gorm.DB, propertyID int64, r model.DateRange, excludeReservationID int64) (map[int64]bool, error) {
	q := db.Model(&model.ReservationRoomLine{}).
		Joins("JOIN reservations ON reservations.id = reservation_room_lines.reservation_id").
		Where("reservation_room_lines.room_id IS NOT NULL").
		Where("reservations.property_id = ? AND reservations.status IN ?", propertyID, model.ActiveReservationStatuses).
		Where("reservations.check_in_date < ? AND reservations.check_out_date > ?", r.CheckOut, r.CheckIn)
	if excludeReservationID > 0 {
		q = q.Where("reservations.id <> ?", excludeReservationID)
	}

	var ids []int64
	if err := q.Pluck("reservation_room_lines.room_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load claimed rooms: %w", err)
	}
	claimed := make(map[int64]bool, len(ids))
	for _, id := range ids {
		claimed[id] = true
	}
	return claimed, nil
}

// UnassignedDemand counts lines of the room type that belong to active
// reservations overlapping r and have no room yet. Each of them will need
// a room of the type at check-in.
func UnassignedDemand(db *gorm.DB, propertyID, roomTypeID int64, r model.DateRange, excludeReservationID int64) (int, error) {
	q := db.Model(&model.ReservationRoomLine{}).
		Joins("JOIN reservations ON reservations.id = reservation_room_lines.reservation_id").
		Where("reservation_room_lines.room_id IS NULL AND reservation_room_lines.room_type_id = ?", roomTypeID).
		Where("reservations.property_id = ? AND reservations.status IN ?", propertyID, model.ActiveReservationStatuses).
		Where("reservations.check_in_date < ? AND reservations.check_out_date > ?", r.CheckOut, r.CheckIn)
	if excludeReservationID > 0 {
		q = q.Where("reservations.id <> ?", excludeReservationID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count unassigned demand: %w", err)
	}
	return int(count), nil
}

// CheckRoom verifies that room can take the stay r: it must be active, in an
// assignable status (unless skipStatus, used when the stay already occupies
// it), and unclaimed by any other active reservation over r.
func CheckRoom(db *gorm.DB, room *model.Room, r model.DateRange, excludeReservationID int64, skipStatus bool) error {
	const op = "availability.CheckRoom"
	if !room.Active {
		return apperr.Conflict(op, apperr.ErrRoomUnavailable, "room %s is inactive", room.RoomNumber)
	}
	if !skipStatus && !room.Status.Assignable() {
		return apperr.Conflict(op, apperr.ErrRoomUnavailable, "room %s is %s", room.RoomNumber, room.Status)
	}
	claimed, err := ClaimedRoomIDs(db, room.PropertyID, r, excludeReservationID)
	if err != nil {
		return err
	}
	if claimed[room.ID] {
		return apperr.Conflict(op, apperr.ErrRoomUnavailable, "room %s is already booked for %s", room.RoomNumber, r)
	}
	return nil
}

// CheckRoomByID loads the room within the property and applies CheckRoom.
func CheckRoomByID(db *gorm.DB, propertyID, roomID int64, r model.DateRange, excludeReservationID int64) (*model.Room, error) {
	room, err := inventory.FindRoom(db, propertyID, roomID)
	if err != nil {
		return nil, err
	}
	return room, CheckRoom(db, room, r, excludeReservationID, false)
}

// IsRoomAvailable reports through its error whether the room can take the
// stay r, leaving out excludeReservationID's own claims.
func (c *Checker) IsRoomAvailable(ctx context.Context, propertyID, roomID int64, r model.DateRange, excludeReservationID int64) error {
	if err := r.Validate(); err != nil {
		return err
	}
	_, err := CheckRoomByID(c.db.WithContext(ctx), propertyID, roomID, r, excludeReservationID)
	return err
}
