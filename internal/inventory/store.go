// Package inventory owns RoomType and Room records and their current status.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hotel-core-backend/internal/apperr"
	"hotel-core-backend/internal/model"
	"hotel-core-backend/internal/parse"
)

// Store defines the inventory operations used by property configuration and housekeeping.
type Store interface {
	CreateRoomType(ctx context.Context, rt *model.RoomType) error
	GetRoomType(ctx context.Context, propertyID, id int64) (*model.RoomType, error)
	CreateRoom(ctx context.Context, room *model.Room) error
	GetRoom(ctx context.Context, propertyID, id int64) (*model.Room, error)
	ListRooms(ctx context.Context, propertyID, roomTypeID int64) ([]model.Room, error)
	SetRoomStatus(ctx context.Context, propertyID, roomID int64, status model.RoomStatus) (*model.Room, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed inventory store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) CreateRoomType(ctx context.Context, rt *model.RoomType) error {
	const op = "inventory.CreateRoomType"
	rt.Name = strings.TrimSpace(rt.Name)
	rt.Code = strings.ToUpper(strings.TrimSpace(rt.Code))
	switch {
	case rt.PropertyID <= 0:
		return apperr.Validation(op, "property id is required")
	case rt.Name == "" || rt.Code == "":
		return apperr.Validation(op, "room type name and code are required")
	case rt.BaseRate.IsNegative():
		return apperr.Validation(op, "base rate must not be negative")
	case rt.MaxOccupancy < 1:
		return apperr.Validation(op, "max occupancy must be at least 1")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.RoomType{}).
			Where("property_id = ? AND code = ?", rt.PropertyID, rt.Code).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check room type code: %w", err)
		}
		if count > 0 {
			return apperr.Conflict(op, apperr.ErrAlreadyExists, "room type code %q already exists", rt.Code)
		}
		if err := tx.Create(rt).Error; err != nil {
			return fmt.Errorf("failed to create room type %q: %w", rt.Code, err)
		}
		return nil
	})
}

func (s *gormStore) GetRoomType(ctx context.Context, propertyID, id int64) (*model.RoomType, error) {
	return FindRoomType(s.db.WithContext(ctx), propertyID, id)
}

func (s *gormStore) CreateRoom(ctx context.Context, room *model.Room) error {
	const op = "inventory.CreateRoom"
	room.RoomNumber = strings.TrimSpace(room.RoomNumber)
	if room.RoomNumber == "" {
		return apperr.Validation(op, "room number is required")
	}
	if room.Status == "" {
		room.Status = model.RoomVacant
	}
	if !room.Status.Valid() {
		return apperr.Validation(op, "unknown room status %q", room.Status)
	}

	if parsed, err := parse.ParseRoomNumber(room.RoomNumber); err != nil {
		log.Printf("Warning: could not derive floor for room %q: %v", room.RoomNumber, err)
	} else {
		room.Wing = parsed.Wing
		room.Floor = parsed.Floor
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A room may only reference a type of its own property.
		if _, err := FindRoomType(tx, room.PropertyID, room.RoomTypeID); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&model.Room{}).
			Where("property_id = ? AND room_number = ?", room.PropertyID, room.RoomNumber).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check room number: %w", err)
		}
		if count > 0 {
			return apperr.Conflict(op, apperr.ErrAlreadyExists, "room %s already exists", room.RoomNumber)
		}
		if err := tx.Create(room).Error; err != nil {
			return fmt.Errorf("failed to create room %s: %w", room.RoomNumber, err)
		}
		return nil
	})
}

func (s *gormStore) GetRoom(ctx context.Context, propertyID, id int64) (*model.Room, error) {
	return FindRoom(s.db.WithContext(ctx), propertyID, id)
}

func (s *gormStore) ListRooms(ctx context.Context, propertyID, roomTypeID int64) ([]model.Room, error) {
	q := s.db.WithContext(ctx).Where("property_id = ?", propertyID)
	if roomTypeID > 0 {
		q = q.Where("room_type_id = ?", roomTypeID)
	}
	var rooms []model.Room
	if err := q.Order("room_number").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// SetRoomStatus is used by housekeeping and maintenance callers. Moving a
// room into occupied is reserved to check-in.
func (s *gormStore) SetRoomStatus(ctx context.Context, propertyID, roomID int64, status model.RoomStatus) (*model.Room, error) {
	const op = "inventory.SetRoomStatus"
	if !status.Valid() {
		return nil, apperr.Validation(op, "unknown room status %q", status)
	}
	if status == model.RoomOccupied {
		return nil, apperr.Validation(op, "rooms become occupied through check-in only")
	}

	var room *model.Room
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rooms, err := LockRooms(tx, propertyID, []int64{roomID})
		if err != nil {
			return err
		}
		room = rooms[roomID]
		if room == nil {
			return apperr.NotFound(op, "room %d not found", roomID)
		}
		if room.Status == model.RoomOccupied && status == model.RoomVacant {
			return apperr.Conflict(op, apperr.ErrRoomUnavailable, "room %s is occupied; check the guest out first", room.RoomNumber)
		}
		if err := SetStatus(tx, []int64{roomID}, status); err != nil {
			return err
		}
		room.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// FindRoomType loads a room type of the given property.
func FindRoomType(db *gorm.DB, propertyID, id int64) (*model.RoomType, error) {
	var rt model.RoomType
	err := db.Where("id = ? AND property_id = ?", id, propertyID).First(&rt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("inventory.FindRoomType", "room type %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room type %d: %w", id, err)
	}
	return &rt, nil
}

// FindRoom loads a room of the given property.
func FindRoom(db *gorm.DB, propertyID, id int64) (*model.Room, error) {
	var room model.Room
	err := db.Where("id = ? AND property_id = ?", id, propertyID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("inventory.FindRoom", "room %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room %d: %w", id, err)
	}
	return &room, nil
}

// LockRooms loads the given rooms of the property inside tx with a row lock
// (ignored by SQLite). Ids outside the property are absent from the result.
func LockRooms(tx *gorm.DB, propertyID int64, ids []int64) (map[int64]*model.Room, error) {
	rooms := make(map[int64]*model.Room, len(ids))
	if len(ids) == 0 {
		return rooms, nil
	}
	var found []model.Room
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ? AND property_id = ?", ids, propertyID).
		Order("id").
		Find(&found).Error; err != nil {
		return nil, fmt.Errorf("failed to lock rooms: %w", err)
	}
	for i := range found {
		rooms[found[i].ID] = &found[i]
	}
	return rooms, nil
}

// LockRoomTypes takes a row lock on room types so that capacity checks for
// unassigned lines of the same type run one at a time.
func LockRoomTypes(tx *gorm.DB, propertyID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	var types []model.RoomType
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ? AND property_id = ?", ids, propertyID).
		Order("id").
		Find(&types).Error; err != nil {
		return fmt.Errorf("failed to lock room types: %w", err)
	}
	return nil
}

// SetStatus writes a new status on the given rooms inside tx.
func SetStatus(tx *gorm.DB, ids []int64, status model.RoomStatus) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Model(&model.Room{}).Where("id IN ?", ids).Update("status", status).Error; err != nil {
		return fmt.Errorf("failed to set rooms %v to %s: %w", ids, status, err)
	}
	return nil
}
