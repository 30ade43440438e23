package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoomStatus is the housekeeping/occupancy state of a physical room.
type RoomStatus string

const (
	RoomVacant      RoomStatus = "vacant"
	RoomOccupied    RoomStatus = "occupied"
	RoomDirty       RoomStatus = "dirty"
	RoomMaintenance RoomStatus = "maintenance"
	RoomOutOfOrder  RoomStatus = "out_of_order"
)

// Valid reports whether s is a known room status.
func (s RoomStatus) Valid() bool {
	switch s {
	case RoomVacant, RoomOccupied, RoomDirty, RoomMaintenance, RoomOutOfOrder:
		return true
	}
	return false
}

// Assignable reports whether a room in this status may take a new stay.
// Maintenance and out-of-order rooms never qualify, whatever the dates.
func (s RoomStatus) Assignable() bool {
	return s == RoomVacant || s == RoomDirty
}

// AssignableRoomStatuses lists the statuses accepted by availability searches.
var AssignableRoomStatuses = []RoomStatus{RoomVacant, RoomDirty}

// RoomType is a sellable category of rooms.
type RoomType struct {
	ID           int64           `gorm:"primaryKey" json:"id"`
	PropertyID   int64           `gorm:"not null;uniqueIndex:idx_room_types_property_code,priority:1" json:"property_id"`
	Name         string          `gorm:"size:128;not null" json:"name"`
	Code         string          `gorm:"size:32;not null;uniqueIndex:idx_room_types_property_code,priority:2" json:"code"`
	BaseRate     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"base_rate"`
	MaxOccupancy int             `gorm:"not null" json:"max_occupancy"`
	Active       bool            `gorm:"not null" json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Room is a physical room of a property.
type Room struct {
	ID         int64      `gorm:"primaryKey" json:"id"`
	PropertyID int64      `gorm:"not null;uniqueIndex:idx_rooms_property_number,priority:1" json:"property_id"`
	RoomTypeID int64      `gorm:"not null;index" json:"room_type_id"`
	RoomNumber string     `gorm:"size:32;not null;uniqueIndex:idx_rooms_property_number,priority:2" json:"room_number"`
	Wing       string     `gorm:"size:16" json:"wing,omitempty"`
	Floor      int        `json:"floor"`
	Status     RoomStatus `gorm:"size:16;not null;index" json:"status"`
	Active     bool       `gorm:"not null" json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
