package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus is a state of the reservation lifecycle.
type ReservationStatus string

const (
	ReservationConfirmed  ReservationStatus = "confirmed"
	ReservationCheckedIn  ReservationStatus = "checked_in"
	ReservationCheckedOut ReservationStatus = "checked_out"
	ReservationCancelled  ReservationStatus = "cancelled"
	ReservationNoShow     ReservationStatus = "no_show"
)

// ActiveReservationStatuses hold an exclusive claim on their assigned rooms.
var ActiveReservationStatuses = []ReservationStatus{ReservationConfirmed, ReservationCheckedIn}

// Active reports whether the reservation still claims its rooms.
func (s ReservationStatus) Active() bool {
	return s == ReservationConfirmed || s == ReservationCheckedIn
}

// Terminal reports whether no further transition is possible.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationCheckedOut || s == ReservationCancelled || s == ReservationNoShow
}

// Reservation is a booked stay, possibly covering several rooms.
type Reservation struct {
	ID                 int64             `gorm:"primaryKey" json:"id"`
	PropertyID         int64             `gorm:"not null;uniqueIndex:idx_reservations_property_confirmation,priority:1;index:idx_reservations_property_status,priority:1" json:"property_id"`
	GuestID            int64             `gorm:"not null;index" json:"guest_id"`
	ConfirmationNumber string            `gorm:"size:32;not null;uniqueIndex:idx_reservations_property_confirmation,priority:2" json:"confirmation_number"`
	CheckInDate        time.Time         `gorm:"type:date;not null;index" json:"check_in_date"`
	CheckOutDate       time.Time         `gorm:"type:date;not null;index" json:"check_out_date"`
	Status             ReservationStatus `gorm:"size:16;not null;index:idx_reservations_property_status,priority:2" json:"status"`
	TotalAmount        decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	CheckedInAt        *time.Time        `json:"checked_in_at,omitempty"`
	CheckedOutAt       *time.Time        `json:"checked_out_at,omitempty"`
	CancelledAt        *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason       string            `gorm:"size:255" json:"cancel_reason,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`

	// Associations
	Lines []ReservationRoomLine `gorm:"foreignKey:ReservationID;constraint:OnDelete:CASCADE" json:"lines"`
}

// Range returns the stay's half-open date range.
func (r *Reservation) Range() DateRange {
	return NewDateRange(r.CheckInDate, r.CheckOutDate)
}

// AssignedRoomIDs returns the rooms claimed by the reservation's lines.
func (r *Reservation) AssignedRoomIDs() []int64 {
	var ids []int64
	for _, l := range r.Lines {
		if l.RoomID != nil {
			ids = append(ids, *l.RoomID)
		}
	}
	return ids
}

// ReservationRoomLine is one room commitment within a reservation.
type ReservationRoomLine struct {
	ID            int64           `gorm:"primaryKey" json:"id"`
	ReservationID int64           `gorm:"not null;index" json:"reservation_id"`
	RoomTypeID    int64           `gorm:"not null;index" json:"room_type_id"`
	RoomID        *int64          `gorm:"index" json:"room_id"`
	RatePerNight  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"rate_per_night"`
	Adults        int             `gorm:"not null" json:"adults"`
	Children      int             `gorm:"not null" json:"children"`
}
