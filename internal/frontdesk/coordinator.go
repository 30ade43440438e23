// Package frontdesk drives arrivals, departures and stay changes.
package frontdesk

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"hotel-core-backend/internal/model"
	"hotel-core-backend/internal/reservation"
)

// RoomNotifier is told about rooms that need cleaning.
type RoomNotifier interface {
	Dispatch(roomID int64)
}

// Folios is the part of the ledger the front desk touches.
type Folios interface {
	AdjustStay(tx *gorm.DB, propertyID, reservationID int64, delta decimal.Decimal, description string) (*model.Folio, error)
}

// Coordinator sequences the reservation transitions with their side effects.
type Coordinator struct {
	reservations reservation.Store
	folios       Folios
	notifier     RoomNotifier
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(reservations reservation.Store, folios Folios, notifier RoomNotifier) *Coordinator {
	return &Coordinator{reservations: reservations, folios: folios, notifier: notifier}
}

// CheckIn assigns rooms to unassigned lines, re-validates every room and
// marks them occupied, all in one transaction.
func (c *Coordinator) CheckIn(ctx context.Context, propertyID, reservationID int64, assignments []reservation.Assignment) (*model.Reservation, error) {
	res, err := c.reservations.Transition(ctx, propertyID, reservationID, model.ReservationCheckedIn,
		reservation.TransitionOptions{Assignments: assignments})
	if err != nil {
		return nil, err
	}
	log.Printf("Reservation %s checked in to %d room(s)", res.ConfirmationNumber, len(res.AssignedRoomIDs()))
	return res, nil
}

// CheckOut ends the stay and marks its rooms dirty, then asks housekeeping
// to clean them. The folio is left as it is.
func (c *Coordinator) CheckOut(ctx context.Context, propertyID, reservationID int64) (*model.Reservation, error) {
	res, err := c.reservations.Transition(ctx, propertyID, reservationID, model.ReservationCheckedOut, reservation.TransitionOptions{})
	if err != nil {
		return nil, err
	}
	for _, roomID := range res.AssignedRoomIDs() {
		c.notifier.Dispatch(roomID)
	}
	log.Printf("Reservation %s checked out", res.ConfirmationNumber)
	return res, nil
}

func (c *Coordinator) Cancel(ctx context.Context, propertyID, reservationID int64, reason string) (*model.Reservation, error) {
	return c.reservations.Cancel(ctx, propertyID, reservationID, reason)
}

func (c *Coordinator) NoShow(ctx context.Context, propertyID, reservationID int64) (*model.Reservation, error) {
	return c.reservations.MarkNoShow(ctx, propertyID, reservationID)
}

// Amend moves the stay dates and posts the price difference on the folio
// in the same transaction. A closed folio rolls the change back.
func (c *Coordinator) Amend(ctx context.Context, propertyID, reservationID int64, r model.DateRange) (*reservation.Amendment, error) {
	return c.reservations.Amend(ctx, propertyID, reservationID, r, func(tx *gorm.DB, a *reservation.Amendment) error {
		desc := fmt.Sprintf("Stay changed to %s", a.Reservation.Range())
		_, err := c.folios.AdjustStay(tx, propertyID, reservationID, a.Delta, desc)
		return err
	})
}
