package reservation

import (
	"hotel-core-backend/internal/apperr"
	"hotel-core-backend/internal/model"
)

// transitions lists every allowed move. Statuses without an entry are terminal.
var transitions = map[model.ReservationStatus][]model.ReservationStatus{
	model.ReservationConfirmed: {model.ReservationCheckedIn, model.ReservationCancelled, model.ReservationNoShow},
	model.ReservationCheckedIn: {model.ReservationCheckedOut},
}

// CanTransition reports whether a reservation may move from one status to another.
func CanTransition(from, to model.ReservationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(op string, res *model.Reservation, to model.ReservationStatus) error {
	if CanTransition(res.Status, to) {
		return nil
	}
	return apperr.Conflict(op, apperr.ErrInvalidStateTransition,
		"reservation %s cannot move from %s to %s", res.ConfirmationNumber, res.Status, to)
}
