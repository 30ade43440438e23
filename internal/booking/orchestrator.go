// Package booking creates reservations together with their folios and
// repairs reservations left without one.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"hotel-core-backend/internal/apperr"
	"hotel-core-backend/internal/folio"
	"hotel-core-backend/internal/model"
)

// LineRequest asks for one room of a type, optionally a specific one.
type LineRequest struct {
	RoomTypeID   int64            `json:"room_type_id" validate:"required,gt=0"`
	RoomID       *int64           `json:"room_id" validate:"omitempty,gt=0"`
	RatePerNight *decimal.Decimal `json:"rate_per_night"`
	Adults       int              `json:"adults" validate:"required,min=1"`
	Children     int              `json:"children" validate:"min=0"`
}

// Request is a booking as submitted by a caller.
type Request struct {
	PropertyID int64         `json:"-" validate:"required,gt=0"`
	GuestID    int64         `json:"guest_id" validate:"required,gt=0"`
	CheckIn    string        `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut   string        `json:"check_out" validate:"required,datetime=2006-01-02"`
	Lines      []LineRequest `json:"lines" validate:"required,min=1,dive"`
}

// Result pairs the new reservation with its folio. FolioPending is set when
// the folio could not be opened; reconciliation opens it later.
type Result struct {
	Reservation  *model.Reservation `json:"reservation"`
	Folio        *model.Folio       `json:"folio"`
	FolioPending bool               `json:"folio_pending"`
}

// RoomTypes resolves room types within a property.
type RoomTypes interface {
	GetRoomType(ctx context.Context, propertyID, id int64) (*model.RoomType, error)
}

// Availability answers the pre-submission room checks.
type Availability interface {
	FindAvailableRooms(ctx context.Context, propertyID, roomTypeID int64, r model.DateRange) ([]model.Room, error)
	IsRoomAvailable(ctx context.Context, propertyID, roomID int64, r model.DateRange, excludeReservationID int64) error
}

// Reservations persists reservations.
type Reservations interface {
	Create(ctx context.Context, res *model.Reservation) error
}

// FolioOpener opens the folio of a reservation, idempotently.
type FolioOpener interface {
	Open(ctx context.Context, req folio.OpenRequest) (*model.Folio, error)
}

// Orchestrator runs the booking saga: validate, check, create the
// reservation, open its folio.
type Orchestrator struct {
	validate     *validator.Validate
	types        RoomTypes
	availability Availability
	reservations Reservations
	folios       FolioOpener
}

// NewOrchestrator wires the booking saga.
func NewOrchestrator(types RoomTypes, availability Availability, reservations Reservations, folios FolioOpener) *Orchestrator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
	return &Orchestrator{
		validate:     v,
		types:        types,
		availability: availability,
		reservations: reservations,
		folios:       folios,
	}
}

// ValidateRequest checks the request shape and returns its stay.
func (o *Orchestrator) ValidateRequest(req Request) (model.DateRange, error) {
	const op = "booking.CreateReservation"
	if err := o.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := strings.TrimPrefix(fe.Namespace(), "Request.")
			return model.DateRange{}, apperr.Validation(op, "%s failed the %q rule", field, fe.Tag())
		}
		return model.DateRange{}, apperr.Validation(op, "%v", err)
	}
	return model.ParseDateRange(req.CheckIn, req.CheckOut)
}

// CreateReservation books every line or nothing. Rooms are checked here so
// the caller learns early which line failed; the reservation store checks
// them again inside its transaction. A folio that fails to open does not
// undo the reservation.
func (o *Orchestrator) CreateReservation(ctx context.Context, req Request) (*Result, error) {
	const op = "booking.CreateReservation"
	r, err := o.ValidateRequest(req)
	if err != nil {
		return nil, err
	}

	lines := make([]model.ReservationRoomLine, 0, len(req.Lines))
	for i, l := range req.Lines {
		rt, err := o.types.GetRoomType(ctx, req.PropertyID, l.RoomTypeID)
		if err != nil {
			return nil, apperr.Annotate(op, err, "line %d", i+1)
		}
		rate := rt.BaseRate
		if l.RatePerNight != nil {
			rate = *l.RatePerNight
		}
		if !rate.IsPositive() {
			return nil, apperr.Validation(op, "line %d: rate per night must be positive", i+1)
		}

		if l.RoomID != nil {
			if err := o.availability.IsRoomAvailable(ctx, req.PropertyID, *l.RoomID, r, 0); err != nil {
				return nil, apperr.Annotate(op, err, "line %d", i+1)
			}
		} else {
			free, err := o.availability.FindAvailableRooms(ctx, req.PropertyID, l.RoomTypeID, r)
			if err != nil {
				return nil, err
			}
			if len(free) == 0 {
				return nil, apperr.Conflict(op, apperr.ErrRoomUnavailable, "line %d: no %s room is available for %s", i+1, rt.Code, r)
			}
		}

		lines = append(lines, model.ReservationRoomLine{
			RoomTypeID:   l.RoomTypeID,
			RoomID:       l.RoomID,
			RatePerNight: rate,
			Adults:       l.Adults,
			Children:     l.Children,
		})
	}

	res := &model.Reservation{
		PropertyID:   req.PropertyID,
		GuestID:      req.GuestID,
		CheckInDate:  r.CheckIn,
		CheckOutDate: r.CheckOut,
		Lines:        lines,
	}
	if err := o.reservations.Create(ctx, res); err != nil {
		return nil, err
	}

	f, err := o.folios.Open(ctx, OpenRequestFor(res))
	if err != nil {
		trace := apperr.Consistency(op, err, "reservation %s was created without a folio", res.ConfirmationNumber)
		log.Printf("Warning: %v: %v", trace, err)
		return &Result{Reservation: res, FolioPending: true}, nil
	}
	return &Result{Reservation: res, Folio: f}, nil
}

// OpenRequestFor builds the folio request of a reservation.
func OpenRequestFor(res *model.Reservation) folio.OpenRequest {
	return folio.OpenRequest{
		PropertyID:    res.PropertyID,
		ReservationID: res.ID,
		GuestID:       res.GuestID,
		RoomCharge:    res.TotalAmount,
		Stay:          res.Range(),
	}
}

func (r *Result) String() string {
	if r.Folio == nil {
		return fmt.Sprintf("%s (folio pending)", r.Reservation.ConfirmationNumber)
	}
	return fmt.Sprintf("%s / %s", r.Reservation.ConfirmationNumber, r.Folio.FolioNumber)
}
