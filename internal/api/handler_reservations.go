package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"hotel-core-backend/internal/booking"
	"hotel-core-backend/internal/model"
	"hotel-core-backend/internal/reservation"
)

// CreateReservation handles POST /api/reservations.
func (h *Handler) CreateReservation(c *gin.Context) {
	var req booking.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	req.PropertyID = propertyID(c)

	result, err := h.svc.Booking.CreateReservation(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Printf("Booked %s", result)
	c.JSON(http.StatusCreated, result)
}

// ListReservations handles GET /api/reservations. A confirmation query
// looks up a single reservation instead.
func (h *Handler) ListReservations(c *gin.Context) {
	if number := c.Query("confirmation"); number != "" {
		res, err := h.svc.Reservations.GetByConfirmation(c.Request.Context(), propertyID(c), number)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, []model.Reservation{*res})
		return
	}

	status := model.ReservationStatus(c.Query("status"))
	if status != "" && !status.Active() && !status.Terminal() {
		badRequest(c, "unknown status "+string(status))
		return
	}
	list, err := h.svc.Reservations.List(c.Request.Context(), propertyID(c), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetReservation handles GET /api/reservations/:id.
func (h *Handler) GetReservation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.Reservations.Get(c.Request.Context(), propertyID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetReservationFolio handles GET /api/reservations/:id/folio.
func (h *Handler) GetReservationFolio(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	f, err := h.svc.Ledger.GetByReservation(c.Request.Context(), propertyID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

type checkInRequest struct {
	Assignments []reservation.Assignment `json:"assignments"`
}

// CheckIn handles POST /api/reservations/:id/check-in.
func (h *Handler) CheckIn(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req checkInRequest
	// The body is optional when every line already has a room.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	res, err := h.svc.FrontDesk.CheckIn(c.Request.Context(), propertyID(c), id, req.Assignments)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CheckOut handles POST /api/reservations/:id/check-out.
func (h *Handler) CheckOut(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.FrontDesk.CheckOut(c.Request.Context(), propertyID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelReservation handles POST /api/reservations/:id/cancel.
func (h *Handler) CancelReservation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req cancelRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	res, err := h.svc.FrontDesk.Cancel(c.Request.Context(), propertyID(c), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// MarkNoShow handles POST /api/reservations/:id/no-show.
func (h *Handler) MarkNoShow(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.FrontDesk.NoShow(c.Request.Context(), propertyID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type amendRequest struct {
	CheckIn  string `json:"check_in" binding:"required"`
	CheckOut string `json:"check_out" binding:"required"`
}

// AmendDates handles PUT /api/reservations/:id/dates.
func (h *Handler) AmendDates(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req amendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	r, err := model.ParseDateRange(req.CheckIn, req.CheckOut)
	if err != nil {
		respondError(c, err)
		return
	}
	amended, err := h.svc.FrontDesk.Amend(c.Request.Context(), propertyID(c), id, r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, amended)
}

// GetReservationStats handles GET /api/stats/reservations.
func (h *Handler) GetReservationStats(c *gin.Context) {
	stats, err := h.svc.Reservations.Stats(c.Request.Context(), propertyID(c), h.today())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
