package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"hotel-core-backend/internal/model"
)

type createRoomTypeRequest struct {
	Name         string          `json:"name" binding:"required"`
	Code         string          `json:"code" binding:"required"`
	BaseRate     decimal.Decimal `json:"base_rate"`
	MaxOccupancy int             `json:"max_occupancy" binding:"required"`
	Active       *bool           `json:"active"`
}

// CreateRoomType handles POST /api/room-types.
func (h *Handler) CreateRoomType(c *gin.Context) {
	var req createRoomTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rt := model.RoomType{
		PropertyID:   propertyID(c),
		Name:         req.Name,
		Code:         req.Code,
		BaseRate:     req.BaseRate,
		MaxOccupancy: req.MaxOccupancy,
		Active:       req.Active == nil || *req.Active,
	}
	if err := h.svc.Inventory.CreateRoomType(c.Request.Context(), &rt); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rt)
}

type createRoomRequest struct {
	RoomTypeID int64            `json:"room_type_id" binding:"required"`
	RoomNumber string           `json:"room_number" binding:"required"`
	Status     model.RoomStatus `json:"status"`
	Active     *bool            `json:"active"`
}

// CreateRoom handles POST /api/rooms.
func (h *Handler) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Status == "" {
		req.Status = model.RoomVacant
	}
	room := model.Room{
		PropertyID: propertyID(c),
		RoomTypeID: req.RoomTypeID,
		RoomNumber: req.RoomNumber,
		Status:     req.Status,
		Active:     req.Active == nil || *req.Active,
	}
	if err := h.svc.Inventory.CreateRoom(c.Request.Context(), &room); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

// ListRooms handles GET /api/rooms, optionally filtered by room_type_id.
func (h *Handler) ListRooms(c *gin.Context) {
	var roomTypeID int64
	if raw := c.Query("room_type_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "invalid room_type_id")
			return
		}
		roomTypeID = id
	}
	rooms, err := h.svc.Inventory.ListRooms(c.Request.Context(), propertyID(c), roomTypeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

type setRoomStatusRequest struct {
	Status model.RoomStatus `json:"status" binding:"required"`
}

// SetRoomStatus handles PUT /api/rooms/:id/status.
func (h *Handler) SetRoomStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req setRoomStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	room, err := h.svc.Inventory.SetRoomStatus(c.Request.Context(), propertyID(c), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// GetAvailability handles GET /api/availability.
func (h *Handler) GetAvailability(c *gin.Context) {
	roomTypeID, err := strconv.ParseInt(c.Query("room_type_id"), 10, 64)
	if err != nil || roomTypeID <= 0 {
		badRequest(c, "room_type_id is required")
		return
	}
	r, err := model.ParseDateRange(c.Query("check_in"), c.Query("check_out"))
	if err != nil {
		respondError(c, err)
		return
	}
	rooms, err := h.svc.Availability.FindAvailableRooms(c.Request.Context(), propertyID(c), roomTypeID, r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"room_type_id": roomTypeID,
		"check_in":     r.CheckIn.Format(model.DateLayout),
		"check_out":    r.CheckOut.Format(model.DateLayout),
		"nights":       r.Nights(),
		"rooms":        rooms,
	})
}

// GetRoom handles GET /api/rooms/:id.
func (h *Handler) GetRoom(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	room, err := h.svc.Inventory.GetRoom(c.Request.Context(), propertyID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}
