package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"hotel-core-backend/internal/folio"
	"hotel-core-backend/internal/model"
)

// GetFolio handles GET /api/folios/:id.
func (h *Handler) GetFolio(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	f, err := h.svc.Ledger.Get(c.Request.Context(), propertyID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// chargeBody leaves the rates optional; omitted rates fall back to the
// property defaults.
type chargeBody struct {
	ItemType          string           `json:"item_type" binding:"required"`
	Description       string           `json:"description"`
	Quantity          int              `json:"quantity" binding:"required"`
	UnitPrice         decimal.Decimal  `json:"unit_price"`
	TaxRate           *decimal.Decimal `json:"tax_rate"`
	ServiceChargeRate *decimal.Decimal `json:"service_charge_rate"`
	ServiceDate       string           `json:"service_date"`
}

// PostCharge handles POST /api/folios/:id/charges.
func (h *Handler) PostCharge(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var body chargeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}

	req := folio.ChargeRequest{
		ItemType:          body.ItemType,
		Description:       body.Description,
		Quantity:          body.Quantity,
		UnitPrice:         body.UnitPrice,
		TaxRate:           h.svc.TaxRate,
		ServiceChargeRate: h.svc.ServiceChargeRate,
	}
	if body.TaxRate != nil {
		req.TaxRate = *body.TaxRate
	}
	if body.ServiceChargeRate != nil {
		req.ServiceChargeRate = *body.ServiceChargeRate
	}
	if body.ServiceDate != "" {
		day, err := model.ParseDay(body.ServiceDate)
		if err != nil {
			respondError(c, err)
			return
		}
		req.ServiceDate = &day
	} else {
		today := model.Day(h.today())
		req.ServiceDate = &today
	}

	posting, err := h.svc.Ledger.PostCharge(c.Request.Context(), propertyID(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, posting)
}

// RecordPayment handles POST /api/folios/:id/payments. A replayed
// reference answers 200 instead of 201.
func (h *Handler) RecordPayment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req folio.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	posting, err := h.svc.Ledger.RecordPayment(c.Request.Context(), propertyID(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusCreated
	if posting.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, posting)
}

type adjustRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" binding:"required"`
}

// Adjust handles POST /api/folios/:id/adjustments.
func (h *Handler) Adjust(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	posting, err := h.svc.Ledger.Adjust(c.Request.Context(), propertyID(c), id, req.Amount, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, posting)
}

type voidRequest struct {
	Reason string `json:"reason"`
}

// VoidItem handles POST /api/folio-items/:id/void.
func (h *Handler) VoidItem(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req voidRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	posting, err := h.svc.Ledger.VoidItem(c.Request.Context(), propertyID(c), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, posting)
}

type closeRequest struct {
	ClosedBy string `json:"closed_by"`
}

// CloseFolio handles POST /api/folios/:id/close.
func (h *Handler) CloseFolio(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req closeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	f, err := h.svc.Ledger.Close(c.Request.Context(), propertyID(c), id, req.ClosedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// GetFolioStats handles GET /api/stats/folios.
func (h *Handler) GetFolioStats(c *gin.Context) {
	stats, err := h.svc.Ledger.Stats(c.Request.Context(), propertyID(c), h.today())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"open":                stats.Open,
		"closed":              stats.Closed,
		"outstanding_balance": stats.OutstandingBalance.StringFixed(2),
		"revenue_today":       stats.RevenueToday.StringFixed(2),
		"as_of":               h.today().Format(time.RFC3339),
	})
}
