package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FolioStatus is open while the folio accepts postings.
type FolioStatus string

const (
	FolioOpen   FolioStatus = "open"
	FolioClosed FolioStatus = "closed"
)

// Folio is the financial ledger of one reservation. The amount columns are
// a projection of Items and Payments, rewritten in the same transaction as
// every posting.
type Folio struct {
	ID            int64           `gorm:"primaryKey" json:"id"`
	PropertyID    int64           `gorm:"not null;uniqueIndex:idx_folios_property_number,priority:1;index:idx_folios_property_status,priority:1" json:"property_id"`
	ReservationID int64           `gorm:"not null;uniqueIndex" json:"reservation_id"`
	GuestID       int64           `gorm:"not null;index" json:"guest_id"`
	FolioNumber   string          `gorm:"size:32;not null;uniqueIndex:idx_folios_property_number,priority:2" json:"folio_number"`
	Status        FolioStatus     `gorm:"size:16;not null;index:idx_folios_property_status,priority:2" json:"status"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	TaxAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tax_amount"`
	ServiceCharge decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"service_charge"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	PaidAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"paid_amount"`
	Balance       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"balance"`
	ClosedAt      *time.Time      `json:"closed_at,omitempty"`
	ClosedBy      string          `gorm:"size:64" json:"closed_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// Unsettled is set on reads when a closed folio carries a nonzero balance.
	Unsettled bool `gorm:"-" json:"unsettled"`

	// Associations
	Items    []FolioItem `gorm:"foreignKey:FolioID" json:"items,omitempty"`
	Payments []Payment   `gorm:"foreignKey:FolioID" json:"payments,omitempty"`
}

// FolioItem is an append-only charge line. Voiding flips a flag; rows are never deleted.
type FolioItem struct {
	ID            int64           `gorm:"primaryKey" json:"id"`
	FolioID       int64           `gorm:"not null;index" json:"folio_id"`
	ItemType      string          `gorm:"size:32;not null" json:"item_type"`
	Description   string          `gorm:"size:255" json:"description"`
	Quantity      int             `gorm:"not null" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	TotalPrice    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_price"`
	TaxAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tax_amount"`
	ServiceCharge decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"service_charge"`
	ServiceDate   time.Time       `gorm:"type:date;not null" json:"service_date"`
	Voided        bool            `gorm:"not null" json:"voided"`
	VoidReason    string          `gorm:"size:255" json:"void_reason,omitempty"`
	VoidedAt      *time.Time      `json:"voided_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Payment is an append-only settlement against a folio.
type Payment struct {
	ID              int64           `gorm:"primaryKey" json:"id"`
	FolioID         int64           `gorm:"not null;uniqueIndex:idx_payments_folio_reference,priority:1" json:"folio_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Method          string          `gorm:"size:32;not null" json:"method"`
	ReferenceNumber *string         `gorm:"size:64;uniqueIndex:idx_payments_folio_reference,priority:2" json:"reference_number,omitempty"`
	Notes           string          `gorm:"size:255" json:"notes,omitempty"`
	CreatedAt       time.Time       `gorm:"not null;index" json:"created_at"`
}
