package folio

import (
	"github.com/shopspring/decimal"

	"hotel-core-backend/internal/model"
)

// Totals are the folio aggregates derived from its items and payments.
type Totals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	ServiceCharge decimal.Decimal `json:"service_charge"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Balance       decimal.Decimal `json:"balance"`
}

// Project folds the log into totals. Voided items contribute nothing;
// every payment counts.
func Project(items []model.FolioItem, payments []model.Payment) Totals {
	t := Totals{
		Subtotal:      decimal.Zero,
		TaxAmount:     decimal.Zero,
		ServiceCharge: decimal.Zero,
		PaidAmount:    decimal.Zero,
	}
	for _, it := range items {
		if it.Voided {
			continue
		}
		t.Subtotal = t.Subtotal.Add(it.TotalPrice)
		t.TaxAmount = t.TaxAmount.Add(it.TaxAmount)
		t.ServiceCharge = t.ServiceCharge.Add(it.ServiceCharge)
	}
	for _, p := range payments {
		t.PaidAmount = t.PaidAmount.Add(p.Amount)
	}
	t.TotalAmount = t.Subtotal.Add(t.TaxAmount).Add(t.ServiceCharge)
	t.Balance = t.TotalAmount.Sub(t.PaidAmount)
	return t
}

// Apply copies the totals onto f.
func (t Totals) Apply(f *model.Folio) {
	f.Subtotal = t.Subtotal
	f.TaxAmount = t.TaxAmount
	f.ServiceCharge = t.ServiceCharge
	f.TotalAmount = t.TotalAmount
	f.PaidAmount = t.PaidAmount
	f.Balance = t.Balance
}

func (t Totals) columns() map[string]any {
	return map[string]any{
		"subtotal":       t.Subtotal,
		"tax_amount":     t.TaxAmount,
		"service_charge": t.ServiceCharge,
		"total_amount":   t.TotalAmount,
		"paid_amount":    t.PaidAmount,
		"balance":        t.Balance,
	}
}

// round2 rounds half away from zero to cents.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
