package pricing

import (
	"github.com/shopspring/decimal"

	"outletpos/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type TaxLine struct {
	ID     string          `json:"id,omitempty"`
	Name   string          `json:"name"`
	Kind   string          `json:"kind"`
	Rate   decimal.Decimal `json:"rate"`
	Amount int64           `json:"amount"`
}

type Summary struct {
	Subtotal           int64     `json:"subtotal"`
	DiscountAmount     int64     `json:"discount_amount"`
	TaxableAmount      int64     `json:"taxable_amount"`
	TotalTax           int64     `json:"total_tax"`
	TotalServiceCharge int64     `json:"total_service_charge"`
	GrandTotal         int64     `json:"grand_total"`
	Taxes              []TaxLine `json:"taxes"`
	ItemCount          int       `json:"item_count"`
}

// Summarize computes the cart totals:
//
//	subtotal = sum(price * quantity)
//	discount = clamp(percent ? subtotal*value/100 : value, 0, subtotal)
//	taxable  = subtotal - discount
//	each active tax or service charge = round(taxable * rate)
//	grand    = taxable + taxes + service charges
//
// Taxes never compound. Amounts round half away from zero to whole minor units.
func Summarize(cart Cart) Summary {
	var summary Summary
	for _, line := range cart.Lines {
		if line.Quantity <= 0 {
			continue
		}
		summary.Subtotal += line.Subtotal()
		summary.ItemCount += line.Quantity
	}

	summary.DiscountAmount = DiscountAmount(summary.Subtotal, cart.Discount)
	summary.TaxableAmount = summary.Subtotal - summary.DiscountAmount

	summary.Taxes = make([]TaxLine, 0, len(cart.Taxes))
	taxable := decimal.NewFromInt(summary.TaxableAmount)
	for _, tax := range cart.Taxes {
		if !tax.Active {
			continue
		}
		amount := taxable.Mul(tax.Rate).Round(0).IntPart()
		kind := tax.Kind
		if kind == "" {
			kind = domain.TaxKindTax
		}
		summary.Taxes = append(summary.Taxes, TaxLine{
			ID:     tax.ID,
			Name:   tax.Name,
			Kind:   kind,
			Rate:   tax.Rate,
			Amount: amount,
		})
		if kind == domain.TaxKindServiceCharge {
			summary.TotalServiceCharge += amount
		} else {
			summary.TotalTax += amount
		}
	}

	summary.GrandTotal = summary.TaxableAmount + summary.TotalTax + summary.TotalServiceCharge
	return summary
}

// DiscountAmount resolves a discount against subtotal, never below zero and
// never above subtotal.
func DiscountAmount(subtotal int64, discount domain.Discount) int64 {
	if subtotal <= 0 {
		return 0
	}
	var raw decimal.Decimal
	switch discount.Type {
	case domain.DiscountPercent:
		raw = decimal.NewFromInt(subtotal).Mul(discount.Value).Div(hundred)
	case domain.DiscountFixed:
		raw = discount.Value
	default:
		return 0
	}
	amount := raw.Round(0).IntPart()
	if amount < 0 {
		return 0
	}
	if amount > subtotal {
		return subtotal
	}
	return amount
}
