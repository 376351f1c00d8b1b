// Package pricing holds the cart state of an in-progress sale and the
// discount and tax arithmetic applied to it. Every operation takes a Cart
// by value and returns a new one; nothing here touches storage.
package pricing

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"outletpos/internal/domain"
)

var ErrExceedsStock = errors.New("quantity exceeds available stock")

type Line struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

func (l Line) Subtotal() int64 {
	return l.Price * int64(l.Quantity)
}

type Cart struct {
	Lines    []Line          `json:"lines"`
	Discount domain.Discount `json:"discount"`
	Taxes    []domain.Tax    `json:"taxes"`
}

func (c Cart) clone() Cart {
	out := Cart{
		Lines:    slices.Clone(c.Lines),
		Discount: c.Discount,
		Taxes:    slices.Clone(c.Taxes),
	}
	return out
}

func (c Cart) indexOf(productID string) int {
	for i, line := range c.Lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

// QuantityOf returns how many units of productID the cart already holds.
func (c Cart) QuantityOf(productID string) int {
	if idx := c.indexOf(productID); idx >= 0 {
		return c.Lines[idx].Quantity
	}
	return 0
}

// AddItem merges qty units of product into the cart. An existing line for
// the same product keeps its position and price snapshot.
func AddItem(cart Cart, product domain.Product, qty int) Cart {
	if qty <= 0 || product.ID == "" {
		return cart
	}
	out := cart.clone()
	if idx := out.indexOf(product.ID); idx >= 0 {
		out.Lines[idx].Quantity += qty
		return out
	}
	out.Lines = append(out.Lines, Line{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.Price,
		Quantity:  qty,
	})
	return out
}

// UpdateQuantity sets a line's quantity, clamping at zero. A line that
// reaches zero is dropped.
func UpdateQuantity(cart Cart, productID string, qty int) Cart {
	idx := cart.indexOf(productID)
	if idx < 0 {
		return cart
	}
	if qty <= 0 {
		return RemoveItem(cart, productID)
	}
	out := cart.clone()
	out.Lines[idx].Quantity = qty
	return out
}

func RemoveItem(cart Cart, productID string) Cart {
	idx := cart.indexOf(productID)
	if idx < 0 {
		return cart
	}
	out := cart.clone()
	out.Lines = slices.Delete(out.Lines, idx, idx+1)
	return out
}

func SetDiscount(cart Cart, discount domain.Discount) Cart {
	out := cart.clone()
	out.Discount = discount
	return out
}

// SetTaxes replaces the configured taxes and service charges.
func SetTaxes(cart Cart, taxes []domain.Tax) Cart {
	out := cart.clone()
	out.Taxes = slices.Clone(taxes)
	return out
}

// ToggleTax flips the active flag of the named tax.
func ToggleTax(cart Cart, taxID string, active bool) Cart {
	out := cart.clone()
	for i := range out.Taxes {
		if out.Taxes[i].ID == taxID {
			out.Taxes[i].Active = active
		}
	}
	return out
}

// Clear empties the lines and resets the discount; taxes are kept.
func Clear(cart Cart) Cart {
	return Cart{Taxes: slices.Clone(cart.Taxes)}
}

// CheckAvailability is the pre-submission guard callers run before AddItem:
// the cart may never hold more units than the outlet has on hand.
func CheckAvailability(cart Cart, productID string, adding int, available int) error {
	if adding <= 0 {
		return nil
	}
	if cart.QuantityOf(productID)+adding > available {
		return fmt.Errorf("%w: %d available", ErrExceedsStock, available)
	}
	return nil
}

// ValidateDiscount rejects negative discount values and unknown types.
func ValidateDiscount(discount domain.Discount) error {
	switch discount.Type {
	case "", domain.DiscountPercent, domain.DiscountFixed:
	default:
		return fmt.Errorf("unsupported discount type %q", discount.Type)
	}
	if discount.Value.IsNegative() {
		return fmt.Errorf("discount value must not be negative")
	}
	return nil
}

// ValidateRate rejects rates outside [0, 1].
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("rate must be between 0 and 1")
	}
	return nil
}

// CheckoutPayload turns the cart into a checkout request carrying the price
// snapshot of every line and the expected grand total. Outlet, customer and
// payment method are left for the caller.
func CheckoutPayload(cart Cart) domain.CheckoutRequest {
	summary := Summarize(cart)
	req := domain.CheckoutRequest{
		TotalAmount: summary.GrandTotal,
		Items:       make([]domain.CheckoutLine, 0, len(cart.Lines)),
	}
	for _, line := range cart.Lines {
		if line.Quantity <= 0 {
			continue
		}
		req.Items = append(req.Items, domain.CheckoutLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.Price,
		})
	}
	if cart.Discount.Type != "" {
		discount := cart.Discount
		req.Discount = &discount
	}
	return req
}
