// Package pricing computes order summaries shown to the shopper. It is a
// presentation calculator: the storefront remains authoritative for the
// amounts actually charged.
package pricing

import "github.com/shopspring/decimal"

const centPlaces = 2

// OrderSummary is the breakdown rendered on the cart and review pages.
type OrderSummary struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// Calculator holds the rate table used for summaries.
type Calculator struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
}

// Calculate builds a summary. Tax is charged on the subtotal before the
// discount and rounded half-up to cents. The total never goes below zero.
// Negative inputs count as zero.
func (c Calculator) Calculate(subtotal, shipping, discount decimal.Decimal) OrderSummary {
	subtotal = nonNegative(subtotal)
	shipping = nonNegative(shipping)
	discount = nonNegative(discount)

	tax := subtotal.Mul(nonNegative(c.TaxRate)).Round(centPlaces)
	total := subtotal.Add(shipping).Add(tax).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return OrderSummary{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Discount: discount,
		Total:    total,
	}
}

// ShippingCost is free above the threshold and for an empty cart; otherwise
// the flat fee applies.
func (c Calculator) ShippingCost(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	if subtotal.GreaterThan(c.FreeShippingThreshold) {
		return decimal.Zero
	}
	return nonNegative(c.FlatShippingFee)
}

// Summarize is Calculate with shipping derived from the subtotal.
func (c Calculator) Summarize(subtotal, discount decimal.Decimal) OrderSummary {
	return c.Calculate(subtotal, c.ShippingCost(subtotal), discount)
}

func nonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
