package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func calc() Calculator {
	return Calculator{
		TaxRate:               d("0.08"),
		FreeShippingThreshold: d("100"),
		FlatShippingFee:       d("9.99"),
	}
}

func TestCalculateTotalIdentity(t *testing.T) {
	cases := []struct {
		name                       string
		subtotal, shipping, discnt string
		wantTax, wantTotal         string
	}{
		{"free shipping with discount", "130", "0", "10", "10.4", "130.4"},
		{"flat fee", "50", "9.99", "0", "4", "63.99"},
		{"rounds half up", "10.06", "0", "0", "0.8", "10.86"},
		{"empty", "0", "0", "0", "0", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := calc().Calculate(d(tc.subtotal), d(tc.shipping), d(tc.discnt))
			assert.True(t, d(tc.wantTax).Equal(got.Tax), "tax=%s", got.Tax)
			assert.True(t, d(tc.wantTotal).Equal(got.Total), "total=%s", got.Total)
			identity := got.Subtotal.Add(got.Shipping).Add(got.Tax).Sub(got.Discount)
			assert.True(t, identity.Equal(got.Total))
		})
	}
}

func TestCalculateTaxUsesPreDiscountSubtotal(t *testing.T) {
	withDiscount := calc().Calculate(d("100"), d("0"), d("50"))
	without := calc().Calculate(d("100"), d("0"), d("0"))
	assert.True(t, withDiscount.Tax.Equal(without.Tax))
	assert.True(t, d("8").Equal(withDiscount.Tax))
}

func TestCalculateTotalNeverNegative(t *testing.T) {
	got := calc().Calculate(d("5"), d("0"), d("50"))
	assert.True(t, got.Total.IsZero())
	assert.True(t, got.Discount.Equal(d("50")))
}

func TestCalculateNegativeInputsCountAsZero(t *testing.T) {
	got := calc().Calculate(d("-20"), d("-1"), d("-3"))
	assert.True(t, got.Subtotal.IsZero())
	assert.True(t, got.Shipping.IsZero())
	assert.True(t, got.Discount.IsZero())
	assert.True(t, got.Total.IsZero())
}

func TestShippingCost(t *testing.T) {
	c := calc()
	assert.True(t, c.ShippingCost(d("0")).IsZero(), "empty cart ships free")
	assert.True(t, c.ShippingCost(d("50")).Equal(d("9.99")))
	assert.True(t, c.ShippingCost(d("100")).Equal(d("9.99")), "threshold itself is not free")
	assert.True(t, c.ShippingCost(d("100.01")).IsZero())
}

func TestSummarize(t *testing.T) {
	got := calc().Summarize(d("40"), d("0"))
	assert.True(t, got.Shipping.Equal(d("9.99")))
	assert.True(t, got.Tax.Equal(d("3.2")))
	assert.True(t, got.Total.Equal(d("53.19")))
}
