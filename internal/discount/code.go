package discount

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{3,50}$`)

// Normalize trims and upper-cases raw; the result must be 3 to 50
// characters of A-Z and 0-9.
func Normalize(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if !codePattern.MatchString(code) {
		return "", ReasonInvalidFormat.Err()
	}
	return code, nil
}

// Code mirrors the storefront's discount code record.
type Code struct {
	Code          string           `json:"code"`
	Type          Type             `json:"type"`
	Value         decimal.Decimal  `json:"value"`
	MinimumAmount decimal.Decimal  `json:"minimum_amount"`
	UsageLimit    *int             `json:"usage_limit,omitempty"`
	UsedCount     int              `json:"used_count"`
	StartsAt      *time.Time       `json:"starts_at,omitempty"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
	IsActive      bool             `json:"is_active"`
	MaxDiscount   *decimal.Decimal `json:"max_discount,omitempty"`
}

// Check reports why the code cannot be used for subtotal at now, or "" when
// it can.
func (c Code) Check(now time.Time, subtotal decimal.Decimal) Reason {
	switch {
	case !c.IsActive:
		return ReasonNotFound
	case c.StartsAt != nil && now.Before(*c.StartsAt):
		return ReasonNotFound
	case c.ExpiresAt != nil && !now.Before(*c.ExpiresAt):
		return ReasonExpired
	case c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit:
		return ReasonUsageLimit
	case subtotal.LessThan(c.MinimumAmount):
		return ReasonNotApplicable
	}
	return ""
}

// Usable is true when the code is active, started, unexpired, under its
// usage limit and the subtotal meets the minimum.
func (c Code) Usable(now time.Time, subtotal decimal.Decimal) bool {
	return c.Check(now, subtotal) == ""
}

// AmountFor is the discount granted on subtotal: a percentage rounded to
// cents, or the fixed value, never more than the subtotal.
func (c Code) AmountFor(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() || c.Value.IsNegative() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch c.Type {
	case TypePercentage:
		amount = subtotal.Mul(c.Value).Div(decimal.NewFromInt(100)).Round(2)
	default:
		amount = c.Value
	}
	if c.MaxDiscount != nil && amount.GreaterThan(*c.MaxDiscount) {
		amount = *c.MaxDiscount
	}
	return decimal.Min(amount, subtotal)
}
