package cart

import (
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	MinQuantity = 1
	MaxQuantity = 10

	// TempIDPrefix marks rows that the storefront has not confirmed yet.
	TempIDPrefix = "tmp_"
)

// Item is one cart line. UnitPrice is the price captured when the product
// was added; OriginalPrice is the optional compare-at price.
type Item struct {
	ID            string           `json:"id"`
	ProductID     int64            `json:"product_id"`
	Name          string           `json:"name,omitempty"`
	Quantity      int              `json:"quantity"`
	UnitPrice     decimal.Decimal  `json:"unit_price"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	Size          string           `json:"size,omitempty"`
	Color         string           `json:"color,omitempty"`
}

// MergeKey identifies rows that collapse into one line: same product, size
// and color.
func (i Item) MergeKey() string {
	return fmt.Sprintf("%d|%s|%s", i.ProductID, strings.TrimSpace(i.Size), strings.TrimSpace(i.Color))
}

// Pending reports whether the row still carries a temporary id.
func (i Item) Pending() bool {
	return strings.HasPrefix(i.ID, TempIDPrefix)
}

func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// LineSavings is (originalPrice - unitPrice) * quantity when the item is
// marked down, zero otherwise.
func (i Item) LineSavings() decimal.Decimal {
	if i.OriginalPrice == nil || !i.OriginalPrice.GreaterThan(i.UnitPrice) {
		return decimal.Zero
	}
	return i.OriginalPrice.Sub(i.UnitPrice).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i Item) clone() Item {
	out := i
	if i.OriginalPrice != nil {
		op := *i.OriginalPrice
		out.OriginalPrice = &op
	}
	return out
}

// ValidateQuantity rejects quantities outside [MinQuantity, MaxQuantity].
func ValidateQuantity(qty int) error {
	if qty < MinQuantity || qty > MaxQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between %d and %d", MinQuantity, MaxQuantity)).
			WithDetails(map[string]any{"field": "quantity", "min": MinQuantity, "max": MaxQuantity})
	}
	return nil
}

func validateNewItem(item Item) error {
	if item.ProductID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "product is required").
			WithDetails(map[string]any{"field": "product_id"})
	}
	if err := ValidateQuantity(item.Quantity); err != nil {
		return err
	}
	if item.UnitPrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative").
			WithDetails(map[string]any{"field": "unit_price"})
	}
	if item.OriginalPrice != nil && item.OriginalPrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "original price must not be negative").
			WithDetails(map[string]any{"field": "original_price"})
	}
	return nil
}
