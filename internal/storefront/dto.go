package storefront

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/angelmondragon/storefront-session/internal/cart"
	"github.com/angelmondragon/storefront-session/internal/discount"
	"github.com/shopspring/decimal"
)

// flexID accepts ids sent as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("id must be an integer: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

type cartItemDTO struct {
	ID            flexID           `json:"id" validate:"required"`
	ProductID     int64            `json:"product_id" validate:"gt=0"`
	Name          string           `json:"name"`
	Quantity      int              `json:"quantity" validate:"min=1,max=10"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"original_price"`
	Size          *string          `json:"size"`
	Color         *string          `json:"color"`
}

func (d cartItemDTO) toItem() (cart.Item, error) {
	if d.Price.IsNegative() {
		return cart.Item{}, fmt.Errorf("item %s has a negative price", d.ID)
	}
	item := cart.Item{
		ID:            string(d.ID),
		ProductID:     d.ProductID,
		Name:          d.Name,
		Quantity:      d.Quantity,
		UnitPrice:     d.Price,
		OriginalPrice: d.OriginalPrice,
	}
	if d.Size != nil {
		item.Size = *d.Size
	}
	if d.Color != nil {
		item.Color = *d.Color
	}
	return item, nil
}

type addItemRequest struct {
	UserID    string          `json:"user_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
}

type updateItemRequest struct {
	UserID   string `json:"user_id"`
	Quantity int    `json:"quantity"`
}

type validateCodeRequest struct {
	Code        string          `json:"code"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ProductIDs  []int64         `json:"product_ids"`
	CategoryIDs []int64         `json:"category_ids"`
}

type discountCodeDTO struct {
	ID            flexID           `json:"id"`
	Code          string           `json:"code" validate:"required"`
	Type          string           `json:"type" validate:"omitempty,oneof=percentage fixed"`
	Value         decimal.Decimal  `json:"value"`
	MinimumAmount decimal.Decimal  `json:"minimum_amount"`
	MaxDiscount   *decimal.Decimal `json:"max_discount_amount"`
	UsageLimit    *int             `json:"usage_limit"`
	UsedCount     int              `json:"used_count"`
	StartsAt      *time.Time       `json:"starts_at"`
	ExpiresAt     *time.Time       `json:"expires_at"`
	IsActive      *bool            `json:"is_active"`
}

type validateCodeResponse struct {
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DiscountCode   discountCodeDTO `json:"discount_code"`
}

func (d discountCodeDTO) toCode() discount.Code {
	active := true
	if d.IsActive != nil {
		active = *d.IsActive
	}
	return discount.Code{
		Code:          d.Code,
		Type:          discount.Type(d.Type),
		Value:         d.Value,
		MinimumAmount: d.MinimumAmount,
		MaxDiscount:   d.MaxDiscount,
		UsageLimit:    d.UsageLimit,
		UsedCount:     d.UsedCount,
		StartsAt:      d.StartsAt,
		ExpiresAt:     d.ExpiresAt,
		IsActive:      active,
	}
}

type orderItemRequest struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
}

type orderShipping struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

type placeOrderRequest struct {
	UserID         string             `json:"user_id"`
	Items          []orderItemRequest `json:"items"`
	Shipping       orderShipping      `json:"shipping_address"`
	PaymentMethod  string             `json:"payment_method"`
	CustomerName   string             `json:"customer_name,omitempty"`
	CustomerEmail  string             `json:"customer_email,omitempty"`
	DiscountCode   string             `json:"discount_code,omitempty"`
	Subtotal       decimal.Decimal    `json:"subtotal"`
	ShippingCost   decimal.Decimal    `json:"shipping_cost"`
	TaxAmount      decimal.Decimal    `json:"tax_amount"`
	DiscountAmount decimal.Decimal    `json:"discount_amount"`
	TotalAmount    decimal.Decimal    `json:"total_amount"`
}

type orderDTO struct {
	ID          flexID          `json:"id" validate:"required"`
	OrderNumber string          `json:"order_number"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}
