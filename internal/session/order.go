package session

import (
	"context"

	"github.com/angelmondragon/storefront-session/internal/cart"
	"github.com/angelmondragon/storefront-session/internal/checkout"
	"github.com/angelmondragon/storefront-session/pkg/pricing"
	"github.com/shopspring/decimal"
)

// OrderRequest is what the storefront needs to turn the cart into an order.
type OrderRequest struct {
	UserID       string
	Items        []cart.Item
	Shipping     checkout.Shipping
	Payment      checkout.Payment
	DiscountCode string
	Summary      pricing.OrderSummary
}

// Order is the storefront's confirmation.
type Order struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"order_number,omitempty"`
	Status      string          `json:"status"`
	Total       decimal.Decimal `json:"total"`
}

// OrderPlacer submits orders to the storefront.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (Order, error)
}
