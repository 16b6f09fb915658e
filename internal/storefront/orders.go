package storefront

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-session/internal/session"
)

var _ session.OrderPlacer = (*Client)(nil)

func (c *Client) PlaceOrder(ctx context.Context, req session.OrderRequest) (session.Order, error) {
	items := make([]orderItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, orderItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.UnitPrice,
			Size:      item.Size,
			Color:     item.Color,
		})
	}
	ship := req.Shipping
	body := placeOrderRequest{
		UserID: req.UserID,
		Items:  items,
		Shipping: orderShipping{
			FirstName:  ship.FirstName,
			LastName:   ship.LastName,
			Email:      ship.Email,
			Phone:      ship.Phone,
			Address:    ship.Address,
			City:       ship.City,
			State:      ship.State,
			PostalCode: ship.PostalCode,
			Country:    ship.Country,
		},
		PaymentMethod:  req.Payment.Method,
		CustomerName:   req.Payment.CustomerName,
		CustomerEmail:  req.Payment.CustomerEmail,
		DiscountCode:   req.DiscountCode,
		Subtotal:       req.Summary.Subtotal,
		ShippingCost:   req.Summary.Shipping,
		TaxAmount:      req.Summary.Tax,
		DiscountAmount: req.Summary.Discount,
		TotalAmount:    req.Summary.Total,
	}

	var resp orderDTO
	if err := c.do(ctx, http.MethodPost, "/orders", body, &resp); err != nil {
		return session.Order{}, err
	}
	if err := c.check(resp, "order"); err != nil {
		return session.Order{}, err
	}
	return session.Order{
		ID:          string(resp.ID),
		OrderNumber: resp.OrderNumber,
		Status:      resp.Status,
		Total:       resp.TotalAmount,
	}, nil
}
