package storefront

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-session/internal/discount"
)

var _ discount.Validator = (*Client)(nil)

func (c *Client) ValidateCode(ctx context.Context, code string, order discount.OrderContext) (discount.Validation, error) {
	req := validateCodeRequest{
		Code:        code,
		TotalAmount: order.Subtotal,
		ProductIDs:  nonNil(order.ProductIDs),
		CategoryIDs: nonNil(order.CategoryIDs),
	}
	var resp validateCodeResponse
	if err := c.do(ctx, http.MethodPost, "/discount-codes/validate", req, &resp); err != nil {
		return discount.Validation{}, err
	}
	if err := c.check(resp, "discount code"); err != nil {
		return discount.Validation{}, err
	}
	return discount.Validation{
		Code:           resp.DiscountCode.toCode(),
		DiscountAmount: resp.DiscountAmount,
	}, nil
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
