package storefront

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/angelmondragon/storefront-session/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
)

var _ cart.Remote = (*Client)(nil)

func (c *Client) FetchCart(ctx context.Context, userID string) ([]cart.Item, error) {
	var rows []cartItemDTO
	path := "/cart?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}
	items := make([]cart.Item, 0, len(rows))
	for i, row := range rows {
		item, err := c.toItem(row, fmt.Sprintf("cart item %d", i))
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Client) AddItem(ctx context.Context, userID string, item cart.Item) (cart.Item, error) {
	var row cartItemDTO
	err := c.do(ctx, http.MethodPost, "/cart/add", addItemRequest{
		UserID:    userID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		Price:     item.UnitPrice,
		Size:      item.Size,
		Color:     item.Color,
	}, &row)
	if err != nil {
		return cart.Item{}, err
	}
	return c.toItem(row, "cart item")
}

func (c *Client) UpdateItem(ctx context.Context, userID, itemID string, quantity int) (cart.Item, error) {
	var row cartItemDTO
	path := "/cart/items/" + url.PathEscape(itemID)
	if err := c.do(ctx, http.MethodPut, path, updateItemRequest{UserID: userID, Quantity: quantity}, &row); err != nil {
		return cart.Item{}, err
	}
	return c.toItem(row, "cart item")
}

func (c *Client) RemoveItem(ctx context.Context, userID, itemID string) error {
	path := "/cart/items/" + url.PathEscape(itemID) + "?user_id=" + url.QueryEscape(userID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) ClearCart(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/cart/clear?user_id="+url.QueryEscape(userID), nil, nil)
}

func (c *Client) toItem(row cartItemDTO, what string) (cart.Item, error) {
	if err := c.check(row, what); err != nil {
		return cart.Item{}, err
	}
	item, err := row.toItem()
	if err != nil {
		return cart.Item{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("storefront returned an invalid %s", what))
	}
	return item, nil
}
