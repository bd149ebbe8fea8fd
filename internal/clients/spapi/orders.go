package spapi

import (
	"context"
	"net/http"
	"time"
)

// Order is one marketplace order header.
type Order struct {
	OrderID         string    `json:"AmazonOrderId"`
	Status          string    `json:"OrderStatus"`
	PurchaseDate    time.Time `json:"-"`
	RawPurchaseDate string    `json:"PurchaseDate"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	SKU         string `json:"SellerSKU"`
	ASIN        string `json:"ASIN"`
	Title       string `json:"Title"`
	Quantity    int    `json:"QuantityOrdered"`
	OrderItemID string `json:"OrderItemId"`
}

// GetNewOrders returns orders created after the given time, oldest first.
func (c *Client) GetNewOrders(ctx context.Context, createdAfter time.Time) ([]Order, error) {
	var payload struct {
		Payload struct {
			Orders []Order `json:"Orders"`
		} `json:"payload"`
	}
	err := c.call(ctx, http.MethodGet, "/orders/v0/orders", map[string]string{
		"MarketplaceIds": c.marketplaceID,
		"CreatedAfter":   createdAfter.UTC().Format(time.RFC3339),
	}, nil, &payload)
	if err != nil {
		return nil, err
	}

	orders := payload.Payload.Orders
	for i := range orders {
		if t, err := time.Parse(time.RFC3339, orders[i].RawPurchaseDate); err == nil {
			orders[i].PurchaseDate = t.UTC()
		}
	}
	return orders, nil
}

// GetOrderItems returns the line items of one order.
func (c *Client) GetOrderItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	var payload struct {
		Payload struct {
			OrderItems []OrderItem `json:"OrderItems"`
		} `json:"payload"`
	}
	err := c.call(ctx, http.MethodGet, "/orders/v0/orders/"+orderID+"/orderItems", nil, nil, &payload)
	if err != nil {
		return nil, err
	}
	return payload.Payload.OrderItems, nil
}
