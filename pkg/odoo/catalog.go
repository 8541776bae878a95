package odoo

import (
	"context"
	"fmt"
)

// Catalog and inventory reads are plain single-call lookups; they reuse
// the client's retry wrapper and add no resilience of their own.

type Product struct {
	ID           int64   `json:"id"`
	Name         optText `json:"name"`
	ListPrice    float64 `json:"list_price"`
	QtyAvailable float64 `json:"qty_available"`
	DefaultCode  optText `json:"default_code"`
}

type ProductStock struct {
	ID               int64   `json:"id"`
	Name             optText `json:"name"`
	QtyAvailable     float64 `json:"qty_available"`
	VirtualAvailable float64 `json:"virtual_available"`
}

// SearchProducts finds catalog products by (partial) name.
func (c *Client) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	domain := []any{[]any{"name", "ilike", query}}
	fields := []string{"name", "list_price", "qty_available", "default_code"}

	var products []Product
	if err := c.SearchRead(ctx, "product.product", domain, fields, 10, &products); err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return products, nil
}

// GetProductStock returns current and forecasted stock for one product, or
// (nil, nil) when the product does not exist.
func (c *Client) GetProductStock(ctx context.Context, productID int64) (*ProductStock, error) {
	domain := []any{[]any{"id", "=", productID}}
	fields := []string{"name", "qty_available", "virtual_available"}

	var rows []ProductStock
	if err := c.SearchRead(ctx, "product.product", domain, fields, 1, &rows); err != nil {
		return nil, fmt.Errorf("product stock: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
