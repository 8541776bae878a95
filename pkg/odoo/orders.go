package odoo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

type OrderLine struct {
	ProductID int64
	Quantity  float64
}

type SaleOrder struct {
	ID          int64
	Name        string
	AmountTotal float64
}

// SetPartnerAddress records the delivery street on an existing partner.
func (c *Client) SetPartnerAddress(ctx context.Context, partnerID int64, street string) error {
	if err := c.Write(ctx, "res.partner", []int64{partnerID}, map[string]any{"street": street}); err != nil {
		return fmt.Errorf("set partner %d address: %w", partnerID, err)
	}
	return nil
}

// CreateSaleOrder creates a sale order with its lines and reads back the
// generated reference and total.
func (c *Client) CreateSaleOrder(ctx context.Context, partnerID int64, lines []OrderLine) (*SaleOrder, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("sale order needs at least one line")
	}

	orderLines := make([]any, 0, len(lines))
	for _, line := range lines {
		orderLines = append(orderLines, []any{0, 0, map[string]any{
			"product_id":      line.ProductID,
			"product_uom_qty": line.Quantity,
		}})
	}

	orderID, err := c.Create(ctx, "sale.order", map[string]any{
		"partner_id": partnerID,
		"order_line": orderLines,
	})
	if err != nil {
		return nil, fmt.Errorf("create sale order: %w", err)
	}

	type orderRow struct {
		Name        optText `json:"name"`
		AmountTotal float64 `json:"amount_total"`
	}
	var rows []orderRow
	domain := []any{[]any{"id", "=", orderID}}
	if err := c.SearchRead(ctx, "sale.order", domain, []string{"name", "amount_total"}, 1, &rows); err != nil {
		return nil, fmt.Errorf("read sale order %d: %w", orderID, err)
	}

	order := &SaleOrder{ID: orderID}
	if len(rows) > 0 {
		order.Name = string(rows[0].Name)
		order.AmountTotal = rows[0].AmountTotal
	}
	log.Info().Int64("order_id", orderID).Str("reference", order.Name).Msg("sale order created")
	return order, nil
}

// ConfirmSaleOrder moves the order out of draft.
func (c *Client) ConfirmSaleOrder(ctx context.Context, orderID int64) error {
	_, err := c.ExecuteKw(ctx, "sale.order", "action_confirm", []any{[]int64{orderID}}, nil)
	if err != nil {
		return fmt.Errorf("confirm sale order %d: %w", orderID, err)
	}
	return nil
}

type Invoice struct {
	Name        string
	AmountTotal float64
	State       string
}

// CreateInvoiceFromOrder invoices a confirmed sale order via the advance
// payment wizard and returns the resulting invoice, if one was generated.
func (c *Client) CreateInvoiceFromOrder(ctx context.Context, orderID int64) (*Invoice, error) {
	wizardID, err := c.ExecuteKw(ctx, "sale.advance.payment.inv", "create",
		[]any{map[string]any{"advance_payment_method": "delivered"}},
		map[string]any{"context": map[string]any{"active_ids": []int64{orderID}, "active_model": "sale.order"}},
	)
	if err != nil {
		return nil, fmt.Errorf("create invoicing wizard: %w", err)
	}

	var id int64
	if err := json.Unmarshal(wizardID, &id); err != nil {
		return nil, fmt.Errorf("decode wizard id: %w", err)
	}

	_, err = c.ExecuteKw(ctx, "sale.advance.payment.inv", "create_invoices",
		[]any{[]int64{id}},
		map[string]any{"context": map[string]any{"active_ids": []int64{orderID}, "active_model": "sale.order"}},
	)
	if err != nil {
		return nil, fmt.Errorf("create invoices for order %d: %w", orderID, err)
	}

	type orderRow struct {
		Name optText `json:"name"`
	}
	var orders []orderRow
	if err := c.SearchRead(ctx, "sale.order", []any{[]any{"id", "=", orderID}}, []string{"name"}, 1, &orders); err != nil {
		return nil, fmt.Errorf("read order %d: %w", orderID, err)
	}
	if len(orders) == 0 {
		return nil, nil
	}

	type invoiceRow struct {
		Name        optText `json:"name"`
		AmountTotal float64 `json:"amount_total"`
		State       optText `json:"state"`
	}
	var invoices []invoiceRow
	domain := []any{[]any{"invoice_origin", "=", string(orders[0].Name)}}
	if err := c.SearchRead(ctx, "account.move", domain, []string{"name", "amount_total", "state"}, 1, &invoices); err != nil {
		return nil, fmt.Errorf("read invoice for order %d: %w", orderID, err)
	}
	if len(invoices) == 0 {
		return nil, nil
	}
	return &Invoice{
		Name:        string(invoices[0].Name),
		AmountTotal: invoices[0].AmountTotal,
		State:       string(invoices[0].State),
	}, nil
}
