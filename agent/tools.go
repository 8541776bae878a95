package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"

	odoox "github.com/relayne/crmagent/pkg/odoo"
)

const argDatetimeLayout = "2006-01-02 15:04:05"

// toolDefs is the function catalog exposed to the model. Every result is
// a plain string: the model reads it, the caller never parses it.
func toolDefs() []openaisdk.ChatCompletionToolParam {
	return []openaisdk.ChatCompletionToolParam{
		tool("search_customer",
			"Look up an existing customer by phone number. Returns their name and contact details when known.",
			params{"phone": {"type": "string", "description": "Customer phone number"}},
			[]string{"phone"}),
		tool("check_availability",
			"List booked calendar slots between two UTC datetimes (YYYY-MM-DD HH:MM:SS). An empty answer means the range is free. Always check before booking.",
			params{
				"start": {"type": "string", "description": "Range start, UTC"},
				"end":   {"type": "string", "description": "Range end, UTC"},
			},
			[]string{"start", "end"}),
		tool("create_booking",
			"Create the customer record, sales opportunity, and calendar meeting in one step. Only call after the customer explicitly asked for a meeting and gave name, phone, and email.",
			params{
				"name":           {"type": "string"},
				"phone":          {"type": "string"},
				"email":          {"type": "string"},
				"description":    {"type": "string", "description": "What the customer wants to discuss"},
				"start":          {"type": "string", "description": "Meeting start, UTC, YYYY-MM-DD HH:MM:SS"},
				"duration_hours": {"type": "number", "description": "Meeting length in hours, default 1"},
			},
			[]string{"name", "phone", "email", "start"}),
		tool("search_products",
			"Search the product catalog by name. Returns price, stock, and reference per match.",
			params{"query": {"type": "string"}},
			[]string{"query"}),
		tool("check_stock",
			"Current and forecasted stock for one product id.",
			params{"product_id": {"type": "integer"}},
			[]string{"product_id"}),
		tool("create_order",
			"Create and confirm a sale order for a product. Finds or creates the customer first.",
			params{
				"name":       {"type": "string"},
				"phone":      {"type": "string"},
				"email":      {"type": "string"},
				"address":    {"type": "string", "description": "Delivery address"},
				"product_id": {"type": "integer"},
				"quantity":   {"type": "number"},
			},
			[]string{"name", "phone", "product_id", "quantity"}),
		tool("create_invoice",
			"Generate the invoice for a confirmed sale order. Only call after the order was confirmed.",
			params{"order_id": {"type": "integer", "description": "Confirmed sale order id"}},
			[]string{"order_id"}),
		tool("knowledge_base_search",
			"Search the company knowledge base for products, services, and pricing. Use for any question about what the company offers.",
			params{"query": {"type": "string"}},
			[]string{"query"}),
		tool("send_confirmation_email",
			"Send a confirmation email after a meeting was booked successfully.",
			params{
				"to":      {"type": "string"},
				"subject": {"type": "string"},
				"body":    {"type": "string"},
			},
			[]string{"to", "subject", "body"}),
	}
}

type params map[string]map[string]any

func tool(name, description string, props params, required []string) openaisdk.ChatCompletionToolParam {
	properties := make(map[string]any, len(props))
	for key, schema := range props {
		properties[key] = schema
	}
	return openaisdk.ChatCompletionToolParam{
		Type: "function",
		Function: openaisdk.FunctionDefinitionParam{
			Name:        name,
			Description: openaisdk.String(description),
			Parameters: openaisdk.FunctionParameters{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

// execTool runs one tool call. Tool failures come back as strings for the
// model to recover from; only malformed arguments are an error.
func (r *Responder) execTool(ctx context.Context, name, rawArgs string) (string, error) {
	var args struct {
		Phone         string  `json:"phone"`
		Name          string  `json:"name"`
		Email         string  `json:"email"`
		Description   string  `json:"description"`
		Address       string  `json:"address"`
		Start         string  `json:"start"`
		End           string  `json:"end"`
		DurationHours float64 `json:"duration_hours"`
		Query         string  `json:"query"`
		ProductID     int64   `json:"product_id"`
		OrderID       int64   `json:"order_id"`
		Quantity      float64 `json:"quantity"`
		To            string  `json:"to"`
		Subject       string  `json:"subject"`
		Body          string  `json:"body"`
	}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", fmt.Errorf("tool %s: malformed arguments: %w", name, err)
		}
	}

	switch name {
	case "search_customer":
		contact, err := r.crm.ResolveContact(ctx, args.Phone)
		if err != nil {
			return "Customer lookup failed: " + err.Error(), nil
		}
		if contact == nil {
			return "Customer not found.", nil
		}
		return fmt.Sprintf("Customer found: %s (id %d). Email: %s. Address: %s.",
			contact.Name, contact.ID, orNA(contact.Email), orNA(contact.Street)), nil

	case "check_availability":
		start, err := time.Parse(argDatetimeLayout, args.Start)
		if err != nil {
			return "Invalid start datetime, expected YYYY-MM-DD HH:MM:SS.", nil
		}
		end, err := time.Parse(argDatetimeLayout, args.End)
		if err != nil {
			return "Invalid end datetime, expected YYYY-MM-DD HH:MM:SS.", nil
		}
		events, err := r.crm.CheckAvailability(ctx, start.UTC(), end.UTC())
		if err != nil {
			return "Could not check the calendar: " + err.Error(), nil
		}
		if len(events) == 0 {
			return "The calendar is free in this time range.", nil
		}
		var b strings.Builder
		b.WriteString("Busy slots:\n")
		for _, ev := range events {
			fmt.Fprintf(&b, "- %s (%s to %s)\n", ev.Name, ev.Start, ev.Stop)
		}
		return b.String(), nil

	case "create_booking":
		start, err := time.Parse(argDatetimeLayout, args.Start)
		if err != nil {
			return "Invalid start datetime, expected YYYY-MM-DD HH:MM:SS.", nil
		}
		duration := time.Duration(args.DurationHours * float64(time.Hour))
		record, err := r.crm.CreateBooking(ctx, odoox.BookingRequest{
			Name:        args.Name,
			Phone:       args.Phone,
			Email:       args.Email,
			Description: args.Description,
			Start:       start.UTC(),
			Duration:    duration,
		})
		if err != nil {
			return "Booking failed, nothing was scheduled: " + err.Error(), nil
		}
		return fmt.Sprintf("Booking confirmed: customer %d, opportunity %d, meeting %d.",
			record.PartnerID, record.LeadID, record.EventID), nil

	case "search_products":
		products, err := r.crm.SearchProducts(ctx, args.Query)
		if err != nil {
			return "Product search failed: " + err.Error(), nil
		}
		if len(products) == 0 {
			return fmt.Sprintf("No products matching %q.", args.Query), nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Products found (%d):\n", len(products))
		for _, p := range products {
			fmt.Fprintf(&b, "- %s (id %d) | price %.2f | stock %.0f | ref %s\n",
				p.Name, p.ID, p.ListPrice, p.QtyAvailable, orNA(string(p.DefaultCode)))
		}
		return b.String(), nil

	case "check_stock":
		stock, err := r.crm.GetProductStock(ctx, args.ProductID)
		if err != nil {
			return "Stock check failed: " + err.Error(), nil
		}
		if stock == nil {
			return fmt.Sprintf("No product with id %d.", args.ProductID), nil
		}
		return fmt.Sprintf("Stock for %s: %.0f available now, %.0f forecasted.",
			stock.Name, stock.QtyAvailable, stock.VirtualAvailable), nil

	case "create_order":
		return r.execCreateOrder(ctx, args.Name, args.Phone, args.Email, args.Address, args.ProductID, args.Quantity), nil

	case "create_invoice":
		invoice, err := r.crm.CreateInvoiceFromOrder(ctx, args.OrderID)
		if err != nil {
			return "Invoicing failed: " + err.Error(), nil
		}
		if invoice == nil {
			return fmt.Sprintf("Order %d has nothing to invoice yet.", args.OrderID), nil
		}
		return fmt.Sprintf("Invoice %s created, total %.2f, state %s.",
			invoice.Name, invoice.AmountTotal, invoice.State), nil

	case "knowledge_base_search":
		return r.knowledge.Search(ctx, args.Query), nil

	case "send_confirmation_email":
		if err := r.crm.SendMail(ctx, args.To, args.Subject, args.Body); err != nil {
			return "The email could not be sent, but the meeting itself is booked.", nil
		}
		return "Confirmation email sent.", nil

	default:
		return fmt.Sprintf("Tool %q is not available.", name), nil
	}
}

func (r *Responder) execCreateOrder(ctx context.Context, name, phoneNumber, email, address string, productID int64, quantity float64) string {
	partnerID, err := r.crm.FindOrCreatePartner(ctx, name, phoneNumber, email)
	if err != nil {
		return "Could not register the customer: " + err.Error()
	}
	if strings.TrimSpace(address) != "" {
		if err := r.crm.SetPartnerAddress(ctx, partnerID, address); err != nil {
			return "Could not save the delivery address: " + err.Error()
		}
	}

	order, err := r.crm.CreateSaleOrder(ctx, partnerID, []odoox.OrderLine{{ProductID: productID, Quantity: quantity}})
	if err != nil {
		return "Could not create the order: " + err.Error()
	}
	if err := r.crm.ConfirmSaleOrder(ctx, order.ID); err != nil {
		return fmt.Sprintf("Order %s was created but not confirmed yet: %v", order.Name, err)
	}
	return fmt.Sprintf("Order %s confirmed, total %.2f.", order.Name, order.AmountTotal)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
