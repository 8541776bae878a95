// Package contract holds the interfaces the inbound pipeline and the
// conversational agent agree on. The HTTP layer depends only on these, so
// tests can swap in doubles for the agent, the memory store, and the
// outbound channel.
package contract

import (
	"context"
	"errors"
	"time"

	odoox "github.com/relayne/crmagent/pkg/odoo"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrModelInvoke  = errors.New("model invoke failed")
)

// Responder decides what to say and which CRM actions to take for one
// inbound message. sessionID is the stable conversation key (the wa_id for
// WhatsApp traffic, a generated id for web chat).
type Responder interface {
	Respond(ctx context.Context, sessionID, message string) (string, error)
}

// Sender delivers an outbound text message to the customer.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

// Memory is the append/recent conversation log. Both operations degrade
// silently: history is context, not state.
type Memory interface {
	Append(ctx context.Context, sessionID, role, content string)
	Recent(ctx context.Context, sessionID string, limit int) string
}

// Knowledge searches the company knowledge base and returns a rendered
// snippet block.
type Knowledge interface {
	Search(ctx context.Context, query string) string
}

// CRM is the slice of the Odoo client the agent's tools use.
type CRM interface {
	ResolveContact(ctx context.Context, phone string) (*odoox.Contact, error)
	CheckAvailability(ctx context.Context, start, stop time.Time) ([]odoox.CalendarEvent, error)
	CreateBooking(ctx context.Context, req odoox.BookingRequest) (*odoox.BookingRecord, error)
	SearchProducts(ctx context.Context, query string) ([]odoox.Product, error)
	GetProductStock(ctx context.Context, productID int64) (*odoox.ProductStock, error)
	FindOrCreatePartner(ctx context.Context, name, phone, email string) (int64, error)
	SetPartnerAddress(ctx context.Context, partnerID int64, street string) error
	CreateSaleOrder(ctx context.Context, partnerID int64, lines []odoox.OrderLine) (*odoox.SaleOrder, error)
	ConfirmSaleOrder(ctx context.Context, orderID int64) error
	CreateInvoiceFromOrder(ctx context.Context, orderID int64) (*odoox.Invoice, error)
	SendMail(ctx context.Context, to, subject, body string) error
}
