package odoo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	phonex "github.com/relayne/crmagent/pkg/phone"
)

// Contact is the normalized shape returned for a phone lookup, whether the
// match came from a partner record or from a lead that was never promoted.
// Callers cannot tell which kind matched.
type Contact struct {
	ID     int64
	Name   string
	Email  string
	Phone  string
	Street string
}

// optText tolerates Odoo's habit of encoding empty fields as false instead
// of an empty string.
type optText string

func (s *optText) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if str, ok := v.(string); ok {
		*s = optText(str)
	} else {
		*s = ""
	}
	return nil
}

type partnerRow struct {
	ID     int64   `json:"id"`
	Name   optText `json:"name"`
	Email  optText `json:"email"`
	Phone  optText `json:"phone"`
	Mobile optText `json:"mobile"`
	Street optText `json:"street"`
}

type leadRow struct {
	ID          int64   `json:"id"`
	Name        optText `json:"name"`
	ContactName optText `json:"contact_name"`
	EmailFrom   optText `json:"email_from"`
	Phone       optText `json:"phone"`
	Mobile      optText `json:"mobile"`
	Street      optText `json:"street"`
}

// ResolveContact looks up a phone number across partners first, then
// unpromoted leads. Each search variant (full number, then national-only)
// is tried in order and the first hit wins; a full-number partner match is
// a stronger signal than a trailing-digit lead match. Not finding anyone
// is a normal outcome: the result is (nil, nil).
func (c *Client) ResolveContact(ctx context.Context, phone string) (*Contact, error) {
	variants, err := phonex.SearchVariants(phone)
	if err != nil {
		return nil, err
	}

	for _, variant := range variants {
		contact, err := c.searchPartner(ctx, variant)
		if err != nil {
			return nil, err
		}
		if contact != nil {
			return contact, nil
		}
	}

	for _, variant := range variants {
		contact, err := c.searchLead(ctx, variant)
		if err != nil {
			return nil, err
		}
		if contact != nil {
			return contact, nil
		}
	}

	log.Debug().Str("phone", phonex.Mask(phone)).Msg("no contact matched any variant")
	return nil, nil
}

func phoneDomain(variant string) []any {
	return []any{
		"|",
		[]any{"phone", "ilike", variant},
		[]any{"mobile", "ilike", variant},
	}
}

func (c *Client) searchPartner(ctx context.Context, variant string) (*Contact, error) {
	var rows []partnerRow
	fields := []string{"name", "email", "phone", "mobile", "street"}
	if err := c.SearchRead(ctx, "res.partner", phoneDomain(variant), fields, 1, &rows); err != nil {
		return nil, fmt.Errorf("search partner: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	number := string(row.Phone)
	if number == "" {
		number = string(row.Mobile)
	}
	return &Contact{
		ID:     row.ID,
		Name:   string(row.Name),
		Email:  string(row.Email),
		Phone:  number,
		Street: string(row.Street),
	}, nil
}

func (c *Client) searchLead(ctx context.Context, variant string) (*Contact, error) {
	var rows []leadRow
	fields := []string{"name", "contact_name", "email_from", "phone", "mobile", "street"}
	if err := c.SearchRead(ctx, "crm.lead", phoneDomain(variant), fields, 1, &rows); err != nil {
		return nil, fmt.Errorf("search lead: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	name := string(row.ContactName)
	if name == "" {
		name = string(row.Name)
	}
	number := string(row.Phone)
	if number == "" {
		number = string(row.Mobile)
	}
	return &Contact{
		ID:     row.ID,
		Name:   name,
		Email:  string(row.EmailFrom),
		Phone:  number,
		Street: string(row.Street),
	}, nil
}

// FindOrCreatePartner resolves a phone number to an existing partner id or
// creates a new partner record.
func (c *Client) FindOrCreatePartner(ctx context.Context, name, phone, email string) (int64, error) {
	variants, err := phonex.SearchVariants(phone)
	if err != nil {
		return 0, err
	}
	for _, variant := range variants {
		contact, err := c.searchPartner(ctx, variant)
		if err != nil {
			return 0, err
		}
		if contact != nil {
			return contact.ID, nil
		}
	}

	vals := map[string]any{"name": name, "phone": phone}
	if email != "" {
		vals["email"] = email
	}
	id, err := c.Create(ctx, "res.partner", vals)
	if err != nil {
		return 0, fmt.Errorf("create partner: %w", err)
	}
	log.Info().Int64("partner_id", id).Str("phone", phonex.Mask(phone)).Msg("partner created")
	return id, nil
}
