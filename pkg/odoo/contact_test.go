package odoo

import (
	"context"
	"errors"
	"strings"
	"testing"

	phonex "github.com/relayne/crmagent/pkg/phone"
)

// directory emulates the ilike phone matching the real server performs on
// res.partner and crm.lead rows.
type directory struct {
	partners []map[string]any
	leads    []map[string]any
}

func (d *directory) execute(call execCall) (any, *rpcError) {
	if call.Method != "search_read" {
		return nil, remoteError("odoo.exceptions.UserError", "unsupported method "+call.Method)
	}

	variant := variantFromDomain(call.Args)
	var rows []map[string]any
	switch call.Model {
	case "res.partner":
		rows = d.partners
	case "crm.lead":
		rows = d.leads
	default:
		return nil, remoteError("odoo.exceptions.UserError", "unknown model "+call.Model)
	}

	for _, row := range rows {
		numberMatches := false
		for _, field := range []string{"phone", "mobile"} {
			if number, ok := row[field].(string); ok && strings.Contains(number, variant) {
				numberMatches = true
			}
		}
		if numberMatches {
			return []map[string]any{row}, nil
		}
	}
	return []map[string]any{}, nil
}

// variantFromDomain digs the ilike operand out of the OR domain the
// resolver builds.
func variantFromDomain(args []any) string {
	if len(args) == 0 {
		return ""
	}
	domain, _ := args[0].([]any)
	for _, term := range domain {
		clause, ok := term.([]any)
		if !ok || len(clause) != 3 {
			continue
		}
		if op, _ := clause[1].(string); op == "ilike" {
			value, _ := clause[2].(string)
			return value
		}
	}
	return ""
}

func TestResolveContactFullNumberMatch(t *testing.T) {
	t.Parallel()

	dir := &directory{partners: []map[string]any{
		{"id": 11, "name": "Laura Ortiz", "email": "laura@example.com", "phone": "34606523222", "mobile": false, "street": "Calle Mayor 1"},
	}}
	fake := &fakeRPC{t: t, login: acceptAnyLogin, execute: dir.execute}
	client, _ := newTestClient(t, fake, Config{})

	contact, err := client.ResolveContact(context.Background(), "+34 606 52 32 22")
	if err != nil {
		t.Fatalf("ResolveContact() error = %v", err)
	}
	if contact == nil {
		t.Fatal("ResolveContact() = nil, want a contact")
	}
	if contact.Name != "Laura Ortiz" || contact.Phone != "34606523222" {
		t.Fatalf("contact = %+v", contact)
	}
}

func TestResolveContactNationalVariantFallback(t *testing.T) {
	t.Parallel()

	// Stored with country prefix; looked up without it. The national-only
	// variant still matches via substring search.
	dir := &directory{partners: []map[string]any{
		{"id": 11, "name": "Laura Ortiz", "email": "laura@example.com", "phone": "34606523222", "mobile": false, "street": false},
	}}
	fake := &fakeRPC{t: t, login: acceptAnyLogin, execute: dir.execute}
	client, _ := newTestClient(t, fake, Config{})

	contact, err := client.ResolveContact(context.Background(), "606523222")
	if err != nil {
		t.Fatalf("ResolveContact() error = %v", err)
	}
	if contact == nil || contact.ID != 11 {
		t.Fatalf("ResolveContact() = %+v, want partner 11", contact)
	}
}

func TestResolveContactFallsBackToLeads(t *testing.T) {
	t.Parallel()

	dir := &directory{leads: []map[string]any{
		{"id": 21, "name": "Website enquiry", "contact_name": "Pablo Ruiz", "email_from": "pablo@example.com", "phone": "34699112233", "mobile": false, "street": false},
	}}
	fake := &fakeRPC{t: t, login: acceptAnyLogin, execute: dir.execute}
	client, _ := newTestClient(t, fake, Config{})

	contact, err := client.ResolveContact(context.Background(), "+34699112233")
	if err != nil {
		t.Fatalf("ResolveContact() error = %v", err)
	}
	if contact == nil {
		t.Fatal("ResolveContact() = nil, want the lead as a contact")
	}
	if contact.Name != "Pablo Ruiz" || contact.Email != "pablo@example.com" {
		t.Fatalf("contact = %+v, want lead fields normalized", contact)
	}
}

func TestResolveContactPartnersWinOverLeads(t *testing.T) {
	t.Parallel()

	dir := &directory{
		partners: []map[string]any{
			{"id": 11, "name": "Partner Match", "email": false, "phone": "34606523222", "mobile": false, "street": false},
		},
		leads: []map[string]any{
			{"id": 21, "name": "Lead Match", "contact_name": false, "email_from": false, "phone": "34606523222", "mobile": false, "street": false},
		},
	}
	fake := &fakeRPC{t: t, login: acceptAnyLogin, execute: dir.execute}
	client, _ := newTestClient(t, fake, Config{})

	contact, err := client.ResolveContact(context.Background(), "34606523222")
	if err != nil {
		t.Fatalf("ResolveContact() error = %v", err)
	}
	if contact == nil || contact.Name != "Partner Match" {
		t.Fatalf("contact = %+v, want the partner record", contact)
	}
}

func TestResolveContactNotFoundIsNotAnError(t *testing.T) {
	t.Parallel()

	dir := &directory{}
	fake := &fakeRPC{t: t, login: acceptAnyLogin, execute: dir.execute}
	client, _ := newTestClient(t, fake, Config{})

	contact, err := client.ResolveContact(context.Background(), "34600000000")
	if err != nil {
		t.Fatalf("ResolveContact() error = %v, want nil for not-found", err)
	}
	if contact != nil {
		t.Fatalf("ResolveContact() = %+v, want nil", contact)
	}
}

func TestResolveContactRejectsMalformedPhone(t *testing.T) {
	t.Parallel()

	fake := &fakeRPC{t: t, login: acceptAnyLogin}
	client, _ := newTestClient(t, fake, Config{})

	_, err := client.ResolveContact(context.Background(), "123")
	if !errors.Is(err, phonex.ErrInvalidPhone) {
		t.Fatalf("ResolveContact() error = %v, want ErrInvalidPhone", err)
	}
	if len(fake.execCalls) != 0 {
		t.Fatalf("execute calls = %d, want 0 (rejected locally)", len(fake.execCalls))
	}
}
