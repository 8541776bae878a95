package odoo

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const odooDatetimeLayout = "2006-01-02 15:04:05"

type BookingRequest struct {
	Name        string
	Phone       string
	Email       string
	Description string
	Start       time.Time
	Duration    time.Duration
}

// BookingRecord holds the three linked records a successful booking
// creates.
type BookingRecord struct {
	PartnerID int64
	LeadID    int64
	EventID   int64
}

// CreateBooking runs the partner -> opportunity -> calendar-event sequence
// as a saga. Each step needs the previous step's id, so the creates are
// strictly sequential. If a step fails, the records already created are
// deleted in reverse order and the step's error is surfaced as a
// *BookingError. Compensation is best effort: a failed delete is logged
// and attached to the error, it never replaces the original cause and is
// never retried past the normal call budget. After return the remote store
// holds either all three records or none (barring a reported compensation
// failure).
func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (*BookingRecord, error) {
	if req.Duration <= 0 {
		req.Duration = time.Hour
	}

	partnerID, err := c.Create(ctx, "res.partner", map[string]any{
		"name":  req.Name,
		"phone": req.Phone,
		"email": req.Email,
	})
	if err != nil {
		// Nothing created yet, nothing to compensate.
		return nil, &BookingError{Step: "create partner", Cause: err}
	}

	leadID, err := c.Create(ctx, "crm.lead", map[string]any{
		"name":        fmt.Sprintf("Opportunity: %s", req.Name),
		"partner_id":  partnerID,
		"description": req.Description,
		"type":        "opportunity",
	})
	if err != nil {
		comp := c.compensate(ctx, "res.partner", partnerID)
		return nil, &BookingError{Step: "create opportunity", Cause: err, Compensation: comp}
	}

	start := req.Start.UTC()
	stop := start.Add(req.Duration)
	eventID, err := c.Create(ctx, "calendar.event", map[string]any{
		"name":           fmt.Sprintf("Sales meeting: %s", req.Name),
		"start":          start.Format(odooDatetimeLayout),
		"stop":           stop.Format(odooDatetimeLayout),
		"duration":       req.Duration.Hours(),
		"partner_ids":    []any{[]any{4, partnerID}},
		"opportunity_id": leadID,
	})
	if err != nil {
		comp := c.compensate(ctx, "crm.lead", leadID)
		comp = append(comp, c.compensate(ctx, "res.partner", partnerID)...)
		return nil, &BookingError{Step: "create calendar event", Cause: err, Compensation: comp}
	}

	log.Info().Int64("partner_id", partnerID).Int64("lead_id", leadID).Int64("event_id", eventID).
		Msg("booking created")
	return &BookingRecord{PartnerID: partnerID, LeadID: leadID, EventID: eventID}, nil
}

// compensate deletes one created record during rollback. Errors are
// reported back, not propagated, so the triggering failure stays visible.
func (c *Client) compensate(ctx context.Context, model string, id int64) []error {
	if err := c.Unlink(ctx, model, []int64{id}); err != nil {
		log.Error().Err(err).Str("model", model).Int64("id", id).
			Msg("booking rollback could not delete record")
		return []error{fmt.Errorf("delete %s %d: %w", model, id, err)}
	}
	return nil
}
