package odoo

import (
	"context"
	"fmt"
	"time"
)

type CalendarEvent struct {
	ID    int64   `json:"id"`
	Name  optText `json:"name"`
	Start optText `json:"start"`
	Stop  optText `json:"stop"`
}

// CheckAvailability returns the events overlapping [start, stop). An empty
// result means the slot is free.
func (c *Client) CheckAvailability(ctx context.Context, start, stop time.Time) ([]CalendarEvent, error) {
	domain := []any{
		[]any{"start", "<", stop.UTC().Format(odooDatetimeLayout)},
		[]any{"stop", ">", start.UTC().Format(odooDatetimeLayout)},
	}

	var events []CalendarEvent
	if err := c.SearchRead(ctx, "calendar.event", domain, []string{"name", "start", "stop"}, 0, &events); err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}
	return events, nil
}
