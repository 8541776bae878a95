package odoo

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// SendMail creates a mail.mail record on the server and triggers delivery
// through Odoo's configured outgoing mail server. The sent email stays
// attached to the CRM history.
func (c *Client) SendMail(ctx context.Context, to, subject, body string) error {
	bodyHTML := "<p>" + strings.ReplaceAll(body, "\n", "<br>") + "</p>"

	mailID, err := c.Create(ctx, "mail.mail", map[string]any{
		"subject":     subject,
		"email_from":  c.username,
		"email_to":    to,
		"body_html":   bodyHTML,
		"auto_delete": true,
	})
	if err != nil {
		return fmt.Errorf("create mail: %w", err)
	}

	if _, err := c.ExecuteKw(ctx, "mail.mail", "send", []any{[]int64{mailID}}, nil); err != nil {
		return fmt.Errorf("send mail %d: %w", mailID, err)
	}

	log.Info().Str("to", maskEmail(to)).Msg("confirmation email sent")
	return nil
}

func maskEmail(addr string) string {
	if len(addr) <= 3 {
		return "***"
	}
	return addr[:3] + "***"
}
