package odoo

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuthentication means every configured credential was rejected.
	ErrAuthentication = errors.New("odoo authentication failed")

	// ErrRateLimited means the remote kept throttling past the retry budget.
	ErrRateLimited = errors.New("odoo rate limited")
)

// RemoteError is a domain-level rejection from the Odoo server (validation
// failure, access denied, unknown record). Never retried.
type RemoteError struct {
	Name    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("odoo server error: %s", e.Message)
	}
	return fmt.Sprintf("odoo server error %s: %s", e.Name, e.Message)
}

// accessDenied reports whether the rejection invalidates the pinned
// session, so the next call re-authenticates.
func (e *RemoteError) accessDenied() bool {
	return strings.Contains(e.Name, "AccessDenied") || strings.Contains(e.Name, "SessionExpired")
}

// BookingError reports a failed booking saga. Cause is the error from the
// step that failed; Compensation holds any errors hit while rolling back
// already-created records. A compensation failure never masks the cause.
type BookingError struct {
	Step         string
	Cause        error
	Compensation []error
}

func (e *BookingError) Error() string {
	msg := fmt.Sprintf("booking failed at %s: %v", e.Step, e.Cause)
	if len(e.Compensation) > 0 {
		msg += fmt.Sprintf(" (rollback left %d record(s) needing manual cleanup)", len(e.Compensation))
	}
	return msg
}

func (e *BookingError) Unwrap() error { return e.Cause }
