// Package phone canonicalizes phone numbers into digit-only matching keys
// and produces the lookup variants used for CRM searches.
package phone

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidPhone = errors.New("invalid phone number")

const (
	minDigits = 6
	maxDigits = 15

	// nationalLen is the trailing-digit fallback length. A number stored
	// without its country prefix still matches on the last 9 digits.
	nationalLen = 9
)

// Normalize strips every non-digit character and returns the number in a
// basic E.164 shape with a leading "+". Inputs with fewer than 6 or more
// than 15 digits fail with ErrInvalidPhone.
func Normalize(raw string) (string, error) {
	digits := digitsOnly(raw)
	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", fmt.Errorf("%w: want %d-%d digits, got %d", ErrInvalidPhone, minDigits, maxDigits, len(digits))
	}
	return "+" + digits, nil
}

// SearchVariants returns the candidate strings to match against stored
// numbers, most specific first: the full digit string, then the trailing
// national digits when the number carries a country prefix. Callers must
// try them in order and stop at the first match.
func SearchVariants(raw string) ([]string, error) {
	normalized, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	digits := strings.TrimPrefix(normalized, "+")

	variants := []string{digits}
	if len(digits) > nationalLen {
		variants = append(variants, digits[len(digits)-nationalLen:])
	}
	return variants, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Mask hides all but the last four digits for log output.
func Mask(number string) string {
	digits := digitsOnly(number)
	if len(digits) <= 4 {
		return "***"
	}
	return "***" + digits[len(digits)-4:]
}
