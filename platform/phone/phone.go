// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "US"

// ParseE164 formats a phone number to E.164 and reports whether it parsed
// as a valid number. On failure the trimmed input is returned unchanged.
func ParseE164(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed, false
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed, false
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed, false
	}

	return phonenumbers.Format(number, phonenumbers.E164), true
}

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns
// the trimmed input. Use ParseE164 where invalid numbers must be rejected.
func NormalizeE164(input string) string {
	normalized, _ := ParseE164(input)
	return normalized
}
