// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const (
	minDigits = 10
	maxDigits = 15
)

var (
	// ErrUnparseable indicates the input could not be parsed as a phone number.
	ErrUnparseable = errors.New("phone number could not be parsed")
	// ErrInvalid indicates the number parsed but is not a valid subscriber number.
	ErrInvalid = errors.New("phone number is not valid")
	// ErrDigitCount indicates the canonical form falls outside the accepted digit range.
	ErrDigitCount = errors.New("phone number digit count out of range")
)

// NormalizeE164 canonicalizes a phone number to E.164. Numbers without an
// explicit country code are parsed against the given default region. The
// canonical form must carry between 10 and 15 digits.
func NormalizeE164(input, defaultRegion string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ErrUnparseable
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return "", ErrUnparseable
	}

	if !phonenumbers.IsValidNumber(number) {
		return "", ErrInvalid
	}

	formatted := phonenumbers.Format(number, phonenumbers.E164)
	if n := digitCount(formatted); n < minDigits || n > maxDigits {
		return "", ErrDigitCount
	}

	return formatted, nil
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
