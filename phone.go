package clubhouse

import (
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is the fallback when no region is configured and a number
// carries no country prefix.
const DefaultRegion = "US"

// CanonicalPhone normalizes raw user input to the digits-only national
// significant number, e.g. "(555) 123-4567" and "+1 555 123 4567" both
// become "5551234567". All storage and lookups key on this form. Components
// with access to configuration use CanonicalPhoneInRegion instead.
func CanonicalPhone(raw string) (string, error) {
	return CanonicalPhoneInRegion(raw, DefaultRegion)
}

// CanonicalPhoneInRegion normalizes raw against an explicit default region.
// An empty region falls back to DefaultRegion.
func CanonicalPhoneInRegion(raw, region string) (string, error) {
	if region == "" {
		region = DefaultRegion
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidPhone
	}

	num, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return "", goerrors.Wrap(err, ErrInvalidPhone.Category, ErrInvalidPhone.Message).
			WithTextCode(ErrInvalidPhone.TextCode).
			WithCode(ErrInvalidPhone.Code)
	}

	// IsPossibleNumber is a length/shape check; IsValidNumber would reject
	// test ranges like 555 numbers, which real deployments hand out.
	if !phonenumbers.IsPossibleNumber(num) {
		return "", ErrInvalidPhone
	}

	return phonenumbers.GetNationalSignificantNumber(num), nil
}

// FormatPhone makes a canonical number pretty for display.
func FormatPhone(phone string) string {
	if len(phone) == 10 {
		return fmt.Sprintf("(%s) %s-%s", phone[:3], phone[3:6], phone[6:])
	}
	return phone
}
