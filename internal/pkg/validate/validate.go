package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// emailRE matches basic email format: local@domain with at least one dot in domain.
var emailRE = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Email validates that the given string looks like a valid email address.
func Email(email string) error {
	if len(email) > 254 {
		return fmt.Errorf("email address too long (max 254 characters)")
	}
	if !emailRE.MatchString(email) {
		return fmt.Errorf("invalid email address %q", email)
	}
	return nil
}

// TimeZone resolves an IANA zone name such as "Europe/Berlin".
// Empty and "Local" are rejected: the zone is sent to the calendar provider
// verbatim and must mean the same thing there.
func TimeZone(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return nil, fmt.Errorf("invalid time zone %q — use an IANA name such as America/New_York", name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q — use an IANA name such as America/New_York", name)
	}
	return loc, nil
}
