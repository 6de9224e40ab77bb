package auth

// CalendarScope grants read/write access to the user's calendars.
const CalendarScope = "https://www.googleapis.com/auth/calendar"

// CalendarEventsScope grants access to events only.
const CalendarEventsScope = "https://www.googleapis.com/auth/calendar.events"

// DefaultScopes are requested when the configuration names none.
var DefaultScopes = []string{CalendarScope}

// Scopes returns configured scopes, falling back to DefaultScopes.
func Scopes(configured []string) []string {
	var out []string
	for _, s := range configured {
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return DefaultScopes
	}
	return out
}
