// Package event turns loosely shaped webhook payloads into validated calendar
// event requests.
package event

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultCalendarID is used when neither the payload nor the configuration names a calendar.
const DefaultCalendarID = "primary"

// DefaultTimeZone is used when neither the payload nor the configuration names a zone.
const DefaultTimeZone = "UTC"

// Request is a normalized event ready to be inserted. It is built once per
// inbound call and not modified afterwards.
type Request struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	// AllDay is set when both start and end were given as plain dates.
	AllDay     bool
	Attendees  []string
	TimeZone   string
	CalendarID string
	// Call is non-nil when the payload arrived inside a tool-call envelope.
	Call *ToolCall
}

// Attendee is the canonical attendee form used in provider resources and replies.
type Attendee struct {
	Email string `json:"email"`
}

// AttendeeList returns the attendees in canonical {email} form.
func (r *Request) AttendeeList() []Attendee {
	if len(r.Attendees) == 0 {
		return nil
	}
	out := make([]Attendee, 0, len(r.Attendees))
	for _, e := range r.Attendees {
		out = append(out, Attendee{Email: e})
	}
	return out
}

// IsToolCall reports whether the request came from a tool-call envelope.
func (r *Request) IsToolCall() bool {
	return r.Call != nil
}

// ToolCall identifies the tool invocation a payload was extracted from.
type ToolCall struct {
	ID    string
	Shape string
}

// Options carries the configured fallbacks applied during normalization.
type Options struct {
	DefaultTimeZone   string
	DefaultCalendarID string
}

// ValidationError reports request fields that are missing or unusable.
type ValidationError struct {
	Missing []string
	Invalid map[string]string
	// Call is set when the failing payload was a tool call, so the reply can
	// use the tool-call envelope.
	Call *ToolCall
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		keys := make([]string, 0, len(e.Invalid))
		for k := range e.Invalid {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("invalid %s: %s", k, e.Invalid[k]))
		}
	}
	if len(parts) == 0 {
		return "invalid event request"
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0
}

func (e *ValidationError) invalid(field, reason string) {
	if e.Invalid == nil {
		e.Invalid = make(map[string]string)
	}
	if _, ok := e.Invalid[field]; !ok {
		e.Invalid[field] = reason
	}
}
