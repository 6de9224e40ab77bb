// Package calendar inserts normalized event requests into a calendar provider.
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/evert/calendar-webhook-go/internal/event"
)

// Inserter creates one event per call. Implementations never retry.
type Inserter interface {
	Insert(ctx context.Context, req *event.Request) (*Result, error)
}

// Result describes a created event. It is passed through to callers as the
// reply's data payload.
type Result struct {
	ID          string           `json:"id"`
	Link        string           `json:"htmlLink,omitempty"`
	Summary     string           `json:"summary"`
	Description string           `json:"description,omitempty"`
	Location    string           `json:"location,omitempty"`
	Start       string           `json:"start"`
	End         string           `json:"end"`
	TimeZone    string           `json:"timeZone,omitempty"`
	AllDay      bool             `json:"allDay,omitempty"`
	Status      string           `json:"status,omitempty"`
	CalendarID  string           `json:"calendarId"`
	Attendees   []event.Attendee `json:"attendees,omitempty"`
}

// UpstreamError reports that the provider rejected or failed the insert.
type UpstreamError struct {
	Provider string
	// StatusCode is the provider's HTTP status, or 0 when none was received.
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s calendar insert failed: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

const dateLayout = "2006-01-02"

// formatBounds renders start and end the way they are reported back: plain
// dates for all-day events, RFC3339 in the event's zone otherwise.
func formatBounds(req *event.Request) (start, end string) {
	if req.AllDay {
		return req.Start.Format(dateLayout), req.End.Format(dateLayout)
	}
	return req.Start.Format(time.RFC3339), req.End.Format(time.RFC3339)
}
