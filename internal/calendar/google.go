package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/evert/calendar-webhook-go/internal/auth"
	"github.com/evert/calendar-webhook-go/internal/event"
	"github.com/evert/calendar-webhook-go/internal/middleware"
)

// SendUpdates values accepted by the Calendar API.
const (
	SendUpdatesAll          = "all"
	SendUpdatesExternalOnly = "externalOnly"
	SendUpdatesNone         = "none"
)

// Google inserts events through the Google Calendar API.
type Google struct {
	service     *gcal.Service
	sendUpdates string
}

// NewGoogle builds a Calendar API client authorized by creds. The HTTP client
// is created once with context.Background() so it outlives any single
// request; each insert passes its own request context. Extra options are
// appended after the HTTP client (tests use option.WithEndpoint).
func NewGoogle(ctx context.Context, creds auth.Credentials, sendUpdates string, opts ...option.ClientOption) (*Google, error) {
	if sendUpdates == "" {
		sendUpdates = SendUpdatesAll
	}
	// A plain oauth2.Transport asks creds for a token on every request, so a
	// re-authorization takes effect without rebuilding the client.
	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: auth.TokenSource(context.Background(), creds),
			Base:   http.DefaultTransport,
		},
	}

	svcOpts := append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	svc, err := gcal.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating calendar service: %w", err)
	}
	return &Google{service: svc, sendUpdates: sendUpdates}, nil
}

// Insert creates the event on the request's calendar.
func (g *Google) Insert(ctx context.Context, req *event.Request) (*Result, error) {
	ev := buildEvent(req)

	created, err := g.service.Events.Insert(req.CalendarID, ev).
		SendUpdates(g.sendUpdates).
		Context(ctx).
		Do()
	if err != nil {
		if errors.Is(err, auth.ErrNotAuthorized) {
			return nil, err
		}
		upstream := &UpstreamError{Provider: "google", Err: middleware.HandleGoogleAPIError(err)}
		var googleErr *googleapi.Error
		if errors.As(err, &googleErr) {
			upstream.StatusCode = googleErr.Code
		}
		return nil, upstream
	}

	slog.Info("created calendar event",
		"provider", "google",
		"calendar_id", req.CalendarID,
		"event_id", created.Id,
	)
	return googleResult(req, created), nil
}

// buildEvent maps the request onto the API resource. All-day events use
// dates; the API treats the end date as exclusive.
func buildEvent(req *event.Request) *gcal.Event {
	ev := &gcal.Event{
		Summary:     req.Summary,
		Description: req.Description,
		Location:    req.Location,
		Attendees:   buildAttendees(req.Attendees),
	}
	if req.AllDay {
		ev.Start = &gcal.EventDateTime{Date: req.Start.Format(dateLayout)}
		ev.End = &gcal.EventDateTime{Date: req.End.Format(dateLayout)}
		return ev
	}
	ev.Start = &gcal.EventDateTime{DateTime: req.Start.Format(time.RFC3339), TimeZone: req.TimeZone}
	ev.End = &gcal.EventDateTime{DateTime: req.End.Format(time.RFC3339), TimeZone: req.TimeZone}
	return ev
}

func buildAttendees(emails []string) []*gcal.EventAttendee {
	if len(emails) == 0 {
		return nil
	}
	attendees := make([]*gcal.EventAttendee, 0, len(emails))
	for _, email := range emails {
		attendees = append(attendees, &gcal.EventAttendee{Email: email})
	}
	return attendees
}

// googleResult prefers what the API returned and falls back to the request.
func googleResult(req *event.Request, created *gcal.Event) *Result {
	start, end := formatBounds(req)
	res := &Result{
		ID:          created.Id,
		Link:        created.HtmlLink,
		Summary:     req.Summary,
		Description: req.Description,
		Location:    req.Location,
		Start:       start,
		End:         end,
		TimeZone:    req.TimeZone,
		AllDay:      req.AllDay,
		Status:      created.Status,
		CalendarID:  req.CalendarID,
		Attendees:   req.AttendeeList(),
	}
	if created.Summary != "" {
		res.Summary = created.Summary
	}
	if s := eventTime(created.Start); s != "" {
		res.Start = s
	}
	if e := eventTime(created.End); e != "" {
		res.End = e
	}
	if len(created.Attendees) > 0 {
		res.Attendees = make([]event.Attendee, 0, len(created.Attendees))
		for _, a := range created.Attendees {
			res.Attendees = append(res.Attendees, event.Attendee{Email: a.Email})
		}
	}
	return res
}

func eventTime(edt *gcal.EventDateTime) string {
	if edt == nil {
		return ""
	}
	if edt.DateTime != "" {
		return edt.DateTime
	}
	return edt.Date
}
