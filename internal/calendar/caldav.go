package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/evert/calendar-webhook-go/internal/event"
)

const caldavProductID = "-//calendar-webhook//EN"

// CalDAV inserts events into a CalDAV calendar collection with a PUT of a
// single-event iCalendar object.
type CalDAV struct {
	client       *caldav.Client
	base         *url.URL
	calendarPath string
}

// NewCalDAV creates a client for the collection at calendarURL, for example
// https://dav.example.com/calendars/alice/work/. Basic auth is used when a
// username is given.
func NewCalDAV(calendarURL, username, password string, httpClient webdav.HTTPClient) (*CalDAV, error) {
	u, err := url.Parse(calendarURL)
	if err != nil {
		return nil, fmt.Errorf("invalid CalDAV URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid CalDAV URL %q: scheme and host are required", calendarURL)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if username != "" {
		httpClient = webdav.HTTPClientWithBasicAuth(httpClient, username, password)
	}

	base := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
	c, err := caldav.NewClient(httpClient, base.String())
	if err != nil {
		return nil, fmt.Errorf("creating CalDAV client: %w", err)
	}

	calPath := u.Path
	if calPath == "" {
		calPath = "/"
	}
	return &CalDAV{client: c, base: base, calendarPath: calPath}, nil
}

// Insert stores the event as <uid>.ics in the calendar collection. A request
// calendar ID that is an absolute path selects a different collection on the
// same server; other IDs (such as "primary") use the configured collection.
func (c *CalDAV) Insert(ctx context.Context, req *event.Request) (*Result, error) {
	uid := uuid.NewString()
	collection := c.calendarPath
	if strings.HasPrefix(req.CalendarID, "/") {
		collection = req.CalendarID
	}
	objectPath := path.Join(collection, uid+".ics")

	obj, err := c.client.PutCalendarObject(ctx, objectPath, buildICal(req, uid, time.Now()))
	if err != nil {
		return nil, &UpstreamError{Provider: "caldav", Err: err}
	}
	if obj != nil && obj.Path != "" {
		objectPath = obj.Path
	}

	link := c.base.ResolveReference(&url.URL{Path: objectPath}).String()
	slog.Info("created calendar event",
		"provider", "caldav",
		"calendar_path", collection,
		"event_id", uid,
	)

	start, end := formatBounds(req)
	return &Result{
		ID:          uid,
		Link:        link,
		Summary:     req.Summary,
		Description: req.Description,
		Location:    req.Location,
		Start:       start,
		End:         end,
		TimeZone:    req.TimeZone,
		AllDay:      req.AllDay,
		Status:      "confirmed",
		CalendarID:  collection,
		Attendees:   req.AttendeeList(),
	}, nil
}

// buildICal renders a VCALENDAR holding one VEVENT. Timed events are written
// in UTC so no VTIMEZONE component is needed.
func buildICal(req *event.Request, uid string, now time.Time) *ical.Calendar {
	ve := ical.NewEvent()
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, req.Summary)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	if req.AllDay {
		ve.Props.SetDate(ical.PropDateTimeStart, req.Start)
		ve.Props.SetDate(ical.PropDateTimeEnd, req.End)
	} else {
		ve.Props.SetDateTime(ical.PropDateTimeStart, req.Start.UTC())
		ve.Props.SetDateTime(ical.PropDateTimeEnd, req.End.UTC())
	}
	ve.Props.SetText(ical.PropStatus, "CONFIRMED")
	if req.Description != "" {
		ve.Props.SetText(ical.PropDescription, req.Description)
	}
	if req.Location != "" {
		ve.Props.SetText(ical.PropLocation, req.Location)
	}
	for _, email := range req.Attendees {
		p := ical.NewProp(ical.PropAttendee)
		p.SetText("mailto:" + email)
		ve.Props.Add(p)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, caldavProductID)
	cal.Children = append(cal.Children, ve.Component)
	return cal
}
