package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/evert/calendar-webhook-go/internal/auth"
	"github.com/evert/calendar-webhook-go/internal/event"
)

type staticCreds struct {
	token *oauth2.Token
	err   error
}

func (s staticCreds) ValidToken(context.Context) (*oauth2.Token, error) { return s.token, s.err }
func (s staticCreds) AuthURL(string) string                             { return "https://consent.example.com" }

func validCreds() staticCreds {
	return staticCreds{token: &oauth2.Token{AccessToken: "test-access", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}}
}

func standup() *event.Request {
	return &event.Request{
		Summary:    "Standup",
		Start:      time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		End:        time.Date(2025, 1, 1, 10, 30, 0, 0, time.UTC),
		Attendees:  []string{"a@example.com", "b@example.com"},
		Location:   "Room 1",
		TimeZone:   "UTC",
		CalendarID: "primary",
	}
}

func newGoogleForTest(t *testing.T, creds auth.Credentials, sendUpdates string, handler http.HandlerFunc) (*Google, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	g, err := NewGoogle(context.Background(), creds, sendUpdates, option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewGoogle: %v", err)
	}
	return g, &calls
}

func TestGoogle_Insert(t *testing.T) {
	var got gcal.Event
	var gotPath, gotAuth, gotSendUpdates string

	g, _ := newGoogleForTest(t, validCreds(), "", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotSendUpdates = r.URL.Query().Get("sendUpdates")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got.Id = "evt123"
		got.HtmlLink = "https://calendar.google.com/event?eid=evt123"
		got.Status = "confirmed"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&got)
	})

	res, err := g.Insert(context.Background(), standup())
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if gotPath != "/calendars/primary/events" {
		t.Errorf("path = %q, want /calendars/primary/events", gotPath)
	}
	if gotAuth != "Bearer test-access" {
		t.Errorf("Authorization = %q, want Bearer test-access", gotAuth)
	}
	if gotSendUpdates != SendUpdatesAll {
		t.Errorf("sendUpdates = %q, want %q", gotSendUpdates, SendUpdatesAll)
	}
	if got.Start == nil || got.Start.DateTime != "2025-01-01T10:00:00Z" || got.Start.TimeZone != "UTC" {
		t.Errorf("start = %+v", got.Start)
	}
	if got.End == nil || got.End.DateTime != "2025-01-01T10:30:00Z" {
		t.Errorf("end = %+v", got.End)
	}
	if len(got.Attendees) != 2 || got.Attendees[0].Email != "a@example.com" {
		t.Errorf("attendees = %+v", got.Attendees)
	}

	if res.ID != "evt123" || res.Link == "" {
		t.Errorf("result = %+v, want id and link", res)
	}
	if res.Summary != "Standup" || res.Location != "Room 1" || res.Status != "confirmed" {
		t.Errorf("result fields = %+v", res)
	}
	if len(res.Attendees) != 2 || res.Attendees[1].Email != "b@example.com" {
		t.Errorf("result attendees = %+v", res.Attendees)
	}
}

func TestGoogle_InsertAllDay(t *testing.T) {
	var got gcal.Event
	g, _ := newGoogleForTest(t, validCreds(), SendUpdatesNone, func(w http.ResponseWriter, r *http.Request) {
		if v := r.URL.Query().Get("sendUpdates"); v != SendUpdatesNone {
			t.Errorf("sendUpdates = %q, want none", v)
		}
		json.NewDecoder(r.Body).Decode(&got)
		got.Id = "allday"
		json.NewEncoder(w).Encode(&got)
	})

	req := &event.Request{
		Summary:    "Offsite",
		Start:      time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		AllDay:     true,
		TimeZone:   "UTC",
		CalendarID: "primary",
	}
	res, err := g.Insert(context.Background(), req)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got.Start.Date != "2025-03-10" || got.End.Date != "2025-03-12" {
		t.Errorf("dates = %+v / %+v", got.Start, got.End)
	}
	if got.Start.DateTime != "" {
		t.Errorf("all-day start carries a dateTime: %q", got.Start.DateTime)
	}
	if res.Start != "2025-03-10" || !res.AllDay {
		t.Errorf("result = %+v", res)
	}
}

func TestGoogle_InsertUpstreamError(t *testing.T) {
	g, calls := newGoogleForTest(t, validCreds(), "", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"Invalid attendee email.","errors":[{"reason":"invalid","message":"Invalid attendee email."}]}}`))
	})

	_, err := g.Insert(context.Background(), standup())
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if upstream.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", upstream.StatusCode)
	}
	if !strings.Contains(err.Error(), "Invalid attendee email.") {
		t.Errorf("error %q does not carry the provider message", err.Error())
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("provider called %d times, want exactly 1 (no retries)", n)
	}
}

func TestGoogle_InsertNotAuthorized(t *testing.T) {
	g, calls := newGoogleForTest(t, staticCreds{err: auth.ErrNotAuthorized}, "", func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider should not be called without a token")
	})

	_, err := g.Insert(context.Background(), standup())
	if !errors.Is(err, auth.ErrNotAuthorized) {
		t.Fatalf("error = %v, want ErrNotAuthorized", err)
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		t.Error("not-authorized reported as an upstream failure")
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("provider called %d times, want 0", n)
	}
}
