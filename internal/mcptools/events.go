package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/evert/calendar-webhook-go/internal/calendar"
	"github.com/evert/calendar-webhook-go/internal/event"
	"github.com/evert/calendar-webhook-go/internal/pkg/ptr"
	"github.com/evert/calendar-webhook-go/internal/pkg/response"
	"github.com/evert/calendar-webhook-go/internal/submit"
)

func registerEventTools(server *mcp.Server, svc *submit.Service) {
	addTool(server, &mcp.Tool{
		Name:        "create_calendar_event",
		Icons:       serviceIcons,
		Description: "Create a calendar event. Times are RFC3339, a local time such as 2025-01-01T10:00 interpreted in the event timezone, or a plain date for all-day events.",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Create Calendar Event",
			OpenWorldHint: ptr.Bool(true),
		},
	}, createCreateEventHandler(svc))
}

type CreateEventInput struct {
	Summary        string   `json:"summary" jsonschema:"required" jsonschema_description:"Event title"`
	StartTime      string   `json:"start_time" jsonschema:"required" jsonschema_description:"Start time (RFC3339, local date-time, or date for all-day)"`
	EndTime        string   `json:"end_time" jsonschema:"required" jsonschema_description:"End time, strictly after the start"`
	Description    string   `json:"description,omitempty" jsonschema_description:"Event description"`
	Location       string   `json:"location,omitempty" jsonschema_description:"Event location"`
	Attendees      []string `json:"attendees,omitempty" jsonschema_description:"Attendee email addresses"`
	Timezone       string   `json:"timezone,omitempty" jsonschema_description:"IANA timezone (e.g. America/New_York)"`
	CalendarID     string   `json:"calendar_id,omitempty" jsonschema_description:"Calendar ID (default: configured calendar or primary)"`
	IdempotencyKey string   `json:"idempotency_key,omitempty" jsonschema_description:"Repeat a call with the same key to get the original result instead of a duplicate event"`
}

func createCreateEventHandler(svc *submit.Service) mcp.ToolHandlerFor[CreateEventInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input CreateEventInput) (*mcp.CallToolResult, any, error) {
		// The tool input is the flat webhook payload, so both surfaces share
		// one normalizer.
		raw, err := json.Marshal(input)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding tool input: %w", err)
		}

		out, err := svc.Submit(ctx, raw, input.IdempotencyKey)
		if err != nil {
			return errorResult(err), nil, nil
		}

		rb := response.New()
		if out.Replayed {
			rb.Header("Event Already Created")
		} else {
			rb.Header("Event Created")
		}
		formatResult(rb, out.Result)
		return rb.TextResult(), nil, nil
	}
}

func formatResult(rb *response.Builder, res *calendar.Result) {
	rb.KeyValue("Summary", res.Summary)
	rb.KeyValue("Start", res.Start)
	rb.KeyValue("End", res.End)
	if !res.AllDay {
		rb.KeyValue("Time zone", res.TimeZone)
	}
	rb.KeyValue("Location", res.Location)
	rb.KeyValue("Calendar", res.CalendarID)
	rb.KeyValue("ID", res.ID)
	rb.KeyValue("Link", res.Link)
	if len(res.Attendees) > 0 {
		rb.Line("Attendees:")
		for _, a := range res.Attendees {
			rb.Item("%s", a.Email)
		}
	}
}

// errorResult renders a submission failure as a tool error.
func errorResult(err error) *mcp.CallToolResult {
	rb := response.New()

	var (
		verr     *event.ValidationError
		authErr  *submit.AuthorizationRequired
		upstream *calendar.UpstreamError
	)
	switch {
	case errors.As(err, &verr):
		rb.Header("Invalid Event")
		if len(verr.Missing) > 0 {
			rb.KeyValue("Missing", strings.Join(verr.Missing, ", "))
		}
		fields := make([]string, 0, len(verr.Invalid))
		for f := range verr.Invalid {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			rb.KeyValue("Invalid "+f, verr.Invalid[f])
		}
	case errors.As(err, &authErr):
		// The auth enhancer appends the consent URL.
		rb.Header("Authorization Required")
		rb.Line("%s", authErr.Error())
	case errors.As(err, &upstream):
		rb.Header("Calendar Error")
		rb.Line("%s", upstream.Err.Error())
	default:
		rb.Header("Error")
		rb.Line("%s", err.Error())
	}
	return rb.ErrorResult()
}
