package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/evert/calendar-webhook-go/internal/pkg/validate"
)

// Field aliases, compared case-insensitively after trimming whitespace.
var (
	summaryKeys     = []string{"summary", "title"}
	startKeys       = []string{"start_time", "start", "startTime", "start_date_time"}
	endKeys         = []string{"end_time", "end", "endTime", "end_date_time"}
	descriptionKeys = []string{"description", "notes"}
	locationKeys    = []string{"location"}
	attendeeKeys    = []string{"attendees", "guests", "invitees"}
	timeZoneKeys    = []string{"timezone", "time_zone", "timeZone"}
	calendarKeys    = []string{"calendar_id", "calendarId"}
)

// directKeys are the top-level keys that mark a flat (non tool-call) payload.
var directKeys = concat(summaryKeys, startKeys, endKeys, descriptionKeys, locationKeys, attendeeKeys, timeZoneKeys)

// fields is the raw argument object found by an extractor.
type fields struct {
	args map[string]any
	call *ToolCall
}

// extractor is one accepted payload shape. It reports false when the shape
// does not apply to the body.
type extractor struct {
	shape string
	find  func(body map[string]any) (fields, bool)
}

// extractors lists the accepted payload shapes in priority order.
var extractors = []extractor{
	{"direct", extractDirect},
	{"arguments", extractArguments},
	{"toolCall", wrapperAt("toolCall")},
	{"toolCalls", wrapperAt("toolCalls", 0)},
	{"message.toolCall", wrapperAt("message", "toolCall")},
	{"message.toolCalls", wrapperAt("message", "toolCalls", 0)},
	{"message.toolCallList", wrapperAt("message", "toolCallList", 0)},
}

// Normalize extracts and validates an event request from a webhook body.
// A body that is not a JSON object is treated as an opaque string and
// therefore yields a ValidationError listing every required field.
func Normalize(raw []byte, opts Options) (*Request, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		body = nil
	}

	var f fields
	for _, ex := range extractors {
		if body == nil {
			break
		}
		if found, ok := ex.find(body); ok {
			if found.call != nil {
				found.call.Shape = ex.shape
			}
			f = found
			break
		}
	}
	return build(f, opts)
}

func extractDirect(body map[string]any) (fields, bool) {
	for _, k := range directKeys {
		if _, ok := lookup(body, k); ok {
			return fields{args: body}, true
		}
	}
	return fields{}, false
}

func extractArguments(body map[string]any) (fields, bool) {
	v, ok := lookup(body, "arguments")
	if !ok {
		return fields{}, false
	}
	return fields{args: decodeArguments(v)}, true
}

// wrapperAt returns an extractor for a tool-call object found at path. Path
// elements are object keys, or ints for array indexes.
func wrapperAt(path ...any) func(map[string]any) (fields, bool) {
	return func(body map[string]any) (fields, bool) {
		wrapper, ok := walk(body, path...).(map[string]any)
		if !ok {
			return fields{}, false
		}
		args, ok := callArguments(wrapper)
		if !ok {
			return fields{}, false
		}
		call := &ToolCall{}
		for _, k := range []string{"id", "toolCallId"} {
			if id := stringValue(first(wrapper, k)); id != "" {
				call.ID = id
				break
			}
		}
		return fields{args: decodeArguments(args), call: call}, true
	}
}

// callArguments finds the argument value inside a tool-call object.
func callArguments(wrapper map[string]any) (any, bool) {
	if fn, ok := first(wrapper, "function").(map[string]any); ok {
		if args, ok := lookup(fn, "arguments"); ok {
			return args, true
		}
	}
	for _, k := range []string{"arguments", "parameters"} {
		if args, ok := lookup(wrapper, k); ok {
			return args, true
		}
	}
	return nil, false
}

// decodeArguments accepts an object or a JSON-encoded object. Anything else
// is kept as an opaque value and contributes no fields.
func decodeArguments(v any) map[string]any {
	switch a := v.(type) {
	case map[string]any:
		return a
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(a), &m); err == nil {
			return m
		}
	}
	return nil
}

func build(f fields, opts Options) (*Request, error) {
	verr := &ValidationError{Call: f.call}
	args := f.args

	req := &Request{
		Summary:     stringValue(first(args, summaryKeys...)),
		Description: stringValue(first(args, descriptionKeys...)),
		Location:    stringValue(first(args, locationKeys...)),
		Call:        f.call,
	}

	startRaw, startZone := timeValue(first(args, startKeys...))
	endRaw, endZone := timeValue(first(args, endKeys...))

	if req.Summary == "" {
		verr.Missing = append(verr.Missing, "summary")
	}
	if startRaw == "" {
		verr.Missing = append(verr.Missing, "start")
	}
	if endRaw == "" {
		verr.Missing = append(verr.Missing, "end")
	}

	req.TimeZone = firstNonEmpty(stringValue(first(args, timeZoneKeys...)), startZone, endZone, opts.DefaultTimeZone, DefaultTimeZone)
	loc, err := validate.TimeZone(req.TimeZone)
	if err != nil {
		verr.invalid("timezone", err.Error())
		loc = time.UTC
	}

	req.CalendarID = firstNonEmpty(stringValue(first(args, calendarKeys...)), opts.DefaultCalendarID, DefaultCalendarID)

	attendees, err := parseAttendees(first(args, attendeeKeys...))
	if err != nil {
		verr.invalid("attendees", err.Error())
	}
	req.Attendees = attendees

	var startDate, endDate bool
	if startRaw != "" {
		if req.Start, startDate, err = parseTime(startRaw, loc); err != nil {
			verr.invalid("start", err.Error())
		}
	}
	if endRaw != "" {
		if req.End, endDate, err = parseTime(endRaw, loc); err != nil {
			verr.invalid("end", err.Error())
		}
	}
	if !req.Start.IsZero() && !req.End.IsZero() && !req.End.After(req.Start) {
		verr.invalid("end", "must be after start")
	}
	req.AllDay = startDate && endDate

	if !verr.empty() {
		return nil, verr
	}
	return req, nil
}

// localLayouts are accepted for timestamps without a UTC offset; they are
// interpreted in the request's time zone.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

const dateLayout = "2006-01-02"

func parseTime(s string, loc *time.Location) (time.Time, bool, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, false, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, false, nil
		}
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("unrecognized timestamp %q — use RFC3339 such as 2025-01-01T10:00:00Z", s)
}

// timeValue accepts a timestamp string or a provider-style
// {dateTime|date, timeZone} object.
func timeValue(v any) (string, string) {
	if m, ok := v.(map[string]any); ok {
		ts := firstNonEmpty(stringValue(first(m, "dateTime")), stringValue(first(m, "date")))
		return ts, stringValue(first(m, timeZoneKeys...))
	}
	return stringValue(v), ""
}

// parseAttendees accepts a list of emails, a list of {email} objects, or a
// comma/semicolon separated string. Addresses are deduplicated
// case-insensitively and keep first-seen order and spelling.
func parseAttendees(v any) ([]string, error) {
	var raw []string
	switch a := v.(type) {
	case nil:
		return nil, nil
	case string:
		raw = strings.FieldsFunc(a, func(r rune) bool { return r == ',' || r == ';' })
	case []any:
		for _, item := range a {
			switch it := item.(type) {
			case string:
				raw = append(raw, it)
			case map[string]any:
				raw = append(raw, stringValue(first(it, "email")))
			}
		}
	case map[string]any:
		raw = append(raw, stringValue(first(a, "email")))
	default:
		return nil, fmt.Errorf("expected a list of email addresses")
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		e = strings.TrimSpace(e)
		key := strings.ToLower(e)
		if e == "" || seen[key] {
			continue
		}
		if err := validate.Email(e); err != nil {
			return nil, err
		}
		seen[key] = true
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// lookup finds key in m ignoring case and surrounding whitespace. An exact
// match wins over a folded one.
func lookup(m map[string]any, key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			return v, true
		}
	}
	return nil, false
}

// first returns the value of the first alias present in m.
func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := lookup(m, k); ok && v != nil {
			return v
		}
	}
	return nil
}

func walk(v any, path ...any) any {
	for _, p := range path {
		switch step := p.(type) {
		case string:
			m, ok := v.(map[string]any)
			if !ok {
				return nil
			}
			v, _ = lookup(m, step)
		case int:
			list, ok := v.([]any)
			if !ok || step >= len(list) {
				return nil
			}
			v = list[step]
		}
	}
	return v
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
