// Package submit runs one event submission: normalize the payload, make sure
// calendar credentials exist, and insert the event.
package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/evert/calendar-webhook-go/internal/auth"
	"github.com/evert/calendar-webhook-go/internal/calendar"
	"github.com/evert/calendar-webhook-go/internal/event"
	"github.com/evert/calendar-webhook-go/internal/idempotency"
)

// AuthorizationRequired is returned when no usable refresh token is on
// record. AuthURL is where the operator grants access.
type AuthorizationRequired struct {
	AuthURL string
	Err     error
}

func (e *AuthorizationRequired) Error() string {
	return e.Err.Error()
}

func (e *AuthorizationRequired) Unwrap() error { return e.Err }

// Outcome describes a submission. Call is set whenever the payload was
// recognized as a tool call, including on failure, so the caller can reply
// in the tool-call shape.
type Outcome struct {
	Call     *event.ToolCall
	Request  *event.Request
	Result   *calendar.Result
	Replayed bool
}

// Service inserts events. Credentials may be nil for providers that
// authenticate on their own (CalDAV); Idempotency may be nil to disable
// replay.
type Service struct {
	Inserter    calendar.Inserter
	Credentials auth.Credentials
	Idempotency idempotency.Store
	Options     event.Options
}

// Submit normalizes raw and inserts the event. key is an optional
// caller-supplied idempotency key; the tool-call id is used when it is empty.
func (s *Service) Submit(ctx context.Context, raw []byte, key string) (*Outcome, error) {
	out := &Outcome{}

	req, err := event.Normalize(raw, s.Options)
	if err != nil {
		var verr *event.ValidationError
		if errors.As(err, &verr) {
			out.Call = verr.Call
		}
		return out, err
	}
	out.Call = req.Call
	out.Request = req

	if key == "" && req.Call != nil {
		key = req.Call.ID
	}
	if res, ok := s.replay(ctx, key); ok {
		out.Result = res
		out.Replayed = true
		return out, nil
	}

	if s.Credentials != nil {
		if _, err := s.Credentials.ValidToken(ctx); err != nil {
			if errors.Is(err, auth.ErrNotAuthorized) {
				return out, &AuthorizationRequired{
					AuthURL: s.Credentials.AuthURL(auth.DefaultState),
					Err:     err,
				}
			}
			return out, fmt.Errorf("loading calendar credentials: %w", err)
		}
	}

	res, err := s.Inserter.Insert(ctx, req)
	if err != nil {
		if errors.Is(err, auth.ErrNotAuthorized) && s.Credentials != nil {
			return out, &AuthorizationRequired{
				AuthURL: s.Credentials.AuthURL(auth.DefaultState),
				Err:     err,
			}
		}
		return out, err
	}
	out.Result = res

	s.remember(ctx, key, res)
	return out, nil
}

// replay returns a remembered result for key. Store failures are logged and
// treated as a miss.
func (s *Service) replay(ctx context.Context, key string) (*calendar.Result, bool) {
	if s.Idempotency == nil || key == "" {
		return nil, false
	}
	data, ok, err := s.Idempotency.Get(ctx, key)
	if err != nil {
		slog.Warn("idempotency lookup failed — inserting anyway", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var res calendar.Result
	if err := json.Unmarshal(data, &res); err != nil {
		slog.Warn("unreadable idempotency record — inserting anyway", "key", key, "error", err)
		return nil, false
	}
	slog.Info("replaying previous result", "key", key, "event_id", res.ID)
	return &res, true
}

func (s *Service) remember(ctx context.Context, key string, res *calendar.Result) {
	if s.Idempotency == nil || key == "" {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		slog.Warn("encoding idempotency record", "key", key, "error", err)
		return
	}
	if err := s.Idempotency.Put(ctx, key, data); err != nil {
		slog.Warn("storing idempotency record", "key", key, "error", err)
	}
}
