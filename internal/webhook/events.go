package webhook

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/evert/calendar-webhook-go/internal/auth"
	"github.com/evert/calendar-webhook-go/internal/calendar"
	"github.com/evert/calendar-webhook-go/internal/event"
	"github.com/evert/calendar-webhook-go/internal/middleware"
	"github.com/evert/calendar-webhook-go/internal/pkg/response"
	"github.com/evert/calendar-webhook-go/internal/submit"
)

type eventsHandler struct {
	service      *submit.Service
	secret       string
	secretHeader string
}

func (h *eventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.RequestID(ctx)

	if !h.authenticated(r) {
		slog.Warn("rejected webhook call with invalid shared secret",
			"request_id", reqID,
			"header", h.secretHeader,
		)
		response.WriteJSON(w, http.StatusUnauthorized, response.Envelope{
			Message: fmt.Sprintf("Unauthorized: invalid %s", h.secretHeader),
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.WriteJSON(w, http.StatusRequestEntityTooLarge, response.Envelope{
				Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		response.WriteJSON(w, http.StatusBadRequest, response.Envelope{Message: "unreadable request body"})
		return
	}

	out, err := h.service.Submit(ctx, body, strings.TrimSpace(r.Header.Get(IdempotencyHeader)))
	if err != nil {
		writeError(w, reqID, out.Call, err)
		return
	}

	res := out.Result
	msg := fmt.Sprintf("Event '%s' created", res.Summary)
	if out.Replayed {
		msg = fmt.Sprintf("Event '%s' was already created", res.Summary)
	} else {
		slog.Info("event created", "request_id", reqID, "event_id", res.ID, "link", res.Link)
	}

	if out.Call != nil {
		text := msg
		if res.Link != "" {
			text = fmt.Sprintf("%s: %s", msg, res.Link)
		}
		response.WriteJSON(w, http.StatusOK, response.ToolResults{
			Results: []response.ToolResult{{ToolCallID: out.Call.ID, Result: text}},
		})
		return
	}
	response.WriteJSON(w, http.StatusOK, response.Envelope{
		OK:      true,
		Message: msg,
		Link:    res.Link,
		Data:    res,
	})
}

// authenticated compares the shared-secret header in constant time.
func (h *eventsHandler) authenticated(r *http.Request) bool {
	got := r.Header.Get(h.secretHeader)
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}

// writeError maps a submission failure to a status and reply. Tool-call
// payloads get the tool-call envelope with the message as the error text.
func writeError(w http.ResponseWriter, reqID string, call *event.ToolCall, err error) {
	status := http.StatusInternalServerError
	env := response.Envelope{Message: err.Error()}

	var (
		verr     *event.ValidationError
		authErr  *submit.AuthorizationRequired
		upstream *calendar.UpstreamError
		cfgErr   *auth.ConfigError
	)
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		env.Message = "Invalid request: " + verr.Error()
		env.Missing = verr.Missing
		env.Invalid = verr.Invalid
		slog.Info("rejected invalid event request", "request_id", reqID, "error", err)

	case errors.As(err, &authErr):
		status = http.StatusBadRequest
		env.Message = "Calendar access is not authorized. Visit the authorization URL, then retry the request."
		env.AuthURL = authErr.AuthURL
		slog.Warn("event submitted before calendar authorization", "request_id", reqID)

	case errors.As(err, &upstream):
		env.Message = upstream.Err.Error()
		slog.Error("calendar provider rejected event",
			"request_id", reqID,
			"provider", upstream.Provider,
			"status", upstream.StatusCode,
			"error", upstream.Err,
		)

	case errors.As(err, &cfgErr):
		slog.Error("calendar client misconfigured", "request_id", reqID, "error", err)

	default:
		slog.Error("event submission failed", "request_id", reqID, "error", err)
	}

	if call != nil {
		text := env.Message
		if env.AuthURL != "" {
			text = fmt.Sprintf("%s %s", text, env.AuthURL)
		}
		response.WriteJSON(w, status, response.ToolResults{
			Results: []response.ToolResult{{ToolCallID: call.ID, Error: text}},
		})
		return
	}
	response.WriteJSON(w, status, env)
}
