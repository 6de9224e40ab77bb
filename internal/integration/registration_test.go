//go:build integration

// Package integration contains integration tests that verify full system behavior
// without requiring real Google API credentials.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/evert/calendar-webhook-go/internal/auth"
	"github.com/evert/calendar-webhook-go/internal/calendar"
	"github.com/evert/calendar-webhook-go/internal/config"
	"github.com/evert/calendar-webhook-go/internal/event"
	"github.com/evert/calendar-webhook-go/internal/idempotency"
	"github.com/evert/calendar-webhook-go/internal/mcptools"
	"github.com/evert/calendar-webhook-go/internal/submit"
	"github.com/evert/calendar-webhook-go/internal/webhook"
)

// Shared state loaded once in TestMain.
var sharedCfg *config.Config

func TestMain(m *testing.M) {
	os.Setenv("VAPI_SHARED_SECRET", "integration-secret")
	os.Setenv("TIMEZONE", "America/New_York")
	os.Setenv("TOKEN_STORE", "memory")
	os.Setenv("MCP_ENABLED", "true")

	cfg, err := config.Load("")
	if err != nil {
		panic("loading config: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		panic("validating config: " + err.Error())
	}
	sharedCfg = cfg

	os.Exit(m.Run())
}

// stack is a fully wired server in front of a fake Calendar API.
type stack struct {
	server  *httptest.Server
	inserts *atomic.Int32
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	var inserts atomic.Int32
	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/events") {
			http.NotFound(w, r)
			return
		}
		n := inserts.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["id"] = "evt-" + string(rune('0'+n))
		body["htmlLink"] = "https://calendar.google.com/event?eid=" + body["id"].(string)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(google.Close)

	store := auth.NewInMemoryTokenStore()
	_ = store.Save(context.Background(), &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	})
	mgr := auth.NewOAuthManager(&oauth2.Config{
		ClientID: "client-id",
		Endpoint: oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: google.URL + "/token"},
	}, store)

	ins, err := calendar.NewGoogle(context.Background(), mgr, sharedCfg.Calendar.SendUpdates, option.WithEndpoint(google.URL+"/"))
	if err != nil {
		t.Fatalf("NewGoogle: %v", err)
	}
	svc := &submit.Service{
		Inserter:    ins,
		Credentials: mgr,
		Idempotency: idempotency.NewMemoryStore(sharedCfg.Idempotency.TTL),
		Options: event.Options{
			DefaultTimeZone:   sharedCfg.Calendar.TimeZone,
			DefaultCalendarID: sharedCfg.Calendar.DefaultCalendarID,
		},
	}

	router, err := webhook.NewRouter(webhook.Config{
		Service:      svc,
		Secret:       sharedCfg.Webhook.Secret,
		SecretHeader: sharedCfg.Webhook.SecretHeader,
		Credentials:  mgr,
		OAuth:        mgr,
		MCP:          mcptools.Handler(mcptools.NewServer("1.0.0-test", svc, mgr, logger)),
		Logger:       logger,
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &stack{server: srv, inserts: &inserts}
}

func TestWebhookCreatesEvent(t *testing.T) {
	s := newStack(t)

	body := `{"message":{"toolCalls":[{"id":"call-1","function":{"name":"create_event","arguments":"{\"summary\":\"Dentist\",\"start_time\":\"2025-03-01T09:00\",\"end_time\":\"2025-03-01T10:00\"}"}}]}}`
	req, _ := http.NewRequest(http.MethodPost, s.server.URL+"/webhook/v1/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-vapi-key", sharedCfg.Webhook.Secret)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var out struct {
		Results []struct {
			ToolCallID string `json:"toolCallId"`
			Result     string `json:"result"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 1 || out.Results[0].ToolCallID != "call-1" {
		t.Fatalf("results = %+v", out.Results)
	}
	if !strings.Contains(out.Results[0].Result, "Dentist") {
		t.Errorf("result = %q", out.Results[0].Result)
	}
	if n := s.inserts.Load(); n != 1 {
		t.Errorf("calendar inserts = %d, want 1", n)
	}
}

func TestToolRegistrationOverHTTP(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	client := mcp.NewClient(&mcp.Implementation{Name: "integration", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: s.server.URL + "/mcp"}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools.Tools) != 2 {
		t.Errorf("registered %d tools, want 2", len(tools.Tools))
	}
	for _, tool := range tools.Tools {
		if err := mcptools.ValidateToolName(tool.Name); err != nil {
			t.Errorf("tool name %q failed SEP-986 validation: %v", tool.Name, err)
		}
		if tool.Annotations == nil || tool.Annotations.Title == "" {
			t.Errorf("tool %q has no title annotation", tool.Name)
		}
	}

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name: "create_calendar_event",
		Arguments: map[string]any{
			"summary":         "Planning",
			"start_time":      "2025-03-02T14:00:00-05:00",
			"end_time":        "2025-03-02T15:00:00-05:00",
			"idempotency_key": "plan-1",
		},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	if n := s.inserts.Load(); n != 1 {
		t.Errorf("calendar inserts = %d, want 1", n)
	}
}
