package auth

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
)

// DefaultState is the OAuth state parameter used for consent links. There is
// a single credential, so the state carries no per-user information.
const DefaultState = "calendar-webhook"

// maxCallbackBody caps the body read when the code is posted.
const maxCallbackBody = 64 << 10

// AuthorizeHandler redirects the browser to the consent screen.
func AuthorizeHandler(creds Credentials) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url := creds.AuthURL(DefaultState)
		if url == "" {
			writePage(w, http.StatusBadRequest, renderErrorPage("This server uses a service account; no authorization is needed."))
			return
		}
		slog.Info("redirecting to consent screen")
		http.Redirect(w, r, url, http.StatusFound)
	}
}

// OAuthCallbackHandler returns an http.HandlerFunc that handles the OAuth 2.0
// callback. The authorization code may arrive in the query string, a form
// body, or a JSON body ({"code": "..."}); it is exchanged and the token persisted.
func OAuthCallbackHandler(oauthMgr *OAuthManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, errMsg := callbackParams(w, r)

		if errMsg != "" {
			slog.Error("OAuth callback error", "error", errMsg)
			writePage(w, http.StatusBadRequest, renderErrorPage(errMsg))
			return
		}

		if code == "" {
			slog.Error("OAuth callback missing code")
			writePage(w, http.StatusBadRequest, renderErrorPage("No authorization code received."))
			return
		}

		if _, err := oauthMgr.ExchangeCode(r.Context(), code); err != nil {
			slog.Error("OAuth token exchange failed", "error", err)
			writePage(w, http.StatusInternalServerError, renderErrorPage(fmt.Sprintf("Token exchange failed: %v", err)))
			return
		}

		slog.Info("OAuth authorization successful")
		writePage(w, http.StatusOK, renderSuccessPage())
	}
}

// callbackParams extracts the code and provider error from the query string,
// falling back to the request body for POSTs.
func callbackParams(w http.ResponseWriter, r *http.Request) (code, errMsg string) {
	q := r.URL.Query()
	code, errMsg = q.Get("code"), q.Get("error")
	if code != "" || errMsg != "" || r.Method != http.MethodPost {
		return code, errMsg
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	body := http.MaxBytesReader(w, r.Body, maxCallbackBody)

	switch mediaType {
	case "application/x-www-form-urlencoded":
		r.Body = body
		if err := r.ParseForm(); err != nil {
			slog.Warn("unreadable callback form", "error", err)
			return "", ""
		}
		return strings.TrimSpace(r.PostForm.Get("code")), r.PostForm.Get("error")
	default:
		data, err := io.ReadAll(body)
		if err != nil {
			slog.Warn("unreadable callback body", "error", err)
			return "", ""
		}
		var payload struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(data, &payload); err == nil {
			return strings.TrimSpace(payload.Code), payload.Error
		}
		// A bare code posted as text.
		return strings.TrimSpace(string(data)), ""
	}
}

func writePage(w http.ResponseWriter, status int, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, page)
}

const pageStyle = `
    * { margin: 0; padding: 0; box-sizing: border-box; }
    body {
      font-family: 'Segoe UI', system-ui, -apple-system, sans-serif;
      background: #f4f6f8;
      color: #202124;
      min-height: 100vh;
      display: flex;
      align-items: center;
      justify-content: center;
    }
    .card {
      background: #ffffff;
      border: 1px solid #dadce0;
      border-radius: 12px;
      padding: 40px;
      max-width: 480px;
      width: 90%;
      text-align: center;
    }
    h1 { font-size: 22px; font-weight: 600; margin-bottom: 12px; }
    .ok { color: #188038; }
    .fail { color: #d93025; }
    .detail {
      font-size: 14px;
      color: #5f6368;
      line-height: 1.6;
      word-break: break-word;
    }`

func renderSuccessPage() string {
	return `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Calendar Authorized</title>
  <style>` + pageStyle + `
  </style>
</head>
<body>
  <div class="card">
    <h1 class="ok">Calendar access authorized</h1>
    <p class="detail">The token has been saved. Calendar events can now be created.<br>You can close this window.</p>
  </div>
</body>
</html>`
}

func renderErrorPage(errMsg string) string {
	return `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Authorization Failed</title>
  <style>` + pageStyle + `
  </style>
</head>
<body>
  <div class="card">
    <h1 class="fail">Authorization failed</h1>
    <p class="detail">` + html.EscapeString(errMsg) + `</p>
    <p class="detail">Open /authorize to start again.</p>
  </div>
</body>
</html>`
}
