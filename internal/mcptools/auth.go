package mcptools

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/evert/calendar-webhook-go/internal/auth"
	"github.com/evert/calendar-webhook-go/internal/pkg/ptr"
	"github.com/evert/calendar-webhook-go/internal/pkg/response"
)

func registerAuthTools(server *mcp.Server, creds auth.Credentials) {
	addTool(server, &mcp.Tool{
		Name:        "authorize_calendar",
		Icons:       serviceIcons,
		Description: "Return the Google consent URL for granting calendar access, along with whether access is currently authorized. After the operator approves, the OAuth callback stores the token for all later event submissions.",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Authorize Calendar Access",
			ReadOnlyHint:  true,
			OpenWorldHint: ptr.Bool(true),
		},
	}, createAuthorizeHandler(creds))
}

type AuthorizeInput struct{}

func createAuthorizeHandler(creds auth.Credentials) mcp.ToolHandlerFor[AuthorizeInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ AuthorizeInput) (*mcp.CallToolResult, any, error) {
		rb := response.New()
		rb.Header("Calendar Authorization")

		if mgr, ok := creds.(*auth.OAuthManager); ok {
			st, err := mgr.Status(ctx)
			if err != nil {
				return nil, nil, err
			}
			if st.Authorized {
				rb.KeyValue("Status", "authorized")
				rb.KeyValue("Access token expires", st.Expiry.Format(time.RFC3339))
			} else {
				rb.KeyValue("Status", "not authorized")
			}
		}

		authURL := creds.AuthURL(auth.DefaultState)
		if authURL == "" {
			rb.Line("This server uses a service account; no consent is needed.")
			return rb.TextResult(), nil, nil
		}
		rb.Blank()
		rb.Line("To (re)authorize, visit:")
		rb.Line("%s", authURL)
		rb.Blank()
		rb.Line("After granting access, the OAuth callback stores the token automatically.")
		return rb.TextResult(), nil, nil
	}
}
