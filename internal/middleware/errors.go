package middleware

import (
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"
)

// HandleGoogleAPIError translates Google API errors into operator-actionable
// messages. The provider's own message is always carried along.
func HandleGoogleAPIError(err error) error {
	if err == nil {
		return nil
	}

	var googleErr *googleapi.Error
	if errors.As(err, &googleErr) {
		switch googleErr.Code {
		case 400:
			return fmt.Errorf(
				"bad request — the calendar rejected one of the event fields. Detail: %s",
				googleErr.Message)
		case 401:
			return fmt.Errorf(
				"calendar credentials were rejected — open /authorize to grant access again. Detail: %s",
				googleErr.Message)
		case 403:
			return fmt.Errorf(
				"permission denied — the granted scope may not allow writing to this calendar. Detail: %s",
				googleErr.Message)
		case 404:
			return fmt.Errorf(
				"calendar not found — check the calendar ID and that the authorized account can see it. Detail: %s",
				googleErr.Message)
		case 409:
			return fmt.Errorf(
				"conflict — an event with this identifier already exists. Detail: %s",
				googleErr.Message)
		case 429:
			return fmt.Errorf(
				"rate limit exceeded for the Calendar API — wait before sending more events. Detail: %s",
				googleErr.Message)
		case 500, 502, 503:
			return fmt.Errorf(
				"Google API server error (%d) — the event was not created. Detail: %s",
				googleErr.Code, googleErr.Message)
		default:
			return fmt.Errorf("Google API error (%d): %s", googleErr.Code, googleErr.Message)
		}
	}

	return err
}
