package webex

import (
	"fmt"
	"net/http"
	"strings"
)

// HTTPError is returned for any non-2xx response from the API.
type HTTPError struct {
	Op         string // create | status | download
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if hint := e.Hint(); hint != "" {
		return fmt.Sprintf("API request failed: %s: %d %s: %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode), hint)
	}
	msg := fmt.Sprintf("API request failed: %s: %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += " - " + body
	}
	return msg
}

// Hint turns the status codes the Webex API uses for credential and quota
// problems into an actionable message.
func (e *HTTPError) Hint() string {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return "Invalid or expired bearer token"
	case http.StatusForbidden:
		return "Bearer token does not have access to CDR reports. Please check your Webex permissions."
	case http.StatusTooManyRequests:
		return "Rate limited. Please wait and try again."
	default:
		return ""
	}
}
