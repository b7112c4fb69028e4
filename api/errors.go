package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// APIError is a non-2xx response from the REST collaborator. Business
// failures (validation, not-found) are propagated to callers untouched in
// this form for caller-specific handling.
type APIError struct {
	StatusCode int
	Detail     string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// newAPIError extracts a human-readable detail from the response body.
// The collaborator reports either {"detail": "..."} or, for validation
// failures, a field-to-messages map; the first message wins.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: body}

	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
		apiErr.Detail = detail.Detail
		return apiErr
	}

	var fields map[string][]string
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, messages := range fields {
			if len(messages) > 0 {
				apiErr.Detail = messages[0]
				break
			}
		}
	}
	return apiErr
}

// IsStatus reports whether err is an *APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// IsUnauthorized reports whether err is a 401 that survived the refresh
// protocol.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}
