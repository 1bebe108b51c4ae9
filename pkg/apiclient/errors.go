package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is an error response from the server. Admin endpoints answer
// with RFC 7807 problem documents; the OAuth token endpoint answers with
// RFC 6749 error bodies. Both decode into this one type.
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (%d): %s", e.Title, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s (%d)", e.Title, e.StatusCode)
}

// IsAuthError reports whether the server rejected the credentials.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound reports whether the resource does not exist.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsConflict reports whether the request collided with existing state.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

// decodeAPIError maps an error response body onto APIError. Unrecognized
// bodies are carried verbatim in Detail so nothing is swallowed.
func decodeAPIError(status int, body []byte) error {
	var problem struct {
		Title            string `json:"title"`
		Detail           string `json:"detail"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(body, &problem) == nil {
		switch {
		case problem.Title != "":
			return &APIError{StatusCode: status, Title: problem.Title, Detail: problem.Detail}
		case problem.Error != "":
			return &APIError{StatusCode: status, Title: problem.Error, Detail: problem.ErrorDescription}
		}
	}
	return &APIError{
		StatusCode: status,
		Title:      http.StatusText(status),
		Detail:     strings.TrimSpace(string(body)),
	}
}
