package adminclient

import (
	"fmt"
	"net/http"
)

// APIError is an error response from the admin server.
type APIError struct {
	// StatusCode is the HTTP status the server answered with
	StatusCode int

	// Message is the server's error message
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("admin server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("admin server returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the server did not recognize the command.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnavailable reports whether the server answered but is not serving.
func (e *APIError) IsUnavailable() bool {
	return e.StatusCode == http.StatusServiceUnavailable
}
