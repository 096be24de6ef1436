package client

import (
	"fmt"
	"strings"
)

// TransportError reports that no response was received.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: error connecting to %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a response with a status other than 200.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: server returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: server returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// APIError is an application-level error carried by a 200 response.
type APIError struct {
	Op              string
	Message         string
	AvailableTopics []string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Message)
	if len(e.AvailableTopics) > 0 {
		msg += " (available topics: " + strings.Join(e.AvailableTopics, ", ") + ")"
	}
	return msg
}
