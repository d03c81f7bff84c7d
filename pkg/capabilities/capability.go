// Package capabilities implements the external collaborators invoked by node
// kinds: text generation, knowledge storage, URL scraping and HTTP calls.
// All of them share a single failure contract, the capability Error.
package capabilities

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a capability failure.
type ErrorKind string

const (
	ErrorKindProvider  ErrorKind = "ProviderError"
	ErrorKindScrape    ErrorKind = "ScrapeError"
	ErrorKindHTTP      ErrorKind = "HttpError"
	ErrorKindKnowledge ErrorKind = "KnowledgeError"
	ErrorKindTimeout   ErrorKind = "Timeout"
)

// Error is the uniform failure value returned by every capability. It is
// recorded at the failing node and propagated downstream as skip/failure,
// never crashing the engine.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errorf creates a capability error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// KindOf extracts the capability error kind from err, if it carries one.
func KindOf(err error) (ErrorKind, bool) {
	var capErr *Error
	if errors.As(err, &capErr) {
		return capErr.Kind, true
	}

	return "", false
}
