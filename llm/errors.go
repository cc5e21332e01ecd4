package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a provider-neutral call error.
type Error struct {
	Type    ErrorType
	Message string
	// StatusCode and Body are set for ErrorTypeRequestFailed.
	StatusCode int
	Body       string
	// ToolName is set for ErrorTypeToolFailed.
	ToolName  string
	Retryable bool
	Err       error // Underlying cause
}

// ErrorType represents the category of error.
type ErrorType string

const (
	// ErrorTypeNoCompletions means the response carried no completions. Fatal
	// for a single call, but the tool loop falls back to its last good response.
	ErrorTypeNoCompletions ErrorType = "no_completions"
	// ErrorTypeRequestFailed means the provider returned a non-2xx status.
	ErrorTypeRequestFailed ErrorType = "request_failed"
	// ErrorTypeAPI covers transport and deserialization failures.
	ErrorTypeAPI ErrorType = "api"
	// ErrorTypeToolFailed means a requested tool is unknown or its handler failed.
	ErrorTypeToolFailed ErrorType = "tool_failed"
	// ErrorTypeOther covers malformed envelopes and everything else.
	ErrorTypeOther ErrorType = "other"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	switch e.Type {
	case ErrorTypeRequestFailed:
		msg = fmt.Sprintf("%s: status %d: %s", msg, e.StatusCode, e.Body)
	case ErrorTypeToolFailed:
		msg = fmt.Sprintf("%s: tool %q", msg, e.ToolName)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr, true
	}
	return nil, false
}

func isType(err error, t ErrorType) bool {
	llmErr, ok := AsError(err)
	return ok && llmErr.Type == t
}

// IsNoCompletions checks if an error is a NoCompletions error.
func IsNoCompletions(err error) bool {
	return isType(err, ErrorTypeNoCompletions)
}

// IsRequestFailed checks if an error is a RequestFailed error.
func IsRequestFailed(err error) bool {
	return isType(err, ErrorTypeRequestFailed)
}

// IsAPIError checks if an error is a transport/deserialization error.
func IsAPIError(err error) bool {
	return isType(err, ErrorTypeAPI)
}

// IsToolFailed checks if an error is a ToolFailed error.
func IsToolFailed(err error) bool {
	return isType(err, ErrorTypeToolFailed)
}

// IsRetryableError checks if an error is retryable.
func IsRetryableError(err error) bool {
	llmErr, ok := AsError(err)
	return ok && llmErr.Retryable
}

// NewNoCompletionsError creates a new NoCompletions error.
func NewNoCompletionsError() *Error {
	return &Error{
		Type:    ErrorTypeNoCompletions,
		Message: "no completions returned",
	}
}

// NewRequestFailedError creates a new RequestFailed error. Rate limits and
// server errors are marked retryable.
func NewRequestFailedError(statusCode int, body string, cause error) *Error {
	return &Error{
		Type:       ErrorTypeRequestFailed,
		Message:    "request failed",
		StatusCode: statusCode,
		Body:       body,
		Retryable:  statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError,
		Err:        cause,
	}
}

// NewAPIError creates a new transport/deserialization error.
func NewAPIError(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeAPI,
		Message: message,
		Err:     cause,
	}
}

// NewToolFailedError creates a new ToolFailed error.
func NewToolFailedError(name string, cause error) *Error {
	return &Error{
		Type:     ErrorTypeToolFailed,
		Message:  "tool call failed",
		ToolName: name,
		Err:      cause,
	}
}

// NewOtherError creates a catch-all error.
func NewOtherError(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeOther,
		Message: message,
		Err:     cause,
	}
}

// Otherf creates a catch-all error from a format string.
func Otherf(format string, args ...any) *Error {
	return NewOtherError(fmt.Sprintf(format, args...), nil)
}
