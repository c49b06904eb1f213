package sheets

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// SnippetLimit bounds the raw text carried by TransportError.
const SnippetLimit = 300

// ConfigError reports a required endpoint or credential that is not
// configured. Retrying cannot help.
type ConfigError struct {
	Setting string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s not configured", e.Setting)
}

// TransportError covers network failures, HTTP error statuses and
// responses that are not JSON.
type TransportError struct {
	Op      string
	Status  int
	Snippet string
	Err     error
}

func (e *TransportError) Error() string {
	msg := e.Op
	if e.Status != 0 {
		msg += fmt.Sprintf(": http %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Snippet != "" {
		msg += fmt.Sprintf(" (body: %q)", e.Snippet)
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// FailureError is a well-formed response that did not report success,
// or reported it without a usable id. Payload is the decoded body.
type FailureError struct {
	Op      string
	Reason  string
	Payload json.RawMessage
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Reason)
}

// Snippet returns at most SnippetLimit runes of body.
func Snippet(body []byte) string {
	if utf8.RuneCount(body) <= SnippetLimit {
		return string(body)
	}
	n := 0
	for i := range string(body) {
		if n == SnippetLimit {
			return string(body[:i])
		}
		n++
	}
	return string(body)
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsFailure reports whether err is or wraps a FailureError.
func IsFailure(err error) bool {
	var fe *FailureError
	return errors.As(err, &fe)
}
