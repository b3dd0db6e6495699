package transport

import (
	"fmt"
)

// Payload is a decoded JSON object. Field reads are lenient: a missing or
// mistyped field reads as the default.
type Payload map[string]any

// String returns the field rendered as text, or def when absent or null
func (p Payload) String(key, def string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Bool returns the field when it is a JSON boolean, false otherwise
func (p Payload) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// Error is returned once every attempt of a call has failed
type Error struct {
	Method   string
	URL      string
	Attempts int
	Err      error
	// Payload is the last JSON object the server answered with, if any
	Payload Payload
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: failed after %d attempts: %v", e.Method, e.URL, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError reports a non-2xx response
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}
