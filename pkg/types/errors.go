package types

import (
	"errors"
	"fmt"
)

// Pre-flight errors. Any of these aborts the run before a request is sent.
var (
	ErrInsufficientProxies     = errors.New("insufficient proxies")
	ErrNoWorkItems             = errors.New("no work items")
	ErrNoProxies               = errors.New("no proxies")
	ErrInvalidAccountsPerProxy = errors.New("accounts per proxy must be at least 1")
)

// ConfigurationError reports a fatal problem found before execution starts
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
