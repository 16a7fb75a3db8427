package config

import (
	"errors"
	"strings"
)

var (
	ErrInvalidServer      = errors.New("server must be a ws:// or wss:// URI")
	ErrMissingSecret      = errors.New("secret is required")
	ErrMissingName        = errors.New("name is required")
	ErrDuplicateEndpoint  = errors.New("duplicate endpoint name")
	ErrNoEnabledEndpoints = errors.New("at least one enabled endpoint is required")
	ErrInvalidPolicy      = errors.New("invalid connection policy")
	ErrInvalidFormat      = errors.New("format must be msgpack or json")
	ErrInvalidDuration    = errors.New("duration must be > 0")
	ErrEndpointNotFound   = errors.New("endpoint not found")
)

// ConfigError is fatal at startup and lists every problem found during validation.
type ConfigError struct {
	Problems []error
}

func (e *ConfigError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Error())
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

func (e *ConfigError) Unwrap() []error {
	return e.Problems
}
