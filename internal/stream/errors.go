package stream

import (
	"fmt"
	"net/url"
	"strings"

	"vmonitor-agent/internal/config"
)

// TransportError is a connection-level failure on one endpoint. Its text never contains the
// endpoint secret.
type TransportError struct {
	Op string
	// Status is the HTTP status of a rejected handshake, 0 otherwise.
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: http status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ExhaustedRetriesError is the terminal report of a session that ran out of attempts.
type ExhaustedRetriesError struct {
	Endpoint string
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("endpoint %s: gave up after %d attempts: %v", e.Endpoint, e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Last }

// TerminatedError reports a collector that asked the agent to stop sending.
type TerminatedError struct {
	Endpoint string
	Reason   string
}

func (e *TerminatedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("endpoint %s: terminated by collector", e.Endpoint)
	}
	return fmt.Sprintf("endpoint %s: terminated by collector: %s", e.Endpoint, e.Reason)
}

type redactedError struct {
	msg   string
	cause error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.cause }

// redact rewrites err so neither the raw nor the URL-escaped secret appears in its text.
func redact(err error, secret config.Secret) error {
	raw := secret.Reveal()
	if err == nil || raw == "" {
		return err
	}
	msg := err.Error()
	clean := msg
	for _, form := range []string{raw, url.QueryEscape(raw), url.PathEscape(raw)} {
		clean = strings.ReplaceAll(clean, form, secret.String())
	}
	if clean == msg {
		return err
	}
	return &redactedError{msg: clean, cause: err}
}
