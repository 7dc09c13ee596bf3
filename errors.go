package casseq

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is the cause carried by a ConnError after Close: the
	// generator's backend session is gone and every later call fails fast.
	ErrClosed = errors.New("casseq: generator is closed")

	// ErrRegistryClosed is reported by Registry.Get after Registry.Close.
	ErrRegistryClosed = errors.New("casseq: registry is closed")
)

// ConnError reports that the coordination backend cannot be used, either
// because dialing it failed or because the generator was already closed.
type ConnError struct {
	Endpoint string
	Err      error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("casseq: backend %q unavailable: %v", e.Endpoint, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// OpFailedError reports a clean failure: the backend finished without an
// error but the operation was not applied within its retry budget. Only
// CurrentID surfaces this as an error; NextID reports the same condition
// through the IDNotAssigned sentinel.
type OpFailedError struct {
	Op        string
	Namespace string
}

func (e *OpFailedError) Error() string {
	return fmt.Sprintf("casseq: %s %q was not successful", e.Op, e.Namespace)
}

// BackendError wraps an error raised by the coordination backend while an
// operation was in flight.
type BackendError struct {
	Op   string
	Path string
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("casseq: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
