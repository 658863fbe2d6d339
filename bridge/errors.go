// Package bridge implements the chunked message bridge client.
//
// This file defines sentinel errors and error wrappers for classifying
// bridge failures. These enable callers to use errors.Is/errors.As for
// typed assertions rather than string matching.
package bridge

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/sluice/session"
)

// Sentinel errors for bridge failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrTransport indicates the underlying send primitive rejected a
	// message. Not retried by this layer.
	ErrTransport = errors.New("transport send failed")

	// ErrTimeout indicates no completion signal arrived within the session
	// timeout. Aliased from the session package so callers only need this
	// package's sentinels.
	ErrTimeout = session.ErrTimeout
)

// TransportError wraps a transport-level send failure.
// It preserves the original error in the chain for inspection via errors.As.
type TransportError struct {
	// SessionID is the owning session for chunked sends, empty for the
	// single-message path.
	SessionID string
	// Chunk is the zero-based index of the failed chunk, -1 for the
	// single-message path.
	Chunk int
	// Err is the underlying transport error.
	Err error
}

func (e *TransportError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("send message: %v", e.Err)
	}
	return fmt.Sprintf("send chunk %d for session %s: %v", e.Chunk, e.SessionID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the transport sentinel.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
