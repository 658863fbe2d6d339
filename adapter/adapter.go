// Package adapter defines the session event publishing boundary.
//
// Adapters publish session lifecycle notifications to downstream systems.
// Publishing is best-effort: a failed publish is logged by the caller and
// never affects bridge semantics.
package adapter

import (
	"context"
	"fmt"

	"github.com/pithecene-io/sluice/types"
)

// SessionEventType is the event type discriminant for session events.
const SessionEventType = "session_event"

// SessionEvent is the payload published when a chunked session reaches a
// terminal outcome.
type SessionEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "session_event"
	SessionID       string `json:"session_id"`
	Outcome         string `json:"outcome"` // completed, expired, aborted
	TotalChunks     int    `json:"total_chunks"`
	PayloadBytes    int    `json:"payload_bytes"`
	ResponseBytes   int    `json:"response_bytes,omitempty"`
	DurationMs      int64  `json:"duration_ms"`
	Timestamp       string `json:"timestamp"` // ISO 8601
}

// Validate checks the event is publishable. Events exist only for settled
// sessions, so a session id and a terminal outcome are required.
func (e *SessionEvent) Validate() error {
	if e.SessionID == "" {
		return fmt.Errorf("session event missing session id")
	}
	if !types.SessionOutcome(e.Outcome).IsTerminal() {
		return fmt.Errorf("session event outcome %q is not terminal", e.Outcome)
	}
	return nil
}

// Adapter publishes session events to a downstream system.
type Adapter interface {
	// Publish sends a session event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *SessionEvent) error

	// Close releases adapter resources.
	Close() error
}
