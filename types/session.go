package types

// SessionOutcome describes how a chunked transfer session ended.
type SessionOutcome string

const (
	// SessionCompleted indicates the host signaled completion and the
	// caller's pending call resolved with the host's response.
	SessionCompleted SessionOutcome = "completed"
	// SessionExpired indicates no completion signal arrived within the
	// session timeout.
	SessionExpired SessionOutcome = "expired"
	// SessionAborted indicates a chunk send failed at the transport level.
	SessionAborted SessionOutcome = "aborted"
)

// IsTerminal reports whether o is a defined outcome. Sessions have no
// non-terminal outcome values, so event publishers use this to reject
// anything outside the defined set.
func (o SessionOutcome) IsTerminal() bool {
	return o == SessionCompleted || o == SessionExpired || o == SessionAborted
}

// BridgeMeta identifies a bridge instance for logging context.
type BridgeMeta struct {
	// BridgeID is a unique identifier for this bridge instance.
	BridgeID string
	// Component names the side of the bridge emitting the log entry,
	// "client" or "host".
	Component string
}
