// Package metrics provides bridge metrics collection.
//
// The Collector accumulates counters over a bridge's lifetime. It is a leaf
// package with no internal dependencies. All increment methods are
// nil-receiver safe so instrumentation sites never need nil checks.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all bridge metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Call lifecycle
	CallsStarted   int64 `json:"calls_started"`
	CallsCompleted int64 `json:"calls_completed"`
	CallsFailed    int64 `json:"calls_failed"`

	// Path selection
	SingleMessages  int64 `json:"single_messages"`
	ChunkedSessions int64 `json:"chunked_sessions"`

	// Session outcomes
	SessionsCompleted int64 `json:"sessions_completed"`
	SessionsExpired   int64 `json:"sessions_expired"`
	SessionsAborted   int64 `json:"sessions_aborted"`

	// Wire traffic
	ChunksSent          int64 `json:"chunks_sent"`
	BytesSent           int64 `json:"bytes_sent"`
	BytesReceived       int64 `json:"bytes_received"`
	OrphanedCompletions int64 `json:"orphaned_completions"`

	// Dimensions (informational, set at construction)
	BridgeID  string `json:"bridge_id"`
	Component string `json:"component"`
}

// Collector accumulates bridge metrics.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	callsStarted   int64
	callsCompleted int64
	callsFailed    int64

	singleMessages  int64
	chunkedSessions int64

	sessionsCompleted int64
	sessionsExpired   int64
	sessionsAborted   int64

	chunksSent          int64
	bytesSent           int64
	bytesReceived       int64
	orphanedCompletions int64

	bridgeID  string
	component string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(bridgeID, component string) *Collector {
	return &Collector{
		bridgeID:  bridgeID,
		component: component,
	}
}

// IncCallStarted records a bridge call entering the transport.
func (c *Collector) IncCallStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.callsStarted++
	c.mu.Unlock()
}

// IncCallCompleted records a call that resolved with a response.
func (c *Collector) IncCallCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.callsCompleted++
	c.mu.Unlock()
}

// IncCallFailed records a call that settled with an error.
func (c *Collector) IncCallFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.callsFailed++
	c.mu.Unlock()
}

// IncSingleMessage records a call dispatched on the single-message path.
func (c *Collector) IncSingleMessage() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.singleMessages++
	c.mu.Unlock()
}

// IncChunkedSession records a call dispatched on the chunked path.
func (c *Collector) IncChunkedSession() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunkedSessions++
	c.mu.Unlock()
}

// IncSessionCompleted records a session resolved by a completion signal.
func (c *Collector) IncSessionCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsCompleted++
	c.mu.Unlock()
}

// IncSessionExpired records a session rejected by timeout.
func (c *Collector) IncSessionExpired() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsExpired++
	c.mu.Unlock()
}

// IncSessionAborted records a session rejected by transport failure.
func (c *Collector) IncSessionAborted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsAborted++
	c.mu.Unlock()
}

// AddChunksSent records acknowledged chunk sends.
func (c *Collector) AddChunksSent(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksSent += n
	c.mu.Unlock()
}

// AddBytesSent records payload bytes handed to the transport.
func (c *Collector) AddBytesSent(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bytesSent += n
	c.mu.Unlock()
}

// AddBytesReceived records response bytes delivered back to callers.
func (c *Collector) AddBytesReceived(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bytesReceived += n
	c.mu.Unlock()
}

// IncOrphanedCompletion records a completion signal for an unknown session.
func (c *Collector) IncOrphanedCompletion() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.orphanedCompletions++
	c.mu.Unlock()
}

// Snapshot returns an immutable copy of all counters.
// Nil-receiver safe: returns a zero snapshot.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		CallsStarted:        c.callsStarted,
		CallsCompleted:      c.callsCompleted,
		CallsFailed:         c.callsFailed,
		SingleMessages:      c.singleMessages,
		ChunkedSessions:     c.chunkedSessions,
		SessionsCompleted:   c.sessionsCompleted,
		SessionsExpired:     c.sessionsExpired,
		SessionsAborted:     c.sessionsAborted,
		ChunksSent:          c.chunksSent,
		BytesSent:           c.bytesSent,
		BytesReceived:       c.bytesReceived,
		OrphanedCompletions: c.orphanedCompletions,
		BridgeID:            c.bridgeID,
		Component:           c.component,
	}
}
