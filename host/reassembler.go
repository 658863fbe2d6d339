// Package host implements the host side of the bridge contract: chunk
// frame detection, fragment buffering and reassembly, action dispatch, and
// delivery of the out-of-band completion signal.
package host

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/wire"
)

// Partial transfer housekeeping defaults. The expiry is generous: large
// messages over slow channels may take a while to finish arriving.
const (
	// DefaultPartialExpiry is how long an incomplete transfer may sit
	// before its fragments are discarded.
	DefaultPartialExpiry = 5 * time.Minute
	// DefaultSweepInterval is the cleanup sweep period.
	DefaultSweepInterval = 30 * time.Second
)

// ProcessResult reports the outcome of feeding one message to the
// Reassembler.
type ProcessResult struct {
	// Complete is true when Payload holds a full serialized envelope,
	// either a single message or the last fragment's reassembly.
	Complete bool
	// Payload is the serialized envelope when Complete.
	Payload string
	// SessionID is set for chunk frames; empty for single messages.
	SessionID string
	// TotalChunks is the session's fragment count, for chunk frames.
	TotalChunks int
	// StartTime is when the first fragment arrived, for chunk frames.
	StartTime time.Time
}

// partial buffers fragments for one in-flight transfer.
// seen distinguishes an unreceived fragment from a legitimately empty one.
type partial struct {
	fragments []string
	seen      []bool
	received  int
	createdAt time.Time
}

// ExpiredPartial describes an incomplete transfer discarded by the sweep.
type ExpiredPartial struct {
	// SessionID is the abandoned transfer.
	SessionID string
	// TotalChunks is the fragment count the transfer announced.
	TotalChunks int
	// Received is how many fragments had arrived.
	Received int
	// PayloadBytes is the buffered fragment byte count.
	PayloadBytes int
	// StartTime is when the first fragment arrived.
	StartTime time.Time
}

// Reassembler buffers chunk fragments by session id until a transfer
// completes. Abandoned partial transfers are discarded by a periodic
// sweep. Thread-safe.
type Reassembler struct {
	mu       sync.Mutex
	pending  map[string]*partial
	expiry   time.Duration
	onExpire func(ExpiredPartial)
	started  bool
	lg       *log.Logger

	sweepInterval time.Duration
	stop          chan struct{}
	done          chan struct{}
	stopOnce      sync.Once
}

// NewReassembler creates a reassembler. Zero durations take defaults.
func NewReassembler(expiry, sweepInterval time.Duration, lg *log.Logger) *Reassembler {
	if expiry <= 0 {
		expiry = DefaultPartialExpiry
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	if lg == nil {
		lg = log.Nop()
	}
	return &Reassembler{
		pending:       make(map[string]*partial),
		expiry:        expiry,
		lg:            lg,
		sweepInterval: sweepInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// SetOnExpire installs a hook invoked once per partial transfer the sweep
// discards. The hook runs outside the reassembler lock.
func (r *Reassembler) SetOnExpire(fn func(ExpiredPartial)) {
	r.mu.Lock()
	r.onExpire = fn
	r.mu.Unlock()
}

// Start launches the cleanup sweep. Call Stop to terminate it.
func (r *Reassembler) Start() {
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
	go r.loop()
}

// Stop terminates the cleanup sweep and discards pending fragments.
// Safe to call multiple times.
func (r *Reassembler) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })

	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if started {
		<-r.done
	}

	r.mu.Lock()
	r.pending = make(map[string]*partial)
	r.mu.Unlock()
}

// Process feeds one inbound message to the reassembler.
//
// Non-chunk messages pass through complete. Chunk frames are buffered by
// session id in index order; out-of-order arrival is tolerated and a
// duplicate index is ignored (first write wins). When the last missing
// fragment arrives the transfer's concatenation is returned and its
// buffer released.
func (r *Reassembler) Process(msg string) (ProcessResult, error) {
	if !wire.IsChunkFrame(msg) {
		return ProcessResult{Complete: true, Payload: msg}, nil
	}

	chunk, err := wire.ParseChunk(msg)
	if err != nil {
		return ProcessResult{}, err
	}

	r.mu.Lock()
	p, ok := r.pending[chunk.SessionID]
	if !ok {
		p = &partial{
			fragments: make([]string, chunk.Total),
			seen:      make([]bool, chunk.Total),
			createdAt: time.Now(),
		}
		r.pending[chunk.SessionID] = p
	}

	if chunk.Total != len(p.fragments) {
		r.mu.Unlock()
		return ProcessResult{}, fmt.Errorf("session %s: total chunks changed from %d to %d",
			chunk.SessionID, len(p.fragments), chunk.Total)
	}

	// First write wins; duplicate deliveries are ignored.
	if !p.seen[chunk.Index] {
		p.fragments[chunk.Index] = chunk.Fragment
		p.seen[chunk.Index] = true
		p.received++
	}

	if p.received < len(p.fragments) {
		r.mu.Unlock()
		return ProcessResult{SessionID: chunk.SessionID, TotalChunks: chunk.Total, StartTime: p.createdAt}, nil
	}

	delete(r.pending, chunk.SessionID)
	r.mu.Unlock()

	assembled := strings.Join(p.fragments, "")

	r.lg.Info("assembled chunked message", map[string]any{
		"session_id":   chunk.SessionID,
		"total_chunks": chunk.Total,
		"bytes":        len(assembled),
	})

	return ProcessResult{
		Complete:    true,
		Payload:     assembled,
		SessionID:   chunk.SessionID,
		TotalChunks: chunk.Total,
		StartTime:   p.createdAt,
	}, nil
}

// PendingSessions returns the number of incomplete transfers.
func (r *Reassembler) PendingSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Reassembler) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

// sweep discards partial transfers older than the expiry.
func (r *Reassembler) sweep(now time.Time) {
	r.mu.Lock()
	var expired []ExpiredPartial
	for id, p := range r.pending {
		if now.Sub(p.createdAt) > r.expiry {
			delete(r.pending, id)
			buffered := 0
			for _, frag := range p.fragments {
				buffered += len(frag)
			}
			expired = append(expired, ExpiredPartial{
				SessionID:    id,
				TotalChunks:  len(p.fragments),
				Received:     p.received,
				PayloadBytes: buffered,
				StartTime:    p.createdAt,
			})
		}
	}
	onExpire := r.onExpire
	r.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	r.lg.Info("discarded expired partial transfers", map[string]any{"count": len(expired)})
	if onExpire != nil {
		for _, e := range expired {
			onExpire(e)
		}
	}
}
