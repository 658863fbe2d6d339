// Package session tracks in-flight chunked transfers.
//
// The Registry exclusively owns all Session records. A session is settled
// exactly once: by the response router on completion, by the chunk sender
// on transport failure, or by timeout (per-session timer or periodic reaper,
// whichever observes it first). Settlement removes the session atomically,
// so later settlement attempts against the same id are no-ops.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/sluice/log"
)

// ErrTimeout is the sentinel for sessions abandoned without a completion
// signal. Use errors.Is(err, ErrTimeout) for typed assertions.
var ErrTimeout = errors.New("session timed out")

// TimeoutError reports a session that exceeded the configured timeout.
type TimeoutError struct {
	// SessionID is the expired session.
	SessionID string
	// Elapsed is the session age when expiry fired.
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("session %s: no completion signal after %s", e.SessionID, e.Elapsed)
}

// Is reports whether the error matches the timeout sentinel.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Settlement is the single result delivered to a session's waiter.
// Exactly one of Response or Err is meaningful.
type Settlement struct {
	Response string
	Err      error
}

// Session is the bookkeeping record for one in-flight chunked transfer.
type Session struct {
	// ID uniquely identifies the transfer.
	ID string
	// TotalChunks is fixed at creation and equals the fragment count.
	TotalChunks int
	// StartTime is when the transfer began.
	StartTime time.Time

	// sentChunks counts acknowledged sends, incremented only by the
	// chunk sender.
	sentChunks atomic.Int32

	// done is the one-shot settlement channel, buffered so settlement
	// never blocks. Written exactly once, under the registry lock.
	done chan Settlement
}

// Done returns the settlement channel. It receives exactly one value.
func (s *Session) Done() <-chan Settlement {
	return s.done
}

// MarkSent records one acknowledged chunk send.
func (s *Session) MarkSent() {
	s.sentChunks.Add(1)
}

// SentChunks returns the number of acknowledged chunk sends.
func (s *Session) SentChunks() int {
	return int(s.sentChunks.Load())
}

// Registry tracks live sessions by id. Thread-safe.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	timeout  time.Duration
	lg       *log.Logger
}

// sessionEntry pairs a session with its one-shot expiry timer.
type sessionEntry struct {
	session *Session
	timer   *time.Timer
}

// NewRegistry creates a registry whose sessions expire after timeout.
func NewRegistry(timeout time.Duration, lg *log.Logger) *Registry {
	if lg == nil {
		lg = log.Nop()
	}
	return &Registry{
		sessions: make(map[string]*sessionEntry),
		timeout:  timeout,
		lg:       lg,
	}
}

// Timeout returns the configured session timeout.
func (r *Registry) Timeout() time.Duration {
	return r.timeout
}

// Create allocates a session with a fresh unique id and arms its one-shot
// expiry timer. The periodic reaper is a backstop for delayed timers; both
// paths tolerate racing completion because settlement is idempotent.
func (r *Registry) Create(totalChunks int) *Session {
	s := &Session{
		ID:          uuid.NewString(),
		TotalChunks: totalChunks,
		StartTime:   time.Now(),
		done:        make(chan Settlement, 1),
	}

	timer := time.AfterFunc(r.timeout, func() {
		r.Expire(s.ID)
	})

	r.mu.Lock()
	r.sessions[s.ID] = &sessionEntry{session: s, timer: timer}
	r.mu.Unlock()

	return s
}

// Get returns the live session for id, if any.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return entry.session, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Complete settles a session successfully with the host's response and
// removes it. Unknown ids are a silent no-op (late or duplicate completion
// signals) and report false.
func (r *Registry) Complete(id, response string) bool {
	return r.settle(id, Settlement{Response: response})
}

// Fail settles a session with an error and removes it.
// Unknown ids are a no-op and report false.
func (r *Registry) Fail(id string, err error) bool {
	return r.settle(id, Settlement{Err: err})
}

// Expire settles a session with a timeout error and removes it.
// Called by both the per-session timer and the reaper sweep; only the
// first to observe the live session acts.
func (r *Registry) Expire(id string) bool {
	r.mu.Lock()
	entry, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	elapsed := time.Since(entry.session.StartTime)
	r.removeLocked(id, entry)
	r.mu.Unlock()

	r.lg.Warn("session expired", map[string]any{
		"session_id":   id,
		"elapsed_ms":   elapsed.Milliseconds(),
		"sent_chunks":  entry.session.SentChunks(),
		"total_chunks": entry.session.TotalChunks,
	})
	entry.session.done <- Settlement{Err: &TimeoutError{SessionID: id, Elapsed: elapsed}}
	return true
}

// Remove deletes a session without settling it. Idempotent; removing an
// absent id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[id]; ok {
		r.removeLocked(id, entry)
	}
}

// expiredIDs snapshots ids older than the timeout as of now.
func (r *Registry) expiredIDs(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, entry := range r.sessions {
		if now.Sub(entry.session.StartTime) > r.timeout {
			ids = append(ids, id)
		}
	}
	return ids
}

// settle delivers a settlement and removes the session atomically.
func (r *Registry) settle(id string, result Settlement) bool {
	r.mu.Lock()
	entry, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.removeLocked(id, entry)
	r.mu.Unlock()

	entry.session.done <- result
	return true
}

// removeLocked deletes the entry and stops its timer. Caller holds r.mu.
func (r *Registry) removeLocked(id string, entry *sessionEntry) {
	delete(r.sessions, id)
	entry.timer.Stop()
}
