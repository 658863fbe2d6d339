package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/sluice/adapter"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/session"
	"github.com/pithecene-io/sluice/types"
	"github.com/pithecene-io/sluice/wire"
)

// Default timing constants.
const (
	// DefaultSessionTimeout is how long a chunked transfer may wait for
	// the host's completion signal.
	DefaultSessionTimeout = 30 * time.Second
	// DefaultChunkDelay is the pacing delay between acknowledged chunk
	// sends, keeping the transport from saturating.
	DefaultChunkDelay = 10 * time.Millisecond
)

// Transport is the opaque single-message send primitive supplied by the
// host embedding: one small message in, one response out. Implementations
// must be safe for concurrent use; the bridge issues sends from multiple
// sessions at once.
type Transport interface {
	Send(ctx context.Context, message string) (string, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, message string) (string, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

// Config configures a Bridge. Zero values take defaults.
type Config struct {
	// MaxChunkSize is the transport's per-message ceiling in bytes
	// (default wire.MaxChunkSize). Payloads above it are chunked.
	MaxChunkSize int
	// SessionTimeout is how long an incomplete session may live
	// (default DefaultSessionTimeout).
	SessionTimeout time.Duration
	// ReaperInterval is the periodic expiry sweep period
	// (default session.DefaultReaperInterval).
	ReaperInterval time.Duration
	// ChunkDelay is the pacing delay between chunk sends
	// (default DefaultChunkDelay). Set negative to disable pacing.
	ChunkDelay time.Duration
	// Logger receives structured bridge logs. If nil, logging is disabled.
	Logger *log.Logger
	// Collector records bridge metrics. If nil, no metrics are recorded
	// (all Collector methods are nil-safe).
	Collector *metrics.Collector
	// Publisher optionally receives session lifecycle events for failures
	// the host cannot observe (expired and aborted sessions). Publishing
	// is best-effort and never affects call semantics.
	Publisher adapter.Adapter
}

// withDefaults fills zero-valued fields.
func (c Config) withDefaults() Config {
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = wire.MaxChunkSize
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.ReaperInterval <= 0 {
		c.ReaperInterval = session.DefaultReaperInterval
	}
	if c.ChunkDelay == 0 {
		c.ChunkDelay = DefaultChunkDelay
	}
	if c.Logger == nil {
		c.Logger = log.Nop()
	}
	return c
}

// Bridge is the chunked message bridge client. It presents callers a
// uniform fire-one-request, get-one-response interface over a transport
// with a hard per-message size ceiling.
type Bridge struct {
	id        string
	transport Transport
	config    Config
	registry  *session.Registry
	reaper    *session.Reaper
	collector *metrics.Collector
	publisher adapter.Adapter
	lg        *log.Logger
}

// New creates a Bridge over the given transport and starts its reaper.
// Call Close to release the reaper.
func New(transport Transport, cfg Config) (*Bridge, error) {
	if transport == nil {
		return nil, fmt.Errorf("bridge requires a transport")
	}
	cfg = cfg.withDefaults()
	if cfg.MaxChunkSize <= wire.FrameOverhead {
		return nil, fmt.Errorf("max chunk size %d must exceed frame overhead %d", cfg.MaxChunkSize, wire.FrameOverhead)
	}

	registry := session.NewRegistry(cfg.SessionTimeout, cfg.Logger)
	reaper := session.NewReaper(registry, cfg.ReaperInterval, cfg.Logger)
	reaper.Start()

	b := &Bridge{
		id:        uuid.NewString(),
		transport: transport,
		config:    cfg,
		registry:  registry,
		reaper:    reaper,
		collector: cfg.Collector,
		publisher: cfg.Publisher,
		lg:        cfg.Logger,
	}
	return b, nil
}

// Close stops the reaper. In-flight sessions settle through their own
// timers or completion signals.
func (b *Bridge) Close() error {
	b.reaper.Stop()
	return nil
}

// ID returns the bridge instance identifier.
func (b *Bridge) ID() string {
	return b.id
}

// InFlight returns the number of live chunked sessions.
func (b *Bridge) InFlight() int {
	return b.registry.Len()
}

// Config returns the effective configuration.
func (b *Bridge) Config() Config {
	return b.config
}

// Call invokes a host-side action and returns the raw response body.
// The returned error settles exactly once per request regardless of path:
// transport failure, timeout, or context cancellation all reject; a host
// completion signal (or direct transport response) resolves.
func (b *Bridge) Call(ctx context.Context, action string, data json.RawMessage) (string, error) {
	env := types.NewEnvelope(action, data)
	payload, err := wire.EncodeEnvelope(env)
	if err != nil {
		// Programming error: propagated synchronously, nothing sent.
		return "", err
	}

	b.collector.IncCallStarted()
	b.collector.AddBytesSent(int64(len(payload)))

	if !wire.NeedsChunking(payload, b.config.MaxChunkSize) {
		return b.callSingle(ctx, action, payload)
	}
	return b.callChunked(ctx, action, payload)
}

// CallResult invokes an action and decodes the response into the host's
// result shape. Malformed response JSON is surfaced as a parse error.
func (b *Bridge) CallResult(ctx context.Context, action string, data json.RawMessage) (*types.Result, error) {
	body, err := b.Call(ctx, action, data)
	if err != nil {
		return nil, err
	}
	var result types.Result
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, fmt.Errorf("parse response for %s: %w", action, err)
	}
	return &result, nil
}

// callSingle performs a direct transport round-trip. The transport's own
// response is the result; no registry involvement.
func (b *Bridge) callSingle(ctx context.Context, action, payload string) (string, error) {
	b.collector.IncSingleMessage()

	response, err := b.transport.Send(ctx, payload)
	if err != nil {
		b.collector.IncCallFailed()
		return "", &TransportError{Chunk: -1, Err: err}
	}

	b.collector.IncCallCompleted()
	b.collector.AddBytesReceived(int64(len(response)))
	b.lg.Debug("single message resolved", map[string]any{
		"action": action,
		"bytes":  len(payload),
	})
	return response, nil
}

// callChunked registers a session, drives sequential chunk delivery in the
// background, and waits for settlement.
func (b *Bridge) callChunked(ctx context.Context, action, payload string) (string, error) {
	fragments, err := wire.Split(payload, b.config.MaxChunkSize)
	if err != nil {
		return "", err
	}

	sess := b.registry.Create(len(fragments))
	b.collector.IncChunkedSession()
	b.lg.Info("chunked session started", map[string]any{
		"session_id":   sess.ID,
		"action":       action,
		"bytes":        len(payload),
		"total_chunks": len(fragments),
	})

	go b.sendChunks(ctx, sess, fragments)

	var result session.Settlement
	select {
	case result = <-sess.Done():
	case <-ctx.Done():
		// Settlement and cancellation may race; Fail is a no-op when the
		// session already settled, and Done always holds exactly one value.
		b.registry.Fail(sess.ID, ctx.Err())
		result = <-sess.Done()
	}

	if result.Err != nil {
		b.collector.IncCallFailed()
		outcome := types.SessionAborted
		if hasTimeout(result.Err) {
			outcome = types.SessionExpired
			b.collector.IncSessionExpired()
		} else {
			b.collector.IncSessionAborted()
		}
		b.publishOutcome(sess, outcome, len(payload))
		return "", result.Err
	}

	b.collector.IncCallCompleted()
	b.collector.IncSessionCompleted()
	b.collector.AddBytesReceived(int64(len(result.Response)))
	return result.Response, nil
}

// publishOutcome emits a best-effort lifecycle event for a failed session.
// Only failures are published here: the host publishes session_completed
// itself, and it can never observe a client-side expiry or abort.
func (b *Bridge) publishOutcome(sess *session.Session, outcome types.SessionOutcome, payloadBytes int) {
	if b.publisher == nil {
		return
	}

	event := &adapter.SessionEvent{
		ContractVersion: types.Version,
		EventType:       adapter.SessionEventType,
		SessionID:       sess.ID,
		Outcome:         string(outcome),
		TotalChunks:     sess.TotalChunks,
		PayloadBytes:    payloadBytes,
		DurationMs:      time.Since(sess.StartTime).Milliseconds(),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}

	// Off the caller's settlement path, and on a fresh context: the call
	// context is typically already canceled or expired here.
	go func() {
		if err := b.publisher.Publish(context.Background(), event); err != nil {
			b.lg.Warn("session event publish failed", map[string]any{
				"session_id": sess.ID,
				"outcome":    string(outcome),
				"error":      err.Error(),
			})
		}
	}()
}

// sendChunks delivers fragments sequentially: chunk i+1 is sent only after
// chunk i's transport acknowledgment, with a pacing delay in between. On
// any transport failure the session is rejected immediately and remaining
// chunks are never sent. Reaching the last acknowledgment leaves the
// session registered, awaiting the host's completion signal.
func (b *Bridge) sendChunks(ctx context.Context, sess *session.Session, fragments []string) {
	total := len(fragments)
	for i, fragment := range fragments {
		frame := wire.FormatChunk(sess.ID, i, total, fragment)

		// Chunk acknowledgments carry no data; the ack body is discarded.
		if _, err := b.transport.Send(ctx, frame); err != nil {
			b.lg.Error("chunk send failed", map[string]any{
				"session_id": sess.ID,
				"chunk":      i,
				"error":      err.Error(),
			})
			b.registry.Fail(sess.ID, &TransportError{SessionID: sess.ID, Chunk: i, Err: err})
			return
		}

		sess.MarkSent()
		b.collector.AddChunksSent(1)

		if i < total-1 && b.config.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				b.registry.Fail(sess.ID, ctx.Err())
				return
			case <-time.After(b.config.ChunkDelay):
			}
		}
	}

	b.lg.Debug("all chunks sent", map[string]any{
		"session_id":   sess.ID,
		"total_chunks": total,
	})
}

// HandleChunkedResponse is the completion signal entry point. The host
// invokes it (directly or via a transport control frame) once all chunks
// are reassembled and the action executed. Unknown or expired session ids
// are a silent no-op, which is the correct handling for late or duplicate
// signals.
func (b *Bridge) HandleChunkedResponse(sessionID, response string) {
	if !b.registry.Complete(sessionID, response) {
		b.collector.IncOrphanedCompletion()
		b.lg.Debug("orphaned completion signal", map[string]any{
			"session_id": sessionID,
		})
	}
}

// hasTimeout reports whether err is a session timeout.
func hasTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
