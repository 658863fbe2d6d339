package host

import (
	"context"
	"time"

	"github.com/pithecene-io/sluice/adapter"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/types"
)

// ChunkAck is the transport-level acknowledgment body returned for every
// chunk frame, independent of whether the transfer is complete. The chunk
// sender's per-chunk await resolves on it; the body carries no data.
const ChunkAck = `{"success":true,"chunk":"received"}`

// Completer delivers the out-of-band completion signal back into the
// browser runtime once a chunked transfer's action has executed. In
// process, this is the bridge's response router; over a process transport,
// a completion control frame.
type Completer interface {
	CompleteSession(sessionID, response string)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(sessionID, response string)

// CompleteSession calls f.
func (f CompleterFunc) CompleteSession(sessionID, response string) {
	f(sessionID, response)
}

// Host is the host-side bridge endpoint: it routes inbound messages
// through the Reassembler, executes completed envelopes on the Dispatcher,
// and signals chunked completions through the Completer.
type Host struct {
	reassembler *Reassembler
	dispatcher  *Dispatcher
	completer   Completer
	publisher   adapter.Adapter
	lg          *log.Logger
}

// HostConfig configures a Host.
type HostConfig struct {
	// Reassembler is required.
	Reassembler *Reassembler
	// Dispatcher is required.
	Dispatcher *Dispatcher
	// Completer receives chunked completion signals. Required.
	Completer Completer
	// Publisher optionally receives session lifecycle events.
	// Publishing is best-effort and never affects bridge semantics.
	Publisher adapter.Adapter
	// Logger receives structured host logs. If nil, logging is disabled.
	Logger *log.Logger
}

// NewHost assembles a host endpoint. When a publisher is configured, the
// reassembler's expiry sweep is hooked up so abandoned partial transfers
// emit session_expired events.
func NewHost(cfg HostConfig) *Host {
	lg := cfg.Logger
	if lg == nil {
		lg = log.Nop()
	}
	h := &Host{
		reassembler: cfg.Reassembler,
		dispatcher:  cfg.Dispatcher,
		completer:   cfg.Completer,
		publisher:   cfg.Publisher,
		lg:          lg,
	}
	if h.publisher != nil {
		h.reassembler.SetOnExpire(h.publishExpired)
	}
	return h
}

// HandleMessage processes one inbound bridge message and returns the
// transport-level response to acknowledge it with.
//
// Single messages execute synchronously and their response body is the
// acknowledgment. Chunk frames are acknowledged immediately with ChunkAck;
// when the final fragment completes a transfer, the action executes and
// the result travels through the Completer instead.
func (h *Host) HandleMessage(ctx context.Context, msg string) (string, error) {
	result, err := h.reassembler.Process(msg)
	if err != nil {
		return "", err
	}

	if !result.Complete {
		return ChunkAck, nil
	}

	// Single-message path: response body doubles as acknowledgment.
	if result.SessionID == "" {
		return h.dispatcher.Execute(ctx, result.Payload), nil
	}

	// Chunked path: execute and signal completion out of band.
	response := h.dispatcher.Execute(ctx, result.Payload)
	h.completer.CompleteSession(result.SessionID, response)
	h.publishCompleted(ctx, result, len(response))
	return ChunkAck, nil
}

// publishCompleted emits a best-effort session_completed event.
func (h *Host) publishCompleted(ctx context.Context, result ProcessResult, responseBytes int) {
	event := &adapter.SessionEvent{
		ContractVersion: types.Version,
		EventType:       adapter.SessionEventType,
		SessionID:       result.SessionID,
		Outcome:         string(types.SessionCompleted),
		TotalChunks:     result.TotalChunks,
		PayloadBytes:    len(result.Payload),
		ResponseBytes:   responseBytes,
		DurationMs:      time.Since(result.StartTime).Milliseconds(),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
	h.publish(ctx, event)
}

// publishExpired emits a best-effort session_expired event for a partial
// transfer the reassembler's sweep discarded.
func (h *Host) publishExpired(p ExpiredPartial) {
	event := &adapter.SessionEvent{
		ContractVersion: types.Version,
		EventType:       adapter.SessionEventType,
		SessionID:       p.SessionID,
		Outcome:         string(types.SessionExpired),
		TotalChunks:     p.TotalChunks,
		PayloadBytes:    p.PayloadBytes,
		DurationMs:      time.Since(p.StartTime).Milliseconds(),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
	h.publish(context.Background(), event)
}

func (h *Host) publish(ctx context.Context, event *adapter.SessionEvent) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(ctx, event); err != nil {
		h.lg.Warn("session event publish failed", map[string]any{
			"session_id": event.SessionID,
			"outcome":    event.Outcome,
			"error":      err.Error(),
		})
	}
}
