package host

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/types"
)

// HandlerFunc executes one action with its argument object and returns the
// action's result value (later JSON-encoded into the response body).
type HandlerFunc func(ctx context.Context, data json.RawMessage) (any, error)

// Dispatcher routes reassembled envelopes to registered action handlers
// and renders their results into the response body shape the browser side
// expects. Thread-safe; handlers may be registered concurrently with
// dispatch.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	lg       *log.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(lg *log.Logger) *Dispatcher {
	if lg == nil {
		lg = log.Nop()
	}
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		lg:       lg,
	}
}

// Register binds a handler to an action name, replacing any previous one.
func (d *Dispatcher) Register(action string, handler HandlerFunc) {
	d.mu.Lock()
	d.handlers[action] = handler
	d.mu.Unlock()
}

// Actions returns the registered action names.
func (d *Dispatcher) Actions() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	actions := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		actions = append(actions, name)
	}
	return actions
}

// Execute parses a serialized envelope, runs its action handler, and
// returns the response body. Failures of any kind (malformed envelope,
// unknown action, handler error) produce an error response body, never an
// error return: the bridge contract requires every executed message to get
// a response.
func (d *Dispatcher) Execute(ctx context.Context, payload string) string {
	var env types.Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		d.lg.Error("malformed envelope", map[string]any{"error": err.Error()})
		return mustMarshal(types.ErrorResult(fmt.Sprintf("malformed request envelope: %v", err)))
	}
	if err := env.Validate(); err != nil {
		return mustMarshal(types.ErrorResult(err.Error()))
	}

	d.mu.RLock()
	handler, ok := d.handlers[env.Action]
	d.mu.RUnlock()
	if !ok {
		d.lg.Warn("unknown action", map[string]any{"action": env.Action})
		return mustMarshal(types.ErrorResult(fmt.Sprintf("unknown action: %s", env.Action)))
	}

	value, err := handler(ctx, env.Data)
	if err != nil {
		d.lg.Error("action failed", map[string]any{
			"action": env.Action,
			"error":  err.Error(),
		})
		return mustMarshal(types.ErrorResult(err.Error()))
	}

	result := types.Result{Success: true}
	if value != nil {
		encoded, err := json.Marshal(value)
		if err != nil {
			return mustMarshal(types.ErrorResult(fmt.Sprintf("encode result for %s: %v", env.Action, err)))
		}
		result.Result = encoded
	}
	return mustMarshal(result)
}

// mustMarshal encodes a Result. The Result shape always marshals; a
// failure here would be a programming error.
func mustMarshal(r types.Result) string {
	out, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"internal encoding failure"}`
	}
	return string(out)
}
