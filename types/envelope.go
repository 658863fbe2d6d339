// Package types defines core domain types for the Sluice bridge.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"encoding/json"
	"errors"
)

// emptyData is the serialized form of an omitted data object.
var emptyData = json.RawMessage("{}")

// Envelope is the logical request handed to the bridge: an action name and
// its arguments. It is serialized to a single JSON payload before framing.
type Envelope struct {
	// Action identifies the host-side operation to invoke. Never empty.
	Action string `json:"action"`
	// Data carries the action arguments. Defaults to an empty object.
	Data json.RawMessage `json:"data"`
}

// NewEnvelope builds an Envelope from an action name and raw argument JSON.
// A nil or empty data slice defaults to an empty object.
func NewEnvelope(action string, data json.RawMessage) Envelope {
	if len(data) == 0 {
		data = emptyData
	}
	return Envelope{Action: action, Data: data}
}

// Validate checks envelope invariants.
func (e *Envelope) Validate() error {
	if e.Action == "" {
		return errors.New("envelope action must not be empty")
	}
	return nil
}

// Result is the host-side response body for an executed action.
// Shape matches the response objects the host dispatcher emits.
type Result struct {
	// Success reports whether the action executed without error.
	Success bool `json:"success"`
	// Result is the action's return value, if any.
	Result json.RawMessage `json:"result,omitempty"`
	// Error is the failure description when Success is false.
	Error string `json:"error,omitempty"`
}

// ErrorResult builds a failed Result with the given description.
func ErrorResult(msg string) Result {
	return Result{Success: false, Error: msg}
}
